package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/SAP-F-2025/content-import-service/internal/errors"
)

type mappingRequest struct {
	OriginalName string  `json:"originalName" validate:"required"`
	Action       string  `json:"action" validate:"required,category_action"`
	Confidence   float64 `json:"confidence" validate:"min=0,max=1"`
}

type importRequest struct {
	Type       string `json:"type" validate:"required,content_type"`
	Format     string `json:"format" validate:"required,import_format"`
	Difficulty string `json:"difficulty" validate:"difficulty"`
	Level      string `json:"level" validate:"study_level"`
}

func TestValidator_CustomTags(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		input   interface{}
		wantErr bool
		field   string
	}{
		{"valid mapping", mappingRequest{OriginalName: "cardio", Action: "map", Confidence: 0.9}, false, ""},
		{"bad action", mappingRequest{OriginalName: "cardio", Action: "delete"}, true, "action"},
		{"confidence out of range", mappingRequest{OriginalName: "x", Action: "create", Confidence: 1.5}, true, "confidence"},
		{"valid import", importRequest{Type: "learning-path", Format: "json"}, false, ""},
		{"bad content type", importRequest{Type: "videos", Format: "json"}, true, "type"},
		{"bad format", importRequest{Type: "questions", Format: "pdf"}, true, "format"},
		{"bad difficulty", importRequest{Type: "questions", Format: "csv", Difficulty: "extreme"}, true, "difficulty"},
		{"bad level", importRequest{Type: "questions", Format: "csv", Level: "L1"}, true, "level"},
		{"valid level", importRequest{Type: "questions", Format: "xlsx", Level: "PASS", Difficulty: "hard"}, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.input)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			errs, ok := err.(apperrors.ValidationErrors)
			require.True(t, ok)
			require.Len(t, errs, 1)
			assert.Equal(t, tt.field, errs[0].Field)
			assert.NotEmpty(t, errs[0].Message)
		})
	}
}
