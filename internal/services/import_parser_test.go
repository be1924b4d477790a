package services

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	apperrors "github.com/SAP-F-2025/content-import-service/internal/errors"
	"github.com/SAP-F-2025/content-import-service/internal/models"
)

func newTestParser() ImportParser {
	return NewImportParser(testLogger(), ParserConfig{})
}

func TestImportParser_ParseJSON(t *testing.T) {
	parser := newTestParser()

	t.Run("valid document", func(t *testing.T) {
		data := []byte(`{
			"version": "1.0",
			"type": "questions",
			"questions": [
				{"questionText": "Q1", "options": [{"text": "A", "isCorrect": true}, {"text": "B"}], "category": "Cardiologie"}
			]
		}`)

		doc, result := parser.ParseJSON(data)

		require.Nil(t, result)
		require.NotNil(t, doc)
		assert.Equal(t, models.ContentQuestions, doc.Type)
		require.Len(t, doc.Questions, 1)
		assert.Equal(t, 1, doc.Questions[0].CorrectCount())
	})

	tests := []struct {
		name string
		data string
	}{
		{name: "truncated", data: `{"type": "questions", "questions": [`},
		{name: "not json", data: `questionText,options`},
		{name: "wrong field type", data: `{"type": "questions", "questions": "nope"}`},
	}

	for _, tt := range tests {
		t.Run("malformed "+tt.name, func(t *testing.T) {
			doc, result := parser.ParseJSON([]byte(tt.data))

			assert.Nil(t, doc)
			require.NotNil(t, result)
			assert.False(t, result.IsValid)
			require.Len(t, result.Errors, 1)
			assert.Equal(t, apperrors.SeverityCritical, result.Errors[0].Severity)
			assert.Equal(t, apperrors.TypeValidation, result.Errors[0].Type)
		})
	}
}

func TestImportParser_ParseJSONReportsBadItemAtIndex(t *testing.T) {
	parser := newTestParser()

	tests := []struct {
		name      string
		data      string
		wantIndex []int
		wantField string
	}{
		{
			name: "numeric question text",
			data: `{"type": "questions", "questions": [
				{"questionText": "Q1", "options": [{"text": "A", "isCorrect": true}]},
				{"questionText": 42, "options": [{"text": "A", "isCorrect": true}]}
			]}`,
			wantIndex: []int{1},
			wantField: "questionText",
		},
		{
			name: "every bad card is reported",
			data: `{"type": "flashcards", "cards": [
				{"front": true, "back": "B"},
				{"front": "F", "back": "B"},
				{"front": "F", "back": ["B"]}
			]}`,
			wantIndex: []int{0, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, result := parser.ParseJSON([]byte(tt.data))

			assert.Nil(t, doc)
			require.NotNil(t, result)
			assert.False(t, result.IsValid)
			assert.Equal(t, len(tt.wantIndex), result.Summary.InvalidItems)
			require.Len(t, result.Errors, len(tt.wantIndex))
			for i, e := range result.Errors {
				require.NotNil(t, e.ItemIndex)
				assert.Equal(t, tt.wantIndex[i], *e.ItemIndex)
				assert.Equal(t, apperrors.SeverityCritical, e.Severity)
				assert.Contains(t, e.Message, "Élément illisible")
			}
			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, result.Errors[0].Field)
			}
		})
	}
}

func TestImportParser_Limits(t *testing.T) {
	parser := NewImportParser(testLogger(), ParserConfig{MaxBytes: 64, MaxItems: 2})

	_, result := parser.ParseJSON(bytes.Repeat([]byte(" "), 65))
	require.NotNil(t, result)
	assert.Contains(t, result.Errors[0].Message, "Fichier trop volumineux")

	_, result = parser.ParseCSV(strings.NewReader("a,b\nc,d\ne,f\n"), models.ContentFlashcards)
	require.NotNil(t, result)
	assert.Equal(t, "Trop d'éléments: 3 (maximum 2)", result.Errors[0].Message)
}

func TestImportParser_ParseCSV(t *testing.T) {
	parser := newTestParser()

	t.Run("semicolon with french header", func(t *testing.T) {
		data := "Énoncé;Option A;Option B;Option C;Réponse;Catégorie;Difficulté;Niveau;Tags\n" +
			"Quel organe pompe le sang ?;Foie;Cœur;Rein;B;Cardiologie;easy;pass;\"coeur|anatomie\"\n" +
			"\"Texte avec \"\"guillemets\"\"\";Oui;Non;;1;Anatomie;;;\n"

		doc, result := parser.ParseCSV(strings.NewReader(data), models.ContentQuestions)

		require.Nil(t, result)
		require.Len(t, doc.Questions, 2)

		first := doc.Questions[0]
		assert.Equal(t, "Quel organe pompe le sang ?", first.QuestionText)
		require.Len(t, first.Options, 3)
		assert.True(t, first.Options[1].IsCorrect)
		assert.Equal(t, 1, first.CorrectCount())
		assert.Equal(t, "Cardiologie", first.Category)
		assert.Equal(t, models.DifficultyEasy, first.Difficulty)
		assert.Equal(t, models.LevelPASS, first.Level)
		assert.Equal(t, []string{"coeur", "anatomie"}, first.Tags)

		second := doc.Questions[1]
		assert.Equal(t, `Texte avec "guillemets"`, second.QuestionText)
		require.Len(t, second.Options, 2)
		assert.True(t, second.Options[0].IsCorrect)
	})

	t.Run("positional comma separated", func(t *testing.T) {
		data := "Qu'est-ce que l'ECG ?,Un examen,Un médicament,,,Un examen,Explication,Cardiologie,medium,LAS,\n"

		doc, result := parser.ParseCSV(strings.NewReader(data), models.ContentQuestions)

		require.Nil(t, result)
		require.Len(t, doc.Questions, 1)
		q := doc.Questions[0]
		assert.Len(t, q.Options, 2)
		assert.True(t, q.Options[0].IsCorrect)
		assert.Equal(t, models.LevelLAS, q.Level)
		assert.Equal(t, "Explication", q.Explanation)
	})

	t.Run("tab separated flashcards with header", func(t *testing.T) {
		data := "\xef\xbb\xbffront\tback\tcategory\nECG\tÉlectrocardiogramme\tCardiologie\n\n"

		doc, result := parser.ParseCSV(strings.NewReader(data), models.ContentFlashcards)

		require.Nil(t, result)
		require.Len(t, doc.Cards, 1)
		assert.Equal(t, "ECG", doc.Cards[0].Front)
		assert.Equal(t, "Cardiologie", doc.Cards[0].Category)
	})

	t.Run("learning paths are rejected", func(t *testing.T) {
		_, result := parser.ParseCSV(strings.NewReader("a,b\n"), models.ContentLearningPath)

		require.NotNil(t, result)
		assert.True(t, result.Errors.HasCritical())
	})
}

func TestSniffDelimiter(t *testing.T) {
	tests := []struct {
		line string
		want rune
	}{
		{"a,b,c", ','},
		{"a;b;c", ';'},
		{"a\tb\tc", '\t'},
		{"a;b,c", ','},
		{"single", ','},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sniffDelimiter([]byte(tt.line+"\nx")), tt.line)
	}
}

func TestImportParser_ParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"questionText", "options", "correctAnswer", "category"},
		{"Combien de cavités ?", "Deux|Quatre|Six", "quatre", "Cardiologie"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	doc, result := newTestParser().Parse("import.xlsx", buf.Bytes(), models.ContentQuestions)

	require.Nil(t, result)
	require.Len(t, doc.Questions, 1)
	q := doc.Questions[0]
	require.Len(t, q.Options, 3)
	assert.True(t, q.Options[1].IsCorrect)
	assert.Equal(t, "Cardiologie", q.Category)
}

func TestImportParser_UnsupportedExtension(t *testing.T) {
	_, result := newTestParser().Parse("import.pdf", []byte("x"), models.ContentQuestions)

	require.NotNil(t, result)
	assert.Equal(t, "Format de fichier non supporté: .pdf", result.Errors[0].Message)
}
