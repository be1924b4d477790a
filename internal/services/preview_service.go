package services

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "github.com/SAP-F-2025/content-import-service/internal/errors"
	"github.com/SAP-F-2025/content-import-service/internal/models"
)

// ImportPreview is what a caller sees before committing a document
type ImportPreview struct {
	Validation *ValidationResult         `json:"validation"`
	Categories []models.CategoryAnalysis `json:"categories"`
	ItemCount  int                       `json:"itemCount"`
	ChunkCount int                       `json:"chunkCount"`
}

type PreviewService interface {
	Preview(ctx context.Context, doc *models.ImportDocument, userID string, chunkSize int) (*ImportPreview, error)
}

type previewService struct {
	engine  ValidationEngine
	matcher CategoryMatcher
	logger  *slog.Logger
}

func NewPreviewService(engine ValidationEngine, matcher CategoryMatcher, logger *slog.Logger) PreviewService {
	return &previewService{
		engine:  engine,
		matcher: matcher,
		logger:  logger,
	}
}

// Preview validates the document and, when it is structurally usable, folds
// the category analysis into the validation result
func (s *previewService) Preview(ctx context.Context, doc *models.ImportDocument, userID string, chunkSize int) (*ImportPreview, error) {
	result := s.engine.Validate(doc)
	preview := &ImportPreview{
		Validation: result,
		Categories: []models.CategoryAnalysis{},
	}
	if doc == nil {
		return preview, nil
	}

	preview.ItemCount = doc.ItemCount()
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	preview.ChunkCount = (preview.ItemCount + chunkSize - 1) / chunkSize

	if !doc.Type.IsValid() {
		return preview, nil
	}

	analyses, err := s.matcher.Analyze(ctx, doc, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze categories: %w", err)
	}
	preview.Categories = analyses

	for _, a := range analyses {
		if a.RecommendedAction != models.ActionCreate {
			continue
		}
		result.Add(apperrors.NewImportError(apperrors.TypeMapping, apperrors.SeverityWarning,
			fmt.Sprintf("Catégorie inconnue, elle sera créée: %s", a.OriginalName)).
			OnField("category").
			WithCode(codeMissingCategory).
			WithCategory(a.OriginalName))
	}

	s.logger.Debug("Import preview generated",
		"user_id", userID,
		"items", preview.ItemCount,
		"categories", len(analyses),
		"valid", result.IsValid)

	return preview, nil
}
