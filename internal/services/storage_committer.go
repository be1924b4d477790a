package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/SAP-F-2025/content-import-service/internal/errors"
	"github.com/SAP-F-2025/content-import-service/internal/models"
	"github.com/SAP-F-2025/content-import-service/internal/repositories"
	"golang.org/x/sync/errgroup"
)

const DefaultCommitConcurrency = 8

// CommitContext is the read-only view of a job a committer works with
type CommitContext struct {
	JobID       string
	UserID      string
	BackupID    string
	ContentType models.ContentType
	Options     models.BatchOptions
}

// ChunkResult holds one result per committed item, in item order
type ChunkResult struct {
	Results []models.ItemResult
	Errors  []apperrors.ImportError
	Created []models.CreatedEntity
}

// ItemCommitter persists the items of one chunk. A returned error fails the
// whole chunk; a partial ChunkResult may accompany it so that entities already
// created are still known.
type ItemCommitter interface {
	CommitChunk(ctx context.Context, cc CommitContext, items []models.ImportItem) (*ChunkResult, error)
}

type storageCommitter struct {
	store   repositories.DocumentStore
	matcher CategoryMatcher
	backup  BackupSink
	logger  *slog.Logger
}

func NewStorageCommitter(store repositories.DocumentStore, matcher CategoryMatcher, backup BackupSink, logger *slog.Logger) ItemCommitter {
	return &storageCommitter{
		store:   store,
		matcher: matcher,
		backup:  backup,
		logger:  logger,
	}
}

type itemOutcome struct {
	result  models.ItemResult
	errs    []apperrors.ImportError
	created []models.CreatedEntity
}

func (c *storageCommitter) CommitChunk(ctx context.Context, cc CommitContext, items []models.ImportItem) (*ChunkResult, error) {
	outcomes := make([]itemOutcome, len(items))

	limit := cc.Options.CommitConcurrency
	if limit <= 0 {
		limit = DefaultCommitConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := range items {
		i := i
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("panic while committing item %d: %v", items[i].Index, rec)
				}
			}()
			if gctx.Err() != nil {
				return gctx.Err()
			}
			outcomes[i] = c.commitItem(gctx, cc, items[i])
			return nil
		})
	}

	err := g.Wait()

	result := &ChunkResult{
		Results: make([]models.ItemResult, 0, len(items)),
		Errors:  []apperrors.ImportError{},
		Created: []models.CreatedEntity{},
	}
	for _, o := range outcomes {
		if o.result.Status == "" {
			continue
		}
		result.Results = append(result.Results, o.result)
		result.Errors = append(result.Errors, o.errs...)
		result.Created = append(result.Created, o.created...)
	}

	if err == nil {
		err = ctx.Err()
	}
	return result, err
}

func (c *storageCommitter) commitItem(ctx context.Context, cc CommitContext, item models.ImportItem) itemOutcome {
	start := time.Now()
	collection := item.Kind.Collection()
	var created []models.CreatedEntity

	fail := func(e apperrors.ImportError) itemOutcome {
		e = e.AtItem(item.Index)
		return itemOutcome{
			result: models.ItemResult{
				ItemIndex:  item.Index,
				Status:     models.ItemError,
				Collection: collection,
				Message:    e.Message,
				DurationMs: time.Since(start).Milliseconds(),
			},
			errs:    []apperrors.ImportError{e},
			created: created,
		}
	}

	categoryName := item.CategoryName()
	category, newCategory, err := c.matcher.ResolveCategory(ctx, cc.UserID, categoryName, cc.Options.CategoryMappings, cc.Options.AutoCreateCategories)
	if err != nil {
		severity := apperrors.SeverityMajor
		if !errors.Is(err, ErrCategoryNotFound) {
			severity = apperrors.SeverityCritical
		}
		return fail(apperrors.NewImportError(apperrors.TypeMapping, severity,
			fmt.Sprintf("Catégorie introuvable: %s", categoryName)).
			OnField("category").
			WithCategory(categoryName).
			WithSuggestion("Activez la création automatique ou fournissez un mapping"))
	}
	if newCategory {
		c.recordCreate(ctx, cc, models.CollectionCategories, category.ID,
			models.Document{"name": category.Name, "slug": category.Slug})
		created = append(created, models.CreatedEntity{Collection: models.CollectionCategories, ID: category.ID})
	}

	if cc.Options.SkipDuplicates {
		duplicate, err := c.isDuplicate(ctx, collection, item)
		if err != nil {
			return fail(apperrors.NewImportError(apperrors.TypeDatabase, apperrors.SeverityMajor,
				fmt.Sprintf("Vérification des doublons impossible: %v", err)))
		}
		if duplicate {
			return itemOutcome{
				result: models.ItemResult{
					ItemIndex:  item.Index,
					Status:     models.ItemSkipped,
					Collection: collection,
					Message:    "Doublon ignoré",
					DurationMs: time.Since(start).Milliseconds(),
				},
				created: created,
			}
		}
	}

	doc := buildDocument(cc, item, category)
	id, err := c.store.Create(ctx, collection, doc)
	if err != nil {
		return fail(apperrors.NewImportError(apperrors.TypeDatabase, apperrors.SeverityMajor,
			fmt.Sprintf("Échec de l'enregistrement: %v", err)))
	}

	c.recordCreate(ctx, cc, collection, id, doc)
	created = append(created, models.CreatedEntity{Collection: collection, ID: id})

	return itemOutcome{
		result: models.ItemResult{
			ItemIndex:  item.Index,
			Status:     models.ItemSuccess,
			EntityID:   id,
			Collection: collection,
			DurationMs: time.Since(start).Milliseconds(),
		},
		created: created,
	}
}

// recordCreate adds a create entry to the job's backup. The entry is written
// even when the chunk deadline has passed, since the entity exists anyway.
// A failure here is repaired at rollback time from the job's created ids.
func (c *storageCommitter) recordCreate(ctx context.Context, cc CommitContext, collection, id string, doc models.Document) {
	if cc.BackupID == "" || c.backup == nil {
		return
	}
	if err := c.backup.BackupEntity(context.WithoutCancel(ctx), cc.BackupID, collection, id, models.OperationCreate, doc, nil); err != nil {
		c.logger.Warn("Failed to record backup entry",
			"job_id", cc.JobID,
			"backup_id", cc.BackupID,
			"collection", collection,
			"entity_id", id,
			"error", err)
	}
}

func (c *storageCommitter) isDuplicate(ctx context.Context, collection string, item models.ImportItem) (bool, error) {
	var query models.Document
	switch {
	case item.Question != nil:
		query = models.Document{"questionText": item.Question.QuestionText}
	case item.Flashcard != nil:
		query = models.Document{"front": item.Flashcard.Front}
	default:
		return false, nil
	}

	existing, err := c.store.Find(ctx, collection, query)
	if err != nil {
		return false, err
	}
	return len(existing) > 0, nil
}

func buildDocument(cc CommitContext, item models.ImportItem, category *models.Category) models.Document {
	doc := models.Document{
		"importJobId": cc.JobID,
		"createdBy":   cc.UserID,
		"createdAt":   time.Now().UTC().Format(time.RFC3339),
	}
	if category != nil {
		doc["categoryId"] = category.ID
		doc["categoryName"] = category.Name
	}

	switch {
	case item.Question != nil:
		q := item.Question
		options := make([]interface{}, len(q.Options))
		for i, opt := range q.Options {
			options[i] = map[string]interface{}{"text": opt.Text, "isCorrect": opt.IsCorrect}
		}
		doc["questionText"] = q.QuestionText
		doc["options"] = options
		doc["explanation"] = q.Explanation
		doc["difficulty"] = string(q.Difficulty)
		doc["level"] = string(q.Level)
		doc["tags"] = stringsToInterfaces(q.Tags)
	case item.Flashcard != nil:
		f := item.Flashcard
		doc["front"] = f.Front
		doc["back"] = f.Back
		doc["hint"] = f.Hint
		doc["tags"] = stringsToInterfaces(f.Tags)
	}

	if item.Step != nil {
		doc["stepId"] = item.Step.ID
		doc["stepTitle"] = item.Step.Title
		doc["stepIndex"] = item.Step.Index
		doc["prerequisites"] = stringsToInterfaces(item.Step.Prerequisites)
	}

	return doc
}

func stringsToInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
