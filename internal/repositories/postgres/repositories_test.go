package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	apperrors "github.com/SAP-F-2025/content-import-service/internal/errors"
	"github.com/SAP-F-2025/content-import-service/internal/models"
	"github.com/SAP-F-2025/content-import-service/internal/repositories"
	"github.com/SAP-F-2025/content-import-service/pkg"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection, otherwise every new one opens an empty database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, pkg.Migrate(db))
	return db
}

func TestDocumentStore(t *testing.T) {
	store := NewDocumentStorePostgreSQL(newTestDB(t))
	ctx := context.Background()

	id, err := store.Create(ctx, models.CollectionQuestions, models.Document{
		"questionText": "Le cœur a-t-il quatre cavités ?",
		"categoryName": "Cardiologie",
	})
	require.NoError(t, err)
	_, err = store.Create(ctx, models.CollectionQuestions, models.Document{"questionText": "Autre"})
	require.NoError(t, err)
	_, err = store.Create(ctx, models.CollectionFlashcards, models.Document{"front": "ECG"})
	require.NoError(t, err)

	doc, err := store.FindByID(ctx, models.CollectionQuestions, id)
	require.NoError(t, err)
	assert.Equal(t, id, doc["id"])
	assert.Equal(t, "Cardiologie", doc["categoryName"])

	_, err = store.FindByID(ctx, models.CollectionFlashcards, id)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	found, err := store.Find(ctx, models.CollectionQuestions, models.Document{"categoryName": "Cardiologie"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, id, found[0]["id"])

	all, err := store.Find(ctx, models.CollectionQuestions, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, store.Update(ctx, models.CollectionQuestions, id, models.Document{"categoryName": "Neurologie"}))
	doc, err = store.FindByID(ctx, models.CollectionQuestions, id)
	require.NoError(t, err)
	assert.Equal(t, "Neurologie", doc["categoryName"])
	assert.Equal(t, "Le cœur a-t-il quatre cavités ?", doc["questionText"])

	require.NoError(t, store.Delete(ctx, models.CollectionQuestions, id))
	assert.ErrorIs(t, store.Delete(ctx, models.CollectionQuestions, id), repositories.ErrNotFound)
	assert.ErrorIs(t, store.Update(ctx, models.CollectionQuestions, id, models.Document{}), repositories.ErrNotFound)
}

func TestJobStore(t *testing.T) {
	store := NewJobStorePostgreSQL(newTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	job := &models.BatchJob{
		ID:          uuid.NewString(),
		UserID:      "user-1",
		FileName:    "import.json",
		Format:      models.FormatJSON,
		ContentType: models.ContentQuestions,
		Status:      models.JobProcessing,
		Progress:    models.JobProgress{Total: 3, Processed: 1, Successful: 1},
		Options:     models.DefaultBatchOptions(),
		Chunks: [][]models.ImportItem{
			{{Index: 0, Kind: models.ContentQuestions, Question: &models.QuestionItem{QuestionText: "Q1"}}},
			{{Index: 1, Kind: models.ContentQuestions, Question: &models.QuestionItem{QuestionText: "Q2"}}},
		},
		TotalChunks:       2,
		CurrentChunkIndex: 1,
		Results:           []models.ItemResult{{ItemIndex: 0, Status: models.ItemSuccess, EntityID: "e1"}},
		Errors: []apperrors.ImportError{
			apperrors.NewImportError(apperrors.TypeMapping, apperrors.SeverityMajor, "Catégorie introuvable: X").AtItem(0),
		},
		CreatedIDs: []models.CreatedEntity{{Collection: models.CollectionQuestions, ID: "e1"}},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, store.Save(ctx, job))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobProcessing, got.Status)
	assert.Equal(t, 1, got.CurrentChunkIndex)
	require.Len(t, got.Chunks, 2)
	assert.Equal(t, "Q2", got.Chunks[1][0].Question.QuestionText)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, 0, *got.Errors[0].ItemIndex)
	assert.Equal(t, 1, got.Progress.Successful)
	assert.True(t, got.Options.ErrorRecovery.ContinueOnError)

	// saving again upserts
	completed := now.Add(-2 * time.Hour)
	job.Status = models.JobCompleted
	job.CompletedAt = &completed
	require.NoError(t, store.Save(ctx, job))

	other := &models.BatchJob{ID: uuid.NewString(), UserID: "user-2", Status: models.JobQueued, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.Save(ctx, other))

	jobs, err := store.List(ctx, repositories.JobFilters{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobCompleted, jobs[0].Status)
	assert.Empty(t, jobs[0].Chunks)

	jobs, err = store.List(ctx, repositories.JobFilters{Statuses: []models.JobStatus{models.JobQueued}})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, other.ID, jobs[0].ID)

	removed, err := store.DeleteFinishedBefore(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Get(ctx, job.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, job.ID), repositories.ErrNotFound)
	assert.NoError(t, store.Delete(ctx, other.ID))
}

func TestBackupRepository(t *testing.T) {
	repo := NewBackupPostgreSQL(newTestDB(t))
	ctx := context.Background()

	snapshot := &models.BackupSnapshot{
		ID:                  uuid.NewString(),
		JobID:               uuid.NewString(),
		UserID:              "user-1",
		ImportType:          models.ContentQuestions,
		AffectedCollections: []string{models.CollectionQuestions},
		Status:              models.BackupActive,
		CreatedAt:           time.Now().UTC(),
	}
	require.NoError(t, repo.CreateSnapshot(ctx, snapshot))

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.AddEntry(ctx, &models.BackupEntry{
			BackupID:   snapshot.ID,
			Collection: models.CollectionQuestions,
			EntityID:   id,
			Operation:  models.OperationCreate,
		}))
	}

	entries, err := repo.ListEntries(ctx, snapshot.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{entries[0].EntityID, entries[1].EntityID, entries[2].EntityID})

	require.NoError(t, repo.MarkEntryReverted(ctx, entries[1].ID))
	require.NoError(t, repo.MarkRolledBack(ctx, snapshot.ID, time.Now().UTC()))

	got, err := repo.GetSnapshotByJob(ctx, snapshot.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.BackupRolledBack, got.Status)
	assert.NotNil(t, got.RolledBackAt)
	assert.Equal(t, []string{models.CollectionQuestions}, []string(got.AffectedCollections))

	entries, err = repo.ListEntries(ctx, snapshot.ID)
	require.NoError(t, err)
	assert.True(t, entries[1].Reverted)
	assert.False(t, entries[0].Reverted)

	_, err = repo.GetSnapshot(ctx, uuid.NewString())
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestMappingHistoryAndAudit(t *testing.T) {
	db := newTestDB(t)
	history := NewMappingHistoryPostgreSQL(db)
	audit := NewAuditPostgreSQL(db)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, target := range []string{"Cardiologie", "Neurologie"} {
		require.NoError(t, history.Append(ctx, &models.MappingRecord{
			ID:           uuid.NewString(),
			UserID:       "user-1",
			OriginalName: "Cardio",
			NameKey:      "cardio",
			TargetName:   target,
			Confidence:   0.9,
			Action:       models.ActionMap,
			CreatedAt:    base.Add(time.Duration(i) * time.Second),
		}))
	}

	latest, err := history.FindLatest(ctx, "user-1", "cardio")
	require.NoError(t, err)
	assert.Equal(t, "Neurologie", latest.TargetName)

	_, err = history.FindLatest(ctx, "user-2", "cardio")
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	records, err := history.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	require.NoError(t, audit.Create(ctx, &models.AuditLog{
		EventType:   models.AuditImportStarted,
		UserID:      "user-1",
		TargetType:  "import_job",
		TargetID:    "job-1",
		Description: "Import started",
		CreatedAt:   base,
	}))
	logs, err := audit.List(ctx, repositories.AuditFilters{TargetID: "job-1"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.AuditImportStarted, logs[0].EventType)
}
