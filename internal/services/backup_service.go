package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/content-import-service/internal/models"
	"github.com/SAP-F-2025/content-import-service/internal/repositories"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// BackupSink records the storage mutations of a job and reverts them on demand
type BackupSink interface {
	CreatePreImportBackup(ctx context.Context, jobID, userID string, importType models.ContentType, fileName string, collections []string) (string, error)
	BackupEntity(ctx context.Context, backupID, collection, entityID string, operation models.BackupOperation, currentData, originalData models.Document) error
	ExecuteRollback(ctx context.Context, jobID, userID string, options models.RollbackOptions) (*models.RollbackResult, error)
	ValidateRollbackPossible(ctx context.Context, jobID string) (*models.RollbackCheck, error)
	// TrackCreated adds a create entry for every entity the job reports as
	// created that the backup does not know yet, and returns how many it added
	TrackCreated(ctx context.Context, jobID string, created []models.CreatedEntity) (int, error)
}

type backupService struct {
	repo   repositories.BackupRepository
	store  repositories.DocumentStore
	logger *slog.Logger
}

func NewBackupService(repo repositories.BackupRepository, store repositories.DocumentStore, logger *slog.Logger) BackupSink {
	return &backupService{
		repo:   repo,
		store:  store,
		logger: logger,
	}
}

func (s *backupService) CreatePreImportBackup(ctx context.Context, jobID, userID string, importType models.ContentType, fileName string, collections []string) (string, error) {
	snapshot := &models.BackupSnapshot{
		ID:                  uuid.NewString(),
		JobID:               jobID,
		UserID:              userID,
		ImportType:          importType,
		FileName:            fileName,
		AffectedCollections: collections,
		Status:              models.BackupActive,
		CreatedAt:           time.Now().UTC(),
	}

	if err := s.repo.CreateSnapshot(ctx, snapshot); err != nil {
		return "", fmt.Errorf("failed to create backup for job %s: %w", jobID, err)
	}

	s.logger.Info("Pre-import backup created", "backup_id", snapshot.ID, "job_id", jobID)
	return snapshot.ID, nil
}

func (s *backupService) BackupEntity(ctx context.Context, backupID, collection, entityID string, operation models.BackupOperation, currentData, originalData models.Document) error {
	entry := &models.BackupEntry{
		BackupID:   backupID,
		Collection: collection,
		EntityID:   entityID,
		Operation:  operation,
		CreatedAt:  time.Now().UTC(),
	}

	var err error
	if entry.CurrentData, err = toJSON(currentData); err != nil {
		return err
	}
	if entry.OriginalData, err = toJSON(originalData); err != nil {
		return err
	}

	if err := s.repo.AddEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to record backup entry for %s/%s: %w", collection, entityID, err)
	}
	return nil
}

func toJSON(doc models.Document) (datatypes.JSON, error) {
	if doc == nil {
		return nil, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode backup data: %w", err)
	}
	return datatypes.JSON(data), nil
}

func fromJSON(data datatypes.JSON) (models.Document, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode backup data: %w", err)
	}
	return doc, nil
}

func (s *backupService) snapshotForJob(ctx context.Context, jobID string) (*models.BackupSnapshot, error) {
	snapshot, err := s.repo.GetSnapshotByJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrBackupNotFound
		}
		return nil, fmt.Errorf("failed to load backup for job %s: %w", jobID, err)
	}
	return snapshot, nil
}

// ExecuteRollback reverts the recorded entries newest first. Reverted entries
// are marked so that a retry never touches them twice.
func (s *backupService) ExecuteRollback(ctx context.Context, jobID, userID string, options models.RollbackOptions) (*models.RollbackResult, error) {
	snapshot, err := s.snapshotForJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if userID != "" && snapshot.UserID != userID {
		return nil, ErrJobAccessDenied
	}

	result := &models.RollbackResult{
		BackupID: snapshot.ID,
		JobID:    jobID,
		DryRun:   options.DryRun,
		Errors:   []string{},
	}

	if snapshot.Status == models.BackupRolledBack {
		result.Success = true
		result.AlreadyRolledBack = true
		return result, nil
	}

	entries, err := s.repo.ListEntries(ctx, snapshot.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list backup entries: %w", err)
	}

	filter := make(map[string]bool)
	for _, c := range options.Collections {
		filter[c] = true
	}

	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if entry.Reverted || (len(filter) > 0 && !filter[entry.Collection]) {
			continue
		}

		if options.DryRun {
			countOperation(result, entry.Operation)
			continue
		}

		if err := s.revert(ctx, entry); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s %s/%s: %v", entry.Operation, entry.Collection, entry.EntityID, err))
			continue
		}
		countOperation(result, entry.Operation)

		if err := s.repo.MarkEntryReverted(ctx, entry.ID); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("failed to mark entry %d reverted: %v", entry.ID, err))
		}
	}

	result.Success = len(result.Errors) == 0
	if result.Success && !options.DryRun && len(filter) == 0 {
		if err := s.repo.MarkRolledBack(ctx, snapshot.ID, time.Now().UTC()); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to mark backup rolled back: %v", err))
			result.Success = false
		}
	}

	s.logger.Info("Rollback executed",
		"job_id", jobID,
		"backup_id", snapshot.ID,
		"dry_run", options.DryRun,
		"deleted", result.Deleted,
		"restored", result.Restored,
		"recreated", result.Recreated,
		"errors", len(result.Errors),
		"reason", options.Reason)

	return result, nil
}

func (s *backupService) TrackCreated(ctx context.Context, jobID string, created []models.CreatedEntity) (int, error) {
	if len(created) == 0 {
		return 0, nil
	}

	snapshot, err := s.snapshotForJob(ctx, jobID)
	if err != nil {
		return 0, err
	}
	if snapshot.Status == models.BackupRolledBack {
		return 0, nil
	}

	entries, err := s.repo.ListEntries(ctx, snapshot.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list backup entries: %w", err)
	}
	known := make(map[string]bool, len(entries))
	for _, entry := range entries {
		known[entry.Collection+"/"+entry.EntityID] = true
	}

	added := 0
	for _, entity := range created {
		key := entity.Collection + "/" + entity.ID
		if known[key] {
			continue
		}
		if err := s.BackupEntity(ctx, snapshot.ID, entity.Collection, entity.ID, models.OperationCreate, nil, nil); err != nil {
			return added, err
		}
		known[key] = true
		added++
	}

	if added > 0 {
		s.logger.Warn("Backup entries recovered from created ids", "job_id", jobID, "backup_id", snapshot.ID, "added", added)
	}
	return added, nil
}

func countOperation(result *models.RollbackResult, op models.BackupOperation) {
	switch op {
	case models.OperationCreate:
		result.Deleted++
	case models.OperationUpdate:
		result.Restored++
	case models.OperationDelete:
		result.Recreated++
	}
}

func (s *backupService) revert(ctx context.Context, entry models.BackupEntry) error {
	switch entry.Operation {
	case models.OperationCreate:
		err := s.store.Delete(ctx, entry.Collection, entry.EntityID)
		// already gone counts as undone
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return err
		}
		return nil

	case models.OperationUpdate:
		original, err := fromJSON(entry.OriginalData)
		if err != nil {
			return err
		}
		if original == nil {
			return fmt.Errorf("no original data recorded")
		}
		return s.store.Update(ctx, entry.Collection, entry.EntityID, original)

	case models.OperationDelete:
		original, err := fromJSON(entry.OriginalData)
		if err != nil {
			return err
		}
		if original == nil {
			return fmt.Errorf("no original data recorded")
		}
		delete(original, "id")
		_, err = s.store.Create(ctx, entry.Collection, original)
		return err
	}
	return fmt.Errorf("unknown backup operation %q", entry.Operation)
}

func (s *backupService) ValidateRollbackPossible(ctx context.Context, jobID string) (*models.RollbackCheck, error) {
	check := &models.RollbackCheck{Reasons: []string{}, Warnings: []string{}}

	snapshot, err := s.snapshotForJob(ctx, jobID)
	if errors.Is(err, ErrBackupNotFound) {
		check.Reasons = append(check.Reasons, "Aucune sauvegarde n'a été créée pour cet import")
		return check, nil
	}
	if err != nil {
		return nil, err
	}

	if snapshot.Status == models.BackupRolledBack {
		check.Reasons = append(check.Reasons, "Cet import a déjà été annulé")
		return check, nil
	}

	entries, err := s.repo.ListEntries(ctx, snapshot.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list backup entries: %w", err)
	}

	pending, missing := 0, 0
	for _, entry := range entries {
		if entry.Reverted {
			continue
		}
		pending++
		if entry.Operation != models.OperationCreate {
			if len(entry.OriginalData) == 0 {
				check.Warnings = append(check.Warnings,
					fmt.Sprintf("Données d'origine absentes pour %s/%s", entry.Collection, entry.EntityID))
			}
			continue
		}
		if _, err := s.store.FindByID(ctx, entry.Collection, entry.EntityID); errors.Is(err, repositories.ErrNotFound) {
			missing++
		}
	}

	if pending == 0 {
		check.Warnings = append(check.Warnings, "Aucune modification à annuler")
	}
	if missing > 0 {
		check.Warnings = append(check.Warnings,
			fmt.Sprintf("%d élément(s) créé(s) ont déjà été supprimés", missing))
	}

	check.Possible = true
	return check, nil
}
