package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/content-import-service/internal/events"
	"github.com/SAP-F-2025/content-import-service/internal/models"
	"github.com/SAP-F-2025/content-import-service/internal/repositories"
	"gorm.io/datatypes"
)

// AuditSink is called at each import lifecycle point. Implementations must
// never fail the caller: errors are logged and dropped.
type AuditSink interface {
	LogImportStarted(ctx context.Context, job *models.BatchJob)
	LogImportPaused(ctx context.Context, job *models.BatchJob)
	LogImportResumed(ctx context.Context, job *models.BatchJob)
	LogImportCompleted(ctx context.Context, job *models.BatchJob)
	LogImportFailed(ctx context.Context, job *models.BatchJob, reason string)
	LogImportCancelled(ctx context.Context, job *models.BatchJob)
	LogRollbackExecuted(ctx context.Context, job *models.BatchJob, result *models.RollbackResult)
	LogValidationPerformed(ctx context.Context, userID, fileName string, result *ValidationResult)
	LogCategoryMapped(ctx context.Context, record *models.MappingRecord)
	LogCategoryCreated(ctx context.Context, userID string, category *models.Category)
}

// auditService writes audit rows and publishes the matching lifecycle event
type auditService struct {
	repo      repositories.AuditRepository
	publisher events.EventPublisher
	logger    *slog.Logger
}

func NewAuditService(repo repositories.AuditRepository, publisher events.EventPublisher, logger *slog.Logger) AuditSink {
	return &auditService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

const (
	auditTargetJob      = "import_job"
	auditTargetCategory = "category"
	auditTargetBackup   = "backup"
)

func jobEventData(job *models.BatchJob) events.JobEventData {
	return events.JobEventData{
		JobID:       job.ID,
		ContentType: string(job.ContentType),
		FileName:    job.FileName,
		Status:      string(job.Status),
		Total:       job.Progress.Total,
		Processed:   job.Progress.Processed,
		Successful:  job.Progress.Successful,
		Failed:      job.Progress.Failed,
		ErrorCount:  len(job.Errors),
	}
}

func (s *auditService) LogImportStarted(ctx context.Context, job *models.BatchJob) {
	s.record(ctx, models.AuditImportStarted, job.UserID, auditTargetJob, job.ID, "medium",
		fmt.Sprintf("Import of %d %s started from %s", job.Progress.Total, job.ContentType, job.FileName),
		map[string]interface{}{"total_chunks": job.ChunkCount(), "format": job.Format, "options": job.Options})
	s.publish(ctx, events.NewImportEvent(events.EventImportStarted, job.UserID, jobEventData(job)))
}

func (s *auditService) LogImportPaused(ctx context.Context, job *models.BatchJob) {
	s.record(ctx, models.AuditImportPaused, job.UserID, auditTargetJob, job.ID, "low",
		fmt.Sprintf("Import paused at chunk %d", job.CurrentChunkIndex), nil)
	s.publish(ctx, events.NewImportEvent(events.EventImportPaused, job.UserID, jobEventData(job)))
}

func (s *auditService) LogImportResumed(ctx context.Context, job *models.BatchJob) {
	s.record(ctx, models.AuditImportResumed, job.UserID, auditTargetJob, job.ID, "low",
		fmt.Sprintf("Import resumed at chunk %d", job.CurrentChunkIndex), nil)
	s.publish(ctx, events.NewImportEvent(events.EventImportResumed, job.UserID, jobEventData(job)))
}

func (s *auditService) LogImportCompleted(ctx context.Context, job *models.BatchJob) {
	s.record(ctx, models.AuditImportCompleted, job.UserID, auditTargetJob, job.ID, "medium",
		fmt.Sprintf("Import completed: %d successful, %d failed", job.Progress.Successful, job.Progress.Failed),
		map[string]interface{}{"progress": job.Progress, "created": len(job.CreatedIDs)})
	s.publish(ctx, events.NewImportEvent(events.EventImportCompleted, job.UserID, jobEventData(job)))
}

func (s *auditService) LogImportFailed(ctx context.Context, job *models.BatchJob, reason string) {
	s.record(ctx, models.AuditImportFailed, job.UserID, auditTargetJob, job.ID, "high",
		fmt.Sprintf("Import failed: %s", reason),
		map[string]interface{}{"progress": job.Progress, "errors": len(job.Errors)})
	s.publish(ctx, events.NewImportEvent(events.EventImportFailed, job.UserID, jobEventData(job)).
		WithMetadata("reason", reason))
}

func (s *auditService) LogImportCancelled(ctx context.Context, job *models.BatchJob) {
	s.record(ctx, models.AuditImportCancelled, job.UserID, auditTargetJob, job.ID, "medium",
		fmt.Sprintf("Import cancelled after %d of %d items", job.Progress.Processed, job.Progress.Total), nil)
	s.publish(ctx, events.NewImportEvent(events.EventImportCancelled, job.UserID, jobEventData(job)))
}

func (s *auditService) LogRollbackExecuted(ctx context.Context, job *models.BatchJob, result *models.RollbackResult) {
	s.record(ctx, models.AuditRollbackExecuted, job.UserID, auditTargetBackup, result.BackupID, "critical",
		fmt.Sprintf("Rollback of import %s: %d deleted, %d restored, %d recreated",
			job.ID, result.Deleted, result.Restored, result.Recreated),
		map[string]interface{}{"job_id": job.ID, "success": result.Success, "errors": result.Errors})
	s.publish(ctx, events.NewImportEvent(events.EventImportRolledBack, job.UserID, events.RollbackEventData{
		JobID:     job.ID,
		BackupID:  result.BackupID,
		Deleted:   result.Deleted,
		Restored:  result.Restored,
		Recreated: result.Recreated,
		Success:   result.Success,
	}))
}

func (s *auditService) LogValidationPerformed(ctx context.Context, userID, fileName string, result *ValidationResult) {
	s.record(ctx, models.AuditValidationPerformed, userID, auditTargetJob, "", "low",
		fmt.Sprintf("Validation of %s: valid=%t, %d errors, %d warnings",
			fileName, result.IsValid, len(result.Errors), len(result.Warnings)),
		map[string]interface{}{"summary": result.Summary})
}

func (s *auditService) LogCategoryMapped(ctx context.Context, record *models.MappingRecord) {
	s.record(ctx, models.AuditCategoryMapped, record.UserID, auditTargetCategory, record.TargetCategoryID, "low",
		fmt.Sprintf("Category %q mapped to %q (%s)", record.OriginalName, record.TargetName, record.Action),
		map[string]interface{}{"confidence": record.Confidence, "mapping_id": record.ID})
	s.publish(ctx, events.NewImportEvent(events.EventCategoryMapped, record.UserID, events.CategoryEventData{
		CategoryID:   record.TargetCategoryID,
		Name:         record.TargetName,
		OriginalName: record.OriginalName,
		Action:       string(record.Action),
		Confidence:   record.Confidence,
	}))
}

func (s *auditService) LogCategoryCreated(ctx context.Context, userID string, category *models.Category) {
	s.record(ctx, models.AuditCategoryCreated, userID, auditTargetCategory, category.ID, "low",
		fmt.Sprintf("Category %q created", category.Name), nil)
	s.publish(ctx, events.NewImportEvent(events.EventCategoryCreated, userID, events.CategoryEventData{
		CategoryID: category.ID,
		Name:       category.Name,
	}))
}

func (s *auditService) record(ctx context.Context, eventType models.AuditEventType, userID, targetType, targetID, level, description string, metadata map[string]interface{}) {
	entry := &models.AuditLog{
		EventType:       eventType,
		UserID:          userID,
		TargetType:      targetType,
		TargetID:        targetID,
		Description:     description,
		ComplianceLevel: level,
		RetentionPeriod: 2555,
		CreatedAt:       time.Now().UTC(),
	}
	if metadata != nil {
		if data, err := json.Marshal(metadata); err == nil {
			entry.Metadata = datatypes.JSON(data)
		}
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Warn("Failed to write audit log",
			"event_type", eventType,
			"target_id", targetID,
			"error", err)
	}
}

func (s *auditService) publish(ctx context.Context, event *events.ImportEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishImportEvent(ctx, event); err != nil {
		s.logger.Warn("Failed to publish import event",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err)
	}
}

// noopAuditSink is used when no sink is configured
type noopAuditSink struct{}

func (noopAuditSink) LogImportStarted(context.Context, *models.BatchJob) {}
func (noopAuditSink) LogImportPaused(context.Context, *models.BatchJob) {}
func (noopAuditSink) LogImportResumed(context.Context, *models.BatchJob) {}
func (noopAuditSink) LogImportCompleted(context.Context, *models.BatchJob) {}
func (noopAuditSink) LogImportFailed(context.Context, *models.BatchJob, string) {}
func (noopAuditSink) LogImportCancelled(context.Context, *models.BatchJob) {}
func (noopAuditSink) LogValidationPerformed(context.Context, string, string, *ValidationResult) {}
func (noopAuditSink) LogCategoryMapped(context.Context, *models.MappingRecord) {}
func (noopAuditSink) LogCategoryCreated(context.Context, string, *models.Category) {}
func (noopAuditSink) LogRollbackExecuted(context.Context, *models.BatchJob, *models.RollbackResult) {}
