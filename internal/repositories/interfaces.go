package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/SAP-F-2025/content-import-service/internal/models"
)

// ErrNotFound is returned by every store when the requested record does not exist
var ErrNotFound = errors.New("record not found")

// ===== STORAGE COLLABORATOR =====

// DocumentStore is the narrow CRUD contract the import core depends on.
// Queries match top-level keys by equality.
type DocumentStore interface {
	Create(ctx context.Context, collection string, data models.Document) (string, error)
	Update(ctx context.Context, collection, id string, data models.Document) error
	Delete(ctx context.Context, collection, id string) error
	Find(ctx context.Context, collection string, query models.Document) ([]models.Document, error)
	FindByID(ctx context.Context, collection, id string) (models.Document, error)
}

// ===== JOB STORE =====

type JobFilters struct {
	UserID   string             `json:"user_id"`
	Statuses []models.JobStatus `json:"statuses"`
	Limit    int                `json:"limit"`
}

// JobStore persists batch jobs between chunks and after completion
type JobStore interface {
	Save(ctx context.Context, job *models.BatchJob) error
	Get(ctx context.Context, id string) (*models.BatchJob, error)
	List(ctx context.Context, filters JobFilters) ([]*models.BatchJob, error)
	Delete(ctx context.Context, id string) error
	// DeleteFinishedBefore removes terminal jobs completed before cutoff
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// ===== BACKUP =====

type BackupRepository interface {
	CreateSnapshot(ctx context.Context, snapshot *models.BackupSnapshot) error
	GetSnapshot(ctx context.Context, id string) (*models.BackupSnapshot, error)
	GetSnapshotByJob(ctx context.Context, jobID string) (*models.BackupSnapshot, error)
	AddEntry(ctx context.Context, entry *models.BackupEntry) error
	// ListEntries returns entries in recording order
	ListEntries(ctx context.Context, backupID string) ([]models.BackupEntry, error)
	MarkEntryReverted(ctx context.Context, entryID uint) error
	MarkRolledBack(ctx context.Context, backupID string, at time.Time) error
}

// ===== AUDIT =====

type AuditFilters struct {
	UserID    string                 `json:"user_id"`
	TargetID  string                 `json:"target_id"`
	EventType *models.AuditEventType `json:"event_type"`
	Limit     int                    `json:"limit"`
}

type AuditRepository interface {
	Create(ctx context.Context, log *models.AuditLog) error
	List(ctx context.Context, filters AuditFilters) ([]*models.AuditLog, error)
}

// ===== CATEGORY MAPPING LEDGER =====

type MappingHistoryRepository interface {
	Append(ctx context.Context, record *models.MappingRecord) error
	// FindLatest returns the most recent record of a user for a name key
	FindLatest(ctx context.Context, userID, nameKey string) (*models.MappingRecord, error)
	List(ctx context.Context, userID string) ([]*models.MappingRecord, error)
}
