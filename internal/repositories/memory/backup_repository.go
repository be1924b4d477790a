package memory

import (
	"context"
	"sync"
	"time"

	"github.com/SAP-F-2025/content-import-service/internal/models"
	"github.com/SAP-F-2025/content-import-service/internal/repositories"
)

type BackupRepository struct {
	mu        sync.RWMutex
	snapshots map[string]*models.BackupSnapshot
	byJob     map[string]string
	entries   map[string][]models.BackupEntry
	nextEntry uint
}

func NewBackupRepository() *BackupRepository {
	return &BackupRepository{
		snapshots: make(map[string]*models.BackupSnapshot),
		byJob:     make(map[string]string),
		entries:   make(map[string][]models.BackupEntry),
	}
}

var _ repositories.BackupRepository = (*BackupRepository)(nil)

func (r *BackupRepository) CreateSnapshot(ctx context.Context, snapshot *models.BackupSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *snapshot
	c.Entries = nil
	r.snapshots[snapshot.ID] = &c
	r.byJob[snapshot.JobID] = snapshot.ID
	return nil
}

func (r *BackupRepository) GetSnapshot(ctx context.Context, id string) (*models.BackupSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot, ok := r.snapshots[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := *snapshot
	c.Entries = append([]models.BackupEntry(nil), r.entries[id]...)
	return &c, nil
}

func (r *BackupRepository) GetSnapshotByJob(ctx context.Context, jobID string) (*models.BackupSnapshot, error) {
	r.mu.RLock()
	id, ok := r.byJob[jobID]
	r.mu.RUnlock()
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return r.GetSnapshot(ctx, id)
}

func (r *BackupRepository) AddEntry(ctx context.Context, entry *models.BackupEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.snapshots[entry.BackupID]; !ok {
		return repositories.ErrNotFound
	}
	r.nextEntry++
	entry.ID = r.nextEntry
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	r.entries[entry.BackupID] = append(r.entries[entry.BackupID], *entry)
	return nil
}

func (r *BackupRepository) ListEntries(ctx context.Context, backupID string) ([]models.BackupEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.BackupEntry(nil), r.entries[backupID]...), nil
}

func (r *BackupRepository) MarkEntryReverted(ctx context.Context, entryID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for backupID, entries := range r.entries {
		for i := range entries {
			if entries[i].ID == entryID {
				r.entries[backupID][i].Reverted = true
				return nil
			}
		}
	}
	return repositories.ErrNotFound
}

func (r *BackupRepository) MarkRolledBack(ctx context.Context, backupID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot, ok := r.snapshots[backupID]
	if !ok {
		return repositories.ErrNotFound
	}
	snapshot.Status = models.BackupRolledBack
	snapshot.RolledBackAt = &at
	return nil
}
