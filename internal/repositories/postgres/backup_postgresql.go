package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/SAP-F-2025/content-import-service/internal/models"
	"github.com/SAP-F-2025/content-import-service/internal/repositories"
	"gorm.io/gorm"
)

type BackupPostgreSQL struct {
	db *gorm.DB
}

func NewBackupPostgreSQL(db *gorm.DB) repositories.BackupRepository {
	return &BackupPostgreSQL{db: db}
}

func (b *BackupPostgreSQL) CreateSnapshot(ctx context.Context, snapshot *models.BackupSnapshot) error {
	if err := b.db.WithContext(ctx).Omit("Entries").Create(snapshot).Error; err != nil {
		return fmt.Errorf("failed to create backup snapshot: %w", err)
	}
	return nil
}

func (b *BackupPostgreSQL) GetSnapshot(ctx context.Context, id string) (*models.BackupSnapshot, error) {
	var snapshot models.BackupSnapshot
	err := b.db.WithContext(ctx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		First(&snapshot, "id = ?", id).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &snapshot, nil
}

func (b *BackupPostgreSQL) GetSnapshotByJob(ctx context.Context, jobID string) (*models.BackupSnapshot, error) {
	var snapshot models.BackupSnapshot
	err := b.db.WithContext(ctx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		First(&snapshot, "job_id = ?", jobID).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &snapshot, nil
}

func (b *BackupPostgreSQL) AddEntry(ctx context.Context, entry *models.BackupEntry) error {
	if err := b.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to record backup entry: %w", err)
	}
	return nil
}

func (b *BackupPostgreSQL) ListEntries(ctx context.Context, backupID string) ([]models.BackupEntry, error) {
	var entries []models.BackupEntry
	err := b.db.WithContext(ctx).
		Where("backup_id = ?", backupID).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list backup entries: %w", err)
	}
	return entries, nil
}

func (b *BackupPostgreSQL) MarkEntryReverted(ctx context.Context, entryID uint) error {
	result := b.db.WithContext(ctx).
		Model(&models.BackupEntry{}).
		Where("id = ?", entryID).
		Update("reverted", true)
	if result.Error != nil {
		return fmt.Errorf("failed to mark backup entry %d reverted: %w", entryID, result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (b *BackupPostgreSQL) MarkRolledBack(ctx context.Context, backupID string, at time.Time) error {
	result := b.db.WithContext(ctx).
		Model(&models.BackupSnapshot{}).
		Where("id = ?", backupID).
		Updates(map[string]interface{}{
			"status":         models.BackupRolledBack,
			"rolled_back_at": at,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark backup %s rolled back: %w", backupID, result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}
