package postgres

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/content-import-service/internal/models"
	"github.com/SAP-F-2025/content-import-service/internal/repositories"
	"gorm.io/gorm"
)

type MappingHistoryPostgreSQL struct {
	db *gorm.DB
}

func NewMappingHistoryPostgreSQL(db *gorm.DB) repositories.MappingHistoryRepository {
	return &MappingHistoryPostgreSQL{db: db}
}

func (m *MappingHistoryPostgreSQL) Append(ctx context.Context, record *models.MappingRecord) error {
	if err := m.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to append mapping record: %w", err)
	}
	return nil
}

func (m *MappingHistoryPostgreSQL) FindLatest(ctx context.Context, userID, nameKey string) (*models.MappingRecord, error) {
	var record models.MappingRecord
	err := m.db.WithContext(ctx).
		Where("user_id = ? AND name_key = ?", userID, nameKey).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &record, nil
}

func (m *MappingHistoryPostgreSQL) List(ctx context.Context, userID string) ([]*models.MappingRecord, error) {
	query := m.db.WithContext(ctx).Model(&models.MappingRecord{})
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}

	var records []*models.MappingRecord
	if err := query.Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list mapping records: %w", err)
	}
	return records, nil
}
