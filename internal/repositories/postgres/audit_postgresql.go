package postgres

import (
	"context"

	"github.com/SAP-F-2025/content-import-service/internal/models"
	"github.com/SAP-F-2025/content-import-service/internal/repositories"
	"gorm.io/gorm"
)

type AuditPostgreSQL struct {
	db *gorm.DB
}

func NewAuditPostgreSQL(db *gorm.DB) repositories.AuditRepository {
	return &AuditPostgreSQL{db: db}
}

func (a *AuditPostgreSQL) Create(ctx context.Context, log *models.AuditLog) error {
	return a.db.WithContext(ctx).Create(log).Error
}

func (a *AuditPostgreSQL) List(ctx context.Context, filters repositories.AuditFilters) ([]*models.AuditLog, error) {
	query := a.db.WithContext(ctx).Model(&models.AuditLog{})

	if filters.UserID != "" {
		query = query.Where("user_id = ?", filters.UserID)
	}
	if filters.TargetID != "" {
		query = query.Where("target_id = ?", filters.TargetID)
	}
	if filters.EventType != nil {
		query = query.Where("event_type = ?", *filters.EventType)
	}
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}

	var logs []*models.AuditLog
	if err := query.Order("created_at DESC, id DESC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
