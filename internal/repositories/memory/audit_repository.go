package memory

import (
	"context"
	"sync"
	"time"

	"github.com/SAP-F-2025/content-import-service/internal/models"
	"github.com/SAP-F-2025/content-import-service/internal/repositories"
)

type AuditRepository struct {
	mu   sync.RWMutex
	logs []*models.AuditLog
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

var _ repositories.AuditRepository = (*AuditRepository)(nil)

func (r *AuditRepository) Create(ctx context.Context, log *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	log.ID = uint(len(r.logs) + 1)
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	c := *log
	r.logs = append(r.logs, &c)
	return nil
}

// List returns matching entries, newest first
func (r *AuditRepository) List(ctx context.Context, filters repositories.AuditFilters) ([]*models.AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var logs []*models.AuditLog
	for i := len(r.logs) - 1; i >= 0; i-- {
		l := r.logs[i]
		if filters.UserID != "" && l.UserID != filters.UserID {
			continue
		}
		if filters.TargetID != "" && l.TargetID != filters.TargetID {
			continue
		}
		if filters.EventType != nil && l.EventType != *filters.EventType {
			continue
		}
		c := *l
		logs = append(logs, &c)
		if filters.Limit > 0 && len(logs) == filters.Limit {
			break
		}
	}
	return logs, nil
}
