package memory

import (
	"context"
	"sync"

	"github.com/SAP-F-2025/content-import-service/internal/models"
	"github.com/SAP-F-2025/content-import-service/internal/repositories"
)

// MappingHistoryRepository is an append-only in-memory ledger
type MappingHistoryRepository struct {
	mu      sync.RWMutex
	records []*models.MappingRecord
}

func NewMappingHistoryRepository() *MappingHistoryRepository {
	return &MappingHistoryRepository{}
}

var _ repositories.MappingHistoryRepository = (*MappingHistoryRepository)(nil)

func (r *MappingHistoryRepository) Append(ctx context.Context, record *models.MappingRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *record
	r.records = append(r.records, &c)
	return nil
}

func (r *MappingHistoryRepository) FindLatest(ctx context.Context, userID, nameKey string) (*models.MappingRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.records) - 1; i >= 0; i-- {
		rec := r.records[i]
		if rec.UserID == userID && rec.NameKey == nameKey {
			c := *rec
			return &c, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *MappingHistoryRepository) List(ctx context.Context, userID string) ([]*models.MappingRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.MappingRecord
	for _, rec := range r.records {
		if userID != "" && rec.UserID != userID {
			continue
		}
		c := *rec
		out = append(out, &c)
	}
	return out, nil
}
