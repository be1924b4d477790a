package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SAP-F-2025/content-import-service/internal/models"
	"github.com/SAP-F-2025/content-import-service/internal/repositories"
)

// JobStore keeps batch jobs in a map. State is lost on restart.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*models.BatchJob
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*models.BatchJob)}
}

var _ repositories.JobStore = (*JobStore)(nil)

func (s *JobStore) Save(ctx context.Context, job *models.BatchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*models.BatchJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return job.Clone(), nil
}

func (s *JobStore) List(ctx context.Context, filters repositories.JobFilters) ([]*models.BatchJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var jobs []*models.BatchJob
	for _, job := range s.jobs {
		if filters.UserID != "" && job.UserID != filters.UserID {
			continue
		}
		if len(filters.Statuses) > 0 && !containsStatus(filters.Statuses, job.Status) {
			continue
		}
		jobs = append(jobs, job.Summary())
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if filters.Limit > 0 && len(jobs) > filters.Limit {
		jobs = jobs[:filters.Limit]
	}

	return jobs, nil
}

func (s *JobStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

func (s *JobStore) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		if job.Status.IsTerminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}

func containsStatus(statuses []models.JobStatus, status models.JobStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
