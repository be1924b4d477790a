package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/SAP-F-2025/content-import-service/internal/models"
	"github.com/SAP-F-2025/content-import-service/internal/repositories"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix       = "import:job:"
	allJobsKey      = "import:jobs"
	userJobsPrefix  = "import:jobs:user:"
	finishedJobsKey = "import:jobs:finished"
)

func jobKey(id string) string {
	return keyPrefix + id
}

func userJobsKey(userID string) string {
	return userJobsPrefix + userID
}

// JobStore keeps each job as one JSON value, indexed by creation time in
// sorted sets. Terminal jobs expire after the retention window.
type JobStore struct {
	client    *redis.Client
	retention time.Duration
	logger    *zap.Logger
}

func NewJobStore(client *redis.Client, retention time.Duration, logger *zap.Logger) *JobStore {
	return &JobStore{
		client:    client,
		retention: retention,
		logger:    logger,
	}
}

var _ repositories.JobStore = (*JobStore)(nil)

func (s *JobStore) Save(ctx context.Context, job *models.BatchJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode import job %s: %w", job.ID, err)
	}

	var ttl time.Duration
	if job.Status.IsTerminal() && s.retention > 0 {
		// slack over the retention so the cleanup loop sees the job first
		ttl = 2 * s.retention
	}
	created := redis.Z{Score: float64(job.CreatedAt.UnixNano()), Member: job.ID}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, jobKey(job.ID), data, ttl)
		pipe.ZAdd(ctx, allJobsKey, created)
		pipe.ZAdd(ctx, userJobsKey(job.UserID), created)
		if job.Status.IsTerminal() && job.CompletedAt != nil {
			pipe.ZAdd(ctx, finishedJobsKey, redis.Z{Score: float64(job.CompletedAt.UnixNano()), Member: job.ID})
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("import job save failed", zap.String("job_id", job.ID), zap.Error(err))
		return fmt.Errorf("failed to save import job %s: %w", job.ID, err)
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*models.BatchJob, error) {
	data, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get import job %s: %w", id, err)
	}
	return decodeJob(data)
}

func decodeJob(data []byte) (*models.BatchJob, error) {
	var job models.BatchJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode import job: %w", err)
	}
	return &job, nil
}

// List walks the index newest first. Index members whose value expired are
// pruned on the way.
func (s *JobStore) List(ctx context.Context, filters repositories.JobFilters) ([]*models.BatchJob, error) {
	index := allJobsKey
	if filters.UserID != "" {
		index = userJobsKey(filters.UserID)
	}

	ids, err := s.client.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list import jobs: %w", err)
	}
	if len(ids) == 0 {
		return []*models.BatchJob{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = jobKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load import jobs: %w", err)
	}

	jobs := make([]*models.BatchJob, 0, len(values))
	var stale []interface{}
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		job, err := decodeJob([]byte(raw))
		if err != nil {
			return nil, err
		}
		if len(filters.Statuses) > 0 && !hasStatus(filters.Statuses, job.Status) {
			continue
		}
		jobs = append(jobs, job.Summary())
		if filters.Limit > 0 && len(jobs) == filters.Limit {
			break
		}
	}

	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, index, stale...).Err(); err != nil {
			s.logger.Debug("stale job index cleanup failed", zap.String("index", index), zap.Error(err))
		}
	}
	return jobs, nil
}

func hasStatus(statuses []models.JobStatus, status models.JobStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (s *JobStore) Delete(ctx context.Context, id string) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.remove(ctx, job.ID, job.UserID)
}

func (s *JobStore) remove(ctx context.Context, id, userID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, jobKey(id))
		pipe.ZRem(ctx, allJobsKey, id)
		pipe.ZRem(ctx, finishedJobsKey, id)
		if userID != "" {
			pipe.ZRem(ctx, userJobsKey(userID), id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete import job %s: %w", id, err)
	}
	return nil
}

func (s *JobStore) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := s.client.ZRangeByScore(ctx, finishedJobsKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixNano(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to query finished import jobs: %w", err)
	}

	removed := 0
	for _, id := range ids {
		userID := ""
		job, err := s.Get(ctx, id)
		switch {
		case err == nil:
			userID = job.UserID
			removed++
		case errors.Is(err, repositories.ErrNotFound):
			// value already expired, only the indexes remain
		default:
			return removed, err
		}
		if err := s.remove(ctx, id, userID); err != nil {
			return removed, err
		}
	}

	if removed > 0 {
		s.logger.Info("finished import jobs purged", zap.Int("removed", removed), zap.Time("cutoff", cutoff))
	}
	return removed, nil
}
