package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/SAP-F-2025/content-import-service/internal/models"
	"github.com/SAP-F-2025/content-import-service/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type JobStorePostgreSQL struct {
	db *gorm.DB
}

func NewJobStorePostgreSQL(db *gorm.DB) repositories.JobStore {
	return &JobStorePostgreSQL{db: db}
}

// Save upserts the whole job row
func (s *JobStorePostgreSQL) Save(ctx context.Context, job *models.BatchJob) error {
	row, err := models.NewImportJob(job)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to save import job %s: %w", job.ID, err)
	}
	return nil
}

func (s *JobStorePostgreSQL) Get(ctx context.Context, id string) (*models.BatchJob, error) {
	var row models.ImportJob
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return row.ToBatchJob()
}

func (s *JobStorePostgreSQL) List(ctx context.Context, filters repositories.JobFilters) ([]*models.BatchJob, error) {
	query := s.db.WithContext(ctx).Model(&models.ImportJob{}).Omit("chunks")

	if filters.UserID != "" {
		query = query.Where("user_id = ?", filters.UserID)
	}
	if len(filters.Statuses) > 0 {
		query = query.Where("status IN ?", filters.Statuses)
	}
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}

	var rows []models.ImportJob
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list import jobs: %w", err)
	}

	jobs := make([]*models.BatchJob, 0, len(rows))
	for i := range rows {
		job, err := rows[i].ToBatchJob()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *JobStorePostgreSQL) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&models.ImportJob{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete import job %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (s *JobStorePostgreSQL) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result := s.db.WithContext(ctx).
		Where("status IN ?", []models.JobStatus{models.JobCompleted, models.JobFailed, models.JobCancelled}).
		Where("completed_at IS NOT NULL AND completed_at < ?", cutoff).
		Delete(&models.ImportJob{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge finished import jobs: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}
