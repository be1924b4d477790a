package models

import (
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/SAP-F-2025/content-import-service/internal/errors"
	"gorm.io/datatypes"
)

// ImportJob is the persisted row of a BatchJob
type ImportJob struct {
	ID     string `json:"id" gorm:"primaryKey;size:36"` // UUID
	UserID string `json:"user_id" gorm:"not null;index;size:255"`

	// File info
	FileName    string       `json:"file_name" gorm:"not null;size:255"`
	FileType    ImportFormat `json:"file_type" gorm:"not null;size:20"` // json, csv, xlsx
	ContentType ContentType  `json:"content_type" gorm:"not null;size:32"`

	// Job status
	Status            JobStatus `json:"status" gorm:"default:queued;index;size:20"`
	CurrentChunkIndex int       `json:"current_chunk_index"`
	TotalChunks       int       `json:"total_chunks"`

	// Processing info
	TotalRows     int `json:"total_rows"`
	ProcessedRows int `json:"processed_rows"`
	SuccessCount  int `json:"success_count"`
	ErrorCount    int `json:"error_count"`
	SkippedCount  int `json:"skipped_count"`

	// Payload
	Options    datatypes.JSON `json:"options"`     // BatchOptions
	Chunks     datatypes.JSON `json:"chunks"`      // [][]ImportItem
	Results    datatypes.JSON `json:"results"`     // []ItemResult
	Errors     datatypes.JSON `json:"errors"`      // []ImportError
	CreatedIDs datatypes.JSON `json:"created_ids"` // []CreatedEntity

	BackupID   string `json:"backup_id" gorm:"size:36"`
	RolledBack bool   `json:"rolled_back"`

	// Timestamps
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at" gorm:"index"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewImportJob flattens a BatchJob into its persisted row
func NewImportJob(job *BatchJob) (*ImportJob, error) {
	row := &ImportJob{
		ID:                job.ID,
		UserID:            job.UserID,
		FileName:          job.FileName,
		FileType:          job.Format,
		ContentType:       job.ContentType,
		Status:            job.Status,
		CurrentChunkIndex: job.CurrentChunkIndex,
		TotalChunks:       job.ChunkCount(),
		TotalRows:         job.Progress.Total,
		ProcessedRows:     job.Progress.Processed,
		SuccessCount:      job.Progress.Successful,
		ErrorCount:        job.Progress.Failed,
		SkippedCount:      job.Progress.Skipped,
		BackupID:          job.BackupID,
		RolledBack:        job.RolledBack,
		StartedAt:         job.StartedAt,
		CompletedAt:       job.CompletedAt,
		CreatedAt:         job.CreatedAt,
		UpdatedAt:         job.UpdatedAt,
	}

	fields := []struct {
		dst *datatypes.JSON
		src interface{}
	}{
		{&row.Options, job.Options},
		{&row.Chunks, job.Chunks},
		{&row.Results, job.Results},
		{&row.Errors, job.Errors},
		{&row.CreatedIDs, job.CreatedIDs},
	}
	for _, f := range fields {
		data, err := json.Marshal(f.src)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal import job %s: %w", job.ID, err)
		}
		*f.dst = datatypes.JSON(data)
	}

	return row, nil
}

// ToBatchJob restores the in-memory job from its row
func (r *ImportJob) ToBatchJob() (*BatchJob, error) {
	job := &BatchJob{
		ID:                r.ID,
		UserID:            r.UserID,
		FileName:          r.FileName,
		Format:            r.FileType,
		ContentType:       r.ContentType,
		Status:            r.Status,
		CurrentChunkIndex: r.CurrentChunkIndex,
		TotalChunks:       r.TotalChunks,
		BackupID:          r.BackupID,
		RolledBack:        r.RolledBack,
		StartedAt:         r.StartedAt,
		CompletedAt:       r.CompletedAt,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	job.Progress.Total = r.TotalRows

	fields := []struct {
		src datatypes.JSON
		dst interface{}
	}{
		{r.Options, &job.Options},
		{r.Chunks, &job.Chunks},
		{r.Results, &job.Results},
		{r.Errors, &job.Errors},
		{r.CreatedIDs, &job.CreatedIDs},
	}
	for _, f := range fields {
		if len(f.src) == 0 {
			continue
		}
		if err := json.Unmarshal(f.src, f.dst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal import job %s: %w", r.ID, err)
		}
	}
	if job.Errors == nil {
		job.Errors = []apperrors.ImportError{}
	}

	job.RecomputeProgress()
	return job, nil
}
