package models

import (
	"time"

	apperrors "github.com/SAP-F-2025/content-import-service/internal/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobPaused     JobStatus = "paused"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

type ItemStatus string

const (
	ItemSuccess ItemStatus = "success"
	ItemError   ItemStatus = "error"
	ItemSkipped ItemStatus = "skipped"
)

type ItemResult struct {
	ItemIndex  int        `json:"itemIndex"`
	Status     ItemStatus `json:"status"`
	EntityID   string     `json:"entityId,omitempty"`
	Collection string     `json:"collection,omitempty"`
	Message    string     `json:"message,omitempty"`
	DurationMs int64      `json:"durationMs"`
}

// CreatedEntity is a storage entity created by a job, kept for rollback
type CreatedEntity struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

type JobProgress struct {
	Total                    int     `json:"total"`
	Processed                int     `json:"processed"`
	Successful               int     `json:"successful"`
	Failed                   int     `json:"failed"`
	Skipped                  int     `json:"skipped"`
	Percentage               float64 `json:"percentage"`
	EstimatedTimeRemainingMs int64   `json:"estimatedTimeRemainingMs"`
}

type ErrorRecoveryOptions struct {
	ContinueOnError         bool    `json:"continueOnError"`
	PauseOnError            bool    `json:"pauseOnError"`
	RollbackOnCriticalError bool    `json:"rollbackOnCriticalError"`
	MaxErrors               int     `json:"maxErrors"`
	MaxErrorRate            float64 `json:"maxErrorRate"`
}

func (e ErrorRecoveryOptions) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.MaxErrors, validation.Min(0)),
		validation.Field(&e.MaxErrorRate, validation.Min(0.0), validation.Max(1.0)),
	)
}

type BatchOptions struct {
	ChunkSize            int                  `json:"chunkSize"`
	ChunkTimeoutSeconds  int                  `json:"chunkTimeoutSeconds"`
	CommitConcurrency    int                  `json:"commitConcurrency"`
	AutoCreateCategories bool                 `json:"autoCreateCategories"`
	SkipDuplicates       bool                 `json:"skipDuplicates"`
	CreateBackup         bool                 `json:"createBackup"`
	CategoryMappings     map[string]string    `json:"categoryMappings,omitempty"`
	ErrorRecovery        ErrorRecoveryOptions `json:"errorRecovery"`
}

// DefaultBatchOptions are the options a submission starts from before the
// caller's overrides are applied
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{
		ChunkSize:            50,
		AutoCreateCategories: true,
		ErrorRecovery: ErrorRecoveryOptions{
			ContinueOnError: true,
		},
	}
}

func (o BatchOptions) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.ChunkSize, validation.Required, validation.Min(1), validation.Max(1000)),
		validation.Field(&o.ChunkTimeoutSeconds, validation.Min(0), validation.Max(3600)),
		validation.Field(&o.CommitConcurrency, validation.Min(0), validation.Max(64)),
		validation.Field(&o.ErrorRecovery),
	)
}

// NeedsBackup reports whether a pre-import backup should be requested
func (o BatchOptions) NeedsBackup() bool {
	return o.CreateBackup || o.ErrorRecovery.RollbackOnCriticalError
}

// BatchJob is the state of one chunked import. It is mutated only by the
// batch processor that owns it; readers get copies from Clone.
type BatchJob struct {
	ID                string                  `json:"id"`
	UserID            string                  `json:"userId"`
	FileName          string                  `json:"fileName"`
	Format            ImportFormat            `json:"format"`
	ContentType       ContentType             `json:"contentType"`
	Status            JobStatus               `json:"status"`
	Progress          JobProgress             `json:"progress"`
	Options           BatchOptions            `json:"options"`
	Chunks            [][]ImportItem          `json:"chunks,omitempty"`
	TotalChunks       int                     `json:"totalChunks"`
	CurrentChunkIndex int                     `json:"currentChunkIndex"`
	Results           []ItemResult            `json:"results"`
	Errors            []apperrors.ImportError `json:"errors"`
	CreatedIDs        []CreatedEntity         `json:"createdIds"`
	BackupID          string                  `json:"backupId,omitempty"`
	RolledBack        bool                    `json:"rolledBack"`
	CreatedAt         time.Time               `json:"createdAt"`
	StartedAt         *time.Time              `json:"startedAt,omitempty"`
	CompletedAt       *time.Time              `json:"completedAt,omitempty"`
	UpdatedAt         time.Time               `json:"updatedAt"`
}

// ChunkCount returns the number of chunks the job was partitioned into
func (j *BatchJob) ChunkCount() int {
	if len(j.Chunks) > 0 {
		return len(j.Chunks)
	}
	return j.TotalChunks
}

// RecomputeProgress derives the counters from the accumulated results.
// Counters are always summed, never assigned, so they only grow.
func (j *BatchJob) RecomputeProgress() {
	successful, failed, skipped := 0, 0, 0
	for _, r := range j.Results {
		switch r.Status {
		case ItemError:
			failed++
		case ItemSkipped:
			skipped++
			successful++
		default:
			successful++
		}
	}

	j.Progress.Successful = successful
	j.Progress.Failed = failed
	j.Progress.Skipped = skipped
	j.Progress.Processed = successful + failed

	if j.Progress.Total > 0 {
		j.Progress.Percentage = float64(j.Progress.Processed) / float64(j.Progress.Total) * 100
	}
}

// Clone returns a deep copy safe to hand to readers
func (j *BatchJob) Clone() *BatchJob {
	c := *j

	c.Chunks = make([][]ImportItem, len(j.Chunks))
	for i, chunk := range j.Chunks {
		c.Chunks[i] = append([]ImportItem(nil), chunk...)
	}
	c.Results = append([]ItemResult(nil), j.Results...)
	c.Errors = append([]apperrors.ImportError(nil), j.Errors...)
	c.CreatedIDs = append([]CreatedEntity(nil), j.CreatedIDs...)

	if j.Options.CategoryMappings != nil {
		c.Options.CategoryMappings = make(map[string]string, len(j.Options.CategoryMappings))
		for k, v := range j.Options.CategoryMappings {
			c.Options.CategoryMappings[k] = v
		}
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}

	return &c
}

// Summary returns a copy without the chunk payload, used for listings
func (j *BatchJob) Summary() *BatchJob {
	c := j.Clone()
	c.Chunks = nil
	return c
}
