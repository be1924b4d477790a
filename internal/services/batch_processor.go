package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/SAP-F-2025/content-import-service/internal/errors"
	"github.com/SAP-F-2025/content-import-service/internal/models"
	"github.com/SAP-F-2025/content-import-service/internal/repositories"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

// BatchProcessor runs chunked imports. Chunks of one job are committed strictly
// in order; pause and cancel take effect at the next chunk boundary.
type BatchProcessor interface {
	StartBatchProcessing(ctx context.Context, doc *models.ImportDocument, userID, fileName string, format models.ImportFormat, options models.BatchOptions) (string, error)
	PauseJob(ctx context.Context, jobID, userID string) error
	ResumeJob(ctx context.Context, jobID, userID string) error
	CancelJob(ctx context.Context, jobID, userID string) error
	GetJob(ctx context.Context, jobID, userID string) (*models.BatchJob, error)
	ListJobs(ctx context.Context, userID string, limit int) ([]*models.BatchJob, error)
	RollbackJob(ctx context.Context, jobID, userID string, options models.RollbackOptions) (*models.RollbackResult, error)
	ValidateRollback(ctx context.Context, jobID, userID string) (*models.RollbackCheck, error)
	CleanupJobs(ctx context.Context, olderThan time.Duration) (int, error)
	ResumeInterrupted(ctx context.Context) (int, error)
	Shutdown(ctx context.Context) error
}

type ProcessorConfig struct {
	ChunkSize         int
	ChunkTimeout      time.Duration
	CommitConcurrency int
	ChunkDelay        time.Duration
	// Policy defaults to the job's own ErrorRecoveryOptions
	Policy ErrorPolicy
}

const (
	DefaultChunkSize    = 50
	DefaultChunkTimeout = 2 * time.Minute
	DefaultChunkDelay   = 10 * time.Millisecond

	codeChunkFailed    = "chunk_failed"
	codeRollbackFailed = "rollback_failed"
	codeJobPanic       = "job_panic"
)

// jobRunner owns one live job. mu guards job and running; running is true
// while a processing goroutine is attached.
type jobRunner struct {
	mu      sync.Mutex
	job     *models.BatchJob
	running bool

	busy      time.Duration
	committed int
}

type batchProcessor struct {
	engine    ValidationEngine
	committer ItemCommitter
	store     repositories.JobStore
	backup    BackupSink
	audit     AuditSink
	policy    ErrorPolicy
	config    ProcessorConfig
	logger    *slog.Logger
	slog      *ServiceLogger

	mu      sync.Mutex
	runners map[string]*jobRunner

	root   context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

func NewBatchProcessor(
	engine ValidationEngine,
	committer ItemCommitter,
	store repositories.JobStore,
	backup BackupSink,
	audit AuditSink,
	logger *slog.Logger,
	config ProcessorConfig,
) BatchProcessor {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if config.ChunkTimeout <= 0 {
		config.ChunkTimeout = DefaultChunkTimeout
	}
	if config.CommitConcurrency <= 0 {
		config.CommitConcurrency = DefaultCommitConcurrency
	}
	if config.ChunkDelay < 0 {
		config.ChunkDelay = 0
	}
	policy := config.Policy
	if policy == nil {
		policy = NewRecoveryPolicy()
	}
	if audit == nil {
		audit = noopAuditSink{}
	}

	root, stop := context.WithCancel(context.Background())
	return &batchProcessor{
		engine:    engine,
		committer: committer,
		store:     store,
		backup:    backup,
		audit:     audit,
		policy:    policy,
		config:    config,
		logger:    logger,
		slog:      NewServiceLogger(logger, LogConfig{Service: "content-import", Component: "batch_processor"}),
		runners:   make(map[string]*jobRunner),
		root:      root,
		stop:      stop,
	}
}

// ===== SUBMISSION =====

func (p *batchProcessor) StartBatchProcessing(ctx context.Context, doc *models.ImportDocument, userID, fileName string, format models.ImportFormat, options models.BatchOptions) (string, error) {
	op := p.slog.WithOperation(ctx, "start_batch_import", userID)

	jobID, err := p.startBatch(ctx, doc, userID, fileName, format, options)
	op.LogResult(jobID, "import_job", err)
	return jobID, err
}

func (p *batchProcessor) startBatch(ctx context.Context, doc *models.ImportDocument, userID, fileName string, format models.ImportFormat, options models.BatchOptions) (string, error) {
	if p.isClosed() {
		return "", fmt.Errorf("batch processor is shutting down: %w", ErrConflict)
	}

	options = p.withDefaults(options)
	if err := options.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrValidationFailed, optionsValidationErrors(err, ""))
	}

	result := p.engine.Validate(doc)
	p.audit.LogValidationPerformed(ctx, userID, fileName, result)
	if result.Errors.HasCritical() {
		p.slog.LogValidationFailure(ctx, userID, result)
		return "", &PreflightError{Result: result}
	}

	items := doc.Items()
	if len(items) == 0 {
		return "", ErrEmptyImport
	}

	now := time.Now().UTC()
	chunks := chunkItems(items, options.ChunkSize)
	job := &models.BatchJob{
		ID:          uuid.NewString(),
		UserID:      userID,
		FileName:    fileName,
		Format:      format,
		ContentType: doc.Type,
		Status:      models.JobQueued,
		Progress:    models.JobProgress{Total: len(items)},
		Options:     options,
		Chunks:      chunks,
		TotalChunks: len(chunks),
		Results:     []models.ItemResult{},
		Errors:      []apperrors.ImportError{},
		CreatedIDs:  []models.CreatedEntity{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if options.NeedsBackup() {
		p.createBackup(ctx, job)
	}

	if err := p.store.Save(ctx, job); err != nil {
		return "", fmt.Errorf("failed to save import job: %w", err)
	}

	runner := &jobRunner{job: job, running: true}
	p.mu.Lock()
	p.runners[job.ID] = runner
	p.mu.Unlock()

	p.logger.Info("Starting batch import",
		"job_id", job.ID,
		"user_id", userID,
		"file_name", fileName,
		"content_type", doc.Type,
		"total_items", len(items),
		"chunks", len(chunks))

	p.spawn(runner)
	return job.ID, nil
}

func (p *batchProcessor) withDefaults(options models.BatchOptions) models.BatchOptions {
	if options.ChunkSize == 0 {
		options.ChunkSize = p.config.ChunkSize
	}
	if options.CommitConcurrency == 0 {
		options.CommitConcurrency = p.config.CommitConcurrency
	}
	return options
}

// createBackup is best-effort: a failure leaves the job without a backup
func (p *batchProcessor) createBackup(ctx context.Context, job *models.BatchJob) {
	if p.backup == nil {
		p.logger.Warn("Backup requested but no backup sink is configured", "job_id", job.ID)
		return
	}

	collections := []string{job.ContentType.Collection()}
	backupID, err := p.backup.CreatePreImportBackup(ctx, job.ID, job.UserID, job.ContentType, job.FileName, collections)
	if err != nil {
		p.logger.Error("Failed to create pre-import backup", "job_id", job.ID, "error", err)
		return
	}
	job.BackupID = backupID
}

// chunkItems partitions items into consecutive chunks of at most size items
func chunkItems(items []models.ImportItem, size int) [][]models.ImportItem {
	if size <= 0 {
		size = DefaultChunkSize
	}
	chunks := make([][]models.ImportItem, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// optionsValidationErrors flattens ozzo errors, including nested structs,
// into field errors
func optionsValidationErrors(err error, prefix string) ValidationErrors {
	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return ValidationErrors{{Field: strings.TrimSuffix(prefix, "."), Message: err.Error()}}
	}

	keys := make([]string, 0, len(fieldErrs))
	for k := range fieldErrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out ValidationErrors
	for _, k := range keys {
		var nested validation.Errors
		if errors.As(fieldErrs[k], &nested) {
			out = append(out, optionsValidationErrors(nested, prefix+k+".")...)
			continue
		}
		out = append(out, *NewValidationError(prefix+k, fieldErrs[k].Error(), nil))
	}
	return out
}

// ===== PROCESSING LOOP =====

func (p *batchProcessor) spawn(r *jobRunner) {
	p.wg.Add(1)
	go p.run(r)
}

func (p *batchProcessor) run(r *jobRunner) {
	defer p.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			p.slog.LogRecovery(p.root, "process_job", r.job.ID, rec, debug.Stack())

			r.mu.Lock()
			if !r.job.Status.IsTerminal() {
				p.failLocked(r, "panic in processing loop",
					apperrors.NewImportError(apperrors.TypeSystem, apperrors.SeverityCritical,
						fmt.Sprintf("Erreur interne pendant le traitement: %v", rec)).WithCode(codeJobPanic))
			}
			r.running = false
			jobID := r.job.ID
			r.mu.Unlock()
			p.release(jobID)
		}
	}()

	for {
		index, items, cc, ok := p.nextChunk(r)
		if !ok {
			return
		}

		start := time.Now()
		result, err := p.commitChunk(cc, index, items, p.chunkTimeout(cc.Options))
		elapsed := time.Since(start)

		if !p.recordChunk(r, index, items, result, err, elapsed) {
			return
		}

		if p.config.ChunkDelay > 0 {
			select {
			case <-time.After(p.config.ChunkDelay):
			case <-p.root.Done():
			}
		}
	}
}

// nextChunk is the chunk-boundary checkpoint. It applies pending transitions
// and either hands out the next chunk or detaches the runner.
func (p *batchProcessor) nextChunk(r *jobRunner) (int, []models.ImportItem, CommitContext, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job := r.job
	ctx := context.Background()

	if p.root.Err() != nil && (job.Status == models.JobProcessing || job.Status == models.JobQueued) {
		// a job that never started stays queued and is picked up again on restart
		if job.Status == models.JobProcessing {
			p.transitionLocked(r, models.JobPaused)
		}
		p.saveLocked(r)
		p.logger.Info("Import job parked for shutdown", "job_id", job.ID, "status", job.Status, "chunk", job.CurrentChunkIndex)
		r.running = false
		return 0, nil, CommitContext{}, false
	}

	switch job.Status {
	case models.JobQueued:
		p.transitionLocked(r, models.JobProcessing)
	case models.JobProcessing:
	default:
		r.running = false
		if job.Status.IsTerminal() {
			go p.release(job.ID)
		}
		return 0, nil, CommitContext{}, false
	}

	// a job parked before its first chunk starts here after a resume
	if job.StartedAt == nil {
		now := time.Now().UTC()
		job.StartedAt = &now
		p.saveLocked(r)
		p.audit.LogImportStarted(ctx, job)
	}

	if job.CurrentChunkIndex >= job.ChunkCount() {
		job.Progress.EstimatedTimeRemainingMs = 0
		p.finishLocked(r, models.JobCompleted)
		p.audit.LogImportCompleted(ctx, job)
		r.running = false
		go p.release(job.ID)
		return 0, nil, CommitContext{}, false
	}

	index := job.CurrentChunkIndex
	cc := CommitContext{
		JobID:       job.ID,
		UserID:      job.UserID,
		BackupID:    job.BackupID,
		ContentType: job.ContentType,
		Options:     job.Options,
	}
	return index, job.Chunks[index], cc, true
}

func (p *batchProcessor) chunkTimeout(options models.BatchOptions) time.Duration {
	if options.ChunkTimeoutSeconds > 0 {
		return time.Duration(options.ChunkTimeoutSeconds) * time.Second
	}
	return p.config.ChunkTimeout
}

// commitChunk bounds one committer call by the chunk timeout. Chunks are not
// tied to the processor lifetime, so shutdown waits for the one in flight.
func (p *batchProcessor) commitChunk(cc CommitContext, index int, items []models.ImportItem, timeout time.Duration) (*ChunkResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	type outcome struct {
		result *ChunkResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				p.slog.LogRecovery(ctx, "commit_chunk", cc.JobID, rec, debug.Stack())
				done <- outcome{err: fmt.Errorf("panic while committing chunk %d: %v", index, rec)}
			}
		}()
		result, err := p.committer.CommitChunk(ctx, cc, items)
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return nil, fmt.Errorf("chunk %d timed out after %s: %w", index, timeout, ctx.Err())
	}
}

// recordChunk folds a chunk outcome into the job and applies the error
// policy. It returns false when the runner must stop.
func (p *batchProcessor) recordChunk(r *jobRunner, index int, items []models.ImportItem, result *ChunkResult, err error, elapsed time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	job := r.job
	job.CurrentChunkIndex = index + 1

	failed := 0
	if err != nil {
		failed = len(items)
		p.applyChunkFailure(job, index, items, result, err)
	} else if result != nil {
		job.Results = append(job.Results, result.Results...)
		job.Errors = append(job.Errors, result.Errors...)
		job.CreatedIDs = append(job.CreatedIDs, result.Created...)
		for _, res := range result.Results {
			if res.Status == models.ItemError {
				failed++
			}
		}
	}

	job.RecomputeProgress()
	r.busy += elapsed
	r.committed += len(items)
	p.updateEstimate(r)

	p.slog.LogChunk(p.root, job.ID, index, len(items)-failed, failed, elapsed)

	// a cancelled job keeps what it committed; the next checkpoint detaches
	if job.Status == models.JobCancelled {
		p.saveLocked(r)
		return true
	}

	// the policy sees every chunk, also one that finished after a pause request
	switch p.policy.Evaluate(job) {
	case DecisionRollback:
		p.rollbackLocked(r)
		p.failLocked(r, "critical error triggered rollback")
		r.running = false
		go p.release(job.ID)
		return false
	case DecisionStop:
		if failed > 0 && job.Options.ErrorRecovery.PauseOnError {
			break
		}
		p.failLocked(r, "error policy stopped the import")
		r.running = false
		go p.release(job.ID)
		return false
	}

	if failed > 0 && job.Options.ErrorRecovery.PauseOnError && job.Status == models.JobProcessing {
		p.transitionLocked(r, models.JobPaused)
		p.audit.LogImportPaused(context.Background(), job)
	}

	p.saveLocked(r)
	return true
}

// applyChunkFailure marks every item of the chunk as failed. Entities the
// committer reports as created are still tracked for rollback.
func (p *batchProcessor) applyChunkFailure(job *models.BatchJob, index int, items []models.ImportItem, partial *ChunkResult, err error) {
	reason := "erreur inattendue"
	if errors.Is(err, context.DeadlineExceeded) {
		reason = "délai dépassé"
	}

	collection := job.ContentType.Collection()
	for _, item := range items {
		job.Results = append(job.Results, models.ItemResult{
			ItemIndex:  item.Index,
			Status:     models.ItemError,
			Collection: collection,
			Message:    fmt.Sprintf("Échec du lot %d: %s", index+1, reason),
		})
	}
	job.Errors = append(job.Errors,
		apperrors.NewImportError(apperrors.TypeSystem, apperrors.SeverityCritical,
			fmt.Sprintf("Échec du traitement du lot %d: %v", index+1, err)).WithCode(codeChunkFailed))

	if partial != nil {
		job.CreatedIDs = append(job.CreatedIDs, partial.Created...)
	}

	p.logger.Error("Chunk commit failed",
		"job_id", job.ID,
		"chunk", index,
		"items", len(items),
		"error", err)
}

// updateEstimate projects the remaining time from the mean item latency
func (p *batchProcessor) updateEstimate(r *jobRunner) {
	job := r.job
	remaining := job.Progress.Total - job.Progress.Processed
	if remaining <= 0 || r.committed == 0 {
		job.Progress.EstimatedTimeRemainingMs = 0
		return
	}
	perItem := r.busy / time.Duration(r.committed)
	job.Progress.EstimatedTimeRemainingMs = (perItem * time.Duration(remaining)).Milliseconds()
}

// rollbackLocked reverts the job's writes after a policy decision. Failures
// are appended to the job as system errors.
func (p *batchProcessor) rollbackLocked(r *jobRunner) {
	job := r.job

	if p.backup == nil || job.BackupID == "" {
		job.Errors = append(job.Errors,
			apperrors.NewImportError(apperrors.TypeSystem, apperrors.SeverityCritical,
				"Rollback impossible: aucune sauvegarde disponible").WithCode(codeRollbackFailed))
		p.logger.Warn("Rollback requested without backup", "job_id", job.ID, "created", len(job.CreatedIDs))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.config.ChunkTimeout)
	defer cancel()

	// entries the committer failed to record are rebuilt from the created ids
	if _, err := p.backup.TrackCreated(ctx, job.ID, job.CreatedIDs); err != nil {
		job.Errors = append(job.Errors,
			apperrors.NewImportError(apperrors.TypeSystem, apperrors.SeverityCritical,
				fmt.Sprintf("Échec du rollback: %v", err)).WithCode(codeRollbackFailed))
		return
	}

	result, err := p.backup.ExecuteRollback(ctx, job.ID, job.UserID, models.RollbackOptions{Reason: "critical error"})
	if err != nil {
		job.Errors = append(job.Errors,
			apperrors.NewImportError(apperrors.TypeSystem, apperrors.SeverityCritical,
				fmt.Sprintf("Échec du rollback: %v", err)).WithCode(codeRollbackFailed))
		return
	}

	for _, msg := range result.Errors {
		job.Errors = append(job.Errors,
			apperrors.NewImportError(apperrors.TypeSystem, apperrors.SeverityCritical,
				fmt.Sprintf("Échec du rollback: %s", msg)).WithCode(codeRollbackFailed))
	}
	job.RolledBack = result.Success
	p.audit.LogRollbackExecuted(ctx, job, result)
}

// ===== STATE TRANSITIONS =====

// transitionLocked is the single place a job status changes
func (p *batchProcessor) transitionLocked(r *jobRunner, to models.JobStatus) {
	from := r.job.Status
	r.job.Status = to
	r.job.UpdatedAt = time.Now().UTC()
	if to.IsTerminal() && r.job.CompletedAt == nil {
		now := r.job.UpdatedAt
		r.job.CompletedAt = &now
	}
	p.slog.LogJobTransition(p.root, r.job, from)
}

func (p *batchProcessor) finishLocked(r *jobRunner, to models.JobStatus) {
	p.transitionLocked(r, to)
	p.saveLocked(r)
}

func (p *batchProcessor) failLocked(r *jobRunner, reason string, errs ...apperrors.ImportError) {
	r.job.Errors = append(r.job.Errors, errs...)
	p.finishLocked(r, models.JobFailed)
	p.audit.LogImportFailed(context.Background(), r.job, reason)
}

func (p *batchProcessor) saveLocked(r *jobRunner) {
	if err := p.store.Save(context.Background(), r.job); err != nil {
		p.logger.Error("Failed to persist import job", "job_id", r.job.ID, "status", r.job.Status, "error", err)
	}
}

func (p *batchProcessor) release(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r, ok := p.runners[jobID]; ok {
		r.mu.Lock()
		done := !r.running && r.job.Status.IsTerminal()
		r.mu.Unlock()
		if done {
			delete(p.runners, jobID)
		}
	}
}

func (p *batchProcessor) runner(jobID string) *jobRunner {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runners[jobID]
}

// attach returns the live runner of a job, loading it from the store when the
// processor has none, such as after a restart
func (p *batchProcessor) attach(ctx context.Context, jobID string) (*jobRunner, error) {
	if r := p.runner(jobID); r != nil {
		return r, nil
	}

	job, err := p.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to load import job: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.runners[jobID]; ok {
		return r, nil
	}
	r := &jobRunner{job: job}
	if !job.Status.IsTerminal() {
		p.runners[jobID] = r
	}
	return r, nil
}

func checkOwner(job *models.BatchJob, userID string) error {
	if userID != "" && job.UserID != userID {
		return ErrJobAccessDenied
	}
	return nil
}

func (p *batchProcessor) PauseJob(ctx context.Context, jobID, userID string) error {
	r, err := p.attach(ctx, jobID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := checkOwner(r.job, userID); err != nil {
		return err
	}
	if r.job.Status != models.JobProcessing {
		return fmt.Errorf("cannot pause a %s job: %w", r.job.Status, ErrInvalidTransition)
	}

	p.transitionLocked(r, models.JobPaused)
	p.saveLocked(r)
	p.audit.LogImportPaused(ctx, r.job)
	return nil
}

func (p *batchProcessor) ResumeJob(ctx context.Context, jobID, userID string) error {
	if p.isClosed() {
		return fmt.Errorf("batch processor is shutting down: %w", ErrConflict)
	}

	r, err := p.attach(ctx, jobID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := checkOwner(r.job, userID); err != nil {
		return err
	}
	if r.job.Status != models.JobPaused {
		return fmt.Errorf("cannot resume a %s job: %w", r.job.Status, ErrInvalidTransition)
	}

	p.transitionLocked(r, models.JobProcessing)
	p.saveLocked(r)
	p.audit.LogImportResumed(ctx, r.job)

	if !r.running {
		r.running = true
		p.spawn(r)
	}
	return nil
}

func (p *batchProcessor) CancelJob(ctx context.Context, jobID, userID string) error {
	r, err := p.attach(ctx, jobID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if err := checkOwner(r.job, userID); err != nil {
		r.mu.Unlock()
		return err
	}
	if r.job.Status.IsTerminal() {
		status := r.job.Status
		r.mu.Unlock()
		return fmt.Errorf("cannot cancel a %s job: %w", status, ErrInvalidTransition)
	}

	p.finishLocked(r, models.JobCancelled)
	p.audit.LogImportCancelled(ctx, r.job)
	running := r.running
	r.mu.Unlock()

	if !running {
		p.release(jobID)
	}
	return nil
}

// ===== QUERIES =====

func (p *batchProcessor) GetJob(ctx context.Context, jobID, userID string) (*models.BatchJob, error) {
	if r := p.runner(jobID); r != nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		if err := checkOwner(r.job, userID); err != nil {
			return nil, err
		}
		return r.job.Clone(), nil
	}

	job, err := p.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get import job: %w", err)
	}
	if err := checkOwner(job, userID); err != nil {
		return nil, err
	}
	return job, nil
}

func (p *batchProcessor) ListJobs(ctx context.Context, userID string, limit int) ([]*models.BatchJob, error) {
	jobs, err := p.store.List(ctx, repositories.JobFilters{UserID: userID, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to list import jobs: %w", err)
	}
	return jobs, nil
}

// ===== ROLLBACK =====

func (p *batchProcessor) ValidateRollback(ctx context.Context, jobID, userID string) (*models.RollbackCheck, error) {
	job, err := p.GetJob(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}
	return p.validateRollback(ctx, job)
}

func (p *batchProcessor) validateRollback(ctx context.Context, job *models.BatchJob) (*models.RollbackCheck, error) {
	if !job.Status.IsTerminal() {
		return &models.RollbackCheck{
			Reasons: []string{"L'import doit être terminé avant d'être annulé"},
		}, nil
	}
	if p.backup == nil {
		return &models.RollbackCheck{
			Reasons: []string{"Aucun service de sauvegarde n'est configuré"},
		}, nil
	}

	return p.backup.ValidateRollbackPossible(ctx, job.ID)
}

func (p *batchProcessor) RollbackJob(ctx context.Context, jobID, userID string, options models.RollbackOptions) (*models.RollbackResult, error) {
	op := p.slog.WithOperation(ctx, "rollback_import", userID)

	result, err := p.rollbackJob(ctx, jobID, userID, options)
	op.LogResult(jobID, "import_job", err)
	return result, err
}

func (p *batchProcessor) rollbackJob(ctx context.Context, jobID, userID string, options models.RollbackOptions) (*models.RollbackResult, error) {
	job, err := p.GetJob(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}
	check, err := p.validateRollback(ctx, job)
	if err != nil {
		return nil, err
	}
	if !check.Possible {
		return nil, fmt.Errorf("%w: %s", ErrRollbackNotPossible, strings.Join(check.Reasons, "; "))
	}

	if _, err := p.backup.TrackCreated(ctx, jobID, job.CreatedIDs); err != nil {
		return nil, fmt.Errorf("failed to complete backup of import %s: %w", jobID, err)
	}

	result, err := p.backup.ExecuteRollback(ctx, jobID, userID, options)
	if err != nil {
		return nil, fmt.Errorf("failed to roll back import %s: %w", jobID, err)
	}
	if options.DryRun {
		return result, nil
	}

	job, err = p.store.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load import job after rollback: %w", err)
	}
	for _, msg := range result.Errors {
		job.Errors = append(job.Errors,
			apperrors.NewImportError(apperrors.TypeSystem, apperrors.SeverityCritical,
				fmt.Sprintf("Échec du rollback: %s", msg)).WithCode(codeRollbackFailed))
	}
	job.RolledBack = result.Success
	job.UpdatedAt = time.Now().UTC()
	if err := p.store.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save import job after rollback: %w", err)
	}

	p.audit.LogRollbackExecuted(ctx, job, result)
	return result, nil
}

// ===== MAINTENANCE =====

// CleanupJobs purges terminal jobs that finished more than olderThan ago
func (p *batchProcessor) CleanupJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	removed, err := p.store.DeleteFinishedBefore(ctx, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to clean up import jobs: %w", err)
	}
	if removed > 0 {
		p.logger.Info("Cleaned up finished import jobs", "removed", removed, "older_than", olderThan)
	}
	return removed, nil
}

// ResumeInterrupted recovers jobs a previous process left behind. Jobs that
// never started are queued again; jobs stopped mid-run are parked as paused so
// that ResumeJob picks them up from their current chunk.
func (p *batchProcessor) ResumeInterrupted(ctx context.Context) (int, error) {
	jobs, err := p.store.List(ctx, repositories.JobFilters{
		Statuses: []models.JobStatus{models.JobQueued, models.JobProcessing},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list interrupted import jobs: %w", err)
	}

	recovered := 0
	for _, summary := range jobs {
		if p.runner(summary.ID) != nil {
			continue
		}
		job, err := p.store.Get(ctx, summary.ID)
		if err != nil {
			p.logger.Warn("Failed to load interrupted import job", "job_id", summary.ID, "error", err)
			continue
		}

		r := &jobRunner{job: job}
		requeue := job.Status == models.JobQueued
		if !requeue {
			r.mu.Lock()
			p.transitionLocked(r, models.JobPaused)
			p.saveLocked(r)
			r.mu.Unlock()
		}

		p.mu.Lock()
		p.runners[job.ID] = r
		p.mu.Unlock()

		if requeue {
			r.mu.Lock()
			r.running = true
			r.mu.Unlock()
			p.spawn(r)
		}
		recovered++
	}

	if recovered > 0 {
		p.logger.Info("Interrupted import jobs recovered", "count", recovered)
	}
	return recovered, nil
}

func (p *batchProcessor) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Shutdown stops every runner at its next chunk boundary, parking live jobs
// as paused, and waits for them until ctx expires
func (p *batchProcessor) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.stop()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Batch processor stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("batch processor shutdown: %w", ctx.Err())
	}
}
