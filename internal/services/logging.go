package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/SAP-F-2025/content-import-service/internal/models"
)

// ServiceLogger provides structured logging for service layer operations
type ServiceLogger struct {
	logger *slog.Logger
	config LogConfig
}

type LogConfig struct {
	Service     string
	Component   string
	EnableDebug bool
}

func NewServiceLogger(logger *slog.Logger, config LogConfig) *ServiceLogger {
	return &ServiceLogger{
		logger: logger.With("service", config.Service, "component", config.Component),
		config: config,
	}
}

// Logger returns the component-scoped slog logger
func (l *ServiceLogger) Logger() *slog.Logger {
	return l.logger
}

// ===== OPERATION LOGGING =====

func (l *ServiceLogger) LogOperation(ctx context.Context, operation string, userID string, resourceID string, resourceType string, duration time.Duration, err error) {
	level := slog.LevelInfo
	status := "success"

	if err != nil {
		level = slog.LevelError
		status = "error"

		// Adjust log level based on error type
		if IsValidation(err) || IsBusinessRule(err) {
			level = slog.LevelWarn
			status = "validation_error"
		} else if IsUnauthorized(err) {
			level = slog.LevelWarn
			status = "unauthorized"
		} else if IsNotFound(err) {
			level = slog.LevelInfo
			status = "not_found"
		} else if IsConflict(err) {
			level = slog.LevelWarn
			status = "conflict"
		}
	}

	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("user_id", userID),
		slog.String("resource_id", resourceID),
		slog.String("resource_type", resourceType),
		slog.String("status", status),
		slog.Duration("duration", duration),
	}

	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))

		if validationErr, ok := err.(ValidationErrors); ok {
			attrs = append(attrs, slog.Int("validation_errors_count", len(validationErr)))
		} else if businessErr, ok := err.(*BusinessRuleError); ok {
			attrs = append(attrs, slog.String("business_rule", businessErr.Rule))
		} else if preflightErr, ok := err.(*PreflightError); ok {
			attrs = append(attrs, slog.Int("import_errors_count", len(preflightErr.Result.Errors)))
		}

		// Add caller information for unexpected errors
		if level == slog.LevelError {
			if pc, file, line, ok := runtime.Caller(2); ok {
				if fn := runtime.FuncForPC(pc); fn != nil {
					attrs = append(attrs,
						slog.String("caller_func", fn.Name()),
						slog.String("caller_file", file),
						slog.Int("caller_line", line),
					)
				}
			}
		}
	}

	l.logger.LogAttrs(ctx, level, fmt.Sprintf("%s operation %s", operation, status), attrs...)
}

// LogValidationFailure summarizes a failed document validation, listing the first few errors
func (l *ServiceLogger) LogValidationFailure(ctx context.Context, userID string, result *ValidationResult) {
	attrs := []slog.Attr{
		slog.String("user_id", userID),
		slog.Int("error_count", len(result.Errors)),
		slog.Int("warning_count", len(result.Warnings)),
		slog.Int("total_items", result.Summary.TotalItems),
	}

	for i, err := range result.Errors {
		if i >= 5 { // Limit to first 5 errors to avoid log spam
			break
		}
		group := []any{
			slog.String("severity", string(err.Severity)),
			slog.String("type", string(err.Type)),
			slog.String("message", err.Message),
		}
		if err.ItemIndex != nil {
			group = append(group, slog.Int("item", *err.ItemIndex))
		}
		attrs = append(attrs, slog.Group(fmt.Sprintf("error_%d", i+1), group...))
	}

	l.logger.LogAttrs(ctx, slog.LevelWarn, "Validation failed", attrs...)
}

// ===== JOB LOGGING =====

// LogJobTransition records a job status change with its current counters
func (l *ServiceLogger) LogJobTransition(ctx context.Context, job *models.BatchJob, from models.JobStatus) {
	attrs := []slog.Attr{
		slog.String("job_id", job.ID),
		slog.String("user_id", job.UserID),
		slog.String("from", string(from)),
		slog.String("to", string(job.Status)),
		slog.Int("chunk", job.CurrentChunkIndex),
		slog.Int("total_chunks", job.ChunkCount()),
		slog.Group("progress",
			slog.Int("processed", job.Progress.Processed),
			slog.Int("successful", job.Progress.Successful),
			slog.Int("failed", job.Progress.Failed),
			slog.Int("total", job.Progress.Total),
		),
	}

	level := slog.LevelInfo
	if job.Status == models.JobFailed {
		level = slog.LevelWarn
	}
	l.logger.LogAttrs(ctx, level, "Import job status changed", attrs...)
}

// LogChunk records the outcome of one processed chunk
func (l *ServiceLogger) LogChunk(ctx context.Context, jobID string, chunkIndex, succeeded, failed int, duration time.Duration) {
	if !l.config.EnableDebug && failed == 0 {
		return
	}

	level := slog.LevelDebug
	if failed > 0 {
		level = slog.LevelWarn
	}

	l.logger.LogAttrs(ctx, level, "Chunk processed",
		slog.String("job_id", jobID),
		slog.Int("chunk", chunkIndex),
		slog.Int("succeeded", succeeded),
		slog.Int("failed", failed),
		slog.Duration("duration", duration),
	)
}

// ===== ERROR RECOVERY LOGGING =====

func (l *ServiceLogger) LogRecovery(ctx context.Context, operation string, jobID string, recovered interface{}, stack []byte) {
	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("job_id", jobID),
		slog.Any("panic_value", recovered),
		slog.String("stack_trace", string(stack)),
	}

	l.logger.LogAttrs(ctx, slog.LevelError, "Panic recovered", attrs...)
}

// ===== MIDDLEWARE AND HELPERS =====

// ContextualLogger wraps operations with automatic logging
type ContextualLogger struct {
	logger    *ServiceLogger
	operation string
	userID    string
	startTime time.Time
	ctx       context.Context
}

func (l *ServiceLogger) WithOperation(ctx context.Context, operation string, userID string) *ContextualLogger {
	return &ContextualLogger{
		logger:    l,
		operation: operation,
		userID:    userID,
		startTime: time.Now(),
		ctx:       ctx,
	}
}

func (cl *ContextualLogger) LogResult(resourceID string, resourceType string, err error) {
	cl.logger.LogOperation(cl.ctx, cl.operation, cl.userID, resourceID, resourceType, time.Since(cl.startTime), err)
}
