package services

import (
	"github.com/SAP-F-2025/content-import-service/internal/models"
)

type PolicyDecision string

const (
	DecisionContinue PolicyDecision = "continue"
	DecisionStop     PolicyDecision = "stop"
	DecisionRollback PolicyDecision = "rollback"
)

// ErrorPolicy is consulted after every chunk with the job's accumulated
// results and errors
type ErrorPolicy interface {
	Evaluate(job *models.BatchJob) PolicyDecision
}

// ErrorPolicyFunc adapts a function to ErrorPolicy
type ErrorPolicyFunc func(job *models.BatchJob) PolicyDecision

func (f ErrorPolicyFunc) Evaluate(job *models.BatchJob) PolicyDecision {
	return f(job)
}

// recoveryPolicy applies the job's ErrorRecoveryOptions
type recoveryPolicy struct{}

func NewRecoveryPolicy() ErrorPolicy {
	return recoveryPolicy{}
}

func (recoveryPolicy) Evaluate(job *models.BatchJob) PolicyDecision {
	opts := job.Options.ErrorRecovery
	progress := job.Progress

	if opts.RollbackOnCriticalError {
		for _, e := range job.Errors {
			if e.IsCritical() {
				return DecisionRollback
			}
		}
	}

	if progress.Failed == 0 {
		return DecisionContinue
	}

	if opts.MaxErrors > 0 && progress.Failed >= opts.MaxErrors {
		return DecisionStop
	}

	if opts.MaxErrorRate > 0 && progress.Processed > 0 &&
		float64(progress.Failed)/float64(progress.Processed) > opts.MaxErrorRate {
		return DecisionStop
	}

	if !opts.ContinueOnError {
		return DecisionStop
	}

	return DecisionContinue
}
