package services

import (
	"errors"
	"fmt"

	apperrors "github.com/SAP-F-2025/content-import-service/internal/errors"
	"github.com/SAP-F-2025/content-import-service/internal/repositories"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrForbidden        = errors.New("forbidden - insufficient permissions")
	ErrValidationFailed = errors.New("validation failed")
	ErrInternalError    = errors.New("internal server error")
	ErrBadRequest       = errors.New("bad request")
	ErrConflict         = errors.New("resource conflict")

	// Job specific errors
	ErrJobNotFound         = errors.New("import job not found")
	ErrJobAccessDenied     = errors.New("access denied to import job")
	ErrInvalidTransition   = errors.New("invalid import job status transition")
	ErrRollbackNotPossible = errors.New("import job cannot be rolled back")
	ErrEmptyImport         = errors.New("import contains no items")
	ErrTooManyItems        = errors.New("import exceeds the maximum number of items")

	// Parsing errors
	ErrUnsupportedFormat = errors.New("unsupported import format")
	ErrMalformedDocument = errors.New("malformed import document")

	// Backup and category errors
	ErrBackupNotFound    = errors.New("backup not found")
	ErrCategoryNotFound  = errors.New("category not found")
	ErrCategoryNameEmpty = errors.New("category name is required")
	ErrInvalidMapping    = errors.New("invalid category mapping")
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (bre *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation (%s): %s", bre.Rule, bre.Message)
}

// PreflightError rejects a batch whose validation produced critical errors.
// No job is created when it is returned.
type PreflightError struct {
	Result *ValidationResult `json:"result"`
}

func (pe *PreflightError) Error() string {
	critical := 0
	if pe.Result != nil {
		critical = pe.Result.Errors.CountBySeverity()[apperrors.SeverityCritical]
	}
	return fmt.Sprintf("import rejected: %d critical validation errors", critical)
}

// ===== ERROR HELPERS =====

// NewValidationError creates a new validation error using the shared type
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrJobNotFound) ||
		errors.Is(err, ErrBackupNotFound) ||
		errors.Is(err, ErrCategoryNotFound) ||
		errors.Is(err, repositories.ErrNotFound)
}

// IsUnauthorized checks if error represents an "unauthorized" condition
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrJobAccessDenied)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrBadRequest) ||
		errors.Is(err, ErrEmptyImport) ||
		errors.Is(err, ErrTooManyItems) ||
		errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrMalformedDocument) ||
		errors.Is(err, ErrCategoryNameEmpty) ||
		errors.Is(err, ErrInvalidMapping) {
		return true
	}
	var ve apperrors.ValidationErrors
	if errors.As(err, &ve) {
		return true
	}
	var pe *PreflightError
	return errors.As(err, &pe)
}

// IsBusinessRule checks if error represents a business rule violation
func IsBusinessRule(err error) bool {
	var bre *BusinessRuleError
	return errors.As(err, &bre)
}

// IsConflict checks if error represents a resource conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrRollbackNotPossible)
}
