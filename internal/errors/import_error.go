package errors

import (
	"fmt"
	"time"
)

// ErrorType classifies where an import problem originated
type ErrorType string

const (
	TypeValidation ErrorType = "validation"
	TypeDatabase   ErrorType = "database"
	TypeMapping    ErrorType = "mapping"
	TypeReference  ErrorType = "reference"
	TypeSystem     ErrorType = "system"
)

// Severity is the blocking level of an import error
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
	SeverityWarning  Severity = "warning"
)

// Rank orders severities so that critical > major > minor > warning.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityMajor:
		return 2
	case SeverityMinor:
		return 1
	default:
		return 0
	}
}

// ImportError is a single structured problem found while validating,
// mapping or committing an import.
type ImportError struct {
	Type            ErrorType `json:"type"`
	Severity        Severity  `json:"severity"`
	ItemIndex       *int      `json:"itemIndex,omitempty"`
	Field           string    `json:"field,omitempty"`
	Message         string    `json:"message"`
	Suggestion      string    `json:"suggestion,omitempty"`
	RelatedCategory string    `json:"relatedCategory,omitempty"`
	Code            string    `json:"code,omitempty"`
	OccurredAt      time.Time `json:"occurredAt"`
}

func (e ImportError) Error() string {
	if e.ItemIndex != nil {
		return fmt.Sprintf("%s/%s at item %d: %s", e.Type, e.Severity, *e.ItemIndex, e.Message)
	}
	return fmt.Sprintf("%s/%s: %s", e.Type, e.Severity, e.Message)
}

// IsCritical reports whether the error blocks the whole operation
func (e ImportError) IsCritical() bool {
	return e.Severity == SeverityCritical
}

// NewImportError creates an import error stamped with the current time
func NewImportError(errType ErrorType, severity Severity, message string) ImportError {
	return ImportError{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		OccurredAt: time.Now().UTC(),
	}
}

// NewSystemError converts an unexpected failure into a system/critical error
func NewSystemError(err error) ImportError {
	return NewImportError(TypeSystem, SeverityCritical, err.Error())
}

func (e ImportError) AtItem(index int) ImportError {
	e.ItemIndex = &index
	return e
}

func (e ImportError) OnField(field string) ImportError {
	e.Field = field
	return e
}

func (e ImportError) WithSuggestion(suggestion string) ImportError {
	e.Suggestion = suggestion
	return e
}

func (e ImportError) WithCategory(category string) ImportError {
	e.RelatedCategory = category
	return e
}

func (e ImportError) WithCode(code string) ImportError {
	e.Code = code
	return e
}

// ImportErrors is a list of import errors
type ImportErrors []ImportError

// HasCritical reports whether any error in the list is critical
func (ie ImportErrors) HasCritical() bool {
	for _, e := range ie {
		if e.IsCritical() {
			return true
		}
	}
	return false
}

// CountBySeverity groups the list by severity
func (ie ImportErrors) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int)
	for _, e := range ie {
		counts[e.Severity]++
	}
	return counts
}

// CountByType groups the list by error type
func (ie ImportErrors) CountByType() map[ErrorType]int {
	counts := make(map[ErrorType]int)
	for _, e := range ie {
		counts[e.Type]++
	}
	return counts
}
