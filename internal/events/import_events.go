package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the kinds of import lifecycle events
type EventType string

const (
	EventImportStarted    EventType = "import.started"
	EventImportPaused     EventType = "import.paused"
	EventImportResumed    EventType = "import.resumed"
	EventImportCompleted  EventType = "import.completed"
	EventImportFailed     EventType = "import.failed"
	EventImportCancelled  EventType = "import.cancelled"
	EventImportRolledBack EventType = "import.rolled_back"

	EventCategoryCreated EventType = "category.created"
	EventCategoryMapped  EventType = "category.mapped"
)

const (
	eventSource  = "content-import-service"
	eventVersion = "1.0"
)

// ImportEvent is the envelope published for every import lifecycle change
type ImportEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	UserID    string                 `json:"user_id,omitempty"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type JobEventData struct {
	JobID       string `json:"job_id"`
	ContentType string `json:"content_type"`
	FileName    string `json:"file_name,omitempty"`
	Status      string `json:"status"`
	Total       int    `json:"total"`
	Processed   int    `json:"processed"`
	Successful  int    `json:"successful"`
	Failed      int    `json:"failed"`
	ErrorCount  int    `json:"error_count"`
}

type RollbackEventData struct {
	JobID     string `json:"job_id"`
	BackupID  string `json:"backup_id"`
	Deleted   int    `json:"deleted"`
	Restored  int    `json:"restored"`
	Recreated int    `json:"recreated"`
	Success   bool   `json:"success"`
}

type CategoryEventData struct {
	CategoryID   string  `json:"category_id,omitempty"`
	Name         string  `json:"name"`
	OriginalName string  `json:"original_name,omitempty"`
	Action       string  `json:"action,omitempty"`
	Confidence   float64 `json:"confidence,omitempty"`
}

// NewImportEvent builds an event envelope with a fresh id
func NewImportEvent(eventType EventType, userID string, data interface{}) *ImportEvent {
	return &ImportEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    eventSource,
		Version:   eventVersion,
		UserID:    userID,
		Data:      data,
	}
}

// WithMetadata attaches a metadata key and returns the event
func (e *ImportEvent) WithMetadata(key string, value interface{}) *ImportEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}
