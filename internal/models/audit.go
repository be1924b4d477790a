package models

import (
	"time"

	"gorm.io/datatypes"
)

type AuditEventType string

const (
	AuditImportStarted       AuditEventType = "import_started"
	AuditImportCompleted     AuditEventType = "import_completed"
	AuditImportFailed        AuditEventType = "import_failed"
	AuditImportCancelled     AuditEventType = "import_cancelled"
	AuditImportPaused        AuditEventType = "import_paused"
	AuditImportResumed       AuditEventType = "import_resumed"
	AuditRollbackExecuted    AuditEventType = "rollback_executed"
	AuditValidationPerformed AuditEventType = "validation_performed"
	AuditCategoryMapped      AuditEventType = "category_mapped"
	AuditCategoryCreated     AuditEventType = "category_created"
)

type AuditLog struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	EventType AuditEventType `json:"event_type" gorm:"not null;index;size:50"`

	// Actor information
	UserID string `json:"user_id" gorm:"not null;index;size:255"`

	// Target information
	TargetType string `json:"target_type" gorm:"size:50;index"` // import_job, category, backup
	TargetID   string `json:"target_id" gorm:"index;size:36"`

	// Event details
	Description string         `json:"description" gorm:"not null;type:text"`
	Metadata    datatypes.JSON `json:"metadata"` // Additional context

	// Compliance
	ComplianceLevel string `json:"compliance_level" gorm:"size:20"`      // low, medium, high, critical
	RetentionPeriod int    `json:"retention_period" gorm:"default:2555"` // days

	CreatedAt time.Time `json:"created_at" gorm:"index"`
}
