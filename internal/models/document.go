package models

import (
	"time"

	"gorm.io/datatypes"
)

// Document is a storage entity as seen by the import core: a flat JSON object
// whose "id" key carries the entity id.
type Document map[string]interface{}

func (d Document) ID() string {
	if id, ok := d["id"].(string); ok {
		return id
	}
	return ""
}

func (d Document) String(key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}

// StoredDocument is the gorm row behind every collection of the document store
type StoredDocument struct {
	ID         string         `gorm:"primaryKey;size:36"`
	Collection string         `gorm:"not null;index;size:100"`
	Data       datatypes.JSON `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (StoredDocument) TableName() string {
	return "documents"
}
