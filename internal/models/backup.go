package models

import (
	"time"

	"gorm.io/datatypes"
)

type BackupOperation string

const (
	OperationCreate BackupOperation = "create"
	OperationUpdate BackupOperation = "update"
	OperationDelete BackupOperation = "delete"
)

type BackupStatus string

const (
	BackupActive     BackupStatus = "active"
	BackupRolledBack BackupStatus = "rolled_back"
)

// BackupSnapshot records every entity touched by one import job
type BackupSnapshot struct {
	ID                  string                      `json:"id" gorm:"primaryKey;size:36"`
	JobID               string                      `json:"job_id" gorm:"not null;uniqueIndex;size:36"`
	UserID              string                      `json:"user_id" gorm:"not null;index;size:255"`
	ImportType          ContentType                 `json:"import_type" gorm:"size:32"`
	FileName            string                      `json:"file_name" gorm:"size:255"`
	AffectedCollections datatypes.JSONSlice[string] `json:"affected_collections"`
	Status              BackupStatus                `json:"status" gorm:"default:active;size:20"`
	RolledBackAt        *time.Time                  `json:"rolled_back_at"`
	CreatedAt           time.Time                   `json:"created_at"`

	Entries []BackupEntry `json:"entries,omitempty" gorm:"foreignKey:BackupID"`
}

// BackupEntry is one recorded mutation
type BackupEntry struct {
	ID           uint            `json:"id" gorm:"primaryKey"`
	BackupID     string          `json:"backup_id" gorm:"not null;index;size:36"`
	Collection   string          `json:"collection" gorm:"not null;size:100"`
	EntityID     string          `json:"entity_id" gorm:"not null;size:36"`
	Operation    BackupOperation `json:"operation" gorm:"not null;size:20"`
	CurrentData  datatypes.JSON  `json:"current_data"`
	OriginalData datatypes.JSON  `json:"original_data"`
	Reverted     bool            `json:"reverted"`
	CreatedAt    time.Time       `json:"created_at"`
}

type RollbackOptions struct {
	DryRun      bool     `json:"dryRun"`
	Collections []string `json:"collections,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

type RollbackResult struct {
	BackupID          string   `json:"backupId"`
	JobID             string   `json:"jobId"`
	Success           bool     `json:"success"`
	AlreadyRolledBack bool     `json:"alreadyRolledBack"`
	DryRun            bool     `json:"dryRun"`
	Deleted           int      `json:"deleted"`
	Restored          int      `json:"restored"`
	Recreated         int      `json:"recreated"`
	Errors            []string `json:"errors,omitempty"`
}

type RollbackCheck struct {
	Possible bool     `json:"possible"`
	Reasons  []string `json:"reasons,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}
