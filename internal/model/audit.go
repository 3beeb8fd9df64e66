package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreateUser        = "CREATE_USER"
	ActionUpdateUser        = "UPDATE_USER"
	ActionDeleteUser        = "DELETE_USER"
	ActionResetPassword     = "RESET_PASSWORD"
	ActionSetPermissions    = "SET_FORM_PERMISSIONS"
	ActionCreateSubmission  = "CREATE_SUBMISSION"
	ActionUpdateSubmission  = "UPDATE_SUBMISSION"
	ActionDeleteSubmission  = "DELETE_SUBMISSION"
	ActionAssignWorkflow    = "ASSIGN_WORKFLOW"
	ActionAdvanceStep       = "ADVANCE_WORKFLOW_STEP"
	ActionCompleteWorkflow  = "COMPLETE_WORKFLOW"
	ActionSignSubmission    = "SIGN_SUBMISSION"
	ActionUnlockSubmission  = "UNLOCK_SUBMISSION"
	ActionAttachPDF         = "ATTACH_PDF"
	ActionDedupeSubmissions = "DEDUPE_SUBMISSIONS"
	ActionSeedDemoUsers     = "SEED_DEMO_USERS"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // nil for CLI and system actions
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:text" json:"details"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
