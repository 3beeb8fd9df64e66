package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ApproverRole tags the position a workflow step holds in the approval chain.
type ApproverRole string

const (
	ApproverReviewer      ApproverRole = "reviewer"
	ApproverSalesDirector ApproverRole = "sales_director"
	ApproverCEO           ApproverRole = "ceo"
	ApproverFinance       ApproverRole = "finance"
)

func (r ApproverRole) Valid() bool {
	switch r {
	case ApproverReviewer, ApproverSalesDirector, ApproverCEO, ApproverFinance:
		return true
	}
	return false
}

// WorkflowStep is one approver's position in a submission's sequential chain.
type WorkflowStep struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SubmissionID  uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_step_sequence;uniqueIndex:idx_step_user" json:"submission_id"`
	UserID        uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_step_user;index" json:"user_id"`
	User          *User          `gorm:"foreignKey:UserID" json:"-"`
	ApproverRole  ApproverRole   `gorm:"type:varchar(30);not null" json:"approver_role"`
	SequenceOrder int            `gorm:"not null;uniqueIndex:idx_step_sequence" json:"sequence_order"`
	Signed        bool           `gorm:"not null;default:false" json:"signed"`
	SignedAt      *time.Time     `json:"signed_at"`
	UpdatedFields datatypes.JSON `json:"updated_fields"`
	Comments      string         `gorm:"type:text" json:"comments"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (w *WorkflowStep) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
