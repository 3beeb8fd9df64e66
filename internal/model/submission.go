package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SubmissionStatus string

const (
	StatusPending    SubmissionStatus = "pending"
	StatusInProgress SubmissionStatus = "in_progress"
	StatusCompleted  SubmissionStatus = "completed"
	// StatusRejected has no transition into it yet.
	StatusRejected SubmissionStatus = "rejected"
)

// SignatureKey is the reserved payload key holding the signature image.
const SignatureKey = "signature"

// Submission is one filled-in form instance plus its signing metadata.
// IsSigned holds exactly when SignedBy, SignedAt and the signature payload key are all set.
type Submission struct {
	ID                  uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID              uuid.UUID        `gorm:"type:uuid;not null;index" json:"user_id"`
	User                *User            `gorm:"foreignKey:UserID" json:"-"`
	FormID              uuid.UUID        `gorm:"type:uuid;not null;index:idx_submission_dedupe,priority:1" json:"form_id"`
	Form                *Form            `gorm:"foreignKey:FormID" json:"-"`
	Company             Company          `gorm:"type:varchar(50)" json:"company"`
	SubmissionData      datatypes.JSON   `gorm:"not null" json:"submission_data"`
	SerialNumber        string           `gorm:"type:varchar(255);index:idx_submission_dedupe,priority:2" json:"serial_number"`
	CustomerName        string           `gorm:"type:varchar(255);index:idx_submission_dedupe,priority:3" json:"customer_name"`
	Status              SubmissionStatus `gorm:"type:varchar(20);not null;default:pending;index" json:"status"`
	IsSigned            bool             `gorm:"not null;default:false" json:"is_signed"`
	SignedBy            *uuid.UUID       `gorm:"type:uuid" json:"signed_by"`
	Signer              *User            `gorm:"foreignKey:SignedBy" json:"-"`
	SignedAt            *time.Time       `json:"signed_at"`
	SignedSessionUserID *uuid.UUID       `gorm:"type:uuid" json:"signed_session_user_id"`
	SessionUser         *User            `gorm:"foreignKey:SignedSessionUserID" json:"-"`
	PayloadHash         string           `gorm:"type:varchar(64)" json:"payload_hash,omitempty"`
	PDFURL              *string          `gorm:"type:text" json:"pdf_url"`
	Version             int              `gorm:"not null;default:1" json:"version"`
	CreatedAt           time.Time        `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt           time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *Submission) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

type SignatureKind string

const (
	SignatureStep  SignatureKind = "step"
	SignatureFinal SignatureKind = "final"
)

// Signature records one signing event against a submission.
type Signature struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	SubmissionID  uuid.UUID     `gorm:"type:uuid;not null;index" json:"submission_id"`
	UserID        uuid.UUID     `gorm:"type:uuid;not null;index" json:"user_id"`
	Kind          SignatureKind `gorm:"type:varchar(10);not null" json:"kind"`
	SignatureHash string        `gorm:"type:varchar(64);not null" json:"signature_hash"`
	CreatedAt     time.Time     `gorm:"autoCreateTime" json:"created_at"`
}

func (s *Signature) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
