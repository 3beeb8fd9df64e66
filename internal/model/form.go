package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const CustomerRejectionSlug = "customer-rejection"

// Form is a template definition identified by slug. Submissions reference it.
type Form struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Slug        string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"slug"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (f *Form) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// UserFormPermission grants a user visibility of a form.
type UserFormPermission struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_form" json:"user_id"`
	FormID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_form" json:"form_id"`
	Form      *Form     `gorm:"foreignKey:FormID" json:"form,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (p *UserFormPermission) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Department is a responsible department a rejection can be attributed to.
type Department struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	SortOrder int       `gorm:"not null;default:0" json:"sort_order"`
}

func (d *Department) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// DefaultDepartments is the seeded department list in display order.
var DefaultDepartments = []string{
	"Converting",
	"Corrugator",
	"Pre-Production",
	"Ink",
	"Quality",
	"Sales",
	"Design",
	"Packing",
	"Logistics/Shipping",
}
