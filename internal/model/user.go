package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the account-level role of a user.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
	RoleCEO      Role = "ceo"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEmployee, RoleCEO:
		return true
	}
	return false
}

// Privileged roles may sign, unlock and delete submissions.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleCEO
}

// Company is the legal entity a user belongs to.
type Company string

const (
	CompanyHoldings Company = "Caesarpack Holdings"
	CompanyKuwait   Company = "Caesarpac Kuwait"
	CompanyBoxes    Company = "KuwaitBoxes"
	CompanyIraq     Company = "Caesarpac Iraq"
)

var Companies = []Company{CompanyHoldings, CompanyKuwait, CompanyBoxes, CompanyIraq}

func (c Company) Valid() bool {
	for _, known := range Companies {
		if c == known {
			return true
		}
	}
	return false
}

// User represents an account that can submit, approve or sign forms
type User struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	FullName     string         `gorm:"type:varchar(255);not null" json:"full_name"`
	Username     string         `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	Email        *string        `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	PasswordHash string         `gorm:"type:varchar(255);not null" json:"-"`
	Company      Company        `gorm:"type:varchar(50);not null" json:"company"`
	Role         Role           `gorm:"type:varchar(20);not null;default:employee" json:"role"`
	Designation  string         `gorm:"type:varchar(255)" json:"designation"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// RefreshToken stores long-lived tokens allowing users to request new access tokens
type RefreshToken struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Token     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"token"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (t *RefreshToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
