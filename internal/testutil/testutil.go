// Package testutil builds seeded in-memory databases and fixtures for package tests.
package testutil

import (
	"context"
	"testing"

	"formflow/internal/database"
	"formflow/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Password is the password of every user created by CreateUser.
const Password = "secret123"

// NewDB opens a private in-memory database with the form template and departments seeded.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.NewMemoryConnection("test_"+uuid.NewString(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, database.SeedReferenceData(context.Background(), db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func CreateUser(t testing.TB, db *gorm.DB, username string, role model.Role) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &model.User{
		FullName:     "User " + username,
		Username:     username,
		PasswordHash: string(hash),
		Company:      model.CompanyKuwait,
		Role:         role,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func Form(t testing.TB, db *gorm.DB) *model.Form {
	t.Helper()
	var form model.Form
	require.NoError(t, db.First(&form, "slug = ?", model.CustomerRejectionSlug).Error)
	return &form
}

func GrantForm(t testing.TB, db *gorm.DB, userID uuid.UUID) {
	t.Helper()
	form := Form(t, db)
	require.NoError(t, db.Create(&model.UserFormPermission{UserID: userID, FormID: form.ID}).Error)
}

// Payload returns a valid customer rejection payload.
func Payload(serial, customer string, discount float64, departments ...string) map[string]any {
	p := map[string]any{
		"serialNumber":  serial,
		"customerName":  customer,
		"totalDiscount": discount,
	}
	switch len(departments) {
	case 0:
	case 1:
		p["responsibleDepartment"] = departments[0]
	default:
		deps := make([]any, 0, len(departments))
		for _, d := range departments {
			deps = append(deps, d)
		}
		p["responsibleDepartment"] = deps
	}
	return p
}
