package database

import (
	"context"
	"errors"
	"fmt"

	"formflow/internal/model"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DemoPassword is shared by every seeded demo account.
const DemoPassword = "demo123"

type demoAccount struct {
	username    string
	fullName    string
	role        model.Role
	designation string
}

var demoAccounts = []demoAccount{
	{"admin", "Demo Admin", model.RoleAdmin, "Administrator"},
	{"demo", "Demo User", model.RoleEmployee, "Employee"},
	{"nra", "NRA Officer", model.RoleEmployee, "Quality Reviewer"},
	{"ras", "RAS Director", model.RoleEmployee, "Sales Director"},
	{"hoz", "HOZ Executive", model.RoleCEO, "CEO"},
	{"mda", "MDA Manager", model.RoleEmployee, "Finance Manager"},
}

// SeedReferenceData inserts the form templates and departments when missing.
func SeedReferenceData(ctx context.Context, db *gorm.DB) error {
	form := model.Form{
		Name:        "Customer Rejection",
		Slug:        model.CustomerRejectionSlug,
		Description: "Form for recording customer rejections and complaints.",
	}
	if err := db.WithContext(ctx).Where(model.Form{Slug: form.Slug}).FirstOrCreate(&form).Error; err != nil {
		return fmt.Errorf("seed form: %w", err)
	}

	for i, name := range model.DefaultDepartments {
		dept := model.Department{Name: name, SortOrder: i + 1}
		if err := db.WithContext(ctx).Where(model.Department{Name: name}).FirstOrCreate(&dept).Error; err != nil {
			return fmt.Errorf("seed department %s: %w", name, err)
		}
	}
	return nil
}

// SeedDemoUsers creates the demo accounts that do not exist yet and grants each of
// them the customer rejection form. It returns the usernames it created.
func SeedDemoUsers(ctx context.Context, db *gorm.DB) ([]string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash demo password: %w", err)
	}

	var form model.Form
	if err := db.WithContext(ctx).First(&form, "slug = ?", model.CustomerRejectionSlug).Error; err != nil {
		return nil, fmt.Errorf("load customer rejection form: %w", err)
	}

	created := []string{}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, acc := range demoAccounts {
			var user model.User
			err := tx.Unscoped().First(&user, "username = ?", acc.username).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				user = model.User{
					FullName:     acc.fullName,
					Username:     acc.username,
					PasswordHash: string(hash),
					Company:      model.CompanyHoldings,
					Role:         acc.role,
					Designation:  acc.designation,
				}
				if err := tx.Create(&user).Error; err != nil {
					return fmt.Errorf("create demo user %s: %w", acc.username, err)
				}
				created = append(created, acc.username)
			case err != nil:
				return err
			}

			perm := model.UserFormPermission{UserID: user.ID, FormID: form.ID}
			if err := tx.Where(model.UserFormPermission{UserID: user.ID, FormID: form.ID}).FirstOrCreate(&perm).Error; err != nil {
				return fmt.Errorf("grant demo permission %s: %w", acc.username, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
