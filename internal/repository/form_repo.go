package repository

import (
	"context"

	"formflow/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FormRepository covers form templates, per-user form permissions and departments.
type FormRepository interface {
	List(ctx context.Context) ([]model.Form, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]model.Form, error)
	GetBySlug(ctx context.Context, slug string) (*model.Form, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Form, error)

	HasPermission(ctx context.Context, userID, formID uuid.UUID) (bool, error)
	PermittedFormIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	ReplacePermissions(ctx context.Context, userID uuid.UUID, formIDs []uuid.UUID) error

	ListDepartments(ctx context.Context) ([]model.Department, error)
}

type formRepository struct {
	db *gorm.DB
}

func NewFormRepository(db *gorm.DB) FormRepository {
	return &formRepository{db: db}
}

func (r *formRepository) List(ctx context.Context) ([]model.Form, error) {
	var forms []model.Form
	err := GetDB(ctx, r.db).Order("name ASC").Find(&forms).Error
	return forms, err
}

func (r *formRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]model.Form, error) {
	var forms []model.Form
	err := GetDB(ctx, r.db).
		Joins("JOIN user_form_permissions ufp ON ufp.form_id = forms.id").
		Where("ufp.user_id = ?", userID).
		Order("forms.name ASC").
		Find(&forms).Error
	return forms, err
}

func (r *formRepository) GetBySlug(ctx context.Context, slug string) (*model.Form, error) {
	var form model.Form
	if err := GetDB(ctx, r.db).First(&form, "slug = ?", slug).Error; err != nil {
		return nil, err
	}
	return &form, nil
}

func (r *formRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Form, error) {
	var forms []model.Form
	if len(ids) == 0 {
		return forms, nil
	}
	err := GetDB(ctx, r.db).Where("id IN ?", ids).Find(&forms).Error
	return forms, err
}

func (r *formRepository) HasPermission(ctx context.Context, userID, formID uuid.UUID) (bool, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.UserFormPermission{}).
		Where("user_id = ? AND form_id = ?", userID, formID).
		Count(&count).Error
	return count > 0, err
}

func (r *formRepository) PermittedFormIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var perms []model.UserFormPermission
	if err := GetDB(ctx, r.db).Where("user_id = ?", userID).Find(&perms).Error; err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(perms))
	for _, p := range perms {
		ids = append(ids, p.FormID)
	}
	return ids, nil
}

// ReplacePermissions must run inside a transaction to be atomic.
func (r *formRepository) ReplacePermissions(ctx context.Context, userID uuid.UUID, formIDs []uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("user_id = ?", userID).Delete(&model.UserFormPermission{}).Error; err != nil {
		return err
	}
	for _, formID := range formIDs {
		if err := db.Create(&model.UserFormPermission{UserID: userID, FormID: formID}).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *formRepository) ListDepartments(ctx context.Context) ([]model.Department, error) {
	var departments []model.Department
	err := GetDB(ctx, r.db).Order("sort_order ASC, name ASC").Find(&departments).Error
	return departments, err
}
