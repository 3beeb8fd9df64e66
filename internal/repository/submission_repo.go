package repository

import (
	"context"

	"formflow/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubmissionFilter narrows a per-form listing. Zero fields match everything.
type SubmissionFilter struct {
	UserID     *uuid.UUID
	SignedOnly bool
}

type SubmissionRepository interface {
	Create(ctx context.Context, submission *model.Submission) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Submission, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Submission, error)
	ListByForm(ctx context.Context, formID uuid.UUID, filter SubmissionFilter) ([]model.Submission, error)
	// ListByUser returns every submission the user created, across forms, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Submission, error)
	ListForDedupe(ctx context.Context, formID *uuid.UUID) ([]model.Submission, error)
	FindDuplicate(ctx context.Context, formID uuid.UUID, serialNumber, customerName string, excludeID uuid.UUID) (*model.Submission, error)
	// CompareAndUpdate applies fields only while the row still has the expected version
	// and signed state. It reports whether the row was updated.
	CompareAndUpdate(ctx context.Context, id uuid.UUID, version int, signed bool, fields map[string]any) (bool, error)
	Delete(ctx context.Context, ids ...uuid.UUID) error

	CreateSignature(ctx context.Context, sig *model.Signature) error
	ListSignatures(ctx context.Context, submissionID uuid.UUID) ([]model.Signature, error)
}

type submissionRepository struct {
	db *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func unscoped(db *gorm.DB) *gorm.DB { return db.Unscoped() }

// withNames preloads every user a submission references, including soft-deleted ones.
func withNames(db *gorm.DB) *gorm.DB {
	return db.Preload("User", unscoped).Preload("Signer", unscoped).Preload("SessionUser", unscoped)
}

func (r *submissionRepository) Create(ctx context.Context, submission *model.Submission) error {
	return GetDB(ctx, r.db).Create(submission).Error
}

func (r *submissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	var s model.Submission
	if err := withNames(GetDB(ctx, r.db)).Preload("Form").First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *submissionRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	var s model.Submission
	err := GetDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&s, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *submissionRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Submission, error) {
	var list []model.Submission
	if len(ids) == 0 {
		return list, nil
	}
	err := withNames(GetDB(ctx, r.db)).
		Where("id IN ?", ids).
		Order("created_at DESC").
		Find(&list).Error
	return list, err
}

func (r *submissionRepository) ListByForm(ctx context.Context, formID uuid.UUID, filter SubmissionFilter) ([]model.Submission, error) {
	var list []model.Submission
	query := withNames(GetDB(ctx, r.db)).Where("form_id = ?", formID)
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.SignedOnly {
		query = query.Where("is_signed = ?", true)
	}
	err := query.Order("created_at DESC").Find(&list).Error
	return list, err
}

func (r *submissionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Submission, error) {
	var list []model.Submission
	err := withNames(GetDB(ctx, r.db)).
		Preload("Form").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&list).Error
	return list, err
}

// ListForDedupe returns submissions oldest first, optionally restricted to one form.
func (r *submissionRepository) ListForDedupe(ctx context.Context, formID *uuid.UUID) ([]model.Submission, error) {
	var list []model.Submission
	query := GetDB(ctx, r.db).Select("id", "form_id", "serial_number", "customer_name", "created_at")
	if formID != nil {
		query = query.Where("form_id = ?", *formID)
	}
	err := query.Order("created_at ASC, id ASC").Find(&list).Error
	return list, err
}

func (r *submissionRepository) FindDuplicate(ctx context.Context, formID uuid.UUID, serialNumber, customerName string, excludeID uuid.UUID) (*model.Submission, error) {
	var s model.Submission
	err := GetDB(ctx, r.db).
		Where("form_id = ? AND serial_number = ? AND customer_name = ? AND id <> ?", formID, serialNumber, customerName, excludeID).
		Order("created_at ASC").
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *submissionRepository) CompareAndUpdate(ctx context.Context, id uuid.UUID, version int, signed bool, fields map[string]any) (bool, error) {
	fields["version"] = gorm.Expr("version + 1")
	res := GetDB(ctx, r.db).Model(&model.Submission{}).
		Where("id = ? AND version = ? AND is_signed = ?", id, version, signed).
		Updates(fields)
	return res.RowsAffected == 1, res.Error
}

func (r *submissionRepository) Delete(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	db := GetDB(ctx, r.db)
	if err := db.Where("submission_id IN ?", ids).Delete(&model.WorkflowStep{}).Error; err != nil {
		return err
	}
	if err := db.Where("submission_id IN ?", ids).Delete(&model.Signature{}).Error; err != nil {
		return err
	}
	return db.Where("id IN ?", ids).Delete(&model.Submission{}).Error
}

func (r *submissionRepository) CreateSignature(ctx context.Context, sig *model.Signature) error {
	return GetDB(ctx, r.db).Create(sig).Error
}

func (r *submissionRepository) ListSignatures(ctx context.Context, submissionID uuid.UUID) ([]model.Signature, error) {
	var sigs []model.Signature
	err := GetDB(ctx, r.db).Where("submission_id = ?", submissionID).Order("created_at ASC").Find(&sigs).Error
	return sigs, err
}
