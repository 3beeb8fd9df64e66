package repository

import (
	"context"

	"formflow/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditFilter narrows an audit listing. Zero fields match everything.
type AuditFilter struct {
	Action   string
	EntityID string
	UserID   *uuid.UUID
}

func (f AuditFilter) apply(db *gorm.DB) *gorm.DB {
	if f.Action != "" {
		db = db.Where("action = ?", f.Action)
	}
	if f.EntityID != "" {
		db = db.Where("entity_id = ?", f.EntityID)
	}
	if f.UserID != nil {
		db = db.Where("user_id = ?", *f.UserID)
	}
	return db
}

type AuditRepository interface {
	// Log joins the caller's transaction so the entry commits or rolls back with the change it records.
	Log(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, filter AuditFilter, page, limit int) ([]model.AuditLog, int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Log(ctx context.Context, entry *model.AuditLog) error {
	return GetDB(ctx, r.db).Omit("User").Create(entry).Error
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter, page, limit int) ([]model.AuditLog, int64, error) {
	var logs []model.AuditLog
	var total int64

	db := GetDB(ctx, r.db)
	if err := filter.apply(db.Model(&model.AuditLog{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return logs, 0, nil
	}

	err := filter.apply(db.Preload("User", unscoped)).
		Order("created_at DESC, id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
