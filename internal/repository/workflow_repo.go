package repository

import (
	"context"

	"formflow/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WorkflowRepository interface {
	CreateSteps(ctx context.Context, steps []model.WorkflowStep) error
	ListBySubmission(ctx context.Context, submissionID uuid.UUID) ([]model.WorkflowStep, error)
	SaveStep(ctx context.Context, step *model.WorkflowStep) error
	// ListCurrentForUser returns the user's unsigned steps whose predecessors are all signed.
	ListCurrentForUser(ctx context.Context, userID uuid.UUID) ([]model.WorkflowStep, error)
}

type workflowRepository struct {
	db *gorm.DB
}

func NewWorkflowRepository(db *gorm.DB) WorkflowRepository {
	return &workflowRepository{db: db}
}

func (r *workflowRepository) CreateSteps(ctx context.Context, steps []model.WorkflowStep) error {
	return GetDB(ctx, r.db).Create(&steps).Error
}

func (r *workflowRepository) ListBySubmission(ctx context.Context, submissionID uuid.UUID) ([]model.WorkflowStep, error) {
	var steps []model.WorkflowStep
	err := GetDB(ctx, r.db).
		Preload("User", unscoped).
		Where("submission_id = ?", submissionID).
		Order("sequence_order ASC").
		Find(&steps).Error
	return steps, err
}

func (r *workflowRepository) SaveStep(ctx context.Context, step *model.WorkflowStep) error {
	return GetDB(ctx, r.db).Omit("User").Save(step).Error
}

func (r *workflowRepository) ListCurrentForUser(ctx context.Context, userID uuid.UUID) ([]model.WorkflowStep, error) {
	var steps []model.WorkflowStep
	err := GetDB(ctx, r.db).
		Table("workflow_steps AS ws").
		Select("ws.*").
		Joins("JOIN submissions s ON s.id = ws.submission_id").
		Where("ws.user_id = ? AND ws.signed = ? AND s.status = ?", userID, false, model.StatusInProgress).
		Where(`NOT EXISTS (
			SELECT 1 FROM workflow_steps prev
			WHERE prev.submission_id = ws.submission_id
			  AND prev.sequence_order < ws.sequence_order
			  AND prev.signed = ?
		)`, false).
		Order("ws.created_at ASC").
		Find(&steps).Error
	return steps, err
}
