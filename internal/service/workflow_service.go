package service

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"formflow/internal/apperr"
	"formflow/internal/config"
	"formflow/internal/events"
	"formflow/internal/model"
	"formflow/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type StepInput struct {
	UserID        string `json:"user_id" binding:"required"`
	SequenceOrder int    `json:"sequence_order" binding:"required"`
	ApproverRole  string `json:"approver_role" binding:"required"`
}

type AssignWorkflowRequest struct {
	Steps []StepInput `json:"steps" binding:"required,dive"`
}

type AdvanceStepRequest struct {
	UpdatedFields map[string]any `json:"updated_fields"`
	Comments      string         `json:"comments"`
}

type StepResponse struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	ApproverName  string          `json:"approver_name"`
	ApproverRole  string          `json:"approver_role"`
	SequenceOrder int             `json:"sequence_order"`
	Signed        bool            `json:"signed"`
	SignedAt      *string         `json:"signed_at"`
	Comments      string          `json:"comments,omitempty"`
	UpdatedFields json.RawMessage `json:"updated_fields,omitempty"`
	Current       bool            `json:"current"`
}

type WorkflowResponse struct {
	SubmissionID string         `json:"submission_id"`
	Status       string         `json:"status"`
	CanApprove   bool           `json:"can_approve"`
	Steps        []StepResponse `json:"steps"`
}

type WorkflowService interface {
	Assign(ctx context.Context, actor Caller, submissionID uuid.UUID, req AssignWorkflowRequest) (*WorkflowResponse, error)
	// AssignDefault attaches the configured chain for formSlug inside the caller's
	// transaction. It returns no steps when the chain does not apply.
	AssignDefault(ctx context.Context, sub *model.Submission, formSlug string) ([]model.WorkflowStep, error)
	CanStepApprove(ctx context.Context, submissionID, userID uuid.UUID) (bool, error)
	Advance(ctx context.Context, caller Caller, submissionID uuid.UUID, req AdvanceStepRequest) (*WorkflowResponse, error)
	Get(ctx context.Context, caller Caller, submissionID uuid.UUID) (*WorkflowResponse, error)
	ListPending(ctx context.Context, caller Caller) ([]SubmissionResponse, error)
}

type workflowService struct {
	subs     repository.SubmissionRepository
	steps    repository.WorkflowRepository
	users    repository.UserRepository
	formRepo repository.FormRepository
	audit    repository.AuditRepository
	tx       repository.TransactionManager
	access   accessChecker
	chain    config.WorkflowChain
	events   events.Publisher
	logger   *zap.Logger
}

func NewWorkflowService(
	subs repository.SubmissionRepository,
	steps repository.WorkflowRepository,
	users repository.UserRepository,
	formRepo repository.FormRepository,
	forms FormService,
	audit repository.AuditRepository,
	tx repository.TransactionManager,
	chain config.WorkflowChain,
	publisher events.Publisher,
	logger *zap.Logger,
) WorkflowService {
	return &workflowService{
		subs:     subs,
		steps:    steps,
		users:    users,
		formRepo: formRepo,
		audit:    audit,
		tx:       tx,
		access:   accessChecker{forms: forms, steps: steps},
		chain:    chain,
		events:   publisher,
		logger:   logger.Named("workflow"),
	}
}

// validateChain requires unique users and sequence numbers 1..n without gaps.
func validateChain(steps []model.WorkflowStep) error {
	if len(steps) == 0 {
		return apperr.Validation("a workflow needs at least one step")
	}
	sorted := append([]model.WorkflowStep(nil), steps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SequenceOrder < sorted[j].SequenceOrder })

	users := map[uuid.UUID]bool{}
	for i, st := range sorted {
		if st.SequenceOrder != i+1 {
			return apperr.Validation("sequence orders must be unique and contiguous starting at 1")
		}
		if !st.ApproverRole.Valid() {
			return apperr.Validation("invalid approver role %q", st.ApproverRole)
		}
		if users[st.UserID] {
			return apperr.Validation("a user can hold only one step per workflow")
		}
		users[st.UserID] = true
	}
	return nil
}

// turnOf returns the caller's step when every earlier step is signed.
func turnOf(steps []model.WorkflowStep, userID uuid.UUID) (*model.WorkflowStep, error) {
	var mine *model.WorkflowStep
	for i := range steps {
		if steps[i].UserID == userID {
			mine = &steps[i]
			break
		}
	}
	if mine == nil {
		return nil, apperr.Forbidden("no workflow step is assigned to you")
	}
	if mine.Signed {
		return nil, apperr.Conflict("your workflow step is already signed")
	}
	for _, st := range steps {
		if st.SequenceOrder < mine.SequenceOrder && !st.Signed {
			return nil, apperr.Forbidden("not your turn: predecessors incomplete")
		}
	}
	return mine, nil
}

func (s *workflowService) attach(ctx context.Context, sub *model.Submission, steps []model.WorkflowStep) error {
	if sub.Status != model.StatusPending {
		return apperr.Conflict("submission already has a workflow")
	}
	existing, err := s.steps.ListBySubmission(ctx, sub.ID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return apperr.Conflict("submission already has a workflow")
	}
	for i := range steps {
		steps[i].SubmissionID = sub.ID
	}
	if err := s.steps.CreateSteps(ctx, steps); err != nil {
		return apperr.FromDB(err, "workflow step")
	}
	ok, err := s.subs.CompareAndUpdate(ctx, sub.ID, sub.Version, sub.IsSigned, map[string]any{
		"status": model.StatusInProgress,
	})
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Conflict("submission was modified concurrently")
	}
	sub.Status = model.StatusInProgress
	sub.Version++
	return nil
}

func (s *workflowService) AssignDefault(ctx context.Context, sub *model.Submission, formSlug string) ([]model.WorkflowStep, error) {
	if s.chain.Form != formSlug || len(s.chain.Steps) == 0 {
		return nil, nil
	}
	usernames := make([]string, 0, len(s.chain.Steps))
	for _, st := range s.chain.Steps {
		usernames = append(usernames, st.Username)
	}
	users, err := s.users.GetByUsernames(ctx, usernames)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]uuid.UUID, len(users))
	for _, u := range users {
		byName[u.Username] = u.ID
	}

	steps := make([]model.WorkflowStep, 0, len(s.chain.Steps))
	for _, st := range s.chain.Steps {
		id, ok := byName[st.Username]
		if !ok {
			s.logger.Warn("default approver missing, leaving submission unassigned",
				zap.String("username", st.Username),
				zap.String("submission_id", sub.ID.String()),
			)
			return nil, nil
		}
		steps = append(steps, model.WorkflowStep{
			UserID:        id,
			SequenceOrder: st.Sequence,
			ApproverRole:  model.ApproverRole(st.Role),
		})
	}
	if err := validateChain(steps); err != nil {
		s.logger.Warn("default workflow chain is invalid", zap.Error(err))
		return nil, nil
	}
	if err := s.attach(ctx, sub, steps); err != nil {
		return nil, err
	}
	return steps, nil
}

func (s *workflowService) Assign(ctx context.Context, actor Caller, submissionID uuid.UUID, req AssignWorkflowRequest) (*WorkflowResponse, error) {
	if actor.Role != model.RoleAdmin {
		return nil, apperr.Forbidden("only an administrator can assign workflows")
	}
	steps := make([]model.WorkflowStep, 0, len(req.Steps))
	for _, in := range req.Steps {
		userID, err := uuid.Parse(in.UserID)
		if err != nil {
			return nil, apperr.Validation("invalid user id %q", in.UserID)
		}
		steps = append(steps, model.WorkflowStep{
			UserID:        userID,
			SequenceOrder: in.SequenceOrder,
			ApproverRole:  model.ApproverRole(in.ApproverRole),
		})
	}
	if err := validateChain(steps); err != nil {
		return nil, err
	}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		sub, err := s.subs.GetForUpdate(txCtx, submissionID)
		if err != nil {
			return apperr.FromDB(err, "submission")
		}
		for _, st := range steps {
			if _, err := s.users.GetByID(txCtx, st.UserID); err != nil {
				return apperr.Validation("approver %s does not exist", st.UserID)
			}
		}
		if err := s.attach(txCtx, sub, steps); err != nil {
			return err
		}
		return writeAudit(txCtx, s.audit, actor.ref(), model.ActionAssignWorkflow, sub.ID.String(), sub.CustomerName, map[string]any{
			"steps": len(steps),
		})
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(events.New(events.WorkflowAssigned, submissionID, actor.ref(), map[string]any{"steps": len(steps)}))
	return s.Get(ctx, actor, submissionID)
}

func (s *workflowService) CanStepApprove(ctx context.Context, submissionID, userID uuid.UUID) (bool, error) {
	steps, err := s.steps.ListBySubmission(ctx, submissionID)
	if err != nil {
		return false, err
	}
	_, err = turnOf(steps, userID)
	return err == nil, nil
}

func (s *workflowService) Advance(ctx context.Context, caller Caller, submissionID uuid.UUID, req AdvanceStepRequest) (*WorkflowResponse, error) {
	patch := Payload(req.UpdatedFields).clean()
	if _, ok := patch[fieldSerialNumber]; ok {
		return nil, apperr.Validation("serialNumber cannot be changed during approval")
	}
	if _, ok := patch[fieldCustomerName]; ok {
		return nil, apperr.Validation("customerName cannot be changed during approval")
	}

	var completed bool
	var sequence int
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		sub, err := s.subs.GetForUpdate(txCtx, submissionID)
		if err != nil {
			return apperr.FromDB(err, "submission")
		}
		if sub.Status != model.StatusInProgress {
			return apperr.Conflict("workflow is not in progress")
		}
		steps, err := s.steps.ListBySubmission(txCtx, sub.ID)
		if err != nil {
			return err
		}
		step, err := turnOf(steps, caller.ID)
		if err != nil {
			return err
		}

		payload, err := decodePayload(sub.SubmissionData)
		if err != nil {
			return err
		}
		if len(patch) > 0 {
			if sub.IsSigned {
				return apperr.Conflict("submission is signed and locked")
			}
			payload.merge(patch)
			known, err := departmentSet(txCtx, s.formRepo)
			if err != nil {
				return err
			}
			if _, _, err := validateSubmission(payload, known); err != nil {
				return err
			}
			data, err := payload.encode()
			if err != nil {
				return err
			}
			ok, err := s.subs.CompareAndUpdate(txCtx, sub.ID, sub.Version, false, map[string]any{
				"submission_data": data,
			})
			if err != nil {
				return err
			}
			if !ok {
				return apperr.Conflict("submission was modified concurrently")
			}
			sub.Version++
		}

		now := time.Now()
		step.Signed = true
		step.SignedAt = &now
		step.Comments = req.Comments
		if len(patch) > 0 {
			raw, err := json.Marshal(patch)
			if err != nil {
				return err
			}
			step.UpdatedFields = datatypes.JSON(raw)
		}
		if err := s.steps.SaveStep(txCtx, step); err != nil {
			return err
		}
		sequence = step.SequenceOrder

		hash, err := payload.Hash()
		if err != nil {
			return err
		}
		if err := s.subs.CreateSignature(txCtx, &model.Signature{
			SubmissionID:  sub.ID,
			UserID:        caller.ID,
			Kind:          model.SignatureStep,
			SignatureHash: hash,
		}); err != nil {
			return err
		}
		if err := writeAudit(txCtx, s.audit, caller.ref(), model.ActionAdvanceStep, sub.ID.String(), sub.CustomerName, map[string]any{
			"sequence_order": step.SequenceOrder,
			"approver_role":  step.ApproverRole,
			"updated_fields": patch,
			"comments":       req.Comments,
		}); err != nil {
			return err
		}

		completed = true
		for _, st := range steps {
			if !st.Signed {
				completed = false
				break
			}
		}
		if !completed {
			return nil
		}
		ok, err := s.subs.CompareAndUpdate(txCtx, sub.ID, sub.Version, sub.IsSigned, map[string]any{
			"status": model.StatusCompleted,
		})
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("submission was modified concurrently")
		}
		return writeAudit(txCtx, s.audit, caller.ref(), model.ActionCompleteWorkflow, sub.ID.String(), sub.CustomerName, nil)
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(events.New(events.WorkflowStepSigned, submissionID, caller.ref(), map[string]any{"sequence_order": sequence}))
	if completed {
		s.logger.Info("workflow completed", zap.String("submission_id", submissionID.String()))
		s.events.Publish(events.New(events.WorkflowCompleted, submissionID, caller.ref(), nil))
	}
	return s.Get(ctx, caller, submissionID)
}

func (s *workflowService) Get(ctx context.Context, caller Caller, submissionID uuid.UUID) (*WorkflowResponse, error) {
	sub, err := s.subs.GetByID(ctx, submissionID)
	if err != nil {
		return nil, apperr.FromDB(err, "submission")
	}
	if err := s.access.canView(ctx, caller, sub); err != nil {
		return nil, err
	}
	steps, err := s.steps.ListBySubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	res := &WorkflowResponse{
		SubmissionID: submissionID.String(),
		Status:       string(sub.Status),
		Steps:        make([]StepResponse, 0, len(steps)),
	}
	current := true
	for _, st := range steps {
		item := StepResponse{
			ID:            st.ID.String(),
			UserID:        st.UserID.String(),
			ApproverName:  displayName(st.User),
			ApproverRole:  string(st.ApproverRole),
			SequenceOrder: st.SequenceOrder,
			Signed:        st.Signed,
			Comments:      st.Comments,
			UpdatedFields: json.RawMessage(st.UpdatedFields),
		}
		if st.SignedAt != nil {
			at := st.SignedAt.Format(timeLayout)
			item.SignedAt = &at
		}
		if !st.Signed && current {
			item.Current = true
			current = false
			res.CanApprove = st.UserID == caller.ID && sub.Status == model.StatusInProgress
		}
		res.Steps = append(res.Steps, item)
	}
	return res, nil
}

func (s *workflowService) ListPending(ctx context.Context, caller Caller) ([]SubmissionResponse, error) {
	steps, err := s.steps.ListCurrentForUser(ctx, caller.ID)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to load pending approvals")
	}
	ids := make([]uuid.UUID, 0, len(steps))
	for _, st := range steps {
		ids = append(ids, st.SubmissionID)
	}
	list, err := s.subs.GetByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to load pending approvals")
	}
	res := make([]SubmissionResponse, 0, len(list))
	for i := range list {
		res = append(res, toSubmissionResponse(&list[i]))
	}
	return res, nil
}
