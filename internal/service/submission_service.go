package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"formflow/internal/apperr"
	"formflow/internal/events"
	"formflow/internal/model"
	"formflow/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type SubmissionResponse struct {
	ID                  string          `json:"id"`
	FormID              string          `json:"form_id"`
	FormSlug            string          `json:"form_slug,omitempty"`
	UserID              string          `json:"user_id"`
	SubmitterName       string          `json:"submitter_name"`
	Company             string          `json:"company"`
	SubmissionData      json.RawMessage `json:"submission_data"`
	SerialNumber        string          `json:"serial_number"`
	CustomerName        string          `json:"customer_name"`
	Status              string          `json:"status"`
	IsSigned            bool            `json:"is_signed"`
	SignedBy            *string         `json:"signed_by"`
	SignerName          string          `json:"signer_name,omitempty"`
	SignedAt            *string         `json:"signed_at"`
	SignedSessionUserID *string         `json:"signed_session_user_id"`
	SessionUserName     string          `json:"session_user_name,omitempty"`
	PDFURL              *string         `json:"pdf_url"`
	Version             int             `json:"version"`
	CreatedAt           string          `json:"created_at"`
	UpdatedAt           string          `json:"updated_at"`
}

type DedupeReport struct {
	Groups     int      `json:"groups"`
	Deleted    int      `json:"deleted"`
	DeletedIDs []string `json:"deleted_ids"`
}

type SubmissionService interface {
	Create(ctx context.Context, caller Caller, formSlug string, payload Payload) (*SubmissionResponse, error)
	Get(ctx context.Context, caller Caller, id uuid.UUID) (*SubmissionResponse, error)
	List(ctx context.Context, caller Caller, formSlug string) ([]SubmissionResponse, error)
	// ListMine returns the caller's own submissions across all forms, newest first.
	ListMine(ctx context.Context, caller Caller) ([]SubmissionResponse, error)
	Update(ctx context.Context, caller Caller, id uuid.UUID, payload Payload) (*SubmissionResponse, error)
	Delete(ctx context.Context, caller Caller, id uuid.UUID) error
	// Dedupe keeps the earliest submission of every (form, serial number, customer)
	// group and deletes the rest. An empty slug covers every form.
	Dedupe(ctx context.Context, actor Caller, formSlug string) (*DedupeReport, error)
}

type submissionService struct {
	db       *gorm.DB
	repo     repository.SubmissionRepository
	users    repository.UserRepository
	formRepo repository.FormRepository
	forms    FormService
	workflow WorkflowService
	audit    repository.AuditRepository
	tx       repository.TransactionManager
	access   accessChecker
	events   events.Publisher
	logger   *zap.Logger
}

func NewSubmissionService(
	db *gorm.DB,
	repo repository.SubmissionRepository,
	users repository.UserRepository,
	formRepo repository.FormRepository,
	steps repository.WorkflowRepository,
	forms FormService,
	workflow WorkflowService,
	audit repository.AuditRepository,
	tx repository.TransactionManager,
	publisher events.Publisher,
	logger *zap.Logger,
) SubmissionService {
	return &submissionService{
		db:       db,
		repo:     repo,
		users:    users,
		formRepo: formRepo,
		forms:    forms,
		workflow: workflow,
		audit:    audit,
		tx:       tx,
		access:   accessChecker{forms: forms, steps: steps},
		events:   publisher,
		logger:   logger.Named("submissions"),
	}
}

func displayName(u *model.User) string {
	if u == nil {
		return ""
	}
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

func uuidPtrString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func toSubmissionResponse(s *model.Submission) SubmissionResponse {
	res := SubmissionResponse{
		ID:                  s.ID.String(),
		FormID:              s.FormID.String(),
		UserID:              s.UserID.String(),
		SubmitterName:       displayName(s.User),
		Company:             string(s.Company),
		SubmissionData:      json.RawMessage(s.SubmissionData),
		SerialNumber:        s.SerialNumber,
		CustomerName:        s.CustomerName,
		Status:              string(s.Status),
		IsSigned:            s.IsSigned,
		SignedBy:            uuidPtrString(s.SignedBy),
		SignerName:          displayName(s.Signer),
		SignedSessionUserID: uuidPtrString(s.SignedSessionUserID),
		SessionUserName:     displayName(s.SessionUser),
		PDFURL:              s.PDFURL,
		Version:             s.Version,
		CreatedAt:           s.CreatedAt.Format(timeLayout),
		UpdatedAt:           s.UpdatedAt.Format(timeLayout),
	}
	if s.Form != nil {
		res.FormSlug = s.Form.Slug
	}
	if s.SignedAt != nil {
		at := s.SignedAt.Format(timeLayout)
		res.SignedAt = &at
	}
	return res
}

func dedupeKey(formID uuid.UUID, serial, customer string) string {
	return fmt.Sprintf("submission:%s:%s:%s", formID, serial, customer)
}

// ensureNoDuplicate must run inside the transaction that inserts or updates the row.
func (s *submissionService) ensureNoDuplicate(ctx context.Context, formID uuid.UUID, serial, customer string, self uuid.UUID) error {
	if err := repository.LockKey(ctx, s.db, dedupeKey(formID, serial, customer)); err != nil {
		return fmt.Errorf("lock submission key: %w", err)
	}
	_, err := s.repo.FindDuplicate(ctx, formID, serial, customer, self)
	if err == nil {
		return apperr.Conflict("a submission for serial number %q and customer %q already exists", serial, customer)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return nil
}

func (s *submissionService) Create(ctx context.Context, caller Caller, formSlug string, payload Payload) (*SubmissionResponse, error) {
	form, err := s.forms.Resolve(ctx, caller, formSlug)
	if err != nil {
		return nil, err
	}
	known, err := departmentSet(ctx, s.formRepo)
	if err != nil {
		return nil, err
	}
	payload = payload.clean()
	serial, customer, err := validateSubmission(payload, known)
	if err != nil {
		return nil, err
	}
	data, err := payload.encode()
	if err != nil {
		return nil, err
	}

	submitter, err := s.users.GetByID(ctx, caller.ID)
	if err != nil {
		return nil, apperr.FromDB(err, "user")
	}

	sub := &model.Submission{
		UserID:         caller.ID,
		FormID:         form.ID,
		Company:        submitter.Company,
		SubmissionData: data,
		SerialNumber:   serial,
		CustomerName:   customer,
		Status:         model.StatusPending,
		Version:        1,
	}

	var steps []model.WorkflowStep
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.ensureNoDuplicate(txCtx, form.ID, serial, customer, uuid.Nil); err != nil {
			return err
		}
		if err := s.repo.Create(txCtx, sub); err != nil {
			return apperr.FromDB(err, "submission")
		}
		if err := writeAudit(txCtx, s.audit, caller.ref(), model.ActionCreateSubmission, sub.ID.String(), customer, map[string]any{
			"form":          form.Slug,
			"serial_number": serial,
		}); err != nil {
			return err
		}
		steps, err = s.workflow.AssignDefault(txCtx, sub, form.Slug)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("submission created",
		zap.String("submission_id", sub.ID.String()),
		zap.String("form", form.Slug),
		zap.Int("workflow_steps", len(steps)),
	)
	s.events.Publish(events.New(events.SubmissionCreated, sub.ID, caller.ref(), map[string]any{"form": form.Slug}))
	if len(steps) > 0 {
		s.events.Publish(events.New(events.WorkflowAssigned, sub.ID, caller.ref(), map[string]any{"steps": len(steps)}))
	}
	return s.load(ctx, sub.ID)
}

func (s *submissionService) load(ctx context.Context, id uuid.UUID) (*SubmissionResponse, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromDB(err, "submission")
	}
	res := toSubmissionResponse(sub)
	return &res, nil
}

func (s *submissionService) Get(ctx context.Context, caller Caller, id uuid.UUID) (*SubmissionResponse, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromDB(err, "submission")
	}
	if err := s.access.canView(ctx, caller, sub); err != nil {
		return nil, err
	}
	res := toSubmissionResponse(sub)
	return &res, nil
}

func (s *submissionService) List(ctx context.Context, caller Caller, formSlug string) ([]SubmissionResponse, error) {
	form, err := s.forms.Resolve(ctx, caller, formSlug)
	if err != nil {
		return nil, err
	}
	list, err := s.repo.ListByForm(ctx, form.ID, repository.SubmissionFilter{})
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to load submissions")
	}
	return toSubmissionResponses(list), nil
}

func (s *submissionService) ListMine(ctx context.Context, caller Caller) ([]SubmissionResponse, error) {
	list, err := s.repo.ListByUser(ctx, caller.ID)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to load submissions")
	}
	return toSubmissionResponses(list), nil
}

func toSubmissionResponses(list []model.Submission) []SubmissionResponse {
	res := make([]SubmissionResponse, 0, len(list))
	for i := range list {
		res = append(res, toSubmissionResponse(&list[i]))
	}
	return res
}

func (s *submissionService) Update(ctx context.Context, caller Caller, id uuid.UUID, payload Payload) (*SubmissionResponse, error) {
	known, err := departmentSet(ctx, s.formRepo)
	if err != nil {
		return nil, err
	}
	payload = payload.clean()
	serial, customer, err := validateSubmission(payload, known)
	if err != nil {
		return nil, err
	}
	data, err := payload.encode()
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		sub, err := s.repo.GetForUpdate(txCtx, id)
		if err != nil {
			return apperr.FromDB(err, "submission")
		}
		if sub.UserID != caller.ID && !caller.Privileged() {
			return apperr.Forbidden("only the submitter or an administrator can edit this submission")
		}
		if sub.IsSigned {
			return apperr.Conflict("submission is signed and locked; unlock it before editing")
		}
		if serial != sub.SerialNumber || customer != sub.CustomerName {
			if err := s.ensureNoDuplicate(txCtx, sub.FormID, serial, customer, sub.ID); err != nil {
				return err
			}
		}
		ok, err := s.repo.CompareAndUpdate(txCtx, sub.ID, sub.Version, false, map[string]any{
			"submission_data": data,
			"serial_number":   serial,
			"customer_name":   customer,
		})
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("submission was modified concurrently")
		}
		return writeAudit(txCtx, s.audit, caller.ref(), model.ActionUpdateSubmission, sub.ID.String(), customer, map[string]any{
			"serial_number": serial,
		})
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(events.New(events.SubmissionUpdated, id, caller.ref(), nil))
	return s.load(ctx, id)
}

func (s *submissionService) Delete(ctx context.Context, caller Caller, id uuid.UUID) error {
	if !caller.Privileged() {
		return apperr.Forbidden("only an administrator or CEO can delete submissions")
	}
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		sub, err := s.repo.GetForUpdate(txCtx, id)
		if err != nil {
			return apperr.FromDB(err, "submission")
		}
		if err := s.repo.Delete(txCtx, sub.ID); err != nil {
			return err
		}
		return writeAudit(txCtx, s.audit, caller.ref(), model.ActionDeleteSubmission, sub.ID.String(), sub.CustomerName, map[string]any{
			"serial_number": sub.SerialNumber,
			"was_signed":    sub.IsSigned,
		})
	})
	if err != nil {
		return err
	}
	s.events.Publish(events.New(events.SubmissionDeleted, id, caller.ref(), nil))
	return nil
}

func (s *submissionService) Dedupe(ctx context.Context, actor Caller, formSlug string) (*DedupeReport, error) {
	var formID *uuid.UUID
	if formSlug != "" {
		form, err := s.formRepo.GetBySlug(ctx, formSlug)
		if err != nil {
			return nil, apperr.FromDB(err, "form")
		}
		formID = &form.ID
	}

	report := &DedupeReport{DeletedIDs: []string{}}
	var doomed []uuid.UUID
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		list, err := s.repo.ListForDedupe(txCtx, formID)
		if err != nil {
			return err
		}

		kept := map[string]bool{}
		grouped := map[string]bool{}
		for _, sub := range list {
			key := dedupeKey(sub.FormID, sub.SerialNumber, sub.CustomerName)
			if !kept[key] {
				kept[key] = true
				continue
			}
			if !grouped[key] {
				grouped[key] = true
				report.Groups++
			}
			doomed = append(doomed, sub.ID)
		}
		if len(doomed) == 0 {
			return nil
		}

		if err := s.repo.Delete(txCtx, doomed...); err != nil {
			return err
		}
		report.Deleted = len(doomed)
		report.DeletedIDs = uuidStrings(doomed)
		return writeAudit(txCtx, s.audit, actor.ref(), model.ActionDedupeSubmissions, "", formSlug, map[string]any{
			"groups":  report.Groups,
			"deleted": report.DeletedIDs,
		})
	})
	if err != nil {
		return nil, err
	}

	for _, id := range doomed {
		s.events.Publish(events.New(events.SubmissionDeleted, id, actor.ref(), map[string]any{"reason": "dedupe"}))
	}
	return report, nil
}
