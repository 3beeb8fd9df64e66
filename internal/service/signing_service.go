package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"formflow/internal/apperr"
	"formflow/internal/events"
	"formflow/internal/model"
	"formflow/internal/repository"
	"formflow/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SignRequest struct {
	SignerUsername string `json:"signer_username" binding:"required"`
	SignerPassword string `json:"signer_password" binding:"required"`
	Signature      string `json:"signature" binding:"required"`
}

// SnapshotResponse is everything a client needs to render the submission as a PDF.
type SnapshotResponse struct {
	Submission      SubmissionResponse `json:"submission"`
	FormName        string             `json:"form_name"`
	SubmitterName   string             `json:"submitter_name"`
	SignerName      string             `json:"signer_name,omitempty"`
	SessionUserName string             `json:"session_user_name,omitempty"`
	Locked          bool               `json:"locked"`
	Watermark       string             `json:"watermark,omitempty"`
	Steps           []StepResponse     `json:"steps"`
}

type SigningService interface {
	// Sign locks the submission. The signer re-authenticates with its own credentials,
	// independent of the session that performs the request.
	Sign(ctx context.Context, caller Caller, submissionID uuid.UUID, req SignRequest) (*SubmissionResponse, error)
	Unlock(ctx context.Context, caller Caller, submissionID uuid.UUID) (*SubmissionResponse, error)
	AttachPDF(ctx context.Context, caller Caller, submissionID uuid.UUID, pdf []byte) (*SubmissionResponse, error)
	GetPDF(ctx context.Context, caller Caller, submissionID uuid.UUID) (io.ReadCloser, string, error)
	Snapshot(ctx context.Context, caller Caller, submissionID uuid.UUID) (*SnapshotResponse, error)
}

type signingService struct {
	subs     repository.SubmissionRepository
	auth     AuthService
	workflow WorkflowService
	audit    repository.AuditRepository
	tx       repository.TransactionManager
	blobs    storage.BlobStore
	access   accessChecker
	events   events.Publisher
	logger   *zap.Logger
}

func NewSigningService(
	subs repository.SubmissionRepository,
	steps repository.WorkflowRepository,
	authService AuthService,
	forms FormService,
	workflow WorkflowService,
	audit repository.AuditRepository,
	tx repository.TransactionManager,
	blobs storage.BlobStore,
	publisher events.Publisher,
	logger *zap.Logger,
) SigningService {
	return &signingService{
		subs:     subs,
		auth:     authService,
		workflow: workflow,
		audit:    audit,
		tx:       tx,
		blobs:    blobs,
		access:   accessChecker{forms: forms, steps: steps},
		events:   publisher,
		logger:   logger.Named("signing"),
	}
}

const maxPDFBytes = 10 << 20

func pdfKey(id uuid.UUID) string { return "submissions/" + id.String() + ".pdf" }

func pdfURL(id uuid.UUID) string { return "/api/submissions/" + id.String() + "/pdf" }

func (s *signingService) loadVisible(ctx context.Context, caller Caller, id uuid.UUID) (*model.Submission, error) {
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromDB(err, "submission")
	}
	if err := s.access.canView(ctx, caller, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *signingService) reload(ctx context.Context, id uuid.UUID) (*SubmissionResponse, error) {
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromDB(err, "submission")
	}
	res := toSubmissionResponse(sub)
	return &res, nil
}

func (s *signingService) Sign(ctx context.Context, caller Caller, submissionID uuid.UUID, req SignRequest) (*SubmissionResponse, error) {
	if _, err := parseSignatureImage(req.Signature); err != nil {
		return nil, err
	}
	if _, err := s.loadVisible(ctx, caller, submissionID); err != nil {
		return nil, err
	}
	signer, err := s.auth.VerifyCredentials(ctx, req.SignerUsername, req.SignerPassword)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnauthorized {
			return nil, apperr.Unauthorized("invalid signer credentials")
		}
		return nil, err
	}
	if !signer.Role.Privileged() {
		return nil, apperr.Forbidden("signer %q is not authorized to sign submissions", signer.Username)
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		sub, err := s.subs.GetForUpdate(txCtx, submissionID)
		if err != nil {
			return apperr.FromDB(err, "submission")
		}
		if sub.IsSigned {
			return apperr.Conflict("submission is already signed")
		}
		payload, err := decodePayload(sub.SubmissionData)
		if err != nil {
			return err
		}
		hash, err := payload.Hash()
		if err != nil {
			return err
		}
		payload[model.SignatureKey] = req.Signature
		data, err := payload.encode()
		if err != nil {
			return err
		}

		now := time.Now()
		ok, err := s.subs.CompareAndUpdate(txCtx, sub.ID, sub.Version, false, map[string]any{
			"is_signed":              true,
			"signed_by":              signer.ID,
			"signed_at":              now,
			"signed_session_user_id": caller.ID,
			"payload_hash":           hash,
			"submission_data":        data,
		})
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("submission is already signed")
		}
		if err := s.subs.CreateSignature(txCtx, &model.Signature{
			SubmissionID:  sub.ID,
			UserID:        signer.ID,
			Kind:          model.SignatureFinal,
			SignatureHash: hash,
		}); err != nil {
			return err
		}
		return writeAudit(txCtx, s.audit, caller.ref(), model.ActionSignSubmission, sub.ID.String(), sub.CustomerName, map[string]any{
			"signer_id":       signer.ID,
			"signer_username": signer.Username,
			"session_user_id": caller.ID,
			"payload_hash":    hash,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("submission signed",
		zap.String("submission_id", submissionID.String()),
		zap.String("signer", signer.Username),
		zap.String("session_user", caller.Username),
	)
	s.events.Publish(events.New(events.SubmissionSigned, submissionID, caller.ref(), map[string]any{"signer_id": signer.ID}))
	return s.reload(ctx, submissionID)
}

func (s *signingService) Unlock(ctx context.Context, caller Caller, submissionID uuid.UUID) (*SubmissionResponse, error) {
	if !caller.Privileged() {
		return nil, apperr.Forbidden("only an administrator or CEO can unlock submissions")
	}

	var hadPDF bool
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		sub, err := s.subs.GetForUpdate(txCtx, submissionID)
		if err != nil {
			return apperr.FromDB(err, "submission")
		}
		if !sub.IsSigned {
			return apperr.Conflict("submission is not signed")
		}
		payload, err := decodePayload(sub.SubmissionData)
		if err != nil {
			return err
		}
		delete(payload, model.SignatureKey)
		data, err := payload.encode()
		if err != nil {
			return err
		}
		hadPDF = sub.PDFURL != nil

		ok, err := s.subs.CompareAndUpdate(txCtx, sub.ID, sub.Version, true, map[string]any{
			"is_signed":              false,
			"signed_by":              nil,
			"signed_at":              nil,
			"signed_session_user_id": nil,
			"payload_hash":           "",
			"pdf_url":                nil,
			"submission_data":        data,
		})
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("submission is not signed")
		}
		return writeAudit(txCtx, s.audit, caller.ref(), model.ActionUnlockSubmission, sub.ID.String(), sub.CustomerName, map[string]any{
			"previous_signer_id":       uuidPtrString(sub.SignedBy),
			"previous_signed_at":       sub.SignedAt,
			"previous_session_user_id": uuidPtrString(sub.SignedSessionUserID),
		})
	})
	if err != nil {
		return nil, err
	}

	if hadPDF {
		if err := s.blobs.Delete(ctx, pdfKey(submissionID)); err != nil {
			s.logger.Warn("failed to delete pdf of unlocked submission", zap.Error(err), zap.String("submission_id", submissionID.String()))
		}
	}
	s.events.Publish(events.New(events.SubmissionUnlocked, submissionID, caller.ref(), nil))
	return s.reload(ctx, submissionID)
}

func (s *signingService) AttachPDF(ctx context.Context, caller Caller, submissionID uuid.UUID, pdf []byte) (*SubmissionResponse, error) {
	if len(pdf) == 0 || !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		return nil, apperr.Validation("file is not a PDF document")
	}
	if len(pdf) > maxPDFBytes {
		return nil, apperr.Validation("PDF exceeds %d bytes", maxPDFBytes)
	}
	sub, err := s.loadVisible(ctx, caller, submissionID)
	if err != nil {
		return nil, err
	}
	if !sub.IsSigned {
		return nil, apperr.Conflict("only signed submissions can have a PDF")
	}

	if err := s.blobs.Put(ctx, pdfKey(sub.ID), "application/pdf", pdf); err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			return nil, apperr.Unavailable(err, "PDF storage is not available")
		}
		return nil, fmt.Errorf("store pdf: %w", err)
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		ok, err := s.subs.CompareAndUpdate(txCtx, sub.ID, sub.Version, true, map[string]any{
			"pdf_url": pdfURL(sub.ID),
		})
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("submission changed while the PDF was uploaded")
		}
		return writeAudit(txCtx, s.audit, caller.ref(), model.ActionAttachPDF, sub.ID.String(), sub.CustomerName, map[string]any{
			"bytes": len(pdf),
		})
	})
	if err != nil {
		if delErr := s.blobs.Delete(ctx, pdfKey(sub.ID)); delErr != nil {
			s.logger.Warn("failed to clean up pdf", zap.Error(delErr))
		}
		return nil, err
	}

	s.events.Publish(events.New(events.SubmissionPDFAttached, sub.ID, caller.ref(), nil))
	return s.reload(ctx, sub.ID)
}

func (s *signingService) GetPDF(ctx context.Context, caller Caller, submissionID uuid.UUID) (io.ReadCloser, string, error) {
	sub, err := s.loadVisible(ctx, caller, submissionID)
	if err != nil {
		return nil, "", err
	}
	if sub.PDFURL == nil {
		return nil, "", apperr.NotFound("submission has no PDF")
	}
	rc, contentType, err := s.blobs.Get(ctx, pdfKey(sub.ID))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, "", apperr.NotFound("submission has no PDF")
	case errors.Is(err, storage.ErrNotConfigured):
		return nil, "", apperr.Unavailable(err, "PDF storage is not available")
	case err != nil:
		return nil, "", err
	}
	return rc, contentType, nil
}

func (s *signingService) Snapshot(ctx context.Context, caller Caller, submissionID uuid.UUID) (*SnapshotResponse, error) {
	sub, err := s.loadVisible(ctx, caller, submissionID)
	if err != nil {
		return nil, err
	}
	wf, err := s.workflow.Get(ctx, caller, submissionID)
	if err != nil {
		return nil, err
	}

	res := &SnapshotResponse{
		Submission:      toSubmissionResponse(sub),
		SubmitterName:   displayName(sub.User),
		SignerName:      displayName(sub.Signer),
		SessionUserName: displayName(sub.SessionUser),
		Locked:          sub.IsSigned,
		Steps:           wf.Steps,
	}
	if sub.Form != nil {
		res.FormName = sub.Form.Name
	}
	if sub.IsSigned {
		res.Watermark = "SIGNED"
	}
	return res, nil
}
