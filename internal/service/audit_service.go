package service

import (
	"context"
	"strings"

	"formflow/internal/apperr"
	"formflow/internal/repository"

	"github.com/google/uuid"
)

type AuditLogResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	Action     string `json:"action"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

// AuditQuery filters the audit listing. Empty fields match everything.
type AuditQuery struct {
	Action   string `form:"action"`
	EntityID string `form:"entity_id"`
	UserID   string `form:"user_id"`
}

func (q AuditQuery) filter() (repository.AuditFilter, error) {
	f := repository.AuditFilter{
		Action:   strings.ToUpper(strings.TrimSpace(q.Action)),
		EntityID: strings.TrimSpace(q.EntityID),
	}
	if q.UserID != "" {
		id, err := uuid.Parse(q.UserID)
		if err != nil {
			return f, apperr.Validation("invalid user_id %q", q.UserID)
		}
		f.UserID = &id
	}
	return f, nil
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, q AuditQuery, page, limit int) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	repo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

// GetAuditLogs returns one page of audit entries, newest first, with usernames resolved.
func (s *auditService) GetAuditLogs(ctx context.Context, q AuditQuery, page, limit int) ([]AuditLogResponse, int64, error) {
	filter, err := q.filter()
	if err != nil {
		return nil, 0, err
	}
	logs, total, err := s.repo.List(ctx, filter, page, limit)
	if err != nil {
		return nil, 0, err
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		username := "System"
		userID := ""
		if l.User != nil {
			username = l.User.Username
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			Username:   username,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.Format(timeLayout),
		})
	}

	return res, total, nil
}
