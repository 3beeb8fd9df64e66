package service

import (
	"context"
	"encoding/json"
	"fmt"

	"formflow/internal/model"
	"formflow/internal/repository"

	"github.com/google/uuid"
)

// Caller is the authenticated principal behind a request.
type Caller struct {
	ID       uuid.UUID
	Username string
	Role     model.Role
}

func (c Caller) Privileged() bool { return c.Role.Privileged() }

func (c Caller) ref() *uuid.UUID {
	if c.ID == uuid.Nil {
		return nil
	}
	id := c.ID
	return &id
}

func writeAudit(ctx context.Context, repo repository.AuditRepository, actor *uuid.UUID, action, entityID, entityName string, details map[string]any) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	entry := &model.AuditLog{
		UserID:     actor,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(raw),
	}
	if err := repo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

const timeLayout = "2006-01-02T15:04:05Z07:00"
