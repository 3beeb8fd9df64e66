// Package events carries domain events from services to dashboards and downstream consumers.
package events

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	SubmissionCreated     Type = "submission.created"
	SubmissionUpdated     Type = "submission.updated"
	SubmissionDeleted     Type = "submission.deleted"
	SubmissionSigned      Type = "submission.signed"
	SubmissionUnlocked    Type = "submission.unlocked"
	SubmissionPDFAttached Type = "submission.pdf_attached"
	WorkflowAssigned      Type = "workflow.assigned"
	WorkflowStepSigned    Type = "workflow.step_signed"
	WorkflowCompleted     Type = "workflow.completed"
)

type Event struct {
	Type         Type           `json:"type"`
	SubmissionID uuid.UUID      `json:"submission_id"`
	ActorID      *uuid.UUID     `json:"actor_id,omitempty"`
	At           time.Time      `json:"at"`
	Data         map[string]any `json:"data,omitempty"`
}

func New(t Type, submissionID uuid.UUID, actor *uuid.UUID, data map[string]any) Event {
	return Event{Type: t, SubmissionID: submissionID, ActorID: actor, At: time.Now().UTC(), Data: data}
}

// Publisher must not block the caller.
type Publisher interface {
	Publish(event Event)
}

type multi []Publisher

// Multi fans every event out to all non-nil publishers.
func Multi(publishers ...Publisher) Publisher {
	var m multi
	for _, p := range publishers {
		if p != nil {
			m = append(m, p)
		}
	}
	return m
}

func (m multi) Publish(event Event) {
	for _, p := range m {
		p.Publish(event)
	}
}

type nop struct{}

func Nop() Publisher { return nop{} }

func (nop) Publish(Event) {}
