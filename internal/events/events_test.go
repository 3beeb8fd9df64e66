package events

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	p := Multi(a, nil, b)

	actor := uuid.New()
	p.Publish(New(WorkflowCompleted, uuid.New(), &actor, map[string]any{"steps": 4}))

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
	assert.Equal(t, WorkflowCompleted, b.events[0].Type)
	assert.Equal(t, &actor, b.events[0].ActorID)

	Nop().Publish(New(WorkflowCompleted, uuid.New(), nil, nil))
}
