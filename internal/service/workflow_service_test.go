package service

import (
	"context"
	"encoding/json"
	"testing"

	"formflow/internal/apperr"
	"formflow/internal/config"
	"formflow/internal/database"
	"formflow/internal/events"
	"formflow/internal/model"
	"formflow/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// demoCallers seeds the demo accounts that make up the default chain.
func demoCallers(t *testing.T, env *testEnv) map[string]Caller {
	t.Helper()
	_, err := database.SeedDemoUsers(context.Background(), env.db)
	require.NoError(t, err)
	var users []model.User
	require.NoError(t, env.db.Find(&users).Error)
	out := map[string]Caller{}
	for i := range users {
		out[users[i].Username] = callerOf(&users[i])
	}
	return out
}

func TestWorkflow_DefaultChainRunsInOrder(t *testing.T) {
	env := newEnv(t, config.DefaultChain())
	ctx := context.Background()
	u := demoCallers(t, env)

	sub := env.submit(t, u["demo"], "SN-1", "Acme", 100, "Ink")
	assert.Equal(t, string(model.StatusInProgress), sub.Status)
	id := uuid.MustParse(sub.ID)

	wf, err := env.workflow.Get(ctx, u["demo"], id)
	require.NoError(t, err)
	require.Len(t, wf.Steps, 4)
	assert.Equal(t, []string{"reviewer", "sales_director", "ceo", "finance"}, []string{
		wf.Steps[0].ApproverRole, wf.Steps[1].ApproverRole, wf.Steps[2].ApproverRole, wf.Steps[3].ApproverRole,
	})
	assert.True(t, wf.Steps[0].Current)
	assert.False(t, wf.CanApprove)

	_, err = env.workflow.Advance(ctx, u["ras"], id, AdvanceStepRequest{})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.ErrorContains(t, err, "not your turn")

	_, err = env.workflow.Advance(ctx, u["demo"], id, AdvanceStepRequest{})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	ok, err := env.workflow.CanStepApprove(ctx, id, u["nra"].ID)
	require.NoError(t, err)
	assert.True(t, ok)

	for _, name := range []string{"nra", "ras", "hoz"} {
		wf, err = env.workflow.Advance(ctx, u[name], id, AdvanceStepRequest{Comments: "ok by " + name})
		require.NoError(t, err, name)
		assert.Equal(t, string(model.StatusInProgress), wf.Status)
	}

	_, err = env.workflow.Advance(ctx, u["hoz"], id, AdvanceStepRequest{})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	wf, err = env.workflow.Advance(ctx, u["mda"], id, AdvanceStepRequest{})
	require.NoError(t, err)
	assert.Equal(t, string(model.StatusCompleted), wf.Status)
	for _, st := range wf.Steps {
		assert.True(t, st.Signed)
		assert.NotNil(t, st.SignedAt)
	}
	assert.Equal(t, "ok by ras", wf.Steps[1].Comments)

	_, err = env.workflow.Advance(ctx, u["mda"], id, AdvanceStepRequest{})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	actions := env.auditActions(t)
	assert.Contains(t, actions, model.ActionCompleteWorkflow)
	assert.Contains(t, env.events.types(), events.WorkflowCompleted)

	var sigs int64
	env.db.Model(&model.Signature{}).Where("submission_id = ? AND kind = ?", id, model.SignatureStep).Count(&sigs)
	assert.EqualValues(t, 4, sigs)
}

func TestWorkflow_AdvanceMergesFields(t *testing.T) {
	env := newEnv(t, config.DefaultChain())
	ctx := context.Background()
	u := demoCallers(t, env)
	sub := env.submit(t, u["demo"], "SN-1", "Acme", 100, "Ink")
	id := uuid.MustParse(sub.ID)

	_, err := env.workflow.Advance(ctx, u["nra"], id, AdvanceStepRequest{UpdatedFields: map[string]any{"serialNumber": "SN-X"}})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = env.workflow.Advance(ctx, u["nra"], id, AdvanceStepRequest{UpdatedFields: map[string]any{"responsibleDepartment": "Nowhere"}})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	wf, err := env.workflow.Advance(ctx, u["nra"], id, AdvanceStepRequest{
		UpdatedFields: map[string]any{"totalDiscount": 80.0, "rootCause": "misprint", model.SignatureKey: "ignored"},
		Comments:      "reduced",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"totalDiscount":80,"rootCause":"misprint"}`, string(wf.Steps[0].UpdatedFields))

	got, err := env.submissions.Get(ctx, u["demo"], id)
	require.NoError(t, err)
	var data map[string]any
	require.NoError(t, json.Unmarshal(got.SubmissionData, &data))
	assert.Equal(t, 80.0, data["totalDiscount"])
	assert.Equal(t, "misprint", data["rootCause"])
	assert.Equal(t, "SN-1", data["serialNumber"])
	assert.NotContains(t, data, model.SignatureKey)
}

func TestWorkflow_ListPending(t *testing.T) {
	env := newEnv(t, config.DefaultChain())
	ctx := context.Background()
	u := demoCallers(t, env)
	first := env.submit(t, u["demo"], "SN-1", "Acme", 1)
	second := env.submit(t, u["demo"], "SN-2", "Acme", 1)

	pending, err := env.workflow.ListPending(ctx, u["nra"])
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	pending, err = env.workflow.ListPending(ctx, u["ras"])
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = env.workflow.Advance(ctx, u["nra"], uuid.MustParse(first.ID), AdvanceStepRequest{})
	require.NoError(t, err)

	pending, err = env.workflow.ListPending(ctx, u["nra"])
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	pending, err = env.workflow.ListPending(ctx, u["ras"])
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].ID)
}

func TestWorkflow_DefaultChainSkippedWhenApproverMissing(t *testing.T) {
	env := newEnv(t, config.DefaultChain())
	alice := env.member(t, "alice", model.RoleEmployee)

	sub := env.submit(t, alice, "SN-1", "Acme", 1)
	assert.Equal(t, string(model.StatusPending), sub.Status)

	var steps int64
	env.db.Model(&model.WorkflowStep{}).Count(&steps)
	assert.Zero(t, steps)
}

func TestWorkflow_Assign(t *testing.T) {
	env := newEnv(t, config.WorkflowChain{})
	ctx := context.Background()
	alice := env.member(t, "alice", model.RoleEmployee)
	admin := callerOf(testutil.CreateUser(t, env.db, "root", model.RoleAdmin))
	ceo := callerOf(testutil.CreateUser(t, env.db, "chief", model.RoleCEO))
	r1 := testutil.CreateUser(t, env.db, "r1", model.RoleEmployee)
	r2 := testutil.CreateUser(t, env.db, "r2", model.RoleEmployee)
	sub := env.submit(t, alice, "SN-1", "Acme", 1)
	id := uuid.MustParse(sub.ID)

	valid := AssignWorkflowRequest{Steps: []StepInput{
		{UserID: r2.ID.String(), SequenceOrder: 2, ApproverRole: "ceo"},
		{UserID: r1.ID.String(), SequenceOrder: 1, ApproverRole: "reviewer"},
	}}

	_, err := env.workflow.Assign(ctx, ceo, id, valid)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	invalid := []AssignWorkflowRequest{
		{Steps: nil},
		{Steps: []StepInput{{UserID: r1.ID.String(), SequenceOrder: 1, ApproverRole: "reviewer"}, {UserID: r2.ID.String(), SequenceOrder: 3, ApproverRole: "ceo"}}},
		{Steps: []StepInput{{UserID: r1.ID.String(), SequenceOrder: 1, ApproverRole: "reviewer"}, {UserID: r1.ID.String(), SequenceOrder: 2, ApproverRole: "ceo"}}},
		{Steps: []StepInput{{UserID: r1.ID.String(), SequenceOrder: 1, ApproverRole: "janitor"}}},
		{Steps: []StepInput{{UserID: "nope", SequenceOrder: 1, ApproverRole: "reviewer"}}},
		{Steps: []StepInput{{UserID: uuid.NewString(), SequenceOrder: 1, ApproverRole: "reviewer"}}},
	}
	for i, req := range invalid {
		_, err := env.workflow.Assign(ctx, admin, id, req)
		assert.ErrorIs(t, err, apperr.ErrValidation, "case %d", i)
	}

	wf, err := env.workflow.Assign(ctx, admin, id, valid)
	require.NoError(t, err)
	assert.Equal(t, string(model.StatusInProgress), wf.Status)
	require.Len(t, wf.Steps, 2)
	assert.Equal(t, r1.ID.String(), wf.Steps[0].UserID)
	assert.Equal(t, "User r1", wf.Steps[0].ApproverName)

	_, err = env.workflow.Assign(ctx, admin, id, valid)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	// approvers can read the submission through the chain
	got, err := env.workflow.Get(ctx, callerOf(r1), id)
	require.NoError(t, err)
	assert.True(t, got.CanApprove)
	assert.Contains(t, env.auditActions(t), model.ActionAssignWorkflow)
}

func TestValidateChainAndTurnOf(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	steps := []model.WorkflowStep{
		{UserID: a, SequenceOrder: 1, ApproverRole: model.ApproverReviewer},
		{UserID: b, SequenceOrder: 2, ApproverRole: model.ApproverFinance},
	}
	require.NoError(t, validateChain(steps))

	_, err := turnOf(steps, b)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	mine, err := turnOf(steps, a)
	require.NoError(t, err)
	assert.Equal(t, 1, mine.SequenceOrder)

	steps[0].Signed = true
	_, err = turnOf(steps, a)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	mine, err = turnOf(steps, b)
	require.NoError(t, err)
	assert.Equal(t, 2, mine.SequenceOrder)

	_, err = turnOf(steps, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}
