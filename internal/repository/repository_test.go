package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"formflow/internal/model"
	"formflow/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newSubmission(t *testing.T, db *gorm.DB, userID uuid.UUID, serial string) *model.Submission {
	t.Helper()
	sub := &model.Submission{
		UserID:         userID,
		FormID:         testutil.Form(t, db).ID,
		SubmissionData: datatypes.JSON(`{}`),
		SerialNumber:   serial,
		CustomerName:   "Acme",
		Status:         model.StatusPending,
		Version:        1,
	}
	require.NoError(t, NewSubmissionRepository(db).Create(context.Background(), sub))
	return sub
}

func TestTransactionManager_RollbackAndJoin(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	tx := NewTransactionManager(db)
	users := NewUserRepository(db)
	boom := errors.New("boom")

	err := tx.RunInTx(ctx, func(txCtx context.Context) error {
		require.NoError(t, users.Create(txCtx, &model.User{FullName: "A", Username: "a", PasswordHash: "x", Company: model.CompanyIraq, Role: model.RoleEmployee}))
		return tx.RunInTx(txCtx, func(inner context.Context) error {
			require.NoError(t, users.Create(inner, &model.User{FullName: "B", Username: "b", PasswordHash: "x", Company: model.CompanyIraq, Role: model.RoleEmployee}))
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	_, err = users.GetByUsername(ctx, "a")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = users.GetByUsername(ctx, "b")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.NoError(t, LockKey(ctx, db, "anything"))
}

func TestSubmissionRepository_CompareAndUpdate(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := NewSubmissionRepository(db)
	user := testutil.CreateUser(t, db, "alice", model.RoleEmployee)
	sub := newSubmission(t, db, user.ID, "SN-1")

	ok, err := repo.CompareAndUpdate(ctx, sub.ID, 1, false, map[string]any{"customer_name": "Globex"})
	require.NoError(t, err)
	assert.True(t, ok)

	// stale version
	ok, err = repo.CompareAndUpdate(ctx, sub.ID, 1, false, map[string]any{"customer_name": "Initech"})
	require.NoError(t, err)
	assert.False(t, ok)

	// wrong signed state
	ok, err = repo.CompareAndUpdate(ctx, sub.ID, 2, true, map[string]any{"is_signed": false})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "Globex", got.CustomerName)
	assert.Equal(t, 2, got.Version)
	require.NotNil(t, got.User)
	assert.Equal(t, "alice", got.User.Username)
	require.NotNil(t, got.Form)
	assert.Equal(t, model.CustomerRejectionSlug, got.Form.Slug)
}

func TestSubmissionRepository_FindDuplicateAndDelete(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := NewSubmissionRepository(db)
	steps := NewWorkflowRepository(db)
	user := testutil.CreateUser(t, db, "alice", model.RoleEmployee)
	sub := newSubmission(t, db, user.ID, "SN-1")

	found, err := repo.FindDuplicate(ctx, sub.FormID, "SN-1", "Acme", uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, found.ID)

	_, err = repo.FindDuplicate(ctx, sub.FormID, "SN-1", "Acme", sub.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.NoError(t, steps.CreateSteps(ctx, []model.WorkflowStep{{SubmissionID: sub.ID, UserID: user.ID, SequenceOrder: 1, ApproverRole: model.ApproverReviewer}}))
	require.NoError(t, repo.CreateSignature(ctx, &model.Signature{SubmissionID: sub.ID, UserID: user.ID, Kind: model.SignatureFinal, SignatureHash: "h"}))

	require.NoError(t, repo.Delete(ctx, sub.ID))
	_, err = repo.GetByID(ctx, sub.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	left, err := steps.ListBySubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, left)
	sigs, err := repo.ListSignatures(ctx, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestSubmissionRepository_ListByUserAndFilter(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := NewSubmissionRepository(db)
	alice := testutil.CreateUser(t, db, "alice", model.RoleEmployee)
	bob := testutil.CreateUser(t, db, "bob", model.RoleEmployee)

	older := newSubmission(t, db, alice.ID, "SN-1")
	require.NoError(t, db.Model(older).Update("created_at", time.Now().Add(-time.Hour)).Error)
	newer := newSubmission(t, db, alice.ID, "SN-2")
	other := newSubmission(t, db, bob.ID, "SN-3")

	mine, err := repo.ListByUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, newer.ID, mine[0].ID)
	assert.Equal(t, older.ID, mine[1].ID)
	require.NotNil(t, mine[0].Form)
	assert.Equal(t, model.CustomerRejectionSlug, mine[0].Form.Slug)

	list, err := repo.ListByForm(ctx, other.FormID, SubmissionFilter{UserID: &bob.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, other.ID, list[0].ID)

	list, err = repo.ListByForm(ctx, other.FormID, SubmissionFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 3)

	list, err = repo.ListByForm(ctx, other.FormID, SubmissionFilter{SignedOnly: true})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestWorkflowRepository_ListCurrentForUser(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := NewWorkflowRepository(db)
	subs := NewSubmissionRepository(db)
	author := testutil.CreateUser(t, db, "author", model.RoleEmployee)
	first := testutil.CreateUser(t, db, "first", model.RoleEmployee)
	second := testutil.CreateUser(t, db, "second", model.RoleEmployee)

	sub := newSubmission(t, db, author.ID, "SN-1")
	ok, err := subs.CompareAndUpdate(ctx, sub.ID, 1, false, map[string]any{"status": model.StatusInProgress})
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, repo.CreateSteps(ctx, []model.WorkflowStep{
		{SubmissionID: sub.ID, UserID: first.ID, SequenceOrder: 1, ApproverRole: model.ApproverReviewer},
		{SubmissionID: sub.ID, UserID: second.ID, SequenceOrder: 2, ApproverRole: model.ApproverFinance},
	}))

	// a pending submission never shows up
	idle := newSubmission(t, db, author.ID, "SN-2")
	require.NoError(t, repo.CreateSteps(ctx, []model.WorkflowStep{
		{SubmissionID: idle.ID, UserID: first.ID, SequenceOrder: 1, ApproverRole: model.ApproverReviewer},
	}))

	current, err := repo.ListCurrentForUser(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, sub.ID, current[0].SubmissionID)

	current, err = repo.ListCurrentForUser(ctx, second.ID)
	require.NoError(t, err)
	assert.Empty(t, current)

	steps, err := repo.ListBySubmission(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	now := time.Now()
	steps[0].Signed = true
	steps[0].SignedAt = &now
	require.NoError(t, repo.SaveStep(ctx, &steps[0]))

	current, err = repo.ListCurrentForUser(ctx, second.ID)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, 2, current[0].SequenceOrder)
}

func TestWorkflowRepository_UniqueConstraints(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := NewWorkflowRepository(db)
	user := testutil.CreateUser(t, db, "alice", model.RoleEmployee)
	other := testutil.CreateUser(t, db, "bob", model.RoleEmployee)
	sub := newSubmission(t, db, user.ID, "SN-1")

	require.NoError(t, repo.CreateSteps(ctx, []model.WorkflowStep{{SubmissionID: sub.ID, UserID: user.ID, SequenceOrder: 1, ApproverRole: model.ApproverReviewer}}))

	err := repo.CreateSteps(ctx, []model.WorkflowStep{{SubmissionID: sub.ID, UserID: other.ID, SequenceOrder: 1, ApproverRole: model.ApproverFinance}})
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
	err = repo.CreateSteps(ctx, []model.WorkflowStep{{SubmissionID: sub.ID, UserID: user.ID, SequenceOrder: 2, ApproverRole: model.ApproverFinance}})
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestAuditRepository_List(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := NewAuditRepository(db)
	user := testutil.CreateUser(t, db, "alice", model.RoleEmployee)

	earlier := time.Now().Add(-time.Hour)
	require.NoError(t, repo.Log(ctx, &model.AuditLog{UserID: &user.ID, Action: model.ActionCreateUser, EntityID: "1", CreatedAt: earlier}))
	require.NoError(t, repo.Log(ctx, &model.AuditLog{Action: model.ActionSeedDemoUsers, CreatedAt: time.Now()}))

	logs, total, err := repo.List(ctx, AuditFilter{}, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, logs, 2)
	assert.Equal(t, model.ActionSeedDemoUsers, logs[0].Action)
	assert.Nil(t, logs[0].User)
	require.NotNil(t, logs[1].User)
	assert.Equal(t, "alice", logs[1].User.Username)

	logs, total, err = repo.List(ctx, AuditFilter{UserID: &user.ID}, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, logs, 1)
	assert.Equal(t, model.ActionCreateUser, logs[0].Action)

	logs, total, err = repo.List(ctx, AuditFilter{Action: model.ActionSignSubmission}, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, logs)
}
