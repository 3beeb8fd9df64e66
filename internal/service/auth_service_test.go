package service

import (
	"context"
	"testing"

	"formflow/internal/apperr"
	"formflow/internal/config"
	"formflow/internal/model"
	"formflow/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuth_LoginRefreshLogout(t *testing.T) {
	env := newEnv(t, config.WorkflowChain{})
	ctx := context.Background()
	jane := testutil.CreateUser(t, env.db, "jane", model.RoleEmployee)

	_, err := env.auth.Login(ctx, LoginUserRequest{Username: "jane", Password: "wrong"})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = env.auth.Login(ctx, LoginUserRequest{Username: "nobody", Password: testutil.Password})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	session, err := env.auth.Login(ctx, LoginUserRequest{Username: "jane", Password: testutil.Password})
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Len(t, session.RefreshToken, 64)
	assert.Equal(t, jane.ID, session.User.ID)

	claims, err := env.jwt.Parse(session.Token)
	require.NoError(t, err)
	assert.Equal(t, "jane", claims.Username)

	rotated, err := env.auth.Refresh(ctx, session.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, session.RefreshToken, rotated.RefreshToken)

	// refresh tokens are single use
	_, err = env.auth.Refresh(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	require.NoError(t, env.auth.Logout(ctx, rotated.RefreshToken))
	_, err = env.auth.Refresh(ctx, rotated.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	assert.NoError(t, env.auth.Logout(ctx, ""))
}

func TestAuth_RefreshRejectsDeletedUser(t *testing.T) {
	env := newEnv(t, config.WorkflowChain{})
	ctx := context.Background()
	testutil.CreateUser(t, env.db, "jane", model.RoleEmployee)

	session, err := env.auth.Login(ctx, LoginUserRequest{Username: "jane", Password: testutil.Password})
	require.NoError(t, err)
	require.NoError(t, env.db.Where("username = ?", "jane").Delete(&model.User{}).Error)

	_, err = env.auth.Refresh(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestAuth_Me(t *testing.T) {
	env := newEnv(t, config.WorkflowChain{})
	jane := env.member(t, "jane", model.RoleEmployee)

	me, err := env.auth.Me(context.Background(), jane.ID)
	require.NoError(t, err)
	assert.Equal(t, "jane", me.Username)
	assert.Equal(t, []string{testutil.Form(t, env.db).ID.String()}, me.FormIDs)
}

func TestAuth_SeedDemoUsers(t *testing.T) {
	env := newEnv(t, config.WorkflowChain{})
	ctx := context.Background()
	admin := callerOf(testutil.CreateUser(t, env.db, "root", model.RoleAdmin))

	created, err := env.auth.SeedDemoUsers(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, created, 6)

	again, err := env.auth.SeedDemoUsers(ctx, admin)
	require.NoError(t, err)
	assert.Empty(t, again)

	hoz, err := env.auth.VerifyCredentials(ctx, "hoz", "demo123")
	require.NoError(t, err)
	assert.Equal(t, model.RoleCEO, hoz.Role)
	assert.Equal(t, []string{model.ActionSeedDemoUsers, model.ActionSeedDemoUsers}, env.auditActions(t))
}

func TestAudit_GetAuditLogs(t *testing.T) {
	env := newEnv(t, config.WorkflowChain{})
	ctx := context.Background()
	alice := env.member(t, "alice", model.RoleEmployee)
	env.submit(t, alice, "SN-1", "Acme", 1)
	env.submit(t, alice, "SN-2", "Acme", 1)
	env.submit(t, alice, "SN-3", "Acme", 1)

	logs, total, err := env.audit.GetAuditLogs(ctx, AuditQuery{}, 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, logs, 2)
	assert.Equal(t, "alice", logs[0].Username)
	assert.Equal(t, model.ActionCreateSubmission, logs[0].Action)
	assert.Equal(t, "Acme", logs[0].EntityName)

	logs, _, err = env.audit.GetAuditLogs(ctx, AuditQuery{}, 2, 2)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	logs, total, err = env.audit.GetAuditLogs(ctx, AuditQuery{Action: "create_submission", UserID: alice.ID.String()}, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, logs, 3)

	_, total, err = env.audit.GetAuditLogs(ctx, AuditQuery{Action: model.ActionSignSubmission}, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)

	_, _, err = env.audit.GetAuditLogs(ctx, AuditQuery{UserID: "nope"}, 1, 10)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
