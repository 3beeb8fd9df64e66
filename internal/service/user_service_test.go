package service

import (
	"context"
	"testing"

	"formflow/internal/apperr"
	"formflow/internal/config"
	"formflow/internal/model"
	"formflow/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserRequest(username string) CreateUserRequest {
	return CreateUserRequest{
		FullName: "Jane Doe",
		Username: username,
		Email:    username + "@example.com",
		Password: "secret123",
		Company:  string(model.CompanyBoxes),
		Role:     string(model.RoleEmployee),
	}
}

func TestUser_Create(t *testing.T) {
	env := newEnv(t, config.WorkflowChain{})
	ctx := context.Background()
	admin := callerOf(testutil.CreateUser(t, env.db, "root", model.RoleAdmin))

	req := newUserRequest("jane")
	req.Email = "  Jane@Example.com "
	res, err := env.users.CreateUser(ctx, admin, req)
	require.NoError(t, err)
	assert.Equal(t, "jane", res.Username)
	assert.Equal(t, "jane@example.com", res.Email)
	assert.Equal(t, string(model.CompanyBoxes), res.Company)

	_, err = env.users.CreateUser(ctx, admin, newUserRequest("jane"))
	assert.ErrorIs(t, err, apperr.ErrConflict)

	dupEmail := newUserRequest("other")
	dupEmail.Email = "jane@example.com"
	_, err = env.users.CreateUser(ctx, admin, dupEmail)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	invalid := []func(*CreateUserRequest){
		func(r *CreateUserRequest) { r.Role = "manager" },
		func(r *CreateUserRequest) { r.Company = "Umbrella" },
		func(r *CreateUserRequest) { r.Password = "123" },
		func(r *CreateUserRequest) { r.Email = "not-an-email" },
	}
	for i, mutate := range invalid {
		req := newUserRequest("u" + string(rune('a'+i)))
		mutate(&req)
		_, err := env.users.CreateUser(ctx, admin, req)
		assert.ErrorIs(t, err, apperr.ErrValidation, "case %d", i)
	}

	noEmail := newUserRequest("noemail")
	noEmail.Email = ""
	res, err = env.users.CreateUser(ctx, admin, noEmail)
	require.NoError(t, err)
	assert.Empty(t, res.Email)

	assert.Equal(t, []string{model.ActionCreateUser, model.ActionCreateUser}, env.auditActions(t))
}

func TestUser_UpdateAndDelete(t *testing.T) {
	env := newEnv(t, config.WorkflowChain{})
	ctx := context.Background()
	admin := callerOf(testutil.CreateUser(t, env.db, "root", model.RoleAdmin))
	created, err := env.users.CreateUser(ctx, admin, newUserRequest("jane"))
	require.NoError(t, err)
	_, err = env.users.CreateUser(ctx, admin, newUserRequest("john"))
	require.NoError(t, err)

	updated, err := env.users.UpdateUser(ctx, admin, created.ID, UpdateUserRequest{Role: "ceo", Designation: "Chief"})
	require.NoError(t, err)
	assert.Equal(t, "ceo", updated.Role)
	assert.Equal(t, "Chief", updated.Designation)
	assert.Equal(t, "jane", updated.Username)

	_, err = env.users.UpdateUser(ctx, admin, created.ID, UpdateUserRequest{Username: "john"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = env.users.UpdateUser(ctx, admin, created.ID, UpdateUserRequest{Role: "overlord"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = env.users.UpdateUser(ctx, admin, uuid.New(), UpdateUserRequest{Role: "ceo"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.ErrorIs(t, env.users.DeleteUser(ctx, admin, admin.ID), apperr.ErrValidation)
	require.NoError(t, env.users.DeleteUser(ctx, admin, created.ID))
	_, err = env.users.GetUserByID(ctx, created.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	list, total, err := env.users.ListUsers(ctx, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, list, 2)
}

func TestUser_ResetPasswordRevokesSessions(t *testing.T) {
	env := newEnv(t, config.WorkflowChain{})
	ctx := context.Background()
	admin := callerOf(testutil.CreateUser(t, env.db, "root", model.RoleAdmin))
	jane := testutil.CreateUser(t, env.db, "jane", model.RoleEmployee)

	session, err := env.auth.Login(ctx, LoginUserRequest{Username: "jane", Password: testutil.Password})
	require.NoError(t, err)

	assert.ErrorIs(t, env.users.ResetPassword(ctx, admin, jane.ID, ResetPasswordRequest{Password: "1"}), apperr.ErrValidation)
	require.NoError(t, env.users.ResetPassword(ctx, admin, jane.ID, ResetPasswordRequest{Password: "n3w-password"}))

	_, err = env.auth.Refresh(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = env.auth.Login(ctx, LoginUserRequest{Username: "jane", Password: testutil.Password})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = env.auth.Login(ctx, LoginUserRequest{Username: "jane", Password: "n3w-password"})
	assert.NoError(t, err)
}

func TestUser_FormPermissions(t *testing.T) {
	env := newEnv(t, config.WorkflowChain{})
	ctx := context.Background()
	admin := callerOf(testutil.CreateUser(t, env.db, "root", model.RoleAdmin))
	jane := callerOf(testutil.CreateUser(t, env.db, "jane", model.RoleEmployee))
	form := testutil.Form(t, env.db)

	forms, err := env.forms.ListForms(ctx, jane)
	require.NoError(t, err)
	assert.Empty(t, forms)

	ids, err := env.users.SetFormPermissions(ctx, admin, jane.ID, FormPermissionsRequest{FormIDs: []string{form.ID.String(), form.ID.String()}})
	require.NoError(t, err)
	assert.Equal(t, []string{form.ID.String()}, ids)

	got, err := env.users.GetFormPermissions(ctx, jane.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{form.ID.String()}, got)

	forms, err = env.forms.ListForms(ctx, jane)
	require.NoError(t, err)
	require.Len(t, forms, 1)
	assert.Equal(t, model.CustomerRejectionSlug, forms[0].Slug)

	_, err = env.users.SetFormPermissions(ctx, admin, jane.ID, FormPermissionsRequest{FormIDs: []string{uuid.NewString()}})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = env.users.SetFormPermissions(ctx, admin, jane.ID, FormPermissionsRequest{FormIDs: []string{"bad"}})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	ids, err = env.users.SetFormPermissions(ctx, admin, jane.ID, FormPermissionsRequest{})
	require.NoError(t, err)
	assert.Empty(t, ids)
	ok, err := env.forms.CanAccess(ctx, jane, form.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	// privileged roles see every form without grants
	ok, err = env.forms.CanAccess(ctx, admin, form.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}
