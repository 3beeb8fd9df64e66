package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"formflow/internal/auth"
	"formflow/internal/config"
	"formflow/internal/events"
	"formflow/internal/model"
	"formflow/internal/repository"
	"formflow/internal/storage"
	"formflow/internal/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	db     *gorm.DB
	events *recorder
	blobs  *storage.MemoryStore
	jwt    *auth.TokenManager

	users       UserService
	auth        AuthService
	forms       FormService
	workflow    WorkflowService
	submissions SubmissionService
	signing     SigningService
	analytics   AnalyticsService
	audit       AuditService
}

// newEnv wires every service over a fresh database. chain may be empty to disable
// automatic workflow assignment.
func newEnv(t *testing.T, chain config.WorkflowChain) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	logger := zaptest.NewLogger(t)
	rec := &recorder{}
	blobs := storage.NewMemoryStore()
	jwt := auth.NewTokenManager("test-secret", "formflow", time.Hour)

	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewRefreshTokenRepository(db)
	formRepo := repository.NewFormRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	workflowRepo := repository.NewWorkflowRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	env := &testEnv{db: db, events: rec, blobs: blobs, jwt: jwt}
	env.users = NewUserService(userRepo, formRepo, tokenRepo, auditRepo, txManager)
	env.auth = NewAuthService(db, userRepo, formRepo, tokenRepo, auditRepo, txManager, jwt, 24*time.Hour)
	env.forms = NewFormService(formRepo)
	env.workflow = NewWorkflowService(submissionRepo, workflowRepo, userRepo, formRepo, env.forms, auditRepo, txManager, chain, rec, logger)
	env.submissions = NewSubmissionService(db, submissionRepo, userRepo, formRepo, workflowRepo, env.forms, env.workflow, auditRepo, txManager, rec, logger)
	env.signing = NewSigningService(submissionRepo, workflowRepo, env.auth, env.forms, env.workflow, auditRepo, txManager, blobs, rec, logger)
	env.analytics = NewAnalyticsService(submissionRepo, env.forms, time.UTC)
	env.audit = NewAuditService(auditRepo)
	return env
}

func callerOf(u *model.User) Caller {
	return Caller{ID: u.ID, Username: u.Username, Role: u.Role}
}

// member creates a user with access to the customer rejection form.
func (e *testEnv) member(t *testing.T, username string, role model.Role) Caller {
	t.Helper()
	u := testutil.CreateUser(t, e.db, username, role)
	testutil.GrantForm(t, e.db, u.ID)
	return callerOf(u)
}

func (e *testEnv) submit(t *testing.T, caller Caller, serial, customer string, discount float64, departments ...string) *SubmissionResponse {
	t.Helper()
	res, err := e.submissions.Create(context.Background(), caller, model.CustomerRejectionSlug, testutil.Payload(serial, customer, discount, departments...))
	require.NoError(t, err)
	return res
}

func (e *testEnv) auditActions(t *testing.T) []string {
	t.Helper()
	var logs []model.AuditLog
	require.NoError(t, e.db.Order("created_at ASC").Find(&logs).Error)
	out := make([]string, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.Action)
	}
	return out
}

const pngSignature = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="
