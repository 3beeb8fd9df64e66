package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"formflow/internal/apperr"
	"formflow/internal/auth"
	"formflow/internal/database"
	"formflow/internal/model"
	"formflow/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type LoginUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type TokenResponse struct {
	Token        string        `json:"token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresAt    string        `json:"expires_at"`
	User         *UserResponse `json:"user"`
}

type MeResponse struct {
	UserResponse
	FormIDs []string `json:"form_ids"`
}

// AuthService issues and revokes sessions and re-authenticates signers.
type AuthService interface {
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, userID uuid.UUID) (*MeResponse, error)
	// VerifyCredentials checks a username/password pair without creating a session.
	VerifyCredentials(ctx context.Context, username, password string) (*model.User, error)
	SeedDemoUsers(ctx context.Context, actor Caller) ([]string, error)
}

type authService struct {
	db         *gorm.DB
	users      repository.UserRepository
	forms      repository.FormRepository
	tokens     repository.RefreshTokenRepository
	audit      repository.AuditRepository
	tx         repository.TransactionManager
	jwt        *auth.TokenManager
	refreshTTL time.Duration
}

func NewAuthService(db *gorm.DB, users repository.UserRepository, forms repository.FormRepository, tokens repository.RefreshTokenRepository, audit repository.AuditRepository, tx repository.TransactionManager, jwt *auth.TokenManager, refreshTTL time.Duration) AuthService {
	return &authService{db: db, users: users, forms: forms, tokens: tokens, audit: audit, tx: tx, jwt: jwt, refreshTTL: refreshTTL}
}

var errBadCredentials = apperr.Unauthorized("invalid username or password")

func (s *authService) VerifyCredentials(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errBadCredentials
	}
	return user, nil
}

func (s *authService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	user, err := s.VerifyCredentials(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, user)
}

func (s *authService) issue(ctx context.Context, user *model.User) (*TokenResponse, error) {
	access, expiresAt, err := s.jwt.Generate(user)
	if err != nil {
		return nil, err
	}
	refresh, err := randomToken()
	if err != nil {
		return nil, err
	}
	rt := &model.RefreshToken{
		UserID:    user.ID,
		Token:     refresh,
		ExpiresAt: time.Now().Add(s.refreshTTL),
	}
	if err := s.tokens.Create(ctx, rt); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return &TokenResponse{
		Token:        access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt.Format(timeLayout),
		User:         mapToResponse(user),
	}, nil
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	var res *TokenResponse
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		rt, err := s.tokens.GetValid(txCtx, refreshToken, time.Now())
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Unauthorized("refresh token is invalid or expired")
		}
		if err != nil {
			return err
		}
		if err := s.tokens.Delete(txCtx, refreshToken); err != nil {
			return err
		}
		user, err := s.users.GetByID(txCtx, rt.UserID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Unauthorized("account no longer exists")
		}
		if err != nil {
			return err
		}
		res, err = s.issue(txCtx, user)
		return err
	})
	return res, err
}

func (s *authService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.tokens.Delete(ctx, refreshToken)
}

func (s *authService) Me(ctx context.Context, userID uuid.UUID) (*MeResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, apperr.FromDB(err, "user")
	}
	ids, err := s.forms.PermittedFormIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &MeResponse{UserResponse: *mapToResponse(user), FormIDs: uuidStrings(ids)}, nil
}

func (s *authService) SeedDemoUsers(ctx context.Context, actor Caller) ([]string, error) {
	if err := database.SeedReferenceData(ctx, s.db); err != nil {
		return nil, err
	}
	created, err := database.SeedDemoUsers(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if err := writeAudit(ctx, s.audit, actor.ref(), model.ActionSeedDemoUsers, "", "demo users", map[string]any{
		"created": created,
	}); err != nil {
		return nil, err
	}
	return created, nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
