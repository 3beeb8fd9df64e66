package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"formflow/internal/apperr"
	"formflow/internal/model"
	"formflow/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DTOs for Request validation
type CreateUserRequest struct {
	FullName    string `json:"full_name" binding:"required"`
	Username    string `json:"username" binding:"required"`
	Email       string `json:"email" binding:"omitempty,email"`
	Password    string `json:"password" binding:"required,min=6"`
	Company     string `json:"company" binding:"required"`
	Role        string `json:"role" binding:"required"`
	Designation string `json:"designation"`
}

type UpdateUserRequest struct {
	FullName    string `json:"full_name"`
	Username    string `json:"username"`
	Email       string `json:"email" binding:"omitempty,email"`
	Company     string `json:"company"`
	Role        string `json:"role"`
	Designation string `json:"designation"`
}

type ResetPasswordRequest struct {
	Password string `json:"password" binding:"required,min=6"`
}

type FormPermissionsRequest struct {
	FormIDs []string `json:"form_ids"`
}

// DTO for returning User without exposing sensitive data (e.g. password)
type UserResponse struct {
	ID          uuid.UUID `json:"id"`
	FullName    string    `json:"full_name"`
	Username    string    `json:"username"`
	Email       string    `json:"email,omitempty"`
	Company     string    `json:"company"`
	Role        string    `json:"role"`
	Designation string    `json:"designation"`
	CreatedAt   string    `json:"created_at"`
	UpdatedAt   string    `json:"updated_at"`
}

// UserService defines the interface for business logic related to User
type UserService interface {
	CreateUser(ctx context.Context, actor Caller, req CreateUserRequest) (*UserResponse, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*UserResponse, error)
	ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error)
	UpdateUser(ctx context.Context, actor Caller, id uuid.UUID, req UpdateUserRequest) (*UserResponse, error)
	ResetPassword(ctx context.Context, actor Caller, id uuid.UUID, req ResetPasswordRequest) error
	DeleteUser(ctx context.Context, actor Caller, id uuid.UUID) error
	GetFormPermissions(ctx context.Context, id uuid.UUID) ([]string, error)
	SetFormPermissions(ctx context.Context, actor Caller, id uuid.UUID, req FormPermissionsRequest) ([]string, error)
}

type userService struct {
	repo   repository.UserRepository
	forms  repository.FormRepository
	tokens repository.RefreshTokenRepository
	audit  repository.AuditRepository
	tx     repository.TransactionManager
}

// NewUserService returns a new instance of UserService
func NewUserService(repo repository.UserRepository, forms repository.FormRepository, tokens repository.RefreshTokenRepository, audit repository.AuditRepository, tx repository.TransactionManager) UserService {
	return &userService{repo: repo, forms: forms, tokens: tokens, audit: audit, tx: tx}
}

func mapToResponse(user *model.User) *UserResponse {
	res := &UserResponse{
		ID:          user.ID,
		FullName:    user.FullName,
		Username:    user.Username,
		Company:     string(user.Company),
		Role:        string(user.Role),
		Designation: user.Designation,
		CreatedAt:   user.CreatedAt.Format(timeLayout),
		UpdatedAt:   user.UpdatedAt.Format(timeLayout),
	}
	if user.Email != nil {
		res.Email = *user.Email
	}
	return res
}

func normalizeEmail(email string) (*string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, nil
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Validation("invalid email format")
	}
	return &email, nil
}

func (s *userService) CreateUser(ctx context.Context, actor Caller, req CreateUserRequest) (*UserResponse, error) {
	role, company := model.Role(req.Role), model.Company(req.Company)
	if !role.Valid() {
		return nil, apperr.Validation("invalid role: must be admin, employee or ceo")
	}
	if !company.Valid() {
		return nil, apperr.Validation("invalid company %q", req.Company)
	}
	if len(req.Password) < 6 {
		return nil, apperr.Validation("password must be at least 6 characters")
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	username := strings.TrimSpace(req.Username)

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		FullName:     strings.TrimSpace(req.FullName),
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
		Company:      company,
		Role:         role,
		Designation:  req.Designation,
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.ensureUnique(txCtx, uuid.Nil, username, email); err != nil {
			return err
		}
		if err := s.repo.Create(txCtx, user); err != nil {
			return apperr.FromDB(err, "user")
		}
		return writeAudit(txCtx, s.audit, actor.ref(), model.ActionCreateUser, user.ID.String(), user.Username, map[string]any{
			"role":    user.Role,
			"company": user.Company,
		})
	})
	if err != nil {
		return nil, err
	}
	return mapToResponse(user), nil
}

// ensureUnique checks username and email against every other active account.
func (s *userService) ensureUnique(ctx context.Context, self uuid.UUID, username string, email *string) error {
	if username != "" {
		existing, err := s.repo.GetByUsername(ctx, username)
		if err == nil && existing.ID != self {
			return apperr.Conflict("username already exists")
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}
	if email != nil {
		existing, err := s.repo.GetByEmail(ctx, *email)
		if err == nil && existing.ID != self {
			return apperr.Conflict("email already exists")
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}
	return nil
}

func (s *userService) GetUserByID(ctx context.Context, id uuid.UUID) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromDB(err, "user")
	}
	return mapToResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	users, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, *mapToResponse(&users[i]))
	}
	return responses, total, nil
}

func (s *userService) UpdateUser(ctx context.Context, actor Caller, id uuid.UUID, req UpdateUserRequest) (*UserResponse, error) {
	var user *model.User
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		user, err = s.repo.GetByID(txCtx, id)
		if err != nil {
			return apperr.FromDB(err, "user")
		}

		changes := map[string]any{}
		if req.Role != "" {
			role := model.Role(req.Role)
			if !role.Valid() {
				return apperr.Validation("invalid role: must be admin, employee or ceo")
			}
			user.Role = role
			changes["role"] = role
		}
		if req.Company != "" {
			company := model.Company(req.Company)
			if !company.Valid() {
				return apperr.Validation("invalid company %q", req.Company)
			}
			user.Company = company
			changes["company"] = company
		}

		username := strings.TrimSpace(req.Username)
		email, err := normalizeEmail(req.Email)
		if err != nil {
			return err
		}
		if err := s.ensureUnique(txCtx, user.ID, username, email); err != nil {
			return err
		}
		if username != "" {
			user.Username = username
			changes["username"] = username
		}
		if email != nil {
			user.Email = email
			changes["email"] = *email
		}
		if req.FullName != "" {
			user.FullName = strings.TrimSpace(req.FullName)
			changes["full_name"] = user.FullName
		}
		if req.Designation != "" {
			user.Designation = req.Designation
			changes["designation"] = req.Designation
		}

		if err := s.repo.Update(txCtx, user); err != nil {
			return apperr.FromDB(err, "user")
		}
		return writeAudit(txCtx, s.audit, actor.ref(), model.ActionUpdateUser, user.ID.String(), user.Username, changes)
	})
	if err != nil {
		return nil, err
	}
	return mapToResponse(user), nil
}

func (s *userService) ResetPassword(ctx context.Context, actor Caller, id uuid.UUID, req ResetPasswordRequest) error {
	if len(req.Password) < 6 {
		return apperr.Validation("password must be at least 6 characters")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		user, err := s.repo.GetByID(txCtx, id)
		if err != nil {
			return apperr.FromDB(err, "user")
		}
		user.PasswordHash = string(hashed)
		if err := s.repo.Update(txCtx, user); err != nil {
			return err
		}
		// existing sessions must log in again
		if err := s.tokens.DeleteForUser(txCtx, user.ID); err != nil {
			return err
		}
		return writeAudit(txCtx, s.audit, actor.ref(), model.ActionResetPassword, user.ID.String(), user.Username, nil)
	})
}

func (s *userService) DeleteUser(ctx context.Context, actor Caller, id uuid.UUID) error {
	if id == actor.ID {
		return apperr.Validation("you cannot delete your own account")
	}
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		user, err := s.repo.GetByID(txCtx, id)
		if err != nil {
			return apperr.FromDB(err, "user")
		}
		if err := s.repo.Delete(txCtx, id); err != nil {
			return err
		}
		if err := s.tokens.DeleteForUser(txCtx, id); err != nil {
			return err
		}
		return writeAudit(txCtx, s.audit, actor.ref(), model.ActionDeleteUser, id.String(), user.Username, nil)
	})
}

func (s *userService) GetFormPermissions(ctx context.Context, id uuid.UUID) ([]string, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, apperr.FromDB(err, "user")
	}
	ids, err := s.forms.PermittedFormIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	return uuidStrings(ids), nil
}

func (s *userService) SetFormPermissions(ctx context.Context, actor Caller, id uuid.UUID, req FormPermissionsRequest) ([]string, error) {
	formIDs := make([]uuid.UUID, 0, len(req.FormIDs))
	seen := map[uuid.UUID]bool{}
	for _, raw := range req.FormIDs {
		formID, err := uuid.Parse(raw)
		if err != nil {
			return nil, apperr.Validation("invalid form id %q", raw)
		}
		if !seen[formID] {
			seen[formID] = true
			formIDs = append(formIDs, formID)
		}
	}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		user, err := s.repo.GetByID(txCtx, id)
		if err != nil {
			return apperr.FromDB(err, "user")
		}
		forms, err := s.forms.GetByIDs(txCtx, formIDs)
		if err != nil {
			return err
		}
		if len(forms) != len(formIDs) {
			return apperr.Validation("one or more forms do not exist")
		}
		if err := s.forms.ReplacePermissions(txCtx, id, formIDs); err != nil {
			return err
		}
		return writeAudit(txCtx, s.audit, actor.ref(), model.ActionSetPermissions, id.String(), user.Username, map[string]any{
			"form_ids": uuidStrings(formIDs),
		})
	})
	if err != nil {
		return nil, err
	}
	return uuidStrings(formIDs), nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
