package service

import (
	"context"

	"formflow/internal/apperr"
	"formflow/internal/model"
	"formflow/internal/repository"

	"github.com/google/uuid"
)

type FormResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

type DepartmentResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type FormService interface {
	ListForms(ctx context.Context, caller Caller) ([]FormResponse, error)
	// Resolve looks up a form by slug and checks the caller may use it.
	Resolve(ctx context.Context, caller Caller, slug string) (*model.Form, error)
	CanAccess(ctx context.Context, caller Caller, formID uuid.UUID) (bool, error)
	ListDepartments(ctx context.Context) ([]DepartmentResponse, error)
}

type formService struct {
	repo repository.FormRepository
}

func NewFormService(repo repository.FormRepository) FormService {
	return &formService{repo: repo}
}

func (s *formService) ListForms(ctx context.Context, caller Caller) ([]FormResponse, error) {
	var forms []model.Form
	var err error
	if caller.Privileged() {
		forms, err = s.repo.List(ctx)
	} else {
		forms, err = s.repo.ListForUser(ctx, caller.ID)
	}
	if err != nil {
		return nil, err
	}
	res := make([]FormResponse, 0, len(forms))
	for _, f := range forms {
		res = append(res, FormResponse{ID: f.ID.String(), Name: f.Name, Slug: f.Slug, Description: f.Description})
	}
	return res, nil
}

func (s *formService) Resolve(ctx context.Context, caller Caller, slug string) (*model.Form, error) {
	form, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, apperr.FromDB(err, "form")
	}
	ok, err := s.CanAccess(ctx, caller, form.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Forbidden("you do not have access to form %q", slug)
	}
	return form, nil
}

func (s *formService) CanAccess(ctx context.Context, caller Caller, formID uuid.UUID) (bool, error) {
	if caller.Privileged() {
		return true, nil
	}
	return s.repo.HasPermission(ctx, caller.ID, formID)
}

func (s *formService) ListDepartments(ctx context.Context) ([]DepartmentResponse, error) {
	departments, err := s.repo.ListDepartments(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]DepartmentResponse, 0, len(departments))
	for _, d := range departments {
		res = append(res, DepartmentResponse{ID: d.ID.String(), Name: d.Name})
	}
	return res, nil
}

func departmentSet(ctx context.Context, repo repository.FormRepository) (map[string]bool, error) {
	departments, err := repo.ListDepartments(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(departments))
	for _, d := range departments {
		set[d.Name] = true
	}
	return set, nil
}
