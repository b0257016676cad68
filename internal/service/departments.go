package service

import (
	"context"
	"strings"

	"github.com/Kevjes/liberal-api/internal/apperr"
	"github.com/Kevjes/liberal-api/internal/models"
	"github.com/google/uuid"
)

// DepartmentInput is the body used to create or rename a department.
type DepartmentInput struct {
	Name string `json:"name" validate:"required,notblank,max=100"`
}

func (s *Service) CreateDepartment(ctx context.Context, caller *models.User, in DepartmentInput) (*models.Department, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Validate(in); err != nil {
		return nil, err
	}
	d := &models.Department{Name: in.Name}
	if err := s.repo.CreateDepartment(ctx, d); err != nil {
		return nil, err
	}
	s.log.Infof("Department created: %s", d.Name)
	return d, nil
}

func (s *Service) ListDepartments(ctx context.Context, caller *models.User) ([]models.Department, error) {
	if err := requireUser(caller); err != nil {
		return nil, err
	}
	return s.repo.ListDepartments(ctx)
}

func (s *Service) GetDepartment(ctx context.Context, caller *models.User, id uuid.UUID) (*models.Department, error) {
	if err := requireUser(caller); err != nil {
		return nil, err
	}
	return s.repo.FindDepartmentByID(ctx, id)
}

func (s *Service) GetDepartmentByName(ctx context.Context, caller *models.User, name string) (*models.Department, error) {
	if err := requireUser(caller); err != nil {
		return nil, err
	}
	return s.repo.FindDepartmentByName(ctx, strings.TrimSpace(name))
}

// RenameDepartment changes a department's name
func (s *Service) RenameDepartment(ctx context.Context, caller *models.User, id uuid.UUID, in DepartmentInput) (*models.Department, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Validate(in); err != nil {
		return nil, err
	}
	d, err := s.repo.FindDepartmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Name = in.Name
	if err := s.repo.RenameDepartment(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// DeleteDepartment removes a department that no municipality or card refers to
func (s *Service) DeleteDepartment(ctx context.Context, caller *models.User, id uuid.UUID) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	d, err := s.repo.FindDepartmentByID(ctx, id)
	if err != nil {
		return err
	}

	municipalities, err := s.repo.CountMunicipalitiesByDepartment(ctx, id)
	if err != nil {
		return err
	}
	if municipalities > 0 {
		return apperr.Conflict("department %s still has %d municipality(ies)", d.Name, municipalities)
	}
	cards, err := s.repo.CountCardsByDepartment(ctx, id)
	if err != nil {
		return err
	}
	if cards > 0 {
		return apperr.Conflict("department %s is used by %d card(s)", d.Name, cards)
	}

	if err := s.repo.DeleteDepartment(ctx, id); err != nil {
		return err
	}
	s.log.Infof("Department %s deleted by %s", d.Name, caller.Email)
	return nil
}
