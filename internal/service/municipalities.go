package service

import (
	"context"
	"strings"

	"github.com/Kevjes/liberal-api/internal/apperr"
	"github.com/Kevjes/liberal-api/internal/models"
	"github.com/google/uuid"
)

type MunicipalityInput struct {
	Name         string    `json:"name" validate:"required,notblank,max=100"`
	DepartmentID uuid.UUID `json:"department_id" validate:"required"`
}

// MunicipalityPatch lists the fields to change; nil means untouched
type MunicipalityPatch struct {
	Name         *string    `json:"name,omitempty" validate:"omitempty,notblank,max=100"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty"`
}

func (s *Service) CreateMunicipality(ctx context.Context, caller *models.User, in MunicipalityInput) (*models.Municipality, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Validate(in); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindDepartmentByID(ctx, in.DepartmentID); err != nil {
		return nil, err
	}

	m := &models.Municipality{Name: in.Name, DepartmentID: in.DepartmentID}
	if err := s.repo.CreateMunicipality(ctx, m); err != nil {
		return nil, err
	}
	s.log.Infof("Municipality created: %s", m.Name)
	return m, nil
}

// ListMunicipalities returns every municipality, or those of departmentID when set
func (s *Service) ListMunicipalities(ctx context.Context, caller *models.User, departmentID *uuid.UUID) ([]models.Municipality, error) {
	if err := requireUser(caller); err != nil {
		return nil, err
	}
	if departmentID != nil {
		if _, err := s.repo.FindDepartmentByID(ctx, *departmentID); err != nil {
			return nil, err
		}
	}
	return s.repo.ListMunicipalities(ctx, departmentID)
}

func (s *Service) GetMunicipality(ctx context.Context, caller *models.User, id uuid.UUID) (*models.Municipality, error) {
	if err := requireUser(caller); err != nil {
		return nil, err
	}
	return s.repo.FindMunicipalityByID(ctx, id)
}

func (s *Service) GetMunicipalityByName(ctx context.Context, caller *models.User, name string) (*models.Municipality, error) {
	if err := requireUser(caller); err != nil {
		return nil, err
	}
	return s.repo.FindMunicipalityByName(ctx, strings.TrimSpace(name))
}

// UpdateMunicipality renames a municipality or moves it to another department.
// A municipality cannot move while cards point at it, since those cards
// would then disagree with their own department.
func (s *Service) UpdateMunicipality(ctx context.Context, caller *models.User, id uuid.UUID, patch MunicipalityPatch) (*models.Municipality, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		patch.Name = &name
	}
	if err := s.validate.Validate(patch); err != nil {
		return nil, err
	}
	if patch.Name == nil && patch.DepartmentID == nil {
		return nil, apperr.BadRequest("nothing to update")
	}

	m, err := s.repo.FindMunicipalityByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.DepartmentID != nil && *patch.DepartmentID != m.DepartmentID {
		if _, err := s.repo.FindDepartmentByID(ctx, *patch.DepartmentID); err != nil {
			return nil, err
		}
		cards, err := s.repo.CountCardsByMunicipality(ctx, id)
		if err != nil {
			return nil, err
		}
		if cards > 0 {
			return nil, apperr.Conflict("municipality %s is used by %d card(s) and cannot change department", m.Name, cards)
		}
		m.DepartmentID = *patch.DepartmentID
	}
	if patch.Name != nil {
		m.Name = *patch.Name
	}

	if err := s.repo.UpdateMunicipality(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// DeleteMunicipality removes a municipality no card refers to
func (s *Service) DeleteMunicipality(ctx context.Context, caller *models.User, id uuid.UUID) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	m, err := s.repo.FindMunicipalityByID(ctx, id)
	if err != nil {
		return err
	}
	cards, err := s.repo.CountCardsByMunicipality(ctx, id)
	if err != nil {
		return err
	}
	if cards > 0 {
		return apperr.Conflict("municipality %s is used by %d card(s)", m.Name, cards)
	}
	if err := s.repo.DeleteMunicipality(ctx, id); err != nil {
		return err
	}
	s.log.Infof("Municipality %s deleted by %s", m.Name, caller.Email)
	return nil
}
