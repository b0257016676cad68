package service

import (
	"context"
	"strings"

	"github.com/Kevjes/liberal-api/internal/apperr"
	"github.com/Kevjes/liberal-api/internal/models"
	"github.com/Kevjes/liberal-api/internal/render"
	"github.com/Kevjes/liberal-api/internal/repository"
	"github.com/Kevjes/liberal-api/internal/utils"
	"github.com/Kevjes/liberal-api/internal/utils/email"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CreateCardInput holds the member fields of a new card.
type CreateCardInput struct {
	FirstName      string    `json:"first_name" validate:"required,notblank,min=3,max=50"`
	LastName       string    `json:"last_name" validate:"required,notblank,min=3,max=50"`
	Status         string    `json:"status" validate:"omitempty,min=3,max=50"`
	Contact        string    `json:"contact" validate:"required,contact"`
	Email          string    `json:"email" validate:"required,email,max=255"`
	DepartmentID   uuid.UUID `json:"department_id" validate:"required"`
	MunicipalityID uuid.UUID `json:"municipality_id" validate:"required"`
}

func (in *CreateCardInput) normalize() {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Status = strings.TrimSpace(in.Status)
	in.Contact = strings.TrimSpace(in.Contact)
	in.Email = normalizeEmail(in.Email)
	if in.Status == "" {
		in.Status = models.DefaultCardStatus
	}
}

// CreateCard stores the photo and records a new card with the next number.
// Cards created by administrators are active; other cards wait for approval.
func (s *Service) CreateCard(ctx context.Context, caller *models.User, in CreateCardInput, photo *Photo) (*models.CardDetails, error) {
	if err := requireUser(caller); err != nil {
		return nil, err
	}
	in.normalize()
	if err := s.validate.Validate(in); err != nil {
		return nil, err
	}
	if photo == nil || photo.Content == nil {
		return nil, apperr.BadRequest("image is required")
	}
	dept, mun, err := s.checkPlacement(ctx, in.DepartmentID, in.MunicipalityID)
	if err != nil {
		return nil, err
	}

	imageURL, err := s.storePhoto(ctx, photo)
	if err != nil {
		return nil, err
	}

	card := &models.Card{
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Status:         in.Status,
		Contact:        in.Contact,
		Email:          in.Email,
		ImageURL:       &imageURL,
		DepartmentID:   in.DepartmentID,
		MunicipalityID: in.MunicipalityID,
		CreatorID:      caller.ID,
		IsActive:       caller.IsAdmin,
	}
	err = s.repo.CreateCard(ctx, card, func(id uuid.UUID) string {
		return utils.CardViewURL(s.config.DomainURL, id)
	})
	if err != nil {
		s.removePhoto(ctx, &imageURL)
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"card_id": card.ID,
		"number":  card.Number,
		"creator": caller.Email,
		"active":  card.IsActive,
	}).Info("Card created")
	return &models.CardDetails{Card: *card, Department: dept, Municipality: mun}, nil
}

// checkPlacement loads both relations and requires the municipality to lie in the department.
func (s *Service) checkPlacement(ctx context.Context, departmentID, municipalityID uuid.UUID) (*models.Department, *models.Municipality, error) {
	dept, err := s.repo.FindDepartmentByID(ctx, departmentID)
	if err != nil {
		return nil, nil, err
	}
	mun, err := s.repo.FindMunicipalityByID(ctx, municipalityID)
	if err != nil {
		return nil, nil, err
	}
	if mun.DepartmentID != dept.ID {
		return nil, nil, apperr.BadRequest("municipality %s does not belong to department %s", mun.Name, dept.Name)
	}
	return dept, mun, nil
}

// GetCard returns a card to an administrator or to the user who created it
func (s *Service) GetCard(ctx context.Context, caller *models.User, id uuid.UUID) (*models.CardDetails, error) {
	if err := requireUser(caller); err != nil {
		return nil, err
	}
	card, err := s.repo.FindCardByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin && card.CreatorID != caller.ID {
		return nil, apperr.Forbidden("card belongs to another user")
	}
	return card, nil
}

// ListCards returns cards matching filter, ordered by number
func (s *Service) ListCards(ctx context.Context, caller *models.User, filter repository.CardFilter) ([]models.CardDetails, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return s.repo.ListCards(ctx, filter)
}

// ViewCard is the public projection shown when a card's QR code is scanned.
func (s *Service) ViewCard(ctx context.Context, id uuid.UUID) (*models.CardView, error) {
	card, err := s.repo.FindCardByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.CardView{
		Number:       card.Number,
		FirstName:    card.FirstName,
		LastName:     card.LastName,
		Status:       card.Status,
		IsActive:     card.IsActive,
		Department:   card.DepartmentName(),
		Municipality: card.MunicipalityName(),
	}, nil
}

// RenderCard draws the card as PDF. Missing assets degrade the drawing, they
// never fail it.
func (s *Service) RenderCard(ctx context.Context, caller *models.User, id uuid.UUID) (*render.Document, *models.CardDetails, error) {
	card, err := s.GetCard(ctx, caller, id)
	if err != nil {
		return nil, nil, err
	}
	doc, err := s.render(ctx, card)
	if err != nil {
		return nil, nil, err
	}
	return doc, card, nil
}

func (s *Service) render(ctx context.Context, card *models.CardDetails) (*render.Document, error) {
	doc, err := s.renderer.Render(ctx, render.NewCardData(card))
	if err != nil {
		return nil, apperr.Internal(err, "could not build the card")
	}
	return doc, nil
}

// DeliverCard mails the rendered card to override, or to the card's own
// address when override is blank.
func (s *Service) DeliverCard(ctx context.Context, caller *models.User, id uuid.UUID, override string) error {
	card, err := s.GetCard(ctx, caller, id)
	if err != nil {
		return err
	}

	to := strings.TrimSpace(override)
	if to == "" {
		to = strings.TrimSpace(card.Email)
	}
	if to == "" {
		return apperr.BadRequest("no recipient email address found for the card")
	}
	if err := s.validate.Email(to); err != nil {
		return err
	}

	doc, err := s.render(ctx, card)
	if err != nil {
		return err
	}
	err = s.mailer.SendCard(ctx, to, email.CardMail{
		FirstName: card.FirstName,
		LastName:  card.LastName,
		Number:    card.Number,
		PDF:       doc.Bytes,
	})
	if err != nil {
		return apperr.Delivery(err, "card was built but could not be sent to %s", to)
	}

	s.log.WithFields(logrus.Fields{"card_id": card.ID, "to": to}).Info("Card delivered")
	return nil
}

// UpdateCard applies patch to the stored card. A new photo replaces the old
// one, which is then removed from storage.
func (s *Service) UpdateCard(ctx context.Context, caller *models.User, id uuid.UUID, patch models.CardPatch, photo *Photo) (*models.CardDetails, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	patch.ImageURL = nil
	trimPatch(&patch)
	if err := s.validate.Validate(patch); err != nil {
		return nil, err
	}
	if patch.Empty() && photo == nil {
		return nil, apperr.BadRequest("nothing to update")
	}

	current, err := s.repo.FindCardByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.DepartmentID != nil || patch.MunicipalityID != nil {
		deptID, munID := current.DepartmentID, current.MunicipalityID
		if patch.DepartmentID != nil {
			deptID = *patch.DepartmentID
		}
		if patch.MunicipalityID != nil {
			munID = *patch.MunicipalityID
		}
		if _, _, err := s.checkPlacement(ctx, deptID, munID); err != nil {
			return nil, err
		}
	}

	oldImage := current.ImageURL
	if photo != nil {
		url, err := s.storePhoto(ctx, photo)
		if err != nil {
			return nil, err
		}
		patch.ImageURL = &url
	}

	card := current.Card
	patch.Apply(&card)
	if err := s.repo.UpdateCard(ctx, &card); err != nil {
		s.removePhoto(ctx, patch.ImageURL)
		return nil, err
	}
	if patch.ImageURL != nil {
		s.removePhoto(ctx, oldImage)
	}

	s.log.WithFields(logrus.Fields{"card_id": id, "by": caller.Email}).Info("Card updated")
	return s.repo.FindCardByID(ctx, id)
}

func trimPatch(p *models.CardPatch) {
	for _, f := range []*string{p.FirstName, p.LastName, p.Status, p.Contact} {
		if f != nil {
			*f = strings.TrimSpace(*f)
		}
	}
	if p.Email != nil {
		e := normalizeEmail(*p.Email)
		p.Email = &e
	}
}

// DeleteCard removes a card and, best effort, its photo
func (s *Service) DeleteCard(ctx context.Context, caller *models.User, id uuid.UUID) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	card, err := s.repo.FindCardByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteCard(ctx, id); err != nil {
		return err
	}
	s.removePhoto(ctx, card.ImageURL)

	s.log.WithFields(logrus.Fields{"card_id": id, "number": card.Number, "by": caller.Email}).Info("Card deleted")
	return nil
}
