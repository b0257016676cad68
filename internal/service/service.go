package service

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/Kevjes/liberal-api/internal/apperr"
	"github.com/Kevjes/liberal-api/internal/config"
	"github.com/Kevjes/liberal-api/internal/models"
	"github.com/Kevjes/liberal-api/internal/render"
	"github.com/Kevjes/liberal-api/internal/repository"
	"github.com/Kevjes/liberal-api/internal/storage"
	"github.com/Kevjes/liberal-api/internal/utils/email"
	"github.com/Kevjes/liberal-api/internal/validator"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Store is the persistence the service relies on. *repository.Repository implements it.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListUsers(ctx context.Context, adminsOnly bool) ([]models.User, error)
	UpdateUserPassword(ctx context.Context, id uuid.UUID, hash string) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
	CountCardsByCreator(ctx context.Context, userID uuid.UUID) (int, error)

	CreateDepartment(ctx context.Context, d *models.Department) error
	FindDepartmentByID(ctx context.Context, id uuid.UUID) (*models.Department, error)
	FindDepartmentByName(ctx context.Context, name string) (*models.Department, error)
	ListDepartments(ctx context.Context) ([]models.Department, error)
	RenameDepartment(ctx context.Context, d *models.Department) error
	DeleteDepartment(ctx context.Context, id uuid.UUID) error
	CountMunicipalitiesByDepartment(ctx context.Context, departmentID uuid.UUID) (int, error)

	CreateMunicipality(ctx context.Context, m *models.Municipality) error
	FindMunicipalityByID(ctx context.Context, id uuid.UUID) (*models.Municipality, error)
	FindMunicipalityByName(ctx context.Context, name string) (*models.Municipality, error)
	ListMunicipalities(ctx context.Context, departmentID *uuid.UUID) ([]models.Municipality, error)
	UpdateMunicipality(ctx context.Context, m *models.Municipality) error
	DeleteMunicipality(ctx context.Context, id uuid.UUID) error

	CreateCard(ctx context.Context, card *models.Card, qrURL func(id uuid.UUID) string) error
	FindCardByID(ctx context.Context, id uuid.UUID) (*models.CardDetails, error)
	ListCards(ctx context.Context, filter repository.CardFilter) ([]models.CardDetails, error)
	UpdateCard(ctx context.Context, card *models.Card) error
	DeleteCard(ctx context.Context, id uuid.UUID) error
	CountCardsByDepartment(ctx context.Context, departmentID uuid.UUID) (int, error)
	CountCardsByMunicipality(ctx context.Context, municipalityID uuid.UUID) (int, error)
}

// CardRenderer draws a card as PDF.
type CardRenderer interface {
	Render(ctx context.Context, data render.CardData) (*render.Document, error)
}

// Mailer delivers the application's mail.
type Mailer interface {
	SendCard(ctx context.Context, to string, card email.CardMail) error
	SendPasswordReset(ctx context.Context, to, link string, ttl time.Duration) error
	SendPasswordChanged(ctx context.Context, to string, at time.Time) error
	SendPendingDigest(ctx context.Context, to []string, cards []email.PendingCard) error
}

// PhotoStorage keeps uploaded member photos.
type PhotoStorage interface {
	Store(ctx context.Context, key string, content io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	KeyFromURL(url string) (string, bool)
}

// Service handles business logic
type Service struct {
	repo     Store
	renderer CardRenderer
	mailer   Mailer
	photos   PhotoStorage
	validate *validator.Validator
	log      *logrus.Logger
	config   *config.Config
	now      func() time.Time
}

// NewService initializes a new service
func NewService(repo Store, renderer CardRenderer, mailer Mailer, photos PhotoStorage, log *logrus.Logger, cfg *config.Config) *Service {
	return &Service{
		repo:     repo,
		renderer: renderer,
		mailer:   mailer,
		photos:   photos,
		validate: validator.New(),
		log:      log,
		config:   cfg,
		now:      time.Now,
	}
}

func requireUser(caller *models.User) error {
	if caller == nil {
		return apperr.Unauthorized("authentication required")
	}
	return nil
}

func requireAdmin(caller *models.User) error {
	if err := requireUser(caller); err != nil {
		return err
	}
	if !caller.IsAdmin {
		return apperr.Forbidden("administrator privileges required")
	}
	return nil
}

// Photo is an uploaded member picture.
type Photo struct {
	Filename string
	Content  io.Reader
}

// storePhoto checks the upload's size and type and saves it under the profile image directory.
func (s *Service) storePhoto(ctx context.Context, p *Photo) (string, error) {
	data, err := io.ReadAll(io.LimitReader(p.Content, s.config.MaxUploadBytes+1))
	if err != nil {
		return "", apperr.BadRequest("could not read uploaded image: %v", err)
	}
	if int64(len(data)) > s.config.MaxUploadBytes {
		return "", apperr.BadRequest("image exceeds %d bytes", s.config.MaxUploadBytes)
	}
	contentType, ext, err := validator.DetectImage(data, s.config.AllowedImageTypes)
	if err != nil {
		return "", err
	}

	key := storage.NewKey(s.config.ProfileImageDir, "photo"+ext)
	url, err := s.photos.Store(ctx, key, bytes.NewReader(data), contentType)
	if err != nil {
		return "", apperr.Internal(err, "could not store image")
	}
	s.log.WithFields(logrus.Fields{"key": key, "filename": p.Filename}).Debug("Stored member photo")
	return url, nil
}

// removePhoto deletes a stored photo. Failures are logged, never returned.
func (s *Service) removePhoto(ctx context.Context, url *string) {
	if url == nil || *url == "" {
		return
	}
	key, ok := s.photos.KeyFromURL(*url)
	if !ok {
		s.log.Warnf("Photo %s is not managed by storage, leaving it", *url)
		return
	}
	if err := s.photos.Delete(ctx, key); err != nil {
		s.log.Warnf("Failed to remove photo %s: %v", key, err)
	}
}
