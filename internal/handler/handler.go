package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Kevjes/liberal-api/internal/apperr"
	"github.com/Kevjes/liberal-api/internal/models"
	"github.com/Kevjes/liberal-api/internal/render"
	"github.com/Kevjes/liberal-api/internal/repository"
	"github.com/Kevjes/liberal-api/internal/service"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Service is the business API the handlers expose. *service.Service implements it.
type Service interface {
	Register(ctx context.Context, in service.Credentials) (*models.Token, error)
	Login(ctx context.Context, in service.Credentials) (*models.Token, error)
	CreateAdmin(ctx context.Context, caller *models.User, in service.Credentials) (*models.User, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, in service.PasswordReset) error
	Me(ctx context.Context, caller *models.User) (*models.User, error)
	ChangePassword(ctx context.Context, caller *models.User, in service.PasswordChange) error
	ListUsers(ctx context.Context, caller *models.User, adminsOnly bool) ([]models.User, error)
	DeleteUser(ctx context.Context, caller *models.User, id uuid.UUID) error

	CreateDepartment(ctx context.Context, caller *models.User, in service.DepartmentInput) (*models.Department, error)
	ListDepartments(ctx context.Context, caller *models.User) ([]models.Department, error)
	GetDepartment(ctx context.Context, caller *models.User, id uuid.UUID) (*models.Department, error)
	GetDepartmentByName(ctx context.Context, caller *models.User, name string) (*models.Department, error)
	RenameDepartment(ctx context.Context, caller *models.User, id uuid.UUID, in service.DepartmentInput) (*models.Department, error)
	DeleteDepartment(ctx context.Context, caller *models.User, id uuid.UUID) error

	CreateMunicipality(ctx context.Context, caller *models.User, in service.MunicipalityInput) (*models.Municipality, error)
	ListMunicipalities(ctx context.Context, caller *models.User, departmentID *uuid.UUID) ([]models.Municipality, error)
	GetMunicipality(ctx context.Context, caller *models.User, id uuid.UUID) (*models.Municipality, error)
	GetMunicipalityByName(ctx context.Context, caller *models.User, name string) (*models.Municipality, error)
	UpdateMunicipality(ctx context.Context, caller *models.User, id uuid.UUID, patch service.MunicipalityPatch) (*models.Municipality, error)
	DeleteMunicipality(ctx context.Context, caller *models.User, id uuid.UUID) error

	CreateCard(ctx context.Context, caller *models.User, in service.CreateCardInput, photo *service.Photo) (*models.CardDetails, error)
	GetCard(ctx context.Context, caller *models.User, id uuid.UUID) (*models.CardDetails, error)
	ListCards(ctx context.Context, caller *models.User, filter repository.CardFilter) ([]models.CardDetails, error)
	ViewCard(ctx context.Context, id uuid.UUID) (*models.CardView, error)
	RenderCard(ctx context.Context, caller *models.User, id uuid.UUID) (*render.Document, *models.CardDetails, error)
	DeliverCard(ctx context.Context, caller *models.User, id uuid.UUID, override string) error
	UpdateCard(ctx context.Context, caller *models.User, id uuid.UUID, patch models.CardPatch, photo *service.Photo) (*models.CardDetails, error)
	DeleteCard(ctx context.Context, caller *models.User, id uuid.UUID) error
}

type Handler struct {
	svc            Service
	logger         *logrus.Logger
	maxUploadBytes int64
}

func NewHandler(svc Service, logger *logrus.Logger, maxUploadBytes int64) *Handler {
	return &Handler{svc: svc, logger: logger, maxUploadBytes: maxUploadBytes}
}

type middlewareFunc = func(http.Handler) http.Handler

// RegisterRoutes mounts every endpoint on r. auth guards the routes that need
// a caller; limit throttles the unauthenticated auth endpoints.
func (h *Handler) RegisterRoutes(r *mux.Router, auth, limit middlewareFunc) {
	// Public routes
	public := r.PathPrefix("/auth").Subrouter()
	public.Use(limit)
	public.HandleFunc("/signup", h.Signup).Methods(http.MethodPost)
	public.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	public.HandleFunc("/forgot-password", h.ForgotPassword).Methods(http.MethodPost)
	public.HandleFunc("/reset-password", h.ResetPassword).Methods(http.MethodPost)
	r.HandleFunc("/cards/view/{id:"+uuidPattern+"}", h.ViewCard).Methods(http.MethodGet)

	// Protected routes
	protected := r.NewRoute().Subrouter()
	protected.Use(auth)
	protected.HandleFunc("/auth/admin/create", h.CreateAdmin).Methods(http.MethodPost)

	protected.HandleFunc("/user/me", h.Me).Methods(http.MethodGet)
	protected.HandleFunc("/user/update-password", h.UpdatePassword).Methods(http.MethodPatch)
	protected.HandleFunc("/user/all", h.ListUsers).Methods(http.MethodGet)
	protected.HandleFunc("/user/admins", h.ListAdmins).Methods(http.MethodGet)
	protected.HandleFunc("/user/{id:"+uuidPattern+"}", h.DeleteUser).Methods(http.MethodDelete)

	protected.HandleFunc("/department/", h.CreateDepartment).Methods(http.MethodPost)
	protected.HandleFunc("/department/all", h.ListDepartments).Methods(http.MethodGet)
	protected.HandleFunc("/department/name/{name}", h.GetDepartmentByName).Methods(http.MethodGet)
	protected.HandleFunc("/department/{id:"+uuidPattern+"}", h.GetDepartment).Methods(http.MethodGet)
	protected.HandleFunc("/department/{id:"+uuidPattern+"}", h.RenameDepartment).Methods(http.MethodPatch)
	protected.HandleFunc("/department/{id:"+uuidPattern+"}", h.DeleteDepartment).Methods(http.MethodDelete)

	protected.HandleFunc("/municipality/", h.CreateMunicipality).Methods(http.MethodPost)
	protected.HandleFunc("/municipality/all", h.ListMunicipalities).Methods(http.MethodGet)
	protected.HandleFunc("/municipality/department/{id:"+uuidPattern+"}", h.ListMunicipalitiesByDepartment).Methods(http.MethodGet)
	protected.HandleFunc("/municipality/name/{name}", h.GetMunicipalityByName).Methods(http.MethodGet)
	protected.HandleFunc("/municipality/{id:"+uuidPattern+"}", h.GetMunicipality).Methods(http.MethodGet)
	protected.HandleFunc("/municipality/{id:"+uuidPattern+"}", h.UpdateMunicipality).Methods(http.MethodPatch)
	protected.HandleFunc("/municipality/{id:"+uuidPattern+"}", h.DeleteMunicipality).Methods(http.MethodDelete)

	protected.HandleFunc("/card/", h.CreateCard).Methods(http.MethodPost)
	protected.HandleFunc("/card/all", h.ListCards).Methods(http.MethodGet)
	protected.HandleFunc("/card/{id:"+uuidPattern+"}", h.GetCard).Methods(http.MethodGet)
	protected.HandleFunc("/card/{id:"+uuidPattern+"}", h.UpdateCard).Methods(http.MethodPatch)
	protected.HandleFunc("/card/{id:"+uuidPattern+"}", h.DeleteCard).Methods(http.MethodDelete)
	protected.HandleFunc("/card/{id:"+uuidPattern+"}/pdf", h.CardPDF).Methods(http.MethodGet)
	protected.HandleFunc("/card/{id:"+uuidPattern+"}/send-email", h.SendCardEmail).Methods(http.MethodPost)
}

const uuidPattern = `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Errorf("Failed to encode response: %v", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Errorf("Request failed: %v", err)
	}
	h.writeJSON(w, status, map[string]string{"detail": apperr.Message(err)})
}

func (h *Handler) message(w http.ResponseWriter, text string) {
	h.writeJSON(w, http.StatusOK, map[string]string{"message": text})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.BadRequest("request body is empty")
		}
		return apperr.BadRequest("malformed JSON: %v", err)
	}
	return nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	return parseUUID("id", mux.Vars(r)["id"])
}

func parseUUID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.BadRequest("%s must be a UUID", field)
	}
	return id, nil
}
