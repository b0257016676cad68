package handler

import (
	"mime"
	"net/http"

	"github.com/Kevjes/liberal-api/internal/apperr"
	"github.com/Kevjes/liberal-api/internal/middleware"
	"github.com/Kevjes/liberal-api/internal/service"
)

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req service.Credentials
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	token, err := h.svc.Register(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, token)
}

// Login accepts either a JSON body or an OAuth2 password form
// (username and password fields).
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	req, err := loginCredentials(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	token, err := h.svc.Login(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, token)
}

func loginCredentials(r *http.Request) (service.Credentials, error) {
	var req service.Credentials
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		if err := r.ParseForm(); err != nil {
			return req, apperr.BadRequest("malformed form body")
		}
		req.Email = r.PostForm.Get("username")
		if req.Email == "" {
			req.Email = r.PostForm.Get("email")
		}
		req.Password = r.PostForm.Get("password")
		return req, nil
	}
	err := decodeJSON(r, &req)
	return req, err
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.message(w, "If an account exists for this email, a reset link has been sent.")
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req service.PasswordReset
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.message(w, "Password has been reset successfully.")
}

func (h *Handler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req service.Credentials
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	user, err := h.svc.CreateAdmin(r.Context(), middleware.UserFromContext(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, user)
}
