package handler

import (
	"net/http"

	"github.com/Kevjes/liberal-api/internal/middleware"
	"github.com/Kevjes/liberal-api/internal/service"
)

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Me(r.Context(), middleware.UserFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

func (h *Handler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req service.PasswordChange
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.ChangePassword(r.Context(), middleware.UserFromContext(r.Context()), req); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.message(w, "Password updated successfully.")
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	h.listUsers(w, r, false)
}

func (h *Handler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	h.listUsers(w, r, true)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request, adminsOnly bool) {
	users, err := h.svc.ListUsers(r.Context(), middleware.UserFromContext(r.Context()), adminsOnly)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, nonNil(users))
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.DeleteUser(r.Context(), middleware.UserFromContext(r.Context()), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// nonNil keeps empty lists encoded as [] rather than null
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
