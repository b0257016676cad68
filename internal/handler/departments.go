package handler

import (
	"net/http"

	"github.com/Kevjes/liberal-api/internal/middleware"
	"github.com/Kevjes/liberal-api/internal/service"
	"github.com/gorilla/mux"
)

func (h *Handler) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	var req service.DepartmentInput
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	dept, err := h.svc.CreateDepartment(r.Context(), middleware.UserFromContext(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, dept)
}

func (h *Handler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	depts, err := h.svc.ListDepartments(r.Context(), middleware.UserFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, nonNil(depts))
}

func (h *Handler) GetDepartment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dept, err := h.svc.GetDepartment(r.Context(), middleware.UserFromContext(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, dept)
}

func (h *Handler) GetDepartmentByName(w http.ResponseWriter, r *http.Request) {
	dept, err := h.svc.GetDepartmentByName(r.Context(), middleware.UserFromContext(r.Context()), mux.Vars(r)["name"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, dept)
}

func (h *Handler) RenameDepartment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req service.DepartmentInput
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	dept, err := h.svc.RenameDepartment(r.Context(), middleware.UserFromContext(r.Context()), id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, dept)
}

func (h *Handler) DeleteDepartment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.DeleteDepartment(r.Context(), middleware.UserFromContext(r.Context()), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
