package handler

import (
	"net/http"

	"github.com/Kevjes/liberal-api/internal/middleware"
	"github.com/Kevjes/liberal-api/internal/service"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

func (h *Handler) CreateMunicipality(w http.ResponseWriter, r *http.Request) {
	var req service.MunicipalityInput
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	m, err := h.svc.CreateMunicipality(r.Context(), middleware.UserFromContext(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) ListMunicipalities(w http.ResponseWriter, r *http.Request) {
	h.listMunicipalities(w, r, nil)
}

func (h *Handler) ListMunicipalitiesByDepartment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.listMunicipalities(w, r, &id)
}

func (h *Handler) listMunicipalities(w http.ResponseWriter, r *http.Request, departmentID *uuid.UUID) {
	list, err := h.svc.ListMunicipalities(r.Context(), middleware.UserFromContext(r.Context()), departmentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, nonNil(list))
}

func (h *Handler) GetMunicipality(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	m, err := h.svc.GetMunicipality(r.Context(), middleware.UserFromContext(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, m)
}

func (h *Handler) GetMunicipalityByName(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.GetMunicipalityByName(r.Context(), middleware.UserFromContext(r.Context()), mux.Vars(r)["name"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, m)
}

func (h *Handler) UpdateMunicipality(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req service.MunicipalityPatch
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	m, err := h.svc.UpdateMunicipality(r.Context(), middleware.UserFromContext(r.Context()), id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, m)
}

func (h *Handler) DeleteMunicipality(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.DeleteMunicipality(r.Context(), middleware.UserFromContext(r.Context()), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
