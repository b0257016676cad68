package handler

import (
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/Kevjes/liberal-api/internal/apperr"
	"github.com/Kevjes/liberal-api/internal/middleware"
	"github.com/Kevjes/liberal-api/internal/models"
	"github.com/Kevjes/liberal-api/internal/repository"
	"github.com/Kevjes/liberal-api/internal/service"
	"github.com/Kevjes/liberal-api/internal/utils"
	"github.com/google/uuid"
)

// photoField is the multipart field carrying the member photo.
const photoField = "image"

// multipartOverhead covers form fields sent next to the photo.
const multipartOverhead = 1 << 20

// CreateCard handles a multipart form with the member fields and a photo.
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	if err := h.parseMultipart(w, r); err != nil {
		h.writeError(w, r, err)
		return
	}

	in := service.CreateCardInput{
		FirstName: r.FormValue("first_name"),
		LastName:  r.FormValue("last_name"),
		Status:    r.FormValue("status"),
		Contact:   r.FormValue("contact"),
		Email:     r.FormValue("email"),
	}
	var err error
	if in.DepartmentID, err = formUUID(r, "department_id"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if in.MunicipalityID, err = formUUID(r, "municipality_id"); err != nil {
		h.writeError(w, r, err)
		return
	}

	photo, closePhoto, err := formPhoto(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer closePhoto()

	card, err := h.svc.CreateCard(r.Context(), middleware.UserFromContext(r.Context()), in, photo)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, card)
}

// ListCards supports is_active, department_id and municipality_id query filters.
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	filter, err := cardFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	cards, err := h.svc.ListCards(r.Context(), middleware.UserFromContext(r.Context()), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, nonNil(cards))
}

func cardFilter(r *http.Request) (repository.CardFilter, error) {
	var filter repository.CardFilter
	q := r.URL.Query()
	if raw := q.Get("is_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, apperr.BadRequest("is_active must be a boolean")
		}
		filter.Active = &active
	}
	if raw := q.Get("department_id"); raw != "" {
		id, err := parseUUID("department_id", raw)
		if err != nil {
			return filter, err
		}
		filter.DepartmentID = &id
	}
	if raw := q.Get("municipality_id"); raw != "" {
		id, err := parseUUID("municipality_id", raw)
		if err != nil {
			return filter, err
		}
		filter.MunicipalityID = &id
	}
	return filter, nil
}

func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	card, err := h.svc.GetCard(r.Context(), middleware.UserFromContext(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, card)
}

// UpdateCard accepts a JSON patch, or a multipart form when a new photo is sent.
func (h *Handler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var (
		patch models.CardPatch
		photo *service.Photo
	)
	if isMultipart(r) {
		if err := h.parseMultipart(w, r); err != nil {
			h.writeError(w, r, err)
			return
		}
		if patch, err = formPatch(r); err != nil {
			h.writeError(w, r, err)
			return
		}
		var closePhoto func()
		if photo, closePhoto, err = formPhoto(r); err != nil {
			h.writeError(w, r, err)
			return
		}
		defer closePhoto()
	} else if err := decodeJSON(r, &patch); err != nil {
		h.writeError(w, r, err)
		return
	}

	card, err := h.svc.UpdateCard(r.Context(), middleware.UserFromContext(r.Context()), id, patch, photo)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, card)
}

func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.DeleteCard(r.Context(), middleware.UserFromContext(r.Context()), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CardPDF streams the rendered card. Elements drawn with a placeholder are
// listed in the X-Card-Fallbacks header.
func (h *Handler) CardPDF(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	doc, card, err := h.svc.RenderCard(r.Context(), middleware.UserFromContext(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var fallbacks []string
	for _, e := range doc.Fallbacks() {
		fallbacks = append(fallbacks, e.Element)
	}
	if len(fallbacks) > 0 {
		w.Header().Set("X-Card-Fallbacks", strings.Join(fallbacks, ","))
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": utils.CardAttachmentName(card.FirstName, card.LastName),
	}))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Bytes)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.Bytes); err != nil {
		h.logger.Warnf("Failed to write card PDF: %v", err)
	}
}

// SendCardEmail mails the card PDF to the card's address, or to
// recipient_email when given.
func (h *Handler) SendCardEmail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	recipient := r.URL.Query().Get("recipient_email")
	if err := h.svc.DeliverCard(r.Context(), middleware.UserFromContext(r.Context()), id, recipient); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.message(w, "Membership card email sent successfully.")
}

// ViewCard is the public page behind the QR code.
func (h *Handler) ViewCard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := h.svc.ViewCard(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func isMultipart(r *http.Request) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mediaType == "multipart/form-data"
}

func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	limit := h.maxUploadBytes + multipartOverhead
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.BadRequest("upload exceeds %d bytes", h.maxUploadBytes)
		}
		return apperr.BadRequest("malformed multipart form")
	}
	return nil
}

// formPhoto returns the uploaded photo, or nil when the field is absent.
// The returned func closes the underlying file.
func formPhoto(r *http.Request) (*service.Photo, func(), error) {
	file, header, err := r.FormFile(photoField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, apperr.BadRequest("unreadable %s upload", photoField)
	}
	return &service.Photo{Filename: header.Filename, Content: file}, func() { file.Close() }, nil
}

func formUUID(r *http.Request, field string) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return uuid.Nil, nil
	}
	return parseUUID(field, raw)
}

// formPatch builds a patch from the form fields present in the request.
func formPatch(r *http.Request) (models.CardPatch, error) {
	var patch models.CardPatch
	form := r.MultipartForm.Value
	str := func(key string) *string {
		if v, ok := form[key]; ok && len(v) > 0 {
			return &v[0]
		}
		return nil
	}
	patch.FirstName = str("first_name")
	patch.LastName = str("last_name")
	patch.Status = str("status")
	patch.Contact = str("contact")
	patch.Email = str("email")

	if raw := str("is_active"); raw != nil {
		active, err := strconv.ParseBool(*raw)
		if err != nil {
			return patch, apperr.BadRequest("is_active must be a boolean")
		}
		patch.IsActive = &active
	}
	for key, dst := range map[string]**uuid.UUID{
		"department_id":   &patch.DepartmentID,
		"municipality_id": &patch.MunicipalityID,
	} {
		raw := str(key)
		if raw == nil {
			continue
		}
		id, err := parseUUID(key, *raw)
		if err != nil {
			return patch, err
		}
		*dst = &id
	}
	return patch, nil
}
