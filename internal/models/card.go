package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultCardStatus is the role label given when none is supplied
const DefaultCardStatus = "Membre"

// Card represents a member card record
type Card struct {
	ID             uuid.UUID `json:"id"`
	Number         int64     `json:"number"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Status         string    `json:"status"`
	Contact        string    `json:"contact"`
	Email          string    `json:"email"`
	ImageURL       *string   `json:"image_url"`
	QRCodeURL      *string   `json:"qr_code_url"`
	DepartmentID   uuid.UUID `json:"department_id"`
	MunicipalityID uuid.UUID `json:"municipality_id"`
	CreatorID      uuid.UUID `json:"creator_id"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CardDetails is a card with its department and municipality resolved.
// Either side may be nil when the referenced row is gone.
type CardDetails struct {
	Card
	Department   *Department   `json:"department"`
	Municipality *Municipality `json:"municipality"`
}

// DepartmentName returns the resolved department name or an empty string
func (c *CardDetails) DepartmentName() string {
	if c.Department == nil {
		return ""
	}
	return c.Department.Name
}

// MunicipalityName returns the resolved municipality name or an empty string
func (c *CardDetails) MunicipalityName() string {
	if c.Municipality == nil {
		return ""
	}
	return c.Municipality.Name
}

// CardPatch lists the fields a caller wants to change; nil means untouched
type CardPatch struct {
	FirstName      *string    `json:"first_name,omitempty" validate:"omitempty,min=3,max=50"`
	LastName       *string    `json:"last_name,omitempty" validate:"omitempty,min=3,max=50"`
	Status         *string    `json:"status,omitempty" validate:"omitempty,min=3,max=50"`
	Contact        *string    `json:"contact,omitempty" validate:"omitempty,contact"`
	Email          *string    `json:"email,omitempty" validate:"omitempty,email"`
	IsActive       *bool      `json:"is_active,omitempty"`
	DepartmentID   *uuid.UUID `json:"department_id,omitempty"`
	MunicipalityID *uuid.UUID `json:"municipality_id,omitempty"`
	ImageURL       *string    `json:"-"`
}

// Empty reports whether the patch changes nothing
func (p CardPatch) Empty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Status == nil && p.Contact == nil &&
		p.Email == nil && p.IsActive == nil && p.DepartmentID == nil && p.MunicipalityID == nil &&
		p.ImageURL == nil
}

// Apply copies the set fields onto c
func (p CardPatch) Apply(c *Card) {
	if p.FirstName != nil {
		c.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		c.LastName = *p.LastName
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.Contact != nil {
		c.Contact = *p.Contact
	}
	if p.Email != nil {
		c.Email = *p.Email
	}
	if p.IsActive != nil {
		c.IsActive = *p.IsActive
	}
	if p.DepartmentID != nil {
		c.DepartmentID = *p.DepartmentID
	}
	if p.MunicipalityID != nil {
		c.MunicipalityID = *p.MunicipalityID
	}
	if p.ImageURL != nil {
		c.ImageURL = p.ImageURL
	}
}

// CardView is the public projection served behind the QR deep link
type CardView struct {
	Number       int64  `json:"number"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Status       string `json:"status"`
	IsActive     bool   `json:"is_active"`
	Department   string `json:"department"`
	Municipality string `json:"municipality"`
}
