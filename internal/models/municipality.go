package models

import (
	"time"

	"github.com/google/uuid"
)

// Municipality belongs to exactly one department
type Municipality struct {
	ID           uuid.UUID `json:"id"`
	DepartmentID uuid.UUID `json:"department_id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
