package models

import (
	"time"

	"github.com/google/uuid"
)

// Department is the top level grouping of municipalities and cards
type Department struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
