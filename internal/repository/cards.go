package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Kevjes/liberal-api/internal/models"
	"github.com/google/uuid"
)

// cardNumberLock is the advisory lock key serialising card number assignment.
const cardNumberLock int64 = 0x4361726473 // "Cards"

const cardDetailsSelect = `
	SELECT c.id, c.number, c.first_name, c.last_name, c.status, c.contact, c.email,
	       c.image_url, c.qr_code_url, c.department_id, c.municipality_id, c.creator_id,
	       c.is_active, c.created_at, c.updated_at,
	       d.id, d.name, d.created_at, d.updated_at,
	       m.id, m.department_id, m.name, m.created_at, m.updated_at
	FROM cards c
	LEFT JOIN departments d ON d.id = c.department_id
	LEFT JOIN municipalities m ON m.id = c.municipality_id`

// CardFilter narrows ListCards; zero value lists everything
type CardFilter struct {
	Active         *bool
	DepartmentID   *uuid.UUID
	MunicipalityID *uuid.UUID
}

func scanCardDetails(s scanner) (*models.CardDetails, error) {
	var (
		c                      models.CardDetails
		imageURL, qrURL        sql.NullString
		deptID, munID, munDept uuid.NullUUID
		deptName, munName      sql.NullString
		deptCreated, deptUpd   sql.NullTime
		munCreated, munUpd     sql.NullTime
	)
	err := s.Scan(
		&c.ID, &c.Number, &c.FirstName, &c.LastName, &c.Status, &c.Contact, &c.Email,
		&imageURL, &qrURL, &c.DepartmentID, &c.MunicipalityID, &c.CreatorID,
		&c.IsActive, &c.CreatedAt, &c.UpdatedAt,
		&deptID, &deptName, &deptCreated, &deptUpd,
		&munID, &munDept, &munName, &munCreated, &munUpd,
	)
	if err != nil {
		return nil, err
	}
	c.ImageURL = nullableString(imageURL)
	c.QRCodeURL = nullableString(qrURL)
	if deptID.Valid {
		c.Department = &models.Department{
			ID: deptID.UUID, Name: deptName.String, CreatedAt: deptCreated.Time, UpdatedAt: deptUpd.Time,
		}
	}
	if munID.Valid {
		c.Municipality = &models.Municipality{
			ID: munID.UUID, DepartmentID: munDept.UUID, Name: munName.String,
			CreatedAt: munCreated.Time, UpdatedAt: munUpd.Time,
		}
	}
	return &c, nil
}

// CreateCard inserts card with the next sequence number, then stores the QR
// payload built from the identifier the insert produced. Both writes share one
// transaction and the number is assigned under an advisory lock, so concurrent
// creations never read the same maximum.
func (r *Repository) CreateCard(ctx context.Context, card *models.Card, qrURL func(id uuid.UUID) string) error {
	return r.withTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, cardNumberLock); err != nil {
			return fmt.Errorf("failed to lock card numbers: %w", err)
		}
		if err := q.QueryRowContext(ctx, `SELECT COALESCE(MAX(number), 0) + 1 FROM cards`).Scan(&card.Number); err != nil {
			return fmt.Errorf("failed to compute card number: %w", err)
		}

		insert := `
			INSERT INTO cards (creator_id, number, first_name, last_name, status, contact, email,
			                   image_url, department_id, municipality_id, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
			RETURNING id, created_at, updated_at`
		err := q.QueryRowContext(ctx, insert,
			card.CreatorID, card.Number, card.FirstName, card.LastName, card.Status, card.Contact, card.Email,
			card.ImageURL, card.DepartmentID, card.MunicipalityID, card.IsActive,
		).Scan(&card.ID, &card.CreatedAt, &card.UpdatedAt)
		if err != nil {
			return mapError(err, "card", "create")
		}

		url := qrURL(card.ID)
		err = q.QueryRowContext(ctx,
			`UPDATE cards SET qr_code_url = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2 RETURNING updated_at`,
			url, card.ID,
		).Scan(&card.UpdatedAt)
		if err != nil {
			return mapError(err, "card", "update")
		}
		card.QRCodeURL = &url
		return nil
	})
}

// FindCardByID loads a card with its department and municipality
func (r *Repository) FindCardByID(ctx context.Context, id uuid.UUID) (*models.CardDetails, error) {
	c, err := scanCardDetails(r.db.QueryRowContext(ctx, cardDetailsSelect+` WHERE c.id = $1`, id))
	if err != nil {
		return nil, mapError(err, "card", "find")
	}
	return c, nil
}

// ListCards returns cards ordered by number
func (r *Repository) ListCards(ctx context.Context, filter CardFilter) ([]models.CardDetails, error) {
	var (
		where []string
		args  []any
	)
	if filter.Active != nil {
		args = append(args, *filter.Active)
		where = append(where, fmt.Sprintf("c.is_active = $%d", len(args)))
	}
	if filter.DepartmentID != nil {
		args = append(args, *filter.DepartmentID)
		where = append(where, fmt.Sprintf("c.department_id = $%d", len(args)))
	}
	if filter.MunicipalityID != nil {
		args = append(args, *filter.MunicipalityID)
		where = append(where, fmt.Sprintf("c.municipality_id = $%d", len(args)))
	}
	query := cardDetailsSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY c.number"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	var out []models.CardDetails
	for rows.Next() {
		c, err := scanCardDetails(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpdateCard writes the editable columns of card. Callers load the row first
// and apply a models.CardPatch, so untouched fields keep their stored value.
func (r *Repository) UpdateCard(ctx context.Context, card *models.Card) error {
	query := `
		UPDATE cards SET first_name = $1, last_name = $2, status = $3, contact = $4, email = $5,
		                 image_url = $6, department_id = $7, municipality_id = $8, is_active = $9,
		                 updated_at = CURRENT_TIMESTAMP
		WHERE id = $10
		RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query,
		card.FirstName, card.LastName, card.Status, card.Contact, card.Email,
		card.ImageURL, card.DepartmentID, card.MunicipalityID, card.IsActive, card.ID,
	).Scan(&card.UpdatedAt)
	return mapError(err, "card", "update")
}

func (r *Repository) DeleteCard(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cards WHERE id = $1`, id)
	if err != nil {
		return mapError(err, "card", "delete")
	}
	return checkAffected(res, "card")
}

// CountCardsByDepartment counts cards referencing the department directly
func (r *Repository) CountCardsByDepartment(ctx context.Context, departmentID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards WHERE department_id = $1`, departmentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count cards: %w", err)
	}
	return n, nil
}

func (r *Repository) CountCardsByMunicipality(ctx context.Context, municipalityID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards WHERE municipality_id = $1`, municipalityID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count cards: %w", err)
	}
	return n, nil
}
