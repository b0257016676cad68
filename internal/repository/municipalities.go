package repository

import (
	"context"
	"fmt"

	"github.com/Kevjes/liberal-api/internal/models"
	"github.com/google/uuid"
)

const municipalityColumns = `id, department_id, name, created_at, updated_at`

func scanMunicipality(s scanner) (*models.Municipality, error) {
	m := &models.Municipality{}
	if err := s.Scan(&m.ID, &m.DepartmentID, &m.Name, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Repository) CreateMunicipality(ctx context.Context, m *models.Municipality) error {
	query := `
		INSERT INTO municipalities (department_id, name, created_at, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, m.DepartmentID, m.Name).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	return mapError(err, "municipality", "create")
}

func (r *Repository) FindMunicipalityByID(ctx context.Context, id uuid.UUID) (*models.Municipality, error) {
	m, err := scanMunicipality(r.db.QueryRowContext(ctx,
		`SELECT `+municipalityColumns+` FROM municipalities WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, "municipality", "find")
	}
	return m, nil
}

func (r *Repository) FindMunicipalityByName(ctx context.Context, name string) (*models.Municipality, error) {
	m, err := scanMunicipality(r.db.QueryRowContext(ctx,
		`SELECT `+municipalityColumns+` FROM municipalities WHERE name = $1`, name))
	if err != nil {
		return nil, mapError(err, "municipality", "find")
	}
	return m, nil
}

// ListMunicipalities returns all municipalities, or those of one department when departmentID is not nil
func (r *Repository) ListMunicipalities(ctx context.Context, departmentID *uuid.UUID) ([]models.Municipality, error) {
	query := `SELECT ` + municipalityColumns + ` FROM municipalities`
	var args []any
	if departmentID != nil {
		query += ` WHERE department_id = $1`
		args = append(args, *departmentID)
	}
	query += ` ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list municipalities: %w", err)
	}
	defer rows.Close()

	var out []models.Municipality
	for rows.Next() {
		m, err := scanMunicipality(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan municipality: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// UpdateMunicipality stores name and department of m
func (r *Repository) UpdateMunicipality(ctx context.Context, m *models.Municipality) error {
	query := `
		UPDATE municipalities SET name = $1, department_id = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
		RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, m.Name, m.DepartmentID, m.ID).Scan(&m.CreatedAt, &m.UpdatedAt)
	return mapError(err, "municipality", "update")
}

func (r *Repository) DeleteMunicipality(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM municipalities WHERE id = $1`, id)
	if err != nil {
		return mapError(err, "municipality", "delete")
	}
	return checkAffected(res, "municipality")
}
