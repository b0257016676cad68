package repository

import (
	"context"
	"fmt"

	"github.com/Kevjes/liberal-api/internal/models"
	"github.com/google/uuid"
)

const departmentColumns = `id, name, created_at, updated_at`

func scanDepartment(s scanner) (*models.Department, error) {
	d := &models.Department{}
	if err := s.Scan(&d.ID, &d.Name, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return d, nil
}

// CreateDepartment inserts a department
func (r *Repository) CreateDepartment(ctx context.Context, d *models.Department) error {
	query := `
		INSERT INTO departments (name, created_at, updated_at)
		VALUES ($1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, d.Name).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	return mapError(err, "department", "create")
}

func (r *Repository) FindDepartmentByID(ctx context.Context, id uuid.UUID) (*models.Department, error) {
	d, err := scanDepartment(r.db.QueryRowContext(ctx,
		`SELECT `+departmentColumns+` FROM departments WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, "department", "find")
	}
	return d, nil
}

func (r *Repository) FindDepartmentByName(ctx context.Context, name string) (*models.Department, error) {
	d, err := scanDepartment(r.db.QueryRowContext(ctx,
		`SELECT `+departmentColumns+` FROM departments WHERE name = $1`, name))
	if err != nil {
		return nil, mapError(err, "department", "find")
	}
	return d, nil
}

func (r *Repository) ListDepartments(ctx context.Context) ([]models.Department, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+departmentColumns+` FROM departments ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	defer rows.Close()

	var out []models.Department
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan department: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// RenameDepartment changes the name and refreshes d from the stored row
func (r *Repository) RenameDepartment(ctx context.Context, d *models.Department) error {
	query := `
		UPDATE departments SET name = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2
		RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, d.Name, d.ID).Scan(&d.CreatedAt, &d.UpdatedAt)
	return mapError(err, "department", "update")
}

func (r *Repository) DeleteDepartment(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM departments WHERE id = $1`, id)
	if err != nil {
		return mapError(err, "department", "delete")
	}
	return checkAffected(res, "department")
}

// CountMunicipalitiesByDepartment counts municipalities attached to a department
func (r *Repository) CountMunicipalitiesByDepartment(ctx context.Context, departmentID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM municipalities WHERE department_id = $1`, departmentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count municipalities: %w", err)
	}
	return n, nil
}
