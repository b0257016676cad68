package service

import (
	"context"
	"testing"

	"github.com/Kevjes/liberal-api/internal/apperr"
	"github.com/Kevjes/liberal-api/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepartmentCRUD(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateDepartment(ctx, f.member, DepartmentInput{Name: "Mfoundi"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	d, err := f.svc.CreateDepartment(ctx, f.admin, DepartmentInput{Name: "  Mfoundi "})
	require.NoError(t, err)
	assert.Equal(t, "Mfoundi", d.Name)

	_, err = f.svc.CreateDepartment(ctx, f.admin, DepartmentInput{Name: "Mfoundi"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = f.svc.CreateDepartment(ctx, f.admin, DepartmentInput{Name: "   "})
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	got, err := f.svc.GetDepartmentByName(ctx, f.member, "Mfoundi")
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)

	renamed, err := f.svc.RenameDepartment(ctx, f.admin, d.ID, DepartmentInput{Name: "Mfoundi Centre"})
	require.NoError(t, err)
	assert.Equal(t, "Mfoundi Centre", renamed.Name)

	all, err := f.svc.ListDepartments(ctx, f.member)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, f.svc.DeleteDepartment(ctx, f.admin, d.ID))
	_, err = f.svc.GetDepartment(ctx, f.member, d.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteDepartment_Protected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.DeleteDepartment(ctx, f.admin, f.dept.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict, "department still has municipalities")

	// a card may point at a department that has no municipality left
	bare := &models.Department{Name: "Nkam"}
	require.NoError(t, f.store.CreateDepartment(ctx, bare))
	f.store.putCard(models.Card{ID: uuid.New(), Number: 9, DepartmentID: bare.ID, MunicipalityID: f.mun.ID})

	err = f.svc.DeleteDepartment(ctx, f.admin, bare.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict, "department still referenced by a card")

	assert.ErrorIs(t, f.svc.DeleteDepartment(ctx, f.admin, uuid.New()), apperr.ErrNotFound)
}

func TestMunicipalityCRUD(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other, err := f.svc.CreateDepartment(ctx, f.admin, DepartmentInput{Name: "Mfoundi"})
	require.NoError(t, err)

	_, err = f.svc.CreateMunicipality(ctx, f.admin, MunicipalityInput{Name: "Yaounde 1er", DepartmentID: uuid.New()})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	m, err := f.svc.CreateMunicipality(ctx, f.admin, MunicipalityInput{Name: "Yaounde 1er", DepartmentID: other.ID})
	require.NoError(t, err)

	byDept, err := f.svc.ListMunicipalities(ctx, f.member, &other.ID)
	require.NoError(t, err)
	require.Len(t, byDept, 1)
	assert.Equal(t, m.ID, byDept[0].ID)

	name := "Yaounde 2e"
	updated, err := f.svc.UpdateMunicipality(ctx, f.admin, m.ID, MunicipalityPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Yaounde 2e", updated.Name)
	assert.Equal(t, other.ID, updated.DepartmentID)

	_, err = f.svc.UpdateMunicipality(ctx, f.admin, m.ID, MunicipalityPatch{})
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	require.NoError(t, f.svc.DeleteMunicipality(ctx, f.admin, m.ID))
	_, err = f.svc.GetMunicipalityByName(ctx, f.member, "Yaounde 2e")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMunicipality_ProtectedByCards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateCard(ctx, f.member, f.cardInput(1), pngPhoto(t))
	require.NoError(t, err)
	other, err := f.svc.CreateDepartment(ctx, f.admin, DepartmentInput{Name: "Mfoundi"})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeleteMunicipality(ctx, f.admin, f.mun.ID), apperr.ErrConflict)

	_, err = f.svc.UpdateMunicipality(ctx, f.admin, f.mun.ID, MunicipalityPatch{DepartmentID: &other.ID})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestSendPendingDigest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.svc.SendPendingDigest(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.mailer.digests)

	_, err = f.svc.CreateCard(ctx, f.admin, f.cardInput(1), pngPhoto(t))
	require.NoError(t, err)
	_, err = f.svc.CreateCard(ctx, f.member, f.cardInput(2), pngPhoto(t))
	require.NoError(t, err)
	_, err = f.svc.CreateCard(ctx, f.member, f.cardInput(3), pngPhoto(t))
	require.NoError(t, err)

	n, err = f.svc.SendPendingDigest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, f.mailer.digests, 1)
	assert.Equal(t, []string{"admin@liberal.test"}, f.mailer.digestTo[0])
	assert.Equal(t, int64(2), f.mailer.digests[0][0].Number)
	assert.Equal(t, "agent@liberal.test", f.mailer.digests[0][0].Creator)
}
