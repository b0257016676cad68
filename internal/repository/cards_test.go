package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Kevjes/liberal-api/internal/apperr"
	"github.com/Kevjes/liberal-api/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock
}

func sampleCard() *models.Card {
	return &models.Card{
		FirstName:      "Jane",
		LastName:       "Doe",
		Status:         models.DefaultCardStatus,
		Contact:        "650000000",
		Email:          "jane@x.com",
		DepartmentID:   uuid.New(),
		MunicipalityID: uuid.New(),
		CreatorID:      uuid.New(),
	}
}

var cardDetailColumns = []string{
	"id", "number", "first_name", "last_name", "status", "contact", "email",
	"image_url", "qr_code_url", "department_id", "municipality_id", "creator_id",
	"is_active", "created_at", "updated_at",
	"d_id", "d_name", "d_created_at", "d_updated_at",
	"m_id", "m_department_id", "m_name", "m_created_at", "m_updated_at",
}

func TestCreateCard_AssignsNumberAndQRCodeInOneTransaction(t *testing.T) {
	repo, mock := newMockRepo(t)
	card := sampleCard()
	id := uuid.New()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	wantURL := "https://members.example.org/cards/view/" + id.String()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock($1)`)).
		WithArgs(cardNumberLock).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(number), 0) + 1 FROM cards`)).
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(int64(1)))
	mock.ExpectQuery(`INSERT INTO cards`).
		WithArgs(card.CreatorID, int64(1), "Jane", "Doe", models.DefaultCardStatus, "650000000", "jane@x.com",
			nil, card.DepartmentID, card.MunicipalityID, false).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(id.String(), now, now))
	mock.ExpectQuery(`UPDATE cards SET qr_code_url`).
		WithArgs(wantURL, id).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now.Add(time.Second)))
	mock.ExpectCommit()

	err := repo.CreateCard(context.Background(), card, func(cardID uuid.UUID) string {
		return "https://members.example.org/cards/view/" + cardID.String()
	})
	require.NoError(t, err)

	assert.Equal(t, id, card.ID)
	assert.Equal(t, int64(1), card.Number)
	require.NotNil(t, card.QRCodeURL)
	assert.Equal(t, wantURL, *card.QRCodeURL)
	assert.Equal(t, now.Add(time.Second), card.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCard_DuplicateEmailIsConflict(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock($1)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(number), 0) + 1 FROM cards`)).
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(int64(4)))
	mock.ExpectQuery(`INSERT INTO cards`).
		WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: "cards_email_key"})
	mock.ExpectRollback()

	err := repo.CreateCard(context.Background(), sampleCard(), func(uuid.UUID) string { return "" })
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Contains(t, err.Error(), "email")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindCardByID_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`FROM cards c`).WillReturnError(sql.ErrNoRows)

	_, err := repo.FindCardByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFindCardByID_ResolvesRelations(t *testing.T) {
	repo, mock := newMockRepo(t)
	id, deptID, munID, creator := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	now := time.Now().UTC()
	qr := "https://x/cards/view/" + id.String()

	mock.ExpectQuery(`FROM cards c`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(cardDetailColumns).AddRow(
			id.String(), int64(12), "Jane", "Doe", "Membre", "650000000", "jane@x.com",
			nil, qr, deptID.String(), munID.String(), creator.String(),
			true, now, now,
			nil, nil, nil, nil,
			munID.String(), deptID.String(), "Douala 1er", now, now,
		))

	card, err := repo.FindCardByID(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, int64(12), card.Number)
	assert.Nil(t, card.ImageURL)
	require.NotNil(t, card.QRCodeURL)
	assert.Equal(t, qr, *card.QRCodeURL)
	assert.Nil(t, card.Department)
	require.NotNil(t, card.Municipality)
	assert.Equal(t, "Douala 1er", card.MunicipalityName())
}

func TestDeleteCard_MissingRowIsNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM cards WHERE id = $1`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteCard(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteDepartment_ReferencedIsConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM departments WHERE id = $1`)).
		WillReturnError(&pq.Error{Code: pqForeignKeyViolation})

	err := repo.DeleteDepartment(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestListCards_BuildsFilter(t *testing.T) {
	repo, mock := newMockRepo(t)
	inactive := false
	dept := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE c.is_active = $1 AND c.department_id = $2 ORDER BY c.number`)).
		WithArgs(false, dept).
		WillReturnRows(sqlmock.NewRows(cardDetailColumns))

	cards, err := repo.ListCards(context.Background(), CardFilter{Active: &inactive, DepartmentID: &dept})
	require.NoError(t, err)
	assert.Empty(t, cards)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConstraintField(t *testing.T) {
	assert.Equal(t, "email", constraintField("cards_email_key"))
	assert.Equal(t, "contact", constraintField("cards_contact_key"))
	assert.Equal(t, "name", constraintField("departments_name_key"))
	assert.Equal(t, "", constraintField(""))
}
