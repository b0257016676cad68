package service

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Kevjes/liberal-api/internal/apperr"
	"github.com/Kevjes/liberal-api/internal/config"
	"github.com/Kevjes/liberal-api/internal/models"
	"github.com/Kevjes/liberal-api/internal/render"
	"github.com/Kevjes/liberal-api/internal/repository"
	"github.com/Kevjes/liberal-api/internal/storage"
	"github.com/Kevjes/liberal-api/internal/utils/email"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store with the same uniqueness rules as the schema.
type memStore struct {
	mu             sync.Mutex
	users          map[uuid.UUID]models.User
	departments    map[uuid.UUID]models.Department
	municipalities map[uuid.UUID]models.Municipality
	cards          map[uuid.UUID]models.Card
}

func newMemStore() *memStore {
	return &memStore{
		users:          map[uuid.UUID]models.User{},
		departments:    map[uuid.UUID]models.Department{},
		municipalities: map[uuid.UUID]models.Municipality{},
		cards:          map[uuid.UUID]models.Card{},
	}
}

func (m *memStore) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.users {
		if other.Email == u.Email {
			return apperr.Conflict("user with this email already exists")
		}
	}
	u.ID, u.CreatedAt, u.UpdatedAt = uuid.New(), time.Now(), time.Now()
	m.users[u.ID] = *u
	return nil
}

func (m *memStore) FindUserByEmail(_ context.Context, addr string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == addr {
			return &u, nil
		}
	}
	return nil, apperr.NotFound("user not found")
}

func (m *memStore) FindUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	return &u, nil
}

func (m *memStore) ListUsers(_ context.Context, adminsOnly bool) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, u := range m.users {
		if !adminsOnly || u.IsAdmin {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *memStore) UpdateUserPassword(_ context.Context, id uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return apperr.NotFound("user not found")
	}
	u.PasswordHash = hash
	m.users[id] = u
	return nil
}

func (m *memStore) DeleteUser(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return apperr.NotFound("user not found")
	}
	delete(m.users, id)
	return nil
}

func (m *memStore) CountCardsByCreator(_ context.Context, id uuid.UUID) (int, error) {
	return m.countCards(func(c models.Card) bool { return c.CreatorID == id }), nil
}

func (m *memStore) CreateDepartment(_ context.Context, d *models.Department) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.departments {
		if other.Name == d.Name {
			return apperr.Conflict("department with this name already exists")
		}
	}
	d.ID, d.CreatedAt, d.UpdatedAt = uuid.New(), time.Now(), time.Now()
	m.departments[d.ID] = *d
	return nil
}

func (m *memStore) FindDepartmentByID(_ context.Context, id uuid.UUID) (*models.Department, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.departments[id]
	if !ok {
		return nil, apperr.NotFound("department not found")
	}
	return &d, nil
}

func (m *memStore) FindDepartmentByName(_ context.Context, name string) (*models.Department, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.departments {
		if d.Name == name {
			return &d, nil
		}
	}
	return nil, apperr.NotFound("department not found")
}

func (m *memStore) ListDepartments(context.Context) ([]models.Department, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Department
	for _, d := range m.departments {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) RenameDepartment(_ context.Context, d *models.Department) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.departments[d.ID]; !ok {
		return apperr.NotFound("department not found")
	}
	d.UpdatedAt = time.Now()
	m.departments[d.ID] = *d
	return nil
}

func (m *memStore) DeleteDepartment(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.departments, id)
	return nil
}

func (m *memStore) CountMunicipalitiesByDepartment(_ context.Context, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, mun := range m.municipalities {
		if mun.DepartmentID == id {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CreateMunicipality(_ context.Context, mun *models.Municipality) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.municipalities {
		if other.Name == mun.Name {
			return apperr.Conflict("municipality with this name already exists")
		}
	}
	mun.ID, mun.CreatedAt, mun.UpdatedAt = uuid.New(), time.Now(), time.Now()
	m.municipalities[mun.ID] = *mun
	return nil
}

func (m *memStore) FindMunicipalityByID(_ context.Context, id uuid.UUID) (*models.Municipality, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mun, ok := m.municipalities[id]
	if !ok {
		return nil, apperr.NotFound("municipality not found")
	}
	return &mun, nil
}

func (m *memStore) FindMunicipalityByName(_ context.Context, name string) (*models.Municipality, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mun := range m.municipalities {
		if mun.Name == name {
			return &mun, nil
		}
	}
	return nil, apperr.NotFound("municipality not found")
}

func (m *memStore) ListMunicipalities(_ context.Context, departmentID *uuid.UUID) ([]models.Municipality, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Municipality
	for _, mun := range m.municipalities {
		if departmentID == nil || mun.DepartmentID == *departmentID {
			out = append(out, mun)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) UpdateMunicipality(_ context.Context, mun *models.Municipality) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.municipalities[mun.ID]; !ok {
		return apperr.NotFound("municipality not found")
	}
	mun.UpdatedAt = time.Now()
	m.municipalities[mun.ID] = *mun
	return nil
}

func (m *memStore) DeleteMunicipality(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.municipalities, id)
	return nil
}

func (m *memStore) uniqueCard(c *models.Card) error {
	for _, other := range m.cards {
		if other.ID == c.ID {
			continue
		}
		if other.Email == c.Email {
			return apperr.Conflict("card with this email already exists")
		}
		if other.Contact == c.Contact {
			return apperr.Conflict("card with this contact already exists")
		}
	}
	return nil
}

func (m *memStore) CreateCard(_ context.Context, c *models.Card, qrURL func(uuid.UUID) string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.uniqueCard(c); err != nil {
		return err
	}
	var max int64
	for _, other := range m.cards {
		if other.Number > max {
			max = other.Number
		}
	}
	c.Number = max + 1
	c.ID, c.CreatedAt, c.UpdatedAt = uuid.New(), time.Now(), time.Now()
	url := qrURL(c.ID)
	c.QRCodeURL = &url
	m.cards[c.ID] = *c
	return nil
}

// putCard stores c as is, bypassing validation.
func (m *memStore) putCard(c models.Card) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cards[c.ID] = c
}

func (m *memStore) details(c models.Card) models.CardDetails {
	d := models.CardDetails{Card: c}
	if dept, ok := m.departments[c.DepartmentID]; ok {
		d.Department = &dept
	}
	if mun, ok := m.municipalities[c.MunicipalityID]; ok {
		d.Municipality = &mun
	}
	return d
}

func (m *memStore) FindCardByID(_ context.Context, id uuid.UUID) (*models.CardDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cards[id]
	if !ok {
		return nil, apperr.NotFound("card not found")
	}
	d := m.details(c)
	return &d, nil
}

func (m *memStore) ListCards(_ context.Context, f repository.CardFilter) ([]models.CardDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CardDetails
	for _, c := range m.cards {
		if f.Active != nil && c.IsActive != *f.Active {
			continue
		}
		if f.DepartmentID != nil && c.DepartmentID != *f.DepartmentID {
			continue
		}
		if f.MunicipalityID != nil && c.MunicipalityID != *f.MunicipalityID {
			continue
		}
		out = append(out, m.details(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *memStore) UpdateCard(_ context.Context, c *models.Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cards[c.ID]; !ok {
		return apperr.NotFound("card not found")
	}
	if err := m.uniqueCard(c); err != nil {
		return err
	}
	c.UpdatedAt = time.Now()
	m.cards[c.ID] = *c
	return nil
}

func (m *memStore) DeleteCard(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cards[id]; !ok {
		return apperr.NotFound("card not found")
	}
	delete(m.cards, id)
	return nil
}

func (m *memStore) CountCardsByDepartment(_ context.Context, id uuid.UUID) (int, error) {
	return m.countCards(func(c models.Card) bool { return c.DepartmentID == id }), nil
}

func (m *memStore) CountCardsByMunicipality(_ context.Context, id uuid.UUID) (int, error) {
	return m.countCards(func(c models.Card) bool { return c.MunicipalityID == id }), nil
}

func (m *memStore) countCards(match func(models.Card) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.cards {
		if match(c) {
			n++
		}
	}
	return n
}

const photoBase = "http://localhost:8080/static"

// memPhotos is an in-memory photo store readable by render.ImageLoader.
type memPhotos struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (p *memPhotos) Store(_ context.Context, key string, r io.Reader, _ string) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.objects[key] = b
	return photoBase + "/" + key, nil
}

func (p *memPhotos) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (p *memPhotos) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.objects, key)
	return nil
}

func (p *memPhotos) KeyFromURL(url string) (string, bool) {
	if !strings.HasPrefix(url, photoBase+"/") {
		return "", false
	}
	return strings.TrimPrefix(url, photoBase+"/"), true
}

func (p *memPhotos) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.objects)
}

type sentCard struct {
	To   string
	Card email.CardMail
}

type fakeMailer struct {
	mu       sync.Mutex
	fail     error
	cards    []sentCard
	resets   []string
	changed  []string
	digests  [][]email.PendingCard
	digestTo [][]string
}

func (f *fakeMailer) SendCard(_ context.Context, to string, card email.CardMail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.cards = append(f.cards, sentCard{To: to, Card: card})
	return nil
}

func (f *fakeMailer) SendPasswordReset(_ context.Context, _ string, link string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, link)
	return f.fail
}

func (f *fakeMailer) SendPasswordChanged(_ context.Context, to string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changed = append(f.changed, to)
	return f.fail
}

func (f *fakeMailer) SendPendingDigest(_ context.Context, to []string, cards []email.PendingCard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.digestTo = append(f.digestTo, to)
	f.digests = append(f.digests, cards)
	return nil
}

type fixture struct {
	svc    *Service
	store  *memStore
	photos *memPhotos
	mailer *fakeMailer
	admin  *models.User
	member *models.User
	dept   *models.Department
	mun    *models.Municipality
}

func testConfig() *config.Config {
	return &config.Config{
		AppName:           "Liberal",
		DomainURL:         "https://members.example.org",
		JWTSecret:         "test-secret",
		JWTAlgorithm:      "HS256",
		AccessTokenExpiry: time.Hour,
		ResetTokenExpiry:  15 * time.Minute,
		ProfileImageDir:   "profile_images",
		AllowedImageTypes: []string{"image/jpeg", "image/png"},
		MaxUploadBytes:    1 << 20,
		CardFont:          "Helvetica",
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := testConfig()
	store := newMemStore()
	photos := &memPhotos{objects: map[string][]byte{}}
	mailer := &fakeMailer{}
	renderer := render.NewRenderer(
		render.NewImageLoader(photos, logger),
		render.NewQREncoder(),
		filepath.Join(t.TempDir(), "missing-background.png"),
		cfg.CardFont,
		logger,
	)

	f := &fixture{
		svc:    NewService(store, renderer, mailer, photos, logger, cfg),
		store:  store,
		photos: photos,
		mailer: mailer,
		admin:  &models.User{Email: "admin@liberal.test", IsAdmin: true},
		member: &models.User{Email: "agent@liberal.test"},
		dept:   &models.Department{Name: "Wouri"},
		mun:    &models.Municipality{Name: "Douala 1er"},
	}
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, f.admin))
	require.NoError(t, store.CreateUser(ctx, f.member))
	require.NoError(t, store.CreateDepartment(ctx, f.dept))
	f.mun.DepartmentID = f.dept.ID
	require.NoError(t, store.CreateMunicipality(ctx, f.mun))
	return f
}

func pngPhoto(t *testing.T) *Photo {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(8, 8, color.NRGBA{R: 90, G: 60, B: 30, A: 255}), imaging.PNG))
	return &Photo{Filename: "photo.png", Content: &buf}
}

func (f *fixture) cardInput(i int) CreateCardInput {
	return CreateCardInput{
		FirstName:      fmt.Sprintf("Member%d", i),
		LastName:       "Doe",
		Contact:        fmt.Sprintf("6500000%02d", i),
		Email:          fmt.Sprintf("member%d@x.com", i),
		DepartmentID:   f.dept.ID,
		MunicipalityID: f.mun.ID,
	}
}
