package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"geargrid/adapters/database"
	"geargrid/listing"
	"geargrid/models"
)

const testPublicBase = "https://cdn.geargrid.test/"

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func init() {
	gin.SetMode(gin.TestMode)
}

type memoryObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	removed []string
}

func (s *memoryObjectStore) Upload(_ context.Context, key, _ string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *memoryObjectStore) PublicURL(_ context.Context, key string) (string, error) {
	return testPublicBase + key, nil
}

func (s *memoryObjectStore) ExtractKey(rawURL string) (string, bool) {
	key, found := strings.CutPrefix(rawURL, testPublicBase)
	return key, found && key != ""
}

func (s *memoryObjectStore) Remove(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.objects, key)
		s.removed = append(s.removed, key)
	}
	return nil
}

type memorySessionStore struct {
	mu   sync.Mutex
	data map[string]map[string]string
}

func (s *memorySessionStore) Load(_ context.Context, name string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.data[name]))
	for k, v := range s.data[name] {
		out[k] = v
	}
	return out, nil
}

func (s *memorySessionStore) Save(_ context.Context, name string, data map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(map[string]string, len(data))
	for k, v := range data {
		copied[k] = v
	}
	s.data[name] = copied
	return nil
}

type stubGenerator struct {
	text string
	err  error
}

func (g stubGenerator) GenerateFromImage(context.Context, listing.Image, string) (string, error) {
	return g.text, g.err
}

type testServer struct {
	impl     *ServerImpl
	router   *gin.Engine
	repo     *database.Repository
	store    *memoryObjectStore
	sessions *memorySessionStore

	admin      *models.User
	user       *models.User
	adminToken string
	userToken  string
}

type testOption func(*ServerConfig, *components)

func withGenerator(generator listing.Generator) testOption {
	return func(_ *ServerConfig, deps *components) {
		deps.generator = generator
	}
}

func newTestServer(t *testing.T, opts ...testOption) *testServer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	repo := database.NewRepository(db)
	tokens, err := NewTokenIssuer("test-secret", "geargrid-test", time.Hour)
	require.NoError(t, err)

	ts := &testServer{
		repo:     repo,
		store:    &memoryObjectStore{objects: make(map[string][]byte)},
		sessions: &memorySessionStore{data: make(map[string]map[string]string)},
	}
	config := ServerConfig{Auth: AuthConfig{AdminEmails: []string{"admin@geargrid.test"}}}
	deps := components{
		users:    repo,
		cars:     repo,
		bookings: repo,
		store:    ts.store,
		sessions: ts.sessions,
		tokens:   tokens,
	}
	for _, opt := range opts {
		opt(&config, &deps)
	}
	ts.impl = newServerImpl(config, deps, discardLogger)
	ts.impl.db = db
	ts.router = gin.New()
	ts.impl.RegisterHandlers(ts.router)

	ts.admin, ts.adminToken = ts.signIn(t, "admin-sub", "Admin", models.RoleAdmin)
	ts.user, ts.userToken = ts.signIn(t, "user-sub", "User", models.RoleUser)
	return ts
}

func (ts *testServer) signIn(t *testing.T, subject, name string, role models.Role) (*models.User, string) {
	t.Helper()
	user, err := ts.repo.UpsertUser(context.Background(), &models.User{Subject: subject, Name: name, Role: role})
	require.NoError(t, err)
	token, err := ts.impl.tokens.Issue(user)
	require.NoError(t, err)
	return user, token
}

func (ts *testServer) seedCar(t *testing.T, brand, model string) *models.Car {
	t.Helper()
	car := &models.Car{
		ID:           uuid.New(),
		Make:         brand,
		Model:        model,
		Year:         2021,
		Price:        21000,
		Mileage:      "15 km/L",
		Color:        "Silver",
		FuelType:     "Petrol",
		Transmission: "Automatic",
		BodyType:     "Sedan",
		Status:       models.CarStatusAvailable,
		Images:       []string{testPublicBase + "cars/" + brand + "/1.png"},
	}
	require.NoError(t, ts.repo.CreateCar(context.Background(), car))
	return car
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (ts *testServer) do(t *testing.T, req *http.Request, token string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	ts.router.ServeHTTP(recorder, req)
	var body response
	if strings.HasPrefix(recorder.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	}
	return recorder, body
}

func (ts *testServer) doJSON(t *testing.T, method, path string, payload any, token string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	return ts.do(t, req, token)
}

func pngDataURL(payload string) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte(payload))
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}
