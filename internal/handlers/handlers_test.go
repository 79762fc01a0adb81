package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yukikurage/family-task-sync/internal/constants"
	"github.com/yukikurage/family-task-sync/internal/database"
	"github.com/yukikurage/family-task-sync/internal/models"
	"github.com/yukikurage/family-task-sync/internal/outbox"
	"github.com/yukikurage/family-task-sync/internal/remote"
	"github.com/yukikurage/family-task-sync/internal/repository"
	"github.com/yukikurage/family-task-sync/internal/services"
	"github.com/yukikurage/family-task-sync/internal/syncengine"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// apiTestEnv is the full API over an in-memory database and remote store.
type apiTestEnv struct {
	t        *testing.T
	db       *gorm.DB
	store    *remote.MemoryStore
	engine   *syncengine.Engine
	outbox   *outbox.Outbox
	services Services
	router   *gin.Engine
}

type testClient struct {
	env      *apiTestEnv
	userID   string
	cookies  []*http.Cookie
	familyID string
}

func setupAPITestEnv(t *testing.T) *apiTestEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() {
		sqlDB.Close()
	})

	store := remote.NewMemoryStore()
	offline := repository.NewOfflineRepository(db)
	box := outbox.New(repository.NewOutboxRepository(db), 3)
	engine := syncengine.New(syncengine.Config{
		Outbox:      box,
		Store:       store,
		Offline:     offline,
		StartOnline: true,
	})
	router := repository.NewRouter(store, box, engine)

	familyRepo := repository.NewFamilyRepository(db)
	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(router, offline)
	history := services.NewHistoryService(repository.NewHistoryRepository(db), router, 30)
	approvals := services.NewApprovalService(
		repository.NewApprovalRepository(router, offline),
		taskRepo, familyRepo, history, services.NewRemoteNotifier(router),
	)

	svc := Services{
		Auth:      services.NewAuthService(userRepo),
		Families:  services.NewFamilyService(familyRepo, userRepo),
		Tasks:     services.NewTaskService(taskRepo, offline, router, familyRepo, approvals, history),
		Approvals: approvals,
		History:   history,
		Engine:    engine,
		Outbox:    box,
	}

	r := gin.New()
	r.Use(sessions.Sessions(constants.SessionCookieName, cookie.NewStore([]byte("secret"))))
	RegisterRoutes(r, svc)

	return &apiTestEnv{
		t:        t,
		db:       db,
		store:    store,
		engine:   engine,
		outbox:   box,
		services: svc,
		router:   r,
	}
}

// signup registers username and logs it in.
func (env *apiTestEnv) signup(username string) *testClient {
	env.t.Helper()

	anon := &testClient{env: env}
	w := anon.do(http.MethodPost, "/api/auth/signup", map[string]string{
		"username": username,
		"password": "supersecret",
	})
	require.Equal(env.t, http.StatusCreated, w.Code, w.Body.String())

	w = anon.do(http.MethodPost, "/api/auth/login", map[string]string{
		"username": username,
		"password": "supersecret",
	})
	require.Equal(env.t, http.StatusOK, w.Code, w.Body.String())

	var user struct {
		ID string `json:"id"`
	}
	require.NoError(env.t, json.Unmarshal(w.Body.Bytes(), &user))
	return &testClient{env: env, userID: user.ID, cookies: w.Result().Cookies()}
}

// family has admin create a family and every other client join it.
func (env *apiTestEnv) family(admin *testClient, members ...*testClient) string {
	env.t.Helper()

	w := admin.do(http.MethodPost, "/api/families", map[string]string{"name": "Home"})
	require.Equal(env.t, http.StatusCreated, w.Code, w.Body.String())
	var family struct {
		ID         string `json:"id"`
		InviteCode string `json:"invite_code"`
	}
	require.NoError(env.t, json.Unmarshal(w.Body.Bytes(), &family))
	admin.familyID = family.ID

	for _, m := range members {
		w := m.do(http.MethodPost, "/api/families/join", map[string]string{"invite_code": family.InviteCode})
		require.Equal(env.t, http.StatusOK, w.Code, w.Body.String())
		m.familyID = family.ID
	}
	return family.ID
}

func (c *testClient) do(method, path string, body any) *httptest.ResponseRecorder {
	return c.doContext(context.Background(), method, path, body)
}

func (c *testClient) doContext(ctx context.Context, method, path string, body any) *httptest.ResponseRecorder {
	c.env.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(c.env.t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader).WithContext(ctx)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.familyID != "" {
		req.Header.Set(constants.HeaderFamilyID, c.familyID)
	}
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}

	w := httptest.NewRecorder()
	c.env.router.ServeHTTP(w, req)
	return w
}

func (c *testClient) createTask(body map[string]any) models.Task {
	c.env.t.Helper()

	if _, ok := body["date"]; !ok {
		body["date"] = "2024-03-10"
	}
	w := c.do(http.MethodPost, "/api/tasks", body)
	require.Equal(c.env.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Task](c.env.t, w)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &value), w.Body.String())
	return value
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body.Code
}

// streamFor serves one request until timeout and returns what was written.
func streamFor(c *testClient, path string, timeout time.Duration) *httptest.ResponseRecorder {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.doContext(ctx, http.MethodGet, path, nil)
}
