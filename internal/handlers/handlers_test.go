package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/tasklist-backend/internal/database"
	"github.com/AnshRaj112/tasklist-backend/internal/handlers"
	"github.com/AnshRaj112/tasklist-backend/internal/models"
	"github.com/AnshRaj112/tasklist-backend/internal/routes"
	"github.com/AnshRaj112/tasklist-backend/internal/services"
)

type testApp struct {
	srv    *httptest.Server
	tasks  *services.TaskStore
	hub    *services.Hub
	layout database.Layout
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	layout, err := database.OpenLayout(t.TempDir())
	require.NoError(t, err)

	hub := services.NewHub(log, 0)
	tasks := services.NewTaskStore(layout, log,
		services.WithWriteDebounce(20*time.Millisecond),
		services.WithNotifier(hub),
	)
	identity, err := services.NewIdentityService(layout, tasks, log)
	require.NoError(t, err)
	sessions, err := services.NewSessionRegistry(layout, time.Hour, log)
	require.NoError(t, err)
	oauth := services.NewOAuthService(services.OAuthConfig{
		Microsoft: services.OAuthClientConfig{ClientID: "id", ClientSecret: "secret"},
	})

	h := handlers.New(handlers.Deps{
		Identity: identity,
		Sessions: sessions,
		Tasks:    tasks,
		Hub:      hub,
		OAuth:    oauth,
		Log:      log,
		Version:  "1.2.3",
	})

	r := chi.NewRouter()
	routes.SetupRoutes(r, h, routes.Options{Sessions: sessions})
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.CloseAll()
		srv.Close()
		_ = tasks.Close()
	})
	return &testApp{srv: srv, tasks: tasks, hub: hub, layout: layout}
}

func (a *testApp) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (a *testApp) login(t *testing.T, password string) handlers.LoginResponse {
	t.Helper()
	resp := a.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"password": password})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[handlers.LoginResponse](t, resp)
}

func TestEndToEndScenario(t *testing.T) {
	app := newTestApp(t)

	login := app.login(t, "p1")
	assert.True(t, login.IsNewOwner)
	assert.True(t, login.IsNewPassword)
	require.NotEmpty(t, login.Token)

	resp := app.do(t, http.MethodPost, "/api/todos", login.Token, map[string]string{"text": "buy milk"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[models.Task](t, resp)
	assert.Equal(t, int64(1), created.ID)
	assert.False(t, created.Done)

	resp = app.do(t, http.MethodPut, "/api/todos/1", login.Token, map[string]bool{"done": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[models.Task](t, resp).Done)

	resp = app.do(t, http.MethodPut, "/api/todos", login.Token, []map[string]any{{"id": 1, "text": "buy milk", "done": false}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Todos restored successfully", decode[handlers.MessageResponse](t, resp).Message)

	resp = app.do(t, http.MethodGet, "/api/todos", login.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "insertion", resp.Header.Get("X-Order-Mode"))
	tasks := decode[[]models.Task](t, resp)
	require.Len(t, tasks, 1)
	assert.Equal(t, "buy milk", tasks[0].Text)
	assert.False(t, tasks[0].Done)

	// Same password again is the same owner.
	again := app.login(t, "p1")
	assert.False(t, again.IsNewOwner)
	assert.Equal(t, "Login successful", again.Message)
	resp = app.do(t, http.MethodGet, "/api/todos", again.Token, nil)
	assert.Len(t, decode[[]models.Task](t, resp), 1)
}

func TestLoginValidation(t *testing.T) {
	app := newTestApp(t)

	resp := app.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[handlers.ErrorResponse](t, resp)
	assert.Equal(t, "validation", body.Kind)
	assert.False(t, body.Success)

	resp = app.do(t, http.MethodPost, "/api/auth/login", "", "not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoginSetsCookie(t *testing.T) {
	app := newTestApp(t)
	resp := app.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"password": "cookie"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var found *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "authToken" {
			found = c
		}
	}
	require.NotNil(t, found)
	assert.True(t, found.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, found.SameSite)
	assert.Equal(t, 3600, found.MaxAge)
}

func TestCheckAndLogout(t *testing.T) {
	app := newTestApp(t)

	resp := app.do(t, http.MethodGet, "/api/auth/check", "", nil)
	assert.False(t, decode[handlers.CheckResponse](t, resp).Authenticated)

	login := app.login(t, "p1")
	resp = app.do(t, http.MethodGet, "/api/auth/check", login.Token, nil)
	assert.True(t, decode[handlers.CheckResponse](t, resp).Authenticated)

	resp = app.do(t, http.MethodPost, "/api/auth/logout", login.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Logged out", decode[handlers.MessageResponse](t, resp).Message)

	resp = app.do(t, http.MethodGet, "/api/auth/check", login.Token, nil)
	assert.False(t, decode[handlers.CheckResponse](t, resp).Authenticated)

	// Logging out without a token is a no-op.
	resp = app.do(t, http.MethodPost, "/api/auth/logout", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTaskRoutesRequireSession(t *testing.T) {
	app := newTestApp(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/todos"},
		{http.MethodPost, "/api/todos"},
		{http.MethodPut, "/api/todos"},
		{http.MethodPut, "/api/todos/1"},
		{http.MethodDelete, "/api/todos/1"},
		{http.MethodPut, "/api/order"},
		{http.MethodPost, "/api/archive"},
	} {
		resp := app.do(t, tc.method, tc.path, "bogus", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, tc.method+" "+tc.path)
	}
}

func TestTaskErrors(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t, "p1").Token

	resp := app.do(t, http.MethodPost, "/api/todos", token, map[string]string{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "empty text", decode[handlers.ErrorResponse](t, resp).Message)

	resp = app.do(t, http.MethodPut, "/api/todos/42", token, map[string]bool{"done": true})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decode[handlers.ErrorResponse](t, resp).Kind)

	resp = app.do(t, http.MethodDelete, "/api/todos/abc", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = app.do(t, http.MethodPut, "/api/todos", token, map[string]string{"id": "1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "not a list", decode[handlers.ErrorResponse](t, resp).Message)
}

func TestUpdateIgnoresWrongTypes(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t, "p1").Token
	app.do(t, http.MethodPost, "/api/todos", token, map[string]string{"text": "a"})

	resp := app.do(t, http.MethodPut, "/api/todos/1", token, `{"done":"yes","favorite":true,"text":null}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	task := decode[models.Task](t, resp)
	assert.False(t, task.Done)
	assert.True(t, task.Favorite)
	assert.Equal(t, "a", task.Text)
}

func TestDeleteTaskAndIDReuse(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t, "p1").Token
	for _, text := range []string{"a", "b", "c"} {
		app.do(t, http.MethodPost, "/api/todos", token, map[string]string{"text": text})
	}

	resp := app.do(t, http.MethodDelete, "/api/todos/2", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "b", decode[models.Task](t, resp).Text)

	resp = app.do(t, http.MethodPost, "/api/todos", token, map[string]string{"text": "d"})
	assert.Equal(t, int64(4), decode[models.Task](t, resp).ID)
}

func TestOrderMode(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t, "p1").Token

	resp := app.do(t, http.MethodPut, "/api/order", token, map[string]string{"orderMode": "alphabetical"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.OrderAlphabetical, decode[handlers.OrderModeResponse](t, resp).OrderMode)

	resp = app.do(t, http.MethodGet, "/api/todos", token, nil)
	assert.Equal(t, "alphabetical", resp.Header.Get("X-Order-Mode"))
	assert.Equal(t, "alpha", resp.Header.Get("X-Sort-Mode"))

	resp = app.do(t, http.MethodPut, "/api/sort", token, map[string]string{"sortMode": "default"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.OrderInsertion, decode[handlers.OrderModeResponse](t, resp).OrderMode)

	resp = app.do(t, http.MethodPut, "/api/order", token, map[string]string{"orderMode": "random"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListTasksETag(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t, "p1").Token
	app.do(t, http.MethodPost, "/api/todos", token, map[string]string{"text": "a"})

	resp := app.do(t, http.MethodGet, "/api/todos", token, nil)
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	req, err := http.NewRequest(http.MethodGet, app.srv.URL+"/api/todos", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("If-None-Match", etag)
	notModified, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	notModified.Body.Close()
	assert.Equal(t, http.StatusNotModified, notModified.StatusCode)

	app.do(t, http.MethodPut, "/api/todos/1", token, map[string]bool{"done": true})
	resp = app.do(t, http.MethodGet, "/api/todos", token, nil)
	assert.NotEqual(t, etag, resp.Header.Get("ETag"))
}

func TestArchive(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t, "p1").Token
	app.do(t, http.MethodPost, "/api/todos", token, map[string]string{"text": "old"})

	resp := app.do(t, http.MethodPost, "/api/archive", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[handlers.ArchiveResponse](t, resp)
	assert.True(t, body.Success)
	assert.True(t, strings.HasPrefix(body.ArchivedFile, "todos_"+services.DeriveOwnerKey("p1")+"_"))

	resp = app.do(t, http.MethodGet, "/api/todos", token, nil)
	assert.Empty(t, decode[[]models.Task](t, resp))

	resp = app.do(t, http.MethodPost, "/api/archive", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestVersion(t *testing.T) {
	app := newTestApp(t)
	resp := app.do(t, http.MethodGet, "/api/version", "", nil)
	assert.Equal(t, map[string]string{"version": "1.2.3"}, decode[map[string]string](t, resp))
}

func TestOAuthRoutes(t *testing.T) {
	app := newTestApp(t)

	resp := app.do(t, http.MethodGet, "/api/auth/oauth/providers", "", nil)
	assert.Equal(t, handlers.ProvidersResponse{Google: false, Microsoft: true}, decode[handlers.ProvidersResponse](t, resp))

	resp = app.do(t, http.MethodGet, "/api/auth/oauth/google", "", nil)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	resp = app.do(t, http.MethodGet, "/api/auth/oauth/github", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = app.do(t, http.MethodGet, "/api/auth/oauth/microsoft", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, decode[handlers.AuthURLResponse](t, resp).AuthURL, "state=")

	resp = app.do(t, http.MethodGet, "/api/auth/oauth/callback?state=forged&code=x", "", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/?error=oauth_invalid_state", resp.Header.Get("Location"))

	resp = app.do(t, http.MethodGet, "/api/auth/oauth/callback?error=access_denied", "", nil)
	assert.Equal(t, "/?error=oauth_failed", resp.Header.Get("Location"))
}

func dialWS(t *testing.T, app *testApp, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(app.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.WriteJSON(handlers.ClientMessage{Type: "auth", Token: token}))
	var ack handlers.ControlMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, "auth_ok", ack.Type)
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) []models.Task {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var tasks []models.Task
	require.NoError(t, conn.ReadJSON(&tasks))
	return tasks
}

func TestWebSocketFanOutIsolation(t *testing.T) {
	app := newTestApp(t)
	tokenA := app.login(t, "alice").Token
	tokenB := app.login(t, "bob").Token

	connA := dialWS(t, app, tokenA)
	connA2 := dialWS(t, app, tokenA)
	connB := dialWS(t, app, tokenB)

	app.do(t, http.MethodPost, "/api/todos", tokenA, map[string]string{"text": "for alice"})
	app.do(t, http.MethodPost, "/api/todos", tokenB, map[string]string{"text": "for bob"})

	for _, conn := range []*websocket.Conn{connA, connA2} {
		tasks := readSnapshot(t, conn)
		require.Len(t, tasks, 1)
		assert.Equal(t, "for alice", tasks[0].Text)
	}

	// B's first frame is its own snapshot; A's never reached it.
	tasks := readSnapshot(t, connB)
	require.Len(t, tasks, 1)
	assert.Equal(t, "for bob", tasks[0].Text)
}

func TestWebSocketOrdering(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t, "p1").Token
	conn := dialWS(t, app, token)

	for i := 0; i < 5; i++ {
		app.do(t, http.MethodPost, "/api/todos", token, map[string]string{"text": "t"})
	}
	for i := 1; i <= 5; i++ {
		assert.Len(t, readSnapshot(t, conn), i)
	}
}

func TestWebSocketBadToken(t *testing.T) {
	app := newTestApp(t)
	url := "ws" + strings.TrimPrefix(app.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(handlers.ClientMessage{Type: "auth", Token: "nope"}))
	var msg handlers.ControlMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "auth_error", msg.Type)
}
