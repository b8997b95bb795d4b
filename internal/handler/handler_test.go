package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/agiannakidis/insightflow/internal/clickhouse"
	"github.com/agiannakidis/insightflow/internal/model"
	"github.com/agiannakidis/insightflow/internal/service"
	"github.com/agiannakidis/insightflow/internal/store"
)

const testPassword = "supersecretpassword"

// fakeExecutor records the last SQL it was asked to run and returns a canned
// result.
type fakeExecutor struct {
	lastSQL string
	result  *clickhouse.Result
	err     error
}

func (f *fakeExecutor) Query(ctx context.Context, sql string) (*clickhouse.Result, error) {
	f.lastSQL = sql
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &clickhouse.Result{Data: []map[string]interface{}{}, QueryDurationMs: 1}, nil
}

func (f *fakeExecutor) Ping(ctx context.Context) (*clickhouse.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &clickhouse.Result{Data: []map[string]interface{}{{"ok": float64(1)}}, Rows: 1}, nil
}

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	store    *store.Store
	authSvc  *service.AuthService
	executor *fakeExecutor
	router   chi.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("store.NewStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	authSvc := service.NewAuthService(st, st, service.DefaultPolicy())
	executor := &fakeExecutor{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := chi.NewRouter()
	r.Post("/api/auth", NewAuthHandler(authSvc).Handle)
	r.Post("/api/admin", NewAdminHandler(st, authSvc, logger).Handle)
	r.Post("/api/views", NewViewsHandler(st, authSvc).Handle)
	r.Post("/api/query", NewQueryHandler(authSvc, executor, logger).Handle)

	return &testEnv{store: st, authSvc: authSvc, executor: executor, router: r}
}

// seedUser creates an active account with the shared test password.
func (e *testEnv) seedUser(t *testing.T, username, role string) *model.User {
	t.Helper()
	hash, err := service.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	u := &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := e.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("seedUser: %v", err)
	}
	return u
}

// login authenticates and returns the bearer token.
func (e *testEnv) login(t *testing.T, username string) string {
	t.Helper()
	rr := e.post(t, "/api/auth", map[string]interface{}{
		"action": "login", "username": username, "password": testPassword,
	})
	assertStatus(t, rr, 200)
	var resp struct {
		Token string `json:"token"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Token == "" {
		t.Fatal("login returned empty token")
	}
	return resp.Token
}

func (e *testEnv) post(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		t.Fatalf("encode body: %v", err)
	}
	req := httptest.NewRequest("POST", path, buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Auth endpoint
// ---------------------------------------------------------------------------

func TestSetupThenLogin(t *testing.T) {
	env := newTestEnv(t)

	rr := env.post(t, "/api/auth", map[string]interface{}{
		"action": "setup", "username": "root", "password": testPassword,
	})
	assertStatus(t, rr, 200)

	// Setup is one-shot.
	rr = env.post(t, "/api/auth", map[string]interface{}{
		"action": "setup", "username": "root2", "password": testPassword,
	})
	assertStatus(t, rr, 403)

	token := env.login(t, "root")

	rr = env.post(t, "/api/auth", map[string]interface{}{"action": "validate", "token": token})
	assertStatus(t, rr, 200)
	var resp struct {
		Valid bool `json:"valid"`
		User  struct {
			Role string `json:"role"`
		} `json:"user"`
	}
	decodeJSON(t, rr, &resp)
	if !resp.Valid || resp.User.Role != model.RoleAdmin {
		t.Errorf("validate = %+v", resp)
	}
}

func TestLoginFailures(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", model.RoleViewer)

	rr := env.post(t, "/api/auth", map[string]interface{}{
		"action": "login", "username": "alice", "password": "wrong",
	})
	assertStatus(t, rr, 401)

	rr = env.post(t, "/api/auth", map[string]interface{}{"action": "login", "username": "alice"})
	assertStatus(t, rr, 400)

	rr = env.post(t, "/api/auth", map[string]interface{}{"action": "reboot"})
	assertStatus(t, rr, 400)
}

func TestLoginLockoutStatus(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", model.RoleViewer)

	for i := 0; i < 5; i++ {
		rr := env.post(t, "/api/auth", map[string]interface{}{
			"action": "login", "username": "alice", "password": "wrong",
		})
		assertStatus(t, rr, 401)
	}

	rr := env.post(t, "/api/auth", map[string]interface{}{
		"action": "login", "username": "alice", "password": testPassword,
	})
	assertStatus(t, rr, 429)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", model.RoleViewer)
	token := env.login(t, "alice")

	rr := env.post(t, "/api/auth", map[string]interface{}{"action": "logout", "token": token})
	assertStatus(t, rr, 200)

	rr = env.post(t, "/api/auth", map[string]interface{}{"action": "validate", "token": token})
	assertStatus(t, rr, 200)
	var resp struct {
		Valid bool `json:"valid"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Valid {
		t.Error("token should be invalid after logout")
	}
}

// ---------------------------------------------------------------------------
// Admin endpoint
// ---------------------------------------------------------------------------

func TestAdminRequiresAdminRole(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "admin", model.RoleAdmin)
	env.seedUser(t, "viewer", model.RoleViewer)

	rr := env.post(t, "/api/admin", map[string]interface{}{"action": "listUsers"})
	assertStatus(t, rr, 401)

	viewerToken := env.login(t, "viewer")
	rr = env.post(t, "/api/admin", map[string]interface{}{"action": "listUsers", "token": viewerToken})
	assertStatus(t, rr, 403)

	adminToken := env.login(t, "admin")
	rr = env.post(t, "/api/admin", map[string]interface{}{"action": "listUsers", "token": adminToken})
	assertStatus(t, rr, 200)
}

func TestAdminCreateUserAndAudit(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "admin", model.RoleAdmin)
	token := env.login(t, "admin")

	rr := env.post(t, "/api/admin", map[string]interface{}{
		"action": "createUser", "token": token,
		"username": "carol", "password": testPassword, "role": model.RoleViewer,
	})
	assertStatus(t, rr, 200)

	// New account can log in right away.
	env.login(t, "carol")

	rr = env.post(t, "/api/admin", map[string]interface{}{"action": "listAuditLog", "token": token})
	assertStatus(t, rr, 200)
	var resp struct {
		Logs []model.AuditLog `json:"logs"`
	}
	decodeJSON(t, rr, &resp)
	if len(resp.Logs) != 1 || resp.Logs[0].Action != model.AuditCreateUser {
		t.Errorf("audit log = %+v", resp.Logs)
	}
}

func TestAdminCreateUserRejectsBadRole(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "admin", model.RoleAdmin)
	token := env.login(t, "admin")

	rr := env.post(t, "/api/admin", map[string]interface{}{
		"action": "createUser", "token": token,
		"username": "carol", "password": testPassword, "role": "superuser",
	})
	assertStatus(t, rr, 400)
}

func TestAdminDisableUserRevokesSessions(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "admin", model.RoleAdmin)
	victim := env.seedUser(t, "victim", model.RoleViewer)

	victimToken := env.login(t, "victim")
	adminToken := env.login(t, "admin")

	rr := env.post(t, "/api/admin", map[string]interface{}{
		"action": "disableUser", "token": adminToken, "userId": victim.ID,
	})
	assertStatus(t, rr, 200)

	// The victim's live session stops working immediately.
	rr = env.post(t, "/api/auth", map[string]interface{}{"action": "validate", "token": victimToken})
	var resp struct {
		Valid bool `json:"valid"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Valid {
		t.Error("disabled user's session should be revoked")
	}

	// And new logins are rejected.
	rr = env.post(t, "/api/auth", map[string]interface{}{
		"action": "login", "username": "victim", "password": testPassword,
	})
	assertStatus(t, rr, 401)

	// Re-enabling restores login.
	rr = env.post(t, "/api/admin", map[string]interface{}{
		"action": "enableUser", "token": adminToken, "userId": victim.ID,
	})
	assertStatus(t, rr, 200)
	env.login(t, "victim")
}

func TestAdminResetPasswordUnlocks(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "admin", model.RoleAdmin)
	target := env.seedUser(t, "alice", model.RoleViewer)

	for i := 0; i < 5; i++ {
		env.post(t, "/api/auth", map[string]interface{}{
			"action": "login", "username": "alice", "password": "wrong",
		})
	}

	adminToken := env.login(t, "admin")
	rr := env.post(t, "/api/admin", map[string]interface{}{
		"action": "resetPassword", "token": adminToken,
		"userId": target.ID, "newPassword": "freshpassword123",
	})
	assertStatus(t, rr, 200)

	rr = env.post(t, "/api/auth", map[string]interface{}{
		"action": "login", "username": "alice", "password": "freshpassword123",
	})
	assertStatus(t, rr, 200)
}

func TestAdminChangeRole(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "admin", model.RoleAdmin)
	target := env.seedUser(t, "alice", model.RoleViewer)
	token := env.login(t, "admin")

	rr := env.post(t, "/api/admin", map[string]interface{}{
		"action": "changeRole", "token": token, "userId": target.ID, "newRole": model.RoleAdmin,
	})
	assertStatus(t, rr, 200)

	got, err := env.store.GetUser(context.Background(), target.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Role != model.RoleAdmin {
		t.Errorf("role = %q", got.Role)
	}

	rr = env.post(t, "/api/admin", map[string]interface{}{
		"action": "changeRole", "token": token, "userId": target.ID, "newRole": "root",
	})
	assertStatus(t, rr, 400)
}

// ---------------------------------------------------------------------------
// Views endpoint
// ---------------------------------------------------------------------------

func TestViewsLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", model.RoleViewer)
	env.seedUser(t, "bob", model.RoleViewer)
	aliceToken := env.login(t, "alice")
	bobToken := env.login(t, "bob")

	rr := env.post(t, "/api/views", map[string]interface{}{
		"action": "create", "token": aliceToken,
		"name": "errors today", "page": "logs", "filters": `{"level":["error"]}`, "is_public": true,
	})
	assertStatus(t, rr, 200)
	var created struct {
		View model.SavedView `json:"view"`
	}
	decodeJSON(t, rr, &created)

	// Public views are visible to others, but not deletable by them.
	rr = env.post(t, "/api/views", map[string]interface{}{"action": "list", "token": bobToken})
	assertStatus(t, rr, 200)
	var listed struct {
		Views []model.SavedView `json:"views"`
	}
	decodeJSON(t, rr, &listed)
	if len(listed.Views) != 1 {
		t.Fatalf("bob sees %d views", len(listed.Views))
	}

	rr = env.post(t, "/api/views", map[string]interface{}{
		"action": "delete", "token": bobToken, "viewId": created.View.ID,
	})
	assertStatus(t, rr, 404)

	rr = env.post(t, "/api/views", map[string]interface{}{
		"action": "delete", "token": aliceToken, "viewId": created.View.ID,
	})
	assertStatus(t, rr, 200)
}

func TestViewsRequireAuth(t *testing.T) {
	env := newTestEnv(t)
	rr := env.post(t, "/api/views", map[string]interface{}{"action": "list"})
	assertStatus(t, rr, 401)
}

// ---------------------------------------------------------------------------
// Query endpoint
// ---------------------------------------------------------------------------

func TestQueryRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	rr := env.post(t, "/api/query", map[string]interface{}{
		"type": "logsList", "params": map[string]interface{}{"from": "2026-08-01T00:00:00Z", "to": "2026-08-02T00:00:00Z"},
	})
	assertStatus(t, rr, 401)
}

func TestQueryPingSkipsAuth(t *testing.T) {
	env := newTestEnv(t)
	rr := env.post(t, "/api/query", map[string]interface{}{"type": "ping"})
	assertStatus(t, rr, 200)
	var resp struct {
		OK bool `json:"ok"`
	}
	decodeJSON(t, rr, &resp)
	if !resp.OK {
		t.Errorf("ping response = %s", rr.Body.String())
	}
}

func TestQueryLogsList(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", model.RoleViewer)
	token := env.login(t, "alice")

	env.executor.result = &clickhouse.Result{
		Data:                   []map[string]interface{}{{"ts": "2026-08-01 10:00:00.000", "service": "api"}},
		Rows:                   1,
		RowsBeforeLimitAtLeast: 40,
		QueryDurationMs:        12,
	}

	rr := env.post(t, "/api/query", map[string]interface{}{
		"type": "logsList", "token": token,
		"params": map[string]interface{}{
			"from": "2026-08-01T00:00:00Z", "to": "2026-08-02T00:00:00Z",
			"service": []string{"api"}, "limit": 25,
		},
	})
	assertStatus(t, rr, 200)

	var resp model.QueryResponse
	decodeJSON(t, rr, &resp)
	if resp.Rows != 1 || resp.RowsBeforeLimitAtLeast != 40 {
		t.Errorf("envelope = %+v", resp)
	}
	if resp.SQL == "" || resp.SQL != env.executor.lastSQL {
		t.Errorf("response must echo executed SQL; got %q, ran %q", resp.SQL, env.executor.lastSQL)
	}
}

func TestQueryUnknownKind(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", model.RoleViewer)
	token := env.login(t, "alice")

	rr := env.post(t, "/api/query", map[string]interface{}{"type": "dropAllTables", "token": token})
	assertStatus(t, rr, 400)
}

func TestQueryUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", model.RoleViewer)
	token := env.login(t, "alice")

	env.executor.err = clickhouse.ErrUpstream
	rr := env.post(t, "/api/query", map[string]interface{}{
		"type": "logsCount", "token": token,
		"params": map[string]interface{}{"from": "2026-08-01T00:00:00Z", "to": "2026-08-02T00:00:00Z"},
	})
	assertStatus(t, rr, 502)
}

func TestQueryTraceDetailValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", model.RoleViewer)
	token := env.login(t, "alice")

	rr := env.post(t, "/api/query", map[string]interface{}{
		"type": "traceDetail", "token": token, "params": map[string]interface{}{},
	})
	assertStatus(t, rr, 400)
}
