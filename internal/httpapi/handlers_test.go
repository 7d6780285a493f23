package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"

	"opsfloww.io/internal/auth"
	"opsfloww.io/internal/config"
	"opsfloww.io/internal/revocation"
	"opsfloww.io/internal/store/memory"
	"opsfloww.io/internal/work"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
	store   *memory.Store
	clock   *testClock
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestAPI(t *testing.T, mutate ...func(*config.Config)) *apiClient {
	t.Helper()
	reg := revocation.NewRegistry(revocation.NewMemoryStore(), revocation.BackendMemory, quietLogger())
	return newTestAPIWithRegistry(t, reg, mutate...)
}

func newTestAPIWithRegistry(t *testing.T, reg *revocation.Registry, mutate ...func(*config.Config)) *apiClient {
	t.Helper()

	cfg := config.Defaults()
	cfg.RateLimitBurst = 1000
	cfg.RateLimitPerSec = 1000
	for _, m := range mutate {
		m(&cfg)
	}

	clock := &testClock{now: time.Now().UTC()}
	store := memory.New()
	creds := auth.NewCredentialStore(store, auth.Policy{BcryptCost: 4}, clock.Now)
	issuer, err := auth.NewIssuer("test-secret", auth.WithIssuerClock(clock.Now))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close() })

	svc, err := auth.NewService(creds, issuer, reg, auth.WithTeamDirectory(store), auth.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	api := New(Deps{
		Config:            cfg,
		Auth:              svc,
		Work:              store,
		Resources:         work.Loader{Store: store, Users: store},
		RevocationBackend: reg.Backend,
		Version:           "test",
	})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{baseURL: srv.URL, client: srv.Client(), t: t, store: store, clock: clock}
}

type apiResponse struct {
	code   int
	header http.Header
	body   map[string]any
}

func (r apiResponse) data() map[string]any {
	d, _ := r.body["data"].(map[string]any)
	return d
}

func (c *apiClient) do(method, path, token string, body any, headers ...map[string]string) apiResponse {
	c.t.Helper()
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.baseURL+path, payload)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, h := range headers {
		for k, v := range h {
			req.Header.Set(k, v)
		}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	out := apiResponse{code: resp.StatusCode, header: resp.Header}
	raw, _ := io.ReadAll(resp.Body)
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &out.body); err != nil {
			c.t.Fatalf("decode %s %s: %v (%s)", method, path, err, raw)
		}
	}
	return out
}

type account struct {
	id      string
	access  string
	refresh string
}

func (c *apiClient) signup(email, role string) account {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/api/v1/auth/signup", "", map[string]any{
		"name":            "Test User",
		"email":           email,
		"password":        "Password123",
		"passwordConfirm": "Password123",
		"role":            role,
	})
	if resp.code != http.StatusCreated {
		c.t.Fatalf("signup %s: %d %v", email, resp.code, resp.body)
	}
	d := resp.data()
	user, _ := d["user"].(map[string]any)
	return account{
		id:      user["id"].(string),
		access:  d["accessToken"].(string),
		refresh: d["refreshToken"].(string),
	}
}

func TestSignupReturnsTokensWithoutSecrets(t *testing.T) {
	c := newTestAPI(t)
	resp := c.do(http.MethodPost, "/api/v1/auth/signup", "", map[string]any{
		"name":            "Alice",
		"email":           "alice@example.com",
		"password":        "Password123",
		"passwordConfirm": "Password123",
	})
	if resp.code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %v", resp.code, resp.body)
	}
	if resp.body["status"] != "success" {
		t.Fatalf("unexpected envelope: %v", resp.body)
	}
	d := resp.data()
	if d["accessToken"] == "" || d["refreshToken"] == "" {
		t.Fatalf("expected tokens: %v", d)
	}
	user := d["user"].(map[string]any)
	if _, leaked := user["password"]; leaked {
		t.Fatal("password digest must not be serialised")
	}
	if user["role"] != "user" {
		t.Fatalf("default role should be user, got %v", user["role"])
	}
	if resp.header.Get("Set-Cookie") != "" {
		t.Fatal("cookie must only be set in production")
	}
}

func TestSignupPasswordMismatch(t *testing.T) {
	c := newTestAPI(t)
	resp := c.do(http.MethodPost, "/api/v1/auth/signup", "", map[string]any{
		"name":            "Bob",
		"email":           "bob@example.com",
		"password":        "Password123",
		"passwordConfirm": "Password124",
	})
	if resp.code != http.StatusBadRequest || resp.body["status"] != "fail" {
		t.Fatalf("expected 400 fail, got %d %v", resp.code, resp.body)
	}
	if _, err := c.store.FindByEmail(context.Background(), "bob@example.com"); err == nil {
		t.Fatal("no user should be created")
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	c := newTestAPI(t)
	c.signup("dup@example.com", "")
	resp := c.do(http.MethodPost, "/api/v1/auth/signup", "", map[string]any{
		"name": "Dup", "email": "DUP@example.com", "password": "Password123", "passwordConfirm": "Password123",
	})
	if resp.code != http.StatusBadRequest || !strings.Contains(resp.body["error"].(string), "already registered") {
		t.Fatalf("expected duplicate email 400, got %d %v", resp.code, resp.body)
	}
}

func TestSigninLockoutOnSixthAttempt(t *testing.T) {
	c := newTestAPI(t)
	c.signup("carol@example.com", "")
	bad := map[string]any{"email": "carol@example.com", "password": "WrongPass1"}
	for i := 0; i < 5; i++ {
		resp := c.do(http.MethodPost, "/api/v1/auth/signin", "", bad)
		if resp.code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, resp.code)
		}
	}
	resp := c.do(http.MethodPost, "/api/v1/auth/signin", "", map[string]any{
		"email": "carol@example.com", "password": "Password123",
	})
	if resp.code != http.StatusUnauthorized {
		t.Fatalf("locked account must reject correct password, got %d", resp.code)
	}
	msg, _ := resp.body["error"].(string)
	if !strings.Contains(msg, "15 minutes") {
		t.Fatalf("lock message should report remaining minutes, got %q", msg)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	c := newTestAPI(t)
	acct := c.signup("dave@example.com", "")

	if resp := c.do(http.MethodGet, "/api/v1/auth/me", acct.access, nil); resp.code != http.StatusOK {
		t.Fatalf("me before logout: %d %v", resp.code, resp.body)
	}
	if resp := c.do(http.MethodPost, "/api/v1/auth/logout", acct.access, nil); resp.code != http.StatusOK {
		t.Fatalf("logout: %d %v", resp.code, resp.body)
	}
	resp := c.do(http.MethodGet, "/api/v1/auth/me", acct.access, nil)
	if resp.code != http.StatusUnauthorized {
		t.Fatalf("revoked token must be rejected, got %d", resp.code)
	}
	if resp.header.Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate header")
	}
}

func TestLogoutDuringRedisOutage(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()
	host, portStr, _ := net.SplitHostPort(mr.Addr())
	port, _ := strconv.Atoi(portStr)
	reg := revocation.Open(context.Background(), revocation.Options{
		Host: host, Port: port, ConnectTimeout: time.Second,
	}, quietLogger())
	if reg.Backend() != revocation.BackendRedis {
		t.Fatalf("expected redis backend, got %s", reg.Backend())
	}

	c := newTestAPIWithRegistry(t, reg)
	acct := c.signup("outage@example.com", "")
	mr.Close()

	if resp := c.do(http.MethodPost, "/api/v1/auth/logout", acct.access, nil); resp.code != http.StatusOK {
		t.Fatalf("logout while redis is down: %d %v", resp.code, resp.body)
	}
	if resp := c.do(http.MethodGet, "/api/v1/auth/me", acct.access, nil); resp.code != http.StatusUnauthorized {
		t.Fatalf("token must stay revoked after logout, got %d", resp.code)
	}
}

func TestProtectedRouteWithoutToken(t *testing.T) {
	c := newTestAPI(t)
	resp := c.do(http.MethodGet, "/api/v1/auth/me", "", nil)
	if resp.code != http.StatusUnauthorized || resp.body["request_id"] == nil {
		t.Fatalf("expected 401 with request id, got %d %v", resp.code, resp.body)
	}
	resp = c.do(http.MethodGet, "/api/v1/auth/me", "not-a-jwt", nil)
	if resp.code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed token, got %d", resp.code)
	}
}

func TestRefreshTokenRejectedOnGate(t *testing.T) {
	c := newTestAPI(t)
	acct := c.signup("erin@example.com", "")
	if resp := c.do(http.MethodGet, "/api/v1/auth/me", acct.refresh, nil); resp.code != http.StatusUnauthorized {
		t.Fatalf("refresh token must not open protected routes, got %d", resp.code)
	}
	resp := c.do(http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]any{"refreshToken": acct.refresh})
	if resp.code != http.StatusOK || resp.data()["accessToken"] == "" {
		t.Fatalf("refresh: %d %v", resp.code, resp.body)
	}
}

func TestUpdateMeRejectsPasswordFields(t *testing.T) {
	c := newTestAPI(t)
	acct := c.signup("frank@example.com", "")
	resp := c.do(http.MethodPatch, "/api/v1/auth/update-me", acct.access, map[string]any{"password": "Password999"})
	if resp.code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.code)
	}
	resp = c.do(http.MethodPatch, "/api/v1/auth/update-me", acct.access, map[string]any{"department": "Ops"})
	if resp.code != http.StatusOK {
		t.Fatalf("update-me: %d %v", resp.code, resp.body)
	}
}

func TestUpdatePasswordInvalidatesOldToken(t *testing.T) {
	c := newTestAPI(t)
	acct := c.signup("gina@example.com", "")
	c.clock.Advance(5 * time.Second)
	resp := c.do(http.MethodPatch, "/api/v1/auth/update-password", acct.access, map[string]any{
		"currentPassword": "Password123",
		"password":        "NewPassword1",
		"passwordConfirm": "NewPassword1",
	})
	if resp.code != http.StatusOK {
		t.Fatalf("update-password: %d %v", resp.code, resp.body)
	}
	fresh := resp.data()["accessToken"].(string)
	if got := c.do(http.MethodGet, "/api/v1/auth/me", fresh, nil); got.code != http.StatusOK {
		t.Fatalf("fresh token should work, got %d %v", got.code, got.body)
	}
	got := c.do(http.MethodGet, "/api/v1/auth/me", acct.access, nil)
	if got.code != http.StatusUnauthorized {
		t.Fatalf("token minted before the change must be rejected, got %d", got.code)
	}
	if msg, _ := got.body["error"].(string); !strings.Contains(msg, "changed password") {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestProjectPermissions(t *testing.T) {
	c := newTestAPI(t)
	lead := c.signup("lead@example.com", "team-lead")
	member := c.signup("member@example.com", "")
	stranger := c.signup("stranger@example.com", "")

	if resp := c.do(http.MethodPost, "/api/v1/projects", stranger.access, map[string]any{"name": "Nope"}); resp.code != http.StatusForbidden {
		t.Fatalf("plain user must not create projects, got %d", resp.code)
	}

	resp := c.do(http.MethodPost, "/api/v1/projects", lead.access, map[string]any{
		"name":    "Apollo",
		"members": []string{member.id},
	})
	if resp.code != http.StatusCreated {
		t.Fatalf("create project: %d %v", resp.code, resp.body)
	}
	project := resp.data()["project"].(map[string]any)
	pid := project["id"].(string)

	if resp := c.do(http.MethodGet, "/api/v1/projects/"+pid, stranger.access, nil); resp.code != http.StatusForbidden {
		t.Fatalf("stranger read: expected 403, got %d", resp.code)
	}
	if resp := c.do(http.MethodGet, "/api/v1/projects/"+pid, member.access, nil); resp.code != http.StatusOK {
		t.Fatalf("member read: expected 200, got %d", resp.code)
	}
	if resp := c.do(http.MethodDelete, "/api/v1/projects/"+pid, member.access, nil); resp.code != http.StatusForbidden {
		t.Fatalf("member delete: expected 403, got %d", resp.code)
	}

	resp = c.do(http.MethodPost, "/api/v1/projects/"+pid+"/tasks", member.access, map[string]any{"title": "Write docs"})
	if resp.code != http.StatusCreated {
		t.Fatalf("member creates task: %d %v", resp.code, resp.body)
	}
	if resp := c.do(http.MethodPost, "/api/v1/projects/"+pid+"/tasks", stranger.access, map[string]any{"title": "x"}); resp.code != http.StatusForbidden {
		t.Fatalf("stranger creates task: expected 403, got %d", resp.code)
	}

	list := c.do(http.MethodGet, "/api/v1/projects", stranger.access, nil)
	if list.code != http.StatusOK || list.data()["results"] != float64(0) {
		t.Fatalf("stranger should list nothing: %d %v", list.code, list.body)
	}

	if resp := c.do(http.MethodDelete, "/api/v1/projects/"+pid, lead.access, nil); resp.code != http.StatusNoContent {
		t.Fatalf("owner delete: expected 204, got %d", resp.code)
	}
	if resp := c.do(http.MethodGet, "/api/v1/projects/"+pid, lead.access, nil); resp.code != http.StatusNotFound {
		t.Fatalf("deleted project: expected 404, got %d", resp.code)
	}
}

func TestUserReadRules(t *testing.T) {
	c := newTestAPI(t)
	alice := c.signup("alice@example.com", "")
	bob := c.signup("bob@example.com", "")
	manager := c.signup("manager@example.com", "manager")

	if resp := c.do(http.MethodGet, "/api/v1/users/"+alice.id, alice.access, nil); resp.code != http.StatusOK {
		t.Fatalf("self read: %d", resp.code)
	}
	if resp := c.do(http.MethodGet, "/api/v1/users/"+alice.id, bob.access, nil); resp.code != http.StatusForbidden {
		t.Fatalf("peer read: expected 403, got %d", resp.code)
	}
	if resp := c.do(http.MethodGet, "/api/v1/users/"+alice.id, manager.access, nil); resp.code != http.StatusOK {
		t.Fatalf("manager read: %d", resp.code)
	}
	if resp := c.do(http.MethodPatch, "/api/v1/users/"+alice.id, manager.access, map[string]any{"position": "x"}); resp.code != http.StatusForbidden {
		t.Fatalf("manager update: expected 403, got %d", resp.code)
	}
}

func TestAdminDeactivatesUser(t *testing.T) {
	c := newTestAPI(t)
	admin := c.signup("root@example.com", "admin")
	manager := c.signup("lead@example.com", "manager")
	alice := c.signup("alice@example.com", "")

	if resp := c.do(http.MethodDelete, "/api/v1/users/"+alice.id, manager.access, nil); resp.code != http.StatusForbidden {
		t.Fatalf("manager delete: expected 403, got %d", resp.code)
	}
	if resp := c.do(http.MethodDelete, "/api/v1/users/"+alice.id, alice.access, nil); resp.code != http.StatusForbidden {
		t.Fatalf("self delete: expected 403, got %d", resp.code)
	}
	if resp := c.do(http.MethodDelete, "/api/v1/users/"+admin.id, admin.access, nil); resp.code != http.StatusBadRequest {
		t.Fatalf("admin self delete: expected 400, got %d", resp.code)
	}
	if resp := c.do(http.MethodDelete, "/api/v1/users/"+alice.id, admin.access, nil); resp.code != http.StatusNoContent {
		t.Fatalf("admin delete: %d %v", resp.code, resp.body)
	}
	if resp := c.do(http.MethodGet, "/api/v1/auth/me", alice.access, nil); resp.code != http.StatusUnauthorized {
		t.Fatalf("deactivated user's token: expected 401, got %d", resp.code)
	}
	if resp := c.do(http.MethodGet, "/api/v1/users/"+alice.id, admin.access, nil); resp.code != http.StatusNotFound {
		t.Fatalf("deactivated user lookup: expected 404, got %d", resp.code)
	}
	if resp := c.do(http.MethodPost, "/api/v1/auth/signin", "", map[string]any{
		"email": "alice@example.com", "password": "Password123",
	}); resp.code != http.StatusUnauthorized {
		t.Fatalf("deactivated user signin: expected 401, got %d", resp.code)
	}
}

func TestVerifyEmailRequiresPatch(t *testing.T) {
	c := newTestAPI(t)
	resp := c.do(http.MethodGet, "/api/v1/auth/verify-email/some-token", "", nil)
	if resp.code != http.StatusMethodNotAllowed {
		t.Fatalf("GET verify-email: expected 405, got %d", resp.code)
	}
	if resp := c.do(http.MethodPatch, "/api/v1/auth/verify-email/some-token", "", nil); resp.code != http.StatusBadRequest {
		t.Fatalf("PATCH verify-email with bad token: expected 400, got %d", resp.code)
	}
}

func TestSignupHonoursRequestedRole(t *testing.T) {
	c := newTestAPI(t)
	acct := c.signup("boss@example.com", "admin")
	resp := c.do(http.MethodGet, "/api/v1/auth/me", acct.access, nil)
	user, _ := resp.data()["user"].(map[string]any)
	if user["role"] != "admin" {
		t.Fatalf("role = %v, want admin", user["role"])
	}
}

func TestForwardedForHonouredOnlyBehindTrustedProxy(t *testing.T) {
	limited := func(trust bool) func(*config.Config) {
		return func(cfg *config.Config) {
			cfg.RateLimitBurst = 1
			cfg.RateLimitPerSec = 0.001
			cfg.TrustProxy = trust
		}
	}
	forgot := func(c *apiClient, ip string) int {
		return c.do(http.MethodPost, "/api/v1/auth/forgot-password", "",
			map[string]any{"email": "nobody@example.com"},
			map[string]string{"X-Forwarded-For": ip}).code
	}

	direct := newTestAPI(t, limited(false))
	if code := forgot(direct, "198.51.100.1"); code != http.StatusOK {
		t.Fatalf("first request: %d", code)
	}
	if code := forgot(direct, "198.51.100.2"); code != http.StatusTooManyRequests {
		t.Fatalf("untrusted X-Forwarded-For: expected 429, got %d", code)
	}

	proxied := newTestAPI(t, limited(true))
	if code := forgot(proxied, "198.51.100.1"); code != http.StatusOK {
		t.Fatalf("first proxied request: %d", code)
	}
	if code := forgot(proxied, "198.51.100.2"); code != http.StatusOK {
		t.Fatalf("second client behind proxy: expected 200, got %d", code)
	}
	if code := forgot(proxied, "198.51.100.1"); code != http.StatusTooManyRequests {
		t.Fatalf("repeat client behind proxy: expected 429, got %d", code)
	}
}

func TestProductionCookie(t *testing.T) {
	c := newTestAPI(t, func(cfg *config.Config) { cfg.Env = "production" })
	resp := c.do(http.MethodPost, "/api/v1/auth/signup", "", map[string]any{
		"name": "Prod", "email": "prod@example.com", "password": "Password123", "passwordConfirm": "Password123",
	})
	if resp.code != http.StatusCreated {
		t.Fatalf("signup: %d %v", resp.code, resp.body)
	}
	cookie := resp.header.Get("Set-Cookie")
	for _, want := range []string{"accessToken=", "HttpOnly", "Secure", "SameSite=Strict"} {
		if !strings.Contains(cookie, want) {
			t.Fatalf("cookie %q missing %s", cookie, want)
		}
	}
}

func TestCookieTokenAccepted(t *testing.T) {
	c := newTestAPI(t)
	acct := c.signup("cookie@example.com", "")
	req, _ := http.NewRequest(http.MethodGet, c.baseURL+"/api/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: accessCookie, Value: acct.access})
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cookie auth: expected 200, got %d", resp.StatusCode)
	}
}

func TestDevBypassRequiresDevelopmentAndFlag(t *testing.T) {
	header := map[string]string{devAuthHeader: "1"}

	off := newTestAPI(t)
	if resp := off.do(http.MethodGet, "/api/v1/auth/me", "", nil, header); resp.code != http.StatusUnauthorized {
		t.Fatalf("bypass without flag: expected 401, got %d", resp.code)
	}

	prod := newTestAPI(t, func(cfg *config.Config) {
		cfg.Env = "production"
		cfg.Dev.AuthBypass = true
	})
	if resp := prod.do(http.MethodGet, "/api/v1/auth/me", "", nil, header); resp.code != http.StatusUnauthorized {
		t.Fatalf("bypass in production: expected 401, got %d", resp.code)
	}

	dev := newTestAPI(t, func(cfg *config.Config) {
		cfg.Dev.AuthBypass = true
		cfg.Dev.AuthRole = "manager"
	})
	resp := dev.do(http.MethodGet, "/api/v1/auth/me", "", nil, header)
	if resp.code != http.StatusOK {
		t.Fatalf("bypass in development: expected 200, got %d", resp.code)
	}
	user := resp.data()["user"].(map[string]any)
	if user["role"] != "manager" {
		t.Fatalf("synthetic principal role: %v", user["role"])
	}
}

func TestForgotPasswordUniformResponse(t *testing.T) {
	c := newTestAPI(t)
	c.signup("known@example.com", "")
	known := c.do(http.MethodPost, "/api/v1/auth/forgot-password", "", map[string]any{"email": "known@example.com"})
	unknown := c.do(http.MethodPost, "/api/v1/auth/forgot-password", "", map[string]any{"email": "nobody@example.com"})
	if known.code != http.StatusOK || unknown.code != http.StatusOK {
		t.Fatalf("expected 200 for both, got %d and %d", known.code, unknown.code)
	}
	if known.body["message"] != unknown.body["message"] {
		t.Fatalf("responses differ: %v vs %v", known.body, unknown.body)
	}
}

func TestResetPasswordBadToken(t *testing.T) {
	c := newTestAPI(t)
	resp := c.do(http.MethodPatch, "/api/v1/auth/reset-password/deadbeef", "", map[string]any{
		"password": "Password123", "passwordConfirm": "Password123",
	})
	if resp.code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %v", resp.code, resp.body)
	}
}

func TestOpsEndpoints(t *testing.T) {
	c := newTestAPI(t)
	if resp := c.do(http.MethodGet, "/healthz", "", nil); resp.code != http.StatusOK || resp.body["status"] != "ok" {
		t.Fatalf("healthz: %d %v", resp.code, resp.body)
	}
	resp := c.do(http.MethodGet, "/readyz", "", nil)
	if resp.code != http.StatusOK || resp.body["revocation"] != revocation.BackendMemory {
		t.Fatalf("readyz: %d %v", resp.code, resp.body)
	}
	if resp := c.do(http.MethodGet, "/api/v1/info", "", nil); resp.code != http.StatusOK || resp.data()["version"] != "test" {
		t.Fatalf("info: %d %v", resp.code, resp.body)
	}
	resp = c.do(http.MethodGet, "/api/v1/nope", "", nil)
	if resp.code != http.StatusNotFound || resp.body["status"] != "fail" {
		t.Fatalf("unknown route: %d %v", resp.code, resp.body)
	}
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return context.DeadlineExceeded }

func TestReadyzReportsStoreFailure(t *testing.T) {
	api := New(Deps{Config: config.Defaults(), Ready: ReadyProbe{Store: downStore{}}})
	rr := httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
