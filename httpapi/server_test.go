package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/eduportal/authcore"
	"github.com/eduportal/authcore/store/memory"
)

func newTestServer(t *testing.T) (*Server, *memory.Directory) {
	srv, directory, _ := newServerStack(t, nil)
	return srv, directory
}

// newServerStack also hands back the miniredis so tests can fail the
// session store mid-request.
func newServerStack(t *testing.T, mutate func(*authcore.Config)) (*Server, *memory.Directory, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := authcore.Config{
		JWT:     authcore.JWTConfig{Secret: []byte("0123456789abcdef0123456789abcdef")},
		Session: authcore.SessionConfig{RotateRefreshTokens: true},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	directory := memory.New()
	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDirectory(directory).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return NewServer(engine, directory, Config{
		OAuthSuccessURL: "/welcome",
		OAuthFailureURL: "/login",
	}), directory, mr
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func registerAndLogin(t *testing.T, handler http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	reg := doJSON(t, handler, http.MethodPost, "/auth/register",
		`{"email":"t@school.edu","password":"Passw0rd!","name":"T","role":"teacher"}`, nil)
	if reg.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", reg.Code, reg.Body)
	}
	login := doJSON(t, handler, http.MethodPost, "/auth/login",
		`{"email":"t@school.edu","password":"Passw0rd!"}`, nil)
	if login.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", login.Code, login.Body)
	}
	return login
}

func TestLoginSetsCookiesAndHidesTokens(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()

	login := registerAndLogin(t, handler)

	access := cookieByName(login, accessCookieName)
	refresh := cookieByName(login, refreshCookieName)
	if access == nil || refresh == nil {
		t.Fatal("auth cookies not set")
	}
	for name, c := range map[string]*http.Cookie{"access": access, "refresh": refresh} {
		if !c.HttpOnly {
			t.Fatalf("%s cookie not HttpOnly", name)
		}
		if c.SameSite != http.SameSiteLaxMode {
			t.Fatalf("%s cookie SameSite = %v", name, c.SameSite)
		}
		if c.MaxAge <= 0 {
			t.Fatalf("%s cookie MaxAge = %d", name, c.MaxAge)
		}
	}
	if access.MaxAge >= refresh.MaxAge {
		t.Fatal("access cookie outlives refresh cookie")
	}

	// Tokens never appear in the body.
	if strings.Contains(login.Body.String(), access.Value) || strings.Contains(login.Body.String(), refresh.Value) {
		t.Fatalf("token leaked in body: %s", login.Body)
	}
}

func TestLoginFailureStatus(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()
	registerAndLogin(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/auth/login",
		`{"email":"t@school.edu","password":"wrong"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid_credentials") {
		t.Fatalf("body = %s", rec.Body)
	}
}

func TestRegisterDuplicateConflict(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()
	registerAndLogin(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/auth/register",
		`{"email":"t@school.edu","password":"Passw0rd!","name":"T2","role":"student"}`, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestRefreshRotatesCookie(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()
	login := registerAndLogin(t, handler)
	oldRefresh := cookieByName(login, refreshCookieName)

	rec := doJSON(t, handler, http.MethodPost, "/auth/refresh", "", []*http.Cookie{oldRefresh})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	newRefresh := cookieByName(rec, refreshCookieName)
	if newRefresh == nil || newRefresh.Value == oldRefresh.Value {
		t.Fatal("refresh cookie was not rotated")
	}

	// Replaying the consumed cookie fails and clears cookies.
	replay := doJSON(t, handler, http.MethodPost, "/auth/refresh", "", []*http.Cookie{oldRefresh})
	if replay.Code != http.StatusUnauthorized {
		t.Fatalf("replay status = %d, want 401", replay.Code)
	}
	if cleared := cookieByName(replay, refreshCookieName); cleared == nil || cleared.MaxAge != -1 {
		t.Fatal("replay did not clear the refresh cookie")
	}
}

func TestMeRequiresBearer(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()
	login := registerAndLogin(t, handler)
	access := cookieByName(login, accessCookieName)

	// The guarded routes read the Authorization header, not cookies.
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+access.Value)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var user struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &user); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if user.Email != "t@school.edu" || user.Role != "teacher" {
		t.Fatalf("unexpected profile: %+v", user)
	}

	unauth := doJSON(t, handler, http.MethodGet, "/auth/me", "", nil)
	if unauth.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", unauth.Code)
	}
}

func TestLogoutClearsCookiesAndRevokes(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()
	login := registerAndLogin(t, handler)
	refresh := cookieByName(login, refreshCookieName)

	out := doJSON(t, handler, http.MethodPost, "/auth/logout", "", []*http.Cookie{refresh})
	if out.Code != http.StatusOK {
		t.Fatalf("status = %d", out.Code)
	}
	if cleared := cookieByName(out, refreshCookieName); cleared == nil || cleared.MaxAge != -1 {
		t.Fatal("refresh cookie not cleared")
	}

	// The revoked session cannot refresh.
	rec := doJSON(t, handler, http.MethodPost, "/auth/refresh", "", []*http.Cookie{refresh})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout status = %d", rec.Code)
	}

	// Logging out twice is fine.
	again := doJSON(t, handler, http.MethodPost, "/auth/logout", "", []*http.Cookie{refresh})
	if again.Code != http.StatusOK {
		t.Fatalf("second logout status = %d", again.Code)
	}
}

func TestOAuthCallbackStateMismatch(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/auth/oauth/google/callback?state=attacker&code=x", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "legit"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	location := rec.Header().Get("Location")
	if !strings.Contains(location, "reason=invalid_state") {
		t.Fatalf("Location = %q", location)
	}
}

func TestForgotPasswordAlwaysAccepted(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()
	registerAndLogin(t, handler)

	known := doJSON(t, handler, http.MethodPost, "/auth/password/forgot",
		`{"email":"t@school.edu"}`, nil)
	unknown := doJSON(t, handler, http.MethodPost, "/auth/password/forgot",
		`{"email":"nobody@school.edu"}`, nil)

	if known.Code != http.StatusAccepted || unknown.Code != http.StatusAccepted {
		t.Fatalf("statuses = %d / %d, want 202 / 202", known.Code, unknown.Code)
	}
	if known.Body.String() != unknown.Body.String() {
		t.Fatal("responses differ between known and unknown email")
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRefreshKeepsCookiesOnStoreOutage(t *testing.T) {
	srv, _, mr := newServerStack(t, nil)
	handler := srv.Router()
	login := registerAndLogin(t, handler)
	refresh := cookieByName(login, refreshCookieName)

	mr.Close()

	rec := doJSON(t, handler, http.MethodPost, "/auth/refresh", "", []*http.Cookie{refresh})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	// The token is still valid server-side; the client keeps it and retries.
	if c := cookieByName(rec, refreshCookieName); c != nil {
		t.Fatalf("refresh cookie rewritten on outage: MaxAge=%d value=%q", c.MaxAge, c.Value)
	}
	if c := cookieByName(rec, accessCookieName); c != nil {
		t.Fatalf("access cookie rewritten on outage: MaxAge=%d", c.MaxAge)
	}
}

func TestRefreshKeepsCookiesWhenThrottled(t *testing.T) {
	srv, _, _ := newServerStack(t, func(cfg *authcore.Config) {
		cfg.Session.RotateRefreshTokens = false
		cfg.Security.EnableRefreshThrottle = true
		cfg.Security.MaxRefreshAttempts = 1
		cfg.Security.RefreshCooldown = time.Minute
	})
	handler := srv.Router()
	login := registerAndLogin(t, handler)
	refresh := cookieByName(login, refreshCookieName)

	first := doJSON(t, handler, http.MethodPost, "/auth/refresh", "", []*http.Cookie{refresh})
	if first.Code != http.StatusOK {
		t.Fatalf("first refresh status = %d, body %s", first.Code, first.Body)
	}

	second := doJSON(t, handler, http.MethodPost, "/auth/refresh", "", []*http.Cookie{refresh})
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("throttled status = %d, want 429", second.Code)
	}
	if c := cookieByName(second, refreshCookieName); c != nil {
		t.Fatalf("refresh cookie rewritten on throttle: MaxAge=%d", c.MaxAge)
	}
}

func TestLogoutClearsCookiesOnStoreOutage(t *testing.T) {
	srv, _, mr := newServerStack(t, nil)
	handler := srv.Router()
	login := registerAndLogin(t, handler)
	refresh := cookieByName(login, refreshCookieName)

	mr.Close()

	out := doJSON(t, handler, http.MethodPost, "/auth/logout", "", []*http.Cookie{refresh})
	if out.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", out.Code)
	}
	for _, name := range []string{refreshCookieName, accessCookieName} {
		if c := cookieByName(out, name); c == nil || c.MaxAge != -1 {
			t.Fatalf("%s cookie not cleared on failed logout", name)
		}
	}
}
