// Package httpapi exposes the engine over HTTP for browser clients. Tokens
// travel in HttpOnly cookies; response bodies never contain them. Routes
// are served by chi and errors map to a fixed status/code table so clients
// can switch on stable strings.
package httpapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/eduportal/authcore"
	"github.com/eduportal/authcore/middleware"
)

// Config controls the HTTP surface.
type Config struct {
	CookieDomain  string
	SecureCookies bool

	// OAuthSuccessURL and OAuthFailureURL are where callback redirects
	// land. The failure URL receives a reason query parameter.
	OAuthSuccessURL string
	OAuthFailureURL string
}

// Server serves the portal's authentication routes.
type Server struct {
	engine    *authcore.Engine
	directory authcore.UserDirectory
	cfg       Config
}

// NewServer wires a Server. directory is used for profile reads only; all
// writes go through the engine.
func NewServer(engine *authcore.Engine, directory authcore.UserDirectory, cfg Config) *Server {
	return &Server{engine: engine, directory: directory, cfg: cfg}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.annotateContext)

	r.Get("/healthz", s.handleHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/logout", s.handleLogout)
		r.Post("/password/forgot", s.handleForgotPassword)
		r.Post("/password/reset", s.handleResetPassword)

		r.Get("/oauth/{provider}", s.handleOAuthStart)
		r.Get("/oauth/{provider}/callback", s.handleOAuthCallback)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(s.engine))
			r.Get("/me", s.handleMe)
			r.Post("/logout-all", s.handleLogoutAll)
			r.Post("/password/change", s.handleChangePassword)
			r.Delete("/oauth/{provider}", s.handleUnlink)
		})
	})

	return r
}

// annotateContext carries client metadata into audit events.
func (s *Server) annotateContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ctx := authcore.WithClientIP(r.Context(), host)
		ctx = authcore.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "unhealthy")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	role := authcore.Role(req.Role)
	if req.Role == "" {
		role = authcore.RoleStudent
	}

	user, err := s.engine.Register(r.Context(), req.Email, req.Password, req.Name, role)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{
		ID: user.ID, Email: user.Email, Name: user.Name, Role: string(user.Role),
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pair, err := s.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	s.setAuthCookies(w, pair)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	refresh := readCookie(r, refreshCookieName)
	if refresh == "" {
		writeError(w, http.StatusUnauthorized, "session_not_found")
		return
	}

	pair, err := s.engine.Refresh(r.Context(), refresh)
	if err != nil {
		if sessionDead(err) {
			s.clearAuthCookies(w)
		}
		writeEngineError(w, err)
		return
	}

	s.setAuthCookies(w, pair)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sessionDead reports whether err means the refresh credential can never be
// accepted again. Throttled or transiently failed refreshes keep the
// cookies so the client can retry with the same token.
func sessionDead(err error) bool {
	return errors.Is(err, authcore.ErrSessionNotFound) ||
		errors.Is(err, authcore.ErrTokenInvalid) ||
		errors.Is(err, authcore.ErrForbidden)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var revokeErr error
	if refresh := readCookie(r, refreshCookieName); refresh != "" {
		revokeErr = s.engine.Revoke(r.Context(), refresh)
	}
	// Cookies go away even when the store is unreachable. The browser's
	// copy is useless to the user either way, and logout must not strand it.
	s.clearAuthCookies(w)
	if revokeErr != nil {
		writeEngineError(w, revokeErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	result, ok := middleware.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}
	if err := s.engine.RevokeAll(r.Context(), result.UserID); err != nil {
		writeEngineError(w, err)
		return
	}
	s.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	result, ok := middleware.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}

	user, err := s.directory.FindByID(r.Context(), result.UserID)
	if errors.Is(err, authcore.ErrUserNotFound) {
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	writeJSON(w, http.StatusOK, userResponse{
		ID: user.ID, Email: user.Email, Name: user.Name, Role: string(user.Role),
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	result, ok := middleware.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}

	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.engine.ChangePassword(r.Context(), result.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// The token goes out through mail delivery, never the response. The
	// response is identical for known and unknown addresses.
	if _, err := s.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.engine.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUnlink(w http.ResponseWriter, r *http.Request) {
	result, ok := middleware.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}
	if err := s.engine.UnlinkProvider(r.Context(), result.UserID, chi.URLParam(r, "provider")); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_request")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// writeEngineError is the single mapping from engine errors to wire
// responses. Codes are part of the client contract.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authcore.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
	case errors.Is(err, authcore.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "token_expired")
	case errors.Is(err, authcore.ErrTokenInvalid):
		writeError(w, http.StatusUnauthorized, "invalid_token")
	case errors.Is(err, authcore.ErrSessionNotFound):
		writeError(w, http.StatusUnauthorized, "session_not_found")
	case errors.Is(err, authcore.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, authcore.ErrEmailUnverified):
		writeError(w, http.StatusForbidden, "email_unverified")
	case errors.Is(err, authcore.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already_exists")
	case errors.Is(err, authcore.ErrInvalidState):
		writeError(w, http.StatusConflict, "last_auth_method")
	case errors.Is(err, authcore.ErrIdentityNotFound):
		writeError(w, http.StatusNotFound, "identity_not_found")
	case errors.Is(err, authcore.ErrUnknownProvider):
		writeError(w, http.StatusNotFound, "unknown_provider")
	case errors.Is(err, authcore.ErrRoleInvalid), errors.Is(err, authcore.ErrPasswordPolicy):
		writeError(w, http.StatusBadRequest, "invalid_input")
	case errors.Is(err, authcore.ErrLoginRateLimited), errors.Is(err, authcore.ErrRefreshRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate_limited")
	case errors.Is(err, authcore.ErrProviderUnavailable):
		writeError(w, http.StatusBadGateway, "provider_unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal")
	}
}
