package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/eduportal/authcore"
)

// handleOAuthStart mints a state token, parks it in a short-lived cookie,
// and redirects to the provider's authorization page.
func (s *Server) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	state, err := s.engine.NewStateToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}

	authURL, err := s.engine.AuthCodeURL(provider, state)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	http.SetCookie(w, s.cookie(stateCookieName, state, stateCookieTTL))
	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleOAuthCallback validates state against the cookie and completes the
// flow. Every failure redirects to the failure URL with a reason the portal
// frontend can render; the raw error never reaches the browser.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	state := r.URL.Query().Get("state")
	cookieState := readCookie(r, stateCookieName)
	http.SetCookie(w, s.expiredCookie(stateCookieName))

	if state == "" || cookieState == "" ||
		subtle.ConstantTimeCompare([]byte(state), []byte(cookieState)) != 1 {
		s.redirectFailure(w, r, "invalid_state")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		s.redirectFailure(w, r, "access_denied")
		return
	}

	pair, _, err := s.engine.CompleteOAuth(r.Context(), provider, code)
	if err != nil {
		s.redirectFailure(w, r, oauthFailureReason(err))
		return
	}

	s.setAuthCookies(w, pair)
	http.Redirect(w, r, s.cfg.OAuthSuccessURL, http.StatusFound)
}

func (s *Server) redirectFailure(w http.ResponseWriter, r *http.Request, reason string) {
	target := s.cfg.OAuthFailureURL
	if u, err := url.Parse(target); err == nil {
		q := u.Query()
		q.Set("reason", reason)
		u.RawQuery = q.Encode()
		target = u.String()
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func oauthFailureReason(err error) string {
	switch {
	case errors.Is(err, authcore.ErrAlreadyExists):
		return "account_exists"
	case errors.Is(err, authcore.ErrEmailUnverified):
		return "email_unverified"
	case errors.Is(err, authcore.ErrForbidden):
		return "suspended"
	case errors.Is(err, authcore.ErrUnknownProvider):
		return "unknown_provider"
	case errors.Is(err, authcore.ErrProviderUnavailable):
		return "provider_unavailable"
	default:
		return "internal"
	}
}
