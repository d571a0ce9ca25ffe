package httpapi

import (
	"net/http"
	"time"

	"github.com/eduportal/authcore"
)

const (
	accessCookieName  = "ep_access"
	refreshCookieName = "ep_refresh"
	stateCookieName   = "ep_oauth_state"

	stateCookieTTL = 10 * time.Minute
)

// setAuthCookies writes both tokens as HttpOnly cookies. Max-Age follows
// the engine TTLs so the browser drops cookies in step with server expiry.
func (s *Server) setAuthCookies(w http.ResponseWriter, pair *authcore.TokenPair) {
	http.SetCookie(w, s.cookie(accessCookieName, pair.AccessToken, s.engine.AccessTTL()))
	http.SetCookie(w, s.cookie(refreshCookieName, pair.RefreshToken, s.engine.RefreshTTL()))
}

func (s *Server) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, s.expiredCookie(accessCookieName))
	http.SetCookie(w, s.expiredCookie(refreshCookieName))
}

func (s *Server) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   s.cfg.CookieDomain,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *Server) expiredCookie(name string) *http.Cookie {
	c := s.cookie(name, "", 0)
	c.MaxAge = -1
	return c
}

func readCookie(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
