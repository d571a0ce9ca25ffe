package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eduportal/authcore/internal"
	"github.com/eduportal/authcore/internal/audit"
	"github.com/eduportal/authcore/internal/rate"
	"github.com/eduportal/authcore/jwt"
	"github.com/eduportal/authcore/oauth"
	"github.com/eduportal/authcore/password"
	"github.com/eduportal/authcore/session"
)

// Engine is the authentication core. Construct it with Builder; all methods
// are safe for concurrent use after Build.
type Engine struct {
	config    Config
	directory UserDirectory
	sessions  *session.Store
	limiter   *rate.Limiter
	audit     *audit.Dispatcher
	metrics   *metrics
	hasher    *password.Hasher
	tokens    *jwt.Manager
	providers map[string]oauth.Provider

	// decoyDigest equalizes the cost of login attempts against unknown
	// emails and OAuth-only accounts with real verifications.
	decoyDigest string
}

// Close flushes the audit pipeline. The Engine must not be used afterwards.
func (e *Engine) Close() {
	e.audit.Close()
}

// AccessTTL reports the configured access token lifetime.
func (e *Engine) AccessTTL() time.Duration { return e.config.JWT.AccessTTL }

// RefreshTTL reports the configured refresh session lifetime.
func (e *Engine) RefreshTTL() time.Duration { return e.config.Session.RefreshTTL }

// normalizeEmail is the single place email case and whitespace rules live.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login verifies an email/password pair and opens a session. Unknown
// emails, wrong passwords, and OAuth-only accounts all yield
// ErrInvalidCredentials; suspension is only reported after the password
// verified.
func (e *Engine) Login(ctx context.Context, email, plaintext string) (*TokenPair, error) {
	if e.directory == nil || e.hasher == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if err := e.limiter.CheckLogin(ctx, email); err != nil {
		if errors.Is(err, rate.ErrLimited) {
			e.metrics.inc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", ErrLoginRateLimited, func() map[string]string {
				return map[string]string{"email": email}
			})
			return nil, ErrLoginRateLimited
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if email == "" || plaintext == "" {
		return nil, e.failLogin(ctx, email, "", "empty_input")
	}

	user, err := e.directory.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrUserNotFound):
		_, _ = e.hasher.Verify(plaintext, e.decoyDigest)
		return nil, e.failLogin(ctx, email, "", "unknown_email")
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if !user.HasPassword() {
		_, _ = e.hasher.Verify(plaintext, e.decoyDigest)
		return nil, e.failLogin(ctx, email, user.ID, "no_password_credential")
	}

	ok, err := e.hasher.Verify(plaintext, user.PasswordDigest)
	if err != nil && !errors.Is(err, password.ErrMalformedDigest) {
		return nil, err
	}
	if !ok {
		return nil, e.failLogin(ctx, email, user.ID, "password_mismatch")
	}

	if user.Suspended {
		e.metrics.inc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, ErrForbidden, func() map[string]string {
			return map[string]string{"email": email, "reason": "suspended"}
		})
		return nil, ErrForbidden
	}

	if err := e.limiter.ResetLogin(ctx, email); err != nil && !errors.Is(err, rate.ErrUnavailable) {
		return nil, err
	}

	pair, err := e.issueTokenPair(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metrics.inc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, nil, func() map[string]string {
		return map[string]string{"email": email}
	})
	return pair, nil
}

func (e *Engine) failLogin(ctx context.Context, email, userID, reason string) error {
	if err := e.limiter.IncrementLogin(ctx, email); err != nil && !errors.Is(err, rate.ErrUnavailable) {
		return err
	}
	e.metrics.inc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"email": email, "reason": reason}
	})
	return ErrInvalidCredentials
}

// issueTokenPair opens a refresh session for user and mints the matching
// access token.
func (e *Engine) issueTokenPair(ctx context.Context, user User) (*TokenPair, error) {
	refresh, err := internal.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	if err := e.sessions.Create(ctx, refresh, user.ID, e.config.Session.RefreshTTL); err != nil {
		return nil, e.mapSessionErr(err)
	}

	access, err := e.tokens.IssueAccess(user.ID, string(user.Role))
	if err != nil {
		// Do not leave an orphan session behind an unusable pair.
		_, _ = e.sessions.Delete(ctx, refresh)
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccess validates an access token and returns the identity it
// carries. Expired tokens map to ErrTokenExpired so clients know to
// refresh; everything else maps to ErrTokenInvalid.
func (e *Engine) VerifyAccess(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.ParseAccess(accessToken)
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, ErrTokenInvalid
	}

	role := Role(claims.Role)
	if !role.Valid() {
		return nil, ErrTokenInvalid
	}
	return &AuthResult{UserID: claims.Subject, Role: role}, nil
}

// Authorize verifies an access token and requires its role to be one of
// allowed. Role checks are exact; there is no hierarchy.
func (e *Engine) Authorize(ctx context.Context, accessToken string, allowed ...Role) (*AuthResult, error) {
	result, err := e.VerifyAccess(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	for _, role := range allowed {
		if result.Role == role {
			return result, nil
		}
	}
	return nil, ErrForbidden
}

// Refresh trades a live refresh token for a new token pair. The user is
// re-read from the directory so suspension and role changes take effect at
// the refresh boundary. With rotation enabled the presented token is
// consumed; when two refreshes race on one token at most one wins and the
// other observes ErrSessionNotFound.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e.sessions == nil || e.directory == nil {
		return nil, ErrEngineNotReady
	}
	if refreshToken == "" {
		return nil, ErrSessionNotFound
	}

	tokenHash := internal.HashToken(refreshToken)
	if err := e.limiter.CheckRefresh(ctx, tokenHash); err != nil {
		if errors.Is(err, rate.ErrLimited) {
			e.metrics.inc(MetricRefreshRateLimited)
			return nil, ErrRefreshRateLimited
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	userID, err := e.sessions.Get(ctx, refreshToken)
	if err != nil {
		e.metrics.inc(MetricRefreshFailure)
		return nil, e.mapSessionErr(err)
	}

	user, err := e.directory.FindByID(ctx, userID)
	switch {
	case errors.Is(err, ErrUserNotFound):
		// Account deleted out from under the session.
		_, _ = e.sessions.Delete(ctx, refreshToken)
		e.metrics.inc(MetricRefreshFailure)
		return nil, ErrSessionNotFound
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if user.Suspended {
		_, _ = e.sessions.Delete(ctx, refreshToken)
		e.metrics.inc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, user.ID, ErrForbidden, func() map[string]string {
			return map[string]string{"reason": "suspended"}
		})
		return nil, ErrForbidden
	}

	var pair *TokenPair
	if e.config.Session.RotateRefreshTokens {
		pair, err = e.rotate(ctx, refreshToken, user)
	} else {
		pair, err = e.extend(ctx, refreshToken, user)
	}
	if err != nil {
		e.metrics.inc(MetricRefreshFailure)
		return nil, err
	}

	e.metrics.inc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, user.ID, nil, nil)
	return pair, nil
}

// rotate consumes the old session before opening the new one. The atomic
// delete is what makes concurrent refreshes on one token safe: only the
// caller that actually removed the session proceeds.
func (e *Engine) rotate(ctx context.Context, oldToken string, user User) (*TokenPair, error) {
	existed, err := e.sessions.Delete(ctx, oldToken)
	if err != nil {
		return nil, e.mapSessionErr(err)
	}
	if !existed {
		return nil, ErrSessionNotFound
	}
	return e.issueTokenPair(ctx, user)
}

func (e *Engine) extend(ctx context.Context, refreshToken string, user User) (*TokenPair, error) {
	if err := e.sessions.Extend(ctx, refreshToken, e.config.Session.RefreshTTL); err != nil {
		return nil, e.mapSessionErr(err)
	}
	access, err := e.tokens.IssueAccess(user.ID, string(user.Role))
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refreshToken}, nil
}

// Revoke ends the session behind refreshToken. Revoking an absent or
// already-revoked session succeeds; logout never fails for being late.
func (e *Engine) Revoke(ctx context.Context, refreshToken string) error {
	if e.sessions == nil {
		return ErrEngineNotReady
	}
	if refreshToken == "" {
		return nil
	}

	existed, err := e.sessions.Delete(ctx, refreshToken)
	if err != nil {
		return e.mapSessionErr(err)
	}
	if existed {
		e.metrics.inc(MetricSessionRevoked)
		e.emitAudit(ctx, auditEventLogout, true, "", nil, nil)
	}
	return nil
}

// RevokeAll ends every session owned by userID.
func (e *Engine) RevokeAll(ctx context.Context, userID string) error {
	if e.sessions == nil {
		return ErrEngineNotReady
	}
	if err := e.sessions.DeleteAllForUser(ctx, userID); err != nil {
		return e.mapSessionErr(err)
	}
	e.metrics.inc(MetricSessionRevokedAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, nil, nil)
	return nil
}

// Ping verifies the session store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if e.sessions == nil {
		return ErrEngineNotReady
	}
	return e.sessions.Ping(ctx)
}

func (e *Engine) mapSessionErr(err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return ErrSessionNotFound
	case errors.Is(err, session.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	default:
		return err
	}
}
