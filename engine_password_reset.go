package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// RequestPasswordReset issues a short-lived reset token for email. Unknown
// emails get a decoy token bound to a random subject, so the response shape
// and timing never reveal whether an account exists. Delivery of the token
// is the caller's concern.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if e.directory == nil || e.tokens == nil {
		return "", ErrEngineNotReady
	}

	email = normalizeEmail(email)
	subject := uuid.NewString()
	known := false

	user, err := e.directory.FindByEmail(ctx, email)
	switch {
	case err == nil:
		subject = user.ID
		known = true
	case errors.Is(err, ErrUserNotFound):
		// Fall through with the decoy subject.
	default:
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	token, err := e.tokens.IssueReset(subject, e.config.Reset.TokenTTL)
	if err != nil {
		return "", err
	}

	e.metrics.inc(MetricResetRequested)
	e.emitAudit(ctx, auditEventResetRequested, true, "", nil, func() map[string]string {
		return map[string]string{"email": email, "known": fmt.Sprint(known)}
	})
	return token, nil
}

// ResetPassword redeems a reset token and sets a new password. Any defect
// in the token, including expiry or a decoy subject, maps to
// ErrTokenInvalid. A successful reset revokes every session the account
// has, since the reset usually means the old credential was compromised.
func (e *Engine) ResetPassword(ctx context.Context, token, next string) error {
	if e.directory == nil || e.tokens == nil || e.hasher == nil {
		return ErrEngineNotReady
	}

	claims, err := e.tokens.ParseReset(token)
	if err != nil {
		e.metrics.inc(MetricResetFailure)
		e.emitAudit(ctx, auditEventResetFailure, false, "", ErrTokenInvalid, nil)
		return ErrTokenInvalid
	}

	user, err := e.directory.FindByID(ctx, claims.Subject)
	switch {
	case errors.Is(err, ErrUserNotFound):
		e.metrics.inc(MetricResetFailure)
		e.emitAudit(ctx, auditEventResetFailure, false, "", ErrTokenInvalid, nil)
		return ErrTokenInvalid
	case err != nil:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	digest, err := e.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}
	if err := e.directory.UpdatePasswordDigest(ctx, user.ID, digest); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.RevokeAll(ctx, user.ID); err != nil {
		return err
	}

	e.metrics.inc(MetricResetCompleted)
	e.emitAudit(ctx, auditEventResetCompleted, true, user.ID, nil, nil)
	return nil
}
