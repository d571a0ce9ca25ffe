package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/eduportal/authcore/password"
)

// Register provisions a password account. Self-registration is limited to
// student and teacher; admins are provisioned out of band. Email uniqueness
// is case-insensitive and enforced by the directory.
func (e *Engine) Register(ctx context.Context, email, plaintext, name string, role Role) (User, error) {
	if e.directory == nil || e.hasher == nil {
		return User{}, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: malformed email", ErrInvalidCredentials)
	}
	if !role.Valid() || role == RoleAdmin {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", ErrRoleInvalid, func() map[string]string {
			return map[string]string{"email": email, "role": string(role)}
		})
		return User{}, ErrRoleInvalid
	}

	digest, err := e.hasher.Hash(plaintext)
	if err != nil {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", ErrPasswordPolicy, func() map[string]string {
			return map[string]string{"email": email, "reason": "policy"}
		})
		return User{}, fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}

	user, err := e.directory.Create(ctx, CreateUserInput{
		Email:          email,
		Name:           strings.TrimSpace(name),
		Role:           role,
		PasswordDigest: digest,
	})
	switch {
	case errors.Is(err, ErrAlreadyExists):
		e.metrics.inc(MetricRegisterDuplicate)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", ErrAlreadyExists, func() map[string]string {
			return map[string]string{"email": email, "reason": "duplicate"}
		})
		return User{}, ErrAlreadyExists
	case err != nil:
		return User{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.inc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegister, true, user.ID, nil, func() map[string]string {
		return map[string]string{"email": email, "role": string(role)}
	})
	return user, nil
}

// ChangePassword replaces userID's password after verifying the current
// one. Existing sessions stay live; only a reset revokes them.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, next string) error {
	if e.directory == nil || e.hasher == nil {
		return ErrEngineNotReady
	}

	user, err := e.directory.FindByID(ctx, userID)
	switch {
	case errors.Is(err, ErrUserNotFound):
		return ErrInvalidCredentials
	case err != nil:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if !user.HasPassword() {
		e.metrics.inc(MetricPasswordChangeFailure)
		return ErrInvalidCredentials
	}

	ok, err := e.hasher.Verify(current, user.PasswordDigest)
	if err != nil && !errors.Is(err, password.ErrMalformedDigest) {
		return err
	}
	if !ok {
		e.metrics.inc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChange, false, userID, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	digest, err := e.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}
	if err := e.directory.UpdatePasswordDigest(ctx, userID, digest); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.inc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChange, true, userID, nil, nil)
	return nil
}
