package authcore

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/eduportal/authcore/internal"
	"github.com/eduportal/authcore/oauth"
)

// NewStateToken returns an unguessable state value for the OAuth redirect
// round trip. The HTTP layer stores it in a short-lived cookie and compares
// on callback.
func (e *Engine) NewStateToken() (string, error) {
	return internal.NewStateToken()
}

// AuthCodeURL builds the authorization redirect for a registered provider.
func (e *Engine) AuthCodeURL(providerName, state string) (string, error) {
	p, ok := e.providers[providerName]
	if !ok {
		return "", ErrUnknownProvider
	}
	return p.AuthCodeURL(state), nil
}

// CompleteOAuth finishes a provider callback: it exchanges the code, loads
// the external profile, and resolves it to a local account.
//
// Resolution is a four-way decision on (identity link, local email):
//
//   - A known (provider, subject) pair logs straight into its linked account.
//   - No link and no local account provisions a passwordless account with
//     the default OAuth role, when the provider verified the email.
//   - No link but a password account under the same email is rejected with
//     ErrAlreadyExists. Controlling a mailbox at a provider must never take
//     over a password account.
//   - No link but a passwordless account under the same verified email
//     auto-links; both flows merge into one account.
func (e *Engine) CompleteOAuth(ctx context.Context, providerName, code string) (*TokenPair, User, error) {
	if e.directory == nil || e.sessions == nil {
		return nil, User{}, ErrEngineNotReady
	}
	p, ok := e.providers[providerName]
	if !ok {
		return nil, User{}, ErrUnknownProvider
	}

	token, err := p.Exchange(ctx, code)
	if err != nil {
		e.metrics.inc(MetricOAuthProviderError)
		e.emitAudit(ctx, auditEventOAuthFailure, false, "", err, func() map[string]string {
			return map[string]string{"provider": providerName, "stage": "exchange"}
		})
		return nil, User{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	profile, err := p.FetchProfile(ctx, token)
	if err != nil {
		e.metrics.inc(MetricOAuthProviderError)
		e.emitAudit(ctx, auditEventOAuthFailure, false, "", err, func() map[string]string {
			return map[string]string{"provider": providerName, "stage": "profile"}
		})
		return nil, User{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if profile.SubjectID == "" {
		return nil, User{}, fmt.Errorf("%w: profile missing subject", ErrProviderUnavailable)
	}

	user, created, err := e.resolveProfile(ctx, providerName, profile, token)
	if err != nil {
		return nil, User{}, err
	}

	if user.Suspended {
		e.emitAudit(ctx, auditEventOAuthFailure, false, user.ID, ErrForbidden, func() map[string]string {
			return map[string]string{"provider": providerName, "reason": "suspended"}
		})
		return nil, User{}, ErrForbidden
	}

	pair, err := e.issueTokenPair(ctx, user)
	if err != nil {
		return nil, User{}, err
	}

	if created {
		e.metrics.inc(MetricOAuthNewUser)
	}
	e.metrics.inc(MetricOAuthLogin)
	e.emitAudit(ctx, auditEventOAuthLogin, true, user.ID, nil, func() map[string]string {
		return map[string]string{"provider": providerName}
	})
	return pair, user, nil
}

func (e *Engine) resolveProfile(ctx context.Context, providerName string, profile oauth.Profile, token *oauth2.Token) (User, bool, error) {
	ident, err := e.directory.FindIdentity(ctx, providerName, profile.SubjectID)
	switch {
	case err == nil:
		// Known link: refresh stored provider tokens best-effort.
		_ = e.directory.UpdateIdentityTokens(ctx, providerName, profile.SubjectID,
			token.AccessToken, token.RefreshToken, token.Expiry)
		user, err := e.directory.FindByID(ctx, ident.UserID)
		if errors.Is(err, ErrUserNotFound) {
			return User{}, false, ErrUserNotFound
		}
		if err != nil {
			return User{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return user, false, nil
	case !errors.Is(err, ErrIdentityNotFound):
		return User{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	email := normalizeEmail(profile.Email)
	if email == "" {
		return User{}, false, fmt.Errorf("%w: profile missing email", ErrProviderUnavailable)
	}

	local, err := e.directory.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrUserNotFound):
		return e.provisionOAuthUser(ctx, providerName, profile, token, email)
	case err != nil:
		return User{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if local.HasPassword() {
		e.metrics.inc(MetricOAuthConflict)
		e.emitAudit(ctx, auditEventOAuthFailure, false, local.ID, ErrAlreadyExists, func() map[string]string {
			return map[string]string{"provider": providerName, "reason": "password_account_collision"}
		})
		return User{}, false, ErrAlreadyExists
	}

	// Passwordless account under the same address: auto-link, but only a
	// verified email may join two login routes.
	if !profile.EmailVerified {
		return User{}, false, ErrEmailUnverified
	}
	if err := e.linkIdentity(ctx, local.ID, providerName, profile, token); err != nil {
		return User{}, false, err
	}
	e.metrics.inc(MetricOAuthAutoLink)
	return local, false, nil
}

func (e *Engine) provisionOAuthUser(ctx context.Context, providerName string, profile oauth.Profile, token *oauth2.Token, email string) (User, bool, error) {
	if !profile.EmailVerified {
		return User{}, false, ErrEmailUnverified
	}

	user, err := e.directory.Create(ctx, CreateUserInput{
		Email: email,
		Name:  profile.Name,
		Role:  e.config.Account.DefaultOAuthRole,
	})
	switch {
	case errors.Is(err, ErrAlreadyExists):
		// Lost a race with a concurrent registration; surface the conflict.
		return User{}, false, ErrAlreadyExists
	case err != nil:
		return User{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.linkIdentity(ctx, user.ID, providerName, profile, token); err != nil {
		return User{}, false, err
	}
	return user, true, nil
}

func (e *Engine) linkIdentity(ctx context.Context, userID, providerName string, profile oauth.Profile, token *oauth2.Token) error {
	err := e.directory.CreateIdentity(ctx, LinkedIdentity{
		UserID:       userID,
		Provider:     providerName,
		SubjectID:    profile.SubjectID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	})
	if errors.Is(err, ErrAlreadyExists) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// UnlinkProvider removes userID's link to providerName. The last working
// login method is protected: a passwordless account keeps its final
// identity and the call fails with ErrInvalidState.
func (e *Engine) UnlinkProvider(ctx context.Context, userID, providerName string) error {
	if e.directory == nil {
		return ErrEngineNotReady
	}

	user, err := e.directory.FindByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	idents, err := e.directory.IdentitiesForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	found := false
	for _, ident := range idents {
		if ident.Provider == providerName {
			found = true
			break
		}
	}
	if !found {
		return ErrIdentityNotFound
	}

	if !user.HasPassword() && len(idents) <= 1 {
		e.metrics.inc(MetricUnlinkBlocked)
		e.emitAudit(ctx, auditEventUnlinkBlocked, false, userID, ErrInvalidState, func() map[string]string {
			return map[string]string{"provider": providerName}
		})
		return ErrInvalidState
	}

	if err := e.directory.DeleteIdentity(ctx, userID, providerName); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.inc(MetricUnlinkSuccess)
	e.emitAudit(ctx, auditEventUnlink, true, userID, nil, func() map[string]string {
		return map[string]string{"provider": providerName}
	})
	return nil
}
