package authcore

import "errors"

// Sentinel errors returned by Engine operations. Callers branch with
// errors.Is; wrapped causes carry transport detail without changing identity.
var (
	// ErrInvalidCredentials covers unknown email, wrong password, and
	// password login against OAuth-only accounts. The three cases are
	// deliberately indistinguishable to callers.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrForbidden is returned for suspended accounts and for callers whose
	// role does not satisfy an authorization requirement.
	ErrForbidden = errors.New("forbidden")

	// ErrAlreadyExists is returned when a registration or identity link
	// collides with an existing account.
	ErrAlreadyExists = errors.New("already exists")

	// ErrTokenExpired is returned for structurally valid access tokens whose
	// lifetime has passed. Clients treat it as the cue to refresh.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid is returned for tokens that fail any other check:
	// bad signature, malformed payload, wrong purpose, unknown algorithm.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrSessionNotFound is returned when a refresh token has no live
	// session: expired, revoked, or already rotated away.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidState is returned when unlinking an OAuth identity would
	// leave the account with no way to authenticate.
	ErrInvalidState = errors.New("last authentication method cannot be removed")

	// ErrProviderUnavailable is returned when an OAuth provider cannot be
	// reached or returns an unusable response.
	ErrProviderUnavailable = errors.New("oauth provider unavailable")

	// ErrEmailUnverified is returned when an OAuth profile carries an email
	// the provider has not verified, which blocks account creation and
	// auto-linking.
	ErrEmailUnverified = errors.New("provider email not verified")

	// ErrUserNotFound is returned by UserDirectory implementations when a
	// lookup matches nothing.
	ErrUserNotFound = errors.New("user not found")

	// ErrIdentityNotFound is returned when an OAuth identity lookup matches
	// nothing.
	ErrIdentityNotFound = errors.New("linked identity not found")

	// ErrUnknownProvider is returned when an OAuth flow names a provider the
	// engine was not built with.
	ErrUnknownProvider = errors.New("unknown oauth provider")

	// ErrRoleInvalid is returned when a registration names a role outside
	// the portal's closed set.
	ErrRoleInvalid = errors.New("invalid role")

	// ErrPasswordPolicy is returned when a new password fails the minimum
	// length requirement.
	ErrPasswordPolicy = errors.New("password does not meet policy")

	// ErrLoginRateLimited is returned when repeated failed logins trip the
	// per-identifier throttle.
	ErrLoginRateLimited = errors.New("login rate limited")

	// ErrRefreshRateLimited is returned when refresh attempts trip the
	// per-token throttle.
	ErrRefreshRateLimited = errors.New("refresh rate limited")

	// ErrEngineNotReady indicates the Engine was used before Build wired its
	// dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")

	// ErrStoreUnavailable wraps transport failures from the session store or
	// the user directory.
	ErrStoreUnavailable = errors.New("backing store unavailable")
)
