package authcore

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEngine(t, nil, nil)
	ctx := context.Background()
	registerUser(t, env, "t@school.edu", "OldPassw0rd!", RoleTeacher)
	pair := loginPair(t, env, "t@school.edu", "OldPassw0rd!")

	token, err := env.engine.RequestPasswordReset(ctx, "t@school.edu")
	if err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}

	if err := env.engine.ResetPassword(ctx, token, "NewPassw0rd!"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	// All prior sessions are revoked by a reset.
	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("session survived reset: err = %v", err)
	}

	if _, err := env.engine.Login(ctx, "t@school.edu", "OldPassw0rd!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still works: err = %v", err)
	}
	if _, err := env.engine.Login(ctx, "t@school.edu", "NewPassw0rd!"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestPasswordResetUnknownEmailGetsDecoy(t *testing.T) {
	env := newTestEngine(t, nil, nil)
	ctx := context.Background()
	registerUser(t, env, "t@school.edu", "Passw0rd!", RoleTeacher)

	real, err := env.engine.RequestPasswordReset(ctx, "t@school.edu")
	if err != nil {
		t.Fatalf("known email: %v", err)
	}
	decoy, err := env.engine.RequestPasswordReset(ctx, "nobody@school.edu")
	if err != nil {
		t.Fatalf("unknown email: %v", err)
	}

	// Same shape either way: three JWT segments.
	if strings.Count(real, ".") != 2 || strings.Count(decoy, ".") != 2 {
		t.Fatal("token shapes differ between known and unknown email")
	}

	// Redeeming the decoy fails like any bad token.
	if err := env.engine.ResetPassword(ctx, decoy, "NewPassw0rd!"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("decoy redeemed: err = %v, want ErrTokenInvalid", err)
	}
}

func TestResetPasswordRejectsBadTokens(t *testing.T) {
	env := newTestEngine(t, nil, nil)
	ctx := context.Background()
	registerUser(t, env, "t@school.edu", "Passw0rd!", RoleTeacher)

	if err := env.engine.ResetPassword(ctx, "garbage", "NewPassw0rd!"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("garbage: err = %v, want ErrTokenInvalid", err)
	}

	// An access token is not a reset token.
	pair := loginPair(t, env, "t@school.edu", "Passw0rd!")
	if err := env.engine.ResetPassword(ctx, pair.AccessToken, "NewPassw0rd!"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("access token: err = %v, want ErrTokenInvalid", err)
	}
}

func TestResetTokenIsNotAnAccessToken(t *testing.T) {
	env := newTestEngine(t, nil, nil)
	ctx := context.Background()
	registerUser(t, env, "t@school.edu", "Passw0rd!", RoleTeacher)

	token, err := env.engine.RequestPasswordReset(ctx, "t@school.edu")
	if err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	if _, err := env.engine.VerifyAccess(ctx, token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("reset token verified as access: err = %v", err)
	}
}
