package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterThenLogin(t *testing.T) {
	env := newTestEngine(t, nil, nil)
	ctx := context.Background()

	user, err := env.engine.Register(ctx, "S@School.edu", "Passw0rd!", "Sam Student", RoleStudent)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "s@school.edu" {
		t.Fatalf("email = %q, want normalized s@school.edu", user.Email)
	}
	if user.ID == "" {
		t.Fatal("empty user ID")
	}

	if _, err := env.engine.Login(ctx, "s@school.edu", "Passw0rd!"); err != nil {
		t.Fatalf("Login: %v", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEngine(t, nil, nil)
	ctx := context.Background()
	registerUser(t, env, "t@school.edu", "Passw0rd!", RoleTeacher)

	// Case difference does not dodge the uniqueness rule.
	if _, err := env.engine.Register(ctx, "T@SCHOOL.EDU", "Other0Pass!", "Other", RoleStudent); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestRegisterRejectsAdminSelfService(t *testing.T) {
	env := newTestEngine(t, nil, nil)

	if _, err := env.engine.Register(context.Background(), "a@school.edu", "Passw0rd!", "A", RoleAdmin); !errors.Is(err, ErrRoleInvalid) {
		t.Fatalf("err = %v, want ErrRoleInvalid", err)
	}
	if _, err := env.engine.Register(context.Background(), "a@school.edu", "Passw0rd!", "A", Role("janitor")); !errors.Is(err, ErrRoleInvalid) {
		t.Fatalf("made-up role: err = %v, want ErrRoleInvalid", err)
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	env := newTestEngine(t, nil, nil)

	if _, err := env.engine.Register(context.Background(), "s@school.edu", "short", "S", RoleStudent); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("err = %v, want ErrPasswordPolicy", err)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEngine(t, nil, nil)
	ctx := context.Background()
	user := registerUser(t, env, "t@school.edu", "OldPassw0rd!", RoleTeacher)

	if err := env.engine.ChangePassword(ctx, user.ID, "OldPassw0rd!", "NewPassw0rd!"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, err := env.engine.Login(ctx, "t@school.edu", "OldPassw0rd!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still works: err = %v", err)
	}
	if _, err := env.engine.Login(ctx, "t@school.edu", "NewPassw0rd!"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	env := newTestEngine(t, nil, nil)
	ctx := context.Background()
	user := registerUser(t, env, "t@school.edu", "Passw0rd!", RoleTeacher)

	if err := env.engine.ChangePassword(ctx, user.ID, "not-the-password", "NewPassw0rd!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestChangePasswordKeepsSessions(t *testing.T) {
	env := newTestEngine(t, nil, nil)
	ctx := context.Background()
	user := registerUser(t, env, "t@school.edu", "OldPassw0rd!", RoleTeacher)
	pair := loginPair(t, env, "t@school.edu", "OldPassw0rd!")

	if err := env.engine.ChangePassword(ctx, user.ID, "OldPassw0rd!", "NewPassw0rd!"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	// A voluntary change does not evict live sessions.
	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Refresh after change: %v", err)
	}
}

func TestChangePasswordOAuthOnlyAccount(t *testing.T) {
	env := newTestEngine(t, nil, nil)
	ctx := context.Background()

	user, err := env.directory.Create(ctx, CreateUserInput{
		Email: "sso@school.edu", Role: RoleStudent,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := env.engine.ChangePassword(ctx, user.ID, "", "NewPassw0rd!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}
