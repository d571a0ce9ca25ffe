package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eduportal/authcore"
)

func TestCreateAndLookup(t *testing.T) {
	d := New()
	ctx := context.Background()

	user, err := d.Create(ctx, authcore.CreateUserInput{
		Email: "Mixed@School.EDU", Name: "M", Role: authcore.RoleStudent, PasswordDigest: "aa:bb",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if user.Email != "mixed@school.edu" {
		t.Fatalf("email = %q, want normalized", user.Email)
	}

	byEmail, err := d.FindByEmail(ctx, "MIXED@school.edu")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if byEmail.ID != user.ID {
		t.Fatal("lookup returned a different user")
	}

	if _, err := d.FindByID(ctx, "missing"); !errors.Is(err, authcore.ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestCreateDuplicateEmail(t *testing.T) {
	d := New()
	ctx := context.Background()

	if _, err := d.Create(ctx, authcore.CreateUserInput{Email: "a@school.edu"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := d.Create(ctx, authcore.CreateUserInput{Email: "A@SCHOOL.EDU"}); !errors.Is(err, authcore.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestIdentityLifecycle(t *testing.T) {
	d := New()
	ctx := context.Background()

	user, err := d.Create(ctx, authcore.CreateUserInput{Email: "a@school.edu"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	ident := authcore.LinkedIdentity{
		UserID: user.ID, Provider: "google", SubjectID: "g-1", AccessToken: "at",
	}
	if err := d.CreateIdentity(ctx, ident); err != nil {
		t.Fatalf("CreateIdentity: %v", err)
	}
	if err := d.CreateIdentity(ctx, ident); !errors.Is(err, authcore.ErrAlreadyExists) {
		t.Fatalf("duplicate: err = %v, want ErrAlreadyExists", err)
	}

	if err := d.UpdateIdentityTokens(ctx, "google", "g-1", "at2", "rt2", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("UpdateIdentityTokens: %v", err)
	}
	got, err := d.FindIdentity(ctx, "google", "g-1")
	if err != nil {
		t.Fatalf("FindIdentity: %v", err)
	}
	if got.AccessToken != "at2" || got.RefreshToken != "rt2" {
		t.Fatalf("tokens not updated: %+v", got)
	}

	idents, err := d.IdentitiesForUser(ctx, user.ID)
	if err != nil || len(idents) != 1 {
		t.Fatalf("IdentitiesForUser: %v, n=%d", err, len(idents))
	}

	if err := d.DeleteIdentity(ctx, user.ID, "google"); err != nil {
		t.Fatalf("DeleteIdentity: %v", err)
	}
	if err := d.DeleteIdentity(ctx, user.ID, "google"); !errors.Is(err, authcore.ErrIdentityNotFound) {
		t.Fatalf("second delete: err = %v, want ErrIdentityNotFound", err)
	}
}

func TestSetSuspended(t *testing.T) {
	d := New()
	ctx := context.Background()

	user, err := d.Create(ctx, authcore.CreateUserInput{Email: "a@school.edu"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := d.SetSuspended(ctx, user.ID, true); err != nil {
		t.Fatalf("SetSuspended: %v", err)
	}
	got, err := d.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if !got.Suspended {
		t.Fatal("suspension not persisted")
	}
}
