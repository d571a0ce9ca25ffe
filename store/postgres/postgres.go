// Package postgres implements authcore.UserDirectory on PostgreSQL via
// pgx. Email uniqueness is enforced by a unique index on lower(email) and
// surfaces as authcore.ErrAlreadyExists.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eduportal/authcore"
)

// Schema creates the tables the directory needs. Applied by the server
// binary at startup when migration is requested.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	email           TEXT NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	role            TEXT NOT NULL,
	password_digest TEXT NOT NULL DEFAULT '',
	suspended       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_idx ON users (lower(email));

CREATE TABLE IF NOT EXISTS linked_identities (
	user_id       UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	provider      TEXT NOT NULL,
	subject_id    TEXT NOT NULL,
	access_token  TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NOT NULL DEFAULT '',
	expiry        TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (provider, subject_id)
);
CREATE INDEX IF NOT EXISTS linked_identities_user_idx ON linked_identities (user_id);
`

const uniqueViolation = "23505"

// Directory is a pgx-backed UserDirectory.
type Directory struct {
	pool *pgxpool.Pool
}

// New returns a Directory using pool.
func New(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

// Migrate applies Schema.
func (d *Directory) Migrate(ctx context.Context) error {
	if _, err := d.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const userColumns = "id, email, name, role, password_digest, suspended, created_at"

func scanUser(row pgx.Row) (authcore.User, error) {
	var u authcore.User
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &u.PasswordDigest, &u.Suspended, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return authcore.User{}, authcore.ErrUserNotFound
	}
	if err != nil {
		return authcore.User{}, err
	}
	u.Role = authcore.Role(role)
	return u, nil
}

func (d *Directory) FindByEmail(ctx context.Context, email string) (authcore.User, error) {
	row := d.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE lower(email) = lower($1)",
		strings.TrimSpace(email))
	return scanUser(row)
}

func (d *Directory) FindByID(ctx context.Context, id string) (authcore.User, error) {
	row := d.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id)
	return scanUser(row)
}

func (d *Directory) Create(ctx context.Context, in authcore.CreateUserInput) (authcore.User, error) {
	row := d.pool.QueryRow(ctx, `
		INSERT INTO users (email, name, role, password_digest)
		VALUES (lower($1), $2, $3, $4)
		RETURNING `+userColumns,
		strings.TrimSpace(in.Email), in.Name, string(in.Role), in.PasswordDigest)

	user, err := scanUser(row)
	if isUniqueViolation(err) {
		return authcore.User{}, authcore.ErrAlreadyExists
	}
	return user, err
}

func (d *Directory) UpdatePasswordDigest(ctx context.Context, userID, digest string) error {
	tag, err := d.pool.Exec(ctx,
		"UPDATE users SET password_digest = $2 WHERE id = $1", userID, digest)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

// SetSuspended toggles the suspension flag for administrative tooling.
func (d *Directory) SetSuspended(ctx context.Context, userID string, suspended bool) error {
	tag, err := d.pool.Exec(ctx,
		"UPDATE users SET suspended = $2 WHERE id = $1", userID, suspended)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

const identityColumns = "user_id, provider, subject_id, access_token, refresh_token, COALESCE(expiry, 'epoch'::timestamptz), created_at"

func scanIdentity(row pgx.Row) (authcore.LinkedIdentity, error) {
	var ident authcore.LinkedIdentity
	err := row.Scan(&ident.UserID, &ident.Provider, &ident.SubjectID,
		&ident.AccessToken, &ident.RefreshToken, &ident.Expiry, &ident.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return authcore.LinkedIdentity{}, authcore.ErrIdentityNotFound
	}
	return ident, err
}

func (d *Directory) FindIdentity(ctx context.Context, provider, subjectID string) (authcore.LinkedIdentity, error) {
	row := d.pool.QueryRow(ctx,
		"SELECT "+identityColumns+" FROM linked_identities WHERE provider = $1 AND subject_id = $2",
		provider, subjectID)
	return scanIdentity(row)
}

func (d *Directory) CreateIdentity(ctx context.Context, ident authcore.LinkedIdentity) error {
	var expiry *time.Time
	if !ident.Expiry.IsZero() {
		expiry = &ident.Expiry
	}
	_, err := d.pool.Exec(ctx, `
		INSERT INTO linked_identities (user_id, provider, subject_id, access_token, refresh_token, expiry)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ident.UserID, ident.Provider, ident.SubjectID, ident.AccessToken, ident.RefreshToken, expiry)
	if isUniqueViolation(err) {
		return authcore.ErrAlreadyExists
	}
	return err
}

func (d *Directory) UpdateIdentityTokens(ctx context.Context, provider, subjectID, accessToken, refreshToken string, expiry time.Time) error {
	var exp *time.Time
	if !expiry.IsZero() {
		exp = &expiry
	}
	tag, err := d.pool.Exec(ctx, `
		UPDATE linked_identities
		SET access_token = $3, refresh_token = $4, expiry = $5
		WHERE provider = $1 AND subject_id = $2`,
		provider, subjectID, accessToken, refreshToken, exp)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrIdentityNotFound
	}
	return nil
}

func (d *Directory) IdentitiesForUser(ctx context.Context, userID string) ([]authcore.LinkedIdentity, error) {
	rows, err := d.pool.Query(ctx,
		"SELECT "+identityColumns+" FROM linked_identities WHERE user_id = $1", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []authcore.LinkedIdentity
	for rows.Next() {
		ident, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ident)
	}
	return out, rows.Err()
}

func (d *Directory) DeleteIdentity(ctx context.Context, userID, provider string) error {
	tag, err := d.pool.Exec(ctx,
		"DELETE FROM linked_identities WHERE user_id = $1 AND provider = $2",
		userID, provider)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrIdentityNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
