package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/formauth"
	"github.com/MrEthical07/formauth/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"
)

const findUserSQL = `
SELECT u.username, u.password_hash, u.enabled, u.account_non_expired,
       u.account_non_locked, u.credentials_non_expired,
       COALESCE(array_agg(a.authority ORDER BY a.authority) FILTER (WHERE a.authority IS NOT NULL), '{}')
FROM users u
LEFT JOIN authorities a ON a.username = u.username
WHERE u.username = $1
GROUP BY u.username`

// Postgres reads users and their authorities from the users and
// authorities tables.
type Postgres struct {
	pool store.Pool
}

// NewPostgres wraps pool.
func NewPostgres(pool store.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// FindByUsername maps pgx.ErrNoRows to [formauth.ErrUserNotFound].
func (p *Postgres) FindByUsername(ctx context.Context, username string) (formauth.User, error) {
	var u formauth.User
	err := p.pool.QueryRow(ctx, findUserSQL, username).Scan(
		&u.Username,
		&u.PasswordHash,
		&u.Enabled,
		&u.AccountNonExpired,
		&u.AccountNonLocked,
		&u.CredentialsNonExpired,
		&u.Authorities,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return formauth.User{}, formauth.ErrUserNotFound
		}
		return formauth.User{}, storeFailure("find user", err)
	}
	return u, nil
}

func (p *Postgres) UpdatePasswordHash(ctx context.Context, username, hash string) error {
	tag, err := p.pool.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE username = $1`, username, hash)
	if err != nil {
		return storeFailure("update password hash", err)
	}
	if tag.RowsAffected() == 0 {
		return formauth.ErrUserNotFound
	}
	return nil
}

// Create inserts u and its authorities in one transaction.
func (p *Postgres) Create(ctx context.Context, u formauth.User) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return storeFailure("begin create user", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO users (username, password_hash, enabled, account_non_expired, account_non_locked, credentials_non_expired)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.Username, u.PasswordHash, u.Enabled, u.AccountNonExpired, u.AccountNonLocked, u.CredentialsNonExpired,
	)
	if err != nil {
		_ = tx.Rollback(ctx)
		return storeFailure("insert user", err)
	}
	for _, a := range u.Authorities {
		if _, err := tx.Exec(ctx, `INSERT INTO authorities (username, authority) VALUES ($1, $2)`, u.Username, a); err != nil {
			_ = tx.Rollback(ctx)
			return storeFailure("insert authority", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return storeFailure("commit create user", err)
	}
	return nil
}

// SetEnabled flips the enabled flag of username.
func (p *Postgres) SetEnabled(ctx context.Context, username string, enabled bool) error {
	tag, err := p.pool.Exec(ctx, `UPDATE users SET enabled = $2 WHERE username = $1`, username, enabled)
	if err != nil {
		return storeFailure("set enabled", err)
	}
	if tag.RowsAffected() == 0 {
		return formauth.ErrUserNotFound
	}
	return nil
}

func storeFailure(operation string, err error) error {
	return oops.Code("CREDENTIAL_STORE_FAILED").
		With("operation", operation).
		Wrap(fmt.Errorf("credential store: %v", err))
}
