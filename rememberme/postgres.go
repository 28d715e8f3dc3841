package rememberme

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/formauth/internal"
	"github.com/MrEthical07/formauth/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"
)

// PostgresStore keeps series in the persistent_logins table. Rotation runs
// in a transaction holding a row lock on the series.
type PostgresStore struct {
	pool     store.Pool
	validity time.Duration
	now      func() time.Time
}

// NewPostgresStore creates a [PostgresStore] over pool.
func NewPostgresStore(pool store.Pool, validity time.Duration) *PostgresStore {
	return &PostgresStore{pool: pool, validity: validity, now: time.Now}
}

// Issue inserts a new series for username.
func (s *PostgresStore) Issue(ctx context.Context, username string) (Token, error) {
	tok, err := newToken(username, s.now())
	if err != nil {
		return Token{}, err
	}
	digest := internal.HashTokenValue(tok.TokenValue)

	_, err = s.pool.Exec(ctx,
		`INSERT INTO persistent_logins (series, username, token_digest, last_used) VALUES ($1, $2, $3, $4)`,
		tok.Series, username, digest[:], tok.LastUsedAt,
	)
	if err != nil {
		return Token{}, unavailable("issue", err)
	}
	return tok, nil
}

// ValidateAndRotate locks the series row, compares tokenValue and writes
// the replacement in one transaction. A mismatch deletes every series of
// the user and returns [ErrTokenTheft].
func (s *PostgresStore) ValidateAndRotate(ctx context.Context, series, tokenValue string) (Token, error) {
	nextValue, err := internal.NewTokenValue()
	if err != nil {
		return Token{}, err
	}
	provided := internal.HashTokenValue(tokenValue)
	next := internal.HashTokenValue(nextValue)
	now := s.now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Token{}, unavailable("begin rotate", err)
	}

	var (
		username string
		digest   []byte
		lastUsed time.Time
	)
	err = tx.QueryRow(ctx,
		`SELECT username, token_digest, last_used FROM persistent_logins WHERE series = $1 FOR UPDATE`,
		series,
	).Scan(&username, &digest, &lastUsed)
	if err != nil {
		_ = tx.Rollback(ctx)
		if errors.Is(err, pgx.ErrNoRows) {
			return Token{}, ErrTokenNotFound
		}
		return Token{}, unavailable("load series", err)
	}

	var outcome error
	switch {
	case expired(lastUsed, now, s.validity):
		_, err = tx.Exec(ctx, `DELETE FROM persistent_logins WHERE series = $1`, series)
		outcome = ErrTokenExpired
	case subtle.ConstantTimeCompare(digest, provided[:]) != 1:
		_, err = tx.Exec(ctx, `DELETE FROM persistent_logins WHERE username = $1`, username)
		outcome = ErrTokenTheft
	default:
		_, err = tx.Exec(ctx,
			`UPDATE persistent_logins SET token_digest = $2, last_used = $3 WHERE series = $1`,
			series, next[:], now,
		)
	}
	if err != nil {
		_ = tx.Rollback(ctx)
		return Token{}, unavailable("rotate series", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Token{}, unavailable("commit rotate", err)
	}

	if outcome != nil {
		return Token{Series: series, Username: username}, outcome
	}
	return Token{
		Series:     series,
		TokenValue: nextValue,
		Username:   username,
		LastUsedAt: now,
	}, nil
}

// Revoke deletes series. Unknown series are ignored.
func (s *PostgresStore) Revoke(ctx context.Context, series string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM persistent_logins WHERE series = $1`, series); err != nil {
		return unavailable("revoke series", err)
	}
	return nil
}

// RevokeAllForUser deletes every series of username.
func (s *PostgresStore) RevokeAllForUser(ctx context.Context, username string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM persistent_logins WHERE username = $1`, username); err != nil {
		return unavailable("revoke user series", err)
	}
	return nil
}

// Reap deletes series whose last use is older than the validity window.
func (s *PostgresStore) Reap(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM persistent_logins WHERE last_used < $1`,
		s.now().Add(-s.validity),
	)
	if err != nil {
		return 0, unavailable("reap", err)
	}
	return tag.RowsAffected(), nil
}

func unavailable(operation string, err error) error {
	return oops.Code("REMEMBER_ME_STORE_FAILED").
		With("operation", operation).
		Wrap(fmt.Errorf("%w: %v", ErrStoreUnavailable, err))
}
