package formauth

import (
	"context"
	"strings"
	"time"

	"github.com/MrEthical07/formauth/rememberme"
)

// User is an immutable snapshot of an account as returned by a
// [CredentialStore]. PasswordHash never leaves the process through JSON.
type User struct {
	Username              string   `json:"username"`
	PasswordHash          string   `json:"-"`
	Authorities           []string `json:"authorities"`
	AccountNonExpired     bool     `json:"account_non_expired"`
	AccountNonLocked      bool     `json:"account_non_locked"`
	CredentialsNonExpired bool     `json:"credentials_non_expired"`
	Enabled               bool     `json:"enabled"`
}

// Identity is the authenticated principal attached to a session.
type Identity struct {
	Username        string    `json:"username"`
	Authorities     []string  `json:"authorities"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
}

// HasAuthority reports whether the identity carries the named authority.
func (i *Identity) HasAuthority(name string) bool {
	if i == nil {
		return false
	}
	for _, a := range i.Authorities {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

// AuthenticationRequest carries one credential submission.
type AuthenticationRequest struct {
	Username      string
	RawPassword   string
	ClientAddress string
	SessionID     string
}

// Outcome is the result of [Engine.Authenticate]. Exactly one of Identity
// and Failure is set.
type Outcome struct {
	Identity *Identity
	Failure  *Failure
}

// Succeeded reports whether the outcome carries an identity.
func (o Outcome) Succeeded() bool {
	return o.Identity != nil && o.Failure == nil
}

// CredentialStore resolves usernames to user records. FindByUsername
// returns an error matching [ErrUserNotFound] for unknown users; any other
// error is treated as a store outage.
type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (User, error)
}

// PasswordUpgrader is an optional [CredentialStore] capability used to
// persist re-hashed passwords after a successful login.
type PasswordUpgrader interface {
	UpdatePasswordHash(ctx context.Context, username, hash string) error
}

// PasswordHasher hashes and verifies passwords. Verify returns false with a
// nil error on mismatch.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// upgradeChecker is implemented by hashers that can tell when a stored hash
// uses outdated parameters or a legacy algorithm.
type upgradeChecker interface {
	NeedsUpgrade(encodedHash string) (bool, error)
}

// RememberMeStore persists rotating remember-me tokens.
type RememberMeStore interface {
	Issue(ctx context.Context, username string) (rememberme.Token, error)
	ValidateAndRotate(ctx context.Context, series, tokenValue string) (rememberme.Token, error)
	Revoke(ctx context.Context, series string) error
	RevokeAllForUser(ctx context.Context, username string) error
}

// LoginRequest is an interactive form login.
type LoginRequest struct {
	Username   string
	Password   string
	RememberMe bool

	// SessionID is the caller's current (possibly anonymous) session. Its
	// saved target survives the identifier rotation performed on success.
	SessionID string
}

// LoginResult is returned by successful [Engine.Login] and [Engine.AutoLogin]
// calls. AutoLogin also returns one holding only RememberMe when a backend
// failed after the token was rotated.
type LoginResult struct {
	Identity    *Identity
	SessionID   string
	SavedTarget string

	// RememberMe is set when a token was issued or rotated; the caller must
	// write RememberMe.CookieValue() back to the browser.
	RememberMe *rememberme.Token
}
