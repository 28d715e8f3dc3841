package formauth

import "errors"

// Sentinels for every [FailureKind]. A [*Failure] unwraps to the sentinel of
// its kind, so callers match with errors.Is.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrAccountLocked      = errors.New("account locked")
	ErrAccountExpired     = errors.New("account expired")
	ErrCredentialsExpired = errors.New("credentials expired")
	ErrBadCredentials     = errors.New("bad credentials")
	ErrChallengeFailed    = errors.New("challenge failed")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrRateLimited        = errors.New("login rate limited")
)

var (
	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionCreationFailed = errors.New("session creation failed")
	ErrRememberMeDisabled    = errors.New("remember-me disabled")
	ErrChallengeDisabled     = errors.New("challenge disabled")
	ErrJWTDisabled           = errors.New("bearer tokens disabled")
	ErrEngineNotReady        = errors.New("engine not initialized")
)
