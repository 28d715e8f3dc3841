package formauth

import "fmt"

// FailureKind is the precise reason an authentication attempt failed.
type FailureKind uint8

const (
	UserNotFound FailureKind = iota + 1
	AccountDisabled
	AccountLocked
	AccountExpired
	CredentialsExpired
	BadCredentials
	ChallengeFailed
	TokenInvalid
	TokenExpired
	StoreUnavailable
	RateLimited
)

var failureKindCodes = [...]string{
	UserNotFound:       "user_not_found",
	AccountDisabled:    "account_disabled",
	AccountLocked:      "account_locked",
	AccountExpired:     "account_expired",
	CredentialsExpired: "credentials_expired",
	BadCredentials:     "bad_credentials",
	ChallengeFailed:    "challenge_failed",
	TokenInvalid:       "token_invalid",
	TokenExpired:       "token_expired",
	StoreUnavailable:   "store_unavailable",
	RateLimited:        "rate_limited",
}

// String returns the stable snake_case code used in logs, audit events and
// JSON responses.
func (k FailureKind) String() string {
	if k == 0 || int(k) >= len(failureKindCodes) {
		return "unknown"
	}
	return failureKindCodes[k]
}

// Sentinel returns the package-level error matching k.
func (k FailureKind) Sentinel() error {
	switch k {
	case UserNotFound:
		return ErrUserNotFound
	case AccountDisabled:
		return ErrAccountDisabled
	case AccountLocked:
		return ErrAccountLocked
	case AccountExpired:
		return ErrAccountExpired
	case CredentialsExpired:
		return ErrCredentialsExpired
	case BadCredentials:
		return ErrBadCredentials
	case ChallengeFailed:
		return ErrChallengeFailed
	case TokenInvalid:
		return ErrTokenInvalid
	case TokenExpired:
		return ErrTokenExpired
	case StoreUnavailable:
		return ErrStoreUnavailable
	case RateLimited:
		return ErrRateLimited
	default:
		return nil
	}
}

// concealable kinds collapse to "Bad credentials" when failure detail is
// hidden, so responses do not reveal which usernames exist.
func (k FailureKind) concealable() bool {
	switch k {
	case UserNotFound, BadCredentials, AccountDisabled, AccountLocked, AccountExpired, CredentialsExpired:
		return true
	default:
		return false
	}
}

var failureMessages = map[FailureKind]string{
	UserNotFound:       "User not found",
	AccountDisabled:    "Account is disabled",
	AccountLocked:      "Account is locked",
	AccountExpired:     "Account has expired",
	CredentialsExpired: "Credentials have expired",
	BadCredentials:     "Bad credentials",
	ChallengeFailed:    "Verification code is missing, expired or wrong",
	TokenInvalid:       "Remember-me token is invalid",
	TokenExpired:       "Remember-me token has expired",
	StoreUnavailable:   "Authentication service unavailable",
	RateLimited:        "Too many failed attempts, try again later",
}

// Failure is a typed authentication failure. Message is safe to show to the
// end user; Err, when set, is the internal cause and must not be rendered.
type Failure struct {
	Kind    FailureKind
	Message string
	Err     error

	concealed bool
}

func newFailure(kind FailureKind, hideDetail bool, cause error) *Failure {
	f := &Failure{Kind: kind, Message: failureMessages[kind], Err: cause}
	if hideDetail && kind.concealable() {
		f.Message = failureMessages[BadCredentials]
		f.concealed = true
	}
	return f
}

// Code is the code rendered to clients. It matches Message, so a concealed
// failure reports bad_credentials whatever its kind.
func (f *Failure) Code() string {
	if f.concealed {
		return BadCredentials.String()
	}
	return f.Kind.String()
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
	return f.Kind.String()
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (f *Failure) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := f.Kind.Sentinel(); s != nil {
		errs = append(errs, s)
	}
	if f.Err != nil {
		errs = append(errs, f.Err)
	}
	return errs
}
