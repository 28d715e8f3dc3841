package security

import "time"

type PasswordReport struct {
	Algorithm   string
	Memory      uint32
	Time        uint32
	Parallelism uint8
	BcryptCost  int
}

// Report summarizes the security-relevant settings of an engine.
type Report struct {
	ProductionMode         bool
	SecureCookies          bool
	CSRFProtection         bool
	FailureDetailHidden    bool
	SessionLifetime        time.Duration
	SlidingExpiration      bool
	Password               PasswordReport
	ChallengeEnabled       bool
	ChallengeTTL           time.Duration
	RememberMeEnabled      bool
	RememberMeValidity     time.Duration
	RateLimitingActive     bool
	AddressThrottleActive  bool
	BearerTokensEnabled    bool
	BearerSigningAlgorithm string
	AccessTTL              time.Duration
	Warnings               []string
}

type ReportInput struct {
	ProductionMode        bool
	CookieSecure          bool
	CSRFProtection        bool
	HideFailureDetail     bool
	SessionLifetime       time.Duration
	SlidingExpiration     bool
	Password              PasswordReport
	ChallengeEnabled      bool
	ChallengeTTL          time.Duration
	ChallengeLength       int
	RememberMeEnabled     bool
	RememberMeValidity    time.Duration
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
	JWTEnabled            bool
	JWTSigningMethod      string
	AccessTTL             time.Duration
}

// BuildReport derives the report and its warnings from input.
func BuildReport(input ReportInput) Report {
	rateLimiting := input.MaxLoginAttempts > 0 &&
		input.LoginCooldownDuration > 0

	r := Report{
		ProductionMode:        input.ProductionMode,
		SecureCookies:         input.CookieSecure,
		CSRFProtection:        input.CSRFProtection,
		FailureDetailHidden:   input.HideFailureDetail,
		SessionLifetime:       input.SessionLifetime,
		SlidingExpiration:     input.SlidingExpiration,
		Password:              input.Password,
		ChallengeEnabled:      input.ChallengeEnabled,
		RememberMeEnabled:     input.RememberMeEnabled,
		RateLimitingActive:    rateLimiting,
		AddressThrottleActive: rateLimiting && input.EnableIPThrottle,
		BearerTokensEnabled:   input.JWTEnabled,
	}
	if input.ChallengeEnabled {
		r.ChallengeTTL = input.ChallengeTTL
	}
	if input.RememberMeEnabled {
		r.RememberMeValidity = input.RememberMeValidity
	}
	if input.JWTEnabled {
		r.BearerSigningAlgorithm = input.JWTSigningMethod
		r.AccessTTL = input.AccessTTL
	}

	if !input.CookieSecure {
		r.Warnings = append(r.Warnings, "session and remember-me cookies are sent without Secure")
	}
	if !input.CSRFProtection {
		r.Warnings = append(r.Warnings, "CSRF protection is disabled")
	}
	if !input.HideFailureDetail {
		r.Warnings = append(r.Warnings, "login failures reveal whether a username exists")
	}
	if input.ChallengeEnabled && input.ChallengeLength < 4 {
		r.Warnings = append(r.Warnings, "verification codes shorter than 4 digits")
	}
	if input.Password.Algorithm == "bcrypt" && input.Password.BcryptCost < 10 {
		r.Warnings = append(r.Warnings, "bcrypt cost below 10")
	}
	if input.RememberMeEnabled && input.RememberMeValidity > 30*24*time.Hour {
		r.Warnings = append(r.Warnings, "remember-me tokens live longer than 30 days")
	}
	return r
}
