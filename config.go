package formauth

import (
	"errors"
	"math"
	"strings"
	"time"
)

// Config is the complete engine configuration. Field tags let the server
// binary load it from YAML; durations accept Go duration strings.
type Config struct {
	Session    SessionConfig    `koanf:"session"`
	Password   PasswordConfig   `koanf:"password"`
	RememberMe RememberMeConfig `koanf:"remember_me"`
	Challenge  ChallengeConfig  `koanf:"challenge"`
	Security   SecurityConfig   `koanf:"security"`
	Routes     RoutesConfig     `koanf:"routes"`
	Audit      AuditConfig      `koanf:"audit"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	JWT        JWTConfig        `koanf:"jwt"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls server-side sessions and their cookie.
type SessionConfig struct {
	RedisPrefix       string        `koanf:"redis_prefix"`
	Lifetime          time.Duration `koanf:"lifetime"`
	SlidingExpiration bool          `koanf:"sliding_expiration"`
	JitterEnabled     bool          `koanf:"jitter_enabled"`
	JitterRange       time.Duration `koanf:"jitter_range"`
	CookieName        string        `koanf:"cookie_name"`
	CookieSecure      bool          `koanf:"cookie_secure"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

const (
	PasswordArgon2id = "argon2id"
	PasswordBcrypt   = "bcrypt"
)

// PasswordConfig selects the hash used for new passwords and its cost.
type PasswordConfig struct {
	// Algorithm selects the hash written for new passwords. The other
	// algorithm is still accepted on verification.
	Algorithm      string `koanf:"algorithm"`
	Memory         uint32 `koanf:"memory"` // in KB
	Time           uint32 `koanf:"time"`
	Parallelism    uint8  `koanf:"parallelism"`
	SaltLength     uint32 `koanf:"salt_length"`
	KeyLength      uint32 `koanf:"key_length"`
	BcryptCost     int    `koanf:"bcrypt_cost"`
	MinLength      int    `koanf:"min_length"`
	UpgradeOnLogin bool   `koanf:"upgrade_on_login"`
}

/*
====================================
REMEMBER-ME CONFIG
====================================
*/

// RememberMeConfig controls persistent login tokens.
type RememberMeConfig struct {
	Enabled       bool          `koanf:"enabled"`
	TokenValidity time.Duration `koanf:"token_validity"`
	CookieName    string        `koanf:"cookie_name"`
	ParameterName string        `koanf:"parameter_name"`
	RedisPrefix   string        `koanf:"redis_prefix"`
}

/*
====================================
CHALLENGE CONFIG
====================================
*/

// ChallengeConfig controls the verification code shown on the login page.
type ChallengeConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Length      int           `koanf:"length"`
	TTL         time.Duration `koanf:"ttl"`
	ParamName   string        `koanf:"param_name"`
	RedisPrefix string        `koanf:"redis_prefix"`
	// IssueRate is the sustained number of codes a client address may
	// request per second; IssueBurst bounds short spikes.
	IssueRate  float64 `koanf:"issue_rate"`
	IssueBurst int     `koanf:"issue_burst"`
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig groups throttling and hardening switches.
type SecurityConfig struct {
	ProductionMode        bool          `koanf:"production_mode"`
	EnableIPThrottle      bool          `koanf:"enable_ip_throttle"`
	MaxLoginAttempts      int           `koanf:"max_login_attempts"`
	LoginCooldownDuration time.Duration `koanf:"login_cooldown_duration"`
	// HideFailureDetail renders every credential and account-state failure
	// as "Bad credentials". The precise kind still reaches logs, metrics and
	// audit.
	HideFailureDetail bool `koanf:"hide_failure_detail"`
	CSRFProtection    bool `koanf:"csrf_protection"`
	// RateLimitPrefix namespaces the failed-login counters in Redis.
	RateLimitPrefix string `koanf:"rate_limit_prefix"`
}

/*
====================================
ROUTES CONFIG
====================================
*/

// RoutesConfig names the login surface URLs and the paths open without
// authentication.
type RoutesConfig struct {
	LoginPage          string   `koanf:"login_page"`
	LoginProcessingURL string   `koanf:"login_processing_url"`
	EntryPoint         string   `koanf:"entry_point"`
	DefaultTargetURL   string   `koanf:"default_target_url"`
	FailureURL         string   `koanf:"failure_url"`
	LogoutURL          string   `koanf:"logout_url"`
	ChallengeURL       string   `koanf:"challenge_url"`
	PermitAll          []string `koanf:"permit_all"`
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `koanf:"enabled"`
	BufferSize int  `koanf:"buffer_size"`
	DropIfFull bool `koanf:"drop_if_full"`
	// FlushTimeout bounds how long Engine.Close waits for queued events.
	// Zero waits until the queue is empty.
	FlushTimeout time.Duration `koanf:"flush_timeout"`
}

// MetricsConfig controls in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool `koanf:"enabled"`
	EnableLatencyHistograms bool `koanf:"enable_latency_histograms"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig enables bearer tokens for API clients that cannot hold a
// session cookie.
type JWTConfig struct {
	Enabled       bool          `koanf:"enabled"`
	AccessTTL     time.Duration `koanf:"access_ttl"`
	SigningMethod string        `koanf:"signing_method"` // "ed25519" (default), "hs256" optional
	PrivateKey    []byte        `koanf:"private_key"`
	PublicKey     []byte        `koanf:"public_key"`
	Issuer        string        `koanf:"issuer"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a configuration suitable for development: remember-me
// and the challenge enabled, CSRF protection on, cookies not marked Secure.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			RedisPrefix:       "fs",
			Lifetime:          30 * time.Minute,
			SlidingExpiration: true,
			JitterEnabled:     false,
			JitterRange:       0,
			CookieName:        "FORMAUTH_SESSION",
			CookieSecure:      false,
		},
		Password: PasswordConfig{
			Algorithm:      PasswordArgon2id,
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			BcryptCost:     10,
			MinLength:      6,
			UpgradeOnLogin: true,
		},
		RememberMe: RememberMeConfig{
			Enabled:       true,
			TokenValidity: time.Hour,
			CookieName:    "remember-me",
			ParameterName: "remember-me",
			RedisPrefix:   "frm",
		},
		Challenge: ChallengeConfig{
			Enabled:     true,
			Length:      4,
			TTL:         60 * time.Second,
			ParamName:   "imageCode",
			RedisPrefix: "fch",
			IssueRate:   1,
			IssueBurst:  5,
		},
		Security: SecurityConfig{
			ProductionMode:        false,
			EnableIPThrottle:      true,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
			HideFailureDetail:     true,
			CSRFProtection:        true,
			RateLimitPrefix:       "fl",
		},
		Routes: RoutesConfig{
			LoginPage:          "/login.html",
			LoginProcessingURL: "/login",
			EntryPoint:         "/authentication/require",
			DefaultTargetURL:   "/index",
			FailureURL:         "/login.html?error",
			LogoutURL:          "/logout",
			ChallengeURL:       "/code/image",
			PermitAll: []string{
				"/authentication/require",
				"/login.html",
				"/login",
				"/code/image",
				"/static/**",
				"/favicon.ico",
			},
		},
		Audit: AuditConfig{
			Enabled:      false,
			BufferSize:   1024,
			DropIfFull:   true,
			FlushTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		JWT: JWTConfig{
			Enabled:       false,
			AccessTTL:     5 * time.Minute,
			SigningMethod: "ed25519",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.Routes.PermitAll != nil {
		out.Routes.PermitAll = append([]string(nil), cfg.Routes.PermitAll...)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	if c.Session.Lifetime <= 0 {
		return errors.New("Session Lifetime must be > 0")
	}
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix is required")
	}
	if strings.TrimSpace(c.Session.CookieName) == "" {
		return errors.New("Session CookieName is required")
	}
	if c.Session.JitterRange < 0 {
		return errors.New("Session JitterRange must be >= 0")
	}
	if c.Session.JitterRange > time.Duration((math.MaxInt64-1)/2) {
		return errors.New("Session JitterRange is too large")
	}
	if c.Session.JitterEnabled && c.Session.JitterRange <= 0 {
		return errors.New("Session JitterRange must be > 0 when JitterEnabled is true")
	}

	switch c.Password.Algorithm {
	case PasswordArgon2id, PasswordBcrypt:
	default:
		return errors.New("Password Algorithm must be 'argon2id' or 'bcrypt'")
	}
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31 {
		return errors.New("Password BcryptCost must be between 4 and 31")
	}
	if c.Password.MinLength < 1 || c.Password.MinLength > 72 {
		return errors.New("Password MinLength must be between 1 and 72")
	}

	if c.RememberMe.Enabled {
		if c.RememberMe.TokenValidity <= 0 {
			return errors.New("RememberMe TokenValidity must be > 0")
		}
		if strings.TrimSpace(c.RememberMe.CookieName) == "" {
			return errors.New("RememberMe CookieName is required")
		}
		if c.RememberMe.CookieName == c.Session.CookieName {
			return errors.New("RememberMe CookieName must differ from Session CookieName")
		}
		if strings.TrimSpace(c.RememberMe.ParameterName) == "" {
			return errors.New("RememberMe ParameterName is required")
		}
	}

	if c.Challenge.Enabled {
		if c.Challenge.Length < 4 || c.Challenge.Length > 10 {
			return errors.New("Challenge Length must be between 4 and 10")
		}
		if c.Challenge.TTL <= 0 {
			return errors.New("Challenge TTL must be > 0")
		}
		if strings.TrimSpace(c.Challenge.ParamName) == "" {
			return errors.New("Challenge ParamName is required")
		}
		if c.Challenge.IssueRate <= 0 || c.Challenge.IssueBurst <= 0 {
			return errors.New("Challenge IssueRate and IssueBurst must be > 0")
		}
	}

	if c.Security.MaxLoginAttempts <= 0 {
		return errors.New("MaxLoginAttempts must be > 0")
	}
	if c.Security.LoginCooldownDuration <= 0 {
		return errors.New("LoginCooldownDuration must be > 0")
	}
	if strings.TrimSpace(c.Security.RateLimitPrefix) == "" {
		return errors.New("Security RateLimitPrefix is required")
	}
	if c.Security.ProductionMode {
		if !c.Session.CookieSecure {
			return errors.New("ProductionMode requires Session CookieSecure")
		}
		if !c.Security.CSRFProtection {
			return errors.New("ProductionMode requires CSRFProtection")
		}
	}

	for name, path := range map[string]string{
		"LoginPage":          c.Routes.LoginPage,
		"LoginProcessingURL": c.Routes.LoginProcessingURL,
		"EntryPoint":         c.Routes.EntryPoint,
		"DefaultTargetURL":   c.Routes.DefaultTargetURL,
		"FailureURL":         c.Routes.FailureURL,
		"LogoutURL":          c.Routes.LogoutURL,
		"ChallengeURL":       c.Routes.ChallengeURL,
	} {
		if !strings.HasPrefix(path, "/") {
			return errors.New("Routes " + name + " must be an absolute path")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.FlushTimeout < 0 {
		return errors.New("Audit FlushTimeout must be >= 0")
	}

	if c.JWT.Enabled {
		if c.JWT.AccessTTL <= 0 {
			return errors.New("JWT AccessTTL must be > 0")
		}
		switch c.JWT.SigningMethod {
		case "ed25519":
			if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
				return errors.New("ed25519 requires PrivateKey and PublicKey")
			}
		case "hs256":
			if len(c.JWT.PrivateKey) < 32 {
				return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
			}
		default:
			return errors.New("unsupported JWT signing method")
		}
	}

	return nil
}
