package formauth

import (
	"errors"
	"log/slog"

	"github.com/MrEthical07/formauth/challenge"
	"github.com/MrEthical07/formauth/internal/rate"
	"github.com/MrEthical07/formauth/jwt"
	"github.com/MrEthical07/formauth/password"
	"github.com/MrEthical07/formauth/rememberme"
	"github.com/MrEthical07/formauth/session"
	"github.com/redis/go-redis/v9"
)

// timingProbe is hashed once at build time. Unknown usernames are verified
// against it so their response time matches that of a wrong password.
const timingDummy = "formauth-unknown-user-dummy"

// Builder assembles an [Engine]. A Builder can be used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	credentials CredentialStore
	hasher      PasswordHasher
	rememberMe  RememberMeStore
	auditSink   AuditSink
	logger      *slog.Logger

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration. cfg is copied and validated by
// [Builder.Build].
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing sessions, challenges, login throttling
// and, unless overridden, remember-me tokens.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets where users are looked up. It is required.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithPasswordHasher replaces the hasher derived from Config.Password.
func (b *Builder) WithPasswordHasher(h PasswordHasher) *Builder {
	b.hasher = h
	return b
}

// WithRememberMeStore replaces the default Redis-backed token store.
func (b *Builder) WithRememberMeStore(store RememberMeStore) *Builder {
	b.rememberMe = store
	return b
}

// WithAuditSink sets the destination for audit events. It only takes
// effect with Audit.Enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled overrides Config.Metrics.Enabled.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms overrides Config.Metrics.EnableLatencyHistograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every collaborator.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{
		config:      cloneConfig(cfg),
		logger:      logger.With("component", "formauth"),
		credentials: b.credentials,
	}

	engine.sessionStore = session.NewStore(
		b.redis,
		cfg.Session.RedisPrefix,
		cfg.Session.SlidingExpiration,
		cfg.Session.JitterEnabled,
		cfg.Session.JitterRange,
	)
	engine.rateLimiter = rate.New(b.redis, rate.Config{
		EnableIPThrottle:      cfg.Security.EnableIPThrottle,
		MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
		LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
		Prefix:                cfg.Security.RateLimitPrefix,
	})
	if cfg.Challenge.Enabled {
		engine.challengeStore = challenge.NewStore(b.redis, cfg.Challenge.RedisPrefix, cfg.Challenge.Length, cfg.Challenge.TTL)
	}
	if cfg.RememberMe.Enabled {
		engine.rememberMe = b.rememberMe
		if engine.rememberMe == nil {
			engine.rememberMe = rememberme.NewRedisStore(b.redis, cfg.RememberMe.RedisPrefix, cfg.RememberMe.TokenValidity)
		}
	}
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink, engine.logger.With("subsystem", "audit"))
	engine.metrics = NewMetrics(cfg.Metrics)

	hasher := b.hasher
	if hasher == nil {
		h, err := NewPasswordHasher(cfg.Password)
		if err != nil {
			return nil, err
		}
		hasher = h
	}
	engine.hasher = hasher

	dummy, err := hasher.Hash(timingDummy)
	if err != nil {
		return nil, err
	}
	engine.dummyHash = dummy

	if cfg.JWT.Enabled {
		jm, err := jwt.NewManager(jwt.Config{
			AccessTTL:     cfg.JWT.AccessTTL,
			SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
			PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
			PublicKey:     cloneBytes(cfg.JWT.PublicKey),
			Issuer:        cfg.JWT.Issuer,
		})
		if err != nil {
			return nil, err
		}
		engine.jwtManager = jm
	}

	b.built = true

	return engine, nil
}

// NewPasswordHasher returns the hasher the engine builds from cfg. It
// writes with the configured algorithm and keeps accepting the other one,
// so stored hashes migrate on login.
func NewPasswordHasher(cfg PasswordConfig) (*password.Delegating, error) {
	argon, err := password.NewArgon2(password.Config{
		Memory:           cfg.Memory,
		Time:             cfg.Time,
		Parallelism:      cfg.Parallelism,
		SaltLength:       cfg.SaltLength,
		KeyLength:        cfg.KeyLength,
		MinPasswordBytes: cfg.MinLength,
	})
	if err != nil {
		return nil, err
	}
	bc, err := password.NewBcrypt(cfg.BcryptCost, cfg.MinLength)
	if err != nil {
		return nil, err
	}

	if cfg.Algorithm == PasswordBcrypt {
		return password.NewDelegating(bc, argon), nil
	}
	return password.NewDelegating(argon, bc), nil
}
