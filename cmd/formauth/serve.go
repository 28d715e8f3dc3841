package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/MrEthical07/formauth"
	"github.com/MrEthical07/formauth/credentials"
	"github.com/MrEthical07/formauth/internal/logging"
	"github.com/MrEthical07/formauth/internal/store"
	otelexport "github.com/MrEthical07/formauth/metrics/export/otel"
	promexport "github.com/MrEthical07/formauth/metrics/export/prometheus"
	"github.com/MrEthical07/formauth/rememberme"
	"github.com/MrEthical07/formauth/web"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the form login HTTP server. With --dev it runs against an
in-process Redis and an in-memory user bob/123456, so no external services
are needed.`,
		RunE: runServe,
	}

	defaults := defaultSettings()
	f := cmd.Flags()
	f.String("addr", defaults.Addr, "listen address")
	f.Bool("dev", false, "use in-process Redis and a seeded in-memory user")
	f.String("remember-me-store", defaults.RememberMeStore, "remember-me token store: redis, postgres or memory")
	f.Duration("shutdown-timeout", defaults.ShutdownTimeout, "graceful shutdown timeout")
	f.Duration("reap-interval", defaults.ReapInterval, "how often expired remember-me series are purged from the memory and postgres stores; 0 disables")
	f.String("jwt-private-key-file", "", "signing key for bearer tokens")
	f.String("jwt-public-key-file", "", "verification key for ed25519 bearer tokens")
	f.Bool("cookie-secure", defaults.Auth.Session.CookieSecure, "mark cookies Secure")
	f.Bool("csrf", defaults.Auth.Security.CSRFProtection, "require CSRF tokens on state-changing requests")
	f.Bool("challenge", defaults.Auth.Challenge.Enabled, "require a verification code on login")
	f.Bool("remember-me", defaults.Auth.RememberMe.Enabled, "offer remember-me login")
	f.Bool("production", defaults.Auth.Security.ProductionMode, "enforce production settings")
	f.Bool("metrics", defaults.Auth.Metrics.Enabled, "collect metrics and serve /metrics")
	f.Bool("audit", defaults.Auth.Audit.Enabled, "log audit events")
	f.Bool("jwt", defaults.Auth.JWT.Enabled, "issue bearer tokens to JSON clients")
	f.Duration("session-lifetime", defaults.Auth.Session.Lifetime, "session lifetime")

	return cmd
}

// deps are the external collaborators of a running server.
type deps struct {
	redis      redis.UniversalClient
	users      formauth.CredentialStore
	rememberMe formauth.RememberMeStore
	cleanup    []func()
}

func (d *deps) close() {
	for i := len(d.cleanup) - 1; i >= 0; i-- {
		d.cleanup[i]()
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	logger := logging.Setup("formauth", version, s.LogFormat, s.LogLevel, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := openDeps(ctx, s, logger)
	if err != nil {
		logging.LogError(ctx, logger, "startup failed", err)
		return err
	}
	defer d.close()

	b := formauth.New().
		WithConfig(s.Auth).
		WithRedis(d.redis).
		WithCredentialStore(d.users).
		WithLogger(logger)
	if d.rememberMe != nil {
		b = b.WithRememberMeStore(d.rememberMe)
	}
	if s.Auth.Audit.Enabled {
		b = b.WithAuditSink(formauth.SlogSink{Logger: logger.With("component", "audit")})
	}
	engine, err := b.Build()
	if err != nil {
		return oops.Code("ENGINE_BUILD_FAILED").Wrapf(err, "build engine")
	}
	defer func() {
		engine.Close()
		for event, n := range engine.AuditDroppedByEvent() {
			logger.Warn("audit events dropped", "event", event, "count", n)
		}
	}()

	report := engine.SecurityReport()
	logger.Info("security posture",
		"production", report.ProductionMode,
		"csrf", report.CSRFProtection,
		"challenge", report.ChallengeEnabled,
		"remember_me", report.RememberMeEnabled,
		"bearer", report.BearerTokensEnabled,
	)
	for _, w := range report.Warnings {
		logger.Warn("security warning", "detail", w)
	}

	if r, ok := d.rememberMe.(rememberme.Reaper); ok && s.ReapInterval > 0 {
		go rememberme.RunReaper(ctx, r, s.ReapInterval, logger.With("component", "remember_me_reaper"))
	}

	opts := web.Options{Logger: logger}
	if s.Auth.Metrics.Enabled {
		opts.Metrics = promexport.NewHandler(engine)

		exp, err := otelexport.NewExporter(otel.GetMeterProvider().Meter("github.com/MrEthical07/formauth"), engine)
		if err != nil {
			return oops.Code("METRICS_INIT_FAILED").Wrapf(err, "register otel metrics")
		}
		defer func() { _ = exp.Close() }()
	}

	router, err := web.NewRouter(engine, opts)
	if err != nil {
		return oops.Code("ROUTER_INIT_FAILED").Wrapf(err, "build router")
	}

	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", s.Addr, "dev", s.Dev)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return oops.Code("SERVER_FAILED").Wrapf(err, "listen")
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return oops.Code("SHUTDOWN_FAILED").Wrapf(err, "shutdown")
	}
	return nil
}

func openDeps(ctx context.Context, s settings, logger *slog.Logger) (*deps, error) {
	d := &deps{}
	ok := false
	defer func() {
		if !ok {
			d.close()
		}
	}()

	client, closeRedis, err := openRedis(ctx, s, logger)
	if err != nil {
		return nil, err
	}
	d.redis = client
	d.cleanup = append(d.cleanup, closeRedis)

	var pool store.Pool
	if s.Dev {
		users, err := devUsers(s.Auth.Password)
		if err != nil {
			return nil, err
		}
		d.users = users
		logger.Warn("serving in-memory dev user", "username", "bob")
	} else {
		if s.DatabaseURL == "" {
			return nil, oops.Code("CONFIG_INVALID").Errorf("database_url or DATABASE_URL is required without --dev")
		}
		p, err := store.Open(ctx, s.DatabaseURL)
		if err != nil {
			return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
		}
		d.cleanup = append(d.cleanup, p.Close)
		pool = p
		d.users = credentials.NewPostgres(p)
	}

	switch s.RememberMeStore {
	case rememberMePostgres:
		if pool == nil {
			return nil, oops.Code("CONFIG_INVALID").Errorf("remember_me_store postgres needs a database")
		}
		d.rememberMe = rememberme.NewPostgresStore(pool, s.Auth.RememberMe.TokenValidity)
	case rememberMeMemory:
		d.rememberMe = rememberme.NewMemoryStore(s.Auth.RememberMe.TokenValidity)
	}

	ok = true
	return d, nil
}

// openRedis connects to s.RedisAddr, or starts an in-process server when
// running with --dev and no address.
func openRedis(ctx context.Context, s settings, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	if s.RedisAddr == "" {
		if !s.Dev {
			return nil, nil, oops.Code("CONFIG_INVALID").Errorf("redis_addr or REDIS_ADDR is required without --dev")
		}
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, oops.Code("REDIS_CONNECT_FAILED").With("operation", "start miniredis").Wrap(err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		logger.Warn("using in-process redis", "addr", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{s.RedisAddr}})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", s.RedisAddr).Wrap(err)
	}
	return client, func() { _ = client.Close() }, nil
}

func devUsers(cfg formauth.PasswordConfig) (*credentials.Memory, error) {
	hasher, err := formauth.NewPasswordHasher(cfg)
	if err != nil {
		return nil, err
	}
	hash, err := hasher.Hash("123456")
	if err != nil {
		return nil, err
	}
	return credentials.NewMemory(formauth.User{
		Username:              "bob",
		PasswordHash:          hash,
		Authorities:           []string{"ROLE_USER"},
		Enabled:               true,
		AccountNonExpired:     true,
		AccountNonLocked:      true,
		CredentialsNonExpired: true,
	}), nil
}
