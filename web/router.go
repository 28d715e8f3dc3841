package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MrEthical07/formauth"
	"github.com/MrEthical07/formauth/middleware"
)

// Options customizes [NewRouter]. Zero values select the defaults noted on
// each field.
type Options struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Success defaults to JSON for script clients and a redirect to the
	// saved target for browsers.
	Success SuccessHandler

	// Failure defaults to JSON for script clients and a redirect to
	// Routes.FailureURL for browsers.
	Failure FailureHandler

	// Renderer defaults to PNGRenderer.
	Renderer ChallengeRenderer

	// Metrics is served at /metrics when set. It sits behind the guard
	// unless /metrics is listed in Routes.PermitAll.
	Metrics http.Handler

	// Routes mounts application routes behind the guard.
	Routes func(r chi.Router)
}

// ReadinessPath answers load balancer checks outside the guard.
const ReadinessPath = "/readyz"

// NewRouter assembles the login surface on a chi router.
//
// Middleware order:
//
//	RequestID → ClientIP → AccessLog → Recoverer → CSRF → ChallengeFilter → Guard
//
// ChallengeFilter runs before the login handler so a wrong code never
// reaches the credential store.
func NewRouter(engine *formauth.Engine, opts Options) (http.Handler, error) {
	if engine == nil {
		return nil, errors.New("engine required")
	}
	cfg := engine.Config()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	success := opts.Success
	if success == nil {
		success = NegotiatingSuccessHandler{
			JSON:     JSONSuccessHandler{Engine: engine, Logger: logger},
			Redirect: SavedRequestSuccessHandler{DefaultTargetURL: cfg.Routes.DefaultTargetURL},
		}
	}
	failure := opts.Failure
	if failure == nil {
		failure = NegotiatingFailureHandler{
			JSON:     JSONFailureHandler{},
			Redirect: RedirectFailureHandler{FailureURL: cfg.Routes.FailureURL},
		}
	}
	renderer := opts.Renderer
	if renderer == nil {
		renderer = PNGRenderer{NoiseLines: 12}
	}

	h := &handlers{
		engine:   engine,
		cfg:      cfg,
		success:  success,
		failure:  failure,
		renderer: renderer,
		logger:   logger,
	}

	guard, err := middleware.Guard(engine,
		middleware.WithEntryPoint(http.HandlerFunc(h.authenticationRequire)),
		middleware.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientIP)
	r.Use(middleware.AccessLog(logger))
	r.Use(chimw.Recoverer)
	if cfg.Security.CSRFProtection {
		r.Use(middleware.CSRF(cfg.Session.CookieSecure, logger))
	}
	r.Use(middleware.ChallengeFilter(engine, failure.OnFailure))
	r.Use(guard)

	r.Get(cfg.Routes.LoginPage, h.loginPage)
	r.Post(cfg.Routes.LoginProcessingURL, h.login)
	r.Get(cfg.Routes.EntryPoint, h.authenticationRequire)
	r.Post(cfg.Routes.LogoutURL, h.logout)

	throttle := middleware.NewAddressThrottle(cfg.Challenge.IssueRate, cfg.Challenge.IssueBurst)
	r.With(throttle.Middleware(logger)).Get(cfg.Routes.ChallengeURL, h.challengeImage)

	r.Get(cfg.Routes.DefaultTargetURL, h.index)
	r.Get("/me", h.me)
	if engine.BearerEnabled() {
		r.With(middleware.RequireBearer(engine)).Get("/api/me", h.me)
	}
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	if opts.Routes != nil {
		r.Group(opts.Routes)
	}

	root := chi.NewRouter()
	root.Get(ReadinessPath, h.ready)
	root.Mount("/", r)
	return root, nil
}
