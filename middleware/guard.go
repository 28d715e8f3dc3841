package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MrEthical07/formauth"
	"github.com/gobwas/glob"
)

type savedTargetContextKey struct{}

// WithSavedTarget records the target saved for an unauthenticated request
// so the entry point can inspect it without reading the session again.
func WithSavedTarget(ctx context.Context, target string) context.Context {
	return context.WithValue(ctx, savedTargetContextKey{}, target)
}

func SavedTargetFromContext(ctx context.Context) (string, bool) {
	target, ok := ctx.Value(savedTargetContextKey{}).(string)
	return target, ok && target != ""
}

// PermitMatcher matches request paths against permit-all patterns. "*"
// stops at "/" and "**" crosses it.
type PermitMatcher struct {
	globs []glob.Glob
}

// NewPermitMatcher compiles patterns, failing on the first invalid one.
func NewPermitMatcher(patterns []string) (*PermitMatcher, error) {
	m := &PermitMatcher{globs: make([]glob.Glob, 0, len(patterns))}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, err
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// Match reports whether path matches any pattern. A nil matcher matches
// nothing.
func (m *PermitMatcher) Match(path string) bool {
	if m == nil {
		return false
	}
	for _, g := range m.globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// GuardOption customizes [Guard].
type GuardOption func(*guard)

// WithEntryPoint sets the handler invoked for unauthenticated requests. The
// default redirects to Routes.EntryPoint.
func WithEntryPoint(h http.Handler) GuardOption {
	return func(g *guard) { g.entry = h }
}

func WithLogger(logger *slog.Logger) GuardOption {
	return func(g *guard) { g.logger = logger }
}

type guard struct {
	engine *formauth.Engine
	cfg    formauth.Config
	permit *PermitMatcher
	entry  http.Handler
	logger *slog.Logger
}

// Guard protects every path not matched by Routes.PermitAll. A request is
// authenticated, in order, by its session cookie, a bearer token (when
// enabled) or its remember-me cookie. Anything else has its target saved
// in the session and is handed to the entry point.
func Guard(engine *formauth.Engine, opts ...GuardOption) (func(http.Handler) http.Handler, error) {
	if engine == nil {
		return nil, errors.New("engine required")
	}
	cfg := engine.Config()
	permit, err := NewPermitMatcher(cfg.Routes.PermitAll)
	if err != nil {
		return nil, err
	}

	g := &guard{
		engine: engine,
		cfg:    cfg,
		permit: permit,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.entry == nil {
		g.entry = http.RedirectHandler(cfg.Routes.EntryPoint, http.StatusFound)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.serve(next, w, r)
		})
	}, nil
}

func (g *guard) serve(next http.Handler, w http.ResponseWriter, r *http.Request) {
	if g.permit.Match(r.URL.Path) {
		next.ServeHTTP(w, r)
		return
	}

	ctx := r.Context()
	sessionID := CookieValue(r, g.cfg.Session.CookieName)

	if sessionID != "" {
		id, err := g.engine.SessionIdentity(ctx, sessionID)
		if err == nil {
			next.ServeHTTP(w, r.WithContext(formauth.WithIdentity(ctx, id)))
			return
		}
		if !errors.Is(err, formauth.ErrSessionNotFound) {
			g.unavailable(w, r, err)
			return
		}
	}

	if g.engine.BearerEnabled() {
		if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
			id, err := g.engine.ValidateAccessToken(ctx, token)
			if err != nil {
				writeFailure(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(formauth.WithIdentity(ctx, id)))
			return
		}
	}

	if g.engine.RememberMeEnabled() {
		if cookie := CookieValue(r, g.cfg.RememberMe.CookieName); cookie != "" {
			res, err := g.engine.AutoLogin(ctx, cookie, sessionID)
			if err == nil {
				SetSessionCookie(w, g.cfg, res.SessionID)
				SetRememberMeCookie(w, g.cfg, res.RememberMe)
				next.ServeHTTP(w, r.WithContext(formauth.WithIdentity(ctx, res.Identity)))
				return
			}
			if errors.Is(err, formauth.ErrStoreUnavailable) {
				// The series survives an outage; keep the browser on the
				// rotated value when the store already moved to it.
				if res != nil && res.RememberMe != nil {
					SetRememberMeCookie(w, g.cfg, res.RememberMe)
				}
				g.unavailable(w, r, err)
				return
			}
			ClearCookie(w, g.cfg.RememberMe.CookieName, g.cfg.Session.CookieSecure)
		}
	}

	if cacheable(r) {
		target := r.URL.RequestURI()
		sess, created, err := g.engine.SaveTarget(ctx, sessionID, target)
		if err != nil {
			g.unavailable(w, r, err)
			return
		}
		if created {
			SetSessionCookie(w, g.cfg, sess.SessionID)
		}
		r = r.WithContext(WithSavedTarget(ctx, target))
	}

	g.entry.ServeHTTP(w, r)
}

func (g *guard) unavailable(w http.ResponseWriter, r *http.Request, err error) {
	g.logger.ErrorContext(r.Context(), "authentication backend unavailable",
		"operation", "guard",
		"path", r.URL.Path,
		"error", err,
	)
	WriteError(w, http.StatusServiceUnavailable, formauth.StoreUnavailable.String(), "Authentication service unavailable")
}

// cacheable reports whether a request target is worth returning to after
// login: page navigations only.
func cacheable(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	return !strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

// writeFailure renders a bearer or remember-me rejection as JSON.
func writeFailure(w http.ResponseWriter, err error) {
	var f *formauth.Failure
	if errors.As(err, &f) {
		status := http.StatusUnauthorized
		if f.Kind == formauth.StoreUnavailable {
			status = http.StatusServiceUnavailable
		}
		WriteError(w, status, f.Code(), f.Message)
		return
	}
	WriteError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
}
