package web

import (
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/MrEthical07/formauth"
	"github.com/MrEthical07/formauth/middleware"
)

const (
	UsernameParam = "username"
	PasswordParam = "password"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type handlers struct {
	engine   *formauth.Engine
	cfg      formauth.Config
	success  SuccessHandler
	failure  FailureHandler
	renderer ChallengeRenderer
	logger   *slog.Logger
}

// login processes the form submission. The challenge has already been
// checked by middleware.ChallengeFilter.
func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "bad_request", "Malformed form submission")
		return
	}

	res, err := h.engine.Login(r.Context(), formauth.LoginRequest{
		Username:   r.PostFormValue(UsernameParam),
		Password:   r.PostFormValue(PasswordParam),
		RememberMe: rememberRequested(r.PostFormValue(h.cfg.RememberMe.ParameterName)),
		SessionID:  middleware.CookieValue(r, h.cfg.Session.CookieName),
	})
	if err != nil {
		var f *formauth.Failure
		if !errors.As(err, &f) {
			f = &formauth.Failure{Kind: formauth.StoreUnavailable, Message: "Authentication service unavailable", Err: err}
		}
		h.failure.OnFailure(w, r, f)
		return
	}

	middleware.SetSessionCookie(w, h.cfg, res.SessionID)
	if res.RememberMe != nil {
		middleware.SetRememberMeCookie(w, h.cfg, res.RememberMe)
	}

	r = r.WithContext(withSessionID(r.Context(), res.SessionID))
	h.success.OnSuccess(w, r, res.Identity, res.SavedTarget)
}

func rememberRequested(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "yes", "1":
		return true
	default:
		return false
	}
}

// authenticationRequire decides how an unauthenticated request is
// answered: page requests go to the login page, anything else gets 401.
// It serves both as the guard's entry point and as a route of its own.
func (h *handlers) authenticationRequire(w http.ResponseWriter, r *http.Request) {
	target, ok := middleware.SavedTargetFromContext(r.Context())
	if !ok {
		if sid := middleware.CookieValue(r, h.cfg.Session.CookieName); sid != "" {
			if sess, err := h.engine.Session(r.Context(), sid); err == nil {
				target = sess.SavedTarget
			}
		}
	}

	if isPageTarget(target) {
		http.Redirect(w, r, h.cfg.Routes.LoginPage, http.StatusFound)
		return
	}
	middleware.WriteError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required, direct the user to the login page")
}

func isPageTarget(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return strings.HasSuffix(u.Path, ".html")
}

func (h *handlers) challengeImage(w http.ResponseWriter, r *http.Request) {
	if !h.engine.ChallengeEnabled() {
		http.NotFound(w, r)
		return
	}

	sid := middleware.CookieValue(r, h.cfg.Session.CookieName)
	code, bound, err := h.engine.IssueChallenge(r.Context(), sid)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "challenge issue failed", "operation", "challenge_issue", "error", err)
		middleware.WriteError(w, http.StatusServiceUnavailable, formauth.StoreUnavailable.String(), "Authentication service unavailable")
		return
	}
	if bound != sid {
		middleware.SetSessionCookie(w, h.cfg, bound)
	}

	w.Header().Set("Cache-Control", "no-store")
	if err := h.renderer.Render(w, code); err != nil {
		h.logger.WarnContext(r.Context(), "challenge render failed", "operation", "challenge_render", "error", err)
	}
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	sid := middleware.CookieValue(r, h.cfg.Session.CookieName)
	remember := middleware.CookieValue(r, h.cfg.RememberMe.CookieName)

	if err := h.engine.Logout(r.Context(), sid, remember); err != nil {
		h.logger.ErrorContext(r.Context(), "logout failed", "operation", "logout", "error", err)
		middleware.WriteError(w, http.StatusServiceUnavailable, formauth.StoreUnavailable.String(), "Authentication service unavailable")
		return
	}

	middleware.ClearCookie(w, h.cfg.Session.CookieName, h.cfg.Session.CookieSecure)
	middleware.ClearCookie(w, h.cfg.RememberMe.CookieName, h.cfg.Session.CookieSecure)
	http.Redirect(w, r, h.cfg.Routes.LoginPage+"?logout", http.StatusFound)
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	id, ok := formauth.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, id)
}

var loginErrors = map[string]string{
	formauth.ChallengeFailed.String():  "The verification code is missing, expired or wrong.",
	formauth.RateLimited.String():      "Too many failed attempts. Try again later.",
	formauth.StoreUnavailable.String(): "The sign-in service is unavailable. Try again shortly.",
}

func (h *handlers) loginPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	msg := ""
	if q.Has("error") {
		var ok bool
		if msg, ok = loginErrors[q.Get("error")]; !ok {
			msg = "Bad credentials."
		}
	}

	h.render(w, r, "login.html", map[string]any{
		"Action":          h.cfg.Routes.LoginProcessingURL,
		"CSRF":            middleware.CSRFToken(r),
		"Error":           msg,
		"LoggedOut":       q.Has("logout"),
		"Challenge":       h.engine.ChallengeEnabled(),
		"ChallengeParam":  h.cfg.Challenge.ParamName,
		"ChallengeURL":    h.cfg.Routes.ChallengeURL,
		"RememberMe":      h.engine.RememberMeEnabled(),
		"RememberMeParam": h.cfg.RememberMe.ParameterName,
	})
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	id, ok := formauth.IdentityFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, h.cfg.Routes.LoginPage, http.StatusFound)
		return
	}
	h.render(w, r, "index.html", map[string]any{
		"Username":  id.Username,
		"LogoutURL": h.cfg.Routes.LogoutURL,
		"CSRF":      middleware.CSRFToken(r),
	})
}

func (h *handlers) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		h.logger.ErrorContext(r.Context(), "template render failed", "template", name, "error", err)
	}
}

// ready reports 200 while the session store answers and 503 otherwise.
func (h *handlers) ready(w http.ResponseWriter, r *http.Request) {
	latency, err := h.engine.Ping(r.Context())
	if err != nil {
		h.logger.WarnContext(r.Context(), "readiness check failed", "error", err)
		middleware.WriteError(w, http.StatusServiceUnavailable, "store_unavailable", "Session store unavailable")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"status":           "ready",
		"redis_latency_ms": latency.Milliseconds(),
	})
}
