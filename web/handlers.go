package web

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/formauth"
	"github.com/MrEthical07/formauth/middleware"
)

// SuccessHandler completes a successful login. savedTarget is the URL the
// browser asked for before it was sent to the login page, or "".
type SuccessHandler interface {
	OnSuccess(w http.ResponseWriter, r *http.Request, id *formauth.Identity, savedTarget string)
}

// FailureHandler renders a failed login or challenge check.
type FailureHandler interface {
	OnFailure(w http.ResponseWriter, r *http.Request, f *formauth.Failure)
}

type sessionIDContextKey struct{}

func withSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDContextKey{}, sessionID)
}

func sessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDContextKey{}).(string)
	return id
}

// SavedRequestSuccessHandler redirects to the saved target, or to
// DefaultTargetURL when nothing was saved. Only same-origin paths are
// honored.
type SavedRequestSuccessHandler struct {
	DefaultTargetURL string
}

func (h SavedRequestSuccessHandler) OnSuccess(w http.ResponseWriter, r *http.Request, _ *formauth.Identity, savedTarget string) {
	target := h.DefaultTargetURL
	if localPath(savedTarget) {
		target = savedTarget
	}
	if target == "" {
		target = "/"
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// localPath rejects absolute and scheme-relative URLs.
func localPath(target string) bool {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return false
	}
	u, err := url.Parse(target)
	return err == nil && u.Scheme == "" && u.Host == ""
}

// LoginResponse is the JSON body written by [JSONSuccessHandler].
type LoginResponse struct {
	Status          string    `json:"status"`
	Username        string    `json:"username"`
	Authorities     []string  `json:"authorities"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
	Target          string    `json:"target,omitempty"`

	AccessToken string `json:"access_token,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
}

// JSONSuccessHandler answers 200 with the identity. When bearer tokens are
// enabled on Engine an access token bound to the new session is included.
type JSONSuccessHandler struct {
	Engine *formauth.Engine
	Logger *slog.Logger
}

func (h JSONSuccessHandler) OnSuccess(w http.ResponseWriter, r *http.Request, id *formauth.Identity, savedTarget string) {
	resp := LoginResponse{
		Status:          "ok",
		Username:        id.Username,
		Authorities:     id.Authorities,
		AuthenticatedAt: id.AuthenticatedAt,
	}
	if localPath(savedTarget) {
		resp.Target = savedTarget
	}

	if h.Engine != nil && h.Engine.BearerEnabled() {
		token, ttl, err := h.Engine.IssueAccessToken(id, sessionIDFromContext(r.Context()))
		if err != nil {
			logger := h.Logger
			if logger == nil {
				logger = slog.Default()
			}
			logger.ErrorContext(r.Context(), "access token issue failed", "operation", "issue_access_token", "username", id.Username, "error", err)
		} else {
			resp.AccessToken = token
			resp.TokenType = "Bearer"
			resp.ExpiresIn = int64(ttl / time.Second)
		}
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}

// FailureStatus maps a failure kind to its HTTP status.
func FailureStatus(kind formauth.FailureKind) int {
	switch kind {
	case formauth.RateLimited:
		return http.StatusTooManyRequests
	case formauth.StoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}

// JSONFailureHandler writes the failure as an error body. The internal
// cause is never rendered.
type JSONFailureHandler struct{}

func (JSONFailureHandler) OnFailure(w http.ResponseWriter, _ *http.Request, f *formauth.Failure) {
	middleware.WriteError(w, FailureStatus(f.Kind), f.Code(), f.Message)
}

// RedirectFailureHandler sends the browser back to FailureURL with the
// failure code in the "error" query parameter.
type RedirectFailureHandler struct {
	FailureURL string
}

func (h RedirectFailureHandler) OnFailure(w http.ResponseWriter, r *http.Request, f *formauth.Failure) {
	u, err := url.Parse(h.FailureURL)
	if err != nil || !localPath(h.FailureURL) {
		u = &url.URL{Path: "/"}
	}
	q := u.Query()
	q.Set("error", f.Code())
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusSeeOther)
}

// NegotiatingSuccessHandler answers script clients with JSON and browsers
// with a redirect.
type NegotiatingSuccessHandler struct {
	JSON     SuccessHandler
	Redirect SuccessHandler
}

func (h NegotiatingSuccessHandler) OnSuccess(w http.ResponseWriter, r *http.Request, id *formauth.Identity, savedTarget string) {
	if wantsJSON(r) {
		h.JSON.OnSuccess(w, r, id, savedTarget)
		return
	}
	h.Redirect.OnSuccess(w, r, id, savedTarget)
}

type NegotiatingFailureHandler struct {
	JSON     FailureHandler
	Redirect FailureHandler
}

func (h NegotiatingFailureHandler) OnFailure(w http.ResponseWriter, r *http.Request, f *formauth.Failure) {
	if wantsJSON(r) {
		h.JSON.OnFailure(w, r, f)
		return
	}
	h.Redirect.OnFailure(w, r, f)
}

// wantsJSON reports whether the client is a script rather than a page
// navigation: an XHR, or an Accept header naming JSON before HTML.
func wantsJSON(r *http.Request) bool {
	if strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return true
	}
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		switch mediaType {
		case "application/json":
			return true
		case "text/html", "application/xhtml+xml":
			return false
		}
	}
	return false
}
