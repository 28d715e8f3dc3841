package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/formauth"
)

var noContent = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestCSRF_SafeMethodIssuesCookie(t *testing.T) {
	var seen string
	h := CSRF(false, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CSRFToken(r)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login.html", nil))

	c := findCookie(rec, CSRFCookieName)
	require.NotNil(t, c)
	assert.False(t, c.HttpOnly, "pages must be able to read the token")
	assert.Equal(t, c.Value, seen)
}

func TestCSRF_StateChangingRequests(t *testing.T) {
	h := CSRF(false, nil)(noContent)

	tests := []struct {
		name   string
		build  func() *http.Request
		status int
	}{
		{
			name: "missing token",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/logout", nil)
				req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "abc"})
				return req
			},
			status: http.StatusForbidden,
		},
		{
			name: "no cookie",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/logout", nil)
				req.Header.Set(CSRFHeaderName, "abc")
				return req
			},
			status: http.StatusForbidden,
		},
		{
			name: "mismatched header",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/logout", nil)
				req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "abc"})
				req.Header.Set(CSRFHeaderName, "abd")
				return req
			},
			status: http.StatusForbidden,
		},
		{
			name: "matching header",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/logout", nil)
				req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "abc"})
				req.Header.Set(CSRFHeaderName, "abc")
				return req
			},
			status: http.StatusNoContent,
		},
		{
			name: "matching form field",
			build: func() *http.Request {
				form := url.Values{CSRFFormField: {"abc"}}
				req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
				req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "abc"})
				return req
			},
			status: http.StatusNoContent,
		},
		{
			name: "bearer exempt",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/data", nil)
				req.Header.Set("Authorization", "Bearer token")
				return req
			},
			status: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.build())
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusForbidden {
				assert.Contains(t, rec.Body.String(), `"code":"csrf_invalid"`)
			}
		})
	}
}

func TestChallengeFilter(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()
	cfg := engine.Config()

	var failed *formauth.Failure
	var reached int
	h := ChallengeFilter(engine, func(w http.ResponseWriter, _ *http.Request, f *formauth.Failure) {
		failed = f
		w.WriteHeader(http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached++
		w.WriteHeader(http.StatusNoContent)
	}))

	post := func(sessionID, code string) *httptest.ResponseRecorder {
		form := url.Values{"username": {"bob"}, "password": {"123456"}, cfg.Challenge.ParamName: {code}}
		req := httptest.NewRequest(http.MethodPost, cfg.Routes.LoginProcessingURL, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if sessionID != "" {
			req.AddCookie(&http.Cookie{Name: cfg.Session.CookieName, Value: sessionID})
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("other routes pass", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, cfg.Routes.LoginProcessingURL, nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("wrong code stops the chain", func(t *testing.T) {
		reached, failed = 0, nil
		_, sid, err := engine.IssueChallenge(ctx, "")
		require.NoError(t, err)

		rec := post(sid, "zzzz")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Zero(t, reached)
		require.NotNil(t, failed)
		assert.Equal(t, formauth.ChallengeFailed, failed.Kind)
	})

	t.Run("missing session", func(t *testing.T) {
		reached, failed = 0, nil
		rec := post("", "abcd")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Zero(t, reached)
		require.NotNil(t, failed)
	})

	t.Run("correct code continues", func(t *testing.T) {
		reached, failed = 0, nil
		code, sid, err := engine.IssueChallenge(ctx, "")
		require.NoError(t, err)

		rec := post(sid, code)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, 1, reached)
		assert.Nil(t, failed)
	})
}

func TestChallengeFilter_Disabled(t *testing.T) {
	engine, _ := newTestEngine(t, func(c *formauth.Config) { c.Challenge.Enabled = false })

	h := ChallengeFilter(engine, func(w http.ResponseWriter, _ *http.Request, _ *formauth.Failure) {
		t.Fatal("failure handler must not run")
	})(noContent)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	incoming := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, incoming)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, incoming, seen)
	assert.Equal(t, incoming, rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "<script>")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotEqual(t, "<script>", seen)
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := RequestID(AccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	out := buf.String()
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"status":404`)
	assert.Contains(t, out, `"path":"/missing"`)
	assert.Contains(t, out, `"request_id"`)
}

func TestClientIP(t *testing.T) {
	var seen string
	h := ClientIP(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = formauth.ClientIPFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:4711"
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "203.0.113.9", seen)
}
