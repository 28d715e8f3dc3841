package web

import (
	"bytes"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/formauth"
)

func TestWantsJSON(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		want   bool
	}{
		{"no headers", nil, false},
		{"xhr", http.Header{"X-Requested-With": {"XMLHttpRequest"}}, true},
		{"json accept", http.Header{"Accept": {"application/json"}}, true},
		{"browser accept", http.Header{"Accept": {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"}}, false},
		{"json before html", http.Header{"Accept": {"application/json, text/html"}}, true},
		{"wildcard", http.Header{"Accept": {"*/*"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/login", nil)
			for k, v := range tt.header {
				req.Header[k] = v
			}
			assert.Equal(t, tt.want, wantsJSON(req))
		})
	}
}

func TestSavedRequestSuccessHandlerRejectsForeignTargets(t *testing.T) {
	h := SavedRequestSuccessHandler{DefaultTargetURL: "/index"}

	tests := map[string]string{
		"":                      "/index",
		"/secure/page.html?x=1": "/secure/page.html?x=1",
		"//evil.example/":       "/index",
		"/\\evil.example":       "/index",
		"https://evil.example":  "/index",
		"relative/path":         "/index",
	}
	for saved, want := range tests {
		rec := httptest.NewRecorder()
		h.OnSuccess(rec, httptest.NewRequest(http.MethodPost, "/login", nil), &formauth.Identity{Username: "bob"}, saved)
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, want, rec.Header().Get("Location"), "saved target %q", saved)
	}
}

func TestRedirectFailureHandler(t *testing.T) {
	f := &formauth.Failure{Kind: formauth.ChallengeFailed, Message: "nope"}

	rec := httptest.NewRecorder()
	RedirectFailureHandler{FailureURL: "/login.html?error"}.OnFailure(rec, httptest.NewRequest(http.MethodPost, "/login", nil), f)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login.html?error=challenge_failed", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	RedirectFailureHandler{FailureURL: "/signin"}.OnFailure(rec, httptest.NewRequest(http.MethodPost, "/login", nil), f)
	assert.Equal(t, "/signin?error=challenge_failed", rec.Header().Get("Location"))
}

func TestJSONFailureHandlerStatus(t *testing.T) {
	tests := []struct {
		kind   formauth.FailureKind
		status int
	}{
		{formauth.BadCredentials, http.StatusUnauthorized},
		{formauth.AccountLocked, http.StatusUnauthorized},
		{formauth.ChallengeFailed, http.StatusUnauthorized},
		{formauth.RateLimited, http.StatusTooManyRequests},
		{formauth.StoreUnavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			JSONFailureHandler{}.OnFailure(rec, httptest.NewRequest(http.MethodPost, "/login", nil),
				&formauth.Failure{Kind: tt.kind, Message: "m", Err: assert.AnError})
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"code":"`+tt.kind.String()+`"`)
			assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
		})
	}
}

func TestPNGRenderer(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, PNGRenderer{NoiseLines: 5}.Render(rec, "4821"))

	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 67, img.Bounds().Dx())
	assert.Equal(t, 23, img.Bounds().Dy())

	wide := PNGRenderer{}.draw("123456")
	assert.Equal(t, 100, wide.Bounds().Dx())
}

func TestRememberRequested(t *testing.T) {
	for _, v := range []string{"on", "true", "TRUE", "1", "yes"} {
		assert.True(t, rememberRequested(v), v)
	}
	for _, v := range []string{"", "off", "false", "0"} {
		assert.False(t, rememberRequested(v), v)
	}
}
