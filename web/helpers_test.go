package web

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/formauth"
	"github.com/MrEthical07/formauth/credentials"
	"github.com/MrEthical07/formauth/middleware"
	"github.com/MrEthical07/formauth/password"
)

// countingStore records how often credentials were looked up.
type countingStore struct {
	*credentials.Memory
	lookups atomic.Int64
}

func (c *countingStore) FindByUsername(ctx context.Context, username string) (formauth.User, error) {
	c.lookups.Add(1)
	return c.Memory.FindByUsername(ctx, username)
}

func testConfig() formauth.Config {
	cfg := formauth.DefaultConfig()
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.BcryptCost = 4
	cfg.Challenge.Enabled = false
	return cfg
}

type fixture struct {
	engine *formauth.Engine
	users  *countingStore
	mr     *miniredis.Miniredis
	srv    *httptest.Server
}

func newFixture(t *testing.T, mutate func(*formauth.Config), opts Options) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	hasher, err := password.NewArgon2(password.Config{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)
	hash, err := hasher.Hash("123456")
	require.NoError(t, err)

	users := &countingStore{Memory: credentials.NewMemory(formauth.User{
		Username: "bob", PasswordHash: hash, Authorities: []string{"ROLE_USER"},
		Enabled: true, AccountNonExpired: true, AccountNonLocked: true, CredentialsNonExpired: true,
	})}

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	engine, err := formauth.New().WithConfig(cfg).WithRedis(rdb).WithCredentialStore(users).Build()
	require.NoError(t, err)

	router, err := NewRouter(engine, opts)
	require.NoError(t, err)
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		srv.Close()
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return &fixture{engine: engine, users: users, mr: mr, srv: srv}
}

// browser is a cookie-keeping client that does not follow redirects.
type browser struct {
	t      *testing.T
	base   *url.URL
	jar    *cookiejar.Jar
	client *http.Client
}

func (f *fixture) browser(t *testing.T) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	base, err := url.Parse(f.srv.URL)
	require.NoError(t, err)
	return &browser{
		t:    t,
		base: base,
		jar:  jar,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (b *browser) cookie(name string) string {
	for _, c := range b.jar.Cookies(b.base) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func (b *browser) setCookie(name, value string) {
	b.jar.SetCookies(b.base, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
}

func (b *browser) do(req *http.Request) (*http.Response, string) {
	b.t.Helper()
	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	_ = resp.Body.Close()
	return resp, string(body)
}

func (b *browser) get(path string, header http.Header) (*http.Response, string) {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.base.String()+path, nil)
	require.NoError(b.t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	return b.do(req)
}

// postForm submits form, echoing the CSRF cookie as the form field. The
// login page is fetched first when no token cookie is held yet.
func (b *browser) postForm(path string, form url.Values, header http.Header) (*http.Response, string) {
	b.t.Helper()
	if b.cookie(middleware.CSRFCookieName) == "" {
		b.get("/login.html", nil)
	}
	if form == nil {
		form = url.Values{}
	}
	form.Set(middleware.CSRFFormField, b.cookie(middleware.CSRFCookieName))

	req, err := http.NewRequest(http.MethodPost, b.base.String()+path, strings.NewReader(form.Encode()))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range header {
		req.Header[k] = v
	}
	return b.do(req)
}

func jsonClient() http.Header {
	return http.Header{"Accept": {"application/json"}}
}

func credentialsForm(username, pass string) url.Values {
	return url.Values{UsernameParam: {username}, PasswordParam: {pass}}
}
