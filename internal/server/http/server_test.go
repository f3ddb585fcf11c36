package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/todoauth/internal/common"
	"github.com/dmitrijs2005/todoauth/internal/server/auth"
	"github.com/dmitrijs2005/todoauth/internal/server/models"
	"github.com/dmitrijs2005/todoauth/internal/server/repositories/users"
	"github.com/dmitrijs2005/todoauth/internal/server/services"
)

const testSecret = "test-secret"

type testEnv struct {
	srv    *Server
	issuer *auth.Issuer
	repo   *users.MemoryRepository
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	repo := users.NewMemoryRepository()
	issuer := auth.NewIssuer(testSecret, common.TokenValidity)
	svc := services.NewUserService(repo, auth.NewHasher(), issuer, nil)
	return &testEnv{srv: NewServer(opts, svc, issuer, nil), issuer: issuer, repo: repo}
}

func do(t *testing.T, s *Server, method, path string, body any, cookies ...*http.Cookie) (*http.Response, map[string]any) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func tokenCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == common.TokenCookieName {
			return c
		}
	}
	return nil
}

func TestSignUpThenSession(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp, body := do(t, env.srv, http.MethodPost, "/signup",
		map[string]string{"email": "a@x.com", "password": "password123", "name": "Ann"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	user := body["user"].(map[string]any)
	assert.Equal(t, "a@x.com", user["email"])
	assert.Equal(t, "Ann", user["name"])
	assert.NotEmpty(t, user["id"])
	assert.NotContains(t, user, "passwordHash")
	assert.NotContains(t, user, "password_hash")

	cookie := tokenCookie(resp)
	require.NotNil(t, cookie)
	assert.Equal(t, body["token"], cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.False(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, 604800, cookie.MaxAge)
	assert.Equal(t, "/", cookie.Path)

	resp, session := do(t, env.srv, http.MethodGet, "/session", nil, &http.Cookie{Name: cookie.Name, Value: cookie.Value})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	su := session["user"].(map[string]any)
	assert.Equal(t, user["id"], su["id"])
	assert.Equal(t, "a@x.com", su["email"])
	assert.Equal(t, cookie.Value, session["token"])
}

func TestSecureCookieInProduction(t *testing.T) {
	env := newTestEnv(t, Options{SecureCookies: true})

	resp, _ := do(t, env.srv, http.MethodPost, "/signup",
		map[string]string{"email": "a@x.com", "password": "password123", "name": "Ann"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cookie := tokenCookie(resp)
	require.NotNil(t, cookie)
	assert.True(t, cookie.Secure)
}

func TestSignIn(t *testing.T) {
	env := newTestEnv(t, Options{})
	resp, up := do(t, env.srv, http.MethodPost, "/signup",
		map[string]string{"email": "a@x.com", "password": "password123", "name": "Ann"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	t.Run("success", func(t *testing.T) {
		resp, body := do(t, env.srv, http.MethodPost, "/signin",
			map[string]string{"email": "a@x.com", "password": "password123"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, up["user"], body["user"])
		require.NotNil(t, tokenCookie(resp))

		id, err := env.issuer.Verify(body["token"].(string))
		require.NoError(t, err)
		assert.Equal(t, up["user"].(map[string]any)["id"], id.SubjectID)
	})

	t.Run("identical failures", func(t *testing.T) {
		wrongResp, wrong := do(t, env.srv, http.MethodPost, "/signin",
			map[string]string{"email": "a@x.com", "password": "password999"})
		unknownResp, unknown := do(t, env.srv, http.MethodPost, "/signin",
			map[string]string{"email": "b@x.com", "password": "password123"})

		assert.Equal(t, http.StatusBadRequest, wrongResp.StatusCode)
		assert.Equal(t, http.StatusBadRequest, unknownResp.StatusCode)
		assert.Equal(t, wrong, unknown)
		assert.Equal(t, common.ErrInvalidCredentials.Error(), wrong["error"])
		assert.Nil(t, tokenCookie(wrongResp))
	})

	t.Run("missing fields", func(t *testing.T) {
		resp, body := do(t, env.srv, http.MethodPost, "/signin", map[string]string{"email": "a@x.com"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "missing required fields", body["error"])
	})
}

func TestSignUp_Failures(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp, _ := do(t, env.srv, http.MethodPost, "/signup",
		map[string]string{"email": "a@x.com", "password": "password123", "name": "Ann"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	tests := []struct {
		name string
		body any
		want string
	}{
		{"duplicate", map[string]string{"email": "a@x.com", "password": "password123", "name": "Bob"}, "user already exists"},
		{"missing name", map[string]string{"email": "b@x.com", "password": "password123"}, "missing required fields"},
		{"empty strings", map[string]string{"email": "", "password": "", "name": ""}, "missing required fields"},
		{"short password", map[string]string{"email": "b@x.com", "password": "short", "name": "B"}, "password must be at least 8 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, env.srv, http.MethodPost, "/signup", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.want, body["error"])
			assert.Nil(t, tokenCookie(resp))
		})
	}

	assert.Equal(t, 1, env.repo.Len())
}

func TestSignUp_MalformedBody(t *testing.T) {
	env := newTestEnv(t, Options{})

	req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := env.srv.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSignUp_ConcurrentSameEmail(t *testing.T) {
	env := newTestEnv(t, Options{})

	// First request builds the route tree before concurrent use.
	resp, _ := do(t, env.srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	codes := make([]int, 2)
	bodies := make([]map[string]any, 2)
	var wg sync.WaitGroup
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, body := do(t, env.srv, http.MethodPost, "/signup",
				map[string]string{"email": "race@x.com", "password": "password123", "name": fmt.Sprint("R", i)})
			codes[i] = resp.StatusCode
			bodies[i] = body
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(t, []int{http.StatusOK, http.StatusBadRequest}, codes)
	for i, code := range codes {
		if code == http.StatusBadRequest {
			assert.Equal(t, "user already exists", bodies[i]["error"])
		}
	}
	assert.Equal(t, 1, env.repo.Len())
}

func TestSession_NullForms(t *testing.T) {
	env := newTestEnv(t, Options{})

	valid, err := env.issuer.Issue("u1", "a@x.com")
	require.NoError(t, err)
	expired, err := env.issuer.WithClock(func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }).Issue("u1", "a@x.com")
	require.NoError(t, err)
	foreign, err := auth.NewIssuer("other-secret", common.TokenValidity).Issue("u1", "a@x.com")
	require.NoError(t, err)

	tampered := valid[:len(valid)-2] + "xx"
	if tampered == valid {
		tampered = valid[:len(valid)-2] + "yy"
	}

	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{"no cookie", nil},
		{"empty cookie", &http.Cookie{Name: common.TokenCookieName, Value: ""}},
		{"garbage", &http.Cookie{Name: common.TokenCookieName, Value: "not-a-token"}},
		{"tampered", &http.Cookie{Name: common.TokenCookieName, Value: tampered}},
		{"expired", &http.Cookie{Name: common.TokenCookieName, Value: expired}},
		{"other secret", &http.Cookie{Name: common.TokenCookieName, Value: foreign}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cookies []*http.Cookie
			if tt.cookie != nil {
				cookies = append(cookies, tt.cookie)
			}
			resp, body := do(t, env.srv, http.MethodGet, "/session", nil, cookies...)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, map[string]any{"user": nil, "token": nil}, body)
		})
	}
}

func TestSignOut_ClearsCookie(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp, body := do(t, env.srv, http.MethodPost, "/signout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])

	cookie := tokenCookie(resp)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Equal(t, "/", cookie.Path)
	assert.True(t, cookie.Expires.Before(time.Now()))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp, body := do(t, env.srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
}

func TestMe_RequiresBearer(t *testing.T) {
	env := newTestEnv(t, Options{})

	token, err := env.issuer.Issue("u1", "a@x.com")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"no scheme", token, http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := env.srv.App().Test(req, -1)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)

			if tt.want == http.StatusOK {
				var body map[string]any
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, "u1", body["id"])
				assert.Equal(t, "a@x.com", body["email"])
			}
		})
	}
}

type stubService struct {
	err error
}

func (s stubService) SignUp(context.Context, services.SignUpInput) (*services.AuthResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &services.AuthResult{User: models.PublicUser{ID: "u1", Email: "a@x.com"}, Token: "t"}, nil
}

func (s stubService) SignIn(context.Context, services.SignInInput) (*services.AuthResult, error) {
	return s.SignUp(context.Background(), services.SignUpInput{})
}

func TestStoreOutageIsGeneric(t *testing.T) {
	outage := fmt.Errorf("%w: %w", common.ErrTransientStore, fmt.Errorf("dial tcp 10.0.0.5:5432: connection refused"))
	srv := NewServer(Options{}, stubService{err: outage}, auth.NewIssuer(testSecret, time.Hour), nil)

	resp, body := do(t, srv, http.MethodPost, "/signup", map[string]string{"email": "a@x.com", "password": "password123", "name": "A"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "sign up failed", body["error"])

	resp, body = do(t, srv, http.MethodPost, "/signin", map[string]string{"email": "a@x.com", "password": "password123"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "sign in failed", body["error"])
}

func TestRateLimit(t *testing.T) {
	srv := NewServer(Options{RateLimitRPS: 0.001, RateLimitBurst: 2}, stubService{}, auth.NewIssuer(testSecret, time.Hour), nil)
	in := map[string]string{"email": "a@x.com", "password": "password123"}

	for i := 0; i < 2; i++ {
		resp, _ := do(t, srv, http.MethodPost, "/signin", in)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := do(t, srv, http.MethodPost, "/signin", in)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate limit exceeded", body["error"])

	// Unlimited routes are unaffected.
	resp, _ = do(t, srv, http.MethodGet, "/session", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnknownRouteIsJSON(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp, body := do(t, env.srv, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}

func TestCORSAllowsFrontendWithCredentials(t *testing.T) {
	env := newTestEnv(t, Options{FrontendURL: "http://localhost:5173"})

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := env.srv.App().Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestServerRun_StopsOnContextCancel(t *testing.T) {
	srv := NewServer(Options{Address: "127.0.0.1:0"}, stubService{}, auth.NewIssuer(testSecret, time.Hour), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(150 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop after context cancel")
	}
}
