package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerLink/internal/app/model"
	"github.com/sifan077/PowerLink/internal/app/service"
	"github.com/sifan077/PowerLink/internal/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeLinkService struct {
	createFn  func(ctx context.Context, ownerID uint64, input service.CreateLinkInput) (*model.Link, error)
	getFn     func(ctx context.Context, ownerID, id uint64) (*model.Link, error)
	listFn    func(ctx context.Context, ownerID uint64) ([]model.Link, error)
	updateFn  func(ctx context.Context, ownerID, id uint64, input service.UpdateLinkInput) (*model.Link, error)
	deleteFn  func(ctx context.Context, ownerID, id uint64) error
	resolveFn func(ctx context.Context, code string) (*model.Link, error)
}

func (f *fakeLinkService) CreateLink(ctx context.Context, ownerID uint64, input service.CreateLinkInput) (*model.Link, error) {
	return f.createFn(ctx, ownerID, input)
}

func (f *fakeLinkService) GetLink(ctx context.Context, ownerID, id uint64) (*model.Link, error) {
	return f.getFn(ctx, ownerID, id)
}

func (f *fakeLinkService) ListLinks(ctx context.Context, ownerID uint64) ([]model.Link, error) {
	return f.listFn(ctx, ownerID)
}

func (f *fakeLinkService) UpdateLink(ctx context.Context, ownerID, id uint64, input service.UpdateLinkInput) (*model.Link, error) {
	return f.updateFn(ctx, ownerID, id, input)
}

func (f *fakeLinkService) DeleteLink(ctx context.Context, ownerID, id uint64) error {
	return f.deleteFn(ctx, ownerID, id)
}

func (f *fakeLinkService) Resolve(ctx context.Context, code string) (*model.Link, error) {
	return f.resolveFn(ctx, code)
}

type fakeAuthService struct {
	registerFn func(ctx context.Context, input service.RegisterInput) (*model.User, error)
	loginFn    func(ctx context.Context, username, password string) (*service.LoginResult, error)
	logoutFn   func(ctx context.Context, token string) error
}

func (f *fakeAuthService) Register(ctx context.Context, input service.RegisterInput) (*model.User, error) {
	return f.registerFn(ctx, input)
}

func (f *fakeAuthService) Login(ctx context.Context, username, password string) (*service.LoginResult, error) {
	return f.loginFn(ctx, username, password)
}

func (f *fakeAuthService) Logout(ctx context.Context, token string) error {
	return f.logoutFn(ctx, token)
}

// Authenticate accepts "token-7" style tokens for user 7.
func (f *fakeAuthService) Authenticate(_ context.Context, token string) (uint64, error) {
	if token == "token-7" {
		return 7, nil
	}
	return 0, service.ErrUnauthorized
}

func newTestApp(t *testing.T, links *fakeLinkService, auth *fakeAuthService, checks ...HealthCheck) *fiber.App {
	t.Helper()
	if auth == nil {
		auth = &fakeAuthService{}
	}
	logger := zaptest.NewLogger(t)

	app := fiber.New()
	app.Use(middleware.RequestID())
	requireAuth := middleware.RequireAuth(auth)

	redirect := NewRedirectHandler(RedirectDeps{Logger: logger, LinkService: links, HealthChecks: checks})
	redirect.RegisterHealth(app)

	api := app.Group("/api/v1")
	NewAuthHandler(AuthDeps{Logger: logger, AuthService: auth}).Register(api, requireAuth)
	NewAPIHandler(APIDeps{Logger: logger, LinkService: links}).Register(api, requireAuth)

	redirect.Register(app)
	return app
}

func call(t *testing.T, app *fiber.App, method, target, body string, authed bool) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if authed {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer token-7")
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func sampleLink() *model.Link {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &model.Link{
		ID:          42,
		UserID:      7,
		OriginalURL: "https://example.org/docs",
		ShortCode:   "aB3xY9",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestCreateLink(t *testing.T) {
	var got service.CreateLinkInput
	links := &fakeLinkService{
		createFn: func(_ context.Context, ownerID uint64, input service.CreateLinkInput) (*model.Link, error) {
			assert.EqualValues(t, 7, ownerID)
			got = input
			return sampleLink(), nil
		},
	}
	app := newTestApp(t, links, nil)

	resp, body := call(t, app, http.MethodPost, "http://sho.rt/api/v1/links",
		`{"original_url":"https://example.org/docs"}`, true)

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "https://example.org/docs", got.OriginalURL)
	link := body["link"].(map[string]any)
	assert.Equal(t, "aB3xY9", link["short_code"])
	assert.Equal(t, "http://sho.rt/aB3xY9", link["short_url"])
	assert.EqualValues(t, 42, link["id"])
	assert.NotContains(t, link, "custom_domain")
}

func TestCreateLink_CustomDomainShortURL(t *testing.T) {
	links := &fakeLinkService{
		createFn: func(_ context.Context, _ uint64, input service.CreateLinkInput) (*model.Link, error) {
			l := sampleLink()
			l.CustomDomain = &input.CustomDomain
			return l, nil
		},
	}
	app := newTestApp(t, links, nil)

	resp, body := call(t, app, http.MethodPost, "http://sho.rt/api/v1/links",
		`{"original_url":"https://example.org/docs","custom_domain":"go.example.com"}`, true)

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	link := body["link"].(map[string]any)
	assert.Equal(t, "http://go.example.com/aB3xY9", link["short_url"])
	assert.Equal(t, "go.example.com", link["custom_domain"])
}

func TestCreateLink_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{
			name:   "validation",
			err:    &service.ValidationError{Field: "original_url", Message: "scheme must be http or https"},
			status: http.StatusBadRequest,
			msg:    "original_url: scheme must be http or https",
		},
		{"exhausted", service.ErrCodeExhausted, http.StatusServiceUnavailable, "short code unavailable, please retry"},
		{"conflict", service.ErrCodeConflict, http.StatusServiceUnavailable, "short code unavailable, please retry"},
		{
			name:   "store",
			err:    &service.StoreError{Op: "create link", Err: errors.New("dial tcp: connection refused")},
			status: http.StatusInternalServerError,
			msg:    "internal server error",
		},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			links := &fakeLinkService{
				createFn: func(context.Context, uint64, service.CreateLinkInput) (*model.Link, error) {
					return nil, tt.err
				},
			}
			app := newTestApp(t, links, nil)

			resp, body := call(t, app, http.MethodPost, "/api/v1/links", `{"original_url":"ftp://bad"}`, true)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.msg, body["error"])
		})
	}
}

func TestCreateLink_BadBody(t *testing.T) {
	app := newTestApp(t, &fakeLinkService{}, nil)

	resp, body := call(t, app, http.MethodPost, "/api/v1/links", `{"original_url":`, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid request body", body["error"])
}

func TestLinkRoutes_RequireAuth(t *testing.T) {
	app := newTestApp(t, &fakeLinkService{}, nil)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		resp, body := call(t, app, method, "/api/v1/links", "", false)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "missing bearer token", body["error"])
	}
}

func TestGetLink(t *testing.T) {
	links := &fakeLinkService{
		getFn: func(_ context.Context, ownerID, id uint64) (*model.Link, error) {
			if ownerID == 7 && id == 42 {
				return sampleLink(), nil
			}
			return nil, service.ErrNotFound
		},
	}
	app := newTestApp(t, links, nil)

	resp, body := call(t, app, http.MethodGet, "/api/v1/links/42", "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "aB3xY9", body["link"].(map[string]any)["short_code"])

	resp, body = call(t, app, http.MethodGet, "/api/v1/links/43", "", true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "link not found", body["error"])

	resp, body = call(t, app, http.MethodGet, "/api/v1/links/abc", "", true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid link id", body["error"])
}

func TestListLinks(t *testing.T) {
	links := &fakeLinkService{
		listFn: func(_ context.Context, ownerID uint64) ([]model.Link, error) {
			a, b := sampleLink(), sampleLink()
			b.ID, b.ShortCode = 43, "Zz9yX8"
			return []model.Link{*b, *a}, nil
		},
	}
	app := newTestApp(t, links, nil)

	resp, body := call(t, app, http.MethodGet, "http://sho.rt/api/v1/links", "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["count"])
	items := body["links"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "http://sho.rt/Zz9yX8", items[0].(map[string]any)["short_url"])
}

func TestListLinks_Empty(t *testing.T) {
	links := &fakeLinkService{
		listFn: func(context.Context, uint64) ([]model.Link, error) { return nil, nil },
	}
	app := newTestApp(t, links, nil)

	resp, body := call(t, app, http.MethodGet, "/api/v1/links", "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{}, body["links"])
}

func TestUpdateLink(t *testing.T) {
	var got service.UpdateLinkInput
	links := &fakeLinkService{
		updateFn: func(_ context.Context, ownerID, id uint64, input service.UpdateLinkInput) (*model.Link, error) {
			got = input
			l := sampleLink()
			l.OriginalURL = *input.OriginalURL
			return l, nil
		},
	}
	app := newTestApp(t, links, nil)

	for _, method := range []string{http.MethodPut, http.MethodPatch} {
		got = service.UpdateLinkInput{}
		resp, body := call(t, app, method, "/api/v1/links/42", `{"original_url":"https://example.org/new"}`, true)
		require.Equal(t, http.StatusOK, resp.StatusCode, method)
		require.NotNil(t, got.OriginalURL)
		assert.Nil(t, got.CustomDomain)
		assert.Equal(t, "https://example.org/new", body["link"].(map[string]any)["original_url"])
	}
}

func TestUpdateLink_NoFields(t *testing.T) {
	app := newTestApp(t, &fakeLinkService{}, nil)

	resp, body := call(t, app, http.MethodPatch, "/api/v1/links/42", `{}`, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "no fields to update", body["error"])
}

func TestDeleteLink(t *testing.T) {
	deleted := false
	links := &fakeLinkService{
		deleteFn: func(_ context.Context, ownerID, id uint64) error {
			if id != 42 {
				return service.ErrNotFound
			}
			deleted = true
			return nil
		},
	}
	app := newTestApp(t, links, nil)

	resp, body := call(t, app, http.MethodDelete, "/api/v1/links/42", "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, deleted)
	assert.Equal(t, "link deleted", body["message"])

	resp, _ = call(t, app, http.MethodDelete, "/api/v1/links/99", "", true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResolve(t *testing.T) {
	var visitor service.Visitor
	links := &fakeLinkService{
		resolveFn: func(ctx context.Context, code string) (*model.Link, error) {
			visitor = service.VisitorFromContext(ctx)
			switch code {
			case "aB3xY9":
				return sampleLink(), nil
			case "unsafe":
				return nil, service.ErrUnsafeTarget
			default:
				return nil, service.ErrNotFound
			}
		},
	}
	app := newTestApp(t, links, nil)

	req := httptest.NewRequest(http.MethodGet, "/aB3xY9", nil)
	req.Header.Set(fiber.HeaderUserAgent, "curl/8.5")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://example.org/docs", resp.Header.Get(fiber.HeaderLocation))
	assert.Equal(t, "curl/8.5", visitor.UserAgent)
	assert.NotEmpty(t, visitor.IP)

	for _, code := range []string{"nope", "unsafe"} {
		resp, body := call(t, app, http.MethodGet, "/"+code, "", false)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, code)
		assert.Equal(t, "link not found", body["error"], code)
		assert.Empty(t, resp.Header.Get(fiber.HeaderLocation))
	}
}

func TestResolve_VisitorOutlivesRequest(t *testing.T) {
	var visitors []service.Visitor
	links := &fakeLinkService{
		resolveFn: func(ctx context.Context, code string) (*model.Link, error) {
			visitors = append(visitors, service.VisitorFromContext(ctx))
			return sampleLink(), nil
		},
	}
	app := newTestApp(t, links, nil)

	agents := []string{"agent-AAAAAAAAAAAA", "other-ZZZZZZZZZZZZ"}
	for _, ua := range agents {
		req := httptest.NewRequest(http.MethodGet, "/aB3xY9", nil)
		req.Header.Set(fiber.HeaderUserAgent, ua)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		resp.Body.Close()
	}

	require.Len(t, visitors, 2)
	assert.Equal(t, agents[0], visitors[0].UserAgent, "first visitor must keep its own user agent")
	assert.Equal(t, agents[1], visitors[1].UserAgent)
}

func TestHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name   string
		checks []HealthCheck
		status int
		state  string
	}{
		{"all ok", []HealthCheck{{"postgres", true, ok}, {"redis", false, ok}}, http.StatusOK, "ok"},
		{"cache down", []HealthCheck{{"postgres", true, ok}, {"redis", false, down}}, http.StatusOK, "degraded"},
		{"store down", []HealthCheck{{"postgres", true, down}, {"redis", false, ok}}, http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t, &fakeLinkService{}, nil, tt.checks...)
			resp, body := call(t, app, http.MethodGet, "/health", "", false)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.state, body["status"])
			assert.Len(t, body["checks"], 2)
		})
	}
}

func TestAuthRoutes(t *testing.T) {
	user := &model.User{ID: 7, Username: "alice", Email: "alice@example.com", PasswordHash: "secret-hash"}
	var loggedOut string
	auth := &fakeAuthService{
		registerFn: func(_ context.Context, input service.RegisterInput) (*model.User, error) {
			if input.Username == "taken" {
				return nil, service.ErrUserExists
			}
			return user, nil
		},
		loginFn: func(_ context.Context, username, password string) (*service.LoginResult, error) {
			if password != "correct horse" {
				return nil, service.ErrInvalidCredentials
			}
			return &service.LoginResult{Token: "token-7", ExpiresAt: time.Now().Add(time.Hour), User: user}, nil
		},
		logoutFn: func(_ context.Context, token string) error {
			loggedOut = token
			return nil
		},
	}
	app := newTestApp(t, &fakeLinkService{}, auth)

	t.Run("register", func(t *testing.T) {
		resp, body := call(t, app, http.MethodPost, "/api/v1/auth/register",
			`{"username":"alice","email":"alice@example.com","password":"correct horse"}`, false)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		registered := body["user"].(map[string]any)
		assert.Equal(t, "alice", registered["username"])
		assert.NotContains(t, registered, "password_hash")
	})

	t.Run("register duplicate", func(t *testing.T) {
		resp, _ := call(t, app, http.MethodPost, "/api/v1/auth/register",
			`{"username":"taken","email":"t@example.com","password":"correct horse"}`, false)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("login", func(t *testing.T) {
		resp, body := call(t, app, http.MethodPost, "/api/v1/auth/login",
			`{"username":"alice","password":"correct horse"}`, false)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "token-7", body["token"])
		assert.NotEmpty(t, body["expires_at"])
	})

	t.Run("login wrong password", func(t *testing.T) {
		resp, body := call(t, app, http.MethodPost, "/api/v1/auth/login",
			`{"username":"alice","password":"nope"}`, false)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "invalid credentials", body["error"])
	})

	t.Run("logout", func(t *testing.T) {
		resp, _ := call(t, app, http.MethodPost, "/api/v1/auth/logout", "", false)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp, body := call(t, app, http.MethodPost, "/api/v1/auth/logout", "", true)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "logged out", body["message"])
		assert.Equal(t, "token-7", loggedOut)
	})
}

func TestAuthRoutes_FlatAliases(t *testing.T) {
	user := &model.User{ID: 7, Username: "alice", Email: "alice@example.com"}
	logouts := 0
	auth := &fakeAuthService{
		registerFn: func(context.Context, service.RegisterInput) (*model.User, error) { return user, nil },
		loginFn: func(context.Context, string, string) (*service.LoginResult, error) {
			return &service.LoginResult{Token: "token-7", ExpiresAt: time.Now().Add(time.Hour), User: user}, nil
		},
		logoutFn: func(context.Context, string) error {
			logouts++
			return nil
		},
	}
	app := newTestApp(t, &fakeLinkService{}, auth)

	resp, _ := call(t, app, http.MethodPost, "/api/v1/register",
		`{"username":"alice","email":"alice@example.com","password":"correct horse"}`, false)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := call(t, app, http.MethodPost, "/api/v1/login", `{"username":"alice","password":"correct horse"}`, false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "token-7", body["token"])

	resp, _ = call(t, app, http.MethodGet, "/api/v1/logout", "", false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = call(t, app, http.MethodGet, "/api/v1/logout", "", true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, logouts)
}
