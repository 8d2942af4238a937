// Package testutil provides test environment setup and utilities for internal package tests.
package testutil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"git.sr.ht/~jakintosh/oauth-relay/internal/api"
	"git.sr.ht/~jakintosh/oauth-relay/internal/database"
	"git.sr.ht/~jakintosh/oauth-relay/internal/exchange"
	"git.sr.ht/~jakintosh/oauth-relay/internal/logging"
	"git.sr.ht/~jakintosh/oauth-relay/internal/resources"
	"git.sr.ht/~jakintosh/oauth-relay/internal/service"
	"git.sr.ht/~jakintosh/oauth-relay/internal/session"
)

// TestEnv provides all dependencies needed for testing
type TestEnv struct {
	Clock    *Clock
	Store    *database.Store
	IdP      *FakeIdP
	Exchange *exchange.Client
	Sessions *session.Manager
	Service  *service.Service
	Views    *resources.Views
	Router   http.Handler
}

type EnvOptions struct {
	RequireRefreshCredential bool
	AdminPasswordHash        string
}

// SetupTestEnv creates an isolated test environment backed by a temporary
// SQLite database and a fake identity provider.
func SetupTestEnv(
	t *testing.T,
) *TestEnv {
	t.Helper()
	return SetupTestEnvWith(t, EnvOptions{})
}

func SetupTestEnvWith(
	t *testing.T,
	opts EnvOptions,
) *TestEnv {
	t.Helper()

	clock := NewClock(Epoch)
	store := OpenStore(t, clock)
	idp := NewFakeIdP(t)
	client := exchange.New(idp.ExchangeConfig())

	sessions, err := session.NewManager(store.SessionStore(), session.Options{
		Secret: []byte("test-session-secret"),
		Now:    clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}

	svc := service.New(
		store.TokenRepository(),
		client,
		sessions,
		service.Options{
			RequireRefreshCredential: opts.RequireRefreshCredential,
			PasswordMode:             service.PasswordModeTesting,
			Logger:                   logging.Discard(),
		},
	)

	views, err := resources.NewViews("", logging.Discard())
	if err != nil {
		t.Fatalf("failed to load views: %v", err)
	}

	a := api.New(svc, sessions, views, api.Options{
		AdminPasswordHash: opts.AdminPasswordHash,
		Health:            store.Health,
		Logger:            logging.Discard(),
	})

	return &TestEnv{
		Clock:    clock,
		Store:    store,
		IdP:      idp,
		Exchange: client,
		Sessions: sessions,
		Service:  svc,
		Views:    views,
		Router:   a.Router(),
	}
}

// NewSession creates a live session and returns its id.
func (env *TestEnv) NewSession(
	t *testing.T,
) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	id, err := env.Sessions.Begin(context.Background(), httptest.NewRecorder(), req)
	if err != nil {
		t.Fatalf("failed to begin session: %v", err)
	}
	return id
}

// StoreRefreshToken writes a refresh token for sub directly to the store.
func (env *TestEnv) StoreRefreshToken(
	t *testing.T,
	sub string,
	token string,
) {
	t.Helper()
	if err := env.Store.UpsertRefreshToken(context.Background(), sub, token); err != nil {
		t.Fatalf("failed to store test refresh token: %v", err)
	}
}

// Login runs GET /login and returns the session cookie and the state sent to
// the provider.
func (env *TestEnv) Login(
	t *testing.T,
) (
	*http.Cookie,
	string,
) {
	t.Helper()
	result := Get(env.Router, "/login", nil)
	location := ExpectRedirect(t, result)

	u, err := url.Parse(location)
	if err != nil {
		t.Fatalf("bad redirect location %q: %v", location, err)
	}
	state := u.Query().Get("state")
	if state == "" {
		t.Fatal("expected state in redirect")
	}

	cookie := SessionCookie(t, result)
	return cookie, state
}

// Callback runs GET /callback with the given cookie, code and state.
func (env *TestEnv) Callback(
	cookie *http.Cookie,
	code string,
	state string,
) HTTPResult {
	q := url.Values{}
	if code != "" {
		q.Set("code", code)
	}
	if state != "" {
		q.Set("state", state)
	}
	var headers []Header
	if cookie != nil {
		headers = append(headers, CookieHeader(cookie))
	}
	return Get(env.Router, "/callback?"+q.Encode(), nil, headers...)
}
