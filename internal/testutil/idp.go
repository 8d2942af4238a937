package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"git.sr.ht/~jakintosh/oauth-relay/internal/exchange"
)

const (
	TestClientID     = "test-client"
	TestClientSecret = "test-secret"
	TestRedirectURI  = "http://relay.test/callback"
	TestScope        = "openid offline_access"
)

// Grant is what the fake provider answers for a code or refresh token.
// Setting Error makes it answer with an OAuth error response instead.
type Grant struct {
	Subject      string
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64

	// RawIDToken replaces the minted id_token when set.
	RawIDToken string

	Error            string
	ErrorDescription string
	Status           int

	Delay time.Duration
}

// FakeIdP is an httptest token endpoint. Codes are single use; refresh
// grants stay registered until removed.
type FakeIdP struct {
	Server *httptest.Server

	mu       sync.Mutex
	codes    map[string]Grant
	refresh  map[string]Grant
	requests []url.Values
}

func NewFakeIdP(t *testing.T) *FakeIdP {
	t.Helper()
	p := &FakeIdP{
		codes:   make(map[string]Grant),
		refresh: make(map[string]Grant),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", p.token)
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

func (p *FakeIdP) ExchangeConfig() exchange.Config {
	return exchange.Config{
		AuthorizationURL: p.Server.URL + "/authorize",
		TokenURL:         p.Server.URL + "/token",
		ClientID:         TestClientID,
		ClientSecret:     TestClientSecret,
		RedirectURI:      TestRedirectURI,
		Scope:            TestScope,
		Timeout:          2 * time.Second,
	}
}

func (p *FakeIdP) AddCode(code string, g Grant) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.codes[code] = g
}

func (p *FakeIdP) AddRefresh(token string, g Grant) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refresh[token] = g
}

func (p *FakeIdP) RemoveRefresh(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.refresh, token)
}

// Requests returns the form bodies received so far.
func (p *FakeIdP) Requests() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.requests...)
}

// IDToken mints an HS256 id_token for sub.
func IDToken(sub string) string {
	claims := jwt.MapClaims{
		"iss": "https://idp.test",
		"aud": TestClientID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if sub != "" {
		claims["sub"] = sub
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("idp-signing-key"))
	if err != nil {
		panic("failed to sign test id_token: " + err.Error())
	}
	return signed
}

func (p *FakeIdP) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}

	p.mu.Lock()
	p.requests = append(p.requests, r.PostForm)
	p.mu.Unlock()

	if r.PostForm.Get("client_id") != TestClientID ||
		r.PostForm.Get("client_secret") != TestClientSecret {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
		return
	}

	var (
		grant Grant
		ok    bool
	)
	p.mu.Lock()
	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		code := r.PostForm.Get("code")
		grant, ok = p.codes[code]
		delete(p.codes, code)
	case "refresh_token":
		grant, ok = p.refresh[r.PostForm.Get("refresh_token")]
	}
	p.mu.Unlock()

	if !ok {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "grant is invalid or expired")
		return
	}
	if grant.Delay > 0 {
		select {
		case <-time.After(grant.Delay):
		case <-r.Context().Done():
			return
		}
	}
	if grant.Error != "" {
		status := grant.Status
		if status == 0 {
			status = http.StatusBadRequest
		}
		writeOAuthError(w, status, grant.Error, grant.ErrorDescription)
		return
	}

	body := map[string]any{
		"access_token": grant.AccessToken,
		"token_type":   "Bearer",
		"expires_in":   grant.ExpiresIn,
	}
	if grant.RefreshToken != "" {
		body["refresh_token"] = grant.RefreshToken
	}
	if r.PostForm.Get("grant_type") == "authorization_code" {
		if grant.RawIDToken != "" {
			body["id_token"] = grant.RawIDToken
		} else {
			body["id_token"] = IDToken(grant.Subject)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func writeOAuthError(
	w http.ResponseWriter,
	status int,
	code string,
	description string,
) {
	body := map[string]string{"error": code}
	if description != "" {
		body["error_description"] = description
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
