// Package relaytest runs an in-process stand-in for oauth-relay's refresh
// API, for testing applications that obtain access tokens through the relay.
//
//	relay := relaytest.NewRelay(t)
//	relay.AddSubject("alice", 3600)
//
//	app := myapp.New(relay.Client()) // any client.Refresher
//	...
//	if len(relay.Issued("alice")) != 1 { ... }
package relaytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"git.sr.ht/~jakintosh/oauth-relay/pkg/client"
)

// Relay serves POST /api/refresh with the same status codes and error
// bodies as a real relay. Access tokens are random per call.
type Relay struct {
	Server *httptest.Server

	mu         sync.Mutex
	subjects   map[string]int64
	issued     map[string][]string
	credential string
}

func NewRelay(t testing.TB) *Relay {
	t.Helper()
	r := &Relay{
		subjects: make(map[string]int64),
		issued:   make(map[string][]string),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/refresh", r.refresh)
	r.Server = httptest.NewServer(mux)
	t.Cleanup(r.Server.Close)
	return r
}

// AddSubject makes sub refreshable. expiresIn is reported on each token.
func (r *Relay) AddSubject(sub string, expiresIn int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects[sub] = expiresIn
}

func (r *Relay) RemoveSubject(sub string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subjects, sub)
}

// RequireCredential makes every refresh require the bearer credential.
func (r *Relay) RequireCredential(credential string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.credential = credential
}

// Issued returns the access tokens handed out for sub, oldest first.
func (r *Relay) Issued(sub string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.issued[sub]...)
}

// Client returns a relay client pointed at this server, carrying the
// required credential if one is set.
func (r *Relay) Client() *client.Client {
	r.mu.Lock()
	credential := r.credential
	r.mu.Unlock()
	return client.New(r.Server.URL, client.Options{
		Credential: credential,
		HTTPClient: r.Server.Client(),
	})
}

func (r *Relay) refresh(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Sub string `json:"sub"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Sub == "" {
		writeError(w, http.StatusBadRequest, "No sub provided")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.credential != "" {
		token, _ := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer ")
		if token != r.credential {
			w.Header().Set("WWW-Authenticate", `Bearer realm="oauth-relay"`)
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
	}

	expiresIn, ok := r.subjects[body.Sub]
	if !ok {
		writeError(w, http.StatusNotFound, "No refresh token found for this user")
		return
	}

	token := "access-" + uuid.NewString()
	r.issued[body.Sub] = append(r.issued[body.Sub], token)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": token,
		"expires_in":   expiresIn,
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
