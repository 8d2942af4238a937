package api_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"git.sr.ht/~jakintosh/oauth-relay/internal/api"
	"git.sr.ht/~jakintosh/oauth-relay/internal/models"
	"git.sr.ht/~jakintosh/oauth-relay/internal/testutil"
)

func TestListTokens_Empty(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	result := testutil.Get(env.Router, "/api/admin/tokens", nil)
	testutil.ExpectStatus(t, http.StatusOK, result)
	if string(result.Body) != "[]" {
		t.Errorf("expected empty array, got %s", result.Body)
	}
}

func TestListTokens_NewestFirst(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	env.StoreRefreshToken(t, "alice", "Ra")
	env.Clock.Advance(time.Minute)
	env.StoreRefreshToken(t, "bob", "Rb")

	var records []models.RefreshTokenRecord
	result := testutil.Get(env.Router, "/api/admin/tokens", &records)
	testutil.ExpectStatus(t, http.StatusOK, result)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Subject != "bob" || records[1].Subject != "alice" {
		t.Errorf("unexpected order: %+v", records)
	}
	if records[1].RefreshToken != "Ra" || !records[1].CreatedAt.Equal(testutil.Epoch) {
		t.Errorf("unexpected record: %+v", records[1])
	}
}

func TestDeleteToken_Idempotent(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	env.StoreRefreshToken(t, "alice", "Ra")

	// existing subject
	var response api.DeleteResponse
	result := testutil.Delete(env.Router, "/api/admin/tokens/alice", &response)
	testutil.ExpectStatus(t, http.StatusOK, result)
	if !response.Success {
		t.Error("expected success=true")
	}

	// absent subject still succeeds
	response = api.DeleteResponse{}
	result = testutil.Delete(env.Router, "/api/admin/tokens/ghost", &response)
	testutil.ExpectStatus(t, http.StatusOK, result)
	if !response.Success {
		t.Error("expected success=true for absent subject")
	}

	// neither is listed
	var records []models.RefreshTokenRecord
	result = testutil.Get(env.Router, "/api/admin/tokens", &records)
	testutil.ExpectStatus(t, http.StatusOK, result)
	if len(records) != 0 {
		t.Errorf("expected no records, got %+v", records)
	}
}

func TestDeleteToken_EncodedSubject(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	env.StoreRefreshToken(t, "auth0|abc/def", "R")

	result := testutil.Delete(env.Router, "/api/admin/tokens/auth0%7Cabc%2Fdef", nil)
	testutil.ExpectStatus(t, http.StatusOK, result)

	_, found, err := env.Store.GetRefreshToken(context.Background(), "auth0|abc/def")
	if err != nil {
		t.Fatalf("GetRefreshToken failed: %v", err)
	}
	if found {
		t.Error("expected record to be deleted")
	}
}

func TestAdmin_BasicAuth(t *testing.T) {
	t.Parallel()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash: %v", err)
	}
	env := testutil.SetupTestEnvWith(t, testutil.EnvOptions{AdminPasswordHash: string(hash)})

	// no credentials
	result := testutil.Get(env.Router, "/api/admin/tokens", nil)
	testutil.ExpectStatus(t, http.StatusUnauthorized, result)
	if result.Headers.Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate challenge")
	}

	// wrong password
	result = testutil.Get(env.Router, "/api/admin/tokens", nil, testutil.BasicAuth("admin", "nope"))
	testutil.ExpectStatus(t, http.StatusUnauthorized, result)

	// wrong user
	result = testutil.Delete(env.Router, "/api/admin/tokens/alice", nil, testutil.BasicAuth("root", "hunter2"))
	testutil.ExpectStatus(t, http.StatusUnauthorized, result)

	// correct credentials
	result = testutil.Get(env.Router, "/api/admin/tokens", nil, testutil.BasicAuth("admin", "hunter2"))
	testutil.ExpectStatus(t, http.StatusOK, result)

	// non-admin routes are unaffected
	result = testutil.Get(env.Router, "/healthz", nil)
	testutil.ExpectStatus(t, http.StatusOK, result)
}
