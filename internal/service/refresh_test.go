package service_test

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"git.sr.ht/~jakintosh/oauth-relay/internal/service"
	"git.sr.ht/~jakintosh/oauth-relay/internal/testutil"
)

func TestRefresh_Rotated(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)
	ctx := context.Background()

	// setup env
	env.StoreRefreshToken(t, "alice", "R1")
	env.IdP.AddRefresh("R1", testutil.Grant{AccessToken: "A2", RefreshToken: "R2", ExpiresIn: 1800})

	result, err := env.Service.Refresh(ctx, "alice", "")
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if result.AccessToken != "A2" || result.ExpiresIn != 1800 || !result.Rotated {
		t.Errorf("unexpected result: %+v", result)
	}

	// rotated token replaces the stored one
	token, _, err := env.Store.GetRefreshToken(ctx, "alice")
	if err != nil {
		t.Fatalf("GetRefreshToken failed: %v", err)
	}
	if token != "R2" {
		t.Errorf("expected R2, got %q", token)
	}
}

func TestRefresh_NotRotated(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)
	ctx := context.Background()

	env.StoreRefreshToken(t, "alice", "R1")
	env.IdP.AddRefresh("R1", testutil.Grant{AccessToken: "A2", ExpiresIn: 1800})

	result, err := env.Service.Refresh(ctx, "alice", "")
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if result.Rotated {
		t.Error("expected no rotation")
	}

	token, _, err := env.Store.GetRefreshToken(ctx, "alice")
	if err != nil {
		t.Fatalf("GetRefreshToken failed: %v", err)
	}
	if token != "R1" {
		t.Errorf("expected R1, got %q", token)
	}
}

func TestRefresh_MissingSubject(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	_, err := env.Service.Refresh(context.Background(), "", "")
	if !errors.Is(err, service.ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}

func TestRefresh_NotFound(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	_, err := env.Service.Refresh(context.Background(), "nobody", "")
	if !errors.Is(err, service.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestRefresh_ExchangeFailure(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	// provider does not know the stored token
	env.StoreRefreshToken(t, "alice", "revoked")

	_, err := env.Service.Refresh(context.Background(), "alice", "")
	if !errors.Is(err, service.ErrExchange) {
		t.Fatalf("expected ErrExchange, got %v", err)
	}
	if errors.Is(err, service.ErrTokenNotFound) {
		t.Error("exchange failure must be distinct from not found")
	}
}

func TestRefresh_CredentialRequired(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnvWith(t, testutil.EnvOptions{RequireRefreshCredential: true})
	ctx := context.Background()

	// setup env
	env.StoreRefreshToken(t, "alice", "R1")
	env.IdP.AddRefresh("R1", testutil.Grant{AccessToken: "A2", ExpiresIn: 60})
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-credential"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash credential: %v", err)
	}
	if err := env.Store.SetCredentialHash(ctx, "alice", hash); err != nil {
		t.Fatalf("SetCredentialHash failed: %v", err)
	}

	// missing credential
	if _, err := env.Service.Refresh(ctx, "alice", ""); !errors.Is(err, service.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized without credential, got %v", err)
	}

	// wrong credential
	if _, err := env.Service.Refresh(ctx, "alice", "guess"); !errors.Is(err, service.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized with wrong credential, got %v", err)
	}

	// unknown subject does not reveal absence
	if _, err := env.Service.Refresh(ctx, "nobody", "guess"); !errors.Is(err, service.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for unknown subject, got %v", err)
	}

	// correct credential
	if _, err := env.Service.Refresh(ctx, "alice", "secret-credential"); err != nil {
		t.Errorf("expected success with credential, got %v", err)
	}
}
