package service_test

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"git.sr.ht/~jakintosh/oauth-relay/internal/service"
	"git.sr.ht/~jakintosh/oauth-relay/internal/testutil"
)

func TestListTokens_Empty(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	records, err := env.Service.ListTokens(context.Background())
	if err != nil {
		t.Fatalf("ListTokens failed: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", records)
	}
}

func TestDeleteToken_Idempotent(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)
	ctx := context.Background()

	env.StoreRefreshToken(t, "alice", "R1")

	// existing and absent subjects both succeed
	if err := env.Service.DeleteToken(ctx, "alice"); err != nil {
		t.Fatalf("DeleteToken failed: %v", err)
	}
	if err := env.Service.DeleteToken(ctx, "alice"); err != nil {
		t.Fatalf("second DeleteToken failed: %v", err)
	}

	records, err := env.Service.ListTokens(ctx)
	if err != nil {
		t.Fatalf("ListTokens failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestDeleteToken_MissingSubject(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	err := env.Service.DeleteToken(context.Background(), "")
	if !errors.Is(err, service.ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}

func TestPasswordMode_Cost(t *testing.T) {
	t.Parallel()

	if got := service.PasswordModeTesting.Cost(); got != bcrypt.MinCost {
		t.Errorf("testing cost = %d, want %d", got, bcrypt.MinCost)
	}
	if got := service.PasswordModeProduction.Cost(); got != bcrypt.DefaultCost {
		t.Errorf("production cost = %d, want %d", got, bcrypt.DefaultCost)
	}
}
