package database_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"git.sr.ht/~jakintosh/oauth-relay/internal/database"
	"git.sr.ht/~jakintosh/oauth-relay/internal/models"
	"git.sr.ht/~jakintosh/oauth-relay/internal/session"
	"git.sr.ht/~jakintosh/oauth-relay/internal/testutil"
)

func subjects(records []models.RefreshTokenRecord) []string {
	var subs []string
	for _, r := range records {
		subs = append(subs, r.Subject)
	}
	return subs
}

func TestOpen_Connected(t *testing.T) {
	t.Parallel()
	store := testutil.OpenStore(t, nil)

	if store.State() != database.StateConnected {
		t.Errorf("expected connected, got %v", store.State())
	}
	if store.Health() != "connected" {
		t.Errorf("expected health connected, got %q", store.Health())
	}
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "relay.db")
	ctx := context.Background()

	// first open creates the schema
	first, err := database.Open(ctx, database.Options{DSN: path})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := first.UpsertRefreshToken(ctx, "alice", "t1"); err != nil {
		t.Fatalf("UpsertRefreshToken failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// second open on the same file keeps the data
	second := testutil.OpenStoreAt(t, path, nil)
	token, found, err := second.GetRefreshToken(ctx, "alice")
	if err != nil {
		t.Fatalf("GetRefreshToken failed: %v", err)
	}
	if !found || token != "t1" {
		t.Errorf("expected t1, got %q (found=%v)", token, found)
	}
}

func TestStore_ReconnectsAfterConnectionLoss(t *testing.T) {
	t.Parallel()
	store := testutil.OpenStore(t, nil)
	ctx := context.Background()
	if err := store.UpsertRefreshToken(ctx, "alice", "t1"); err != nil {
		t.Fatalf("UpsertRefreshToken failed: %v", err)
	}

	// drop the connection out from under the store
	if err := store.Handle().Close(); err != nil {
		t.Fatalf("failed to drop connection: %v", err)
	}

	// next operation reconnects transparently
	token, found, err := store.GetRefreshToken(ctx, "alice")
	if err != nil {
		t.Fatalf("GetRefreshToken failed: %v", err)
	}
	if !found || token != "t1" {
		t.Errorf("expected t1, got %q (found=%v)", token, found)
	}
	if store.State() != database.StateConnected {
		t.Errorf("expected connected, got %v", store.State())
	}
}

func TestStore_ReconnectFailureIsUnavailable(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "data")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	store := testutil.OpenStoreAt(t, filepath.Join(dir, "relay.db"), nil)

	// lose the connection and the database directory
	if err := store.Handle().Close(); err != nil {
		t.Fatalf("failed to drop connection: %v", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}

	// operation surfaces a transient error and the store stays disconnected
	_, _, err := store.GetRefreshToken(context.Background(), "alice")
	if !errors.Is(err, database.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if store.State() != database.StateDisconnected {
		t.Errorf("expected disconnected, got %v", store.State())
	}
}

func TestStore_CloseDisconnects(t *testing.T) {
	t.Parallel()
	store := testutil.OpenStore(t, nil)
	ctx := context.Background()

	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if store.State() != database.StateDisconnected {
		t.Errorf("expected disconnected, got %v", store.State())
	}

	// closing twice is fine
	if err := store.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	// a closed store does not reopen itself
	if _, _, err := store.GetRefreshToken(ctx, "alice"); !errors.Is(err, database.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable after Close, got %v", err)
	}
	if err := store.UpsertRefreshToken(ctx, "alice", "t1"); !errors.Is(err, database.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable after Close, got %v", err)
	}
	if store.Handle() != nil {
		t.Error("expected no live handle after Close")
	}
	if store.State() != database.StateDisconnected {
		t.Errorf("expected disconnected, got %v", store.State())
	}
}

func TestConnState_String(t *testing.T) {
	t.Parallel()
	cases := map[database.ConnState]string{
		database.StateConnected:    "connected",
		database.StateDisconnected: "disconnected",
		database.StateReconnecting: "reconnecting",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}

func TestRebind(t *testing.T) {
	t.Parallel()
	query := "UPDATE t SET a=?, b=? WHERE c=?"

	if got := database.Rebind(database.DialectSQLite, query); got != query {
		t.Errorf("sqlite query rewritten: %q", got)
	}
	want := "UPDATE t SET a=$1, b=$2 WHERE c=$3"
	if got := database.Rebind(database.DialectPostgres, query); got != want {
		t.Errorf("postgres query = %q, want %q", got, want)
	}
}

func TestSessionStore(t *testing.T) {
	t.Parallel()
	store := testutil.OpenStore(t, nil)
	sessions := store.SessionStore()
	ctx := context.Background()

	// missing session
	if _, err := sessions.Get(ctx, "missing"); !errors.Is(err, session.ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}

	// save and load round trip
	later := testutil.Epoch.Add(time.Hour)
	if err := sessions.Save(ctx, &session.Record{
		ID:      "b",
		Data:    session.Data{OAuthState: "abc"},
		Expires: later,
	}); err != nil {
		t.Fatalf("Save b failed: %v", err)
	}
	if err := sessions.Save(ctx, &session.Record{ID: "a", Expires: testutil.Epoch}); err != nil {
		t.Fatalf("Save a failed: %v", err)
	}
	rec, err := sessions.Get(ctx, "b")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.Data.OAuthState != "abc" || !rec.Expires.Equal(later) {
		t.Errorf("unexpected record: %+v", rec)
	}

	// save overwrites
	rec.Data.OAuthState = ""
	if err := sessions.Save(ctx, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	rec, err = sessions.Get(ctx, "b")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.Data.OAuthState != "" {
		t.Errorf("expected cleared state, got %q", rec.Data.OAuthState)
	}

	// all sessions, soonest expiry first
	all, err := sessions.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 2 || all[0].ID != "a" || all[1].ID != "b" {
		t.Errorf("unexpected order: %+v", all)
	}

	// destroy is idempotent
	if err := sessions.Destroy(ctx, "a"); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if err := sessions.Destroy(ctx, "a"); err != nil {
		t.Errorf("second Destroy failed: %v", err)
	}
	if _, err := sessions.Get(ctx, "a"); !errors.Is(err, session.ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}

func TestSessionStore_Take(t *testing.T) {
	t.Parallel()
	store := testutil.OpenStore(t, nil)
	sessions := store.SessionStore()
	ctx := context.Background()

	expires := testutil.Epoch.Add(time.Hour)
	if err := sessions.Save(ctx, &session.Record{
		ID:      "s1",
		Data:    session.Data{OAuthState: "abc"},
		Expires: expires,
	}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// take returns the row and removes it
	rec, err := sessions.Take(ctx, "s1")
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if rec.ID != "s1" || rec.Data.OAuthState != "abc" || !rec.Expires.Equal(expires) {
		t.Errorf("unexpected record: %+v", rec)
	}
	if _, err := sessions.Get(ctx, "s1"); !errors.Is(err, session.ErrNoSession) {
		t.Errorf("expected ErrNoSession after Take, got %v", err)
	}

	// nothing left to take
	if _, err := sessions.Take(ctx, "s1"); !errors.Is(err, session.ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}

func TestSessionStore_ConcurrentTake(t *testing.T) {
	t.Parallel()
	store := testutil.OpenStore(t, nil)
	sessions := store.SessionStore()
	ctx := context.Background()

	if err := sessions.Save(ctx, &session.Record{
		ID:      "s1",
		Data:    session.Data{OAuthState: "abc"},
		Expires: testutil.Epoch.Add(time.Hour),
	}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// racing takers see the row once
	var (
		wg    sync.WaitGroup
		taken atomic.Int32
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := sessions.Take(ctx, "s1"); err == nil {
				taken.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := taken.Load(); got != 1 {
		t.Errorf("expected exactly 1 successful take, got %d", got)
	}
}
