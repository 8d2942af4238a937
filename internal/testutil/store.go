package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"git.sr.ht/~jakintosh/oauth-relay/internal/database"
	"git.sr.ht/~jakintosh/oauth-relay/internal/logging"
)

// Epoch is the default start time of test clocks.
var Epoch = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

// OpenStore creates a migrated SQLite store in a temporary directory. The
// store is closed when the test ends.
func OpenStore(
	t *testing.T,
	clock *Clock,
) *database.Store {
	t.Helper()
	return OpenStoreAt(t, filepath.Join(t.TempDir(), "relay.db"), clock)
}

func OpenStoreAt(
	t *testing.T,
	path string,
	clock *Clock,
) *database.Store {
	t.Helper()

	opts := database.Options{
		Dialect:           database.DialectSQLite,
		DSN:               path,
		ReconnectBackoff:  5 * time.Millisecond,
		ReconnectAttempts: 2,
		Logger:            logging.Discard(),
	}
	if clock != nil {
		opts.Now = clock.Now
	}

	store, err := database.Open(context.Background(), opts)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
