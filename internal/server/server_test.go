package server_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.sr.ht/~jakintosh/oauth-relay/internal/config"
	"git.sr.ht/~jakintosh/oauth-relay/internal/logging"
	"git.sr.ht/~jakintosh/oauth-relay/internal/server"
	"git.sr.ht/~jakintosh/oauth-relay/internal/service"
	"git.sr.ht/~jakintosh/oauth-relay/internal/testutil"
)

func testConfig(t *testing.T, idp *testutil.FakeIdP) *config.Config {
	t.Helper()
	ex := idp.ExchangeConfig()
	cfg := config.Default()
	cfg.AuthorizationURL = ex.AuthorizationURL
	cfg.TokenURL = ex.TokenURL
	cfg.ClientID = ex.ClientID
	cfg.ClientSecret = ex.ClientSecret
	cfg.RedirectURI = ex.RedirectURI
	cfg.Scope = ex.Scope
	cfg.DBDSN = filepath.Join(t.TempDir(), "relay.db")
	cfg.ReconnectBackoff = 5 * time.Millisecond
	require.NoError(t, cfg.Validate())
	return cfg
}

func newApp(t *testing.T) (*server.App, *testutil.FakeIdP) {
	t.Helper()
	idp := testutil.NewFakeIdP(t)
	app, err := server.New(context.Background(), testConfig(t, idp), logging.Discard(), server.Options{
		PasswordMode: service.PasswordModeTesting,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app, idp
}

func TestNew_HealthyHandler(t *testing.T) {
	t.Parallel()
	app, _ := newApp(t)

	var health struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}
	result := testutil.Get(app.Handler(), "/healthz", &health)
	testutil.ExpectStatus(t, http.StatusOK, result)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "connected", health.Database)
}

func TestNew_UnopenableDatabase(t *testing.T) {
	t.Parallel()
	idp := testutil.NewFakeIdP(t)
	cfg := testConfig(t, idp)
	cfg.DBDSN = filepath.Join(t.TempDir(), "missing", "relay.db")

	_, err := server.New(context.Background(), cfg, logging.Discard(), server.Options{})
	assert.Error(t, err)
}

func TestApp_JobsShareTheStore(t *testing.T) {
	t.Parallel()
	app, idp := newApp(t)
	ctx := context.Background()

	require.NoError(t, app.Store.UpsertRefreshToken(ctx, "alice", "R1"))
	idp.AddRefresh("R1", testutil.Grant{AccessToken: "A", RefreshToken: "R2", ExpiresIn: 60})

	// fresh record is not refreshed by a manual run
	assert.Equal(t, 0, app.RefreshJob.Tick(ctx).Scanned)
	assert.Equal(t, 0, app.Reaper.Tick(ctx).Reaped)
}

func TestServe_GracefulShutdown(t *testing.T) {
	t.Parallel()
	app, _ := newApp(t)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- app.ServeListener(ctx, listener)
	}()

	// serves requests while running
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var body map[string]string
		return json.NewDecoder(resp.Body).Decode(&body) == nil && body["status"] == "ok"
	}, 5*time.Second, 20*time.Millisecond)

	// returns cleanly once cancelled
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
