// Package server assembles the relay from its configuration and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"git.sr.ht/~jakintosh/oauth-relay/internal/api"
	"git.sr.ht/~jakintosh/oauth-relay/internal/config"
	"git.sr.ht/~jakintosh/oauth-relay/internal/database"
	"git.sr.ht/~jakintosh/oauth-relay/internal/exchange"
	"git.sr.ht/~jakintosh/oauth-relay/internal/jobs"
	"git.sr.ht/~jakintosh/oauth-relay/internal/resources"
	"git.sr.ht/~jakintosh/oauth-relay/internal/service"
	"git.sr.ht/~jakintosh/oauth-relay/internal/session"
)

const shutdownTimeout = 15 * time.Second

// App owns every long-lived component of a relay process.
type App struct {
	Config   *config.Config
	Log      *slog.Logger
	Store    *database.Store
	Exchange *exchange.Client
	Sessions *session.Manager
	Service  *service.Service
	Views    *resources.Views

	RefreshJob *jobs.RefreshJob
	Reaper     *jobs.SessionReaper
}

type Options struct {
	PasswordMode service.PasswordMode
	Now          func() time.Time
}

func New(
	ctx context.Context,
	cfg *config.Config,
	log *slog.Logger,
	opts Options,
) (
	*App,
	error,
) {
	if log == nil {
		log = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	store, err := database.Open(ctx, database.Options{
		Dialect:           database.Dialect(cfg.DBDriver),
		DSN:               cfg.DBDSN,
		ReconnectBackoff:  cfg.ReconnectBackoff,
		ReconnectAttempts: cfg.ReconnectAttempts,
		Now:               now,
		Logger:            log,
	})
	if err != nil {
		return nil, err
	}

	client := exchange.New(exchange.Config{
		AuthorizationURL: cfg.AuthorizationURL,
		TokenURL:         cfg.TokenURL,
		ClientID:         cfg.ClientID,
		ClientSecret:     cfg.ClientSecret,
		RedirectURI:      cfg.RedirectURI,
		Scope:            cfg.Scope,
		Timeout:          cfg.ExchangeTimeout,
	})

	sessions, err := session.NewManager(store.SessionStore(), session.Options{
		Secret: []byte(cfg.SessionSecret),
		TTL:    cfg.SessionTTL,
		Secure: !cfg.InsecureCookies,
		Now:    now,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	svc := service.New(store.TokenRepository(), client, sessions, service.Options{
		RequireRefreshCredential: cfg.RequireRefreshCredential,
		PasswordMode:             opts.PasswordMode,
		Logger:                   log,
	})

	views, err := resources.NewViews(cfg.TemplatesDir, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &App{
		Config:   cfg,
		Log:      log,
		Store:    store,
		Exchange: client,
		Sessions: sessions,
		Service:  svc,
		Views:    views,
		RefreshJob: jobs.NewRefreshJob(store.TokenRepository(), client, jobs.RefreshOptions{
			MaxAgeDays:  cfg.RefreshMaxAgeDays,
			Concurrency: cfg.RefreshConcurrency,
			Logger:      log,
		}),
		Reaper: jobs.NewSessionReaper(store.SessionStore(), jobs.ReaperOptions{
			Now:    now,
			Logger: log,
		}),
	}, nil
}

func (a *App) Handler() http.Handler {
	return api.New(a.Service, a.Sessions, a.Views, api.Options{
		AdminPasswordHash: a.Config.AdminPasswordHash,
		Health:            a.Store.Health,
		Logger:            a.Log,
	}).Router()
}

func (a *App) Close() error {
	return errors.Join(a.Views.Close(), a.Store.Close())
}

// Serve runs the HTTP listener and the scheduled jobs until ctx ends, then
// shuts both down.
func (a *App) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", a.Config.ListenAddr)
	if err != nil {
		return fmt.Errorf("couldn't listen on %s: %w", a.Config.ListenAddr, err)
	}
	return a.serve(ctx, listener)
}

func (a *App) serve(ctx context.Context, listener net.Listener) error {
	runner := jobs.NewRunner(a.Log)
	if err := runner.Schedule(a.Config.RefreshSchedule, a.RefreshJob); err != nil {
		_ = listener.Close()
		return err
	}
	if err := runner.Schedule(a.Config.ReapSchedule, a.Reaper); err != nil {
		_ = listener.Close()
		return err
	}

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		errs <- srv.Serve(listener)
	}()
	runner.Start()
	a.Log.Info("listening", "addr", listener.Addr().String())

	var serveErr error
	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
		a.Log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := runner.Stop(shutdownCtx); err != nil {
		a.Log.Warn("background jobs did not stop in time", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Log.Warn("http shutdown incomplete", "error", err)
	}
	return serveErr
}
