package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"git.sr.ht/~jakintosh/oauth-relay/internal/session"
)

type ReaperOptions struct {
	Now    func() time.Time
	Logger *slog.Logger
}

type ReapReport struct {
	Scanned int
	Reaped  int
	Failed  int
}

// SessionReaper destroys sessions whose expiry has passed.
type SessionReaper struct {
	store session.Store
	now   func() time.Time
	log   *slog.Logger
}

func NewSessionReaper(
	store session.Store,
	opts ReaperOptions,
) *SessionReaper {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &SessionReaper{
		store: store,
		now:   now,
		log:   log.With("component", "jobs", "task", "reap-sessions"),
	}
}

func (r *SessionReaper) Name() string {
	return "reap-sessions"
}

func (r *SessionReaper) Run(ctx context.Context) {
	r.Tick(ctx)
}

func (r *SessionReaper) Tick(ctx context.Context) (report ReapReport) {
	defer func() {
		if v := recover(); v != nil {
			r.log.Error("reap run panicked", "panic", v)
		}
	}()

	records, err := r.store.All(ctx)
	if err != nil {
		r.log.Error("reap run aborted", "error", err)
		return report
	}
	report.Scanned = len(records)

	now := r.now()
	for _, rec := range records {
		if !rec.Expired(now) {
			continue
		}
		if err := r.destroy(ctx, rec.ID); err != nil {
			report.Failed++
			r.log.Warn("couldn't destroy session", "sid", rec.ID, "error", err)
			continue
		}
		report.Reaped++
	}

	if report.Reaped > 0 || report.Failed > 0 {
		r.log.Info("reap run complete", "reaped", report.Reaped, "failed", report.Failed)
	}
	return report
}

func (r *SessionReaper) destroy(ctx context.Context, id string) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic: %v", v)
		}
	}()
	return r.store.Destroy(ctx, id)
}
