// Package jobs holds the relay's background tasks. Each task does one pass
// per Tick, which the Runner calls on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"git.sr.ht/~jakintosh/oauth-relay/internal/exchange"
	"git.sr.ht/~jakintosh/oauth-relay/internal/models"
	"git.sr.ht/~jakintosh/oauth-relay/internal/service"
)

// Refresher exchanges a refresh token for fresh tokens.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*exchange.Tokens, error)
}

type RefreshOptions struct {
	MaxAgeDays  int
	Concurrency int
	Logger      *slog.Logger
}

type RefreshReport struct {
	Scanned   int
	Refreshed int
	Failed    int
}

// RefreshJob renews every stored refresh token older than MaxAgeDays.
type RefreshJob struct {
	tokens      service.TokenRepository
	refresher   Refresher
	maxAgeDays  int
	concurrency int
	log         *slog.Logger
}

func NewRefreshJob(
	tokens service.TokenRepository,
	refresher Refresher,
	opts RefreshOptions,
) *RefreshJob {
	maxAge := opts.MaxAgeDays
	if maxAge < 0 {
		maxAge = 3
	}
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &RefreshJob{
		tokens:      tokens,
		refresher:   refresher,
		maxAgeDays:  maxAge,
		concurrency: concurrency,
		log:         log.With("component", "jobs", "task", "refresh-tokens"),
	}
}

func (j *RefreshJob) Name() string {
	return "refresh-tokens"
}

func (j *RefreshJob) Run(ctx context.Context) {
	j.Tick(ctx)
}

// Tick refreshes each stale record independently. A failure for one subject
// is logged and counted; it does not stop the others.
func (j *RefreshJob) Tick(ctx context.Context) (report RefreshReport) {
	defer func() {
		if v := recover(); v != nil {
			j.log.Error("refresh run panicked", "panic", v)
		}
	}()

	records, err := j.tokens.ListStale(ctx, j.maxAgeDays)
	if err != nil {
		j.log.Error("refresh run aborted", "error", err)
		return report
	}
	report.Scanned = len(records)

	var refreshed, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(j.concurrency)
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := j.refreshOne(ctx, rec); err != nil {
				failed.Add(1)
				j.log.Warn("couldn't refresh token",
					"sub", rec.Subject,
					"created_at", rec.CreatedAt,
					"updated_at", rec.UpdatedAt,
					"error", err,
				)
				return nil
			}
			refreshed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	report.Refreshed = int(refreshed.Load())
	report.Failed = int(failed.Load())
	j.log.Info("refresh run complete",
		"scanned", report.Scanned,
		"refreshed", report.Refreshed,
		"failed", report.Failed,
	)
	return report
}

// refreshOne stores the rotated token, or the current one again when the
// provider did not rotate, so updated_at records the successful refresh.
func (j *RefreshJob) refreshOne(
	ctx context.Context,
	rec models.RefreshTokenRecord,
) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic: %v", v)
		}
	}()

	tokens, err := j.refresher.Refresh(ctx, rec.RefreshToken)
	if err != nil {
		return err
	}
	next := tokens.RefreshToken
	if next == "" {
		next = rec.RefreshToken
	}
	return j.tokens.UpdateRefreshToken(ctx, rec.Subject, next)
}
