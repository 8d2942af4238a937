// Package session keeps short-lived, cookie-bound server-side sessions and
// the OAuth state value each login attempt is correlated with.
package session

import (
	"context"
	"errors"
	"time"
)

var ErrNoSession = errors.New("no session")

// Data is the serialized payload of a session.
type Data struct {
	OAuthState string `json:"oauth_state,omitempty"`
}

type Record struct {
	ID      string
	Data    Data
	Expires time.Time
}

func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.Expires)
}

// Store persists session records. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns ErrNoSession when id is unknown.
	Get(ctx context.Context, id string) (*Record, error)
	// Save inserts or replaces the record.
	Save(ctx context.Context, rec *Record) error
	// Destroy is idempotent.
	Destroy(ctx context.Context, id string) error
	// Take removes the record and returns it in one step. Of concurrent
	// callers for the same id at most one receives the record; the others
	// get ErrNoSession.
	Take(ctx context.Context, id string) (*Record, error)
	All(ctx context.Context) ([]Record, error)
}
