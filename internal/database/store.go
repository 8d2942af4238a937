// Package database provides SQL persistence for refresh tokens and
// authorization sessions. SQLite (modernc.org/sqlite) and PostgreSQL
// (pgx) are supported; the schema is managed with goose migrations.
package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	_ "modernc.org/sqlite"

	"git.sr.ht/~jakintosh/oauth-relay/internal/database/migrations"
	"git.sr.ht/~jakintosh/oauth-relay/internal/service"
)

var (
	ErrNotFound    = service.ErrRecordNotFound
	ErrUnavailable = errors.New("database unavailable")
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

func (d Dialect) gooseDialect() goose.Dialect {
	if d == DialectPostgres {
		return goose.DialectPostgres
	}
	return goose.DialectSQLite3
}

// ConnState is the health of the store's connection.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnected
	StateReconnecting
)

func (c ConnState) String() string {
	switch c {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

type Options struct {
	Dialect           Dialect
	DSN               string
	ReconnectBackoff  time.Duration
	ReconnectAttempts uint64
	Now               func() time.Time
	Logger            *slog.Logger
}

// Store owns the process-wide connection. Every operation goes through
// withConn, which reconnects on first use after a connection loss.
type Store struct {
	dialect  Dialect
	dsn      string
	backoff  time.Duration
	attempts uint64
	now      func() time.Time
	log      *slog.Logger

	mu     sync.Mutex
	db     *sql.DB
	closed bool
	state  atomic.Int32
}

func Open(
	ctx context.Context,
	opts Options,
) (
	*Store,
	error,
) {
	s := &Store{
		dialect:  opts.Dialect,
		dsn:      opts.DSN,
		backoff:  opts.ReconnectBackoff,
		attempts: opts.ReconnectAttempts,
		now:      opts.Now,
		log:      opts.Logger,
	}
	if s.dialect == "" {
		s.dialect = DialectSQLite
	}
	if s.backoff <= 0 {
		s.backoff = 5 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("component", "database", "dialect", string(s.dialect))

	db, err := s.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := s.migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init database schema: %w", err)
	}
	s.limit(db)

	s.db = db
	s.state.Store(int32(StateConnected))
	s.log.Info("connected to database")
	return s, nil
}

func (s *Store) State() ConnState {
	return ConnState(s.state.Load())
}

func (s *Store) Health() string {
	return s.State().String()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.state.Store(int32(StateDisconnected))
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) connect(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open(s.dialect.driverName(), s.dsn)
	if err != nil {
		return nil, fmt.Errorf("couldn't open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("couldn't ping database: %w", err)
	}
	return db, nil
}

// limit serializes SQLite access through a single connection so concurrent
// writers queue instead of failing with SQLITE_BUSY.
func (s *Store) limit(db *sql.DB) {
	if s.dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}
}

func (s *Store) migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations.FS, string(s.dialect))
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(s.dialect.gooseDialect(), db, fsys)
	if err != nil {
		return fmt.Errorf("couldn't create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("couldn't apply migrations: %w", err)
	}
	for _, r := range results {
		s.log.Info("applied migration", "version", r.Source.Version)
	}
	return nil
}

// conn returns the live handle, reconnecting when the store is not
// connected. A closed store never reconnects.
func (s *Store) conn(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("%w: store is closed", ErrUnavailable)
	}
	if s.db != nil && s.State() == StateConnected {
		return s.db, nil
	}
	return s.reconnectLocked(ctx)
}

func (s *Store) reconnectLocked(ctx context.Context) (*sql.DB, error) {
	s.state.Store(int32(StateReconnecting))
	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}

	backoff := retry.WithMaxRetries(s.attempts, retry.NewConstant(s.backoff))
	var db *sql.DB
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		conn, err := s.connect(ctx)
		if err != nil {
			s.log.Warn("reconnect attempt failed", "error", err)
			return retry.RetryableError(err)
		}
		db = conn
		return nil
	})
	if err != nil {
		s.state.Store(int32(StateDisconnected))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s.limit(db)
	s.db = db
	s.state.Store(int32(StateConnected))
	s.log.Info("reconnected to database")
	return db, nil
}

// markLost flags db as unusable so the next conn call reconnects. A handle
// that was already replaced is ignored.
func (s *Store) markLost(db *sql.DB, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != db {
		return
	}
	s.state.Store(int32(StateDisconnected))
	s.log.Warn("database connection lost", "error", cause)
}

func (s *Store) withConn(
	ctx context.Context,
	fn func(db *sql.DB) error,
) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	err = fn(db)
	if err == nil || !isConnError(err) {
		return err
	}

	s.markLost(db, err)
	db, err = s.conn(ctx)
	if err != nil {
		return err
	}
	return fn(db)
}

func isConnError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	return strings.Contains(err.Error(), "sql: database is closed")
}

func (s *Store) rebind(query string) string {
	return rebind(s.dialect, query)
}

// rebind rewrites '?' placeholders for dialects that use numbered ones.
func rebind(d Dialect, query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) timestamp() int64 {
	return s.now().UTC().UnixNano()
}

func fromTimestamp(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

func resultsEmpty(result sql.Result) bool {
	count, err := result.RowsAffected()
	if err != nil {
		return false
	}
	return count == 0
}
