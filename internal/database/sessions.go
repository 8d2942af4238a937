package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"git.sr.ht/~jakintosh/oauth-relay/internal/session"
)

// sessionTable persists session records in the sessions table. Data is
// stored as JSON.
type sessionTable struct {
	s *Store
}

func (s *Store) SessionStore() session.Store {
	return sessionTable{s: s}
}

func (t sessionTable) Get(
	ctx context.Context,
	id string,
) (
	*session.Record,
	error,
) {
	var (
		data    string
		expires int64
	)
	err := t.s.withConn(ctx, func(db *sql.DB) error {
		row := db.QueryRowContext(ctx, t.s.rebind(`
			SELECT data, expires
			FROM sessions
			WHERE sid=?;`),
			id,
		)
		return row.Scan(&data, &expires)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("couldn't scan session: %w", err)
	}

	rec := &session.Record{ID: id, Expires: fromTimestamp(expires)}
	if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
		return nil, fmt.Errorf("couldn't decode session data: %w", err)
	}
	return rec, nil
}

func (t sessionTable) Save(
	ctx context.Context,
	rec *session.Record,
) error {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("couldn't encode session data: %w", err)
	}
	err = t.s.withConn(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, t.s.rebind(`
			INSERT INTO sessions (sid, data, expires)
			VALUES (?, ?, ?)
			ON CONFLICT (sid) DO UPDATE
			SET data = excluded.data,
				expires = excluded.expires;`),
			rec.ID,
			string(data),
			rec.Expires.UTC().UnixNano(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("couldn't save session: %w", err)
	}
	return nil
}

func (t sessionTable) Destroy(
	ctx context.Context,
	id string,
) error {
	err := t.s.withConn(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, t.s.rebind(`
			DELETE FROM sessions
			WHERE sid=?;`),
			id,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("couldn't delete session: %w", err)
	}
	return nil
}

// Take deletes the session row and returns what was deleted. The single
// DELETE ... RETURNING statement makes concurrent takes of one sid yield the
// row at most once.
func (t sessionTable) Take(
	ctx context.Context,
	id string,
) (
	*session.Record,
	error,
) {
	var (
		data    string
		expires int64
	)
	err := t.s.withConn(ctx, func(db *sql.DB) error {
		row := db.QueryRowContext(ctx, t.s.rebind(`
			DELETE FROM sessions
			WHERE sid=?
			RETURNING data, expires;`),
			id,
		)
		return row.Scan(&data, &expires)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("couldn't take session: %w", err)
	}

	rec := &session.Record{ID: id, Expires: fromTimestamp(expires)}
	if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
		t.s.log.Warn("undecodable session data", "sid", id, "error", err)
	}
	return rec, nil
}

// All returns every stored session, soonest to expire first. Rows whose data
// cannot be decoded are returned with empty Data so they can still be reaped.
func (t sessionTable) All(
	ctx context.Context,
) (
	[]session.Record,
	error,
) {
	var records []session.Record
	err := t.s.withConn(ctx, func(db *sql.DB) error {
		records = nil
		rows, err := db.QueryContext(ctx, `
			SELECT sid, data, expires
			FROM sessions
			ORDER BY expires ASC, sid ASC;`,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				rec     session.Record
				data    string
				expires int64
			)
			if err := rows.Scan(&rec.ID, &data, &expires); err != nil {
				return err
			}
			rec.Expires = fromTimestamp(expires)
			if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
				t.s.log.Warn("undecodable session data", "sid", rec.ID, "error", err)
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't list sessions: %w", err)
	}
	return records, nil
}
