package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"git.sr.ht/~jakintosh/oauth-relay/internal/models"
	"git.sr.ht/~jakintosh/oauth-relay/internal/service"
)

func (s *Store) TokenRepository() service.TokenRepository {
	return s
}

// UpsertRefreshToken writes token for sub in a single statement. A write
// carrying an older timestamp than the stored row does not overwrite it.
func (s *Store) UpsertRefreshToken(
	ctx context.Context,
	sub string,
	token string,
) error {
	now := s.timestamp()
	err := s.withConn(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, s.rebind(`
			INSERT INTO refresh_tokens (sub, refresh_token, created_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (sub) DO UPDATE
			SET refresh_token = excluded.refresh_token,
				updated_at = excluded.updated_at
			WHERE excluded.updated_at >= refresh_tokens.updated_at;`),
			sub,
			token,
			now,
			now,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("couldn't upsert refresh token: %w", err)
	}
	return nil
}

func (s *Store) GetRefreshToken(
	ctx context.Context,
	sub string,
) (
	string,
	bool,
	error,
) {
	var token string
	err := s.withConn(ctx, func(db *sql.DB) error {
		row := db.QueryRowContext(ctx, s.rebind(`
			SELECT refresh_token
			FROM refresh_tokens
			WHERE sub=?;`),
			sub,
		)
		return row.Scan(&token)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("couldn't scan refresh token: %w", err)
	}
	return token, true, nil
}

// UpdateRefreshToken replaces the token of an existing record. It returns
// ErrNotFound, and writes nothing, when sub has no record.
func (s *Store) UpdateRefreshToken(
	ctx context.Context,
	sub string,
	token string,
) error {
	var empty bool
	err := s.withConn(ctx, func(db *sql.DB) error {
		result, err := db.ExecContext(ctx, s.rebind(`
			UPDATE refresh_tokens
			SET refresh_token=?, updated_at=?
			WHERE sub=?;`),
			token,
			s.timestamp(),
			sub,
		)
		if err != nil {
			return err
		}
		empty = resultsEmpty(result)
		return nil
	})
	if err != nil {
		return fmt.Errorf("couldn't update refresh token: %w", err)
	}
	if empty {
		return fmt.Errorf("%w: %s", ErrNotFound, sub)
	}
	return nil
}

func (s *Store) DeleteRefreshToken(
	ctx context.Context,
	sub string,
) (
	bool,
	error,
) {
	var deleted bool
	err := s.withConn(ctx, func(db *sql.DB) error {
		result, err := db.ExecContext(ctx, s.rebind(`
			DELETE FROM refresh_tokens
			WHERE sub=?;`),
			sub,
		)
		if err != nil {
			return err
		}
		deleted = !resultsEmpty(result)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("couldn't delete refresh token: %w", err)
	}
	return deleted, nil
}

// ListStale returns records last written more than maxAgeDays ago, oldest
// first.
func (s *Store) ListStale(
	ctx context.Context,
	maxAgeDays int,
) (
	[]models.RefreshTokenRecord,
	error,
) {
	age := time.Duration(maxAgeDays) * 24 * time.Hour
	cutoff := s.now().UTC().Add(-age).UnixNano()

	records, err := s.queryRecords(ctx, `
		SELECT sub, refresh_token, created_at, updated_at
		FROM refresh_tokens
		WHERE updated_at < ?
		ORDER BY updated_at ASC, sub ASC;`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("couldn't list stale refresh tokens: %w", err)
	}
	return records, nil
}

// ListAll returns every record, most recently written first.
func (s *Store) ListAll(
	ctx context.Context,
) (
	[]models.RefreshTokenRecord,
	error,
) {
	records, err := s.queryRecords(ctx, `
		SELECT sub, refresh_token, created_at, updated_at
		FROM refresh_tokens
		ORDER BY updated_at DESC, sub ASC;`,
	)
	if err != nil {
		return nil, fmt.Errorf("couldn't list refresh tokens: %w", err)
	}
	return records, nil
}

func (s *Store) SetCredentialHash(
	ctx context.Context,
	sub string,
	hash []byte,
) error {
	var empty bool
	err := s.withConn(ctx, func(db *sql.DB) error {
		result, err := db.ExecContext(ctx, s.rebind(`
			UPDATE refresh_tokens
			SET credential_hash=?
			WHERE sub=?;`),
			hash,
			sub,
		)
		if err != nil {
			return err
		}
		empty = resultsEmpty(result)
		return nil
	})
	if err != nil {
		return fmt.Errorf("couldn't set credential hash: %w", err)
	}
	if empty {
		return fmt.Errorf("%w: %s", ErrNotFound, sub)
	}
	return nil
}

// GetCredentialHash returns ErrNotFound when sub has no record or no
// credential has been issued for it.
func (s *Store) GetCredentialHash(
	ctx context.Context,
	sub string,
) (
	[]byte,
	error,
) {
	var hash []byte
	err := s.withConn(ctx, func(db *sql.DB) error {
		row := db.QueryRowContext(ctx, s.rebind(`
			SELECT credential_hash
			FROM refresh_tokens
			WHERE sub=?;`),
			sub,
		)
		return row.Scan(&hash)
	})
	if errors.Is(err, sql.ErrNoRows) || (err == nil && len(hash) == 0) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sub)
	}
	if err != nil {
		return nil, fmt.Errorf("couldn't scan credential hash: %w", err)
	}
	return hash, nil
}

func (s *Store) queryRecords(
	ctx context.Context,
	query string,
	args ...any,
) (
	[]models.RefreshTokenRecord,
	error,
) {
	var records []models.RefreshTokenRecord
	err := s.withConn(ctx, func(db *sql.DB) error {
		records = nil
		rows, err := db.QueryContext(ctx, s.rebind(query), args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				rec       models.RefreshTokenRecord
				createdAt int64
				updatedAt int64
			)
			if err := rows.Scan(&rec.Subject, &rec.RefreshToken, &createdAt, &updatedAt); err != nil {
				return err
			}
			rec.CreatedAt = fromTimestamp(createdAt)
			rec.UpdatedAt = fromTimestamp(updatedAt)
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
