package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
)

var ErrStateMismatch = errors.New("state mismatch")

const stateBytes = 16

// IssueState stores a fresh random state value on the session and returns it.
func (m *Manager) IssueState(
	ctx context.Context,
	id string,
) (
	string,
	error,
) {
	rec, err := m.Load(ctx, id)
	if err != nil {
		return "", err
	}

	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("couldn't generate state: %w", err)
	}
	state := hex.EncodeToString(buf)

	rec.Data.OAuthState = state
	if err := m.store.Save(ctx, rec); err != nil {
		return "", fmt.Errorf("couldn't save session: %w", err)
	}
	return state, nil
}

// VerifyState checks returned against the state stored on the session. The
// session is taken out of the store before the comparison, so a state value
// verifies at most once even under concurrent callbacks. On success the
// session is put back without its state; on failure it stays gone.
func (m *Manager) VerifyState(
	ctx context.Context,
	id string,
	returned string,
) error {
	if id == "" {
		return fmt.Errorf("%w: %v", ErrStateMismatch, ErrNoSession)
	}
	rec, err := m.store.Take(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStateMismatch, err)
	}
	if rec.Expired(m.now()) {
		return fmt.Errorf("%w: %v", ErrStateMismatch, ErrNoSession)
	}

	stored := rec.Data.OAuthState
	if stored == "" || returned == "" ||
		subtle.ConstantTimeCompare([]byte(stored), []byte(returned)) != 1 {
		return ErrStateMismatch
	}

	rec.Data.OAuthState = ""
	if err := m.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("couldn't save session: %w", err)
	}
	return nil
}
