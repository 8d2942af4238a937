// Package service implements the relay's authorization flow and the
// operations on stored refresh tokens. It depends on storage, session and
// token exchange interfaces and delegates to them.
package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"git.sr.ht/~jakintosh/oauth-relay/internal/exchange"
)

var (
	ErrMissingCode    = errors.New("no authorization code")
	ErrInvalidState   = errors.New("invalid state")
	ErrExchange       = errors.New("token exchange failed")
	ErrIdentityToken  = errors.New("invalid identity token")
	ErrMissingSubject = errors.New("no sub provided")
	ErrTokenNotFound  = errors.New("no refresh token found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInternal       = errors.New("internal error")
)

// PasswordMode controls bcrypt cost for credential hashing.
// Use PasswordModeProduction for real deployments and PasswordModeTesting only in tests.
type PasswordMode int

const (
	// PasswordModeProduction uses bcrypt.DefaultCost (10).
	PasswordModeProduction PasswordMode = iota
	// PasswordModeTesting uses bcrypt.MinCost (4) for fast test execution.
	// WARNING: This mode will panic if used outside of go test.
	PasswordModeTesting
)

// Cost returns the bcrypt cost for this mode.
func (m PasswordMode) Cost() int {
	switch m {
	case PasswordModeTesting:
		if !testing.Testing() {
			panic("service: PasswordModeTesting used outside of test environment")
		}
		return bcrypt.MinCost
	default:
		return bcrypt.DefaultCost
	}
}

// Exchanger performs grants against the identity provider.
type Exchanger interface {
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*exchange.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*exchange.Tokens, error)
}

// SessionStates issues and verifies the per-login state value.
type SessionStates interface {
	IssueState(ctx context.Context, sessionID string) (string, error)
	VerifyState(ctx context.Context, sessionID string, returned string) error
	Destroy(ctx context.Context, sessionID string) error
}

type Options struct {
	// RequireRefreshCredential gates Refresh behind a per-subject credential
	// issued at callback time.
	RequireRefreshCredential bool
	PasswordMode             PasswordMode
	Logger                   *slog.Logger
}

type Service struct {
	tokens            TokenRepository
	exchanger         Exchanger
	sessions          SessionStates
	requireCredential bool
	passwordMode      PasswordMode
	log               *slog.Logger
}

func New(
	tokens TokenRepository,
	exchanger Exchanger,
	sessions SessionStates,
	opts Options,
) *Service {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		tokens:            tokens,
		exchanger:         exchanger,
		sessions:          sessions,
		requireCredential: opts.RequireRefreshCredential,
		passwordMode:      opts.PasswordMode,
		log:               log.With("component", "service"),
	}
}

func (s *Service) RequiresCredential() bool {
	return s.requireCredential
}

// DisplayMessage returns a message for err that is safe to show on the
// callback error page.
func DisplayMessage(err error) string {
	var failure *exchange.Failure
	switch {
	case errors.Is(err, ErrMissingCode):
		return "No authorization code received"
	case errors.Is(err, ErrInvalidState):
		return "Invalid state parameter"
	case errors.As(err, &failure):
		return failure.Message()
	case errors.Is(err, ErrIdentityToken):
		return "Could not read identity token"
	default:
		return "Authorization failed"
	}
}
