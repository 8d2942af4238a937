package service

import (
	"context"
	"errors"

	"git.sr.ht/~jakintosh/oauth-relay/internal/models"
)

// ErrRecordNotFound is returned by a TokenRepository when the subject has no
// stored record.
var ErrRecordNotFound = errors.New("record not found")

// TokenRepository handles persistence of refresh tokens
type TokenRepository interface {
	UpsertRefreshToken(ctx context.Context, sub, token string) error
	GetRefreshToken(ctx context.Context, sub string) (token string, found bool, err error)
	UpdateRefreshToken(ctx context.Context, sub, token string) error
	DeleteRefreshToken(ctx context.Context, sub string) (deleted bool, err error)
	ListStale(ctx context.Context, maxAgeDays int) ([]models.RefreshTokenRecord, error)
	ListAll(ctx context.Context) ([]models.RefreshTokenRecord, error)
	SetCredentialHash(ctx context.Context, sub string, hash []byte) error
	GetCredentialHash(ctx context.Context, sub string) ([]byte, error)
}
