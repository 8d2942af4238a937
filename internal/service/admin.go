package service

import (
	"context"
	"fmt"

	"git.sr.ht/~jakintosh/oauth-relay/internal/models"
)

// ListTokens returns every stored record, most recently written first.
func (s *Service) ListTokens(
	ctx context.Context,
) (
	[]models.RefreshTokenRecord,
	error,
) {
	records, err := s.tokens.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if records == nil {
		records = []models.RefreshTokenRecord{}
	}
	return records, nil
}

// DeleteToken removes the record for sub. Deleting an absent subject
// succeeds.
func (s *Service) DeleteToken(
	ctx context.Context,
	sub string,
) error {
	if sub == "" {
		return ErrMissingSubject
	}
	deleted, err := s.tokens.DeleteRefreshToken(ctx, sub)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if deleted {
		s.log.Info("deleted refresh token", "sub", sub)
	}
	return nil
}
