package service

import (
	"context"
	"fmt"
)

type RefreshResult struct {
	AccessToken string
	ExpiresIn   int64
	Rotated     bool
}

// Refresh exchanges the stored refresh token of sub for a new access token,
// storing the rotated refresh token when the provider issues one.
func (s *Service) Refresh(
	ctx context.Context,
	sub string,
	credential string,
) (
	*RefreshResult,
	error,
) {
	if sub == "" {
		return nil, ErrMissingSubject
	}
	if s.requireCredential {
		if err := s.authorizeRefresh(ctx, sub, credential); err != nil {
			return nil, err
		}
	}

	token, found, err := s.tokens.GetRefreshToken(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, sub)
	}

	tokens, err := s.exchanger.Refresh(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExchange, err)
	}

	result := &RefreshResult{
		AccessToken: tokens.AccessToken,
		ExpiresIn:   tokens.ExpiresIn,
	}
	if tokens.RefreshToken != "" {
		if err := s.tokens.UpdateRefreshToken(ctx, sub, tokens.RefreshToken); err != nil {
			s.log.Error("couldn't store rotated refresh token", "sub", sub, "error", err)
		} else {
			result.Rotated = true
		}
	}
	return result, nil
}
