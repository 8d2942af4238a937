package service

import (
	"context"
	"fmt"
)

type CallbackResult struct {
	AccessToken string
	Subject     string
	ExpiresIn   int64

	// Credential is set once, when a refresh credential was issued.
	Credential string
	// Degraded reports that the refresh token could not be persisted.
	Degraded bool
}

// HandleCallback completes an authorization attempt. The session is
// destroyed when it returns, whatever the outcome.
func (s *Service) HandleCallback(
	ctx context.Context,
	sessionID string,
	code string,
	state string,
) (
	*CallbackResult,
	error,
) {
	defer func() {
		if err := s.sessions.Destroy(ctx, sessionID); err != nil {
			s.log.Warn("couldn't destroy session", "error", err)
		}
	}()

	if code == "" {
		return nil, ErrMissingCode
	}
	if err := s.sessions.VerifyState(ctx, sessionID, state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	tokens, err := s.exchanger.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExchange, err)
	}

	sub, err := subjectFromIDToken(tokens.IDToken)
	if err != nil {
		return nil, err
	}

	result := &CallbackResult{
		AccessToken: tokens.AccessToken,
		Subject:     sub,
		ExpiresIn:   tokens.ExpiresIn,
	}
	if tokens.RefreshToken == "" {
		return result, nil
	}

	if err := s.tokens.UpsertRefreshToken(ctx, sub, tokens.RefreshToken); err != nil {
		s.log.Error("couldn't store refresh token", "sub", sub, "error", err)
		result.Degraded = true
		return result, nil
	}
	if s.requireCredential {
		credential, err := s.issueCredential(ctx, sub)
		if err != nil {
			s.log.Error("couldn't issue refresh credential", "sub", sub, "error", err)
			result.Degraded = true
			return result, nil
		}
		result.Credential = credential
	}
	return result, nil
}
