package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const credentialBytes = 32

// issueCredential generates a refresh credential for sub and stores its
// hash. Any earlier credential stops working.
func (s *Service) issueCredential(
	ctx context.Context,
	sub string,
) (
	string,
	error,
) {
	buf := make([]byte, credentialBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("couldn't generate credential: %w", err)
	}
	credential := base64.RawURLEncoding.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(credential), s.passwordMode.Cost())
	if err != nil {
		return "", fmt.Errorf("couldn't hash credential: %w", err)
	}
	if err := s.tokens.SetCredentialHash(ctx, sub, hash); err != nil {
		return "", err
	}
	return credential, nil
}

// authorizeRefresh checks credential against the hash stored for sub. An
// unknown subject is reported as unauthorized so callers cannot probe which
// subjects exist.
func (s *Service) authorizeRefresh(
	ctx context.Context,
	sub string,
	credential string,
) error {
	if credential == "" {
		return ErrUnauthorized
	}

	hash, err := s.tokens.GetCredentialHash(ctx, sub)
	if errors.Is(err, ErrRecordNotFound) {
		return ErrUnauthorized
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(credential)); err != nil {
		return ErrUnauthorized
	}
	return nil
}
