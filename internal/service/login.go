package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// LoginURL issues a state value on the session and returns the provider
// authorization URL carrying it.
func (s *Service) LoginURL(
	ctx context.Context,
	sessionID string,
) (
	string,
	error,
) {
	state, err := s.sessions.IssueState(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("%w: couldn't issue state: %v", ErrInternal, err)
	}
	return s.exchanger.AuthCodeURL(state), nil
}

// subjectFromIDToken reads the sub claim from the id_token payload. The token
// arrives directly from the token endpoint, so neither the signature nor the
// header is checked.
func subjectFromIDToken(idToken string) (string, error) {
	if idToken == "" {
		return "", fmt.Errorf("%w: no id_token in response", ErrIdentityToken)
	}

	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: malformed id_token", ErrIdentityToken)
	}
	payload, err := jwt.NewParser().DecodeSegment(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIdentityToken, err)
	}
	claims := jwt.MapClaims{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrIdentityToken, err)
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIdentityToken, err)
	}
	if sub == "" {
		return "", fmt.Errorf("%w: no sub claim", ErrIdentityToken)
	}
	return sub, nil
}
