package client

import (
	"time"

	"git.sr.ht/~jakintosh/oauth-relay/internal/models"
)

type TokenRecord = models.RefreshTokenRecord

// AccessToken is an access token obtained through the relay. Expiry is zero
// when the provider did not report a lifetime.
type AccessToken struct {
	Token     string
	ExpiresIn int64
	Expiry    time.Time
}

func (t *AccessToken) Expired(now time.Time) bool {
	return !t.Expiry.IsZero() && !now.Before(t.Expiry)
}
