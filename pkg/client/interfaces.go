package client

import "context"

// Refresher obtains access tokens for a subject.
// Consuming projects should depend on this interface rather than *Client
// to enable testing with stub implementations.
type Refresher interface {
	Refresh(ctx context.Context, sub string) (*AccessToken, error)
}

// Admin manages the refresh tokens held by the relay.
type Admin interface {
	ListTokens(ctx context.Context) ([]TokenRecord, error)
	DeleteToken(ctx context.Context, sub string) error
}

var _ Refresher = (*Client)(nil)
var _ Admin = (*Client)(nil)
