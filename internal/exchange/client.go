// Package exchange talks to the identity provider's token endpoint.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

type Config struct {
	AuthorizationURL string
	TokenURL         string
	ClientID         string
	ClientSecret     string
	RedirectURI      string
	Scope            string

	// Timeout bounds each token endpoint call. Zero means 15 seconds.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Tokens is the normalized token endpoint response. RefreshToken is empty
// when the provider did not issue a new one.
type Tokens struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	ExpiresIn    int64
}

// Client performs authorization-code and refresh-token grants. It never
// retries; a failed call is reported as a *Failure.
type Client struct {
	oauth   *oauth2.Config
	timeout time.Duration
	http    *http.Client
	now     func() time.Time
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       strings.Fields(cfg.Scope),
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizationURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		timeout: timeout,
		http:    httpClient,
		now:     time.Now,
	}
}

// AuthCodeURL returns the provider authorization URL carrying
// response_type=code, client_id, redirect_uri, scope and state.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

func (c *Client) ExchangeCode(
	ctx context.Context,
	code string,
) (
	*Tokens,
	error,
) {
	ctx, cancel := c.context(ctx)
	defer cancel()

	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return c.normalize(tok, ""), nil
}

func (c *Client) Refresh(
	ctx context.Context,
	refreshToken string,
) (
	*Tokens,
	error,
) {
	ctx, cancel := c.context(ctx)
	defer cancel()

	src := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classify(ctx, err)
	}
	return c.normalize(tok, refreshToken), nil
}

func (c *Client) context(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	return context.WithValue(ctx, oauth2.HTTPClient, c.http), cancel
}

// normalize converts tok. The oauth2 package echoes the request's refresh
// token when the provider omits one, so an unchanged value is dropped.
func (c *Client) normalize(
	tok *oauth2.Token,
	previous string,
) *Tokens {
	out := &Tokens{
		AccessToken: tok.AccessToken,
		ExpiresIn:   expiresIn(tok, c.now()),
	}
	if tok.RefreshToken != previous {
		out.RefreshToken = tok.RefreshToken
	}
	if id, ok := tok.Extra("id_token").(string); ok {
		out.IDToken = id
	}
	return out
}

func expiresIn(
	tok *oauth2.Token,
	now time.Time,
) int64 {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	if tok.Expiry.IsZero() {
		return 0
	}
	return int64(tok.Expiry.Sub(now).Round(time.Second).Seconds())
}

// Failure is a rejected or unreachable token endpoint call.
type Failure struct {
	Code        string
	Description string
	Status      int
	Err         error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("token exchange failed: %s: %v", f.Message(), f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Message is the provider's description of the failure when it sent one,
// otherwise a generic message.
func (f *Failure) Message() string {
	switch {
	case f.Description != "":
		return f.Description
	case f.Code != "":
		return f.Code
	default:
		return "token exchange failed"
	}
}

func classify(
	ctx context.Context,
	err error,
) error {
	f := &Failure{Err: err}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		f.Code = re.ErrorCode
		f.Description = re.ErrorDescription
		if re.Response != nil {
			f.Status = re.Response.StatusCode
		}
		return f
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		f.Description = "token endpoint timed out"
	}
	return f
}
