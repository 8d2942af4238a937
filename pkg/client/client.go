package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrNoToken       = errors.New("no refresh token for subject")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrBadRequest    = errors.New("bad request")
	ErrTokenRequest  = errors.New("failed to fetch token")
	ErrTokenResponse = errors.New("invalid token response")
)

const adminUser = "admin"

type Options struct {
	// Credential is sent as a bearer token on refresh requests.
	Credential string
	// AdminPassword enables Basic auth on admin requests.
	AdminPassword string
	HTTPClient    *http.Client
	Now           func() time.Time
}

type Client struct {
	baseURL       string
	credential    string
	adminPassword string
	httpClient    *http.Client
	now           func() time.Time
}

func New(baseURL string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		credential:    opts.Credential,
		adminPassword: opts.AdminPassword,
		httpClient:    httpClient,
		now:           now,
	}
}

// Refresh asks the relay for a fresh access token for sub.
func (c *Client) Refresh(
	ctx context.Context,
	sub string,
) (
	*AccessToken,
	error,
) {
	body, err := json.Marshal(map[string]string{"sub": sub})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/refresh", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.credential != "" {
		req.Header.Set("Authorization", "Bearer "+c.credential)
	}

	var response struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	issued := c.now()
	if err := c.do(req, &response); err != nil {
		return nil, err
	}
	if response.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrTokenResponse)
	}

	token := &AccessToken{
		Token:     response.AccessToken,
		ExpiresIn: response.ExpiresIn,
	}
	if response.ExpiresIn > 0 {
		token.Expiry = issued.Add(time.Duration(response.ExpiresIn) * time.Second)
	}
	return token, nil
}

func (c *Client) ListTokens(ctx context.Context) ([]TokenRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/admin/tokens", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenRequest, err)
	}
	c.adminAuth(req)

	records := []TokenRecord{}
	if err := c.do(req, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteToken removes the stored refresh token for sub. Deleting an absent
// subject succeeds.
func (c *Client) DeleteToken(ctx context.Context, sub string) error {
	if sub == "" {
		return fmt.Errorf("%w: empty subject", ErrBadRequest)
	}
	endpoint := c.baseURL + "/api/admin/tokens/" + url.PathEscape(sub)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenRequest, err)
	}
	c.adminAuth(req)

	var response struct {
		Success bool `json:"success"`
	}
	if err := c.do(req, &response); err != nil {
		return err
	}
	if !response.Success {
		return fmt.Errorf("%w: delete not acknowledged", ErrTokenResponse)
	}
	return nil
}

func (c *Client) adminAuth(req *http.Request) {
	if c.adminPassword != "" {
		req.SetBasicAuth(adminUser, c.adminPassword)
	}
}

func (c *Client) do(req *http.Request, out any) error {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenRequest, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenResponse, err)
	}

	if res.StatusCode != http.StatusOK {
		return statusError(res.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenResponse, err)
	}
	return nil
}

func statusError(status int, body []byte) error {
	var response struct {
		Error string `json:"error"`
	}
	msg := http.StatusText(status)
	if json.Unmarshal(body, &response) == nil && response.Error != "" {
		msg = response.Error
	}

	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNoToken, msg)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrBadRequest, msg)
	default:
		return fmt.Errorf("%w: %d %s", ErrTokenRequest, status, msg)
	}
}
