package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"questkit/core"
	"questkit/engine"
)

// Option configures the Client.
type Option func(*Client)

// Client grants currency in the external identity/wallet service. Each
// grant carries a deterministic Idempotency-Key header so an at-least-once
// retry cannot double-credit an account.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a wallet client targeting the given baseURL
// (e.g., http://auth-service:8001).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// Grant credits qty units of item to the user's account. Failures are
// reported, never swallowed; the caller decides how to surface them.
func (c *Client) Grant(ctx context.Context, user core.UserID, item core.RewardItem, qty int, idempotencyKey string) error {
	if qty <= 0 {
		return fmt.Errorf("%w: grant quantity must be positive", core.ErrInvalidArgument)
	}

	var url string
	var payload map[string]int
	switch item {
	case core.ItemGold:
		url = fmt.Sprintf("%s/add-gold/%d", c.baseURL, user)
		payload = map[string]int{"gold": qty}
	case core.ItemDiamond:
		url = fmt.Sprintf("%s/add-diamonds/%d", c.baseURL, user)
		payload = map[string]int{"diamonds": qty}
	default:
		return fmt.Errorf("%w: unknown reward item %q", core.ErrInvalidArgument, item)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: wallet: %v", core.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: wallet returned %d: %s", core.ErrUpstreamUnavailable, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

var _ engine.Wallet = (*Client)(nil)
