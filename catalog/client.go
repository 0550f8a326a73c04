package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"questkit/core"
	"questkit/engine"
)

// Option configures the Client.
type Option func(*Client)

// Client reads quest and reward definitions from the catalog service.
// The catalog is eventually consistent and possibly slow; every call is
// bounded by the HTTP client timeout.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a catalog client targeting the given baseURL
// (e.g., http://quest-catalog:8002).
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

// Quest fetches a single quest definition.
func (c *Client) Quest(ctx context.Context, id core.QuestID) (core.QuestDefinition, error) {
	var def core.QuestDefinition
	if err := c.getJSON(ctx, fmt.Sprintf("%s/quests/%d/", c.baseURL, id), &def); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.QuestDefinition{}, fmt.Errorf("%w: quest %d", core.ErrNotFound, id)
		}
		return core.QuestDefinition{}, err
	}
	return def, nil
}

// Quests fetches every quest definition known to the catalog.
func (c *Client) Quests(ctx context.Context) ([]core.QuestDefinition, error) {
	var defs []core.QuestDefinition
	if err := c.getJSON(ctx, c.baseURL+"/quests/", &defs); err != nil {
		return nil, err
	}
	return defs, nil
}

// Reward fetches a single reward definition.
func (c *Client) Reward(ctx context.Context, id core.RewardID) (core.RewardDefinition, error) {
	var def core.RewardDefinition
	if err := c.getJSON(ctx, fmt.Sprintf("%s/rewards/%d/", c.baseURL, id), &def); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.RewardDefinition{}, fmt.Errorf("%w: reward %d", core.ErrNotFound, id)
		}
		return core.RewardDefinition{}, err
	}
	return def, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: catalog: %v", core.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return core.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: catalog returned %d", core.ErrUpstreamUnavailable, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: catalog: decoding response: %v", core.ErrUpstreamUnavailable, err)
	}
	return nil
}

var _ engine.Catalog = (*Client)(nil)
