package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"questkit/core"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the QuestKit HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
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

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// AssignQuest opens a quest lifecycle for a user.
func (c *Client) AssignQuest(ctx context.Context, userID, questID int64) (ProgressRecord, error) {
	if err := validateIDs(userID, questID); err != nil {
		return ProgressRecord{}, err
	}
	var body struct {
		Record ProgressRecord `json:"record"`
	}
	if err := c.postJSON(ctx, "/assign-quest", questBody{UserID: userID, QuestID: questID}, &body); err != nil {
		return ProgressRecord{}, err
	}
	return body.Record, nil
}

// CompleteQuest runs an explicit completion check for an assigned quest.
func (c *Client) CompleteQuest(ctx context.Context, userID, questID int64) (ProgressRecord, error) {
	if err := validateIDs(userID, questID); err != nil {
		return ProgressRecord{}, err
	}
	var body struct {
		Record ProgressRecord `json:"record"`
	}
	if err := c.postJSON(ctx, "/complete-quest", questBody{UserID: userID, QuestID: questID}, &body); err != nil {
		return ProgressRecord{}, err
	}
	return body.Record, nil
}

// ClaimQuest claims a completed quest and returns the granted reward.
func (c *Client) ClaimQuest(ctx context.Context, userID, questID int64) (ProgressRecord, Reward, error) {
	if err := validateIDs(userID, questID); err != nil {
		return ProgressRecord{}, Reward{}, err
	}
	var body struct {
		Record ProgressRecord `json:"record"`
		Reward Reward         `json:"reward"`
	}
	if err := c.postJSON(ctx, "/claim-quest", questBody{UserID: userID, QuestID: questID}, &body); err != nil {
		return ProgressRecord{}, Reward{}, err
	}
	return body.Record, body.Reward, nil
}

// TrackSignIn applies one sign-in tick across all catalog quests and
// returns the per-quest outcome messages.
func (c *Client) TrackSignIn(ctx context.Context, userID int64) ([]string, error) {
	if userID <= 0 {
		return nil, ErrInvalidUserID
	}
	var body struct {
		Messages []string `json:"messages"`
	}
	if err := c.postJSON(ctx, "/track-sign-in", signInBody{UserID: userID}, &body); err != nil {
		return nil, err
	}
	return body.Messages, nil
}

// UserQuests fetches every progress record held for a user.
func (c *Client) UserQuests(ctx context.Context, userID int64) ([]ProgressRecord, error) {
	if userID <= 0 {
		return nil, ErrInvalidUserID
	}
	u := fmt.Sprintf("%s/user-quests/%d", c.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body struct {
		Quests []ProgressRecord `json:"quests"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}
	return body.Quests, nil
}

// Health probes /healthz and returns status + ledger check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	u := c.baseURL + "/healthz"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return HealthStatus{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HealthStatus{}, err
	}
	defer resp.Body.Close()

	var hs HealthStatus
	if err := decodeJSON(resp, &hs); err != nil {
		return HealthStatus{}, err
	}
	return hs, nil
}

// SubscribeEvents connects to the WebSocket stream and emits core.Event values.
// The returned channel closes when ctx is done or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				var evt core.Event
				if err := conn.ReadJSON(&evt); err != nil {
					return
				}
				select {
				case out <- evt:
				default:
					// drop if consumer is slow
				}
			}
		}
	}()
	return out, nil
}

type questBody struct {
	UserID  int64 `json:"user_id"`
	QuestID int64 `json:"quest_id"`
}

type signInBody struct {
	UserID int64 `json:"user_id"`
}

func (c *Client) postJSON(ctx context.Context, path string, payload, target any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, target)
}

func validateIDs(userID, questID int64) error {
	if userID <= 0 {
		return ErrInvalidUserID
	}
	if questID <= 0 {
		return ErrInvalidQuestID
	}
	return nil
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
