package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ProgressRecord mirrors the public JSON surface of a quest progress record.
type ProgressRecord struct {
	UserID     int64     `json:"user_id"`
	QuestID    int64     `json:"quest_id"`
	Cycle      int       `json:"cycle"`
	Status     string    `json:"status"`
	Progress   int       `json:"progress"`
	Settlement string    `json:"settlement,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Reward mirrors the catalog's reward definition.
type Reward struct {
	RewardID int64  `json:"reward_id"`
	Name     string `json:"reward_name"`
	Item     string `json:"reward_item"`
	Qty      int    `json:"reward_qty"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]interface{} `json:"checks"`
}

// APIError carries the structured error body returned by the server.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed: status %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Code == "" {
			return fmt.Errorf("request failed: status %d", resp.StatusCode)
		}
		return apiErr
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrInvalidUserID is returned when the user id is not positive.
var ErrInvalidUserID = errors.New("user id must be positive")

// ErrInvalidQuestID is returned when the quest id is not positive.
var ErrInvalidQuestID = errors.New("quest id must be positive")
