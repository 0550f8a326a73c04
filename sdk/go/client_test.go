package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"questkit/core"
)

func TestClient_QuestFlow(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	client, err := NewClient(srv.URL+"/api", WithAPIKey("k1"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx := context.Background()

	rec, err := client.AssignQuest(ctx, 7, 1)
	if err != nil {
		t.Fatalf("assign quest: %v", err)
	}
	if rec.Status != "in_progress" || rec.Cycle != 1 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	msgs, err := client.TrackSignIn(ctx, 7)
	if err != nil {
		t.Fatalf("track sign-in: %v", err)
	}
	if len(msgs) != 1 || msgs[0] != "Progress for quest 'Daily Sign-In': 2/3" {
		t.Fatalf("unexpected messages: %v", msgs)
	}

	claimed, reward, err := client.ClaimQuest(ctx, 7, 1)
	if err != nil {
		t.Fatalf("claim quest: %v", err)
	}
	if claimed.Status != "claimed" || reward.Qty != 50 || reward.Item != "gold" {
		t.Fatalf("unexpected claim: %+v %+v", claimed, reward)
	}

	quests, err := client.UserQuests(ctx, 7)
	if err != nil {
		t.Fatalf("user quests: %v", err)
	}
	if len(quests) != 1 || quests[0].QuestID != 1 {
		t.Fatalf("unexpected quests: %+v", quests)
	}

	health, err := client.Health(ctx)
	if err != nil || health.Status != "healthy" {
		t.Fatalf("health: %+v err=%v", health, err)
	}
}

func TestClient_ValidatesIDs(t *testing.T) {
	client, err := NewClient("http://localhost:0/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	if _, err := client.AssignQuest(ctx, 0, 1); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
	if _, err := client.AssignQuest(ctx, 7, 0); !errors.Is(err, ErrInvalidQuestID) {
		t.Fatalf("expected ErrInvalidQuestID, got %v", err)
	}
	if _, err := client.TrackSignIn(ctx, -1); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
}

func TestClient_SurfacesAPIErrors(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	client, err := NewClient(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.AssignQuest(context.Background(), 7, 99)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "not_found" {
		t.Fatalf("unexpected API error: %+v", apiErr)
	}
}

func TestClient_SubscribeEvents(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	client, err := NewClient(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	events, err := client.SubscribeEvents(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	select {
	case evt := <-events:
		if evt.Type != core.EventQuestClaimed {
			t.Fatalf("unexpected event type: %s", evt.Type)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

// test server implementing the minimal API surface expected by the SDK.
func newTestServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"healthy","checks":{"ledger":"ok"}}`))
	})
	mux.HandleFunc("/api/assign-quest", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID  int64 `json:"user_id"`
			QuestID int64 `json:"quest_id"`
		}
		_ = jsonDecode(r, &req)
		w.Header().Set("Content-Type", "application/json")
		if req.QuestID == 99 {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"not_found","message":"quest 99 not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"record":{"user_id":7,"quest_id":1,"cycle":1,"status":"in_progress","progress":0}}`))
	})
	mux.HandleFunc("/api/track-sign-in", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":["Progress for quest 'Daily Sign-In': 2/3"]}`))
	})
	mux.HandleFunc("/api/claim-quest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"record":{"user_id":7,"quest_id":1,"cycle":1,"status":"claimed","progress":3,"settlement":"settled"},` +
			`"reward":{"reward_id":10,"reward_name":"Gold Pouch","reward_item":"gold","reward_qty":50}}`))
	})
	mux.HandleFunc("/api/user-quests/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"quests":[{"user_id":7,"quest_id":1,"cycle":1,"status":"claimed","progress":3}]}`))
	})

	upgrader := websocket.Upgrader{}
	mux.HandleFunc("/api/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		evt := core.NewQuestClaimed(7, 1, 1, core.ItemGold, 50)
		_ = conn.WriteJSON(evt)
	})

	return httptest.NewServer(mux)
}

func jsonDecode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
