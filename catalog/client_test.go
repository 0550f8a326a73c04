package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questkit/core"
)

func newCatalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/quests/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quests/":
			_ = json.NewEncoder(w).Encode([]core.QuestDefinition{
				{QuestID: 1, Name: "sign-in-3-days", Streak: 3, Duplication: 1, RewardID: 10},
				{QuestID: 2, Name: "first-login", Streak: 1, Duplication: 1, AutoClaim: true, RewardID: 11},
			})
		case "/quests/1/":
			_ = json.NewEncoder(w).Encode(core.QuestDefinition{
				QuestID: 1, Name: "sign-in-3-days", Streak: 3, Duplication: 1, RewardID: 10,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	mux.HandleFunc("/rewards/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/rewards/10/" {
			_ = json.NewEncoder(w).Encode(core.RewardDefinition{
				RewardID: 10, Name: "gold-rush", Item: core.ItemGold, Qty: 50,
			})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	return httptest.NewServer(mux)
}

func TestClient_Quest(t *testing.T) {
	srv := newCatalogServer(t)
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	def, err := c.Quest(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "sign-in-3-days", def.Name)
	assert.Equal(t, 3, def.Streak)

	_, err = c.Quest(context.Background(), 99)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestClient_Quests(t *testing.T) {
	srv := newCatalogServer(t)
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	defs, err := c.Quests(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.True(t, defs[1].AutoClaim)
}

func TestClient_Reward(t *testing.T) {
	srv := newCatalogServer(t)
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	reward, err := c.Reward(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, core.ItemGold, reward.Item)
	assert.Equal(t, 50, reward.Qty)

	_, err = c.Reward(context.Background(), 99)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestClient_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Quests(context.Background())
	require.ErrorIs(t, err, core.ErrUpstreamUnavailable)
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // immediately closed: connection refused

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Quest(context.Background(), 1)
	require.ErrorIs(t, err, core.ErrUpstreamUnavailable)
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient("  ")
	require.Error(t, err)
}
