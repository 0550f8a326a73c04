package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questkit/core"
)

// walletStub records grants and deduplicates by Idempotency-Key the way
// the real wallet service is expected to.
type walletStub struct {
	mu     sync.Mutex
	gold   map[string]int
	seen   map[string]bool
	grants int
}

func newWalletStub() *walletStub {
	return &walletStub{gold: map[string]int{}, seen: map[string]bool{}}
}

func (s *walletStub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		key := r.Header.Get("Idempotency-Key")
		if key == "" {
			http.Error(w, "missing idempotency key", http.StatusBadRequest)
			return
		}
		if s.seen[key] {
			w.WriteHeader(http.StatusOK) // replay: acknowledged, not re-applied
			return
		}
		var payload map[string]int
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		s.seen[key] = true
		s.grants++
		s.gold[r.URL.Path] += payload["gold"] + payload["diamonds"]
		w.WriteHeader(http.StatusOK)
	})
}

func TestGrantGold(t *testing.T) {
	stub := newWalletStub()
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	require.NoError(t, c.Grant(context.Background(), 7, core.ItemGold, 50, "key-1"))
	assert.Equal(t, 50, stub.gold["/add-gold/7"])
}

func TestGrantDiamondPath(t *testing.T) {
	stub := newWalletStub()
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	require.NoError(t, c.Grant(context.Background(), 7, core.ItemDiamond, 3, "key-2"))
	assert.Equal(t, 3, stub.gold["/add-diamonds/7"])
}

func TestGrantReplaySameKeyDoesNotDoubleGrant(t *testing.T) {
	stub := newWalletStub()
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	require.NoError(t, c.Grant(context.Background(), 7, core.ItemGold, 50, "key-3"))
	require.NoError(t, c.Grant(context.Background(), 7, core.ItemGold, 50, "key-3"))

	assert.Equal(t, 1, stub.grants)
	assert.Equal(t, 50, stub.gold["/add-gold/7"])
}

func TestGrantRejectsUnknownItem(t *testing.T) {
	c, err := NewClient("http://wallet.invalid")
	require.NoError(t, err)

	err = c.Grant(context.Background(), 7, core.RewardItem("rubies"), 1, "key")
	require.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestGrantRejectsNonPositiveQty(t *testing.T) {
	c, err := NewClient("http://wallet.invalid")
	require.NoError(t, err)

	err = c.Grant(context.Background(), 7, core.ItemGold, 0, "key")
	require.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestGrantSurfacesWalletErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "user not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	err = c.Grant(context.Background(), 7, core.ItemGold, 50, "key")
	require.ErrorIs(t, err, core.ErrUpstreamUnavailable)
	assert.Contains(t, err.Error(), "404")
}
