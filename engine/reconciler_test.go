package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questkit/core"
)

func failedClaim(t *testing.T, svc *QuestService, wallet *fakeWallet, user core.UserID) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := svc.TrackSignIn(ctx, user)
		require.NoError(t, err)
	}
	wallet.fail = true
	_, _, err := svc.Claim(ctx, user, 1)
	require.ErrorIs(t, err, core.ErrSettlementFailed)
}

func TestReconcilerRecoversFailedSettlement(t *testing.T) {
	svc, ledger, catalog, wallet := newTestService(t)
	failedClaim(t, svc, wallet, 7)

	recovered := make(chan core.Event, 1)
	bus := NewEventBus(DispatchSync)
	defer bus.Close()
	bus.Subscribe(core.EventSettlementRecovered, func(_ context.Context, ev core.Event) {
		recovered <- ev
	})

	wallet.fail = false
	rec := NewReconciler(ledger, catalog, wallet, bus, time.Minute)
	rec.Tick(context.Background())

	stored, err := ledger.Read(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.Equal(t, core.SettlementSettled, stored.Settlement)
	assert.Equal(t, 50, wallet.total(7, core.ItemGold))

	select {
	case ev := <-recovered:
		assert.Equal(t, core.UserID(7), ev.UserID)
	default:
		t.Fatal("no recovery event published")
	}

	// A second pass finds nothing and grants nothing extra.
	rec.Tick(context.Background())
	assert.Equal(t, 50, wallet.total(7, core.ItemGold))
}

func TestReconcilerLeavesFailureInPlaceWhileWalletDown(t *testing.T) {
	svc, ledger, catalog, wallet := newTestService(t)
	failedClaim(t, svc, wallet, 7)

	rec := NewReconciler(ledger, catalog, wallet, nil, time.Minute)
	rec.Tick(context.Background())

	stored, err := ledger.Read(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.Equal(t, core.SettlementFailed, stored.Settlement)
}

func TestReconcilerStartStop(t *testing.T) {
	svc, ledger, catalog, wallet := newTestService(t)
	failedClaim(t, svc, wallet, 7)
	wallet.fail = false

	rec := NewReconciler(ledger, catalog, wallet, nil, 5*time.Millisecond)
	rec.Start(context.Background())
	rec.Start(context.Background()) // second Start is a no-op

	deadline := time.After(2 * time.Second)
	for {
		stored, err := ledger.Read(context.Background(), 7, 1)
		require.NoError(t, err)
		if stored.Settlement == core.SettlementSettled {
			break
		}
		select {
		case <-deadline:
			t.Fatal("reconciler never settled the record")
		case <-time.After(10 * time.Millisecond):
		}
	}
	rec.Stop()
}
