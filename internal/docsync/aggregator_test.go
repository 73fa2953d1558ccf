package docsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTier(t *testing.T) {
	cases := []struct {
		name          string
		realtime      ConnectionState
		durableOnline bool
		want          SyncTier
	}{
		{"realtime connected wins", StateConnected, true, RealtimeTier},
		{"realtime connected wins even offline durable", StateConnected, false, RealtimeTier},
		{"durable covers reconnecting", StateReconnecting, true, DurableOnlyTier},
		{"durable covers disconnected", StateDisconnected, true, DurableOnlyTier},
		{"durable covers failed", StateFailed, true, DurableOnlyTier},
		{"local floor", StateReconnecting, false, LocalOnlyTier},
		{"local floor while loading", StateLoading, false, LocalOnlyTier},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, computeTier(tc.realtime, tc.durableOnline))
		})
	}
}

func TestAggregatorRecomputesOnEveryInput(t *testing.T) {
	var observed []SyncStatus
	agg := NewStatusAggregator(func(s SyncStatus) { observed = append(observed, s) })

	agg.SetRealtime(ConnectionSnapshot{State: StateConnected})
	require.Equal(t, RealtimeTier, agg.Status().ActiveTier)

	// Scenario: durable goes offline while realtime stays connected.
	agg.SetDurableOnline(false)
	agg.SetRealtime(ConnectionSnapshot{State: StateConnected})
	require.Equal(t, RealtimeTier, agg.Status().ActiveTier)

	// Scenario: both signals down.
	agg.SetRealtime(ConnectionSnapshot{State: StateReconnecting, RetryCount: 3})
	status := agg.Status()
	require.Equal(t, LocalOnlyTier, status.ActiveTier)
	require.Equal(t, 3, status.RetryCount)
	require.Equal(t, StateDisconnected, status.DurableState)

	agg.SetDurableOnline(true)
	require.Equal(t, DurableOnlyTier, agg.Status().ActiveTier)

	require.NotEmpty(t, observed)
}

func TestMarkSyncedUpdatesTimestampOnly(t *testing.T) {
	agg := NewStatusAggregator(nil)
	agg.SetRealtime(ConnectionSnapshot{State: StateReconnecting})
	agg.SetDurableOnline(false)
	require.Equal(t, LocalOnlyTier, agg.Status().ActiveTier)

	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	agg.MarkSynced(at)

	status := agg.Status()
	assert.Equal(t, at, status.LastSyncAt)
	assert.Equal(t, LocalOnlyTier, status.ActiveTier, "markSynced must not alter tier computation")
}

func TestMarkSyncedDefaultsToNow(t *testing.T) {
	agg := NewStatusAggregator(nil)
	before := time.Now()
	agg.MarkSynced(time.Time{})
	assert.False(t, agg.Status().LastSyncAt.Before(before))
}

func TestSetDurableOnlineNotifiesOnlyOnChange(t *testing.T) {
	notifications := 0
	agg := NewStatusAggregator(func(SyncStatus) { notifications++ })
	agg.SetDurableOnline(true)
	agg.SetDurableOnline(true)
	agg.SetDurableOnline(true)
	assert.Equal(t, 1, notifications)
}
