package docsync

import (
	"sync"
	"time"
)

// SyncTier is the currently authoritative data path.
type SyncTier string

const (
	RealtimeTier    SyncTier = "realtime"
	DurableOnlyTier SyncTier = "durable"
	LocalOnlyTier   SyncTier = "local"
)

// SyncStatus is the read-only composite exposed to observers, e.g. a UI
// indicator. ActiveTier is recomputed from the two signals on every change,
// never stored independently.
type SyncStatus struct {
	RealtimeState ConnectionState `json:"realtimeState"`
	DurableState  ConnectionState `json:"durableState"`
	ActiveTier    SyncTier        `json:"activeTier"`
	LastSyncAt    time.Time       `json:"lastSyncAt"`
	RetryCount    int             `json:"retryCount"`
}

// StatusAggregator combines the supervisor's connection state with
// durable-backend reachability into one authoritative tier.
type StatusAggregator struct {
	mu            sync.Mutex
	realtime      ConnectionSnapshot
	durableOnline bool
	lastSyncAt    time.Time
	onChange      func(SyncStatus)
	now           func() time.Time
}

// NewStatusAggregator creates an aggregator. onChange, when non-nil,
// receives every recomputed status.
func NewStatusAggregator(onChange func(SyncStatus)) *StatusAggregator {
	return &StatusAggregator{
		realtime: ConnectionSnapshot{State: StateLoading},
		onChange: onChange,
		now:      time.Now,
	}
}

// SetRealtime feeds the supervisor's published snapshot.
func (a *StatusAggregator) SetRealtime(snapshot ConnectionSnapshot) {
	a.mu.Lock()
	a.realtime = snapshot
	status := a.statusLocked()
	a.mu.Unlock()
	a.notify(status)
}

// SetDurableOnline feeds the durable-backend reachability signal, mapped 1:1
// from the platform's online/offline events or from backend probe outcomes.
func (a *StatusAggregator) SetDurableOnline(online bool) {
	a.mu.Lock()
	changed := a.durableOnline != online
	a.durableOnline = online
	status := a.statusLocked()
	a.mu.Unlock()
	if changed {
		a.notify(status)
	}
}

// MarkSynced records a successful durable write. It updates the last-sync
// timestamp only and never alters the tier computation.
func (a *StatusAggregator) MarkSynced(at time.Time) {
	a.mu.Lock()
	if at.IsZero() {
		at = a.now()
	}
	a.lastSyncAt = at
	status := a.statusLocked()
	a.mu.Unlock()
	a.notify(status)
}

// Status returns the current composite snapshot.
func (a *StatusAggregator) Status() SyncStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statusLocked()
}

func (a *StatusAggregator) statusLocked() SyncStatus {
	durableState := StateDisconnected
	if a.durableOnline {
		durableState = StateConnected
	}
	return SyncStatus{
		RealtimeState: a.realtime.State,
		DurableState:  durableState,
		ActiveTier:    computeTier(a.realtime.State, a.durableOnline),
		LastSyncAt:    a.lastSyncAt,
		RetryCount:    a.realtime.RetryCount,
	}
}

func (a *StatusAggregator) notify(status SyncStatus) {
	for _, tier := range []SyncTier{RealtimeTier, DurableOnlyTier, LocalOnlyTier} {
		value := 0.0
		if tier == status.ActiveTier {
			value = 1.0
		}
		metricActiveTier.WithLabelValues(string(tier)).Set(value)
	}
	if a.onChange != nil {
		a.onChange(status)
	}
}

// computeTier is the pure tier function: realtime wins while connected, the
// durable path covers realtime outages, local memory is the floor.
func computeTier(realtime ConnectionState, durableOnline bool) SyncTier {
	switch {
	case realtime == StateConnected:
		return RealtimeTier
	case durableOnline:
		return DurableOnlyTier
	default:
		return LocalOnlyTier
	}
}
