// Package docsync implements the collaborative-document synchronization
// engine: a connection supervisor for the realtime transport, a status
// aggregator that derives the authoritative sync tier, a reconciliation loop
// that persists live content to the durable store, and a one-shot content
// bootstrapper.
package docsync

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/loomworks/docsync/internal/transport"
)

// ConnectionState is the supervisor's published connection state.
type ConnectionState string

const (
	StateLoading      ConnectionState = "loading"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateDisconnected ConnectionState = "disconnected"
	StateFailed       ConnectionState = "failed"
)

const (
	defaultReconnectBaseDelay = 30 * time.Second
	defaultReconnectMaxDelay  = 300 * time.Second
)

// ConnectionSnapshot is the immutable view the supervisor publishes.
type ConnectionSnapshot struct {
	State      ConnectionState
	RetryCount int
}

// SupervisorOptions configures a connection supervisor.
type SupervisorOptions struct {
	Transport transport.Realtime
	// BaseDelay and MaxDelay bound the reconnect backoff:
	// delay = min(BaseDelay * 2^retryCount, MaxDelay).
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// JitterRatio spreads reconnect delays by up to +/- ratio to avoid
	// synchronized retry storms. 0 keeps the exact schedule.
	JitterRatio float64
	// OnChange receives every published snapshot, in order, from the
	// supervisor's own goroutine.
	OnChange func(ConnectionSnapshot)
	Logger   *slog.Logger
}

type supervisorCommand int

const (
	cmdDisconnect supervisorCommand = iota
	cmdResetBackoff
)

// Supervisor owns exactly one live-or-reconnecting connection to the
// realtime transport. It never returns an error to callers; every failure
// degrades to the Failed or Reconnecting state and an unbounded capped
// backoff schedule.
type Supervisor struct {
	tr          transport.Realtime
	baseDelay   time.Duration
	maxDelay    time.Duration
	jitterRatio float64
	onChange    func(ConnectionSnapshot)
	logger      *slog.Logger
	rng         *rand.Rand

	commands chan supervisorCommand
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// state below is owned by the run goroutine; the mutex only guards the
	// published snapshot.
	mu       sync.Mutex
	snapshot ConnectionSnapshot
}

func NewSupervisor(opts SupervisorOptions) *Supervisor {
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultReconnectBaseDelay
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultReconnectMaxDelay
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		tr:          opts.Transport,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		jitterRatio: clampJitterRatio(opts.JitterRatio),
		onChange:    opts.OnChange,
		logger:      logger,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		commands:    make(chan supervisorCommand, 4),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		snapshot:    ConnectionSnapshot{State: StateLoading},
	}
}

// Start activates the supervisor: it connects immediately and then keeps the
// connection alive until Stop.
func (s *Supervisor) Start() {
	go s.run()
}

// Stop cancels any pending reconnect timer, stops consuming transport status
// events and waits for the run goroutine to exit. Safe to call twice.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// Disconnect tears the connection down on purpose. Retry count is preserved.
func (s *Supervisor) Disconnect() {
	select {
	case s.commands <- cmdDisconnect:
	case <-s.done:
	}
}

// ResetBackoff cancels any pending reconnect timer and zeroes the retry
// count, for a manual retry path.
func (s *Supervisor) ResetBackoff() {
	select {
	case s.commands <- cmdResetBackoff:
	case <-s.done:
	}
}

// Snapshot returns the latest published connection state.
func (s *Supervisor) Snapshot() ConnectionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

func (s *Supervisor) run() {
	defer close(s.done)

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	var timerC <-chan time.Time

	var (
		state        = StateLoading
		retryCount   int
		hasConnected bool
	)

	publish := func() {
		snapshot := ConnectionSnapshot{State: state, RetryCount: retryCount}
		s.mu.Lock()
		s.snapshot = snapshot
		s.mu.Unlock()
		if s.onChange != nil {
			s.onChange(snapshot)
		}
	}

	cancelTimer := func() {
		if timerC == nil {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timerC = nil
	}

	scheduleReconnect := func() {
		cancelTimer()
		delay := s.reconnectDelay(retryCount)
		timer.Reset(delay)
		timerC = timer.C
		s.logger.Debug("reconnect scheduled", "delay", delay, "retryCount", retryCount)
	}

	connect := func() {
		state = StateConnecting
		if err := s.tr.Connect(); err != nil {
			s.logger.Warn("realtime connect failed", "error", err)
			state = StateFailed
			publish()
			scheduleReconnect()
			return
		}
		publish()
	}

	connect()

	for {
		select {
		case <-s.stop:
			cancelTimer()
			return

		case <-timerC:
			timerC = nil
			retryCount++
			metricReconnectAttempts.Inc()
			connect()

		case status, ok := <-s.tr.Status():
			if !ok {
				cancelTimer()
				return
			}
			switch status {
			case transport.StatusConnected:
				state = StateConnected
				retryCount = 0
				hasConnected = true
				cancelTimer()
				publish()
			case transport.StatusConnecting:
				if hasConnected {
					state = StateReconnecting
				} else {
					state = StateConnecting
				}
				publish()
			case transport.StatusDisconnected:
				if hasConnected {
					state = StateReconnecting
				} else {
					state = StateDisconnected
				}
				publish()
				scheduleReconnect()
			}

		case cmd := <-s.commands:
			switch cmd {
			case cmdDisconnect:
				cancelTimer()
				s.tr.Disconnect()
				state = StateDisconnected
				publish()
			case cmdResetBackoff:
				cancelTimer()
				retryCount = 0
				publish()
			}
		}
	}
}

// reconnectDelay computes min(base * 2^retryCount, max), optionally spread
// by the jitter ratio.
func (s *Supervisor) reconnectDelay(retryCount int) time.Duration {
	delay := s.baseDelay
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= s.maxDelay {
			delay = s.maxDelay
			break
		}
	}
	if delay > s.maxDelay {
		delay = s.maxDelay
	}
	if s.jitterRatio > 0 {
		delay = jitteredDelay(delay, s.jitterRatio, s.rng.Float64())
	}
	return delay
}

func clampJitterRatio(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func jitteredDelay(base time.Duration, jitterRatio, sample float64) time.Duration {
	if base <= 0 {
		return 0
	}
	if sample < 0 {
		sample = 0
	} else if sample > 1 {
		sample = 1
	}
	factor := 1 + ((sample*2)-1)*jitterRatio
	if factor < 0 {
		factor = 0
	}
	delay := time.Duration(float64(base) * factor)
	if delay < time.Millisecond {
		return time.Millisecond
	}
	return delay
}
