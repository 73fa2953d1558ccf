// Package transport defines the realtime connection primitive the sync
// engine supervises, plus the concrete websocket and NATS implementations.
//
// A transport does not reconnect on its own. It reports what happened on the
// wire as ordered status events and leaves the retry policy to the
// connection supervisor.
package transport

import "sync"

// Status is a discrete connection status reported by a transport.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusConnecting   Status = "connecting"
	StatusDisconnected Status = "disconnected"
)

// Realtime is the realtime transport contract.
//
// Connect starts one connection attempt and returns an error only when the
// attempt fails before anything was dialed; the asynchronous outcome arrives
// on the status channel. Disconnect tears down the current connection, if
// any. Status returns the ordered event stream; it is owned by the transport
// and closed by Close. Close releases the transport entirely.
type Realtime interface {
	Connect() error
	Disconnect()
	Status() <-chan Status
	Close()
}

// Noop is the transport used when no realtime endpoint is configured. Every
// connection attempt reports Disconnected, so the session degrades to the
// durable and local tiers.
type Noop struct {
	mu     sync.Mutex
	status chan Status
	closed bool
}

func NewNoop() *Noop {
	return &Noop{status: make(chan Status, 2)}
}

func (t *Noop) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	select {
	case t.status <- StatusDisconnected:
	default:
	}
	return nil
}

func (t *Noop) Disconnect() {}

func (t *Noop) Status() <-chan Status { return t.status }

func (t *Noop) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	close(t.status)
}
