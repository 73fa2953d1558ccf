package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/loomworks/docsync/internal/document"
)

// NATSOptions configures a NATS-backed realtime transport. Collaborator
// updates fan out over one subject per section.
type NATSOptions struct {
	URL       string
	SectionID string
	Document  *document.Shared
	// Name identifies this session on the server, e.g. the session ID.
	Name        string
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// NATS implements the realtime contract over a NATS subject. Like the
// websocket transport it performs single connection attempts and leaves the
// retry policy to the supervisor, so client-side reconnection is disabled.
type NATS struct {
	url         string
	subject     string
	name        string
	doc         *document.Shared
	dialTimeout time.Duration
	logger      *slog.Logger

	status chan Status
	done   chan struct{}

	mu     sync.Mutex
	conn   *nats.Conn
	gen    uint64
	closed bool
	wg     sync.WaitGroup
}

func NewNATS(opts NATSOptions) (*NATS, error) {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		return nil, fmt.Errorf("nats transport: url is required")
	}
	sectionID := strings.TrimSpace(opts.SectionID)
	if sectionID == "" {
		return nil, fmt.Errorf("nats transport: section id is required")
	}
	if opts.Document == nil {
		return nil, fmt.Errorf("nats transport: document is required")
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &NATS{
		url:         url,
		subject:     "docsync.sections." + sectionID,
		name:        strings.TrimSpace(opts.Name),
		doc:         opts.Document,
		dialTimeout: dialTimeout,
		logger:      logger,
		status:      make(chan Status, statusBufferSize),
		done:        make(chan struct{}),
	}, nil
}

func (t *NATS) Status() <-chan Status {
	return t.status
}

func (t *NATS) Connect() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("nats transport: closed")
	}
	t.dropConnLocked()
	t.gen++
	gen := t.gen
	t.wg.Add(1)
	t.mu.Unlock()

	t.emit(StatusConnecting)
	go func() {
		defer t.wg.Done()
		t.dial(gen)
	}()
	return nil
}

func (t *NATS) dial(gen uint64) {
	opts := []nats.Option{
		nats.Timeout(t.dialTimeout),
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if t.isCurrent(gen) {
				t.logger.Debug("nats disconnected", "error", err)
				t.emit(StatusDisconnected)
			}
		}),
	}
	if t.name != "" {
		opts = append(opts, nats.Name(t.name))
	}
	conn, err := nats.Connect(t.url, opts...)
	if err != nil {
		if t.isCurrent(gen) {
			t.logger.Debug("nats dial failed", "url", t.url, "error", err)
			t.emit(StatusDisconnected)
		}
		return
	}
	if _, err := conn.Subscribe(t.subject, func(m *nats.Msg) {
		content, err := document.DecodeContent(m.Data)
		if err != nil {
			t.logger.Warn("dropping malformed realtime message", "subject", t.subject, "error", err)
			return
		}
		t.doc.ApplyRemote(content)
	}); err != nil {
		conn.Close()
		if t.isCurrent(gen) {
			t.logger.Debug("nats subscribe failed", "subject", t.subject, "error", err)
			t.emit(StatusDisconnected)
		}
		return
	}

	t.mu.Lock()
	if t.closed || gen != t.gen {
		t.mu.Unlock()
		conn.Close()
		return
	}
	t.conn = conn
	t.mu.Unlock()

	t.emit(StatusConnected)
}

// Publish broadcasts the current local content on the section subject.
func (t *NATS) Publish(_ context.Context) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	data, err := document.EncodeContent(t.doc.Serialize())
	if err != nil {
		return err
	}
	return conn.Publish(t.subject, data)
}

func (t *NATS) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	t.dropConnLocked()
}

func (t *NATS) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.gen++
	t.dropConnLocked()
	t.mu.Unlock()
	close(t.done)
	t.wg.Wait()
	close(t.status)
}

func (t *NATS) dropConnLocked() {
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
}

func (t *NATS) isCurrent(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return gen == t.gen && !t.closed
}

func (t *NATS) emit(s Status) {
	select {
	case <-t.done:
	case t.status <- s:
	}
}
