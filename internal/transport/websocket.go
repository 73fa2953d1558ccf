package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/loomworks/docsync/internal/document"
)

const statusBufferSize = 16

// WebsocketOptions configures a websocket realtime transport.
type WebsocketOptions struct {
	// URL of the realtime endpoint, e.g. ws://host/v1/sections/{id}/realtime.
	URL string
	// Token is sent as a bearer token on the handshake.
	Token string
	// Document receives collaborator updates read off the wire.
	Document *document.Shared
	// DialTimeout bounds one connection attempt. Defaults to 10s.
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// Websocket connects a shared document to the realtime endpoint over one
// websocket. Reconnection is the supervisor's job; each Connect call is a
// single attempt.
type Websocket struct {
	url         string
	token       string
	doc         *document.Shared
	dialTimeout time.Duration
	logger      *slog.Logger

	status chan Status
	done   chan struct{}

	mu     sync.Mutex
	conn   *websocket.Conn
	gen    uint64
	closed bool
	wg     sync.WaitGroup
}

func NewWebsocket(opts WebsocketOptions) (*Websocket, error) {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		return nil, fmt.Errorf("websocket transport: url is required")
	}
	if opts.Document == nil {
		return nil, fmt.Errorf("websocket transport: document is required")
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Websocket{
		url:         url,
		token:       strings.TrimSpace(opts.Token),
		doc:         opts.Document,
		dialTimeout: dialTimeout,
		logger:      logger,
		status:      make(chan Status, statusBufferSize),
		done:        make(chan struct{}),
	}, nil
}

func (t *Websocket) Status() <-chan Status {
	return t.status
}

// Connect starts one dial attempt. The outcome is reported on the status
// channel; an error return means the attempt could not even start.
func (t *Websocket) Connect() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("websocket transport: closed")
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

func (t *Websocket) dial(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), t.dialTimeout)
	defer cancel()

	dialOpts := &websocket.DialOptions{}
	if t.token != "" {
		dialOpts.HTTPHeader = http.Header{"Authorization": {"Bearer " + t.token}}
	}
	conn, _, err := websocket.Dial(ctx, t.url, dialOpts)
	if err != nil {
		if t.isCurrent(gen) {
			t.logger.Debug("realtime dial failed", "url", t.url, "error", err)
			t.emit(StatusDisconnected)
		}
		return
	}

	t.mu.Lock()
	if t.closed || gen != t.gen {
		t.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "superseded")
		return
	}
	t.conn = conn
	t.mu.Unlock()

	t.emit(StatusConnected)
	t.readLoop(gen, conn)
}

func (t *Websocket) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			if t.isCurrent(gen) {
				t.logger.Debug("realtime read ended", "error", err)
				t.emit(StatusDisconnected)
			}
			return
		}
		content, err := document.DecodeContent(data)
		if err != nil {
			t.logger.Warn("dropping malformed realtime frame", "error", err)
			continue
		}
		t.doc.ApplyRemote(content)
	}
}

// Publish broadcasts the current local content to collaborators. It is a
// no-op without a live connection.
func (t *Websocket) Publish(ctx context.Context) error {
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
	return conn.Write(ctx, websocket.MessageText, data)
}

// Disconnect tears down the current connection without emitting a status
// event: an explicit disconnect is not a wire failure.
func (t *Websocket) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	t.dropConnLocked()
}

func (t *Websocket) Close() {
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

func (t *Websocket) dropConnLocked() {
	if t.conn != nil {
		_ = t.conn.Close(websocket.StatusNormalClosure, "disconnect")
		t.conn = nil
	}
}

func (t *Websocket) isCurrent(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return gen == t.gen && !t.closed
}

func (t *Websocket) emit(s Status) {
	select {
	case <-t.done:
	case t.status <- s:
	}
}
