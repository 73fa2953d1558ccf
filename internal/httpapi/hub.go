package httpapi

import (
	"context"
	"log/slog"
	"sync"

	"nhooyr.io/websocket"

	"github.com/loomworks/docsync/internal/document"
)

const subscriberBufferSize = 32

// hub fans realtime content frames out to every websocket subscribed to the
// same section. A frame received from one subscriber is relayed to all the
// others; the sender never hears its own frame back.
type hub struct {
	logger *slog.Logger

	mu       sync.Mutex
	sections map[string]map[*subscriber]struct{}
}

type subscriber struct {
	send chan []byte
}

func newHub(logger *slog.Logger) *hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &hub{
		logger:   logger,
		sections: map[string]map[*subscriber]struct{}{},
	}
}

func (h *hub) subscribe(sectionID string) *subscriber {
	sub := &subscriber{send: make(chan []byte, subscriberBufferSize)}
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.sections[sectionID]
	if !ok {
		subs = map[*subscriber]struct{}{}
		h.sections[sectionID] = subs
	}
	subs[sub] = struct{}{}
	return sub
}

func (h *hub) unsubscribe(sectionID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.sections[sectionID]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.sections, sectionID)
	}
}

// broadcast relays a frame to every other subscriber of the section. Slow
// subscribers drop frames rather than stall the sender; the reconcile loop
// repairs any divergence.
func (h *hub) broadcast(sectionID string, from *subscriber, frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.sections[sectionID] {
		if sub == from {
			continue
		}
		select {
		case sub.send <- frame:
		default:
			h.logger.Warn("dropping realtime frame for slow subscriber", "sectionId", sectionID)
		}
	}
}

func (h *hub) subscriberCount(sectionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sections[sectionID])
}

// serveConn pumps one websocket until either side ends it. Incoming frames
// must decode as block content; malformed frames are dropped, not fatal.
func (h *hub) serveConn(ctx context.Context, conn *websocket.Conn, sectionID string) {
	sub := h.subscribe(sectionID)
	defer h.unsubscribe(sectionID, sub)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-sub.send:
				if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if _, err := document.DecodeContent(data); err != nil {
			h.logger.Warn("dropping malformed realtime frame", "sectionId", sectionID, "error", err)
			continue
		}
		h.broadcast(sectionID, sub, data)
	}
}
