// Package httpapi serves the durable section API, the realtime relay and
// the operational surface of docsyncd.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"nhooyr.io/websocket"

	"github.com/loomworks/docsync/internal/durable"
)

type ServerConfig struct {
	JWTSecret       string
	RateLimitMax    int
	RateLimitWindow time.Duration
	MaxBodyBytes    int64
	Logger          *slog.Logger
}

type Server struct {
	store       durable.SectionStore
	cfg         ServerConfig
	logger      *slog.Logger
	hub         *hub
	metrics     http.Handler
	rateLimiter *rateLimiter
	startedAt   time.Time
}

type rateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string]rateEntry
}

type rateEntry struct {
	count   int
	resetAt time.Time
}

func NewServer(store durable.SectionStore) *Server {
	return NewServerWithConfig(store, ServerConfig{})
}

func NewServerWithConfig(store durable.SectionStore, cfg ServerConfig) *Server {
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret"
	}
	if cfg.RateLimitMax < 0 {
		cfg.RateLimitMax = 0
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rateLimiter
	if cfg.RateLimitMax > 0 {
		limiter = &rateLimiter{
			window:  cfg.RateLimitWindow,
			max:     cfg.RateLimitMax,
			entries: map[string]rateEntry{},
		}
	}
	return &Server{
		store:       store,
		cfg:         cfg,
		logger:      logger,
		hub:         newHub(logger),
		metrics:     promhttp.Handler(),
		rateLimiter: limiter,
		startedAt:   time.Now().UTC(),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/health" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	case r.URL.Path == "/metrics" && r.Method == http.MethodGet:
		s.metrics.ServeHTTP(w, r)
		return
	case r.URL.Path == "/" && r.Method == http.MethodGet:
		s.handleDashboard(w, r)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")

	var requiredScope string
	var route string
	switch {
	case len(parts) == 2 && parts[0] == "v1" && parts[1] == "sections" && r.Method == http.MethodGet:
		requiredScope = "status:read"
		route = "list_sections"
	case len(parts) == 4 && parts[0] == "v1" && parts[1] == "sections" && parts[3] == "content" && r.Method == http.MethodGet:
		requiredScope = "content:read"
		route = "get_content"
	case len(parts) == 4 && parts[0] == "v1" && parts[1] == "sections" && parts[3] == "content" && r.Method == http.MethodPut:
		requiredScope = "content:write"
		route = "put_content"
	case len(parts) == 4 && parts[0] == "v1" && parts[1] == "sections" && parts[3] == "realtime" && r.Method == http.MethodGet:
		requiredScope = "content:write"
		route = "realtime"
	case len(parts) == 3 && parts[0] == "v1" && parts[1] == "sync" && parts[2] == "status" && r.Method == http.MethodGet:
		requiredScope = "status:read"
		route = "sync_status"
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found", getCorrelationID(r))
		return
	}

	claims, authErr := authorizeBearer(r.Header.Get("Authorization"), s.cfg.JWTSecret, requiredScope, time.Now().UTC())
	if authErr != nil {
		writeError(w, authErr.status, authErr.code, authErr.message, getCorrelationID(r))
		return
	}

	correlationID := getCorrelationID(r)
	if route != "realtime" && correlationID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing X-Correlation-Id header", "")
		return
	}
	if s.rateLimiter != nil {
		if !s.rateLimiter.allow(claims.ClientName, time.Now().UTC()) {
			retryAfter := int(math.Ceil(s.rateLimiter.window.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded", correlationID)
			return
		}
	}

	switch route {
	case "list_sections":
		s.handleListSections(w, r, correlationID)
	case "get_content":
		s.handleGetContent(w, r, sectionIDFromPath(parts[2]), correlationID)
	case "put_content":
		s.handlePutContent(w, r, sectionIDFromPath(parts[2]), correlationID)
	case "realtime":
		s.handleRealtime(w, r, sectionIDFromPath(parts[2]))
	case "sync_status":
		s.handleSyncStatus(w, r, correlationID)
	}
}

type sectionContentPayload struct {
	SectionID string    `json:"sectionId"`
	Content   []byte    `json:"content"`
	Revision  string    `json:"revision,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request, sectionID, correlationID string) {
	snapshot, err := s.store.GetSectionContent(r.Context(), sectionID)
	if err != nil {
		s.writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, sectionContentPayload{
		SectionID: snapshot.SectionID,
		Content:   snapshot.Content,
		Revision:  snapshot.Revision,
		UpdatedAt: snapshot.UpdatedAt,
	})
}

func (s *Server) handlePutContent(w http.ResponseWriter, r *http.Request, sectionID, correlationID string) {
	var payload sectionContentPayload
	if !s.decodeJSONBody(w, r, correlationID, &payload) {
		return
	}
	if payload.SectionID != "" && payload.SectionID != sectionID {
		writeError(w, http.StatusBadRequest, "bad_request", "body sectionId does not match path", correlationID)
		return
	}
	if len(payload.Content) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "content is required", correlationID)
		return
	}
	if err := s.store.UpsertSectionContent(r.Context(), sectionID, payload.Content); err != nil {
		s.writeStoreError(w, err, correlationID)
		return
	}
	snapshot, err := s.store.GetSectionContent(r.Context(), sectionID)
	if err != nil {
		s.writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, sectionContentPayload{
		SectionID: snapshot.SectionID,
		Content:   snapshot.Content,
		Revision:  snapshot.Revision,
		UpdatedAt: snapshot.UpdatedAt,
	})
}

func (s *Server) handleListSections(w http.ResponseWriter, r *http.Request, correlationID string) {
	lister, ok := s.store.(durable.SectionLister)
	if !ok {
		writeError(w, http.StatusNotImplemented, "not_implemented", "store cannot enumerate sections", correlationID)
		return
	}
	snapshots, err := lister.ListSections(r.Context())
	if err != nil {
		s.writeStoreError(w, err, correlationID)
		return
	}
	out := make([]map[string]any, 0, len(snapshots))
	for _, snapshot := range snapshots {
		out = append(out, map[string]any{
			"sectionId": snapshot.SectionID,
			"revision":  snapshot.Revision,
			"updatedAt": snapshot.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sections": out})
}

type sectionSyncStatus struct {
	SectionID   string    `json:"sectionId"`
	Revision    string    `json:"revision"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Subscribers int       `json:"subscribers"`
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request, correlationID string) {
	sections := []sectionSyncStatus{}
	if lister, ok := s.store.(durable.SectionLister); ok {
		snapshots, err := lister.ListSections(r.Context())
		if err != nil {
			s.writeStoreError(w, err, correlationID)
			return
		}
		for _, snapshot := range snapshots {
			sections = append(sections, sectionSyncStatus{
				SectionID:   snapshot.SectionID,
				Revision:    snapshot.Revision,
				UpdatedAt:   snapshot.UpdatedAt,
				Subscribers: s.hub.subscriberCount(snapshot.SectionID),
			})
		}
		sort.Slice(sections, func(i, j int) bool { return sections[i].SectionID < sections[j].SectionID })
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"startedAt": s.startedAt,
		"sections":  sections,
	})
}

func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request, sectionID string) {
	if strings.TrimSpace(sectionID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "section id is required", getCorrelationID(r))
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket accept failed", "sectionId", sectionID, "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "session ended")
	s.logger.Debug("realtime subscriber joined", "sectionId", sectionID)
	s.hub.serveConn(r.Context(), conn, sectionID)
	s.logger.Debug("realtime subscriber left", "sectionId", sectionID)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error, correlationID string) {
	switch {
	case errors.Is(err, durable.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), correlationID)
	case errors.Is(err, durable.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), correlationID)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", err.Error(), correlationID)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), correlationID)
	}
}

func (s *Server) readRequestBody(w http.ResponseWriter, r *http.Request, correlationID string) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body", correlationID)
		return nil, false
	}
	if int64(len(body)) > s.cfg.MaxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds limit", correlationID)
		return nil, false
	}
	return body, true
}

func (s *Server) decodeJSONBody(w http.ResponseWriter, r *http.Request, correlationID string, dst any) bool {
	body, ok := s.readRequestBody(w, r, correlationID)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body", correlationID)
		return false
	}
	return true
}

func getCorrelationID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Correlation-Id"))
}

func sectionIDFromPath(raw string) string {
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message, correlationID string) {
	writeJSON(w, status, map[string]any{
		"code":          code,
		"message":       message,
		"correlationId": correlationID,
	})
}

func (r *rateLimiter) allow(key string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok || now.After(entry.resetAt) {
		r.entries[key] = rateEntry{
			count:   1,
			resetAt: now.Add(r.window),
		}
		return true
	}
	if entry.count >= r.max {
		return false
	}
	entry.count++
	r.entries[key] = entry
	return true
}
