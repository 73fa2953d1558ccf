package docsync

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loomworks/docsync/internal/document"
	"github.com/loomworks/docsync/internal/durable"
	"github.com/loomworks/docsync/internal/transport"
)

// SessionOptions wires one document session.
type SessionOptions struct {
	DocumentID string
	SectionID  string
	Document   *document.Shared
	Transport  transport.Realtime
	Store      durable.SectionStore

	ReconcileInterval time.Duration
	ReconnectBase     time.Duration
	ReconnectMax      time.Duration
	JitterRatio       float64
	Persist           bool

	// OnStatus observes every recomputed sync status snapshot.
	OnStatus func(SyncStatus)
	Logger   *slog.Logger
}

// Session owns the lifecycle of one collaborative document: bootstrap runs
// once on Start, the supervisor keeps the realtime connection alive, and the
// reconciler persists live content until Stop. Stop releases every timer and
// subscription the session acquired.
type Session struct {
	id         string
	documentID string
	sectionID  string
	doc        *document.Shared
	tr         transport.Realtime
	logger     *slog.Logger

	aggregator   *StatusAggregator
	supervisor   *Supervisor
	reconciler   *Reconciler
	bootstrapper *Bootstrapper

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewSession(opts SessionOptions) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	logger = logger.With("sessionId", id)

	aggregator := NewStatusAggregator(opts.OnStatus)
	supervisor := NewSupervisor(SupervisorOptions{
		Transport:   opts.Transport,
		BaseDelay:   opts.ReconnectBase,
		MaxDelay:    opts.ReconnectMax,
		JitterRatio: opts.JitterRatio,
		OnChange:    aggregator.SetRealtime,
		Logger:      logger,
	})
	reconciler := NewReconciler(ReconcilerOptions{
		Document:    opts.Document,
		Store:       opts.Store,
		DocumentID:  opts.DocumentID,
		SectionID:   opts.SectionID,
		Interval:    opts.ReconcileInterval,
		JitterRatio: opts.JitterRatio,
		Persist:     opts.Persist,
		Aggregator:  aggregator,
		Logger:      logger,
	})
	bootstrapper := NewBootstrapper(opts.Document, opts.Store, opts.SectionID, logger)

	return &Session{
		id:           id,
		documentID:   strings.TrimSpace(opts.DocumentID),
		sectionID:    strings.TrimSpace(opts.SectionID),
		doc:          opts.Document,
		tr:           opts.Transport,
		logger:       logger,
		aggregator:   aggregator,
		supervisor:   supervisor,
		reconciler:   reconciler,
		bootstrapper: bootstrapper,
	}
}

// ID returns the session identifier used in logs and correlation headers.
func (s *Session) ID() string { return s.id }

// Document returns the shared document handle.
func (s *Session) Document() *document.Shared { return s.doc }

// Start bootstraps persisted content into the fresh document, then starts
// the supervisor and the reconciliation loop. Safe to call twice.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		if applied := s.bootstrapper.Run(ctx); applied {
			s.aggregator.SetDurableOnline(true)
		}
		s.supervisor.Start()
		s.reconciler.Start()
		s.logger.Info("session started", "documentId", s.documentID, "sectionId", s.sectionID)
	})
}

// Stop releases everything Start acquired: the reconnect timer, the
// reconcile ticker and the transport subscription. Safe to call twice.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.supervisor.Stop()
		s.reconciler.Stop()
		s.tr.Close()
		s.logger.Info("session stopped")
	})
}

// Status returns the current composite sync status.
func (s *Session) Status() SyncStatus {
	return s.aggregator.Status()
}

// SetNetworkOnline feeds the platform's online/offline signal, mapped 1:1 to
// the durable-backend reachability state.
func (s *Session) SetNetworkOnline(online bool) {
	s.aggregator.SetDurableOnline(online)
}

// ResetBackoff zeroes the reconnect schedule, for a manual retry action.
func (s *Session) ResetBackoff() {
	s.supervisor.ResetBackoff()
}

// Disconnect tears the realtime connection down on purpose.
func (s *Session) Disconnect() {
	s.supervisor.Disconnect()
}

// ReconcileNow performs one immediate reconciliation tick outside the
// schedule, e.g. on demand before teardown.
func (s *Session) ReconcileNow(ctx context.Context) error {
	return s.reconciler.ReconcileOnce(ctx)
}
