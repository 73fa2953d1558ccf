package docsync

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/loomworks/docsync/internal/document"
	"github.com/loomworks/docsync/internal/durable"
)

const defaultReconcileInterval = 30 * time.Second

// ReconcilerOptions configures the reconciliation loop.
type ReconcilerOptions struct {
	Document *document.Shared
	Store    durable.SectionStore
	// DocumentID and SectionID may be empty while the session is not yet
	// bound to a document; ticks are then no-ops, not errors.
	DocumentID string
	SectionID  string
	// Interval between persistence ticks. Defaults to 30s.
	Interval time.Duration
	// JitterRatio spreads ticks so many sessions do not hit the backend in
	// lockstep. 0 disables.
	JitterRatio float64
	// Persist gates the durable write. When false the loop still ticks but
	// only observes, matching a read-only deployment.
	Persist bool
	// Aggregator receives markSynced on success and the derived durable
	// reachability signal from write outcomes.
	Aggregator *StatusAggregator
	Logger     *slog.Logger
}

// Reconciler periodically serializes the live shared document and upserts it
// into the durable store. Writes are idempotent last-write-wins, so a failed
// tick needs no bookkeeping: the next tick retries with the current, possibly
// newer, snapshot which supersedes the failed one.
type Reconciler struct {
	doc         *document.Shared
	store       durable.SectionStore
	documentID  string
	sectionID   string
	interval    time.Duration
	jitterRatio float64
	persist     bool
	aggregator  *StatusAggregator
	logger      *slog.Logger
	rng         *rand.Rand

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewReconciler(opts ReconcilerOptions) *Reconciler {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		doc:         opts.Document,
		store:       opts.Store,
		documentID:  strings.TrimSpace(opts.DocumentID),
		sectionID:   strings.TrimSpace(opts.SectionID),
		interval:    interval,
		jitterRatio: clampJitterRatio(opts.JitterRatio),
		persist:     opts.Persist,
		aggregator:  opts.Aggregator,
		logger:      logger,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start runs the loop until Stop.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop cancels the interval timer and waits for the loop to exit. Safe to
// call twice.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}

func (r *Reconciler) run() {
	defer close(r.done)
	timer := time.NewTimer(r.nextInterval())
	defer timer.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-timer.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.interval)
			if err := r.ReconcileOnce(ctx); err != nil {
				r.logger.Warn("reconcile tick failed", "sectionId", r.sectionID, "error", err)
			}
			cancel()
			timer.Reset(r.nextInterval())
		}
	}
}

func (r *Reconciler) nextInterval() time.Duration {
	if r.jitterRatio == 0 {
		return r.interval
	}
	return jitteredDelay(r.interval, r.jitterRatio, r.rng.Float64())
}

// ReconcileOnce performs a single tick: serialize the live document and
// upsert it keyed by section ID. Missing identifiers are a legitimate "not
// yet ready" state and produce no backend call.
func (r *Reconciler) ReconcileOnce(ctx context.Context) error {
	if r.documentID == "" || r.sectionID == "" {
		metricReconcileRuns.WithLabelValues("skipped").Inc()
		return nil
	}
	if !r.persist {
		metricReconcileRuns.WithLabelValues("skipped").Inc()
		r.logger.Debug("persistence disabled, skipping reconcile", "sectionId", r.sectionID)
		return nil
	}

	content, err := document.EncodeContent(r.doc.Serialize())
	if err != nil {
		metricReconcileRuns.WithLabelValues("failure").Inc()
		return err
	}
	if err := r.store.UpsertSectionContent(ctx, r.sectionID, content); err != nil {
		metricReconcileRuns.WithLabelValues("failure").Inc()
		if r.aggregator != nil && !errors.Is(err, context.Canceled) {
			r.aggregator.SetDurableOnline(false)
		}
		return err
	}
	metricReconcileRuns.WithLabelValues("success").Inc()
	if r.aggregator != nil {
		r.aggregator.SetDurableOnline(true)
		r.aggregator.MarkSynced(time.Now())
	}
	return nil
}
