package docsync

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/loomworks/docsync/internal/document"
	"github.com/loomworks/docsync/internal/durable"
)

// Bootstrapper seeds a freshly opened shared document with previously
// persisted content, at most once per session, and never over live
// collaborative state. Live CRDT content always wins over a persisted
// snapshot once any live content exists.
type Bootstrapper struct {
	doc       *document.Shared
	store     durable.SectionStore
	sectionID string
	logger    *slog.Logger

	mu      sync.Mutex
	applied bool
}

func NewBootstrapper(doc *document.Shared, store durable.SectionStore, sectionID string, logger *slog.Logger) *Bootstrapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bootstrapper{
		doc:       doc,
		store:     store,
		sectionID: strings.TrimSpace(sectionID),
		logger:    logger,
	}
}

// Run fetches the persisted snapshot and applies it iff one was found, the
// document is still structurally the single default empty block, and no
// bootstrap has been applied in this session. It reports whether the
// snapshot was applied and never returns an error: a failed or malformed
// read degrades to "no snapshot" and the document keeps its default content.
//
// Run may be called again (a re-render analog); the applied flag is sticky,
// so a second call can never re-apply.
func (b *Bootstrapper) Run(ctx context.Context) bool {
	if b.sectionID == "" {
		return false
	}
	b.mu.Lock()
	alreadyApplied := b.applied
	b.mu.Unlock()
	if alreadyApplied {
		return false
	}

	snapshot, err := b.store.GetSectionContent(ctx, b.sectionID)
	if err != nil {
		if errors.Is(err, durable.ErrNotFound) {
			b.logger.Debug("no persisted snapshot", "sectionId", b.sectionID)
		} else {
			b.logger.Warn("snapshot fetch failed, keeping default content", "sectionId", b.sectionID, "error", err)
		}
		return false
	}
	content, err := document.DecodeContent(snapshot.Content)
	if err != nil {
		b.logger.Warn("persisted snapshot is malformed, treating as absent", "sectionId", b.sectionID, "error", err)
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.applied {
		return false
	}
	// The structural check is the conflict-avoidance rule: any live content,
	// whether typed locally or replayed from collaborators, disqualifies the
	// snapshot even when the snapshot is newer.
	if !b.doc.IsDefaultEmpty() {
		b.logger.Debug("document already has live content, skipping bootstrap", "sectionId", b.sectionID)
		return false
	}
	b.doc.ReplaceContent(content)
	b.applied = true
	metricBootstrapApplied.Inc()
	b.logger.Info("bootstrapped document from persisted snapshot",
		"sectionId", b.sectionID, "revision", snapshot.Revision)
	return true
}

// Applied reports whether the one-shot flag is set.
func (b *Bootstrapper) Applied() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.applied
}
