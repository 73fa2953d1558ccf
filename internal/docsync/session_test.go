package docsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loomworks/docsync/internal/document"
	"github.com/loomworks/docsync/internal/transport"
)

func newTestSession(t *testing.T, tr *fakeTransport, store *fakeSectionStore, doc *document.Shared) *Session {
	t.Helper()
	s := NewSession(SessionOptions{
		DocumentID:        "doc_1",
		SectionID:         "sec_1",
		Document:          doc,
		Transport:         tr,
		Store:             store,
		ReconcileInterval: 15 * time.Millisecond,
		ReconnectBase:     20 * time.Millisecond,
		ReconnectMax:      80 * time.Millisecond,
		Persist:           true,
	})
	t.Cleanup(s.Stop)
	return s
}

func TestSessionBootstrapsThenSyncs(t *testing.T) {
	tr := newFakeTransport()
	store := newFakeSectionStore()
	store.seed("sec_1", encodeBlocks(t, document.Block{ID: "b1", Type: document.BlockTypeParagraph, Text: "restored"}))
	doc := document.NewShared()

	s := newTestSession(t, tr, store, doc)
	s.Start(context.Background())

	got := doc.Serialize()
	if len(got.Blocks) != 1 || got.Blocks[0].Text != "restored" {
		t.Fatalf("expected bootstrap before sync starts, got %+v", got)
	}

	tr.emit(transport.StatusConnected)
	waitFor(t, time.Second, func() bool { return s.Status().ActiveTier == RealtimeTier }, "realtime tier")
	waitFor(t, time.Second, func() bool { return !s.Status().LastSyncAt.IsZero() }, "reconcile marked synced")
}

func TestSessionDegradesToLocalTierWithoutError(t *testing.T) {
	// Scenario: both signals down; local edits keep applying, no error
	// surfaces anywhere, the only symptom is the tier.
	tr := newFakeTransport()
	store := newFakeSectionStore()
	store.setUpsertErr(errors.New("backend unreachable"))
	doc := document.NewShared()

	s := newTestSession(t, tr, store, doc)
	s.Start(context.Background())
	s.SetNetworkOnline(false)

	tr.emit(transport.StatusDisconnected)
	waitFor(t, time.Second, func() bool { return s.Status().ActiveTier == LocalOnlyTier }, "local tier")

	doc.AppendBlock(document.BlockTypeParagraph, "offline edit")
	found := false
	for _, b := range doc.Serialize().Blocks {
		if b.Text == "offline edit" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected local edit to apply while offline")
	}
}

func TestSessionRealtimeTierSurvivesDurableOutage(t *testing.T) {
	tr := newFakeTransport()
	store := newFakeSectionStore()
	s := newTestSession(t, tr, store, document.NewShared())
	s.Start(context.Background())

	tr.emit(transport.StatusConnected)
	waitFor(t, time.Second, func() bool { return s.Status().ActiveTier == RealtimeTier }, "realtime tier")

	s.SetNetworkOnline(false)
	if tier := s.Status().ActiveTier; tier != RealtimeTier {
		t.Fatalf("durable outage must not affect realtime tier, got %s", tier)
	}
}

func TestSessionStartStopIdempotentAndLeakFree(t *testing.T) {
	tr := newFakeTransport()
	store := newFakeSectionStore()
	s := newTestSession(t, tr, store, document.NewShared())

	s.Start(context.Background())
	s.Start(context.Background())
	waitFor(t, time.Second, func() bool { return tr.connects() == 1 }, "single supervisor")

	tr.emit(transport.StatusDisconnected)
	waitFor(t, time.Second, func() bool { return s.Status().RetryCount >= 1 }, "reconnect pending")

	done := make(chan struct{})
	go func() {
		s.Stop()
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not release timers and subscriptions")
	}

	connects := tr.connects()
	_, upserts := store.calls()
	time.Sleep(100 * time.Millisecond)
	if got := tr.connects(); got != connects {
		t.Fatalf("reconnect timer leaked past Stop: %d -> %d", connects, got)
	}
	if _, got := store.calls(); got != upserts {
		t.Fatalf("reconcile ticker leaked past Stop: %d -> %d", upserts, got)
	}
}

func TestSessionReconcileNow(t *testing.T) {
	tr := newFakeTransport()
	store := newFakeSectionStore()
	doc := document.NewShared()
	doc.AppendBlock(document.BlockTypeParagraph, "flush me")
	s := NewSession(SessionOptions{
		DocumentID:        "doc_1",
		SectionID:         "sec_1",
		Document:          doc,
		Transport:         tr,
		Store:             store,
		ReconcileInterval: time.Hour,
		Persist:           true,
	})
	t.Cleanup(s.Stop)
	s.Start(context.Background())

	if err := s.ReconcileNow(context.Background()); err != nil {
		t.Fatalf("on-demand reconcile failed: %v", err)
	}
	if _, err := store.GetSectionContent(context.Background(), "sec_1"); err != nil {
		t.Fatalf("expected snapshot after on-demand reconcile: %v", err)
	}
}
