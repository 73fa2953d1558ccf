package docsync

import (
	"context"
	"errors"
	"testing"

	"github.com/loomworks/docsync/internal/document"
)

func encodeBlocks(t *testing.T, blocks ...document.Block) []byte {
	t.Helper()
	raw, err := document.EncodeContent(document.Content{Blocks: blocks})
	if err != nil {
		t.Fatalf("encode content: %v", err)
	}
	return raw
}

func TestBootstrapAppliesSnapshotIntoDefaultDocument(t *testing.T) {
	store := newFakeSectionStore()
	store.seed("sec_1", encodeBlocks(t,
		document.Block{ID: "b1", Type: document.BlockTypeHeading, Text: "Plan", Level: 1},
		document.Block{ID: "b2", Type: document.BlockTypeParagraph, Text: "persisted body"},
	))
	doc := document.NewShared()
	b := NewBootstrapper(doc, store, "sec_1", nil)

	if !b.Run(context.Background()) {
		t.Fatalf("expected snapshot to apply")
	}
	if !b.Applied() {
		t.Fatalf("expected applied flag to be set")
	}
	got := doc.Serialize()
	if len(got.Blocks) != 2 || got.Blocks[1].Text != "persisted body" {
		t.Fatalf("document does not match snapshot: %+v", got)
	}
}

func TestBootstrapIsOneShot(t *testing.T) {
	store := newFakeSectionStore()
	store.seed("sec_1", encodeBlocks(t, document.Block{ID: "b1", Type: document.BlockTypeParagraph, Text: "first snapshot"}))
	doc := document.NewShared()
	b := NewBootstrapper(doc, store, "sec_1", nil)

	if !b.Run(context.Background()) {
		t.Fatalf("first run should apply")
	}
	before := doc.Serialize()

	// A re-fetch with different persisted content must not re-apply, even
	// though the document content equals the first snapshot.
	store.seed("sec_1", encodeBlocks(t, document.Block{ID: "b9", Type: document.BlockTypeParagraph, Text: "second snapshot"}))
	if b.Run(context.Background()) {
		t.Fatalf("second run must not apply")
	}
	after := doc.Serialize()
	if len(after.Blocks) != len(before.Blocks) || after.Blocks[0].Text != "first snapshot" {
		t.Fatalf("document changed on second run: %+v", after)
	}
}

func TestBootstrapNeverOverwritesLiveContent(t *testing.T) {
	store := newFakeSectionStore()
	store.seed("sec_1", encodeBlocks(t, document.Block{ID: "b1", Type: document.BlockTypeParagraph, Text: "persisted"}))
	doc := document.NewShared()
	doc.AppendBlock(document.BlockTypeParagraph, "typed before bootstrap")

	b := NewBootstrapper(doc, store, "sec_1", nil)
	if b.Run(context.Background()) {
		t.Fatalf("live content must win over the snapshot")
	}
	if b.Applied() {
		t.Fatalf("flag must stay unset when nothing was applied")
	}
	got := doc.Serialize()
	for _, block := range got.Blocks {
		if block.Text == "persisted" {
			t.Fatalf("snapshot leaked into live document: %+v", got)
		}
	}
}

func TestBootstrapHandlesMissingSnapshot(t *testing.T) {
	store := newFakeSectionStore()
	doc := document.NewShared()
	b := NewBootstrapper(doc, store, "sec_1", nil)
	if b.Run(context.Background()) {
		t.Fatalf("nothing to apply without a snapshot")
	}
	if !doc.IsDefaultEmpty() {
		t.Fatalf("document should keep default content")
	}
}

func TestBootstrapTreatsMalformedSnapshotAsAbsent(t *testing.T) {
	store := newFakeSectionStore()
	store.seed("sec_1", []byte(`{"rows": "not a block document"}`))
	doc := document.NewShared()
	b := NewBootstrapper(doc, store, "sec_1", nil)
	if b.Run(context.Background()) {
		t.Fatalf("malformed snapshot must not apply")
	}
	if !doc.IsDefaultEmpty() {
		t.Fatalf("document should keep default content after malformed snapshot")
	}
	if b.Applied() {
		t.Fatalf("flag must stay unset")
	}
}

func TestBootstrapToleratesReadFailure(t *testing.T) {
	store := newFakeSectionStore()
	store.getErr = errors.New("backend unavailable")
	doc := document.NewShared()
	b := NewBootstrapper(doc, store, "sec_1", nil)
	if b.Run(context.Background()) {
		t.Fatalf("read failure must not apply anything")
	}
	if !doc.IsDefaultEmpty() {
		t.Fatalf("document should keep default content after read failure")
	}
}
