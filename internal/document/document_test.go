package document

import (
	"testing"
)

func TestDefaultContentIsDefaultEmpty(t *testing.T) {
	if !DefaultContent().IsDefaultEmpty() {
		t.Fatalf("expected default content to be structurally empty")
	}
	if !NewShared().IsDefaultEmpty() {
		t.Fatalf("expected fresh shared document to be structurally empty")
	}
}

func TestIsDefaultEmptyRejectsOtherShapes(t *testing.T) {
	cases := map[string]Content{
		"no blocks":       {},
		"two blocks":      {Blocks: []Block{{ID: "a", Type: BlockTypeParagraph}, {ID: "b", Type: BlockTypeParagraph}}},
		"heading":         {Blocks: []Block{{ID: "a", Type: BlockTypeHeading}}},
		"paragraph text":  {Blocks: []Block{{ID: "a", Type: BlockTypeParagraph, Text: "hi"}}},
		"leveled block":   {Blocks: []Block{{ID: "a", Type: BlockTypeParagraph, Level: 1}}},
	}
	for name, c := range cases {
		if c.IsDefaultEmpty() {
			t.Fatalf("%s: expected non-default", name)
		}
	}
}

func TestReplaceContentDeepCopies(t *testing.T) {
	doc := NewShared()
	content := Content{Blocks: []Block{{ID: "a", Type: BlockTypeParagraph, Text: "one"}}}
	doc.ReplaceContent(content)
	content.Blocks[0].Text = "mutated"
	got := doc.Serialize()
	if got.Blocks[0].Text != "one" {
		t.Fatalf("expected replace to copy content, got %q", got.Blocks[0].Text)
	}
	got.Blocks[0].Text = "mutated again"
	if doc.Serialize().Blocks[0].Text != "one" {
		t.Fatalf("expected serialize to copy content")
	}
}

func TestSetBlockTextLeavesDefaultState(t *testing.T) {
	doc := NewShared()
	first := doc.Serialize().Blocks[0]
	doc.SetBlockText(first.ID, "hello")
	if doc.IsDefaultEmpty() {
		t.Fatalf("expected document with text to be live")
	}
	got := doc.Serialize()
	if len(got.Blocks) != 1 || got.Blocks[0].Text != "hello" {
		t.Fatalf("unexpected content after edit: %+v", got)
	}
}

func TestApplyRemoteAdoptsIntoDefaultDocument(t *testing.T) {
	doc := NewShared()
	remote := Content{Blocks: []Block{
		{ID: "r1", Type: BlockTypeHeading, Text: "Title", Level: 1, Clock: 4},
		{ID: "r2", Type: BlockTypeParagraph, Text: "body", Clock: 5},
	}}
	doc.ApplyRemote(remote)
	got := doc.Serialize()
	if len(got.Blocks) != 2 || got.Blocks[0].ID != "r1" {
		t.Fatalf("expected wholesale adoption, got %+v", got)
	}
}

func TestApplyRemoteIsLastWriterWinsPerBlock(t *testing.T) {
	doc := NewSharedWithContent(Content{Blocks: []Block{
		{ID: "a", Type: BlockTypeParagraph, Text: "local", Clock: 10},
	}})
	doc.ApplyRemote(Content{Blocks: []Block{
		{ID: "a", Type: BlockTypeParagraph, Text: "stale remote", Clock: 3},
		{ID: "b", Type: BlockTypeParagraph, Text: "new remote", Clock: 4},
	}})
	got := doc.Serialize()
	if got.Blocks[0].Text != "local" {
		t.Fatalf("expected stale remote to lose, got %q", got.Blocks[0].Text)
	}
	if len(got.Blocks) != 2 || got.Blocks[1].Text != "new remote" {
		t.Fatalf("expected unknown remote block appended, got %+v", got)
	}

	doc.ApplyRemote(Content{Blocks: []Block{
		{ID: "a", Type: BlockTypeParagraph, Text: "fresh remote", Clock: 20},
	}})
	if text := doc.Serialize().Blocks[0].Text; text != "fresh remote" {
		t.Fatalf("expected newer remote to win, got %q", text)
	}
}

func TestDecodeContentValidates(t *testing.T) {
	raw, err := EncodeContent(Content{Blocks: []Block{{ID: "a", Type: BlockTypeParagraph, Text: "x"}}})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := DecodeContent(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Blocks[0].Text != "x" {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}

	for name, raw := range map[string]string{
		"not json":       `{"blocks": [`,
		"wrong shape":    `{"rows": []}`,
		"bad block type": `{"blocks":[{"id":"a","type":"table"}]}`,
		"missing id":     `{"blocks":[{"type":"paragraph"}]}`,
	} {
		if _, err := DecodeContent([]byte(raw)); err == nil {
			t.Fatalf("%s: expected decode error", name)
		}
	}
}
