// Package document holds the shared block-document handle that the sync
// engine observes and, in exactly one place, replaces. The merge semantics
// between collaborators are intentionally simple here: the handle only has to
// behave commutatively enough for the engine's conflict-avoidance rules, the
// real CRDT machinery lives behind the realtime transport.
package document

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const (
	BlockTypeParagraph = "paragraph"
	BlockTypeHeading   = "heading"
	BlockTypeListItem  = "listItem"
)

// Block is one editable unit of a section.
type Block struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Text  string `json:"text"`
	Level int    `json:"level,omitempty"`
	Clock uint64 `json:"clock,omitempty"`
}

// Content is the serialized form of a section, the unit the durable store
// persists and the bootstrapper restores.
type Content struct {
	Blocks []Block `json:"blocks"`
}

// DefaultContent returns the structural shape of a freshly created section:
// a single empty paragraph.
func DefaultContent() Content {
	return Content{
		Blocks: []Block{{
			ID:   uuid.NewString(),
			Type: BlockTypeParagraph,
		}},
	}
}

// IsDefaultEmpty reports whether c is structurally the single default empty
// block: exactly one paragraph with no text. A document that merely looks
// empty but has a different shape is treated as live.
func (c Content) IsDefaultEmpty() bool {
	if len(c.Blocks) != 1 {
		return false
	}
	b := c.Blocks[0]
	return b.Type == BlockTypeParagraph && strings.TrimSpace(b.Text) == "" && b.Level == 0
}

func (c Content) clone() Content {
	out := Content{Blocks: make([]Block, len(c.Blocks))}
	copy(out.Blocks, c.Blocks)
	return out
}

// Shared is the collaboratively owned document handle. It is internally
// synchronized: collaborator merges arrive from transport goroutines while
// the reconciler serializes snapshots.
type Shared struct {
	mu      sync.RWMutex
	content Content
	clock   uint64
}

// NewShared creates a handle holding the default empty content.
func NewShared() *Shared {
	return &Shared{content: DefaultContent()}
}

// NewSharedWithContent creates a handle pre-populated with content, as a
// transport does when it replays an existing live document.
func NewSharedWithContent(content Content) *Shared {
	return &Shared{content: content.clone()}
}

// Serialize returns a deep copy of the current content.
func (s *Shared) Serialize() Content {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.content.clone()
}

// IsDefaultEmpty reports whether no collaborator has written anything yet.
func (s *Shared) IsDefaultEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.content.IsDefaultEmpty()
}

// ReplaceContent swaps the whole content. Only the session bootstrapper may
// call this, and only under its one-shot rule.
func (s *Shared) ReplaceContent(content Content) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content = content.clone()
	for _, b := range s.content.Blocks {
		if b.Clock > s.clock {
			s.clock = b.Clock
		}
	}
}

// SetBlockText edits one block locally, appending a new paragraph when the
// block ID is unknown. Local edits always advance the clock so they win a
// later merge against stale remote copies of the same block.
func (s *Shared) SetBlockText(blockID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock++
	for i := range s.content.Blocks {
		if s.content.Blocks[i].ID == blockID {
			s.content.Blocks[i].Text = text
			s.content.Blocks[i].Clock = s.clock
			return
		}
	}
	s.content.Blocks = append(s.content.Blocks, Block{
		ID:    blockID,
		Type:  BlockTypeParagraph,
		Text:  text,
		Clock: s.clock,
	})
}

// AppendBlock adds a block after the existing ones and returns its ID.
func (s *Shared) AppendBlock(blockType, text string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock++
	id := uuid.NewString()
	s.content.Blocks = append(s.content.Blocks, Block{
		ID:    id,
		Type:  blockType,
		Text:  text,
		Clock: s.clock,
	})
	return id
}

// ApplyRemote merges a collaborator's content into the handle, per block and
// last-writer-wins by clock. An all-default local document adopts the remote
// content wholesale so replays of existing documents converge immediately.
func (s *Shared) ApplyRemote(remote Content) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.content.IsDefaultEmpty() && !remote.IsDefaultEmpty() {
		s.content = remote.clone()
		for _, b := range s.content.Blocks {
			if b.Clock > s.clock {
				s.clock = b.Clock
			}
		}
		return
	}
	index := make(map[string]int, len(s.content.Blocks))
	for i, b := range s.content.Blocks {
		index[b.ID] = i
	}
	for _, rb := range remote.Blocks {
		if i, ok := index[rb.ID]; ok {
			if rb.Clock > s.content.Blocks[i].Clock {
				s.content.Blocks[i] = rb
			}
			continue
		}
		s.content.Blocks = append(s.content.Blocks, rb)
	}
	for _, b := range s.content.Blocks {
		if b.Clock > s.clock {
			s.clock = b.Clock
		}
	}
}

// DecodeContent parses and structurally validates serialized content.
// Persisted snapshots travel through here so a corrupted row degrades to
// "no snapshot" instead of poisoning a live document.
func DecodeContent(raw []byte) (Content, error) {
	if err := ValidateContent(raw); err != nil {
		return Content{}, err
	}
	var c Content
	if err := json.Unmarshal(raw, &c); err != nil {
		return Content{}, fmt.Errorf("decode content: %w", err)
	}
	return c, nil
}

// EncodeContent serializes content for the durable store.
func EncodeContent(c Content) ([]byte, error) {
	return json.Marshal(c)
}
