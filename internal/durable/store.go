// Package durable provides the section content store behind the sync
// engine: the backend the reconciliation loop writes and the bootstrapper
// reads. All implementations share last-write-wins upsert semantics keyed by
// section ID, which is what makes the reconciler safe to retry blindly.
package durable

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotImplemented = errors.New("not implemented")
)

// Snapshot is one persisted section row. Content is the serialized block
// document, opaque to the store; callers validate it on the way out.
type Snapshot struct {
	SectionID string    `json:"sectionId"`
	Content   []byte    `json:"content"`
	Revision  string    `json:"revision"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SectionStore is the durable backend contract.
//
// GetSectionContent returns ErrNotFound when no snapshot exists for the
// section. UpsertSectionContent is idempotent last-write-wins: repeating the
// same submission produces no semantic change.
type SectionStore interface {
	GetSectionContent(ctx context.Context, sectionID string) (Snapshot, error)
	UpsertSectionContent(ctx context.Context, sectionID string, content []byte) error
}

// SectionLister is implemented by stores that can enumerate their sections,
// used by the server's dashboard surface.
type SectionLister interface {
	ListSections(ctx context.Context) ([]Snapshot, error)
}

type storeCloser interface {
	Close() error
}

// CloseStore releases a store's resources when the implementation holds any.
func CloseStore(store SectionStore) error {
	if closer, ok := store.(storeCloser); ok && closer != nil {
		return closer.Close()
	}
	return nil
}
