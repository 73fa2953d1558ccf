package durable

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemorySectionStore keeps snapshots in process memory. It is the default
// for tests and the memory:// DSN profile.
type InMemorySectionStore struct {
	mu         sync.Mutex
	sections   map[string]Snapshot
	revCounter uint64
	now        func() time.Time
}

func NewInMemorySectionStore() *InMemorySectionStore {
	return &InMemorySectionStore{
		sections: map[string]Snapshot{},
		now:      time.Now,
	}
}

func (s *InMemorySectionStore) GetSectionContent(_ context.Context, sectionID string) (Snapshot, error) {
	sectionID = strings.TrimSpace(sectionID)
	if sectionID == "" {
		return Snapshot{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot, ok := s.sections[sectionID]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: section %s", ErrNotFound, sectionID)
	}
	return cloneSnapshot(snapshot), nil
}

func (s *InMemorySectionStore) UpsertSectionContent(_ context.Context, sectionID string, content []byte) error {
	sectionID = strings.TrimSpace(sectionID)
	if sectionID == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revCounter++
	s.sections[sectionID] = Snapshot{
		SectionID: sectionID,
		Content:   append([]byte(nil), content...),
		Revision:  fmt.Sprintf("rev_%d", s.revCounter),
		UpdatedAt: s.now().UTC(),
	}
	return nil
}

func (s *InMemorySectionStore) ListSections(_ context.Context) ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Snapshot, 0, len(s.sections))
	for _, snapshot := range s.sections {
		out = append(out, cloneSnapshot(snapshot))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SectionID < out[j].SectionID })
	return out, nil
}

func cloneSnapshot(s Snapshot) Snapshot {
	s.Content = append([]byte(nil), s.Content...)
	return s
}
