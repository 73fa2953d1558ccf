package docsync

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/loomworks/docsync/internal/durable"
	"github.com/loomworks/docsync/internal/transport"
)

type fakeTransport struct {
	mu              sync.Mutex
	status          chan transport.Status
	connectCalls    int
	disconnectCalls int
	connectErr      error
	closeOnce       sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{status: make(chan transport.Status, 32)}
}

func (f *fakeTransport) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	return f.connectErr
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnectCalls++
}

func (f *fakeTransport) Status() <-chan transport.Status { return f.status }

func (f *fakeTransport) Close() {
	f.closeOnce.Do(func() { close(f.status) })
}

func (f *fakeTransport) emit(s transport.Status) { f.status <- s }

func (f *fakeTransport) connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls
}

func (f *fakeTransport) disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnectCalls
}

type fakeSectionStore struct {
	mu          sync.Mutex
	snapshots   map[string]durable.Snapshot
	getCalls    int
	upsertCalls int
	getErr      error
	upsertErr   error
	revCounter  int
}

func newFakeSectionStore() *fakeSectionStore {
	return &fakeSectionStore{snapshots: map[string]durable.Snapshot{}}
}

func (s *fakeSectionStore) GetSectionContent(_ context.Context, sectionID string) (durable.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return durable.Snapshot{}, s.getErr
	}
	snapshot, ok := s.snapshots[sectionID]
	if !ok {
		return durable.Snapshot{}, fmt.Errorf("%w: section %s", durable.ErrNotFound, sectionID)
	}
	return snapshot, nil
}

func (s *fakeSectionStore) UpsertSectionContent(_ context.Context, sectionID string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.revCounter++
	s.snapshots[sectionID] = durable.Snapshot{
		SectionID: sectionID,
		Content:   append([]byte(nil), content...),
		Revision:  fmt.Sprintf("rev_%d", s.revCounter),
		UpdatedAt: time.Now(),
	}
	return nil
}

func (s *fakeSectionStore) calls() (gets, upserts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls, s.upsertCalls
}

func (s *fakeSectionStore) setUpsertErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertErr = err
}

func (s *fakeSectionStore) seed(sectionID string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revCounter++
	s.snapshots[sectionID] = durable.Snapshot{
		SectionID: sectionID,
		Content:   append([]byte(nil), content...),
		Revision:  fmt.Sprintf("rev_%d", s.revCounter),
		UpdatedAt: time.Now(),
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %s: %s", timeout, msg)
}
