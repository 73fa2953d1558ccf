package durable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// JSONFileSectionStore persists snapshots as one JSON file, for the
// durable-local profile. Writes go through a temp file and rename so a crash
// never leaves a torn state file.
type JSONFileSectionStore struct {
	path string

	mu         sync.Mutex
	loaded     bool
	sections   map[string]Snapshot
	revCounter uint64
}

type fileStoreState struct {
	Sections   map[string]Snapshot `json:"sections"`
	RevCounter uint64              `json:"revCounter"`
}

func NewJSONFileSectionStore(path string) (*JSONFileSectionStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	return &JSONFileSectionStore{path: path, sections: map[string]Snapshot{}}, nil
}

func (s *JSONFileSectionStore) GetSectionContent(_ context.Context, sectionID string) (Snapshot, error) {
	sectionID = strings.TrimSpace(sectionID)
	if sectionID == "" {
		return Snapshot{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return Snapshot{}, err
	}
	snapshot, ok := s.sections[sectionID]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: section %s", ErrNotFound, sectionID)
	}
	return cloneSnapshot(snapshot), nil
}

func (s *JSONFileSectionStore) UpsertSectionContent(_ context.Context, sectionID string, content []byte) error {
	sectionID = strings.TrimSpace(sectionID)
	if sectionID == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}
	s.revCounter++
	s.sections[sectionID] = Snapshot{
		SectionID: sectionID,
		Content:   append([]byte(nil), content...),
		Revision:  fmt.Sprintf("rev_%d", s.revCounter),
		UpdatedAt: time.Now().UTC(),
	}
	return s.saveLocked()
}

func (s *JSONFileSectionStore) ListSections(_ context.Context) ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(s.sections))
	for _, snapshot := range s.sections {
		out = append(out, cloneSnapshot(snapshot))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SectionID < out[j].SectionID })
	return out, nil
}

func (s *JSONFileSectionStore) loadLocked() error {
	if s.loaded {
		return nil
	}
	s.loaded = true
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var state fileStoreState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	if state.Sections == nil {
		state.Sections = map[string]Snapshot{}
	}
	s.sections = state.Sections
	s.revCounter = state.RevCounter
	return nil
}

func (s *JSONFileSectionStore) saveLocked() error {
	data, err := json.Marshal(fileStoreState{Sections: s.sections, RevCounter: s.revCounter})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return writeFileAtomic(s.path, data, 0o644)
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
