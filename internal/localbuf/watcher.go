// Package localbuf keeps a per-section draft file on the local filesystem.
// Edits written to the draft by other processes flow into the shared document
// through an fsnotify watcher, and the document can be flushed back to the
// draft so content survives a crash while both sync tiers are unreachable.
package localbuf

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/loomworks/docsync/internal/document"
)

const defaultDebounce = 500 * time.Millisecond

// Options configures a draft buffer.
type Options struct {
	// Dir is the directory holding draft files, one per section.
	Dir string

	// SectionID names the draft file: <sectionID>.json.
	SectionID string

	// Document receives decoded draft content.
	Document *document.Shared

	// Debounce is how long to wait for more writes before reloading the
	// draft. Defaults to 500ms.
	Debounce time.Duration

	Logger *slog.Logger
}

// Buffer watches one draft file and applies its content to the document.
type Buffer struct {
	dir       string
	sectionID string
	doc       *document.Shared
	debounce  time.Duration
	logger    *slog.Logger

	watcher *fsnotify.Watcher

	mu       sync.Mutex
	pending  bool
	lastHash string

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewBuffer creates a draft buffer. The draft directory is created if needed.
func NewBuffer(opts Options) (*Buffer, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("localbuf: draft directory is required")
	}
	if strings.TrimSpace(opts.SectionID) == "" {
		return nil, errors.New("localbuf: section ID is required")
	}
	if opts.Document == nil {
		return nil, errors.New("localbuf: document is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create draft directory: %w", err)
	}
	return &Buffer{
		dir:       opts.Dir,
		sectionID: opts.SectionID,
		doc:       opts.Document,
		debounce:  debounce,
		logger:    logger.With("sectionId", opts.SectionID),
		done:      make(chan struct{}),
	}, nil
}

// Path returns the draft file path for this section.
func (b *Buffer) Path() string {
	return filepath.Join(b.dir, b.sectionID+".json")
}

// Start loads the current draft if present, then watches the directory for
// changes to the draft file.
func (b *Buffer) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(b.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch draft directory: %w", err)
	}
	b.watcher = fsw

	b.reload()

	b.wg.Add(1)
	go b.run(ctx)
	b.logger.Debug("draft buffer started", "path", b.Path())
	return nil
}

// Stop closes the watcher and waits for the event loop to exit. Safe to call
// twice.
func (b *Buffer) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		if b.watcher != nil {
			b.watcher.Close()
		}
	})
	b.wg.Wait()
}

// Flush writes the document's current content to the draft file so a crash
// while offline cannot lose edits. The buffer's own watcher ignores the
// resulting event because the content hash is recorded first.
func (b *Buffer) Flush() error {
	raw, err := document.EncodeContent(b.doc.Serialize())
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	b.mu.Lock()
	b.lastHash = contentHash(raw)
	b.mu.Unlock()
	if err := writeFileAtomic(b.Path(), raw); err != nil {
		return fmt.Errorf("write draft: %w", err)
	}
	return nil
}

func (b *Buffer) run(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			b.handleEvent(event)
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.logger.Error("draft watcher error", "error", err)
		case <-ticker.C:
			b.mu.Lock()
			pending := b.pending
			b.pending = false
			b.mu.Unlock()
			if pending {
				b.reload()
			}
		}
	}
}

func (b *Buffer) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(b.Path()) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	b.mu.Lock()
	b.pending = true
	b.mu.Unlock()
}

// reload reads the draft and applies it to the document when its content
// differs from what the buffer last saw. Malformed drafts are logged and
// skipped so a half-written file cannot clobber live content.
func (b *Buffer) reload() {
	raw, err := os.ReadFile(b.Path())
	if err != nil {
		if !os.IsNotExist(err) {
			b.logger.Warn("failed to read draft", "error", err)
		}
		return
	}
	hash := contentHash(raw)
	b.mu.Lock()
	unchanged := hash == b.lastHash
	b.lastHash = hash
	b.mu.Unlock()
	if unchanged {
		return
	}
	content, err := document.DecodeContent(raw)
	if err != nil {
		b.logger.Warn("ignoring malformed draft", "error", err)
		return
	}
	b.doc.ApplyRemote(content)
	b.logger.Debug("applied draft content", "blocks", len(content.Blocks))
}

func contentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".draft-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
