// Package cleanup tracks temporary files the pipeline creates during
// processing and reclaims them once they're no longer needed, while
// deliberately preserving thumbnails and compressed working JPEGs past
// worker exit for downstream consumers such as the UI.
package cleanup

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Tag categorizes a tracked temporary file.
type Tag string

const (
	TagJPEGProcessing Tag = "jpeg-processing"
	TagCompressed     Tag = "compressed"
	TagThumbnails     Tag = "thumbnails"
	TagMicroThumbs    Tag = "micro-thumbs"
	TagOther          Tag = "other"
)

// preservedPastWorkerExit holds tags the pipeline never auto-reclaims on
// a worker's finally path — only a startup or shutdown sweep removes
// them.
var preservedPastWorkerExit = map[Tag]bool{
	TagCompressed: true,
	TagThumbnails: true,
	TagMicroThumbs: true,
}

// entry is one tracked temporary path.
type entry struct {
	path string
	tag  Tag
}

// Manager is the temp-file registry: the one piece of mutable shared
// state across workers besides the match-outcome cache and batch
// counters, so every operation is mutex-guarded.
type Manager struct {
	root string

	mu      sync.Mutex
	entries map[string]entry
}

// New builds a Manager rooted at root (the pipeline's centralized temp
// directory); root is created if missing.
func New(root string) (*Manager, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("cleanup: creating temp root: %w", err)
	}
	return &Manager{root: root, entries: make(map[string]entry)}, nil
}

// TrackTempFile registers path under tag and returns a registry id.
func (m *Manager) TrackTempFile(path string, tag Tag) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := newID()
	m.entries[id] = entry{path: path, tag: tag}
	return id
}

// CleanupFile removes the tracked file by id, regardless of its tag —
// used for an explicit, caller-driven reclaim rather than the
// tag-preservation rule applied elsewhere.
func (m *Manager) CleanupFile(id string) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	if ok {
		delete(m.entries, id)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return removeIfExists(e.path)
}

// CleanupByTag removes every tracked file carrying tag and unregisters
// them, regardless of the preservation rule — callers that want the
// rule honored should check ShouldPreserve(tag) themselves (as the
// worker's finally path does).
func (m *Manager) CleanupByTag(tag Tag) []error {
	m.mu.Lock()
	var toRemove []entry
	for id, e := range m.entries {
		if e.tag == tag {
			toRemove = append(toRemove, e)
			delete(m.entries, id)
		}
	}
	m.mu.Unlock()

	var errs []error
	for _, e := range toRemove {
		if err := removeIfExists(e.path); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// ShouldPreserve reports whether tag is deliberately kept past a
// worker's finally path (thumbnails, compressed JPEGs).
func ShouldPreserve(tag Tag) bool {
	return preservedPastWorkerExit[tag]
}

// ReclaimWorkerTemporaries is the worker's finally-path sweep: it
// removes every tracked file NOT in a preserved tag, leaving thumbnails
// and compressed JPEGs alone.
func (m *Manager) ReclaimWorkerTemporaries() []error {
	m.mu.Lock()
	var toRemove []entry
	for id, e := range m.entries {
		if ShouldPreserve(e.tag) {
			continue
		}
		toRemove = append(toRemove, e)
		delete(m.entries, id)
	}
	m.mu.Unlock()

	var errs []error
	for _, e := range toRemove {
		if err := removeIfExists(e.path); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// StartupCleanup reclaims everything under the temp root, regardless of
// tracking — run once when the application starts, to clean up after a
// crash or unclean shutdown in a prior run.
func (m *Manager) StartupCleanup() error {
	return m.reclaimAll()
}

// Shutdown is the graceful-shutdown counterpart to StartupCleanup: it
// also reclaims everything under the temp root, regardless of tag or
// tracking.
func (m *Manager) Shutdown() error {
	return m.reclaimAll()
}

func (m *Manager) reclaimAll() error {
	m.mu.Lock()
	m.entries = make(map[string]entry)
	m.mu.Unlock()

	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cleanup: reading temp root: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(m.root, e.Name())); err != nil {
			return fmt.Errorf("cleanup: removing %s: %w", e.Name(), err)
		}
	}
	return nil
}

// GenerateTempPath builds a unique path under the temp root for the
// given base identifier (typically the source file's id), prefix, and
// extension, and tracks it under tag in one step.
func (m *Manager) GenerateTempPath(base, prefix, ext string, tag Tag) (string, string) {
	name := fmt.Sprintf("%s_%s_%s%s", prefix, base, newID(), ext)
	dir := filepath.Join(m.root, string(tag))
	path := filepath.Join(dir, name)
	id := m.TrackTempFile(path, tag)
	return path, id
}

// EnsureTagDir creates the subdirectory GenerateTempPath writes a given
// tag's files into, ahead of any caller actually writing to a path it
// returned.
func (m *Manager) EnsureTagDir(tag Tag) error {
	if err := os.MkdirAll(filepath.Join(m.root, string(tag)), 0o755); err != nil {
		return fmt.Errorf("cleanup: creating tag directory %s: %w", tag, err)
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cleanup: removing %s: %w", path, err)
	}
	return nil
}

func newID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
