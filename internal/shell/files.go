package shell

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"knowshowgo/internal/logging"
)

// FileSnapshot captures one file's state before a command runs.
type FileSnapshot struct {
	Path    string
	Existed bool
	Content []byte
	Mode    os.FileMode
	SHA256  string
}

// FileTracker snapshots files so a failed or unwanted command can be rolled
// back. Tracking is explicit: callers name the files a command may touch.
type FileTracker struct {
	mu        sync.Mutex
	snapshots map[string]FileSnapshot
}

// NewFileTracker creates an empty tracker.
func NewFileTracker() *FileTracker {
	return &FileTracker{snapshots: make(map[string]FileSnapshot)}
}

// Track records the current state of a path. Tracking the same path twice
// keeps the first snapshot, the pre-command state.
func (t *FileTracker) Track(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.snapshots[abs]; ok {
		return nil
	}

	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		t.snapshots[abs] = FileSnapshot{Path: abs, Existed: false}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", abs, err)
	}
	if info.IsDir() {
		return fmt.Errorf("cannot track directory %s", abs)
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", abs, err)
	}
	sum := sha256.Sum256(content)
	t.snapshots[abs] = FileSnapshot{
		Path:    abs,
		Existed: true,
		Content: content,
		Mode:    info.Mode(),
		SHA256:  hex.EncodeToString(sum[:]),
	}
	return nil
}

// Changed reports the tracked paths whose content hash differs from the
// snapshot, including files that appeared or disappeared.
func (t *FileTracker) Changed() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var changed []string
	for path, snap := range t.snapshots {
		content, err := os.ReadFile(path)
		exists := err == nil
		if exists != snap.Existed {
			changed = append(changed, path)
			continue
		}
		if !exists {
			continue
		}
		sum := sha256.Sum256(content)
		if hex.EncodeToString(sum[:]) != snap.SHA256 {
			changed = append(changed, path)
		}
	}
	return changed
}

// Rollback restores every tracked file to its snapshot: recreated files are
// deleted, modified files rewritten with their original mode.
func (t *FileTracker) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var firstErr error
	for path, snap := range t.snapshots {
		var err error
		if snap.Existed {
			err = os.WriteFile(path, snap.Content, snap.Mode)
		} else {
			err = os.Remove(path)
			if os.IsNotExist(err) {
				err = nil
			}
		}
		if err != nil {
			logging.Shell("rollback of %s failed: %v", path, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Count returns the number of tracked files.
func (t *FileTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.snapshots)
}
