package media

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/studymill/studymill-backend/internal/pkg/errs"
)

// Workspace is the per-run temporary directory that owns every intermediate
// artifact (normalized audio, chunks, rasterized pages). It is acquired at
// job start and released exactly once on every exit path.
type Workspace struct {
	root string

	mu       sync.Mutex
	released bool
}

func NewWorkspace(prefix string) (*Workspace, error) {
	dir, err := os.MkdirTemp("", prefix+"-*")
	if err != nil {
		return nil, fmt.Errorf("%w: create temp dir: %v", errs.ErrWorkspace, err)
	}
	return &Workspace{root: dir}, nil
}

func (w *Workspace) Root() string { return w.root }

// Path joins elem onto the workspace root.
func (w *Workspace) Path(elem ...string) string {
	return filepath.Join(append([]string{w.root}, elem...)...)
}

// Mkdir creates a subdirectory inside the workspace and returns its path.
func (w *Workspace) Mkdir(name string) (string, error) {
	dir := filepath.Join(w.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: mkdir %s: %v", errs.ErrWorkspace, name, err)
	}
	return dir, nil
}

// WriteFile writes data to a file inside the workspace.
func (w *Workspace) WriteFile(name string, data []byte) (string, error) {
	path := filepath.Join(w.root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("%w: mkdir for %s: %v", errs.ErrWorkspace, name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: write %s: %v", errs.ErrWorkspace, name, err)
	}
	return path, nil
}

// Release removes the workspace directory. Safe to call more than once.
func (w *Workspace) Release() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.released {
		return
	}
	w.released = true
	_ = os.RemoveAll(w.root)
}

// Released reports whether Release has run. Used by tests and by the runner's
// cleanup assertions.
func (w *Workspace) Released() bool {
	if w == nil {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.released
}
