package viewer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

// Viewer renders snapshots of the log file. It only ever reads the file.
type Viewer struct {
	path string
	mu   sync.Mutex
	last string
}

// New creates a viewer for the log file at path
func New(path string) *Viewer {
	return &Viewer{path: path}
}

// Path returns the log file path
func (v *Viewer) Path() string {
	return v.path
}

// Refresh reads the whole file. A file that does not exist yet reads as
// empty; a concurrently appended last line may be partial.
func (v *Viewer) Refresh() (string, error) {
	data, err := os.ReadFile(v.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			data = nil
		} else {
			return "", fmt.Errorf("failed to read log file: %w", err)
		}
	}

	snapshot := string(data)
	v.mu.Lock()
	v.last = snapshot
	v.mu.Unlock()
	return snapshot, nil
}

// Last returns the most recent snapshot
func (v *Viewer) Last() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.last
}
