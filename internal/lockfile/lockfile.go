// Package lockfile guards a project directory against concurrent crawls
// with an exclusive marker file.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// DefaultName is the marker file name inside the project directory.
const DefaultName = "crawl.lock"

var (
	// ErrLocked is returned by CreateLockFile when a marker already exists.
	ErrLocked = errors.New("crawl already in progress")

	// ErrNotLocked is returned by Read when no marker exists.
	ErrNotLocked = errors.New("no lock marker")
)

// Marker is the content of a lock file.
type Marker struct {
	RunID     string    `json:"run_id"`
	PID       int       `json:"pid"`
	Host      string    `json:"host"`
	Seed      string    `json:"seed,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Guard owns the lock marker of one project directory. Markers have no
// expiry; a marker left by a crashed run stays until removed.
type Guard struct {
	path string
	now  func() time.Time
}

// New creates a guard for a marker named DefaultName in dir.
func New(dir string) *Guard {
	return &Guard{
		path: filepath.Join(dir, DefaultName),
		now:  time.Now,
	}
}

// Path returns the marker path.
func (g *Guard) Path() string {
	return g.path
}

// HasLockFile reports whether a marker exists.
func (g *Guard) HasLockFile() (bool, error) {
	_, err := os.Stat(g.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat lock file: %w", err)
	}
	return true, nil
}

// CreateLockFile atomically creates the marker and returns its content.
// It fails with ErrLocked if the marker exists.
func (g *Guard) CreateLockFile(seed string) (*Marker, error) {
	if err := os.MkdirAll(filepath.Dir(g.path), 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	f, err := os.OpenFile(g.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, fs.ErrExist) {
		return nil, ErrLocked
	}
	if err != nil {
		return nil, fmt.Errorf("create lock file: %w", err)
	}
	defer f.Close()

	host, _ := os.Hostname()
	m := &Marker{
		RunID:     uuid.New().String(),
		PID:       os.Getpid(),
		Host:      host,
		Seed:      seed,
		StartedAt: g.now().UTC(),
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		f.Close()
		os.Remove(g.path)
		return nil, fmt.Errorf("write lock file: %w", err)
	}
	return m, nil
}

// RemoveLockFile deletes the marker. A missing marker is not an error.
func (g *Guard) RemoveLockFile() error {
	err := os.Remove(g.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

// Read returns the current marker.
func (g *Guard) Read() (*Marker, error) {
	data, err := os.ReadFile(g.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotLocked
	}
	if err != nil {
		return nil, fmt.Errorf("read lock file: %w", err)
	}

	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse lock file: %w", err)
	}
	return &m, nil
}
