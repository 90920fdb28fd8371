package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PentesterFlow/sitecrawl/internal/lockfile"
	"github.com/PentesterFlow/sitecrawl/internal/store"
)

const testTarget = "https://example.com"

// runCommand executes the CLI with args and returns its combined output.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// seedStore writes found and visited records into the project's bolt store.
func seedStore(t *testing.T, dir string, found, visited int) {
	t.Helper()

	s, err := store.Open(store.Config{Backend: store.BackendBolt, Path: filepath.Join(dir, "crawl.db")})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	now := time.Now()
	for i := 0; i < found; i++ {
		doc := store.Document{Key: testTarget + "/f" + string(rune('a'+i)), Body: []byte(`{}`), CreatedAt: now}
		if err := s.Upsert(ctx, store.CollectionFoundURLs, doc); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}
	for i := 0; i < visited; i++ {
		doc := store.Document{Key: testTarget + "/v" + string(rune('a'+i)), Body: []byte(`{}`), CreatedAt: now}
		if err := s.Upsert(ctx, store.CollectionVisitedURLs, doc); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}
}

func storeCounts(t *testing.T, dir string) (found, visited int) {
	t.Helper()

	s, err := store.Open(store.Config{Backend: store.BackendBolt, Path: filepath.Join(dir, "crawl.db")})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	found, _ = s.Count(ctx, store.CollectionFoundURLs)
	visited, _ = s.Count(ctx, store.CollectionVisitedURLs)
	return found, visited
}

// =============================================================================
// Unlock Tests
// =============================================================================

func TestUnlock_RemovesMarker(t *testing.T) {
	dir := t.TempDir()
	guard := lockfile.New(dir)
	marker, err := guard.CreateLockFile(testTarget)
	if err != nil {
		t.Fatalf("CreateLockFile() error = %v", err)
	}

	out, err := runCommand(t, "unlock", testTarget, "--project-dir", dir)
	if err != nil {
		t.Fatalf("unlock error = %v", err)
	}
	if !strings.Contains(out, marker.RunID) {
		t.Errorf("output %q should name run %s", out, marker.RunID)
	}
	if locked, _ := guard.HasLockFile(); locked {
		t.Error("lock marker should be removed")
	}
}

func TestUnlock_NoMarker(t *testing.T) {
	dir := t.TempDir()

	out, err := runCommand(t, "unlock", testTarget, "--project-dir", dir)
	if err != nil {
		t.Fatalf("unlock error = %v", err)
	}
	if !strings.Contains(out, "No lock") {
		t.Errorf("output = %q, want a no-lock message", out)
	}
}

func TestUnlock_RequiresTarget(t *testing.T) {
	if _, err := runCommand(t, "unlock", "--project-dir", t.TempDir()); err == nil {
		t.Error("unlock without a target should fail")
	}
}

// =============================================================================
// Clear Cache Tests
// =============================================================================

func TestClearCache(t *testing.T) {
	tests := []struct {
		name        string
		locked      bool
		force       bool
		wantErr     bool
		wantFound   int
		wantVisited int
	}{
		{name: "unlocked", wantFound: 0, wantVisited: 0},
		{name: "locked refuses", locked: true, wantErr: true, wantFound: 2, wantVisited: 3},
		{name: "locked with force", locked: true, force: true, wantFound: 0, wantVisited: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			seedStore(t, dir, 2, 3)

			guard := lockfile.New(dir)
			if tt.locked {
				if _, err := guard.CreateLockFile(testTarget); err != nil {
					t.Fatalf("CreateLockFile() error = %v", err)
				}
			}

			args := []string{"clear-cache", testTarget, "--project-dir", dir}
			if tt.force {
				args = append(args, "--force")
			}
			_, err := runCommand(t, args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("clear-cache error = %v, wantErr %v", err, tt.wantErr)
			}

			found, visited := storeCounts(t, dir)
			if found != tt.wantFound || visited != tt.wantVisited {
				t.Errorf("found = %d, visited = %d, want %d and %d", found, visited, tt.wantFound, tt.wantVisited)
			}

			// clear-cache never touches the lock marker.
			if locked, _ := guard.HasLockFile(); locked != tt.locked {
				t.Errorf("HasLockFile() = %v, want %v", locked, tt.locked)
			}
		})
	}
}

// =============================================================================
// Status Tests
// =============================================================================

func TestStatus_Unlocked(t *testing.T) {
	dir := t.TempDir()
	seedStore(t, dir, 2, 3)

	out, err := runCommand(t, "status", testTarget, "--project-dir", dir)
	if err != nil {
		t.Fatalf("status error = %v", err)
	}

	for _, want := range []string{"none", store.CollectionFoundURLs, store.CollectionVisitedURLs, "bolt"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestStatus_Locked(t *testing.T) {
	dir := t.TempDir()
	marker, err := lockfile.New(dir).CreateLockFile(testTarget)
	if err != nil {
		t.Fatalf("CreateLockFile() error = %v", err)
	}

	out, err := runCommand(t, "status", testTarget, "--project-dir", dir)
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	if !strings.Contains(out, marker.RunID) {
		t.Errorf("output should show run %s:\n%s", marker.RunID, out)
	}
	if !strings.Contains(out, "unavailable while locked") {
		t.Errorf("locked bolt store should not be opened:\n%s", out)
	}
}
