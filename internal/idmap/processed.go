package idmap

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// ProcessedSet is the durable record of migrated project ids, one id per
// line in a plain text file. Appends are guarded by a file lock so two runs
// pointed at the same state directory cannot interleave writes.
type ProcessedSet struct {
	path string
	lock *flock.Flock
	ids  map[int64]bool
}

// LoadProcessed reads the processed file, creating an empty set when the
// file does not exist yet. Unparseable lines are skipped.
func LoadProcessed(path string) (*ProcessedSet, error) {
	s := &ProcessedSet{
		path: path,
		lock: flock.New(path + ".lock"),
		ids:  make(map[int64]bool),
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to open processed file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			continue
		}
		s.ids[id] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read processed file: %w", err)
	}
	return s, nil
}

// Contains reports whether a project has already been migrated.
func (s *ProcessedSet) Contains(projectID int64) bool {
	return s.ids[projectID]
}

// Mark appends the project id to the file under the lock and records it in
// memory. Marking an already-recorded id is a no-op.
func (s *ProcessedSet) Mark(projectID int64) error {
	if s.ids[projectID] {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	locked, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire processed file lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another run holds the processed file lock")
	}
	defer s.lock.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open processed file for append: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%d\n", projectID); err != nil {
		return fmt.Errorf("failed to append to processed file: %w", err)
	}
	s.ids[projectID] = true
	return nil
}

// Clear removes the processed file so every project is eligible again.
func (s *ProcessedSet) Clear() error {
	locked, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire processed file lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another run holds the processed file lock")
	}
	defer s.lock.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove processed file: %w", err)
	}
	s.ids = make(map[int64]bool)
	return nil
}
