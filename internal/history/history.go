// Package history persists the export ledger: a JSON object mapping page
// URL to true for every page whose PDF has been confirmed on disk. The
// ledger is what makes reruns resumable, so every mutation is written
// through to stable storage before it is acknowledged.
package history

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Store owns the ledger file. One Store per run; concurrent runs against
// the same file are unsupported.
type Store struct {
	path string
	done map[string]bool
	log  *slog.Logger
}

// Load reads the ledger at path. A missing or unparsable file yields an
// empty ledger: losing history costs a re-export, aborting the run costs
// the operator more.
func Load(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, done: make(map[string]bool), log: logger}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Info("history: no ledger, starting fresh", "path", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &s.done); err != nil {
		logger.Warn("history: ledger unparsable, treating as empty",
			"path", path, "error", err)
		s.done = make(map[string]bool)
	}
	return s, nil
}

// Done reports whether the page identified by url has been exported.
func (s *Store) Done(url string) bool { return s.done[url] }

// Len returns the number of completed entries.
func (s *Store) Len() int { return len(s.done) }

// MarkDone records url as exported and writes the ledger through to disk
// before returning. Idempotent. This is the only mutator: entries are
// never removed or set back to false.
func (s *Store) MarkDone(url string) error {
	if s.done[url] {
		return nil
	}
	s.done[url] = true

	if err := s.flush(); err != nil {
		// Roll back the in-memory entry so a later retry re-attempts the write.
		delete(s.done, url)
		return err
	}
	return nil
}

// flush writes the full ledger atomically: temp file, fsync, rename.
// A crash mid-run therefore loses at most the page in flight.
func (s *Store) flush() error {
	data, err := json.MarshalIndent(s.done, "", "  ")
	if err != nil {
		return fmt.Errorf("history: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".history-*.json")
	if err != nil {
		return fmt.Errorf("history: temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("history: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("history: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("history: close: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("history: rename: %w", err)
	}
	return nil
}
