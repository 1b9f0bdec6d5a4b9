package location

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// History is a bounded most-recent-first list of locations the user
// finalized. Entries are de-duplicated case-insensitively. A History opened
// with OpenHistory is saved to its file after every Add.
type History struct {
	mu      sync.Mutex
	entries []string
	limit   int
	path    string
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return &History{limit: limit}
}

// OpenHistory loads the history stored at path. A missing file yields an
// empty history that is created on the first Add.
func OpenHistory(path string, limit int) (*History, error) {
	h := NewHistory(limit)
	h.path = path

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return h, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	var entries []string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode history %s: %w", path, err)
	}
	// Replay oldest first so limits and de-duplication apply as they would live.
	for i := len(entries) - 1; i >= 0; i-- {
		h.push(entries[i])
	}
	return h, nil
}

// Add records s as the most recent entry. The error reports a failed save;
// the in-memory list is updated regardless.
func (h *History) Add(s string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.push(s) || h.path == "" {
		return nil
	}
	return h.save()
}

func (h *History) push(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	out := make([]string, 0, h.limit)
	out = append(out, s)
	for _, e := range h.entries {
		if len(out) == h.limit {
			break
		}
		if !strings.EqualFold(e, s) {
			out = append(out, e)
		}
	}
	h.entries = out
	return true
}

// save replaces the file atomically.
func (h *History) save() error {
	data, err := json.Marshal(h.entries)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	dir := filepath.Dir(h.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".history-*")
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	if err := os.Rename(tmp.Name(), h.path); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

func (h *History) List() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.entries...)
}
