package configstore

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoSnapshot is returned for a history position with no snapshot.
var ErrNoSnapshot = errors.New("no such snapshot")

// HistoryEntry describes one archived configuration snapshot.
type HistoryEntry struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"` // path relative to the archive directory
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
}

// History is an ordered list of snapshots, optionally capped in size.
type History struct {
	entries []*HistoryEntry
	maxSize int
}

// NewHistory creates a new History holding at most maxSize entries.
// maxSize <= 0 means unbounded.
func NewHistory(maxSize int) *History {
	return &History{
		maxSize: maxSize,
	}
}

// Push adds a snapshot. Entries must be pushed oldest first.
func (h *History) Push(entry *HistoryEntry) {
	h.entries = append(h.entries, entry)
	if h.maxSize > 0 && len(h.entries) > h.maxSize {
		h.entries = h.entries[1:]
	}
}

// Get returns the nth most recent snapshot (0 = most recent).
func (h *History) Get(n int) (*HistoryEntry, error) {
	if n < 0 || n >= len(h.entries) {
		return nil, fmt.Errorf("snapshot %d: %w (have %d)",
			n, ErrNoSnapshot, len(h.entries))
	}
	// entries are stored oldest-first, so index from the end
	idx := len(h.entries) - 1 - n
	return h.entries[idx], nil
}

// Len returns the number of snapshots.
func (h *History) Len() int {
	return len(h.entries)
}

// List returns all snapshots, most recent first.
func (h *History) List() []*HistoryEntry {
	result := make([]*HistoryEntry, len(h.entries))
	for i, entry := range h.entries {
		result[len(h.entries)-1-i] = entry
	}
	return result
}
