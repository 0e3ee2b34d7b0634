// Package configstore implements the dated on-disk archive of router
// configuration snapshots.
//
// Snapshots are stored as <dir>/YYYY/YYYYmmdd-HHMMSS in canonical rendering,
// and <dir>/latest is a relative symlink to the newest one.
package configstore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/psaab/erconf/pkg/config"
)

const (
	latestName     = "latest"
	snapshotLayout = "20060102-150405"
)

// ErrSnapshotExists is returned when a snapshot with the same timestamp is
// already archived.
var ErrSnapshotExists = errors.New("snapshot already exists")

// Store manages the snapshot archive rooted at a directory.
type Store struct {
	mu        sync.Mutex
	dir       string
	policy    config.Policy
	retention int
	now       func() time.Time
}

// New creates a store rooted at dir. policy is used to parse snapshots.
func New(dir string, policy config.Policy) *Store {
	return &Store{
		dir:    dir,
		policy: policy,
		now:    time.Now,
	}
}

// Dir returns the archive directory.
func (s *Store) Dir() string {
	return s.dir
}

// Policy returns the parse policy.
func (s *Store) Policy() config.Policy {
	return s.policy
}

// SetRetention caps the archive at n snapshots; older ones are deleted on
// the next Save. n <= 0 keeps everything.
func (s *Store) SetRetention(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retention = n
}

// Retention returns the snapshot cap, 0 meaning unbounded.
func (s *Store) Retention() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retention < 0 {
		return 0
	}
	return s.retention
}

// Save archives text if its canonical rendering differs from the latest
// snapshot. It returns the path of the new snapshot and whether one was
// written. Empty configurations are never archived.
func (s *Store) Save(text string) (string, bool, error) {
	cfg, err := config.Parse(text, s.policy)
	if err != nil {
		return "", false, fmt.Errorf("parse config: %w", err)
	}
	rendered := cfg.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	latest, err := s.readLatest()
	if err != nil {
		return "", false, err
	}
	if rendered == latest {
		return "", false, nil
	}
	if rendered == "" {
		slog.Warn("not archiving empty configuration", "dir", s.dir)
		return "", false, nil
	}

	now := s.now()
	year := fmt.Sprintf("%04d", now.Year())
	name := filepath.Join(year, now.Format(snapshotLayout))
	path := filepath.Join(s.dir, name)
	if _, err := os.Lstat(path); err == nil {
		return "", false, fmt.Errorf("%s: %w", name, ErrSnapshotExists)
	}

	if err := os.MkdirAll(filepath.Join(s.dir, year), 0755); err != nil {
		return "", false, fmt.Errorf("create archive dir: %w", err)
	}
	if err := writeFileAtomic(path, []byte(rendered)); err != nil {
		return "", false, err
	}
	if err := s.pointLatest(name); err != nil {
		return "", false, err
	}

	slog.Info("configuration snapshot written",
		"path", path,
		"bytes", len(rendered))
	if err := s.prune(); err != nil {
		slog.Warn("archive pruning failed", "dir", s.dir, "err", err)
	}
	return path, true, nil
}

// Latest returns the newest snapshot, or "" if there is none.
func (s *Store) Latest() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLatest()
}

func (s *Store) readLatest() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, latestName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read latest snapshot: %w", err)
	}
	return string(data), nil
}

// pointLatest replaces the latest symlink with one pointing at name.
func (s *Store) pointLatest(name string) error {
	link := filepath.Join(s.dir, latestName)
	tmp := link + ".tmp"
	os.Remove(tmp)
	if err := os.Symlink(name, tmp); err != nil {
		return fmt.Errorf("link latest snapshot: %w", err)
	}
	if err := os.Rename(tmp, link); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("link latest snapshot: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Chmod(f.Name(), 0644); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// History scans the archive and returns its snapshots, capped by the
// retention.
func (s *Store) History() (*History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.scan()
	if err != nil {
		return nil, err
	}
	h := NewHistory(s.retention)
	for _, e := range entries {
		h.Push(e)
	}
	return h, nil
}

// prune deletes the snapshots that fall outside the retention. The latest
// snapshot is always kept.
func (s *Store) prune() error {
	if s.retention <= 0 {
		return nil
	}
	entries, err := s.scan()
	if err != nil {
		return err
	}
	for len(entries) > s.retention {
		if err := os.Remove(entries[0].Path); err != nil {
			return fmt.Errorf("prune snapshot: %w", err)
		}
		slog.Debug("snapshot pruned", "path", entries[0].Path)
		entries = entries[1:]
	}
	return nil
}

// scan returns every snapshot in the archive, oldest first.
func (s *Store) scan() ([]*HistoryEntry, error) {
	years, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read archive: %w", err)
	}

	var entries []*HistoryEntry
	for _, y := range years {
		if !y.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.dir, y.Name()))
		if err != nil {
			return nil, fmt.Errorf("read archive: %w", err)
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			ts, err := time.ParseInLocation(snapshotLayout, f.Name(), time.Local)
			if err != nil {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			name := filepath.Join(y.Name(), f.Name())
			entries = append(entries, &HistoryEntry{
				Path:      filepath.Join(s.dir, name),
				Name:      name,
				Timestamp: ts,
				Size:      info.Size(),
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// Load parses the nth most recent snapshot (0 = latest).
func (s *Store) Load(n int) (*config.Config, *HistoryEntry, error) {
	h, err := s.History()
	if err != nil {
		return nil, nil, err
	}
	entry, err := h.Get(n)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.ParseFile(entry.Path, s.policy)
	if err != nil {
		return nil, nil, err
	}
	return cfg, entry, nil
}

// Compare diffs snapshot from (left) against snapshot to (right); both are
// history positions, 0 being the latest.
func (s *Store) Compare(from, to int) ([]config.DiffLine, error) {
	left, _, err := s.Load(from)
	if err != nil {
		return nil, err
	}
	right, _, err := s.Load(to)
	if err != nil {
		return nil, err
	}
	return left.Diff(right)
}

// CompareText diffs snapshot n against an unarchived configuration text.
func (s *Store) CompareText(n int, text string) ([]config.DiffLine, error) {
	left, _, err := s.Load(n)
	if err != nil {
		return nil, err
	}
	right, err := config.Parse(text, s.policy)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return left.Diff(right)
}
