package configstore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/psaab/erconf/pkg/config"
)

const baseConfig = `interfaces {
    ethernet eth0 {
        address 192.168.1.1/24
    }
}
system {
    host-name ubnt
}
`

// newTestStore creates a Store in a temp dir whose clock advances one
// minute per snapshot, starting at 2024-03-01 10:00:00 UTC.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "Logs"), config.DefaultPolicy())
	next := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		ts := next
		next = next.Add(time.Minute)
		return ts
	}
	return s
}

func TestSaveWritesSnapshot(t *testing.T) {
	s := newTestStore(t)

	path, changed, err := s.Save(baseConfig)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !changed {
		t.Fatal("first save should write a snapshot")
	}
	want := filepath.Join(s.Dir(), "2024", "20240301-100000")
	if path != want {
		t.Errorf("path = %s, want %s", path, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != baseConfig {
		t.Errorf("snapshot content:\n%s", data)
	}

	target, err := os.Readlink(filepath.Join(s.Dir(), "latest"))
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != filepath.Join("2024", "20240301-100000") {
		t.Errorf("latest -> %s", target)
	}

	latest, err := s.Latest()
	if err != nil {
		t.Fatal(err)
	}
	if latest != baseConfig {
		t.Errorf("Latest() = %q", latest)
	}
}

func TestSaveUnchanged(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.Save(baseConfig); err != nil {
		t.Fatal(err)
	}

	// Same content with different entry order and trailing spaces is the
	// same canonical configuration.
	reordered := "system {\n    host-name ubnt   \n}\ninterfaces {\n    ethernet eth0 {\n        address 192.168.1.1/24\n    }\n}\n"
	_, changed, err := s.Save(reordered)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("equivalent configuration should not create a snapshot")
	}

	h, err := s.History()
	if err != nil {
		t.Fatal(err)
	}
	if h.Len() != 1 {
		t.Errorf("history has %d snapshots, want 1", h.Len())
	}
}

func TestSaveEmpty(t *testing.T) {
	s := newTestStore(t)
	_, changed, err := s.Save("")
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("empty configuration should not be archived")
	}
	if _, err := os.Stat(s.Dir()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("archive dir should not exist, stat err = %v", err)
	}
}

func TestSaveParseError(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.Save("a {\n}\na {\n}\n")
	if !errors.Is(err, config.ErrDuplicateDefinition) {
		t.Errorf("err = %v, want ErrDuplicateDefinition", err)
	}
}

func TestHistoryAndCompare(t *testing.T) {
	s := newTestStore(t)
	versions := []string{
		baseConfig,
		strings.Replace(baseConfig, "ubnt", "gw1", 1),
		strings.Replace(baseConfig, "192.168.1.1/24", "192.168.2.1/24", 1),
	}
	for _, v := range versions {
		if _, changed, err := s.Save(v); err != nil || !changed {
			t.Fatalf("Save: changed=%v err=%v", changed, err)
		}
	}

	h, err := s.History()
	if err != nil {
		t.Fatal(err)
	}
	if h.Len() != 3 {
		t.Fatalf("history has %d snapshots, want 3", h.Len())
	}
	list := h.List()
	if list[0].Name != filepath.Join("2024", "20240301-100200") {
		t.Errorf("most recent = %s", list[0].Name)
	}
	if list[2].Name != filepath.Join("2024", "20240301-100000") {
		t.Errorf("oldest = %s", list[2].Name)
	}
	if _, err := h.Get(3); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Get(3) err = %v, want ErrNoSnapshot", err)
	}

	cfg, entry, err := s.Load(1)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Size != int64(len(versions[1])) {
		t.Errorf("size = %d", entry.Size)
	}
	if _, err := cfg.Lookup("system", "host-name"); err != nil {
		t.Errorf("Lookup: %v", err)
	}

	lines, err := s.Compare(1, 0)
	if err != nil {
		t.Fatal(err)
	}
	diff := config.FormatDiff(lines)
	for _, want := range []string{
		"-        address 192.168.1.1/24\n",
		"+        address 192.168.2.1/24\n",
		"-    host-name gw1\n",
		"+    host-name ubnt\n",
		" interfaces {\n",
	} {
		if !strings.Contains(diff, want) {
			t.Errorf("diff missing %q:\n%s", want, diff)
		}
	}

	lines, err = s.CompareText(0, versions[2])
	if err != nil {
		t.Fatal(err)
	}
	if config.Summarize(lines).Changed() {
		t.Error("latest snapshot should equal the last saved text")
	}
}

func TestHistoryIgnoresStrayFiles(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.Save(baseConfig); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(s.Dir(), "2024", "notes.txt"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(s.Dir(), "README"), []byte("x"), 0644)

	h, err := s.History()
	if err != nil {
		t.Fatal(err)
	}
	if h.Len() != 1 {
		t.Errorf("history has %d snapshots, want 1", h.Len())
	}
}

func TestHistoryMissingDir(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nope"), config.DefaultPolicy())
	h, err := s.History()
	if err != nil {
		t.Fatal(err)
	}
	if h.Len() != 0 {
		t.Errorf("len = %d", h.Len())
	}
	if _, _, err := s.Load(0); err == nil {
		t.Error("expected error loading from an empty archive")
	}
	latest, err := s.Latest()
	if err != nil || latest != "" {
		t.Errorf("Latest() = %q, %v", latest, err)
	}
}

func TestHistoryCap(t *testing.T) {
	h := NewHistory(2)
	for i := 0; i < 3; i++ {
		h.Push(&HistoryEntry{Name: string(rune('a' + i))})
	}
	if h.Len() != 2 {
		t.Fatalf("len = %d", h.Len())
	}
	e, err := h.Get(0)
	if err != nil || e.Name != "c" {
		t.Errorf("Get(0) = %v, %v", e, err)
	}
	e, err = h.Get(1)
	if err != nil || e.Name != "b" {
		t.Errorf("Get(1) = %v, %v", e, err)
	}
	if _, err := h.Get(-1); err == nil {
		t.Error("expected error for negative index")
	}
}

func TestSaveRetention(t *testing.T) {
	s := newTestStore(t)
	s.SetRetention(2)
	var paths []string
	for _, name := range []string{"gw1", "gw2", "gw3"} {
		path, written, err := s.Save(strings.Replace(baseConfig, "ubnt", name, 1))
		if err != nil || !written {
			t.Fatalf("Save(%s) = %v, %v", name, written, err)
		}
		paths = append(paths, path)
	}

	if _, err := os.Stat(paths[0]); !os.IsNotExist(err) {
		t.Errorf("oldest snapshot not pruned: %v", err)
	}
	for _, p := range paths[1:] {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("kept snapshot: %v", err)
		}
	}
	h, err := s.History()
	if err != nil {
		t.Fatal(err)
	}
	if h.Len() != 2 || s.Retention() != 2 {
		t.Fatalf("len = %d, retention = %d", h.Len(), s.Retention())
	}
	if e, _ := h.Get(0); e.Path != paths[2] {
		t.Errorf("latest = %s, want %s", e.Path, paths[2])
	}
}

func TestSaveSameSecond(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "Logs"), config.DefaultPolicy())
	s.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }

	first, written, err := s.Save(baseConfig)
	if err != nil || !written {
		t.Fatalf("first Save = %v, %v", written, err)
	}
	_, written, err = s.Save(strings.Replace(baseConfig, "ubnt", "gw1", 1))
	if !errors.Is(err, ErrSnapshotExists) || written {
		t.Fatalf("second Save = %v, %v, want ErrSnapshotExists", written, err)
	}

	data, err := os.ReadFile(first)
	if err != nil || string(data) != baseConfig {
		t.Errorf("first snapshot overwritten: %q, %v", data, err)
	}
	if latest, _ := s.Latest(); latest != baseConfig {
		t.Errorf("latest = %q", latest)
	}
}
