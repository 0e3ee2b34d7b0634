package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/psaab/erconf/pkg/config"
	"github.com/psaab/erconf/pkg/configstore"
)

const (
	olderConfig = "interfaces {\n    ethernet eth0 {\n        address 10.0.0.1/24\n    }\n}\nsystem {\n    host-name gw1\n}\n"
	newerConfig = "interfaces {\n    ethernet eth0 {\n        address 10.0.0.1/24\n    }\n}\nsystem {\n    host-name gw2\n}\n"
)

type fakeRunner struct{ out string }

func (f fakeRunner) Run(_ context.Context, _ ...string) ([]byte, error) {
	return []byte(f.out), nil
}

func writeSnapshot(t *testing.T, dir, name, text string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		t.Fatal(err)
	}
}

func newTestCLI(t *testing.T) (*CLI, *strings.Builder) {
	t.Helper()
	dir := t.TempDir()
	writeSnapshot(t, dir, "2024/20240301-100000", olderConfig)
	writeSnapshot(t, dir, "2024/20240301-110000", newerConfig)

	var out strings.Builder
	backend := &Local{
		Store:  configstore.New(dir, config.DefaultPolicy()),
		Runner: fakeRunner{out: "Group wlb\n  interface   : eth0\n  status      : active\n"},
	}
	return New(backend, config.DefaultPolicy(), &out), &out
}

func TestShowHistory(t *testing.T) {
	c, out := newTestCLI(t)
	if err := c.Execute("show history"); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("output:\n%s", out)
	}
	if !strings.HasPrefix(lines[1], "0    "+filepath.Join("2024", "20240301-110000")) {
		t.Errorf("latest line = %q", lines[1])
	}
}

func TestShowConfiguration(t *testing.T) {
	tests := []struct {
		cmd  string
		want string
	}{
		{"show configuration", newerConfig},
		{"show configuration 1", olderConfig},
		{"show configuration system", "system {\n    host-name gw2\n}\n"},
		{"show configuration 1 system host-name", "host-name gw1\n"},
		{"show configuration interfaces ethernet eth0", "ethernet eth0 {\n    address 10.0.0.1/24\n}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			c, out := newTestCLI(t)
			if err := c.Execute(tt.cmd); err != nil {
				t.Fatal(err)
			}
			if out.String() != tt.want {
				t.Errorf("got:\n%s\nwant:\n%s", out, tt.want)
			}
		})
	}
}

func TestShowConfigurationErrors(t *testing.T) {
	c, _ := newTestCLI(t)
	if err := c.Execute("show configuration 5"); !errors.Is(err, configstore.ErrNoSnapshot) {
		t.Errorf("err = %v, want ErrNoSnapshot", err)
	}
	if err := c.Execute("show configuration nosuch"); !errors.Is(err, config.ErrUnknownKey) {
		t.Errorf("err = %v, want ErrUnknownKey", err)
	}
}

func TestShowCompare(t *testing.T) {
	c, out := newTestCLI(t)
	if err := c.Execute("show compare"); err != nil {
		t.Fatal(err)
	}
	want := "# " + filepath.Join("2024", "20240301-100000") + " -> " + filepath.Join("2024", "20240301-110000") + " (+1 -1)\n" +
		" interfaces {\n" +
		"     ethernet eth0 {\n" +
		"         address 10.0.0.1/24\n" +
		"     }\n" +
		" }\n" +
		" system {\n" +
		"-    host-name gw1\n" +
		"+    host-name gw2\n" +
		" }\n"
	if out.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", out, want)
	}

	out.Reset()
	if err := c.Execute("show compare 0 1 unified"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "@@") || !strings.Contains(out.String(), "+    host-name gw1\n") {
		t.Errorf("unified:\n%s", out)
	}

	for _, bad := range []string{"show compare x", "show compare 1 2 3", "show compare -1"} {
		if err := c.Execute(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestShowLoadBalance(t *testing.T) {
	c, out := newTestCLI(t)
	if err := c.Execute("show load-balance"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "  status      : active\n") {
		t.Errorf("output:\n%s", out)
	}

	c.backend.(*Local).Runner = nil
	if err := c.Execute("show load-balance"); err == nil {
		t.Error("expected error without a router")
	}
}

func TestPipeFilters(t *testing.T) {
	tests := []struct {
		cmd  string
		want string
	}{
		{"show configuration | match host", "    host-name gw2\n"},
		{"show configuration | except [{}]", "        address 10.0.0.1/24\n    host-name gw2\n"},
		{"show configuration | count", "Count: 8 lines\n"},
		{"show configuration | last 2", "    host-name gw2\n}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			c, out := newTestCLI(t)
			if err := c.Execute(tt.cmd); err != nil {
				t.Fatal(err)
			}
			if out.String() != tt.want {
				t.Errorf("got %q, want %q", out.String(), tt.want)
			}
		})
	}

	c, _ := newTestCLI(t)
	for _, bad := range []string{"show history | bogus", "show history | match", "show history | match (", "show history | last x"} {
		if err := c.Execute(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestDispatch(t *testing.T) {
	c, out := newTestCLI(t)
	if err := c.Execute("exit"); err != errExit {
		t.Errorf("exit: err = %v", err)
	}
	if err := c.Execute("quit"); err != errExit {
		t.Errorf("quit: err = %v", err)
	}
	if err := c.Execute("frobnicate"); err == nil {
		t.Error("expected error for unknown command")
	}
	if err := c.Execute("show nothing"); err == nil {
		t.Error("expected error for unknown show target")
	}
	if err := c.Execute("help"); err != nil || !strings.Contains(out.String(), "show compare") {
		t.Errorf("help: %v\n%s", err, out)
	}
	if err := c.Execute("show events"); err == nil {
		t.Error("local backend has no events")
	}
}

func TestComplete(t *testing.T) {
	c, _ := newTestCLI(t)
	tests := []struct {
		text    string
		want    string
		partial string
	}{
		{"sh", "show", "sh"},
		{"show con", "configuration", "con"},
		{"show configuration s", "system", "s"},
		{"show configuration 1 i", "interfaces", "i"},
		{"show history | co", "count", "co"},
	}
	for _, tt := range tests {
		cands, partial := c.complete(tt.text)
		if len(cands) != 1 || cands[0].Name != tt.want || partial != tt.partial {
			t.Errorf("complete(%q) = %+v, %q", tt.text, cands, partial)
		}
	}

	comp := &completer{cli: c}
	got, n := comp.Do([]rune("show lo"), 7)
	if n != 2 || len(got) != 1 || string(got[0]) != "ad-balance " {
		t.Errorf("Do() = %q, %d", got, n)
	}
}
