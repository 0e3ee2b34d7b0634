// Package poll fetches configuration and status output from an EdgeRouter
// over an ssh session.
package poll

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Runner executes a command on the router and returns its standard output.
type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

// DefaultSSHBinary is the ssh client used when SSH.Binary is empty.
const DefaultSSHBinary = "/usr/bin/ssh"

// SSH runs commands through the system ssh client, so host aliases, keys
// and ProxyJump settings from ~/.ssh/config apply.
type SSH struct {
	Addr    string
	Binary  string
	Options []string // extra ssh arguments placed before the host

	// KillDelay is how long an interrupted ssh gets before it is killed.
	KillDelay time.Duration
}

// NewSSH returns an SSH runner for addr.
func NewSSH(addr string) *SSH {
	return &SSH{
		Addr:      addr,
		Binary:    DefaultSSHBinary,
		KillDelay: 3 * time.Second,
	}
}

// Args returns the ssh argument vector for running args on the router.
// Password prompts are disabled so a failed key login fails fast.
func (s *SSH) Args(args ...string) []string {
	argv := []string{"-o", "NumberOfPasswordPrompts=0", "-n"}
	argv = append(argv, s.Options...)
	argv = append(argv, s.Addr)
	return append(argv, args...)
}

// Run implements Runner. When ctx ends the ssh process is interrupted and,
// if still running after KillDelay, killed.
func (s *SSH) Run(ctx context.Context, args ...string) ([]byte, error) {
	bin := s.Binary
	if bin == "" {
		bin = DefaultSSHBinary
	}

	cmd := exec.CommandContext(ctx, bin, s.Args(args...)...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = s.KillDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), fmt.Errorf("ssh %s %q: %w: %s",
			s.Addr, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	slog.Debug("ssh command finished",
		"addr", s.Addr,
		"cmd", strings.Join(args, " "),
		"bytes", stdout.Len(),
		"took", time.Since(start))
	return stdout.Bytes(), nil
}
