package poll

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ConfigBootPath is where EdgeOS keeps the boot configuration.
const ConfigBootPath = "/config/config.boot"

// The file is fetched between two markers so login banners and motd
// output around it are ignored.
const (
	startMarker = "==========starto=========="
	endMarker   = "==========endo=========="
)

var (
	// ErrNoConfig is returned when the start marker never appears.
	ErrNoConfig = errors.New("no configuration in command output")

	// ErrTruncated is returned when the end marker is missing.
	ErrTruncated = errors.New("configuration output truncated")
)

// ShowConfig fetches the router's boot configuration.
func ShowConfig(ctx context.Context, r Runner) (string, error) {
	out, err := r.Run(ctx,
		"echo", startMarker, ";",
		"cat", ConfigBootPath, ";",
		"echo", endMarker)
	if err != nil {
		return "", fmt.Errorf("show config: %w", err)
	}
	return extractConfig(string(out))
}

// extractConfig returns the lines between the start and end markers,
// newline terminated.
func extractConfig(out string) (string, error) {
	var lines []string
	started := false
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !started {
			started = line == startMarker
			continue
		}
		if strings.HasSuffix(line, endMarker) {
			// A file without a final newline runs into the marker.
			if rest := strings.TrimSuffix(line, endMarker); rest != "" {
				lines = append(lines, rest)
			}
			if len(lines) == 0 {
				return "", nil
			}
			return strings.Join(lines, "\n") + "\n", nil
		}
		lines = append(lines, line)
	}
	if !started {
		return "", ErrNoConfig
	}
	return "", fmt.Errorf("%w after %d lines", ErrTruncated, len(lines))
}
