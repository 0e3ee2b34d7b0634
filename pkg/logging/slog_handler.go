package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// sink is shared by a handler and every handler derived from it.
type sink struct {
	mu     sync.RWMutex
	client *SyslogClient
}

// SyslogHandler is an slog.Handler that writes to a base handler
// (typically stderr text) and also forwards records to a syslog server
// once one is attached.
type SyslogHandler struct {
	base   slog.Handler
	sink   *sink
	attrs  []slog.Attr
	groups []string
}

// NewSyslogHandler wraps base with syslog forwarding.
func NewSyslogHandler(base slog.Handler) *SyslogHandler {
	return &SyslogHandler{base: base, sink: &sink{}}
}

// SetClient attaches c, closing any previous client. nil detaches.
func (h *SyslogHandler) SetClient(c *SyslogClient) {
	h.sink.mu.Lock()
	old := h.sink.client
	h.sink.client = c
	h.sink.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

// Close detaches and closes the syslog client.
func (h *SyslogHandler) Close() {
	h.SetClient(nil)
}

// Enabled implements slog.Handler.
func (h *SyslogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *SyslogHandler) Handle(ctx context.Context, r slog.Record) error {
	err := h.base.Handle(ctx, r)

	h.sink.mu.RLock()
	c := h.sink.client
	h.sink.mu.RUnlock()
	if c != nil {
		severity := levelToSeverity(r.Level)
		if c.ShouldSend(severity) {
			c.Send(severity, formatRecord(r, h.attrs, h.groups))
		}
	}
	return err
}

// WithAttrs implements slog.Handler.
func (h *SyslogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SyslogHandler{
		base:   h.base.WithAttrs(attrs),
		sink:   h.sink,
		attrs:  append(append([]slog.Attr{}, h.attrs...), attrs...),
		groups: h.groups,
	}
}

// WithGroup implements slog.Handler.
func (h *SyslogHandler) WithGroup(name string) slog.Handler {
	return &SyslogHandler{
		base:   h.base.WithGroup(name),
		sink:   h.sink,
		attrs:  h.attrs,
		groups: append(append([]string{}, h.groups...), name),
	}
}

func levelToSeverity(level slog.Level) int {
	switch {
	case level >= slog.LevelError:
		return SyslogError
	case level >= slog.LevelWarn:
		return SyslogWarning
	default:
		return SyslogInfo
	}
}

// formatRecord produces "msg key=value ..." for a record.
func formatRecord(r slog.Record, preAttrs []slog.Attr, groups []string) string {
	var b strings.Builder
	b.WriteString(r.Message)

	for _, a := range preAttrs {
		fmt.Fprintf(&b, " %s=%s", a.Key, a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		key := a.Key
		if len(groups) > 0 {
			key = strings.Join(groups, ".") + "." + key
		}
		fmt.Fprintf(&b, " %s=%s", key, a.Value.String())
		return true
	})

	return b.String()
}
