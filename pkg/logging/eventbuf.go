// Package logging holds the daemon's recent-event buffer and remote syslog
// forwarding for slog.
package logging

import (
	"strings"
	"sync"
	"time"
)

// Event types recorded by the scraper.
const (
	EventSnapshot     = "SNAPSHOT"      // a new configuration snapshot was archived
	EventPollFailed   = "POLL_FAILED"   // a remote command failed
	EventStatusChange = "STATUS_CHANGE" // a load-balance interface changed state
)

// EventRecord is one entry in the event buffer.
type EventRecord struct {
	Time    time.Time
	Type    string
	Job     string // "config", "load-balance"
	Group   string // load-balance group, for STATUS_CHANGE
	Iface   string
	From    string // previous status
	To      string // new status
	Path    string // snapshot path, for SNAPSHOT
	Message string
}

// EventBuffer is a thread-safe circular buffer for recent events.
type EventBuffer struct {
	mu    sync.RWMutex
	buf   []EventRecord
	size  int
	head  int // next write position
	count int
	seq   uint64

	subMu sync.RWMutex
	subs  map[*Subscription]struct{}
}

// Subscription receives new events from an EventBuffer.
type Subscription struct {
	C  chan EventRecord
	eb *EventBuffer
}

// Close unsubscribes.
func (s *Subscription) Close() {
	s.eb.unsubscribe(s)
}

// NewEventBuffer creates a new event buffer with the given capacity.
func NewEventBuffer(size int) *EventBuffer {
	if size < 1 {
		size = 1
	}
	return &EventBuffer{
		buf:  make([]EventRecord, size),
		size: size,
		subs: make(map[*Subscription]struct{}),
	}
}

// Add appends an event, overwriting the oldest if full. A zero Time is set
// to now. Subscribers are notified without blocking.
func (eb *EventBuffer) Add(rec EventRecord) {
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	eb.mu.Lock()
	eb.buf[eb.head] = rec
	eb.head = (eb.head + 1) % eb.size
	if eb.count < eb.size {
		eb.count++
	}
	eb.seq++
	eb.mu.Unlock()

	eb.subMu.RLock()
	for sub := range eb.subs {
		select {
		case sub.C <- rec:
		default: // drop if subscriber is slow
		}
	}
	eb.subMu.RUnlock()
}

// Seq returns the number of events ever added.
func (eb *EventBuffer) Seq() uint64 {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return eb.seq
}

// Subscribe returns a Subscription that receives new events.
// Call Close() on the subscription when done.
func (eb *EventBuffer) Subscribe(bufSize int) *Subscription {
	if bufSize < 1 {
		bufSize = 64
	}
	sub := &Subscription{
		C:  make(chan EventRecord, bufSize),
		eb: eb,
	}
	eb.subMu.Lock()
	eb.subs[sub] = struct{}{}
	eb.subMu.Unlock()
	return sub
}

func (eb *EventBuffer) unsubscribe(sub *Subscription) {
	eb.subMu.Lock()
	delete(eb.subs, sub)
	eb.subMu.Unlock()
}

// EventFilter specifies criteria for filtering events.
type EventFilter struct {
	Type  string // exact match, case-insensitive
	Iface string // exact match
}

// IsEmpty returns true if no filter criteria are set.
func (f EventFilter) IsEmpty() bool {
	return f.Type == "" && f.Iface == ""
}

func (f EventFilter) matches(rec *EventRecord) bool {
	if f.Type != "" && !strings.EqualFold(rec.Type, f.Type) {
		return false
	}
	if f.Iface != "" && rec.Iface != f.Iface {
		return false
	}
	return true
}

// LatestFiltered returns the most recent n events matching the filter, newest first.
func (eb *EventBuffer) LatestFiltered(n int, f EventFilter) []EventRecord {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if n <= 0 {
		return nil
	}

	var result []EventRecord
	for i := 0; i < eb.count && len(result) < n; i++ {
		idx := (eb.head - 1 - i + eb.size) % eb.size
		if f.matches(&eb.buf[idx]) {
			result = append(result, eb.buf[idx])
		}
	}
	return result
}

// Latest returns the most recent n events, newest first.
func (eb *EventBuffer) Latest(n int) []EventRecord {
	return eb.LatestFiltered(n, EventFilter{})
}

// Severity maps an event type to a syslog severity.
func Severity(eventType string) int {
	switch eventType {
	case EventPollFailed:
		return SyslogError
	case EventStatusChange:
		return SyslogWarning
	default:
		return SyslogInfo
	}
}

// SeverityName returns the name of a syslog severity.
func SeverityName(s int) string {
	switch s {
	case SyslogError:
		return "error"
	case SyslogWarning:
		return "warning"
	default:
		return "info"
	}
}

// Format renders rec as a single log line.
func (rec EventRecord) Format() string {
	switch rec.Type {
	case EventSnapshot:
		return "ER_CONFIG " + rec.Type + " path=" + rec.Path + " " + rec.Message
	case EventStatusChange:
		return "ER_WLB " + rec.Type + " group=" + rec.Group + " interface=" + rec.Iface +
			" from=" + rec.From + " to=" + rec.To
	default:
		return "ER_POLL " + rec.Type + " job=" + rec.Job + " " + rec.Message
	}
}
