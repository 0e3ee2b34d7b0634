package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/psaab/erconf/pkg/logging"
)

// setSSEHeaders configures the response for Server-Sent Events streaming.
func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// writeSSEEvent writes a single SSE event to the response.
func writeSSEEvent(w http.ResponseWriter, id string, event string, data string) {
	fmt.Fprintf(w, "id: %s\n", id)
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// eventStreamHandler streams scraper events via SSE.
// Supports ?type= filter (comma-separated event types).
func (s *Server) eventStreamHandler(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event buffer not available")
		return
	}
	types := parseTypes(r.URL.Query().Get("type"))

	sub := s.events.Subscribe(128)
	defer sub.Close()

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	var seq uint64
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-sub.C:
			if len(types) > 0 && !types[rec.Type] {
				continue
			}
			seq++
			data, err := json.Marshal(eventEntryFromRecord(rec))
			if err != nil {
				continue
			}
			writeSSEEvent(w, fmt.Sprintf("%d", seq), rec.Type, string(data))
		}
	}
}

// logStreamHandler streams events formatted as log messages via SSE.
// Supports ?severity= (error, warning, info) and ?type= filters.
func (s *Server) logStreamHandler(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event buffer not available")
		return
	}
	severityFilter := logging.ParseSeverity(r.URL.Query().Get("severity"))
	types := parseTypes(r.URL.Query().Get("type"))

	sub := s.events.Subscribe(128)
	defer sub.Close()

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	var seq uint64
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-sub.C:
			severity := logging.Severity(rec.Type)
			if severityFilter != 0 && severity > severityFilter {
				continue
			}
			if len(types) > 0 && !types[rec.Type] {
				continue
			}
			seq++
			data, err := json.Marshal(LogStreamEntry{
				Time:     rec.Time.Format(time.RFC3339),
				Severity: logging.SeverityName(severity),
				Message:  rec.Format(),
			})
			if err != nil {
				continue
			}
			writeSSEEvent(w, fmt.Sprintf("%d", seq), "log", string(data))
		}
	}
}

// LogStreamEntry is a log message sent via SSE.
type LogStreamEntry struct {
	Time     string `json:"time"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

func eventEntryFromRecord(rec logging.EventRecord) EventEntry {
	return EventEntry{
		Time:     rec.Time.Format(time.RFC3339),
		Type:     rec.Type,
		Severity: logging.SeverityName(logging.Severity(rec.Type)),
		Job:      rec.Job,
		Group:    rec.Group,
		Iface:    rec.Iface,
		From:     rec.From,
		To:       rec.To,
		Path:     rec.Path,
		Message:  rec.Format(),
	}
}

// parseTypes parses a comma-separated list of event types into a set.
func parseTypes(s string) map[string]bool {
	if s == "" {
		return nil
	}
	set := make(map[string]bool)
	for _, t := range strings.Split(s, ",") {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			set[t] = true
		}
	}
	return set
}
