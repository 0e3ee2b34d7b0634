package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/psaab/erconf/pkg/config"
	"github.com/psaab/erconf/pkg/configstore"
	"github.com/psaab/erconf/pkg/logging"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{Success: false, Error: msg})
}

func writeText(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(text))
}

// storeError maps archive errors to HTTP status codes.
func storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, configstore.ErrNoSnapshot) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// intParam parses query parameter name, returning def when it is absent.
func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return n, nil
}

func snapshotInfo(n int, e *configstore.HistoryEntry) SnapshotInfo {
	return SnapshotInfo{
		Index:     n,
		Name:      e.Name,
		Timestamp: e.Timestamp.Format(time.RFC3339),
		Size:      e.Size,
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, map[string]string{"status": "ok"})
}

func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Uptime:      time.Since(s.startTime).Truncate(time.Second).String(),
		OrderedKeys: s.store.Policy().String(),
		Retention:   s.store.Retention(),
	}
	h, err := s.store.History()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp.Snapshots = h.Len()
	if e, err := h.Get(0); err == nil {
		resp.LatestSnapshot = e.Name
	}
	if lb, at := s.LoadBalance(); lb != nil {
		resp.LoadBalanceSeen = true
		resp.LoadBalanceAge = time.Since(at).Truncate(time.Second).String()
	}
	writeOK(w, resp)
}

func (s *Server) configLatestHandler(w http.ResponseWriter, r *http.Request) {
	s.writeSnapshot(w, r, 0)
}

func (s *Server) configSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid snapshot index: %q", r.PathValue("n")))
		return
	}
	s.writeSnapshot(w, r, n)
}

// writeSnapshot writes snapshot n as JSON, or as plain text with ?format=text.
func (s *Server) writeSnapshot(w http.ResponseWriter, r *http.Request, n int) {
	cfg, entry, err := s.store.Load(n)
	if err != nil {
		storeError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "text" {
		writeText(w, cfg.String())
		return
	}
	writeOK(w, SnapshotResponse{
		SnapshotInfo: snapshotInfo(n, entry),
		Config:       cfg.String(),
	})
}

func (s *Server) configHistoryHandler(w http.ResponseWriter, _ *http.Request) {
	h, err := s.store.History()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	list := make([]SnapshotInfo, 0, h.Len())
	for i, e := range h.List() {
		list = append(list, snapshotInfo(i, e))
	}
	writeOK(w, list)
}

// configCompareHandler diffs snapshot ?from= (default 1) against ?to=
// (default 0). ?format=unified returns a line-based unified diff with
// ?context= lines of context instead of the structural diff.
func (s *Server) configCompareHandler(w http.ResponseWriter, r *http.Request) {
	from, err := intParam(r, "from", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := intParam(r, "to", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	context, err := intParam(r, "context", 3)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	left, fromEntry, err := s.store.Load(from)
	if err != nil {
		storeError(w, err)
		return
	}
	right, toEntry, err := s.store.Load(to)
	if err != nil {
		storeError(w, err)
		return
	}
	lines, err := left.Diff(right)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stats := config.Summarize(lines)

	resp := CompareResponse{
		From:    snapshotInfo(from, fromEntry),
		To:      snapshotInfo(to, toEntry),
		Added:   stats.Added,
		Removed: stats.Removed,
		Format:  "structural",
		Diff:    config.FormatDiff(lines),
	}
	if r.URL.Query().Get("format") == "unified" {
		resp.Format = "unified"
		resp.Diff, err = config.UnifiedDiff(left, right, fromEntry.Name, toEntry.Name, context)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeOK(w, resp)
}

func (s *Server) loadBalanceHandler(w http.ResponseWriter, r *http.Request) {
	lb, _ := s.LoadBalance()
	if lb == nil {
		writeError(w, http.StatusServiceUnavailable, "load-balance status not polled yet")
		return
	}
	if r.URL.Query().Get("format") == "text" {
		writeText(w, lb.String())
		return
	}
	writeOK(w, lb)
}

// eventsHandler returns recent events, newest first. Supports ?n=,
// ?type= and ?interface= filters.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event buffer not available")
		return
	}
	n, err := intParam(r, "n", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := logging.EventFilter{
		Type:  r.URL.Query().Get("type"),
		Iface: r.URL.Query().Get("interface"),
	}
	recs := s.events.LatestFiltered(n, filter)
	entries := make([]EventEntry, 0, len(recs))
	for _, rec := range recs {
		entries = append(entries, eventEntryFromRecord(rec))
	}
	writeOK(w, entries)
}
