package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/psaab/erconf/pkg/config"
	"github.com/psaab/erconf/pkg/configstore"
	"github.com/psaab/erconf/pkg/logging"
	"github.com/psaab/erconf/pkg/poll"
)

const (
	olderConfig = "system {\n    host-name gw1\n}\n"
	newerConfig = "system {\n    host-name gw2\n}\n"
)

const wlbStatus = `Group wlb
  interface   : eth0
  reachable   : true
  status      : active
  weight      : 100%
  interface   : eth1
  reachable   : maybe
  status      : failover
`

func writeSnapshotFile(t *testing.T, dir, name, text string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		t.Fatal(err)
	}
}

// newTestServer returns a server over an archive holding two snapshots.
func newTestServer(t *testing.T, auth *AuthConfig) (*Server, *Metrics) {
	t.Helper()
	dir := t.TempDir()
	writeSnapshotFile(t, dir, "2024/20240301-100000", olderConfig)
	writeSnapshotFile(t, dir, "2024/20240301-110000", newerConfig)

	m := NewMetrics()
	s := NewServer(Config{
		Addr:    "127.0.0.1:0",
		Auth:    auth,
		Store:   configstore.New(dir, config.DefaultPolicy()),
		Events:  logging.NewEventBuffer(16),
		Metrics: m,
	})
	return s, m
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("GET %s: bad JSON %q: %v", path, w.Body.String(), err)
		}
	}
	return w, env
}

func TestAuthMiddleware(t *testing.T) {
	cfg := AuthConfig{Tokens: []string{"tok-abc-123", "tok-def-456"}}

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := authMiddleware(cfg, ok)

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{
			name: "health bypass",
			path: "/health",
			want: http.StatusOK,
		},
		{
			name: "metrics bypass",
			path: "/metrics",
			want: http.StatusOK,
		},
		{
			name: "no auth",
			path: "/api/v1/config/history",
			want: http.StatusUnauthorized,
		},
		{
			name:   "valid bearer token",
			path:   "/api/v1/config/history",
			header: map[string]string{"Authorization": "Bearer tok-def-456"},
			want:   http.StatusOK,
		},
		{
			name:   "invalid bearer token",
			path:   "/api/v1/config/history",
			header: map[string]string{"Authorization": "Bearer bad-token"},
			want:   http.StatusUnauthorized,
		},
		{
			name:   "token prefix is not enough",
			path:   "/api/v1/config/history",
			header: map[string]string{"Authorization": "Bearer tok-abc"},
			want:   http.StatusUnauthorized,
		},
		{
			name:   "valid api key",
			path:   "/api/v1/load-balance",
			header: map[string]string{"X-API-Key": "tok-abc-123"},
			want:   http.StatusOK,
		},
		{
			name:   "invalid api key",
			path:   "/api/v1/load-balance",
			header: map[string]string{"X-API-Key": "nope"},
			want:   http.StatusUnauthorized,
		},
		{
			name:   "basic auth not accepted",
			path:   "/api/v1/load-balance",
			header: map[string]string{"Authorization": "Basic YWRtaW46c2VjcmV0"},
			want:   http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if w.Code == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

func TestAuthNoTokens(t *testing.T) {
	cfg := AuthConfig{Tokens: []string{""}}
	if cfg.valid("") {
		t.Error("empty token must never authenticate")
	}
}

func TestParseTokens(t *testing.T) {
	got := ParseTokens("# scraper tokens\ntok-1\n\n  tok-2  \n#tok-3\n")
	if len(got) != 2 || got[0] != "tok-1" || got[1] != "tok-2" {
		t.Errorf("ParseTokens = %q", got)
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, &AuthConfig{Tokens: []string{"t"}})
	w, env := get(t, s.Handler(), "/health")
	if w.Code != http.StatusOK || !env.Success {
		t.Errorf("health: %d %s", w.Code, w.Body.String())
	}
}

func TestConfigHistory(t *testing.T) {
	s, _ := newTestServer(t, nil)
	w, env := get(t, s.Handler(), "/api/v1/config/history")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var list []SnapshotInfo
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d snapshots", len(list))
	}
	if list[0].Index != 0 || list[0].Name != filepath.Join("2024", "20240301-110000") {
		t.Errorf("latest = %+v", list[0])
	}
	if list[1].Size != int64(len(olderConfig)) {
		t.Errorf("size = %d", list[1].Size)
	}
}

func TestConfigLatest(t *testing.T) {
	s, _ := newTestServer(t, nil)

	_, env := get(t, s.Handler(), "/api/v1/config/latest")
	var snap SnapshotResponse
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Config != newerConfig {
		t.Errorf("config = %q", snap.Config)
	}

	w, _ := get(t, s.Handler(), "/api/v1/config/latest?format=text")
	if w.Body.String() != newerConfig {
		t.Errorf("text = %q", w.Body.String())
	}

	w, _ = get(t, s.Handler(), "/api/v1/config/snapshot/1?format=text")
	if w.Body.String() != olderConfig {
		t.Errorf("snapshot 1 = %q", w.Body.String())
	}

	w, env = get(t, s.Handler(), "/api/v1/config/snapshot/7")
	if w.Code != http.StatusNotFound || env.Success {
		t.Errorf("missing snapshot: %d %s", w.Code, w.Body.String())
	}
	w, _ = get(t, s.Handler(), "/api/v1/config/snapshot/x")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad index: %d", w.Code)
	}
}

func TestConfigCompare(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w, env := get(t, s.Handler(), "/api/v1/config/compare")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp CompareResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatal(err)
	}
	want := " system {\n-    host-name gw1\n+    host-name gw2\n }\n"
	if resp.Diff != want {
		t.Errorf("diff:\n%s\nwant:\n%s", resp.Diff, want)
	}
	if resp.Added != 1 || resp.Removed != 1 || resp.From.Index != 1 || resp.To.Index != 0 {
		t.Errorf("resp = %+v", resp)
	}

	_, env = get(t, s.Handler(), "/api/v1/config/compare?from=0&to=1&format=unified&context=1")
	resp = CompareResponse{}
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatal(err)
	}
	for _, line := range []string{
		"--- " + filepath.Join("2024", "20240301-110000"),
		"+++ " + filepath.Join("2024", "20240301-100000"),
		"-    host-name gw2",
		"+    host-name gw1",
	} {
		if !strings.Contains(resp.Diff, line) {
			t.Errorf("unified diff missing %q:\n%s", line, resp.Diff)
		}
	}

	tests := []struct {
		query string
		want  int
	}{
		{"?from=-1", http.StatusBadRequest},
		{"?to=abc", http.StatusBadRequest},
		{"?from=5", http.StatusNotFound},
		{"?from=0&to=0", http.StatusOK},
	}
	for _, tt := range tests {
		w, _ := get(t, s.Handler(), "/api/v1/config/compare"+tt.query)
		if w.Code != tt.want {
			t.Errorf("compare%s: status = %d, want %d", tt.query, w.Code, tt.want)
		}
	}
}

func TestLoadBalanceHandler(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w, _ := get(t, s.Handler(), "/api/v1/load-balance")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("before first poll: status = %d", w.Code)
	}

	s.SetLoadBalance(poll.ParseLoadBalance(wlbStatus), time.Now())
	w, env := get(t, s.Handler(), "/api/v1/load-balance")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var lb poll.LoadBalance
	if err := json.Unmarshal(env.Data, &lb); err != nil {
		t.Fatal(err)
	}
	if len(lb.Groups) != 1 || len(lb.Groups[0].Interfaces) != 2 {
		t.Errorf("lb = %+v", lb)
	}

	w, _ = get(t, s.Handler(), "/api/v1/load-balance?format=text")
	if !strings.HasPrefix(w.Body.String(), "Group wlb\n") {
		t.Errorf("text = %q", w.Body.String())
	}

	_, env = get(t, s.Handler(), "/api/v1/status")
	var st StatusResponse
	if err := json.Unmarshal(env.Data, &st); err != nil {
		t.Fatal(err)
	}
	if st.Snapshots != 2 || !st.LoadBalanceSeen || st.OrderedKeys != "address" {
		t.Errorf("status = %+v", st)
	}
}

func TestCollector(t *testing.T) {
	s, _ := newTestServer(t, nil)
	s.SetLoadBalance(poll.ParseLoadBalance(wlbStatus), time.Now())

	expected := `
# HELP er_reachable Is the interface reachable? 1 for the reported state, -1 for all states if unknown.
# TYPE er_reachable gauge
er_reachable{group="wlb",interface="eth0",is="false"} 0
er_reachable{group="wlb",interface="eth0",is="true"} 1
er_reachable{group="wlb",interface="eth1",is="false"} -1
er_reachable{group="wlb",interface="eth1",is="true"} -1
# HELP er_status Is the interface active? 1 for the reported state, -1 for all states if unknown.
# TYPE er_status gauge
er_status{group="wlb",interface="eth0",is="active"} 1
er_status{group="wlb",interface="eth0",is="failover"} 0
er_status{group="wlb",interface="eth0",is="inactive"} 0
er_status{group="wlb",interface="eth1",is="active"} 0
er_status{group="wlb",interface="eth1",is="failover"} 1
er_status{group="wlb",interface="eth1",is="inactive"} 0
# HELP er_weight_percent Load-balance weight of the interface.
# TYPE er_weight_percent gauge
er_weight_percent{group="wlb",interface="eth0"} 100
# HELP er_snapshots Number of snapshots in the archive.
# TYPE er_snapshots gauge
er_snapshots 2
`
	err := testutil.CollectAndCompare(newCollector(s), strings.NewReader(expected),
		"er_reachable", "er_status", "er_weight_percent", "er_snapshots")
	if err != nil {
		t.Error(err)
	}
}

func TestCollectorBeforePoll(t *testing.T) {
	s, _ := newTestServer(t, nil)
	if n := testutil.CollectAndCount(newCollector(s), "er_reachable", "er_status"); n != 0 {
		t.Errorf("collected %d series before the first poll", n)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, m := newTestServer(t, nil)
	m.ObservePoll("config", nil)
	m.ObservePoll("load-balance", os.ErrDeadlineExceeded)
	m.ObservePoll("load-balance", os.ErrDeadlineExceeded)
	m.SnapshotsWritten.Inc()

	if v := testutil.ToFloat64(m.PollsTotal.WithLabelValues("load-balance", "error")); v != 2 {
		t.Errorf("load-balance errors = %v", v)
	}

	w, _ := get(t, s.Handler(), "/metrics")
	body := w.Body.String()
	for _, want := range []string{
		`er_polls_total{job="config",result="ok"} 1`,
		`er_polls_total{job="load-balance",result="error"} 2`,
		"er_snapshots_written_total 1",
		"er_snapshots 2",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("/metrics missing %q", want)
		}
	}
}

func TestEvents(t *testing.T) {
	s, _ := newTestServer(t, nil)
	s.events.Add(logging.EventRecord{Type: logging.EventSnapshot, Path: "2024/20240301-110000"})
	s.events.Add(logging.EventRecord{Type: logging.EventStatusChange, Group: "wlb", Iface: "eth1", From: "active", To: "failover"})

	_, env := get(t, s.Handler(), "/api/v1/events?type=status_change")
	var entries []EventEntry
	if err := json.Unmarshal(env.Data, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Iface != "eth1" || entries[0].Severity != "warning" {
		t.Errorf("entries = %+v", entries)
	}

	w, _ := get(t, s.Handler(), "/api/v1/events?n=x")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad n: %d", w.Code)
	}
}

func TestEventStream(t *testing.T) {
	s, _ := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/events/stream?type=snapshot", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	s.events.Add(logging.EventRecord{Type: logging.EventPollFailed, Job: "config"})
	s.events.Add(logging.EventRecord{Type: logging.EventSnapshot, Path: "2024/20240301-120000"})

	sc := bufio.NewScanner(resp.Body)
	var event, data string
	for sc.Scan() {
		line := sc.Text()
		if v, ok := strings.CutPrefix(line, "event: "); ok {
			event = v
		}
		if v, ok := strings.CutPrefix(line, "data: "); ok {
			data = v
			break
		}
	}
	if event != logging.EventSnapshot {
		t.Errorf("event = %q", event)
	}
	var entry EventEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		t.Fatalf("data %q: %v", data, err)
	}
	if entry.Path != "2024/20240301-120000" {
		t.Errorf("entry = %+v", entry)
	}
}

func TestClient(t *testing.T) {
	s, _ := newTestServer(t, &AuthConfig{Tokens: []string{"secret"}})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	ctx := context.Background()

	if _, err := NewClient(ts.URL, "wrong").History(ctx); err == nil || !strings.Contains(err.Error(), "authentication required") {
		t.Errorf("bad token: err = %v", err)
	}

	c := NewClient(ts.URL+"/", "secret")
	list, err := c.History(ctx)
	if err != nil || len(list) != 2 {
		t.Fatalf("History() = %+v, %v", list, err)
	}
	text, err := c.Snapshot(ctx, 1)
	if err != nil || text != olderConfig {
		t.Errorf("Snapshot(1) = %q, %v", text, err)
	}
	cmp, err := c.Compare(ctx, 1, 0, false)
	if err != nil || cmp.Added != 1 || cmp.Removed != 1 {
		t.Errorf("Compare() = %+v, %v", cmp, err)
	}
	if _, err := c.LoadBalance(ctx); err == nil {
		t.Error("expected error before the first poll")
	}
	s.SetLoadBalance(poll.ParseLoadBalance(wlbStatus), time.Now())
	lb, err := c.LoadBalance(ctx)
	if err != nil || lb.Groups[0].Interfaces[1].Status != "failover" {
		t.Errorf("LoadBalance() = %+v, %v", lb, err)
	}
	s.events.Add(logging.EventRecord{Type: logging.EventSnapshot, Path: "p"})
	events, err := c.Events(ctx, 5)
	if err != nil || len(events) != 1 {
		t.Errorf("Events() = %+v, %v", events, err)
	}
}
