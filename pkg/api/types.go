// Package api implements the HTTP REST API and Prometheus metrics endpoint.
package api

// Response is the standard JSON response envelope.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StatusResponse holds daemon status information.
type StatusResponse struct {
	Uptime          string `json:"uptime"`
	Snapshots       int    `json:"snapshots"`
	LatestSnapshot  string `json:"latest_snapshot,omitempty"`
	LoadBalanceAge  string `json:"load_balance_age,omitempty"`
	LoadBalanceSeen bool   `json:"load_balance_seen"`
	OrderedKeys     string `json:"ordered_keys"`
	Retention       int    `json:"retention,omitempty"`
}

// SnapshotInfo describes one archived snapshot. Index 0 is the latest.
type SnapshotInfo struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Timestamp string `json:"timestamp"`
	Size      int64  `json:"size"`
}

// SnapshotResponse is a snapshot with its canonical text.
type SnapshotResponse struct {
	SnapshotInfo
	Config string `json:"config"`
}

// CompareResponse is the diff between two snapshots.
type CompareResponse struct {
	From    SnapshotInfo `json:"from"`
	To      SnapshotInfo `json:"to"`
	Added   int          `json:"added"`
	Removed int          `json:"removed"`
	Format  string       `json:"format"` // "structural" or "unified"
	Diff    string       `json:"diff"`
}

// EventEntry holds a single event record.
type EventEntry struct {
	Time     string `json:"time"`
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Job      string `json:"job,omitempty"`
	Group    string `json:"group,omitempty"`
	Iface    string `json:"interface,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Path     string `json:"path,omitempty"`
	Message  string `json:"message"`
}
