package cli

import (
	"context"
	"errors"
	"time"

	"github.com/psaab/erconf/pkg/api"
	"github.com/psaab/erconf/pkg/config"
	"github.com/psaab/erconf/pkg/configstore"
	"github.com/psaab/erconf/pkg/poll"
)

// Local is a Backend that reads the archive directly and polls the router
// itself for load-balance status. Runner may be nil.
type Local struct {
	Store  *configstore.Store
	Runner poll.Runner
}

func snapshotInfo(n int, e *configstore.HistoryEntry) api.SnapshotInfo {
	return api.SnapshotInfo{
		Index:     n,
		Name:      e.Name,
		Timestamp: e.Timestamp.Format(time.RFC3339),
		Size:      e.Size,
	}
}

// History implements Backend.
func (l *Local) History(_ context.Context) ([]api.SnapshotInfo, error) {
	h, err := l.Store.History()
	if err != nil {
		return nil, err
	}
	list := make([]api.SnapshotInfo, 0, h.Len())
	for i, e := range h.List() {
		list = append(list, snapshotInfo(i, e))
	}
	return list, nil
}

// Snapshot implements Backend.
func (l *Local) Snapshot(_ context.Context, n int) (string, error) {
	cfg, _, err := l.Store.Load(n)
	if err != nil {
		return "", err
	}
	return cfg.String(), nil
}

// Compare implements Backend.
func (l *Local) Compare(_ context.Context, from, to int, unified bool) (*api.CompareResponse, error) {
	left, fromEntry, err := l.Store.Load(from)
	if err != nil {
		return nil, err
	}
	right, toEntry, err := l.Store.Load(to)
	if err != nil {
		return nil, err
	}
	lines, err := left.Diff(right)
	if err != nil {
		return nil, err
	}
	stats := config.Summarize(lines)
	resp := &api.CompareResponse{
		From:    snapshotInfo(from, fromEntry),
		To:      snapshotInfo(to, toEntry),
		Added:   stats.Added,
		Removed: stats.Removed,
		Format:  "structural",
		Diff:    config.FormatDiff(lines),
	}
	if unified {
		resp.Format = "unified"
		resp.Diff, err = config.UnifiedDiff(left, right, fromEntry.Name, toEntry.Name, 3)
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// LoadBalance implements Backend.
func (l *Local) LoadBalance(ctx context.Context) (*poll.LoadBalance, error) {
	if l.Runner == nil {
		return nil, errors.New("load-balance status needs a router (-router) or a running erscraped (-api)")
	}
	return poll.ShowLoadBalanceStatus(ctx, l.Runner)
}

// Events implements Backend.
func (l *Local) Events(_ context.Context, _ int) ([]api.EventEntry, error) {
	return nil, errors.New("events are only recorded by a running erscraped (-api)")
}
