// Package daemon implements the erscraped lifecycle: a once-a-minute poll
// of the router's load-balance status and an hourly configuration archive,
// published through the HTTP API.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/psaab/erconf/pkg/api"
	"github.com/psaab/erconf/pkg/config"
	"github.com/psaab/erconf/pkg/configstore"
	"github.com/psaab/erconf/pkg/logging"
	"github.com/psaab/erconf/pkg/poll"
)

// Options configures the daemon.
type Options struct {
	Router          string // ssh destination
	LogDir          string // snapshot archive
	ListenAddr      string // HTTP API and /metrics
	HTTPSAddr       string // empty = no HTTPS
	TLSDir          string
	Tokens          []string // API tokens; empty = no authentication
	OrderedKeys     []string // order-significant entry keys; nil = config.DefaultOrderedKeys
	Retention       int      // snapshots kept in the archive; 0 = all
	ArchiveInterval time.Duration
	PollTimeout     time.Duration
	ArchiveTimeout  time.Duration
	EventBufferSize int

	// Runner overrides the ssh runner built from Router.
	Runner poll.Runner
}

// Daemon is the main erscraped daemon.
type Daemon struct {
	opts    Options
	runner  poll.Runner
	store   *configstore.Store
	events  *logging.EventBuffer
	metrics *api.Metrics
	server  *api.Server
	now     func() time.Time

	lastArchive time.Time
	prevLB      *poll.LoadBalance
}

// New creates a new Daemon.
func New(opts Options) *Daemon {
	if opts.Router == "" {
		opts.Router = "EdgeRouterScraper"
	}
	if opts.LogDir == "" {
		opts.LogDir = "Logs"
	}
	if opts.ListenAddr == "" {
		opts.ListenAddr = ":8000"
	}
	if opts.OrderedKeys == nil {
		opts.OrderedKeys = config.DefaultOrderedKeys
	}
	if opts.ArchiveInterval <= 0 {
		opts.ArchiveInterval = time.Hour
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 50 * time.Second
	}
	if opts.ArchiveTimeout <= 0 {
		opts.ArchiveTimeout = 30 * time.Second
	}
	if opts.EventBufferSize <= 0 {
		opts.EventBufferSize = 1000
	}

	runner := opts.Runner
	if runner == nil {
		runner = poll.NewSSH(opts.Router)
	}

	d := &Daemon{
		opts:    opts,
		runner:  runner,
		store:   configstore.New(opts.LogDir, config.NewPolicy(opts.OrderedKeys...)),
		events:  logging.NewEventBuffer(opts.EventBufferSize),
		metrics: api.NewMetrics(),
		now:     time.Now,
	}
	d.store.SetRetention(opts.Retention)

	var auth *api.AuthConfig
	if len(opts.Tokens) > 0 {
		auth = &api.AuthConfig{Tokens: opts.Tokens}
	}
	d.server = api.NewServer(api.Config{
		Addr:      opts.ListenAddr,
		HTTPSAddr: opts.HTTPSAddr,
		TLSDir:    opts.TLSDir,
		Auth:      auth,
		Store:     d.store,
		Events:    d.events,
		Metrics:   d.metrics,
	})
	return d
}

// Store returns the snapshot archive.
func (d *Daemon) Store() *configstore.Store {
	return d.store
}

// Server returns the API server.
func (d *Daemon) Server() *api.Server {
	return d.server
}

// Run starts the daemon and blocks until shutdown.
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("starting erscraped",
		"router", d.opts.Router,
		"logdir", d.opts.LogDir,
		"listen", d.opts.ListenAddr,
		"ordered_keys", d.store.Policy().String(),
		"retention", d.opts.Retention,
		"pid", os.Getpid())

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.server.Run(ctx); err != nil {
			errCh <- err
		}
	}()

	var runErr error
	for {
		d.tick(ctx)

		wait := time.Until(nextTick(d.now()))
		slog.Debug("sleeping until next poll", "wait", wait.Truncate(time.Second))
		timer := time.NewTimer(wait)
		select {
		case err := <-errCh:
			timer.Stop()
			runErr = fmt.Errorf("API server: %w", err)
		case <-ctx.Done():
			timer.Stop()
			slog.Info("signal received, shutting down")
		case <-timer.C:
			continue
		}
		break
	}

	stop()
	wg.Wait()
	slog.Info("shutdown complete")
	return runErr
}

// nextTick returns the next minute boundary after t.
func nextTick(t time.Time) time.Time {
	return t.Truncate(time.Minute).Add(time.Minute)
}

// tick polls load-balance status and, when the archive interval has
// elapsed, archives the configuration. Both run concurrently, each under
// its own timeout.
func (d *Daemon) tick(ctx context.Context) {
	now := d.now()
	var wg sync.WaitGroup
	if d.lastArchive.IsZero() || now.Sub(d.lastArchive) >= d.opts.ArchiveInterval {
		d.lastArchive = now
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.archive(ctx)
		}()
	}
	d.pollLoadBalance(ctx)
	wg.Wait()
}

// archive fetches config.boot and saves it if it changed.
func (d *Daemon) archive(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.ArchiveTimeout)
	defer cancel()

	text, err := poll.ShowConfig(ctx, d.runner)
	if err == nil {
		var path string
		var written bool
		path, written, err = d.store.Save(text)
		if err == nil && written {
			d.metrics.SnapshotsWritten.Inc()
			d.events.Add(logging.EventRecord{
				Type:    logging.EventSnapshot,
				Job:     "config",
				Path:    path,
				Message: fmt.Sprintf("bytes=%d", len(text)),
			})
		}
	}
	d.metrics.ObservePoll("config", err)
	if err != nil {
		slog.Warn("config archive failed", "router", d.opts.Router, "err", err)
		d.events.Add(logging.EventRecord{
			Type:    logging.EventPollFailed,
			Job:     "config",
			Message: err.Error(),
		})
	}
}

// pollLoadBalance fetches wlbGetStatus and publishes it to the API.
func (d *Daemon) pollLoadBalance(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.PollTimeout)
	defer cancel()

	lb, err := poll.ShowLoadBalanceStatus(ctx, d.runner)
	d.metrics.ObservePoll("load-balance", err)
	if err != nil {
		slog.Warn("load-balance poll failed", "router", d.opts.Router, "err", err)
		d.events.Add(logging.EventRecord{
			Type:    logging.EventPollFailed,
			Job:     "load-balance",
			Message: err.Error(),
		})
		return
	}

	for _, u := range lb.UnknownStates() {
		slog.Error("unknown load-balance state",
			"field", u.Field, "value", u.Value, "group", u.Group, "interface", u.Interface)
	}
	for _, c := range lb.StatusChanges(d.prevLB) {
		slog.Warn("load-balance status changed",
			"group", c.Group, "interface", c.Interface, "from", c.From, "to", c.To)
		d.events.Add(logging.EventRecord{
			Type:  logging.EventStatusChange,
			Job:   "load-balance",
			Group: c.Group,
			Iface: c.Interface,
			From:  c.From,
			To:    c.To,
		})
	}
	d.prevLB = lb
	d.server.SetLoadBalance(lb, d.now())
	slog.Debug("load-balance status published", "groups", len(lb.Groups))
}
