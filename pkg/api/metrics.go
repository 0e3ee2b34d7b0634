package api

import (
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/psaab/erconf/pkg/poll"
)

// Metrics holds the counters updated by the poll loop. They are registered
// on the server's registry next to the load-balance collector.
type Metrics struct {
	PollsTotal       *prometheus.CounterVec
	SnapshotsWritten prometheus.Counter
}

// NewMetrics creates unregistered poll counters.
func NewMetrics() *Metrics {
	return &Metrics{
		PollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "er_polls_total",
			Help: "Total remote polls by job and result.",
		}, []string{"job", "result"}),
		SnapshotsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "er_snapshots_written_total",
			Help: "Total configuration snapshots written to the archive.",
		}),
	}
}

// ObservePoll counts one poll of job.
func (m *Metrics) ObservePoll(job string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.PollsTotal.WithLabelValues(job, result).Inc()
}

// wlbCollector implements prometheus.Collector, publishing the most recent
// load-balance status on each scrape.
type wlbCollector struct {
	srv *Server

	reachable     *prometheus.Desc
	status        *prometheus.Desc
	weight        *prometheus.Desc
	flows         *prometheus.Desc
	lastPoll      *prometheus.Desc
	snapshotCount *prometheus.Desc
}

func newCollector(srv *Server) *wlbCollector {
	return &wlbCollector{
		srv: srv,

		reachable: prometheus.NewDesc(
			"er_reachable",
			"Is the interface reachable? 1 for the reported state, -1 for all states if unknown.",
			[]string{"group", "interface", "is"}, nil,
		),
		status: prometheus.NewDesc(
			"er_status",
			"Is the interface active? 1 for the reported state, -1 for all states if unknown.",
			[]string{"group", "interface", "is"}, nil,
		),
		weight: prometheus.NewDesc(
			"er_weight_percent",
			"Load-balance weight of the interface.",
			[]string{"group", "interface"}, nil,
		),
		flows: prometheus.NewDesc(
			"er_flows",
			"Flow counters of the interface.",
			[]string{"group", "interface", "flow"}, nil,
		),
		lastPoll: prometheus.NewDesc(
			"er_load_balance_last_poll_timestamp_seconds",
			"Unix time of the last successful load-balance poll.",
			nil, nil,
		),
		snapshotCount: prometheus.NewDesc(
			"er_snapshots",
			"Number of snapshots in the archive.",
			nil, nil,
		),
	}
}

func (c *wlbCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.reachable
	ch <- c.status
	ch <- c.weight
	ch <- c.flows
	ch <- c.lastPoll
	ch <- c.snapshotCount
}

func (c *wlbCollector) Collect(ch chan<- prometheus.Metric) {
	if c.srv.store != nil {
		if h, err := c.srv.store.History(); err == nil {
			ch <- prometheus.MustNewConstMetric(c.snapshotCount, prometheus.GaugeValue, float64(h.Len()))
		}
	}

	lb, at := c.srv.LoadBalance()
	if lb == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.lastPoll, prometheus.GaugeValue,
		float64(at.UnixNano())/1e9)

	for _, g := range lb.Groups {
		for _, i := range g.Interfaces {
			c.collectState(ch, c.reachable, g.Name, i.Name, poll.ReachableStates, i.Reachable)
			c.collectState(ch, c.status, g.Name, i.Name, poll.StatusStates, i.Status)

			if w, err := strconv.ParseFloat(strings.TrimSuffix(i.Weight, "%"), 64); err == nil {
				ch <- prometheus.MustNewConstMetric(c.weight, prometheus.GaugeValue, w, g.Name, i.Name)
			}
			if f := i.Flows; f != nil {
				for _, fv := range []struct{ name, value string }{
					{"wan_out", f.WANOut},
					{"wan_in", f.WANIn},
					{"local_icmp", f.LocalICMP},
					{"local_dns", f.LocalDNS},
					{"local_data", f.LocalData},
				} {
					v, err := strconv.ParseFloat(fv.value, 64)
					if err != nil {
						continue
					}
					ch <- prometheus.MustNewConstMetric(c.flows, prometheus.GaugeValue, v, g.Name, i.Name, fv.name)
				}
			}
		}
	}
}

// collectState publishes one series per known state: 1 for the reported
// state and 0 for the others, or -1 for all of them when value is not a
// known state.
func (c *wlbCollector) collectState(ch chan<- prometheus.Metric, desc *prometheus.Desc, group, iface string, states []string, value string) {
	known := poll.KnownState(states, value)
	for _, s := range states {
		v := 0.0
		switch {
		case !known:
			v = -1
		case s == value:
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v, group, iface, s)
	}
}
