// Package metrics exports index rebuild and query observations to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"maat-go/internal/maat"
)

const namespace = "maat"

// Collectors implements maat.Metrics over Prometheus vectors keyed by
// namespace kind ("scenes", "apps", "users", "collection").
type Collectors struct {
	rebuilds        *prometheus.CounterVec
	rebuildDuration *prometheus.HistogramVec
	entries         *prometheus.GaugeVec
	queries         *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		rebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "rebuilds_total",
			Help:      "Finished rebuild attempts by namespace kind and result.",
		}, []string{"kind", "result"}),
		rebuildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "rebuild_duration_seconds",
			Help:      "Wall time of rebuild attempts.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"kind"}),
		entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "entries",
			Help:      "Entries in the last published snapshot.",
		}, []string{"kind"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "queries_total",
			Help:      "Queries by namespace kind; coalesced queries joined a rebuild already in flight.",
		}, []string{"kind", "coalesced"}),
	}

	for _, col := range []prometheus.Collector{c.rebuilds, c.rebuildDuration, c.entries, c.queries} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveRebuild records one finished rebuild attempt.
func (c *Collectors) ObserveRebuild(kind string, d time.Duration, entries int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.rebuilds.WithLabelValues(kind, result).Inc()
	c.rebuildDuration.WithLabelValues(kind).Observe(d.Seconds())
	if err == nil {
		// Collections share a label; the gauge shows the last one rebuilt.
		c.entries.WithLabelValues(kind).Set(float64(entries))
	}
}

// ObserveQuery records one query.
func (c *Collectors) ObserveQuery(kind string, coalesced bool) {
	label := "false"
	if coalesced {
		label = "true"
	}
	c.queries.WithLabelValues(kind, label).Inc()
}

var _ maat.Metrics = (*Collectors)(nil)
