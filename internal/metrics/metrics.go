// Package metrics collects Prometheus metrics for the countdown and the
// schedule provider, and exports them for node_exporter's textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/smokyabdulrahman/prayer-clock/internal/countdown"
)

// Recorder is the provider-side metrics interface used by the service layer.
type Recorder interface {
	RecordFetchSuccess(latency time.Duration)
	RecordFetchFailure(reason string)
}

// Collector gathers countdown and fetch metrics. It also implements
// countdown.Observer so the engine can feed it directly.
type Collector struct {
	fetchSuccess prometheus.Counter
	fetchFail    *prometheus.CounterVec
	fetchLatency prometheus.Histogram
	ticks        prometheus.Counter
	rollovers    *prometheus.CounterVec
	remaining    prometheus.Gauge
	progress     prometheus.Gauge
	nextPrayer   *prometheus.GaugeVec
}

var _ countdown.Observer = (*Collector)(nil)
var _ Recorder = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prayer_clock_fetch_success_total",
			Help: "Successful schedule fetches.",
		}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prayer_clock_fetch_fail_total",
			Help: "Failed schedule fetches by reason.",
		}, []string{"reason"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "prayer_clock_fetch_latency_seconds",
			Help:    "Schedule fetch latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prayer_clock_ticks_total",
			Help: "Countdown ticks published.",
		}),
		rollovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prayer_clock_rollovers_total",
			Help: "Next-prayer changes by the prayer that became next.",
		}, []string{"prayer"}),
		remaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "prayer_clock_remaining_seconds",
			Help: "Seconds until the next prayer.",
		}),
		progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "prayer_clock_progress_percent",
			Help: "Elapsed share of the current prayer interval.",
		}),
		nextPrayer: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "prayer_clock_next_prayer_timestamp_seconds",
			Help: "Unix time of the next prayer.",
		}, []string{"prayer"}),
	}

	reg.MustRegister(
		c.fetchSuccess,
		c.fetchFail,
		c.fetchLatency,
		c.ticks,
		c.rollovers,
		c.remaining,
		c.progress,
		c.nextPrayer,
	)

	return c
}

// RecordFetchSuccess records a successful schedule fetch.
func (c *Collector) RecordFetchSuccess(latency time.Duration) {
	c.fetchSuccess.Inc()
	c.fetchLatency.Observe(latency.Seconds())
}

// RecordFetchFailure records a failed schedule fetch.
func (c *Collector) RecordFetchFailure(reason string) {
	c.fetchFail.WithLabelValues(reason).Inc()
}

// OnTick updates the countdown gauges.
func (c *Collector) OnTick(s countdown.State) {
	c.ticks.Inc()
	c.remaining.Set(s.Remaining.Seconds())
	if s.ProgressKnown {
		c.progress.Set(s.Progress)
	}
	c.nextPrayer.Reset()
	c.nextPrayer.WithLabelValues(string(s.Interval.Next.Name)).Set(float64(s.Interval.End.Unix()))
}

// OnRollover counts the change of next prayer.
func (c *Collector) OnRollover(_, to countdown.Interval) {
	c.rollovers.WithLabelValues(string(to.Next.Name)).Inc()
}

// WriteTextfile writes every metric in g to path in the text exposition
// format, atomically, for node_exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
