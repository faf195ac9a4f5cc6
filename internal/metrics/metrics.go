// Package metrics is the Prometheus-backed implementation of
// dvbstc.Metrics, wired in by cmd/dvbstc-run. The core dvbstc package
// never imports prometheus/client_golang directly: it only depends on
// the small interface this package satisfies.
package metrics

import (
	"time"

	"github.com/go-dvb/dvbstc"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements dvbstc.Metrics over a set of Prometheus
// collectors registered with the given registerer.
type Collector struct {
	sectionsParsed *prometheus.CounterVec
	parseErrors    *prometheus.CounterVec
	tunerLockSecs  prometheus.Histogram
	channelChanges prometheus.Counter
}

// New builds a Collector and registers its collectors with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default
// /metrics handler.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sectionsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dvbstc",
			Name:      "sections_parsed_total",
			Help:      "PSI/SI sections successfully parsed, by table.",
		}, []string{"table"}),
		parseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dvbstc",
			Name:      "parse_errors_total",
			Help:      "PSI/SI sections that failed to parse, by table.",
		}, []string{"table"}),
		tunerLockSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dvbstc",
			Name:      "tuner_lock_seconds",
			Help:      "Time from LockToFrequency to a reported tuner lock.",
			Buckets:   prometheus.DefBuckets,
		}),
		channelChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dvbstc",
			Name:      "channel_changes_total",
			Help:      "Completed channel acquisitions, initial acquisition included.",
		}),
	}
	reg.MustRegister(c.sectionsParsed, c.parseErrors, c.tunerLockSecs, c.channelChanges)
	return c
}

var _ dvbstc.Metrics = (*Collector)(nil)

func (c *Collector) SectionParsed(table string) { c.sectionsParsed.WithLabelValues(table).Inc() }
func (c *Collector) ParseError(table string)    { c.parseErrors.WithLabelValues(table).Inc() }
func (c *Collector) TunerLockDuration(d time.Duration) {
	c.tunerLockSecs.Observe(d.Seconds())
}
func (c *Collector) ChannelChange() { c.channelChanges.Inc() }
