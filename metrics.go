package dvbstc

import "time"

// Metrics receives observability events from a Controller. The core
// package depends only on this interface; internal/metrics provides a
// Prometheus-backed implementation for cmd/dvbstc-run, keeping
// prometheus/client_golang out of this package's own dependency
// surface.
type Metrics interface {
	// SectionParsed is called once per successfully parsed section,
	// tagged by table name ("PAT", "PMT", "EIT").
	SectionParsed(table string)
	// ParseError is called once per section that failed to parse.
	ParseError(table string)
	// TunerLockDuration reports how long LockToFrequency took to
	// signal STATUS_LOCKED.
	TunerLockDuration(d time.Duration)
	// ChannelChange is called once per completed channel switch,
	// initial acquisition included.
	ChannelChange()
}

type noopMetrics struct{}

func (noopMetrics) SectionParsed(table string)        {}
func (noopMetrics) ParseError(table string)           {}
func (noopMetrics) TunerLockDuration(d time.Duration) {}
func (noopMetrics) ChannelChange()                    {}
