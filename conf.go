package qpipe

import (
	"github.com/go-kit/kit/metrics"
)

// Config is conf for Provider
type Config struct {
	// GroupName names the shared event loop group for diagnostics.
	GroupName string
	// LoopCount is the number of event loops, 0 means one per core.
	LoopCount int
	// ReadTimeout in seconds, 0 means no timeout
	ReadTimeout int
	// WriteTimeout in seconds, 0 means no timeout
	WriteTimeout int
	// MaxFrameSize in bytes, 0 means unlimited
	MaxFrameSize  int
	LatencyMetric metrics.Histogram
	CounterMetric metrics.Counter
}
