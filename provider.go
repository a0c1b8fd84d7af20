package qpipe

import (
	"fmt"
	"net"
	"sync"
	"time"
)

const (
	// DefaultGroupName is the diagnostic name for the shared event loop group.
	DefaultGroupName = "qpipePair"
)

// TransportCreationError wraps any failure while assembling a transport
// around the duplex handle machinery.
type TransportCreationError struct {
	Cause error
}

func (e *TransportCreationError) Error() string {
	return fmt.Sprintf("transport creation failed: %v", e.Cause)
}

// Unwrap returns the assembly failure, e.g. ErrHandleAcquisition.
func (e *TransportCreationError) Unwrap() error {
	return e.Cause
}

// Provider hands out RPC transports over local duplex pair channels.
// Apart from the lazily created event loop group it is a stateless factory.
// It is thread safe.
type Provider struct {
	// immutable
	handles HandleProvider
	conf    Config

	mu    sync.Mutex
	group *EventLoopGroup
}

// NewProvider creates a Provider drawing duplex handles from handles.
func NewProvider(handles HandleProvider, conf Config) *Provider {
	if conf.GroupName == "" {
		conf.GroupName = DefaultGroupName
	}
	return &Provider{handles: handles, conf: conf}
}

// EventLoopGroup returns the shared event loop group, creating it on first
// call. Every later call returns the identical instance for the lifetime of
// the Provider.
func (p *Provider) EventLoopGroup() *EventLoopGroup {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.group == nil {
		p.group = NewEventLoopGroup(p.conf.GroupName, p.conf.LoopCount)
	}
	return p.group
}

// Dial acquires a fresh pair channel and performs the formal connect step.
// The returned conn is ready for traffic, suitable for handing to an RPC
// framework that drives its own I/O.
func (p *Provider) Dial() (net.Conn, error) {
	pc, err := dialPair(p.handles)
	if err != nil {
		return nil, err
	}

	if _, err := pc.Connect(sentinelAddr, sentinelAddr); err != nil {
		pc.Close()
		return nil, err
	}

	return pc, nil
}

// NewChannel builds a transport bound to the shared event loop group and a
// fresh pair channel. The returned transport is already Active.
// Errors are surfaced synchronously and never retried here, retry policy
// belongs to the calling RPC layer.
func (p *Provider) NewChannel() (t *Transport, err error) {
	if p.conf.CounterMetric != nil || p.conf.LatencyMetric != nil {
		defer func(begin time.Time) {
			p.instrument(begin, err)
		}(time.Now())
	}

	pc, err := dialPair(p.handles)
	if err != nil {
		logError("NewChannel dialPair", err)
		err = &TransportCreationError{Cause: err}
		return
	}

	t = newTransport(pc, p.EventLoopGroup(), p.conf)
	if openErr := t.open(); openErr != nil {
		pc.Close()
		logError("NewChannel open", openErr)
		t = nil
		err = &TransportCreationError{Cause: openErr}
		return
	}

	return
}

func (p *Provider) instrument(begin time.Time, err error) {
	lvs := []string{"method", "newChannel", "error", fmt.Sprintf("%t", err != nil)}

	if p.conf.CounterMetric != nil {
		p.conf.CounterMetric.With(lvs...).Add(1)
	}
	if p.conf.LatencyMetric != nil {
		p.conf.LatencyMetric.With(lvs...).Observe(time.Since(begin).Seconds())
	}
}
