package qpipe

import (
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/go-kit/kit/metrics"
	"github.com/zhiqiangxu/util"
	"gotest.tools/v3/assert"
)

func TestEventLoopGroupSingleton(t *testing.T) {
	p := NewProvider(echoHandleProvider(), Config{GroupName: "singleton", LoopCount: 2})

	const n = 32
	results := make([]*EventLoopGroup, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		idx := i
		util.GoFunc(&wg, func() {
			results[idx] = p.EventLoopGroup()
		})
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Assert(t, results[i] == results[0])
	}
	assert.Equal(t, results[0].Name(), "singleton")

	results[0].Shutdown()
}

func TestNewChannelIndependentTransports(t *testing.T) {
	p := NewProvider(echoHandleProvider(), Config{GroupName: "independent"})
	defer p.EventLoopGroup().Shutdown()

	tr1, err := p.NewChannel()
	assert.Assert(t, err == nil)
	defer tr1.Close()

	tr2, err := p.NewChannel()
	assert.Assert(t, err == nil)
	defer tr2.Close()

	assert.Assert(t, tr1 != tr2)
	assert.Assert(t, tr1.Conn() != tr2.Conn())
	assert.Assert(t, tr1.Group() == tr2.Group())

	// closing one leaves the other usable
	assert.Assert(t, tr1.Close() == nil)
	_, resp, err := tr2.Request(helloCmd, 0, []byte("still alive"))
	assert.Assert(t, err == nil)
	frame, err := resp.GetFrame()
	assert.Assert(t, err == nil)
	assert.DeepEqual(t, frame.Payload, []byte("still alive"))
}

func TestNewChannelAcquisitionFailure(t *testing.T) {
	boom := errors.New("native pair unavailable")
	p := NewProvider(HandleProviderFunc(func() (net.Conn, error) {
		return nil, boom
	}), Config{GroupName: "failing"})

	tr, err := p.NewChannel()
	assert.Assert(t, tr == nil)

	var tce *TransportCreationError
	assert.Assert(t, errors.As(err, &tce))
	assert.Assert(t, errors.Is(err, ErrHandleAcquisition))

	// acquisition failed before the transport was assembled, so the lazy
	// event resource was never created
	p.mu.Lock()
	assert.Assert(t, p.group == nil)
	p.mu.Unlock()
}

func TestNewChannelDefaultGroupName(t *testing.T) {
	p := NewProvider(echoHandleProvider(), Config{})
	g := p.EventLoopGroup()
	defer g.Shutdown()

	assert.Equal(t, g.Name(), DefaultGroupName)
}

type testCounter struct {
	mu    sync.Mutex
	count float64
	lvs   []string
}

func (c *testCounter) With(lvs ...string) metrics.Counter {
	c.mu.Lock()
	c.lvs = append(c.lvs, lvs...)
	c.mu.Unlock()
	return c
}

func (c *testCounter) Add(delta float64) {
	c.mu.Lock()
	c.count += delta
	c.mu.Unlock()
}

type testHistogram struct {
	mu       sync.Mutex
	observed []float64
}

func (h *testHistogram) With(lvs ...string) metrics.Histogram {
	return h
}

func (h *testHistogram) Observe(value float64) {
	h.mu.Lock()
	h.observed = append(h.observed, value)
	h.mu.Unlock()
}

func TestNewChannelInstrumented(t *testing.T) {
	counter := &testCounter{}
	histogram := &testHistogram{}

	p := NewProvider(echoHandleProvider(), Config{
		GroupName:     "metrics",
		CounterMetric: counter,
		LatencyMetric: histogram,
	})
	defer p.EventLoopGroup().Shutdown()

	tr, err := p.NewChannel()
	assert.Assert(t, err == nil)
	defer tr.Close()

	counter.mu.Lock()
	assert.Equal(t, counter.count, float64(1))
	assert.DeepEqual(t, counter.lvs, []string{"method", "newChannel", "error", "false"})
	counter.mu.Unlock()

	histogram.mu.Lock()
	assert.Equal(t, len(histogram.observed), 1)
	histogram.mu.Unlock()
}

func TestProviderDial(t *testing.T) {
	p := NewProvider(echoHandleProvider(), Config{GroupName: "dial"})

	conn, err := p.Dial()
	assert.Assert(t, err == nil)
	defer conn.Close()

	pc, ok := conn.(*PairConn)
	assert.Assert(t, ok)
	assert.Assert(t, pc.Active())
	assert.Equal(t, conn.RemoteAddr(), SentinelAddr())

	// Dial never touches the event resource
	p.mu.Lock()
	assert.Assert(t, p.group == nil)
	p.mu.Unlock()
}
