package qpipe

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/zhiqiangxu/util"
	"go.uber.org/zap"
)

var (
	// ErrLoopClosed when submitting to a closed event loop group
	ErrLoopClosed = errors.New("event loop closed")
)

// eventLoop is a single worker multiplexing tasks for the channels bound
// to it. Tasks run serially in submission order, so all writes of the
// channels on one loop are totally ordered.
type eventLoop struct {
	name   string
	taskCh chan func()
	doneCh chan struct{}
}

func (el *eventLoop) run() {
	defer func() {
		err := recover()
		if err != nil {
			l.Error("eventLoop", zap.String("name", el.name), zap.Any("err", err))
		}
	}()
	for {
		select {
		case f := <-el.taskCh:
			f()
		case <-el.doneCh:
			return
		}
	}
}

// submit schedules f without waiting for it to run.
func (el *eventLoop) submit(f func()) error {
	select {
	case el.taskCh <- f:
		return nil
	case <-el.doneCh:
		return ErrLoopClosed
	}
}

// execute schedules f and blocks until it has run.
func (el *eventLoop) execute(f func()) error {
	done := make(chan struct{})
	err := el.submit(func() {
		defer close(done)
		f()
	})
	if err != nil {
		return err
	}

	<-done
	return nil
}

// EventLoopGroup drives I/O for every pair channel created by a Provider.
// It owns a fixed set of event loops plus the read pump goroutines of the
// transports bound to it. The group is safe for concurrent use by any
// number of channels and never blocks shutdown of the owning process.
type EventLoopGroup struct {
	// immutable
	name  string
	loops []*eventLoop

	next   uint32
	doneCh chan struct{}
	closed int32
	wg     sync.WaitGroup
}

// NewEventLoopGroup creates a group of n event loops, each named
// "<name>-<idx>" for diagnostics. n <= 0 means one loop per available core.
func NewEventLoopGroup(name string, n int) *EventLoopGroup {
	if n <= 0 {
		n = runtime.NumCPU()
	}

	g := &EventLoopGroup{name: name, doneCh: make(chan struct{})}
	for i := 0; i < n; i++ {
		el := &eventLoop{
			name:   fmt.Sprintf("%s-%d", name, i),
			taskCh: make(chan func()),
			doneCh: g.doneCh,
		}
		g.loops = append(g.loops, el)
		util.GoFunc(&g.wg, el.run)
	}

	return g
}

// Name returns the diagnostic name of the group.
func (g *EventLoopGroup) Name() string {
	return g.name
}

// Size returns the number of event loops.
func (g *EventLoopGroup) Size() int {
	return len(g.loops)
}

// nextLoop assigns loops round robin.
func (g *EventLoopGroup) nextLoop() *eventLoop {
	n := atomic.AddUint32(&g.next, 1)
	return g.loops[int(n-1)%len(g.loops)]
}

// Go runs f on a goroutine tracked by the group.
func (g *EventLoopGroup) Go(f func()) {
	util.GoFunc(&g.wg, f)
}

// Shutdown stops all loops and waits for tracked goroutines. Calling it is
// not required for process exit, it mainly exists so tests can reclaim a
// group. Transports bound to the group must be closed first or Shutdown
// will wait on their read pumps.
func (g *EventLoopGroup) Shutdown() {
	if !atomic.CompareAndSwapInt32(&g.closed, 0, 1) {
		return
	}
	close(g.doneCh)
	g.wg.Wait()
}
