package qpipe

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// TransportState tracks the lifecycle of a Transport.
type TransportState int32

const (
	// StateCreated before the formal connect step ran
	StateCreated TransportState = iota
	// StateConnecting while the connect callback is scheduled on the loop
	StateConnecting
	// StateActive once connected, until closed
	StateActive
	// StateClosed after Close or a read error, terminal
	StateClosed
)

func (s TransportState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

var (
	// ErrNoNewUUID when no new uuid available
	ErrNoNewUUID = errors.New("no new uuid available temporary")
	// ErrTransportClosed when try to operate on an already closed transport
	ErrTransportClosed = errors.New("transport already closed")
)

// Transport is one usable RPC connection: a pair channel driven by the
// shared event loop group. Writes and the connect callback run on the
// bound loop, the read pump runs on a group tracked goroutine.
// It is thread safe.
type Transport struct {
	// immutable
	pc    *PairConn
	loop  *eventLoop
	group *EventLoopGroup
	conf  Config

	readFrameCh chan *Frame // pushed frames, read by ReceiveFrame

	// cancelCtx cancels the transport-level context.
	cancelCtx context.CancelFunc
	// ctx is the corresponding context for cancelCtx
	ctx context.Context

	writer *Writer

	state int32

	mu     sync.Mutex
	respes map[uint64]*response
}

// Response for response frames
type Response interface {
	GetFrame() (*Frame, error)
	GetFrameWithContext(ctx context.Context) (*Frame, error) // frame is valid if error is nil
}

type response struct {
	Frame chan *Frame
}

func (r *response) GetFrame() (*Frame, error) {
	frame := <-r.Frame
	if frame == nil {
		return nil, ErrTransportClosed
	}
	return frame, nil
}

func (r *response) GetFrameWithContext(ctx context.Context) (*Frame, error) {
	select {
	case frame := <-r.Frame:
		if frame == nil {
			return nil, ErrTransportClosed
		}
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *response) SetResponse(frame *Frame) {
	r.Frame <- frame
}

func (r *response) Close() {
	close(r.Frame)
}

func newTransport(pc *PairConn, group *EventLoopGroup, conf Config) *Transport {
	ctx, cancelCtx := context.WithCancel(context.Background())
	return &Transport{
		pc: pc, group: group, loop: group.nextLoop(), conf: conf,
		readFrameCh: make(chan *Frame),
		respes:      make(map[uint64]*response),
		ctx:         ctx, cancelCtx: cancelCtx,
		state: int32(StateCreated),
	}
}

// open runs the formal connect step on the bound loop and starts the read
// pump. Connecting to Active is synchronous and unconditional: the pair is
// already live, so nothing can fail for the sentinel address.
func (t *Transport) open() error {
	atomic.StoreInt32(&t.state, int32(StateConnecting))

	var connErr error
	err := t.loop.execute(func() {
		_, connErr = t.pc.Connect(sentinelAddr, sentinelAddr)
	})
	if err != nil {
		return err
	}
	if connErr != nil {
		return connErr
	}

	t.writer = NewWriterWithTimeout(t.ctx, t.pc, t.conf.WriteTimeout)
	atomic.StoreInt32(&t.state, int32(StateActive))
	t.group.Go(t.readFrames)

	return nil
}

// State returns the current lifecycle state.
func (t *Transport) State() TransportState {
	return TransportState(atomic.LoadInt32(&t.state))
}

// Conn returns the underlying pair channel.
func (t *Transport) Conn() *PairConn {
	return t.pc
}

// Group returns the event loop group driving this transport.
func (t *Transport) Group() *EventLoopGroup {
	return t.group
}

// GetWriter return a FrameWriter bound to this transport
// should create one instance per goroutine
func (t *Transport) GetWriter() FrameWriter {
	return newFrameWriter(t)
}

// writeFrameBytes schedules the buffered frame on the bound loop and waits
// for the result, so concurrent writers never interleave frames.
func (t *Transport) writeFrameBytes(dfw *defaultFrameWriter) error {
	if t.State() != StateActive {
		return ErrTransportClosed
	}

	var wErr error
	err := t.loop.execute(func() {
		_, wErr = t.writer.Write(dfw.GetWbuf())
	})
	if err != nil {
		return err
	}
	return wErr
}

// SendFrame writes a complete frame in one call.
func (t *Transport) SendFrame(requestID uint64, cmd Cmd, flags FrameFlag, payload []byte) error {
	w := newFrameWriter(t)
	w.StartWrite(requestID, cmd, flags)
	w.WriteBytes(payload)
	return w.EndWrite()
}

// Request sends a request frame and returns a Response for the reply
// error is non nil when write failed
func (t *Transport) Request(cmd Cmd, flags FrameFlag, payload []byte) (uint64, Response, error) {
	var (
		requestID uint64
		suc       bool
	)

	requestID = PoorManUUID()
	t.mu.Lock()
	if t.State() == StateClosed {
		t.mu.Unlock()
		return 0, nil, ErrTransportClosed
	}
	i := 0
	for {
		_, ok := t.respes[requestID]
		if !ok {
			suc = true
			break
		}

		i++
		if i >= 3 {
			break
		}
		requestID = PoorManUUID()
	}

	if !suc {
		t.mu.Unlock()
		return 0, nil, ErrNoNewUUID
	}
	resp := &response{Frame: make(chan *Frame, 1)}
	t.respes[requestID] = resp
	t.mu.Unlock()

	err := t.SendFrame(requestID, cmd, flags, payload)
	if err != nil {
		t.mu.Lock()
		resp, ok := t.respes[requestID]
		if ok {
			resp.Close()
			delete(t.respes, requestID)
		}
		t.mu.Unlock()
		return 0, nil, err
	}

	return requestID, resp, nil
}

// ReceiveFrame returns the next frame pushed by the peer, i.e. one not
// correlated with a pending Request.
func (t *Transport) ReceiveFrame(ctx context.Context) (*Frame, error) {
	select {
	case frame := <-t.readFrameCh:
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.ctx.Done():
		return nil, ErrTransportClosed
	}
}

func (t *Transport) readFrames() {
	reader := NewFrameReader(t.pc, t.conf.ReadTimeout, t.conf.MaxFrameSize)

	for {
		frame, err := reader.ReadFrame()
		if err != nil {
			t.Close()
			return
		}

		if frame.Flags.IsPush() {
			select {
			case t.readFrameCh <- frame:
			case <-t.ctx.Done():
				t.Close()
				return
			}

			continue
		}

		// deal with response frames
		t.mu.Lock()
		resp, ok := t.respes[frame.RequestID]
		if !ok {
			l.Error("dangling resp", zap.Uint64("requestID", frame.RequestID))
			t.mu.Unlock()
			continue
		}
		delete(t.respes, frame.RequestID)
		t.mu.Unlock()

		resp.SetResponse(frame)
	}
}

// Close closes the transport: the state moves to Closed, pending responses
// fail and the wrapped pair handle is closed. There is no automatic
// reconnection, a fresh transport requires another NewChannel call.
func (t *Transport) Close() error {
	prev := atomic.SwapInt32(&t.state, int32(StateClosed))
	if TransportState(prev) == StateClosed {
		return ErrTransportClosed
	}

	t.cancelCtx()
	err := t.pc.Close()

	t.mu.Lock()
	for _, v := range t.respes {
		v.Close()
	}
	t.respes = make(map[uint64]*response)
	t.mu.Unlock()

	return err
}

// Done returns a channel closed once the transport is closed.
func (t *Transport) Done() <-chan struct{} {
	return t.ctx.Done()
}

// PoorManUUID generate a uint64 uuid
func PoorManUUID() (result uint64) {
	buf := make([]byte, 8)
	rand.Read(buf)
	result = binary.LittleEndian.Uint64(buf)
	if result == 0 {
		result = math.MaxUint64
	}
	return
}
