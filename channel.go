package qpipe

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// PipeAddr is the fixed placeholder address reported by every PairConn.
// A local duplex handle has no routable endpoint, so addresses are never
// derived from the OS.
type PipeAddr struct{}

// Network implements net.Addr
func (PipeAddr) Network() string { return "pipe" }

// String implements net.Addr
func (PipeAddr) String() string { return "pipe:0" }

var sentinelAddr net.Addr = PipeAddr{}

// SentinelAddr returns the sentinel address shared by every pair channel.
func SentinelAddr() net.Addr {
	return sentinelAddr
}

var (
	// ErrInvalidAddress when Connect is called with any address other than the sentinel
	ErrInvalidAddress = errors.New("invalid remote address for pair channel")
)

// PairConn wraps one end of an externally established duplex pair.
// It implements net.Conn, delegating raw I/O to the wrapped handle while
// overriding address and connect semantics: the pair is already live, so
// Connect is a formal step that cannot fail for the sentinel address.
// Once wrapped, the handle is owned exclusively by the PairConn.
// It is thread safe.
type PairConn struct {
	// immutable
	rwc net.Conn

	mu        sync.Mutex
	connected bool
	closed    bool
}

// dialPair acquires a fresh handle and wraps it.
// Acquisition failure is fatal to the caller, no retry is attempted here.
func dialPair(handles HandleProvider) (*PairConn, error) {
	rwc, err := handles.AcquireHandle()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandleAcquisition, err)
	}

	return &PairConn{rwc: rwc}, nil
}

// Connect validates remote against the sentinel and marks the channel
// connected. It returns true on success, meaning the pair is connected
// synchronously and no asynchronous handshake follows. local is accepted
// for interface parity and ignored.
func (pc *PairConn) Connect(remote, local net.Addr) (bool, error) {
	if _, ok := remote.(PipeAddr); !ok {
		return false, ErrInvalidAddress
	}

	pc.mu.Lock()
	pc.connected = true
	pc.mu.Unlock()

	return true, nil
}

// Active returns true only after a successful Connect and while the
// wrapped handle remains open. Both conditions are required.
func (pc *PairConn) Active() bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	return pc.connected && !pc.closed
}

// Read implements net.Conn
func (pc *PairConn) Read(b []byte) (int, error) {
	return pc.rwc.Read(b)
}

// Write implements net.Conn
func (pc *PairConn) Write(b []byte) (int, error) {
	return pc.rwc.Write(b)
}

// Close closes the wrapped handle, it is safe to call more than once.
func (pc *PairConn) Close() error {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return nil
	}
	pc.closed = true
	pc.mu.Unlock()

	return pc.rwc.Close()
}

// LocalAddr always returns the sentinel, never real endpoint information.
func (pc *PairConn) LocalAddr() net.Addr { return sentinelAddr }

// RemoteAddr always returns the sentinel, never real endpoint information.
func (pc *PairConn) RemoteAddr() net.Addr { return sentinelAddr }

// SetDeadline implements net.Conn
func (pc *PairConn) SetDeadline(t time.Time) error { return pc.rwc.SetDeadline(t) }

// SetReadDeadline implements net.Conn
func (pc *PairConn) SetReadDeadline(t time.Time) error { return pc.rwc.SetReadDeadline(t) }

// SetWriteDeadline implements net.Conn
func (pc *PairConn) SetWriteDeadline(t time.Time) error { return pc.rwc.SetWriteDeadline(t) }
