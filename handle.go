package qpipe

import (
	"errors"
	"net"
)

// HandleProvider produces pre-connected local duplex handles.
// The returned endpoint is already connected to its in-process peer and no
// data has been exchanged on it yet. How the pair comes into existence
// (socketpair, in-memory pipe, native component) is the provider's business.
type HandleProvider interface {
	AcquireHandle() (net.Conn, error)
}

// HandleProviderFunc for anonymous usage
type HandleProviderFunc func() (net.Conn, error)

// AcquireHandle implements HandleProvider
func (f HandleProviderFunc) AcquireHandle() (net.Conn, error) {
	return f()
}

var (
	// ErrHandleAcquisition when the provider could not produce a duplex handle
	ErrHandleAcquisition = errors.New("duplex handle acquisition failed")
)
