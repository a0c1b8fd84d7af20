package qpipe

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

const helloCmd Cmd = 1

// echoHandleProvider hands out net.Pipe ends, serving a frame echo on the
// far side of each acquired pair.
func echoHandleProvider() HandleProvider {
	return HandleProviderFunc(func() (net.Conn, error) {
		ours, theirs := net.Pipe()
		go serveEcho(theirs)
		return ours, nil
	})
}

func serveEcho(conn net.Conn) {
	defer conn.Close()

	reader := NewFrameReader(conn, ReadNoTimeout, 0)
	writer := NewFrameWriter(context.Background(), conn, WriteNoTimeout)

	for {
		frame, err := reader.ReadFrame()
		if err != nil {
			return
		}

		writer.StartWrite(frame.RequestID, frame.Cmd, frame.Flags)
		writer.WriteBytes(frame.Payload)
		err = writer.EndWrite()
		if err != nil {
			return
		}
	}
}

// pushHandleProvider sends n push frames from the far side as soon as the
// pair is acquired, then idles until closed.
func pushHandleProvider(n int) HandleProvider {
	return HandleProviderFunc(func() (net.Conn, error) {
		ours, theirs := net.Pipe()
		go func() {
			writer := NewFrameWriter(context.Background(), theirs, WriteNoTimeout)
			for i := 0; i < n; i++ {
				writer.StartWrite(uint64(i), helloCmd, PushFlag)
				writer.WriteUint32(uint32(i))
				if writer.EndWrite() != nil {
					return
				}
			}
		}()
		return ours, nil
	})
}

func TestTransportEcho(t *testing.T) {
	p := NewProvider(echoHandleProvider(), Config{GroupName: "echotest"})

	defer p.EventLoopGroup().Shutdown()

	tr, err := p.NewChannel()
	assert.Assert(t, err == nil)
	defer tr.Close()

	assert.Equal(t, tr.State(), StateActive)
	assert.Assert(t, tr.Conn().Active())

	payload := bytes.Repeat([]byte("qp"), 200)
	_, resp, err := tr.Request(helloCmd, 0, payload)
	assert.Assert(t, err == nil)

	frame, err := resp.GetFrame()
	assert.Assert(t, err == nil)
	assert.Equal(t, frame.Cmd, helloCmd)
	assert.DeepEqual(t, frame.Payload, payload)
}

func TestTransportEchoSequential(t *testing.T) {
	p := NewProvider(echoHandleProvider(), Config{GroupName: "seqtest", LoopCount: 1})

	defer p.EventLoopGroup().Shutdown()

	tr, err := p.NewChannel()
	assert.Assert(t, err == nil)
	defer tr.Close()

	for i := 0; i < 32; i++ {
		payload := bytes.Repeat([]byte{byte(i)}, i+1)
		_, resp, err := tr.Request(helloCmd, 0, payload)
		assert.Assert(t, err == nil)

		frame, err := resp.GetFrameWithContext(context.Background())
		assert.Assert(t, err == nil)
		assert.DeepEqual(t, frame.Payload, payload)
	}
}

func TestTransportReceivePushOrder(t *testing.T) {
	const n = 10
	p := NewProvider(pushHandleProvider(n), Config{GroupName: "pushtest"})

	defer p.EventLoopGroup().Shutdown()

	tr, err := p.NewChannel()
	assert.Assert(t, err == nil)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	for i := 0; i < n; i++ {
		frame, err := tr.ReceiveFrame(ctx)
		assert.Assert(t, err == nil)
		assert.Assert(t, frame.Flags.IsPush())
		assert.Equal(t, frame.RequestID, uint64(i))
	}
}

func TestTransportClose(t *testing.T) {
	p := NewProvider(echoHandleProvider(), Config{GroupName: "closetest"})

	tr, err := p.NewChannel()
	assert.Assert(t, err == nil)
	defer p.EventLoopGroup().Shutdown()

	assert.Assert(t, tr.Close() == nil)
	assert.Equal(t, tr.State(), StateClosed)
	assert.Assert(t, !tr.Conn().Active())
	assert.Equal(t, tr.Close(), ErrTransportClosed)

	_, _, err = tr.Request(helloCmd, 0, nil)
	assert.Equal(t, err, ErrTransportClosed)

	select {
	case <-tr.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
}

func TestTransportPeerClose(t *testing.T) {
	peerCh := make(chan net.Conn, 1)
	p := NewProvider(HandleProviderFunc(func() (net.Conn, error) {
		ours, theirs := net.Pipe()
		peerCh <- theirs
		return ours, nil
	}), Config{GroupName: "peerclosetest"})

	tr, err := p.NewChannel()
	assert.Assert(t, err == nil)
	defer p.EventLoopGroup().Shutdown()

	peer := <-peerCh
	peer.Close()

	// the read pump notices the dead pair and closes the transport
	select {
	case <-tr.Done():
	case <-time.After(time.Second * 5):
		t.Fatal("transport not closed after peer close")
	}
	assert.Equal(t, tr.State(), StateClosed)
	assert.Assert(t, !tr.Conn().Active())
}

func TestFrameReaderRejectsInvalidSize(t *testing.T) {
	ours, theirs := net.Pipe()
	defer ours.Close()
	defer theirs.Close()

	go func() {
		// header claiming an impossible size
		header := make([]byte, 16)
		header[3] = 11
		theirs.Write(header)
	}()

	reader := NewFrameReader(ours, ReadNoTimeout, 0)
	_, err := reader.ReadFrame()
	assert.Equal(t, err, ErrInvalidFrameSize)
}

func TestFrameReaderRejectsTooLarge(t *testing.T) {
	ours, theirs := net.Pipe()
	defer ours.Close()
	defer theirs.Close()

	go func() {
		writer := NewFrameWriter(context.Background(), theirs, WriteNoTimeout)
		writer.StartWrite(1, helloCmd, 0)
		writer.WriteBytes(bytes.Repeat([]byte("x"), 1024))
		writer.EndWrite()
	}()

	reader := NewFrameReader(ours, ReadNoTimeout, 64)
	_, err := reader.ReadFrame()
	assert.Equal(t, err, ErrFrameTooLarge)
}
