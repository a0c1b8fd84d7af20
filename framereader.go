package qpipe

import (
	"encoding/binary"
	"errors"
	"net"
)

var (
	// ErrInvalidFrameSize when invalid size
	ErrInvalidFrameSize = errors.New("invalid frame size")
	// ErrFrameTooLarge when frame size too large
	ErrFrameTooLarge = errors.New("frame size too large")
)

// FrameReader is responsible for read frames
// should create one instance per connection end
type FrameReader struct {
	*Reader
	rbuf         [16]byte // for header
	maxFrameSize int
}

// NewFrameReader creates a FrameReader instance to read frames
func NewFrameReader(conn net.Conn, timeout int, maxFrameSize int) *FrameReader {
	return &FrameReader{Reader: NewReaderWithTimeout(conn, timeout), maxFrameSize: maxFrameSize}
}

// ReadFrame reads the next frame off the connection
func (fr *FrameReader) ReadFrame() (*Frame, error) {

	header := fr.rbuf[:]
	err := fr.ReadBytes(header)
	if err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header)
	if fr.maxFrameSize > 0 && size > uint32(fr.maxFrameSize) {
		return nil, ErrFrameTooLarge
	}
	requestID := binary.BigEndian.Uint64(header[4:])
	cmdAndFlags := binary.BigEndian.Uint32(header[12:])
	cmd := Cmd(cmdAndFlags & 0xffffff)
	flags := FrameFlag(cmdAndFlags >> 24)
	if size < 12 {
		return nil, ErrInvalidFrameSize
	}

	payload := make([]byte, size-12)
	err = fr.ReadBytes(payload)
	if err != nil {
		return nil, err
	}

	return &Frame{RequestID: requestID, Cmd: cmd, Flags: flags, Payload: payload}, nil
}
