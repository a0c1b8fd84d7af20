package qpipe

// Frame models a qpipe frame
// all fields are read only
type Frame struct {
	RequestID uint64
	Flags     FrameFlag
	Cmd       Cmd
	Payload   []byte
}
