package qpipe

// Cmd is for multiplexer
type Cmd uint32

// MaxCmd is the largest value a Cmd can carry, it takes 3 bytes on the wire
const MaxCmd = 0xffffff

// FrameFlag defines type for qpipe frame
type FrameFlag uint8

const (
	// PushFlag means the frame is initiated by the peer rather than being
	// a response to a pending request
	PushFlag FrameFlag = 1 << iota
)

// IsPush checks whether frame is pushed
func (flg FrameFlag) IsPush() bool {
	return flg&PushFlag != 0
}
