package proto

import (
	"encoding/binary"
	"fmt"
)

// DefaultMaxFrameSize caps the declared payload length of a frame. Anything
// larger is treated as a framing error rather than an allocation request.
const DefaultMaxFrameSize = 1 << 20

// FrameTooLargeError reports a frame whose declared length exceeds the
// configured maximum. It is fatal: the stream position after the length
// prefix cannot be trusted, so the connection must be dropped.
type FrameTooLargeError struct {
	Declared uint32
	Max      int
}

func (e *FrameTooLargeError) Error() string {
	return fmt.Sprintf("declared frame length %d exceeds maximum %d", e.Declared, e.Max)
}

// FrameBuffer accumulates stream bytes and splits them into length-prefixed
// frames. It is the reassembly half of the codec: callers Append whatever
// the transport delivered and then drain complete frames with TryTakeFrame.
type FrameBuffer struct {
	buf      []byte
	consumed int64
	max      int
}

// NewFrameBuffer returns an empty buffer. A maxFrame of zero or less selects
// DefaultMaxFrameSize.
func NewFrameBuffer(maxFrame int) *FrameBuffer {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameSize
	}
	return &FrameBuffer{max: maxFrame}
}

// Append adds stream bytes to the buffer.
func (fb *FrameBuffer) Append(p []byte) {
	fb.buf = append(fb.buf, p...)
}

// TryTakeFrame attempts to extract the next complete frame payload.
//
// It returns (payload, true, nil) when a full frame is buffered,
// (nil, false, nil) when more bytes are needed, and a FrameTooLargeError when
// the declared length exceeds the maximum. An incomplete frame leaves the
// buffer untouched, so the call is idempotent until more bytes arrive.
func (fb *FrameBuffer) TryTakeFrame() ([]byte, bool, error) {
	if len(fb.buf) < u32Len {
		return nil, false, nil
	}
	declared := binary.LittleEndian.Uint32(fb.buf)
	if int64(declared) > int64(fb.max) {
		return nil, false, &FrameTooLargeError{Declared: declared, Max: fb.max}
	}
	total := u32Len + int(declared)
	if len(fb.buf) < total {
		return nil, false, nil
	}

	payload := make([]byte, declared)
	copy(payload, fb.buf[u32Len:total])
	fb.buf = fb.buf[:copy(fb.buf, fb.buf[total:])]
	fb.consumed += int64(total)
	return payload, true, nil
}

// Buffered returns the number of bytes waiting for frame completion.
func (fb *FrameBuffer) Buffered() int {
	return len(fb.buf)
}

// Consumed returns the total number of stream bytes extracted as frames,
// length prefixes included.
func (fb *FrameBuffer) Consumed() int64 {
	return fb.consumed
}
