package proto

import (
	"encoding/hex"

	"github.com/pkg/errors"
)

// Decoded is one decoding result produced by Decoder.Feed.
//
// Message is never nil: a frame whose code is unknown, or whose fields failed
// to parse, yields an Unrecognized message, with Err set in the latter case.
// Surplus holds payload bytes left over after the fields parsed cleanly;
// senders sometimes append data newer protocol revisions define, so surplus
// is reported rather than treated as an error.
type Decoded struct {
	Message  Message
	Consumed int
	Surplus  []byte
	Err      error
}

// SurplusHex renders the surplus bytes for log output.
func (d Decoded) SurplusHex() string {
	return hex.EncodeToString(d.Surplus)
}

// Decoder turns a byte stream into protocol messages. It buffers partial
// frames internally, so Feed can be called with whatever chunks the
// transport delivers.
type Decoder struct {
	buf *FrameBuffer
	dir Direction
	cs  Charset
}

// NewDecoder returns a decoder for one side of the protocol. A maxFrame of
// zero or less selects DefaultMaxFrameSize.
func NewDecoder(dir Direction, cs Charset, maxFrame int) *Decoder {
	return &Decoder{
		buf: NewFrameBuffer(maxFrame),
		dir: dir,
		cs:  cs,
	}
}

// Buffered returns the number of bytes held back waiting for frame
// completion.
func (d *Decoder) Buffered() int {
	return d.buf.Buffered()
}

// Consumed returns the total number of stream bytes decoded into frames.
func (d *Decoder) Consumed() int64 {
	return d.buf.Consumed()
}

// Feed appends stream bytes and returns every message completed by them,
// in order. An empty slice means the decoder is waiting for more bytes.
// A non-nil error means the framing itself is broken (FrameTooLargeError)
// and the stream cannot be decoded further; per-message field errors are
// reported on the individual Decoded instead.
func (d *Decoder) Feed(p []byte) ([]Decoded, error) {
	d.buf.Append(p)

	var out []Decoded
	for {
		payload, ok, err := d.buf.TryTakeFrame()
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, d.decodePayload(payload))
	}
}

func (d *Decoder) decodePayload(payload []byte) Decoded {
	dec := Decoded{Consumed: u32Len + len(payload)}

	r := newFieldReader(payload, d.cs)
	code, err := r.uint32()
	if err != nil {
		// Tag stays zero: the payload ended before the code word, so there
		// is no wire code to report. Err carries the raw length.
		dec.Message = &Unrecognized{Payload: payload}
		dec.Err = errors.Wrapf(err, "frame payload of %d bytes is shorter than a message code", len(payload))
		return dec
	}

	msg := newMessage(d.dir, code)
	if msg == nil {
		dec.Message = &Unrecognized{Tag: code, Payload: r.rest()}
		return dec
	}

	if err := msg.decodeFields(r); err != nil {
		dec.Message = &Unrecognized{Tag: code, Payload: payload[u32Len:]}
		dec.Err = errors.Wrapf(err, "decode %s message %d", d.dir, code)
		return dec
	}

	dec.Message = msg
	if r.remaining() > 0 {
		dec.Surplus = append([]byte(nil), r.rest()...)
	}
	return dec
}
