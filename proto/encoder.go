package proto

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Encoder turns protocol messages into wire frames.
type Encoder struct {
	cs Charset
}

// NewEncoder returns an encoder writing string fields in the given charset.
func NewEncoder(cs Charset) *Encoder {
	return &Encoder{cs: cs}
}

// Encode renders a complete frame: length prefix, message code, fields. It
// fails only when a string field cannot be represented in the charset.
// Unrecognized messages are re-emitted with their raw payload, allowing
// frames to be relayed undecoded.
func (e *Encoder) Encode(m Message) ([]byte, error) {
	w := &fieldWriter{cs: e.cs}
	w.uint32(0) // length, patched below
	w.uint32(m.Code())

	switch msg := m.(type) {
	case *Unrecognized:
		w.buf = append(w.buf, msg.Payload...)
	case fieldMessage:
		if err := msg.encodeFields(w); err != nil {
			return nil, errors.Wrapf(err, "encode message %d", m.Code())
		}
	default:
		return nil, errors.Errorf("cannot encode message type %T", m)
	}

	binary.LittleEndian.PutUint32(w.buf[:u32Len], uint32(len(w.buf)-u32Len))
	return w.buf, nil
}
