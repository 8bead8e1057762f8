package proto

import (
	"encoding/binary"
	"net/netip"

	"github.com/pkg/errors"
)

// u32Len is the encoded size of a 32-bit integer.
const u32Len = 4

// maxPort is the largest value accepted when a u32 is narrowed to a u16.
const maxPort = 1<<16 - 1

// fieldReader decodes primitive values from a frame payload.
//
// The reader keeps an explicit position instead of reslicing the buffer so
// that error messages can report how far into the payload a decode failed.
type fieldReader struct {
	buf []byte
	pos int
	cs  Charset
}

func newFieldReader(buf []byte, cs Charset) *fieldReader {
	return &fieldReader{buf: buf, cs: cs}
}

// remaining returns the number of unread payload bytes.
func (r *fieldReader) remaining() int {
	return len(r.buf) - r.pos
}

// rest returns a view of the unread payload bytes.
func (r *fieldReader) rest() []byte {
	return r.buf[r.pos:]
}

// take consumes the next n bytes.
func (r *fieldReader) take(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, errors.Errorf("expected %d bytes at offset %d, have %d", n, r.pos, r.remaining())
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *fieldReader) uint32() (uint32, error) {
	b, err := r.take(u32Len)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// uint16 values are carried as u32 on the wire.
func (r *fieldReader) uint16() (uint16, error) {
	n, err := r.uint32()
	if err != nil {
		return 0, err
	}
	if n > maxPort {
		return 0, errors.Errorf("invalid u16 value %d", n)
	}
	return uint16(n), nil
}

func (r *fieldReader) boolean() (bool, error) {
	b, err := r.take(1)
	if err != nil {
		return false, err
	}
	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, errors.Errorf("invalid bool value %d", b[0])
	}
}

// ipv4 addresses travel as little-endian u32 values.
func (r *fieldReader) ipv4() (netip.Addr, error) {
	n, err := r.uint32()
	if err != nil {
		return netip.Addr{}, err
	}
	return netip.AddrFrom4([4]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}), nil
}

func (r *fieldReader) str() (string, error) {
	n, err := r.uint32()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	s, err := r.cs.DecodeText(b)
	if err != nil {
		return "", errors.Wrapf(err, "string at offset %d", r.pos-len(b))
	}
	return s, nil
}

func (r *fieldReader) count() (int, error) {
	n, err := r.uint32()
	if err != nil {
		return 0, err
	}
	// A count cannot exceed the remaining payload: every element occupies at
	// least one byte. Checking here prevents huge hostile allocations.
	if int64(n) > int64(r.remaining()) {
		return 0, errors.Errorf("list count %d exceeds %d remaining payload bytes", n, r.remaining())
	}
	return int(n), nil
}

func (r *fieldReader) stringList() ([]string, error) {
	n, err := r.count()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		s, err := r.str()
		if err != nil {
			return nil, errors.Wrapf(err, "list element %d", i)
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *fieldReader) uint32List() ([]uint32, error) {
	n, err := r.count()
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		v, err := r.uint32()
		if err != nil {
			return nil, errors.Wrapf(err, "list element %d", i)
		}
		out = append(out, v)
	}
	return out, nil
}

// fieldWriter encodes primitive values into a frame payload.
type fieldWriter struct {
	buf []byte
	cs  Charset
}

func (w *fieldWriter) uint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *fieldWriter) uint16(v uint16) {
	w.uint32(uint32(v))
}

func (w *fieldWriter) boolean(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *fieldWriter) ipv4(a netip.Addr) error {
	a = a.Unmap()
	if !a.Is4() {
		return errors.Errorf("address %q is not an ipv4 address", a)
	}
	b := a.As4()
	w.uint32(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))
	return nil
}

func (w *fieldWriter) str(s string) error {
	b, err := w.cs.EncodeText(s)
	if err != nil {
		return err
	}
	w.uint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
	return nil
}

func (w *fieldWriter) stringList(ss []string) error {
	w.uint32(uint32(len(ss)))
	for i, s := range ss {
		if err := w.str(s); err != nil {
			return errors.Wrapf(err, "list element %d", i)
		}
	}
	return nil
}

func (w *fieldWriter) uint32List(vs []uint32) {
	w.uint32(uint32(len(vs)))
	for _, v := range vs {
		w.uint32(v)
	}
}
