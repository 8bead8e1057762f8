package proto

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Charset identifies the byte-to-text encoding declared for string fields on
// the wire. The protocol historically used single-byte Windows codepages;
// UTF8 is available for peers that negotiate it.
type Charset int

const (
	// Windows1252 is the protocol's historical default charset.
	Windows1252 Charset = iota
	// ISO8859Dash1 is used by older server implementations.
	ISO8859Dash1
	// UTF8 is the universal encoding.
	UTF8
)

// String returns the IANA-style name of the charset.
func (c Charset) String() string {
	switch c {
	case Windows1252:
		return "windows-1252"
	case ISO8859Dash1:
		return "iso-8859-1"
	case UTF8:
		return "utf-8"
	default:
		return fmt.Sprintf("charset(%d)", int(c))
	}
}

func (c Charset) table() *charmap.Charmap {
	switch c {
	case Windows1252:
		return charmap.Windows1252
	case ISO8859Dash1:
		return charmap.ISO8859_1
	default:
		return nil
	}
}

// EncodingError reports text that cannot be converted to or from the wire
// charset. Offset is the byte offset of the offending input. For decode
// failures Byte holds the offending byte; for encode failures Rune holds the
// rune the charset cannot represent.
type EncodingError struct {
	Charset Charset
	Offset  int
	Byte    byte
	Rune    rune
}

func (e *EncodingError) Error() string {
	if e.Rune != 0 {
		return fmt.Sprintf("%s cannot represent %q at offset %d", e.Charset, e.Rune, e.Offset)
	}
	return fmt.Sprintf("invalid %s byte 0x%02x at offset %d", e.Charset, e.Byte, e.Offset)
}

// DecodeText converts wire bytes into a string. It never substitutes or drops
// bytes: a byte sequence that is not valid in the charset fails with an
// EncodingError carrying the offending offset, so callers always learn that a
// text field did not round-trip.
func (c Charset) DecodeText(b []byte) (string, error) {
	if c == UTF8 {
		if !utf8.Valid(b) {
			off := invalidUTF8Offset(b)
			return "", &EncodingError{Charset: c, Offset: off, Byte: b[off]}
		}
		return string(b), nil
	}

	table := c.table()
	if table == nil {
		return "", fmt.Errorf("unsupported charset %s", c)
	}

	var sb strings.Builder
	sb.Grow(len(b))
	for i, by := range b {
		r := table.DecodeByte(by)
		if r == utf8.RuneError {
			return "", &EncodingError{Charset: c, Offset: i, Byte: by}
		}
		sb.WriteRune(r)
	}
	return sb.String(), nil
}

// EncodeText converts a string into wire bytes. Runes outside the charset's
// repertoire fail with an EncodingError; the caller decides whether to reject
// the value or fall back to another charset.
func (c Charset) EncodeText(s string) ([]byte, error) {
	if c == UTF8 {
		return []byte(s), nil
	}

	table := c.table()
	if table == nil {
		return nil, fmt.Errorf("unsupported charset %s", c)
	}

	out := make([]byte, 0, len(s))
	for i, r := range s {
		b, ok := table.EncodeRune(r)
		if !ok {
			return nil, &EncodingError{Charset: c, Offset: i, Rune: r}
		}
		out = append(out, b)
	}
	return out, nil
}

// invalidUTF8Offset returns the offset of the first invalid byte in b.
// Only called when b is known to be invalid.
func invalidUTF8Offset(b []byte) int {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return 0
}
