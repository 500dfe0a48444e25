package carrier

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/klauspost/compress/zlib"
)

// Size of the fixed part of an envelope; a big endian uint32 body length
// followed by a single byte compression flag
const envelopeHeader = 5

// Envelope is the record carried in the pixels of the image. It implements
// the encoding.BinaryMarshaler and encoding.BinaryUnmarshaler interfaces.
type Envelope struct {
	// Origin is the name of the file the payload was read from
	Origin  string
	Payload []byte
	// Compressed is set if the body of the envelope is deflated
	Compressed bool
}

// MarshalBinary encodes the envelope into binary form and returns the result
func (e *Envelope) MarshalBinary() ([]byte, error) {
	return e.marshal(DefaultCompression)
}

func (e *Envelope) marshal(level CompressionLevel) ([]byte, error) {
	if len(e.Origin) > math.MaxUint16 {
		return nil, ConfigError(fmt.Sprintf("origin name is %d bytes, more than %d", len(e.Origin), math.MaxUint16))
	}
	if !utf8.ValidString(e.Origin) {
		return nil, ConfigError("origin name is not valid UTF-8")
	}

	body := new(bytes.Buffer)

	// Length prefixed origin name, then the payload itself
	if err := binary.Write(body, binary.BigEndian, uint16(len(e.Origin))); err != nil {
		return nil, err
	}
	if _, err := body.WriteString(e.Origin); err != nil {
		return nil, err
	}
	if _, err := body.Write(e.Payload); err != nil {
		return nil, err
	}

	if e.Compressed {
		z := new(bytes.Buffer)
		w, err := zlib.NewWriterLevel(z, level.deflateLevel())
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(body.Bytes()); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		body = z
	}

	if uint64(body.Len()) > math.MaxUint32 {
		return nil, ConfigError(fmt.Sprintf("envelope body is %d bytes, more than %d", body.Len(), uint64(math.MaxUint32)))
	}

	b := new(bytes.Buffer)
	b.Grow(envelopeHeader + body.Len())

	if err := binary.Write(b, binary.BigEndian, uint32(body.Len())); err != nil {
		return nil, err
	}
	var flag byte
	if e.Compressed {
		flag = 1
	}
	if err := b.WriteByte(flag); err != nil {
		return nil, err
	}
	if _, err := b.Write(body.Bytes()); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// UnmarshalBinary decodes the envelope from binary form. Anything after the
// body, such as the padding at the end of the image, is ignored.
func (e *Envelope) UnmarshalBinary(b []byte) error {
	if len(b) < envelopeHeader {
		return FormatError(fmt.Sprintf("envelope needs %d bytes, only %d available", envelopeHeader, len(b)))
	}

	size := binary.BigEndian.Uint32(b[:4])
	compressed := b[4] != 0

	if uint64(size) > uint64(len(b)-envelopeHeader) {
		return FormatError(fmt.Sprintf("envelope body of %d bytes exceeds the %d available", size, len(b)-envelopeHeader))
	}
	body := b[envelopeHeader : envelopeHeader+int(size)]

	if compressed {
		r, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return FormatError(fmt.Sprintf("compressed body: %v", err))
		}
		defer r.Close()

		if body, err = io.ReadAll(r); err != nil {
			return FormatError(fmt.Sprintf("compressed body: %v", err))
		}
	}

	if len(body) < 2 {
		return FormatError("envelope body too short for origin name length")
	}
	n := int(binary.BigEndian.Uint16(body[:2]))
	if len(body)-2 < n {
		return FormatError(fmt.Sprintf("origin name of %d bytes exceeds envelope body", n))
	}

	origin := body[2 : 2+n]
	if !utf8.Valid(origin) {
		return FormatError("malformed UTF-8 in origin name")
	}

	e.Origin = string(origin)
	e.Payload = make([]byte, len(body)-2-n)
	copy(e.Payload, body[2+n:])
	e.Compressed = compressed

	return nil
}
