package carrier

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// Kind is the closed set of chunk types the decoder acts upon.
type Kind int

// Any chunk type not listed here decodes as Unknown and is skipped.
const (
	Unknown Kind = iota
	IHDR
	IDAT
	IEND
)

var kinds = map[string]Kind{
	"IHDR": IHDR,
	"IDAT": IDAT,
	"IEND": IEND,
}

func (k Kind) String() string {
	switch k {
	case IHDR:
		return "IHDR"
	case IDAT:
		return "IDAT"
	case IEND:
		return "IEND"
	default:
		return "unknown"
	}
}

// Chunk describes a single chunk seen in a PNG datastream.
type Chunk struct {
	Type   string
	Length uint32
	CRC    uint32
}

// Kind returns which handler, if any, the chunk is dispatched to.
func (c Chunk) Kind() Kind {
	return kinds[c.Type]
}

func (c Chunk) String() string {
	return fmt.Sprintf("%s length=%d crc=%08X", c.Type, c.Length, c.CRC)
}

func checksum(name string, b []byte) uint32 {
	crc := crc32.NewIEEE()
	io.WriteString(crc, name)
	crc.Write(b)
	return crc.Sum32()
}

// writeChunk frames b as length, type, data and CRC over type and data
func writeChunk(w io.Writer, name string, b []byte) error {
	if len(name) != 4 {
		return fmt.Errorf("carrier: bad chunk type %q", name)
	}
	if uint64(len(b)) > maxDimension {
		return ConfigError(fmt.Sprintf("%s chunk too large: %d bytes", name, len(b)))
	}

	var header [8]byte
	binary.BigEndian.PutUint32(header[:4], uint32(len(b)))
	copy(header[4:], name)

	var footer [4]byte
	binary.BigEndian.PutUint32(footer[:], checksum(name, b))

	for _, p := range [][]byte{header[:], b, footer[:]} {
		if _, err := w.Write(p); err != nil {
			return err
		}
	}
	return nil
}

// readChunk reads the next chunk from r and verifies its CRC, regardless of
// whether the chunk type is one that is understood
func readChunk(r io.Reader) (Chunk, []byte, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		switch err {
		case io.EOF:
			return Chunk{}, nil, FormatError("missing IEND chunk")
		case io.ErrUnexpectedEOF:
			return Chunk{}, nil, FormatError("truncated chunk header")
		}
		return Chunk{}, nil, err
	}

	c := Chunk{
		Type:   string(header[4:8]),
		Length: binary.BigEndian.Uint32(header[:4]),
	}
	if c.Length > maxDimension {
		return c, nil, FormatError(fmt.Sprintf("bad chunk length: %d", c.Length))
	}

	// Grow the buffer as data arrives rather than trusting the length
	b := new(bytes.Buffer)
	if n, err := io.CopyN(b, r, int64(c.Length)); err != nil {
		if err == io.EOF && n < int64(c.Length) {
			return c, nil, FormatError(fmt.Sprintf("truncated %s chunk", c.Type))
		}
		return c, nil, err
	}

	var footer [4]byte
	if err := readFull(r, footer[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return c, nil, FormatError(fmt.Sprintf("truncated %s chunk", c.Type))
		}
		return c, nil, err
	}
	c.CRC = binary.BigEndian.Uint32(footer[:])

	if sum := checksum(c.Type, b.Bytes()); sum != c.CRC {
		return c, nil, IntegrityError(fmt.Sprintf("CRC mismatch in %s chunk: computed %08X, stored %08X", c.Type, sum, c.CRC))
	}

	return c, b.Bytes(), nil
}
