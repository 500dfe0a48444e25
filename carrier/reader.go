package carrier

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

func readFull(r io.Reader, b []byte) error {
	_, err := io.ReadFull(r, b)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// Header holds the fields of the IHDR chunk. The decoder records them but
// assumes 8-bit truecolor regardless of what BitDepth and ColorType say.
type Header struct {
	Width       uint32
	Height      uint32
	BitDepth    uint8
	ColorType   uint8
	Compression uint8
	Filter      uint8
	Interlace   uint8
}

// Image is a decoded carrier PNG.
type Image struct {
	Header Header
	// Chunks lists every chunk read, in order, including skipped ones
	Chunks []Chunk
	Grid   *Grid
}

type decoder struct {
	r io.Reader

	header     Header
	seenHeader bool
	seenData   bool
	chunks     []Chunk

	// Scanlines from every IDAT chunk, filter bytes removed
	pix []byte
}

func (d *decoder) checkSignature() error {
	var tmp [len(Signature)]byte
	if err := readFull(d.r, tmp[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return FormatError("invalid PNG signature")
		}
		return err
	}
	if string(tmp[:]) != Signature {
		return FormatError("invalid PNG signature")
	}
	return nil
}

func (d *decoder) parseIHDR(b []byte) error {
	if d.seenHeader {
		return FormatError("duplicate IHDR chunk")
	}
	if len(b) != ihdrLength {
		return FormatError(fmt.Sprintf("bad IHDR length: %d", len(b)))
	}

	d.header = Header{
		Width:       binary.BigEndian.Uint32(b[0:4]),
		Height:      binary.BigEndian.Uint32(b[4:8]),
		BitDepth:    b[8],
		ColorType:   b[9],
		Compression: b[10],
		Filter:      b[11],
		Interlace:   b[12],
	}
	if d.header.Width == 0 || d.header.Height == 0 {
		return FormatError(fmt.Sprintf("bad dimensions: %dx%d", d.header.Width, d.header.Height))
	}
	if d.header.Width > maxDimension || d.header.Height > maxDimension {
		return FormatError(fmt.Sprintf("dimensions %dx%d out of range", d.header.Width, d.header.Height))
	}

	d.seenHeader = true
	return nil
}

func (d *decoder) parseIDAT(b []byte) error {
	if !d.seenHeader {
		return FormatError("IDAT before IHDR")
	}

	w, h := uint64(d.header.Width), uint64(d.header.Height)
	expected := w*h*bytesPerPix + h

	// Refuse before inflating anything that couldn't possibly fit
	if expected > (uint64(len(b))+1)*maxDeflateRatio {
		return FormatError(fmt.Sprintf("bad data: %d compressed bytes can't hold a %dx%d image", len(b), w, h))
	}

	r, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return FormatError(fmt.Sprintf("bad data: %v", err))
	}
	defer r.Close()

	data, err := io.ReadAll(io.LimitReader(r, int64(expected)+1))
	if err != nil {
		return FormatError(fmt.Sprintf("bad data: %v", err))
	}

	pix, err := unfilter(data, int(w), int(h))
	if err != nil {
		return err
	}
	d.pix = append(d.pix, pix...)
	d.seenData = true

	return nil
}

func (d *decoder) decode(r io.Reader) error {
	d.r = r

	if err := d.checkSignature(); err != nil {
		return err
	}

	for {
		c, b, err := readChunk(d.r)
		if err != nil {
			return err
		}
		d.chunks = append(d.chunks, c)

		switch c.Kind() {
		case IHDR:
			err = d.parseIHDR(b)
		case IDAT:
			err = d.parseIDAT(b)
		case IEND:
			// Stop here, whatever follows is never read
			if !d.seenData {
				return FormatError("no IDAT chunk before IEND")
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// DecodeImage reads a carrier PNG from r, verifying every chunk, and returns
// the header, the chunks seen and the pixels.
func DecodeImage(r io.Reader) (*Image, error) {
	var d decoder
	if err := d.decode(r); err != nil {
		return nil, err
	}

	g := &Grid{
		Width: int(d.header.Width),
		Pix:   d.pix,
	}
	g.Height = len(d.pix) / g.stride()

	return &Image{
		Header: d.header,
		Chunks: d.chunks,
		Grid:   g,
	}, nil
}

// Decode reads a carrier PNG from r and returns the envelope it carries.
func Decode(r io.Reader) (*Envelope, error) {
	m, err := DecodeImage(r)
	if err != nil {
		return nil, err
	}

	e := new(Envelope)
	if err := e.UnmarshalBinary(m.Grid.Pix); err != nil {
		return nil, err
	}
	return e, nil
}
