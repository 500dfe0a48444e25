package carrier

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Encoder configures encoding of carrier PNGs.
type Encoder struct {
	// Width of the image in pixels. Zero picks a width automatically
	Width uint32

	CompressionLevel CompressionLevel
}

type encoder struct {
	w     io.Writer
	level CompressionLevel
}

func (e *encoder) writeIHDR(g *Grid) error {
	var tmp [ihdrLength]byte
	binary.BigEndian.PutUint32(tmp[0:4], uint32(g.Width))
	binary.BigEndian.PutUint32(tmp[4:8], uint32(g.Height))
	tmp[8] = bitDepth
	tmp[9] = colorType
	tmp[10] = 0 // deflate
	tmp[11] = 0 // adaptive filtering, always type 0 in practice
	tmp[12] = 0 // no interlace
	return writeChunk(e.w, "IHDR", tmp[:])
}

func (e *encoder) writeIDAT(g *Grid) error {
	b := new(bytes.Buffer)
	zw, err := zlib.NewWriterLevel(b, e.level.deflateLevel())
	if err != nil {
		return err
	}

	// Each scanline is prefixed with filter type 0
	stride := g.stride()
	row := make([]byte, stride+1)
	for y := 0; y < g.Height; y++ {
		row[0] = filterNone
		copy(row[1:], g.Pix[y*stride:(y+1)*stride])
		if _, err := zw.Write(row); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}

	return writeChunk(e.w, "IDAT", b.Bytes())
}

func (e *encoder) encode(g *Grid) error {
	if _, err := io.WriteString(e.w, Signature); err != nil {
		return err
	}
	if err := e.writeIHDR(g); err != nil {
		return err
	}
	if err := e.writeIDAT(g); err != nil {
		return err
	}
	return writeChunk(e.w, "IEND", nil)
}

// Encode writes env to w as a carrier PNG. Nothing is written if the options
// or the envelope are invalid.
func (enc *Encoder) Encode(w io.Writer, env *Envelope) error {
	b, err := env.marshal(enc.CompressionLevel)
	if err != nil {
		return err
	}

	g, err := newGrid(b, enc.Width)
	if err != nil {
		return err
	}

	e := encoder{
		w:     w,
		level: enc.CompressionLevel,
	}

	return e.encode(g)
}

// Encode writes payload to w as a carrier PNG using the default options.
func Encode(w io.Writer, origin string, payload []byte) error {
	var e Encoder
	return e.Encode(w, &Envelope{Origin: origin, Payload: payload})
}
