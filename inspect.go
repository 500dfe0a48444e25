package pngify

import (
	"image/color"
	"io"

	"github.com/bodgit/pngify/carrier"
	"github.com/ericpauley/go-quantize/quantize"
)

// Report describes a carrier PNG without extracting its payload.
type Report struct {
	Header     carrier.Header
	Chunks     []carrier.Chunk
	Origin     string
	Size       int
	Compressed bool
	// Palette holds the dominant colours of the image, if requested
	Palette color.Palette
}

// Inspect decodes the PNG read from r and reports on its structure and the
// envelope it carries. If colors is positive the image is also reduced to a
// palette of at most that many colours.
func (p *Pngify) Inspect(r io.Reader, colors int) (*Report, error) {
	m, err := carrier.DecodeImage(r)
	if err != nil {
		return nil, err
	}

	var env carrier.Envelope
	if err := env.UnmarshalBinary(m.Grid.Pix); err != nil {
		return nil, err
	}

	report := &Report{
		Header:     m.Header,
		Chunks:     m.Chunks,
		Origin:     env.Origin,
		Size:       len(env.Payload),
		Compressed: env.Compressed,
	}

	if colors > 0 {
		q := quantize.MedianCutQuantizer{}
		report.Palette = q.Quantize(make(color.Palette, 0, colors), m.Grid)
	}

	p.logger.Debug().Int("chunks", len(report.Chunks)).Uint32("width", m.Header.Width).Uint32("height", m.Header.Height).Msg("Inspected")

	return report, nil
}
