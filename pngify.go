/*
Package pngify hides arbitrary files inside PNG images and recovers them
again.

Data that doesn't already look like a PNG is wrapped in an image, a PNG is
unwrapped back into the original data. The heavy lifting is done by the
carrier package; this package adds the direction sniffing, logging, an
optional catalog of everything processed and batch extraction.
*/
package pngify

import (
	"bytes"
	"crypto/sha1"
	"errors"
	"fmt"
	"io"

	"github.com/bodgit/pngify/carrier"
	"github.com/bodgit/pngify/catalog"
	"github.com/rs/zerolog"
)

// Pngify holds the options and resources shared by every operation. It is
// safe for concurrent use.
type Pngify struct {
	logger   zerolog.Logger
	catalog  *catalog.Catalog
	encoder  carrier.Encoder
	compress bool
}

// SetWidth sets the width of generated images, zero picks one automatically.
func SetWidth(width uint32) func(*Pngify) error {
	return func(p *Pngify) error {
		if width != 0 {
			if _, _, err := carrier.Dimensions(0, width); err != nil {
				return err
			}
		}
		p.encoder.Width = width
		return nil
	}
}

// SetCompress enables compression of the payload before it is hidden.
func SetCompress(compress bool) func(*Pngify) error {
	return func(p *Pngify) error {
		p.compress = compress
		return nil
	}
}

// SetCompressionLevel sets the deflate level used when writing images.
func SetCompressionLevel(level carrier.CompressionLevel) func(*Pngify) error {
	return func(p *Pngify) error {
		p.encoder.CompressionLevel = level
		return nil
	}
}

// SetCatalog records every payload processed in the catalog stored in file.
func SetCatalog(file string) func(*Pngify) error {
	return func(p *Pngify) error {
		c, err := catalog.Open(file)
		if err != nil {
			return err
		}
		p.catalog = c
		return nil
	}
}

// New returns a Pngify configured with options that logs to logger.
func New(logger zerolog.Logger, options ...func(*Pngify) error) (*Pngify, error) {
	p := &Pngify{
		logger: logger,
	}
	for _, option := range options {
		if err := option(p); err != nil {
			p.Close()
			return nil, err
		}
	}
	return p, nil
}

// Close releases the catalog, if any.
func (p *Pngify) Close() error {
	if p.catalog != nil {
		return p.catalog.Close()
	}
	return nil
}

func (p *Pngify) record(payload []byte, origin string, compressed bool, op catalog.Operation) error {
	if p.catalog == nil {
		return nil
	}

	h := sha1.Sum(payload)
	sum := fmt.Sprintf("%X", h[:])
	id, err := p.catalog.Record(catalog.Entry{
		SHA1:       sum,
		Origin:     origin,
		Size:       int64(len(payload)),
		Compressed: compressed,
		Operation:  op,
	})
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	p.logger.Debug().Int64("id", id).Str("sha1", sum).Str("operation", string(op)).Msg("Recorded in catalog")

	return nil
}

// Encode hides payload, which came from a file named origin, in a PNG
// written to w.
func (p *Pngify) Encode(w io.Writer, payload []byte, origin string) error {
	env := &carrier.Envelope{
		Origin:     origin,
		Payload:    payload,
		Compressed: p.compress,
	}

	// Buffer so nothing is written on error
	b := new(bytes.Buffer)
	if err := p.encoder.Encode(b, env); err != nil {
		return err
	}
	p.logger.Debug().Str("origin", origin).Int("size", len(payload)).Bool("compressed", p.compress).Int("png", b.Len()).Msg("Encoded")

	if err := p.record(payload, origin, p.compress, catalog.Encode); err != nil {
		return err
	}

	_, err := b.WriteTo(w)
	return err
}

// Decode recovers the payload hidden in the PNG read from r, writing it to
// w. The name of the original file is logged and returned.
func (p *Pngify) Decode(w io.Writer, r io.Reader) (string, error) {
	env, err := carrier.Decode(r)
	if err != nil {
		return "", err
	}
	p.logger.Info().Str("origin", env.Origin).Msg("Original filename")
	p.logger.Debug().Int("size", len(env.Payload)).Bool("compressed", env.Compressed).Msg("Decoded")

	if err := p.record(env.Payload, env.Origin, env.Compressed, catalog.Decode); err != nil {
		return "", err
	}

	if _, err := w.Write(env.Payload); err != nil {
		return "", err
	}
	return env.Origin, nil
}

// Convert reads everything from r and either decodes it, if it starts with
// the PNG signature, or encodes it otherwise. origin names the input.
func (p *Pngify) Convert(w io.Writer, r io.Reader, origin string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	// Only non-PNG data is ever hidden
	if !carrier.IsPNG(b) {
		return p.Encode(w, b, origin)
	}

	_, err = p.Decode(w, bytes.NewReader(b))
	return err
}

// History returns everything recorded in the catalog.
func (p *Pngify) History() ([]catalog.Entry, error) {
	if p.catalog == nil {
		return nil, errors.New("no catalog configured")
	}
	return p.catalog.List()
}
