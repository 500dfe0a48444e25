package carrier

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// Grid is the carrier image. Pix holds Width*Height RGB pixels, three bytes
// each, without the per-scanline filter bytes.
type Grid struct {
	Width  int
	Height int
	Pix    []byte
}

// ColorModel implements image.Image.
func (g *Grid) ColorModel() color.Model { return color.RGBAModel }

// Bounds implements image.Image.
func (g *Grid) Bounds() image.Rectangle { return image.Rect(0, 0, g.Width, g.Height) }

// At implements image.Image.
func (g *Grid) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(g.Bounds())) {
		return color.RGBA{}
	}
	i := (y*g.Width + x) * bytesPerPix
	return color.RGBA{g.Pix[i], g.Pix[i+1], g.Pix[i+2], 0xff}
}

// stride is the length of an unfiltered scanline
func (g *Grid) stride() int {
	return g.Width * bytesPerPix
}

// Dimensions returns the width and height of the image needed to carry n
// envelope bytes. A width of zero picks a roughly square image whose width
// is a multiple of 160, any other width is used as is.
func Dimensions(n int, width uint32) (uint32, uint32, error) {
	if width == 0 {
		w := int(math.Ceil(math.Sqrt(float64(n) / bytesPerPix * widthBias)))
		if mod := w % widthStep; mod != 0 || w == 0 {
			w += widthStep - mod
		}
		if w > maxDimension {
			return 0, 0, ConfigError(fmt.Sprintf("%d bytes is too large to carry", n))
		}
		width = uint32(w)
	}

	if width > maxDimension {
		return 0, 0, ConfigError(fmt.Sprintf("width %d exceeds %d", width, maxDimension))
	}
	if width*bytesPerPix < envelopeHeader {
		return 0, 0, ConfigError(fmt.Sprintf("width %d can't hold the %d byte envelope header", width, envelopeHeader))
	}

	stride := uint64(width) * bytesPerPix
	height := (uint64(n) + stride - 1) / stride
	if height == 0 {
		height = 1
	}
	if height > maxDimension {
		return 0, 0, ConfigError(fmt.Sprintf("height %d exceeds %d", height, maxDimension))
	}

	return width, uint32(height), nil
}

// newGrid lays b out as pixels, padding the final scanline
func newGrid(b []byte, width uint32) (*Grid, error) {
	w, h, err := Dimensions(len(b), width)
	if err != nil {
		return nil, err
	}

	g := &Grid{
		Width:  int(w),
		Height: int(h),
	}
	g.Pix = make([]byte, g.stride()*g.Height)
	n := copy(g.Pix, b)
	for i := n; i < len(g.Pix); i++ {
		g.Pix[i] = paddingByte
	}

	return g, nil
}

// unfilter strips the filter byte from each of height scanlines in b. Only
// filter type 0 is supported.
func unfilter(b []byte, width, height int) ([]byte, error) {
	stride := width * bytesPerPix
	if len(b) != (stride+1)*height {
		return nil, FormatError(fmt.Sprintf("bad data: %d bytes for a %dx%d image", len(b), width, height))
	}

	pix := make([]byte, 0, stride*height)
	for y := 0; y < height; y++ {
		row := b[y*(stride+1) : (y+1)*(stride+1)]
		if row[0] != filterNone {
			return nil, UnsupportedError(fmt.Sprintf("filter type %d on scanline %d", row[0], y))
		}
		pix = append(pix, row[1:]...)
	}

	return pix, nil
}
