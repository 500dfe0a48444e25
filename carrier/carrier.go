/*
Package carrier implements a PNG container for arbitrary binary payloads.

The payload is wrapped in a small envelope recording its size, whether it is
compressed and the name of the file it came from. The envelope bytes are then
used verbatim as the pixels of an 8-bit truecolor image, three bytes per
pixel, padded to fill the last scanline with 0x80 bytes. Every scanline uses
filter type 0 and the image is written as a single IDAT chunk so the result
is a valid PNG that any viewer can display.

Only this narrow subset of PNG is understood when decoding; it is not a
general purpose PNG decoder.
*/
package carrier

import "github.com/klauspost/compress/zlib"

const (
	// Signature is the eight byte sequence every PNG datastream starts with
	Signature = "\x89PNG\r\n\x1a\n"

	bitDepth     = 8
	colorType    = 2 // truecolor, no alpha
	bytesPerPix  = 3
	ihdrLength   = 13
	filterNone   = 0
	paddingByte  = 0x80
	widthStep    = 160
	widthBias    = 1.6
	maxDimension = 1<<31 - 1

	// Deflate can't expand data by more than roughly this ratio
	maxDeflateRatio = 1032
)

// CompressionLevel indicates the deflate level used for both the image data
// and, when requested, the payload itself.
type CompressionLevel int

// Compression levels, mirroring image/png.
const (
	DefaultCompression CompressionLevel = 0
	NoCompression      CompressionLevel = -1
	BestSpeed          CompressionLevel = -2
	BestCompression    CompressionLevel = -3
)

func (l CompressionLevel) deflateLevel() int {
	switch l {
	case NoCompression:
		return zlib.NoCompression
	case BestSpeed:
		return zlib.BestSpeed
	case BestCompression:
		return zlib.BestCompression
	default:
		return zlib.DefaultCompression
	}
}

// IsPNG reports whether b starts with the PNG signature.
func IsPNG(b []byte) bool {
	return len(b) >= len(Signature) && string(b[:len(Signature)]) == Signature
}

// A FormatError reports that the input is not a valid carrier PNG or that
// the envelope inside it is malformed.
type FormatError string

func (e FormatError) Error() string { return "carrier: invalid format: " + string(e) }

// An IntegrityError reports a chunk whose CRC doesn't match its contents.
type IntegrityError string

func (e IntegrityError) Error() string { return "carrier: integrity check failed: " + string(e) }

// An UnsupportedError, or unsupported feature error, reports that the input
// uses a valid but unimplemented PNG feature such as a scanline filter other
// than None.
type UnsupportedError string

func (e UnsupportedError) Error() string { return "carrier: unsupported feature: " + string(e) }

// A ConfigError reports an encoder option that can't be honoured.
type ConfigError string

func (e ConfigError) Error() string { return "carrier: invalid config: " + string(e) }
