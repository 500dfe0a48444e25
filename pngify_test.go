package pngify

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/bodgit/pngify/carrier"
	"github.com/bodgit/pngify/catalog"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPngify(t *testing.T, options ...func(*Pngify) error) *Pngify {
	t.Helper()
	p, err := New(zerolog.Nop(), options...)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestConvert(t *testing.T) {
	tables := map[string][]func(*Pngify) error{
		"defaults":   nil,
		"compressed": {SetCompress(true)},
		"width":      {SetWidth(33)},
		"level":      {SetCompressionLevel(carrier.BestSpeed), SetCompress(true)},
	}

	for name, options := range tables {
		t.Run(name, func(t *testing.T) {
			p := newPngify(t, options...)
			payload := bytes.Repeat([]byte("some file contents\n"), 100)

			png := new(bytes.Buffer)
			require.NoError(t, p.Convert(png, bytes.NewReader(payload), "notes.txt"))
			require.True(t, carrier.IsPNG(png.Bytes()))

			// Feeding the PNG back in goes the other way
			out := new(bytes.Buffer)
			require.NoError(t, p.Convert(out, bytes.NewReader(png.Bytes()), "ignored.png"))
			assert.Equal(t, payload, out.Bytes())
		})
	}
}

func TestConvertEmpty(t *testing.T) {
	p := newPngify(t)

	png := new(bytes.Buffer)
	require.NoError(t, p.Convert(png, bytes.NewReader(nil), "<stdin>"))

	out := new(bytes.Buffer)
	origin, err := p.Decode(out, bytes.NewReader(png.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "<stdin>", origin)
	assert.Zero(t, out.Len())
}

func TestConvertWidth(t *testing.T) {
	p := newPngify(t, SetWidth(7))

	png := new(bytes.Buffer)
	require.NoError(t, p.Convert(png, bytes.NewReader([]byte("hello")), "a.txt"))

	report, err := p.Inspect(bytes.NewReader(png.Bytes()), 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), report.Header.Width)
	assert.Equal(t, uint32(1), report.Header.Height)
}

func TestSetWidthInvalid(t *testing.T) {
	_, err := New(zerolog.Nop(), SetWidth(1))
	var ce carrier.ConfigError
	assert.ErrorAs(t, err, &ce)
}

func TestDecodeLogsOrigin(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(zerolog.New(&buf).Level(zerolog.InfoLevel))
	require.NoError(t, err)
	defer p.Close()

	png := new(bytes.Buffer)
	require.NoError(t, p.Encode(png, []byte("hello"), "a.txt"))
	assert.Zero(t, buf.Len(), "encoding logs nothing at info level")

	out := new(bytes.Buffer)
	origin, err := p.Decode(out, png)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", origin)
	assert.Equal(t, "hello", out.String())
	assert.Contains(t, buf.String(), `"origin":"a.txt"`)
	assert.Contains(t, buf.String(), "Original filename")
}

func TestDecodeErrors(t *testing.T) {
	p := newPngify(t)

	png := new(bytes.Buffer)
	require.NoError(t, p.Encode(png, []byte("hello"), "a.txt"))
	b := png.Bytes()
	b[len(b)-20] ^= 0x01

	out := new(bytes.Buffer)
	_, err := p.Decode(out, bytes.NewReader(b))
	var ie carrier.IntegrityError
	assert.ErrorAs(t, err, &ie)
	assert.Zero(t, out.Len())
}

func TestHistory(t *testing.T) {
	p := newPngify(t)
	_, err := p.History()
	assert.Error(t, err)

	p = newPngify(t, SetCatalog(filepath.Join(t.TempDir(), "pngify.db")))

	png := new(bytes.Buffer)
	require.NoError(t, p.Convert(png, bytes.NewReader([]byte("hello")), "a.txt"))
	require.NoError(t, p.Convert(new(bytes.Buffer), bytes.NewReader(png.Bytes()), "a.png"))

	entries, err := p.History()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "AAF4C61DDCC5E8A2DABEDE0F3B482CD9AEA9434D", entries[0].SHA1)
	assert.Equal(t, catalog.Encode, entries[0].Operation)
	assert.Equal(t, catalog.Decode, entries[1].Operation)
	for _, e := range entries {
		assert.Equal(t, "a.txt", e.Origin)
		assert.Equal(t, int64(5), e.Size)
	}
}

func TestInspect(t *testing.T) {
	p := newPngify(t, SetCompress(true))

	png := new(bytes.Buffer)
	require.NoError(t, p.Encode(png, bytes.Repeat([]byte{0x10, 0x20, 0x30}, 2000), "pixels.raw"))

	report, err := p.Inspect(bytes.NewReader(png.Bytes()), 4)
	require.NoError(t, err)

	assert.Equal(t, "pixels.raw", report.Origin)
	assert.Equal(t, 6000, report.Size)
	assert.True(t, report.Compressed)
	assert.Equal(t, uint32(160), report.Header.Width)
	require.Len(t, report.Chunks, 3)
	assert.Equal(t, carrier.IDAT, report.Chunks[1].Kind())
	assert.NotEmpty(t, report.Palette)
	assert.LessOrEqual(t, len(report.Palette), 4)

	_, err = p.Inspect(bytes.NewReader([]byte("not a png")), 4)
	var fe carrier.FormatError
	assert.ErrorAs(t, err, &fe)
}

func TestExtract(t *testing.T) {
	p := newPngify(t)
	dir := t.TempDir()

	files := map[string]string{
		"one.txt":      "first payload",
		"two.bin":      "second payload",
		"sub/deep.txt": "nested payload",
	}
	for origin, contents := range files {
		png := new(bytes.Buffer)
		require.NoError(t, p.Encode(png, []byte(contents), filepath.Base(origin)))

		target := filepath.Join(dir, filepath.Dir(origin), "carrier-"+filepath.Base(origin)+".png")
		require.NoError(t, os.MkdirAll(filepath.Dir(target), 0777))
		require.NoError(t, os.WriteFile(target, png.Bytes(), 0666))
	}

	// Noise that must be left alone
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plain.txt"), []byte("not a carrier"), 0666))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.png"), []byte(carrier.Signature+"garbage"), 0666))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tiny"), []byte{0x89}, 0666))

	require.NoError(t, p.Extract(dir, "", 3))

	for origin, contents := range files {
		b, err := os.ReadFile(filepath.Join(dir, origin))
		require.NoError(t, err)
		assert.Equal(t, contents, string(b))
	}

	b, err := os.ReadFile(filepath.Join(dir, "plain.txt"))
	require.NoError(t, err)
	assert.Equal(t, "not a carrier", string(b))

	// Running again doesn't clobber anything
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.txt"), []byte("edited"), 0666))
	require.NoError(t, p.Extract(dir, "", 0))
	b, err = os.ReadFile(filepath.Join(dir, "one.txt"))
	require.NoError(t, err)
	assert.Equal(t, "edited", string(b))
}

func TestExtractOutput(t *testing.T) {
	p := newPngify(t)
	dir, output := t.TempDir(), t.TempDir()

	png := new(bytes.Buffer)
	require.NoError(t, p.Encode(png, []byte("payload"), "../../escape.txt"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), png.Bytes(), 0666))

	png.Reset()
	require.NoError(t, p.Encode(png, []byte("anonymous"), ""))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), png.Bytes(), 0666))

	require.NoError(t, p.Extract(dir, output, 1))

	b, err := os.ReadFile(filepath.Join(output, "escape.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))

	b, err = os.ReadFile(filepath.Join(output, "b"))
	require.NoError(t, err)
	assert.Equal(t, "anonymous", string(b))

	assert.Error(t, p.Extract(dir, filepath.Join(dir, "a.png"), 1))
}

func TestOutputName(t *testing.T) {
	tables := []struct {
		origin, file, want string
	}{
		{"a.txt", "/x/carrier.png", "a.txt"},
		{"dir/a.txt", "/x/carrier.png", "a.txt"},
		{"../../etc/passwd", "/x/carrier.png", "passwd"},
		{"", "/x/carrier.png", "carrier"},
		{"..", "/x/carrier.png", "carrier"},
		{"/", "/x/carrier.png", "carrier"},
	}

	for _, table := range tables {
		assert.Equal(t, table.want, outputName(table.origin, table.file))
	}
}
