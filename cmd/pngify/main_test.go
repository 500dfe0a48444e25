package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/bodgit/pngify/carrier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func run(t *testing.T, stdin []byte, args ...string) ([]byte, error) {
	t.Helper()

	stdout := new(bytes.Buffer)
	app := newApp()
	app.Reader = bytes.NewReader(stdin)
	app.Writer = stdout
	app.ErrWriter = io.Discard
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.Run(append([]string{"pngify"}, args...))
	return stdout.Bytes(), err
}

func TestConvertFiles(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "notes.txt")
	png := filepath.Join(dir, "notes.png")
	out := filepath.Join(dir, "restored.txt")

	payload := bytes.Repeat([]byte("line of text\n"), 50)
	require.NoError(t, os.WriteFile(in, payload, 0666))

	_, err := run(t, nil, "--compress", "--width", "7", in, png)
	require.NoError(t, err)

	b, err := os.ReadFile(png)
	require.NoError(t, err)
	assert.True(t, carrier.IsPNG(b))

	_, err = run(t, nil, png, out)
	require.NoError(t, err)

	b, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, payload, b)

	stdout, err := run(t, nil, "inspect", png)
	require.NoError(t, err)
	assert.Contains(t, string(stdout), "Image:      7x")
	assert.Contains(t, string(stdout), "Origin:     notes.txt")
	assert.Contains(t, string(stdout), "Compressed: true")
}

func TestConvertStdio(t *testing.T) {
	png, err := run(t, []byte("hello"))
	require.NoError(t, err)
	assert.True(t, carrier.IsPNG(png))

	payload, err := run(t, png, "-", "-")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(payload))
}

func TestConvertFailure(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "broken.png")
	out := filepath.Join(dir, "out")

	require.NoError(t, os.WriteFile(in, []byte(carrier.Signature+"garbage"), 0666))

	_, err := run(t, nil, in, out)
	assert.Error(t, err)
	assert.NoFileExists(t, out)

	_, err = run(t, nil, "--level", "fastest", in, out)
	assert.Error(t, err)
	assert.NoFileExists(t, out)
}

func TestHistory(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "pngify.db")

	_, err := run(t, []byte("hello"), "--db", db)
	require.NoError(t, err)

	stdout, err := run(t, nil, "--db", db, "history")
	require.NoError(t, err)
	assert.Contains(t, string(stdout), "AAF4C61DDCC5E8A2DABEDE0F3B482CD9AEA9434D")
	assert.Contains(t, string(stdout), "<stdin>")
}
