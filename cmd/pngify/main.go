package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bodgit/pngify"
	"github.com/bodgit/pngify/carrier"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

const stdinName = "<stdin>"

var levels = map[string]carrier.CompressionLevel{
	"default": carrier.DefaultCompression,
	"none":    carrier.NoCompression,
	"speed":   carrier.BestSpeed,
	"best":    carrier.BestCompression,
}

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}
}

func newLogger(c *cli.Context) zerolog.Logger {
	level := zerolog.InfoLevel
	if c.Bool("verbose") {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).Level(level).With().Timestamp().Logger()
}

func newPngify(c *cli.Context) (*pngify.Pngify, error) {
	level, ok := levels[c.String("level")]
	if !ok {
		return nil, fmt.Errorf("unknown compression level %q", c.String("level"))
	}

	options := []func(*pngify.Pngify) error{
		pngify.SetWidth(uint32(c.Uint("width"))),
		pngify.SetCompress(c.Bool("compress")),
		pngify.SetCompressionLevel(level),
	}
	if db := c.String("db"); db != "" {
		options = append(options, pngify.SetCatalog(db))
	}

	return pngify.New(newLogger(c), options...)
}

func convert(c *cli.Context) error {
	if c.NArg() > 2 {
		cli.ShowAppHelpAndExit(c, 1)
	}
	if c.Uint("width") > 1<<31-1 {
		return cli.NewExitError(fmt.Sprintf("width %d is too large", c.Uint("width")), 1)
	}

	p, err := newPngify(c)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer p.Close()

	var r io.Reader = c.App.Reader
	origin := stdinName
	if in := c.Args().Get(0); in != "" && in != "-" {
		f, err := os.Open(in)
		if err != nil {
			return cli.NewExitError(err, 1)
		}
		defer f.Close()
		r, origin = f, filepath.Base(in)
	}

	out := c.Args().Get(1)
	if out == "" || out == "-" {
		if err := p.Convert(c.App.Writer, r, origin); err != nil {
			return cli.NewExitError(err, 1)
		}
		return nil
	}

	// Don't create the output file until there's something to put in it
	b := new(bytes.Buffer)
	if err := p.Convert(b, r, origin); err != nil {
		return cli.NewExitError(err, 1)
	}

	f, err := os.Create(out)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer f.Close()

	if _, err := b.WriteTo(f); err != nil {
		return cli.NewExitError(err, 1)
	}

	if err := f.Close(); err != nil {
		return cli.NewExitError(err, 1)
	}

	return nil
}

func inspect(c *cli.Context) error {
	if c.NArg() < 1 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	p, err := newPngify(c)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer p.Close()

	f, err := os.Open(c.Args().First())
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer f.Close()

	report, err := p.Inspect(f, c.Int("colors"))
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	h := report.Header
	fmt.Fprintf(c.App.Writer, "Image:      %dx%d, bit depth %d, color type %d\n", h.Width, h.Height, h.BitDepth, h.ColorType)
	for _, chunk := range report.Chunks {
		fmt.Fprintf(c.App.Writer, "Chunk:      %s\n", chunk)
	}
	fmt.Fprintf(c.App.Writer, "Origin:     %s\n", report.Origin)
	fmt.Fprintf(c.App.Writer, "Size:       %d\n", report.Size)
	fmt.Fprintf(c.App.Writer, "Compressed: %t\n", report.Compressed)
	for _, color := range report.Palette {
		r, g, b, _ := color.RGBA()
		fmt.Fprintf(c.App.Writer, "Color:      #%02X%02X%02X\n", r>>8, g>>8, b>>8)
	}

	return nil
}

func extract(c *cli.Context) error {
	if c.NArg() < 1 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	p, err := newPngify(c)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer p.Close()

	if err := p.Extract(c.Args().First(), c.String("output"), c.Int("workers")); err != nil {
		return cli.NewExitError(err, 1)
	}

	return nil
}

func history(c *cli.Context) error {
	p, err := newPngify(c)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer p.Close()

	entries, err := p.History()
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	for _, e := range entries {
		fmt.Fprintf(c.App.Writer, "%s %-6s %s %10d %-5t %s\n", e.Created.Format(time.RFC3339), e.Operation, e.SHA1, e.Size, e.Compressed, e.Origin)
	}

	return nil
}

func newApp() *cli.App {
	app := cli.NewApp()

	app.Name = "pngify"
	app.Usage = "Inject and extract data from PNG files"
	app.Version = "1.0.0"
	app.ArgsUsage = "[INPUT [OUTPUT]]"

	app.Flags = []cli.Flag{
		&cli.UintFlag{
			Name:    "width",
			Aliases: []string{"w"},
			EnvVars: []string{"PNGIFY_WIDTH"},
			Usage:   "specify the width of the PNG",
		},
		&cli.BoolFlag{
			Name:    "compress",
			Aliases: []string{"c"},
			EnvVars: []string{"PNGIFY_COMPRESS"},
			Usage:   "compress data to be stored",
		},
		&cli.StringFlag{
			Name:  "level",
			Value: "default",
			Usage: "deflate level; default, none, speed or best",
		},
		&cli.StringFlag{
			Name:    "db",
			EnvVars: []string{"PNGIFY_DB"},
			Usage:   "path to catalog database",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "increase verbosity",
		},
	}

	app.Action = convert

	app.Commands = []*cli.Command{
		{
			Name:        "inspect",
			Usage:       "Describe a PNG and the data it carries",
			Description: "",
			ArgsUsage:   "FILE",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "colors",
					Value: 8,
					Usage: "number of dominant colors to report",
				},
			},
			Action: inspect,
		},
		{
			Name:        "extract",
			Usage:       "Extract data from every PNG below a directory",
			Description: "",
			ArgsUsage:   "DIRECTORY",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "output",
					Aliases: []string{"o"},
					Usage:   "write extracted files to `DIR`",
				},
				&cli.IntFlag{
					Name:  "workers",
					Value: pngify.DefaultWorkers,
					Usage: "number of files to decode at once",
				},
			},
			Action: extract,
		},
		{
			Name:   "history",
			Usage:  "List everything recorded in the catalog",
			Action: history,
		},
	}

	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
		logger.Fatal().Err(err).Msg("")
	}
}
