package pngify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bodgit/pngify/carrier"
)

// DefaultWorkers is the number of files decoded concurrently by Extract
const DefaultWorkers = 10

// outputName picks a safe filename for the payload extracted from file
func outputName(origin, file string) string {
	name := filepath.Base(origin)
	switch name {
	case ".", "..", string(os.PathSeparator):
		base := filepath.Base(file)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return name
}

func isCarrierError(err error) bool {
	var fe carrier.FormatError
	var ie carrier.IntegrityError
	var ue carrier.UnsupportedError
	return errors.As(err, &fe) || errors.As(err, &ie) || errors.As(err, &ue)
}

func (p *Pngify) findFiles(ctx context.Context, base string) (<-chan string, <-chan error, error) {
	out := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		errc <- filepath.Walk(base, func(file string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}

			// Ignore any hidden files or directories
			if info.Name()[0] == '.' && file != base {
				if info.Mode().IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			// Ignore anything that isn't a normal file
			if !info.Mode().IsRegular() {
				return nil
			}

			select {
			case out <- file:
			case <-ctx.Done():
				return errors.New("walk cancelled")
			}

			return nil
		})
	}()
	return out, errc, nil
}

func (p *Pngify) extractFile(file, output string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	// Anything without the signature was never a carrier
	var sig [len(carrier.Signature)]byte
	if _, err := io.ReadFull(f, sig[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		return err
	}
	if !carrier.IsPNG(sig[:]) {
		return nil
	}

	b := new(bytes.Buffer)
	origin, err := p.Decode(b, io.MultiReader(bytes.NewReader(sig[:]), f))
	if err != nil {
		if isCarrierError(err) {
			p.logger.Warn().Err(err).Str("file", file).Msg("Skipping")
			return nil
		}
		return err
	}

	dir := output
	if dir == "" {
		dir = filepath.Dir(file)
	}
	target := filepath.Join(dir, outputName(origin, file))

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0666)
	if err != nil {
		if os.IsExist(err) {
			p.logger.Warn().Str("file", file).Str("target", target).Msg("Not overwriting existing file")
			return nil
		}
		return err
	}
	defer out.Close()

	if _, err := b.WriteTo(out); err != nil {
		return err
	}
	p.logger.Info().Str("file", file).Str("target", target).Msg("Extracted")

	return out.Close()
}

func (p *Pngify) extractWorker(ctx context.Context, in <-chan string, output string) (<-chan error, error) {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		for file := range in {
			if ctx.Err() != nil {
				return
			}
			if err := p.extractFile(file, output); err != nil {
				errc <- err
				return
			}
		}
	}()
	return errc, nil
}

func waitForPipeline(errs ...<-chan error) error {
	errc := mergeErrors(errs...)
	for err := range errc {
		if err != nil {
			return err
		}
	}
	return nil
}

func mergeErrors(cs ...<-chan error) <-chan error {
	var wg sync.WaitGroup
	out := make(chan error, len(cs))
	wg.Add(len(cs))
	for _, c := range cs {
		go func(c <-chan error) {
			for n := range c {
				out <- n
			}
			wg.Done()
		}(c)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// Extract walks path and recovers the payload from every carrier PNG found,
// writing each one under its original filename either next to the PNG or in
// output if set. Files that aren't carriers are skipped, as are payloads
// whose target already exists. Up to workers files are decoded at once.
func (p *Pngify) Extract(path, output string, workers int) error {
	dir, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	if output != "" {
		info, err := os.Stat(output)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return errors.New("not a directory")
		}
	}

	if workers < 1 {
		workers = DefaultWorkers
	}

	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	var errcList []<-chan error

	files, errc, err := p.findFiles(ctx, dir)
	if err != nil {
		return err
	}
	errcList = append(errcList, errc)

	for i := 0; i < workers; i++ {
		errc, err := p.extractWorker(ctx, files, output)
		if err != nil {
			return err
		}
		errcList = append(errcList, errc)
	}

	return waitForPipeline(errcList...)
}
