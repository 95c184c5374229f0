package wave

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"

	"github.com/gabriel-vasile/mimetype"
)

type options struct {
	progress io.Writer
}

// Option configures Open.
type Option func(*options)

// WithProgress copies every raw byte read from the file to w, typically a
// progress bar.
func WithProgress(w io.Writer) Option {
	return func(o *options) { o.progress = w }
}

// Open loads a waveform file, sniffing its content to pick a decoder.
func Open(path string, opts ...Option) (*Waveform, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open waveform: %w", err)
	}
	defer f.Close()

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return nil, fmt.Errorf("detect waveform type: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind waveform: %w", err)
	}

	var r io.Reader = f
	if o.progress != nil {
		r = io.TeeReader(r, o.progress)
	}

	switch {
	case isText(mt):
	case mt.Is("application/gzip"):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open gzip waveform: %w", err)
		}
		defer gz.Close()
		r = gz
	default:
		return nil, fmt.Errorf("%w: %s is %s", ErrUnsupportedFormat, path, mt.String())
	}

	wf, err := Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return wf, nil
}

// isText accepts text/plain and anything mimetype files under it.
func isText(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
