package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/hejijunhao/hierclass/internal/model"
	"github.com/hejijunhao/hierclass/internal/output"
)

const defaultBufSize = 64 * 1024 // 64KB

// Option configures a file Output.
type Option func(*Output)

// WithBufSize sets the bufio.Writer buffer size. Default: 64KB.
func WithBufSize(bytes int) Option {
	return func(o *Output) { o.bufSize = bytes }
}

// Output writes each partition as two NDJSON files in a directory:
// classified_<ts>.ndjson and unclassified_<ts>.ndjson.
type Output struct {
	mu        sync.Mutex
	dir       string
	verbosity output.Verbosity
	bufSize   int
	written   []string
}

// New creates a file output rooted at dir, creating it if needed.
func New(dir string, verbosity output.Verbosity, opts ...Option) (*Output, error) {
	o := &Output{
		dir:       dir,
		verbosity: verbosity,
		bufSize:   defaultBufSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file output: create %s: %w", dir, err)
	}
	return o, nil
}

// Write encodes both halves of p. Each file is written under a temporary name and
// published once complete; if either half fails, neither file is left behind.
func (o *Output) Write(ctx context.Context, p model.Partition) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var published []string
	paths := output.Paths(o.dir, p, "ndjson")
	for i, half := range output.Halves(p) {
		if err := ctx.Err(); err != nil {
			removeAll(published)
			return err
		}
		path := paths[i]
		if err := o.writeHalf(path, half.Records); err != nil {
			removeAll(published)
			return err
		}
		published = append(published, path)
	}
	o.written = append(o.written, published...)
	return nil
}

func (o *Output) writeHalf(path string, records []model.PredictionRecord) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("file output: open %s: %w", tmp, err)
	}
	w := bufio.NewWriterSize(f, o.bufSize)
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(output.FormatRecord(r, o.verbosity)); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("file output: marshal: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("file output: flush: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("file output: close: %w", err)
	}
	if err := output.Publish(tmp, path); err != nil {
		return fmt.Errorf("file output: %w", err)
	}
	return nil
}

func removeAll(paths []string) {
	for _, p := range paths {
		os.Remove(p) // best effort
	}
}

// Discard removes the files written for p.
func (o *Output) Discard(p model.Partition) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.written = discard(o.written, output.Paths(o.dir, p, "ndjson"))
	return nil
}

// discard removes paths from disk and returns written without them.
func discard(written, paths []string) []string {
	removeAll(paths)
	return slices.DeleteFunc(written, func(w string) bool { return slices.Contains(paths, w) })
}

// Files returns the paths written so far, in write order.
func (o *Output) Files() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.written...)
}

// Close is a no-op; every Write closes its own files.
func (o *Output) Close() error {
	return nil
}
