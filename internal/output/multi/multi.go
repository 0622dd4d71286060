// Package multi delivers one partition to several writers as a unit.
package multi

import (
	"context"
	"errors"
	"fmt"

	"github.com/hejijunhao/hierclass/internal/model"
	"github.com/hejijunhao/hierclass/internal/output"
)

// Multi writes a partition to every wrapped writer or, on failure, leaves the
// reversible ones as if nothing had been written. Writers implementing
// output.Discarder run first, in the order given; the rest (a terminal,
// for instance) run after them, since their output cannot be taken back.
type Multi struct {
	writers []output.Writer
}

// New creates a Multi over writers.
func New(writers ...output.Writer) *Multi {
	ordered := make([]output.Writer, 0, len(writers))
	var final []output.Writer
	for _, w := range writers {
		if _, ok := w.(output.Discarder); ok {
			ordered = append(ordered, w)
		} else {
			final = append(final, w)
		}
	}
	return &Multi{writers: append(ordered, final...)}
}

// Write stops at the first failing writer and discards p from every writer
// that already accepted it. Discard errors are joined to the write error.
func (m *Multi) Write(ctx context.Context, p model.Partition) error {
	for i, w := range m.writers {
		err := w.Write(ctx, p)
		if err == nil {
			continue
		}
		errs := []error{fmt.Errorf("writer %d of %d: %w", i+1, len(m.writers), err)}
		for _, done := range m.writers[:i] {
			if d, ok := done.(output.Discarder); ok {
				if derr := d.Discard(p); derr != nil {
					errs = append(errs, fmt.Errorf("discard: %w", derr))
				}
			}
		}
		return errors.Join(errs...)
	}
	return nil
}

// Close closes every writer and joins their errors.
func (m *Multi) Close() error {
	var errs []error
	for _, w := range m.writers {
		errs = append(errs, w.Close())
	}
	return errors.Join(errs...)
}
