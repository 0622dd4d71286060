// Package xlsx writes inference partitions as spreadsheet workbooks, one per side.
package xlsx

import (
	"context"
	"os"
	"slices"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/hejijunhao/hierclass/internal/model"
	"github.com/hejijunhao/hierclass/internal/output"
)

// SheetName is the worksheet every workbook holds.
const SheetName = "predictions"

// Output writes classified_<ts>.xlsx and unclassified_<ts>.xlsx into a directory.
type Output struct {
	mu        sync.Mutex
	dir       string
	verbosity output.Verbosity
	written   []string
}

// New creates an xlsx output rooted at dir, creating it if needed.
func New(dir string, verbosity output.Verbosity) (*Output, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "xlsx output: create %s", dir)
	}
	return &Output{dir: dir, verbosity: verbosity}, nil
}

// Write builds both workbooks in memory before saving either, and removes the
// first if the second cannot be saved.
func (o *Output) Write(ctx context.Context, p model.Partition) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	halves := output.Halves(p)
	books := make([]*xlsx.File, len(halves))
	for i, half := range halves {
		f, err := o.workbook(half.Records)
		if err != nil {
			return err
		}
		books[i] = f
	}

	var saved []string
	paths := output.Paths(o.dir, p, "xlsx")
	for i := range halves {
		if err := ctx.Err(); err != nil {
			removeAll(saved)
			return err
		}
		path := paths[i]
		tmp := path + ".tmp"
		if err := books[i].Save(tmp); err != nil {
			os.Remove(tmp)
			removeAll(saved)
			return eris.Wrapf(err, "xlsx output: save %s", path)
		}
		if err := output.Publish(tmp, path); err != nil {
			removeAll(saved)
			return eris.Wrap(err, "xlsx output")
		}
		saved = append(saved, path)
	}
	o.written = append(o.written, saved...)
	return nil
}

func (o *Output) workbook(records []model.PredictionRecord) (*xlsx.File, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx output: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range output.Columns(o.verbosity) {
		header.AddCell().SetString(col)
	}
	for _, r := range records {
		row := sheet.AddRow()
		row.AddCell().SetString(r.RecordID)
		row.AddCell().SetString(r.Category)
		row.AddCell().SetString(r.Family)
		row.AddCell().SetFloat(r.Confidence)
		if o.verbosity == output.Full {
			row.AddCell().SetFloat(r.CategoryConfidence)
			row.AddCell().SetFloat(r.FamilyConfidence)
		}
	}
	return f, nil
}

func removeAll(paths []string) {
	for _, p := range paths {
		os.Remove(p)
	}
}

// Discard removes the workbooks written for p.
func (o *Output) Discard(p model.Partition) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	paths := output.Paths(o.dir, p, "xlsx")
	removeAll(paths)
	o.written = slices.DeleteFunc(o.written, func(w string) bool { return slices.Contains(paths, w) })
	return nil
}

// Files returns the paths written so far, in write order.
func (o *Output) Files() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.written...)
}

// Close is a no-op; every Write saves its own workbooks.
func (o *Output) Close() error {
	return nil
}
