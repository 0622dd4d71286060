package stdout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/hejijunhao/hierclass/internal/model"
	"github.com/hejijunhao/hierclass/internal/output"
)

// Format selects the rendering.
type Format int

const (
	// Table renders each side as a rounded table followed by a count summary.
	Table Format = iota
	// JSON encodes the whole partition as one JSON document.
	JSON
)

// Option configures an Output.
type Option func(*Output)

// WithWriter redirects output away from os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(o *Output) { o.w = w }
}

// WithLimit caps the rows shown per side in Table format. 0 shows all rows.
func WithLimit(n int) Option {
	return func(o *Output) { o.limit = n }
}

// Output prints partitions for a human at the terminal.
type Output struct {
	w         io.Writer
	verbosity output.Verbosity
	format    Format
	limit     int
}

// New creates a stdout Output.
func New(verbosity output.Verbosity, format Format, opts ...Option) *Output {
	o := &Output{w: os.Stdout, verbosity: verbosity, format: format}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Output) Write(_ context.Context, p model.Partition) error {
	if o.format == JSON {
		view := p
		view.Classified = o.formatAll(p.Classified)
		view.Unclassified = o.formatAll(p.Unclassified)
		enc := json.NewEncoder(o.w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(view); err != nil {
			return fmt.Errorf("stdout output: %w", err)
		}
		return nil
	}

	for _, half := range output.Halves(p) {
		if _, err := fmt.Fprintf(o.w, "%s (%d)\n%s\n", half.Side, len(half.Records), o.render(half.Records)); err != nil {
			return fmt.Errorf("stdout output: %w", err)
		}
	}
	_, err := fmt.Fprintln(o.w, summary(p))
	if err != nil {
		return fmt.Errorf("stdout output: %w", err)
	}
	return nil
}

func (o *Output) formatAll(records []model.PredictionRecord) []model.PredictionRecord {
	out := make([]model.PredictionRecord, len(records))
	for i, r := range records {
		out[i] = output.FormatRecord(r, o.verbosity)
	}
	return out
}

func (o *Output) render(records []model.PredictionRecord) string {
	cols := output.Columns(o.verbosity)
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	tw.AppendHeader(header)

	shown := records
	if o.limit > 0 && len(shown) > o.limit {
		shown = shown[:o.limit]
	}
	for _, r := range shown {
		cells := output.Row(r, o.verbosity)
		row := make(table.Row, len(cells))
		for i, c := range cells {
			row[i] = c
		}
		tw.AppendRow(row)
	}
	if hidden := len(records) - len(shown); hidden > 0 {
		tw.AppendFooter(table.Row{fmt.Sprintf("… %d more", hidden)})
	}

	configs := make([]table.ColumnConfig, 0, len(cols))
	for i := range cols {
		align := text.AlignLeft
		if i >= 3 {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func summary(p model.Partition) string {
	return fmt.Sprintf("version=%s threshold=%.2f classified=%d unclassified=%d total=%d",
		p.Version, p.Threshold, len(p.Classified), len(p.Unclassified), p.Len())
}

func (o *Output) Close() error {
	return nil
}
