// Package dataset loads labeled and unlabeled records from spreadsheets and
// NDJSON files. Both formats are read into a Table first: a header naming the
// columns and the rows as strings.
package dataset

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

// Table is a header plus string rows. Rows may be shorter than the header;
// missing cells read as empty.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Index returns the position of col (case-insensitive, trimmed) or -1.
func (t Table) Index(col string) int {
	want := normalizeHeader(col)
	for i, c := range t.Columns {
		if normalizeHeader(c) == want {
			return i
		}
	}
	return -1
}

// Cell returns row[i], or "" when the row is short or i is negative.
func Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// Clone returns a deep copy.
func (t Table) Clone() Table {
	rows := make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = slices.Clone(r)
	}
	return Table{Columns: slices.Clone(t.Columns), Rows: rows}
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ReadTable loads path based on its extension: .xlsx, or .ndjson/.jsonl.
func ReadTable(path string) (Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(path, XLSXOptions{})
	case ".ndjson", ".jsonl":
		return ReadNDJSONFile(path)
	default:
		return Table{}, eris.Errorf("dataset: unsupported file type %q (want .xlsx, .ndjson, or .jsonl)", filepath.Ext(path))
	}
}

// WriteTable saves t based on the extension of path.
func WriteTable(path string, t Table) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return WriteXLSX(path, t)
	case ".ndjson", ".jsonl":
		return WriteNDJSONFile(path, t)
	default:
		return eris.Errorf("dataset: unsupported file type %q (want .xlsx, .ndjson, or .jsonl)", filepath.Ext(path))
	}
}
