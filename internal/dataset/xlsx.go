package dataset

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions selects the worksheet to read.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// ReadXLSX reads one worksheet. The first row is the header; fully empty rows
// are skipped.
func ReadXLSX(path string, opts XLSXOptions) (Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return Table{}, eris.Wrapf(err, "dataset: open %s", path)
	}
	sheet, err := getSheet(f, opts)
	if err != nil {
		return Table{}, err
	}
	if len(sheet.Rows) == 0 {
		return Table{}, eris.Errorf("dataset: sheet %q in %s is empty", sheet.Name, path)
	}

	t := Table{Columns: rowToStrings(sheet.Rows[0])}
	for _, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		if isBlank(cells) {
			continue
		}
		t.Rows = append(t.Rows, cells)
	}
	return t, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("dataset: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("dataset: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}

// WriteXLSX saves t as a single-sheet workbook.
func WriteXLSX(path string, t Table) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("data")
	if err != nil {
		return eris.Wrap(err, "dataset: add sheet")
	}
	header := sheet.AddRow()
	for _, c := range t.Columns {
		header.AddCell().SetString(c)
	}
	for _, r := range t.Rows {
		row := sheet.AddRow()
		for i := range t.Columns {
			row.AddCell().SetString(Cell(r, i))
		}
	}
	return eris.Wrapf(f.Save(path), "dataset: save %s", path)
}
