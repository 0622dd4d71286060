package dataset

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hejijunhao/hierclass/internal/model"
)

// Accepted header names per field. The first match wins.
var (
	idColumns       = []string{"id", "identifier", "codigo"}
	textColumns     = []string{"text", "descripcion", "description"}
	categoryColumns = []string{"category", "categoria"}
	familyColumns   = []string{"family", "familia"}
)

func lookup(t Table, names []string) int {
	for _, n := range names {
		if i := t.Index(n); i >= 0 {
			return i
		}
	}
	return -1
}

func requireColumn(t Table, field string, names []string) (int, error) {
	i := lookup(t, names)
	if i < 0 {
		return -1, &model.SchemaError{Reason: fmt.Sprintf("missing %s column (accepted: %s)", field, strings.Join(names, ", "))}
	}
	return i, nil
}

// rowID returns the id cell, or the 1-based row number when there is no id
// column or the cell is empty.
func rowID(row []string, idCol, n int) string {
	if id := Cell(row, idCol); id != "" {
		return id
	}
	return strconv.Itoa(n + 1)
}

// Labeled converts t into training records. The text, category and family
// columns are required and must be non-empty in every row.
func Labeled(t Table) ([]model.LabeledRecord, error) {
	textCol, err := requireColumn(t, "text", textColumns)
	if err != nil {
		return nil, err
	}
	catCol, err := requireColumn(t, "category", categoryColumns)
	if err != nil {
		return nil, err
	}
	famCol, err := requireColumn(t, "family", familyColumns)
	if err != nil {
		return nil, err
	}
	idCol := lookup(t, idColumns)

	out := make([]model.LabeledRecord, 0, len(t.Rows))
	for n, row := range t.Rows {
		rec := model.LabeledRecord{
			ID:       rowID(row, idCol, n),
			Text:     strings.TrimSpace(Cell(row, textCol)),
			Category: strings.TrimSpace(Cell(row, catCol)),
			Family:   strings.TrimSpace(Cell(row, famCol)),
		}
		switch {
		case rec.Text == "":
			return nil, &model.SchemaError{Record: rec.ID, Reason: fmt.Sprintf("row %d: empty text", n+1)}
		case rec.Category == "":
			return nil, &model.SchemaError{Record: rec.ID, Reason: fmt.Sprintf("row %d: empty category", n+1)}
		case rec.Family == "":
			return nil, &model.SchemaError{Record: rec.ID, Reason: fmt.Sprintf("row %d: empty family", n+1)}
		}
		out = append(out, rec)
	}
	return out, nil
}

// Inputs converts t into inference records. Only the text column is required;
// rows with empty text are kept and classify with low confidence.
func Inputs(t Table) ([]model.InputRecord, error) {
	textCol, err := requireColumn(t, "text", textColumns)
	if err != nil {
		return nil, err
	}
	idCol := lookup(t, idColumns)

	out := make([]model.InputRecord, len(t.Rows))
	for n, row := range t.Rows {
		out[n] = model.InputRecord{ID: rowID(row, idCol, n), Text: strings.TrimSpace(Cell(row, textCol))}
	}
	return out, nil
}

// LoadLabeled reads path and converts it with Labeled.
func LoadLabeled(path string) ([]model.LabeledRecord, error) {
	t, err := ReadTable(path)
	if err != nil {
		return nil, err
	}
	return Labeled(t)
}

// LoadInputs reads path and converts it with Inputs.
func LoadInputs(path string) ([]model.InputRecord, error) {
	t, err := ReadTable(path)
	if err != nil {
		return nil, err
	}
	return Inputs(t)
}
