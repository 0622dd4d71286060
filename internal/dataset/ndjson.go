package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/rotisserie/eris"
)

const maxLineSize = 1 << 20

// ReadNDJSONFile reads one JSON object per line from path.
func ReadNDJSONFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, eris.Wrapf(err, "dataset: open %s", path)
	}
	defer f.Close()
	return ReadNDJSON(f)
}

// ReadNDJSON reads one JSON object per line. Columns are the union of keys in
// order of first appearance (keys within a line sorted). Blank lines are skipped.
// Scalar values are rendered as strings; nulls read as empty.
func ReadNDJSON(r io.Reader) (Table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	var (
		t       Table
		objects []map[string]any
		seen    = map[string]bool{}
		line    int
	)
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return Table{}, eris.Wrapf(err, "dataset: line %d", line)
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				t.Columns = append(t.Columns, k)
			}
		}
		objects = append(objects, obj)
	}
	if err := sc.Err(); err != nil {
		return Table{}, eris.Wrap(err, "dataset: read ndjson")
	}

	for _, obj := range objects {
		row := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			row[i] = scalar(obj[col])
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return fmt.Sprint(x)
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}

// WriteNDJSONFile saves t with one object per row keyed by column name.
func WriteNDJSONFile(path string, t Table) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "dataset: create %s", path)
	}
	w := bufio.NewWriter(f)
	if err := WriteNDJSON(w, t); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return eris.Wrapf(err, "dataset: flush %s", path)
	}
	return eris.Wrapf(f.Close(), "dataset: close %s", path)
}

// WriteNDJSON encodes t with one object per row keyed by column name.
func WriteNDJSON(w io.Writer, t Table) error {
	enc := json.NewEncoder(w)
	for _, r := range t.Rows {
		obj := make(map[string]string, len(t.Columns))
		for i, c := range t.Columns {
			obj[c] = Cell(r, i)
		}
		if err := enc.Encode(obj); err != nil {
			return eris.Wrap(err, "dataset: encode row")
		}
	}
	return nil
}
