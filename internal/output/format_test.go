package output

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hejijunhao/hierclass/internal/model"
)

func baseRecord() model.PredictionRecord {
	return model.PredictionRecord{
		RecordID:           "P001",
		Category:           "electronica",
		Family:             "cables",
		CategoryConfidence: 0.9,
		FamilyConfidence:   0.8,
		Confidence:         0.85,
	}
}

func TestFormatRecordMinimal(t *testing.T) {
	r := FormatRecord(baseRecord(), Minimal)

	if r.CategoryConfidence != 0 || r.FamilyConfidence != 0 {
		t.Fatal("per-head confidences should be 0 at Minimal")
	}
	if r.Confidence != 0.85 {
		t.Fatal("overall confidence should be preserved")
	}
	if r.Family != "cables" {
		t.Fatal("Family should be preserved")
	}
}

func TestFormatRecordFull(t *testing.T) {
	r := FormatRecord(baseRecord(), Full)
	if r != baseRecord() {
		t.Fatalf("Full should keep every field, got %+v", r)
	}
}

func TestFormatRecordMinimalJSONOmitsHeads(t *testing.T) {
	data, err := json.Marshal(FormatRecord(baseRecord(), Minimal))
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["category_confidence"]; ok {
		t.Error("category_confidence should be omitted at Minimal")
	}
	if _, ok := m["family_confidence"]; ok {
		t.Error("family_confidence should be omitted at Minimal")
	}
	for _, key := range []string{"id", "category", "family", "confidence"} {
		if _, ok := m[key]; !ok {
			t.Errorf("%s should be present", key)
		}
	}
}

func TestRowMatchesColumns(t *testing.T) {
	for _, v := range []Verbosity{Minimal, Full} {
		if got, want := len(Row(baseRecord(), v)), len(Columns(v)); got != want {
			t.Errorf("verbosity %d: row has %d cells, header %d", v, got, want)
		}
	}
	row := Row(baseRecord(), Full)
	if row[3] != "0.8500" || row[5] != "0.8000" {
		t.Errorf("unexpected row %v", row)
	}
}

func TestParseVerbosity(t *testing.T) {
	if v, err := ParseVerbosity("FULL"); err != nil || v != Full {
		t.Errorf("ParseVerbosity(FULL) = %v, %v", v, err)
	}
	if v, err := ParseVerbosity(""); err != nil || v != Minimal {
		t.Errorf("ParseVerbosity(\"\") = %v, %v", v, err)
	}
	if _, err := ParseVerbosity("loud"); err == nil {
		t.Error("expected error for unknown verbosity")
	}
}

func TestFileName(t *testing.T) {
	ts := time.Date(2026, 10, 16, 8, 30, 5, 0, time.FixedZone("CEST", 2*3600))
	got := FileName(Unclassified, ts, "xlsx")
	if want := "unclassified_20261016T063005.000000000Z.xlsx"; got != want {
		t.Errorf("FileName = %q, want %q", got, want)
	}
}

func TestFileNameKeepsSubSecondRunsApart(t *testing.T) {
	ts := time.Date(2026, 10, 16, 8, 30, 5, 0, time.UTC)
	a := FileName(Classified, ts, "ndjson")
	b := FileName(Classified, ts.Add(time.Millisecond), "ndjson")
	if a == b {
		t.Errorf("runs 1ms apart share the name %q", a)
	}
}

func TestPublishRefusesToReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "classified.ndjson")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Publish(tmp, path); !errors.Is(err, fs.ErrExist) {
		t.Fatalf("Publish over existing file: got %v, want fs.ErrExist", err)
	}
	if got, _ := os.ReadFile(path); string(got) != "old" {
		t.Errorf("existing file replaced: %q", got)
	}
	if _, err := os.Stat(tmp); !errors.Is(err, fs.ErrNotExist) {
		t.Error("temporary file should be removed")
	}
}

func TestHalvesOrder(t *testing.T) {
	p := model.Partition{
		Classified:   []model.PredictionRecord{baseRecord()},
		Unclassified: nil,
	}
	h := Halves(p)
	if len(h) != 2 || h[0].Side != Classified || h[1].Side != Unclassified {
		t.Fatalf("unexpected halves %+v", h)
	}
	if len(h[0].Records) != 1 {
		t.Error("classified half should hold one record")
	}
}
