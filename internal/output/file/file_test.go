package file

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hejijunhao/hierclass/internal/model"
	"github.com/hejijunhao/hierclass/internal/output"
)

func testRecord(id string, conf float64) model.PredictionRecord {
	return model.PredictionRecord{
		RecordID:           id,
		Category:           "electronica",
		Family:             "cables",
		CategoryConfidence: conf,
		FamilyConfidence:   conf,
		Confidence:         conf,
	}
}

func testPartition() model.Partition {
	return model.Partition{
		Classified:   []model.PredictionRecord{testRecord("a", 0.95), testRecord("b", 0.9)},
		Unclassified: []model.PredictionRecord{testRecord("c", 0.5)},
		Threshold:    0.86,
		Version:      "base",
		GeneratedAt:  time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC),
	}
}

func readLines(t *testing.T, path string) []model.PredictionRecord {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var out []model.PredictionRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r model.PredictionRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("invalid JSON line %q: %v", sc.Text(), err)
		}
		out = append(out, r)
	}
	return out
}

func TestWriteProducesBothFiles(t *testing.T) {
	dir := t.TempDir()
	out, err := New(dir, output.Full)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if err := out.Write(context.Background(), testPartition()); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	out.Close()

	classified := readLines(t, filepath.Join(dir, "classified_20261016T120000.000000000Z.ndjson"))
	if len(classified) != 2 || classified[0].RecordID != "a" || classified[1].RecordID != "b" {
		t.Fatalf("classified = %+v", classified)
	}
	unclassified := readLines(t, filepath.Join(dir, "unclassified_20261016T120000.000000000Z.ndjson"))
	if len(unclassified) != 1 || unclassified[0].RecordID != "c" {
		t.Fatalf("unclassified = %+v", unclassified)
	}
	if unclassified[0].FamilyConfidence != 0.5 {
		t.Error("Full verbosity should keep per-head confidences")
	}
	if got := out.Files(); len(got) != 2 {
		t.Errorf("Files() = %v", got)
	}
}

func TestWriteMinimalOmitsHeads(t *testing.T) {
	dir := t.TempDir()
	out, err := New(dir, output.Minimal, WithBufSize(16))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if err := out.Write(context.Background(), testPartition()); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	recs := readLines(t, filepath.Join(dir, "classified_20261016T120000.000000000Z.ndjson"))
	if recs[0].CategoryConfidence != 0 || recs[0].Confidence != 0.95 {
		t.Errorf("unexpected record %+v", recs[0])
	}
}

func TestWriteEmptyHalf(t *testing.T) {
	dir := t.TempDir()
	out, _ := New(dir, output.Minimal)
	p := testPartition()
	p.Unclassified = nil
	if err := out.Write(context.Background(), p); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, "unclassified_20261016T120000.000000000Z.ndjson"))
	if err != nil {
		t.Fatalf("empty half should still produce a file: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("size = %d, want 0", info.Size())
	}
}

func TestWriteCancelledLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	out, _ := New(dir, output.Minimal)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := out.Write(ctx, testPartition()); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("directory should be empty, got %d entries", len(entries))
	}
}

func TestWriteNeverReplacesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	out, _ := New(dir, output.Full)
	p := testPartition()
	if err := out.Write(context.Background(), p); err != nil {
		t.Fatalf("first Write error: %v", err)
	}

	again := p
	again.Classified = []model.PredictionRecord{testRecord("z", 0.99)}
	if err := out.Write(context.Background(), again); err == nil {
		t.Fatal("expected error when the target files already exist")
	}
	recs := readLines(t, filepath.Join(dir, "classified_20261016T120000.000000000Z.ndjson"))
	if len(recs) != 2 || recs[0].RecordID != "a" {
		t.Errorf("first run's table was modified: %+v", recs)
	}
	if len(out.Files()) != 2 {
		t.Errorf("Files() = %v, want the two files of the first run", out.Files())
	}
}

func TestDiscardRemovesPartitionFiles(t *testing.T) {
	dir := t.TempDir()
	out, _ := New(dir, output.Full)
	p := testPartition()
	if err := out.Write(context.Background(), p); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if err := out.Discard(p); err != nil {
		t.Fatalf("Discard error: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 || len(out.Files()) != 0 {
		t.Errorf("expected nothing left, got %d entries and files %v", len(entries), out.Files())
	}
}
