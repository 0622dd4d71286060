package safetensors

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteParseRoundTrip(t *testing.T) {
	in := map[string]Tensor{
		"head.weight": {DType: "F64", Shape: []int{2, 3}, Data: []float64{1, 2, 3, 4, 5, 6.125}},
		"head.bias":   {DType: "F32", Shape: []int{2}, Data: []float64{0.5, -1.5}},
	}

	var buf bytes.Buffer
	if err := Write(&buf, in); err != nil {
		t.Fatalf("Write: %v", err)
	}

	out, err := Parse(buf.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 tensors, got %d", len(out))
	}

	w := out["head.weight"]
	if w.DType != "F64" || len(w.Shape) != 2 || w.Shape[0] != 2 || w.Shape[1] != 3 {
		t.Fatalf("unexpected weight meta: %+v", w)
	}
	for i, v := range in["head.weight"].Data {
		if w.Data[i] != v {
			t.Errorf("weight[%d] = %v, want %v", i, w.Data[i], v)
		}
	}
	b := out["head.bias"]
	if b.Data[0] != 0.5 || b.Data[1] != -1.5 {
		t.Errorf("bias = %v", b.Data)
	}
}

func TestWriteDeterministic(t *testing.T) {
	in := map[string]Tensor{
		"a": {Shape: []int{1}, Data: []float64{1}},
		"b": {Shape: []int{1}, Data: []float64{2}},
		"c": {Shape: []int{1}, Data: []float64{3}},
	}
	var first, second bytes.Buffer
	if err := Write(&first, in); err != nil {
		t.Fatal(err)
	}
	if err := Write(&second, in); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("two writes of the same tensors differ")
	}
}

func TestWriteShapeMismatch(t *testing.T) {
	err := Write(&bytes.Buffer{}, map[string]Tensor{"x": {Shape: []int{2, 2}, Data: []float64{1, 2, 3}}})
	if err == nil {
		t.Fatal("expected shape mismatch error")
	}
}

func TestParseTruncated(t *testing.T) {
	if _, err := Parse([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for file shorter than header length")
	}

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], 1000)
	if _, err := Parse(append(lenBuf[:], []byte("{}")...)); err == nil {
		t.Error("expected error for header length past end of file")
	}
}

func TestParseHugeHeaderLength(t *testing.T) {
	data := bytes.Repeat([]byte{0xff}, 8)
	if _, err := Parse(data); err == nil {
		t.Error("expected error for header length near max uint64")
	}
}

func TestParseRejectsCorruptMetadata(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"negative dim", `{"x":{"dtype":"F32","shape":[-2,-2],"data_offsets":[0,16]}}`},
		{"negative offset", `{"x":{"dtype":"F32","shape":[1],"data_offsets":[-4,0]}}`},
		{"reversed offsets", `{"x":{"dtype":"F32","shape":[1],"data_offsets":[4,0]}}`},
		{"offset past payload", `{"x":{"dtype":"F32","shape":[1],"data_offsets":[9223372036854775800,9223372036854775804]}}`},
		{"huge shape", `{"x":{"dtype":"F64","shape":[4294967296,4294967296],"data_offsets":[0,4]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var lenBuf [8]byte
			binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(tt.header)))
			data := append(append(lenBuf[:], tt.header...), 0, 0, 0, 0)
			if _, err := Parse(data); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestParseBadDtype(t *testing.T) {
	header := []byte(`{"x":{"dtype":"I8","shape":[1],"data_offsets":[0,1]}}`)
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(header)))
	data := append(append(lenBuf[:], header...), 0)
	if _, err := Parse(data); err == nil {
		t.Error("expected unsupported dtype error")
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.safetensors")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := Write(f, map[string]Tensor{"linear.weight": {DType: "F32", Shape: []int{1, 2}, Data: []float64{3, 4}}}); err != nil {
		t.Fatal(err)
	}
	f.Close()

	out, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got := out["linear.weight"].Data; got[0] != 3 || got[1] != 4 {
		t.Errorf("unexpected data %v", got)
	}
}
