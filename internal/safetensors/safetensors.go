// Package safetensors reads and writes the safetensors tensor container:
// an 8-byte little-endian header length, a JSON header, then raw tensor bytes.
package safetensors

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
)

// Tensor is a dense row-major tensor. Data is always held as float64; DType
// controls the on-disk width ("F32" or "F64").
type Tensor struct {
	DType string
	Shape []int
	Data  []float64
}

type tensorMeta struct {
	Dtype       string `json:"dtype"`
	Shape       []int  `json:"shape"`
	DataOffsets [2]int `json:"data_offsets"`
}

// ReadFile parses a safetensors file.
func ReadFile(path string) (map[string]Tensor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("safetensors: %w", err)
	}
	return Parse(data)
}

// Parse decodes every tensor in data. The "__metadata__" header entry is skipped.
func Parse(data []byte) (map[string]Tensor, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("safetensors: file too small: %d bytes", len(data))
	}

	headerLen := binary.LittleEndian.Uint64(data[:8])
	if headerLen > uint64(len(data)-8) {
		return nil, fmt.Errorf("safetensors: header length %d exceeds file size", headerLen)
	}

	var header map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+headerLen], &header); err != nil {
		return nil, fmt.Errorf("safetensors: failed to parse header: %w", err)
	}

	base := int(8 + headerLen)
	out := make(map[string]Tensor, len(header))
	for name, raw := range header {
		if name == "__metadata__" {
			continue
		}
		var meta tensorMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: failed to parse metadata: %w", name, err)
		}

		width, err := dtypeWidth(meta.Dtype)
		if err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
		}
		payload := len(data) - base
		lo, hi := meta.DataOffsets[0], meta.DataOffsets[1]
		if lo < 0 || hi < lo || hi > payload {
			return nil, fmt.Errorf("safetensors: tensor %q: data offsets [%d:%d] outside payload of %d bytes", name, lo, hi, payload)
		}
		n, err := elementCount(meta.Shape, payload)
		if err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
		}
		if hi-lo != n*width {
			return nil, fmt.Errorf("safetensors: tensor %q: data size %d doesn't match shape %v", name, hi-lo, meta.Shape)
		}
		start, end := base+lo, base+hi

		values := make([]float64, n)
		buf := data[start:end]
		for i := range values {
			if width == 4 {
				values[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:])))
			} else {
				values[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
			}
		}
		out[name] = Tensor{DType: meta.Dtype, Shape: meta.Shape, Data: values}
	}
	return out, nil
}

// Write encodes tensors to w. Tensor names are laid out in sorted order so equal
// inputs produce identical bytes.
func Write(w io.Writer, tensors map[string]Tensor) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]tensorMeta, len(names))
	var body bytes.Buffer
	for _, name := range names {
		t := tensors[name]
		dtype := t.DType
		if dtype == "" {
			dtype = "F64"
		}
		width, err := dtypeWidth(dtype)
		if err != nil {
			return fmt.Errorf("safetensors: tensor %q: %w", name, err)
		}
		if n := numElements(t.Shape); n != len(t.Data) {
			return fmt.Errorf("safetensors: tensor %q: shape %v holds %d values, got %d", name, t.Shape, n, len(t.Data))
		}

		start := body.Len()
		var scratch [8]byte
		for _, v := range t.Data {
			if width == 4 {
				binary.LittleEndian.PutUint32(scratch[:4], math.Float32bits(float32(v)))
				body.Write(scratch[:4])
			} else {
				binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(v))
				body.Write(scratch[:])
			}
		}
		header[name] = tensorMeta{Dtype: dtype, Shape: t.Shape, DataOffsets: [2]int{start, body.Len()}}
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("safetensors: encode header: %w", err)
	}
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerJSON)))
	for _, chunk := range [][]byte{lenBuf[:], headerJSON, body.Bytes()} {
		if _, err := w.Write(chunk); err != nil {
			return fmt.Errorf("safetensors: write: %w", err)
		}
	}
	return nil
}

func dtypeWidth(dtype string) (int, error) {
	switch dtype {
	case "F32":
		return 4, nil
	case "F64":
		return 8, nil
	default:
		return 0, fmt.Errorf("unsupported dtype %s", dtype)
	}
}

// elementCount multiplies out shape, rejecting negative dims and products
// larger than limit.
func elementCount(shape []int, limit int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("negative dimension in shape %v", shape)
		}
		if d != 0 && n > limit/d {
			return 0, fmt.Errorf("shape %v exceeds file size", shape)
		}
		n *= d
	}
	return n, nil
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
