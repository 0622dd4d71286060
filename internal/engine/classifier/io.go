package classifier

import (
	"fmt"
	"io"

	"github.com/hejijunhao/hierclass/internal/model"
	"github.com/hejijunhao/hierclass/internal/safetensors"
)

const (
	tensorCategoryW = "category.weight"
	tensorCategoryB = "category.bias"
	tensorFamilyW   = "family.weight"
	tensorFamilyB   = "family.bias"
)

// Write stores the parameters as F64 safetensors.
func (m *Model) Write(w io.Writer) error {
	return safetensors.Write(w, map[string]safetensors.Tensor{
		tensorCategoryW: {DType: "F64", Shape: []int{m.NumCategories, m.Dim}, Data: m.CategoryW},
		tensorCategoryB: {DType: "F64", Shape: []int{m.NumCategories}, Data: m.CategoryB},
		tensorFamilyW:   {DType: "F64", Shape: []int{m.NumFamilies, m.FamilyIn()}, Data: m.FamilyW},
		tensorFamilyB:   {DType: "F64", Shape: []int{m.NumFamilies}, Data: m.FamilyB},
	})
}

// Load reads parameters written by Write and checks that the four tensors agree
// with each other.
func Load(path string) (*Model, error) {
	tensors, err := safetensors.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}

	get := func(name string, rank int) (safetensors.Tensor, error) {
		t, ok := tensors[name]
		if !ok {
			return t, fmt.Errorf("classifier: tensor %q missing from %s", name, path)
		}
		if len(t.Shape) != rank {
			return t, fmt.Errorf("classifier: tensor %q has shape %v, want rank %d", name, t.Shape, rank)
		}
		return t, nil
	}
	cw, err := get(tensorCategoryW, 2)
	if err != nil {
		return nil, err
	}
	cb, err := get(tensorCategoryB, 1)
	if err != nil {
		return nil, err
	}
	fw, err := get(tensorFamilyW, 2)
	if err != nil {
		return nil, err
	}
	fb, err := get(tensorFamilyB, 1)
	if err != nil {
		return nil, err
	}

	m := &Model{
		Dim:           cw.Shape[1],
		NumCategories: cw.Shape[0],
		NumFamilies:   fw.Shape[0],
		CategoryW:     cw.Data,
		CategoryB:     cb.Data,
		FamilyW:       fw.Data,
		FamilyB:       fb.Data,
	}
	if fw.Shape[1] != m.FamilyIn() {
		return nil, &model.DimensionMismatchError{What: "family head input width", Expected: m.FamilyIn(), Got: fw.Shape[1]}
	}
	if cb.Shape[0] != m.NumCategories {
		return nil, &model.DimensionMismatchError{What: "category bias size", Expected: m.NumCategories, Got: cb.Shape[0]}
	}
	if fb.Shape[0] != m.NumFamilies {
		return nil, &model.DimensionMismatchError{What: "family bias size", Expected: m.NumFamilies, Got: fb.Shape[0]}
	}
	return m, nil
}
