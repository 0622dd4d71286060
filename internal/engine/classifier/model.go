// Package classifier implements the two-head hierarchical classifier that sits on
// top of a frozen text encoder.
//
// The category head is a linear layer over the embedding. The family head is a
// linear layer over [embedding; one-hot(category)], so its logit for family f is
// W_f[:D]·e + W_f[D+c] + b_f. At prediction time the family distribution is
// restricted to the families that are legal under the predicted category.
package classifier

import (
	"math"
	"math/rand/v2"
	"slices"

	"github.com/hejijunhao/hierclass/internal/engine/codec"
	"github.com/hejijunhao/hierclass/internal/model"
)

// Model holds both heads' parameters in row-major layout.
type Model struct {
	Dim           int
	NumCategories int
	NumFamilies   int

	CategoryW []float64 // [NumCategories, Dim]
	CategoryB []float64 // [NumCategories]
	FamilyW   []float64 // [NumFamilies, Dim+NumCategories]
	FamilyB   []float64 // [NumFamilies]
}

// New creates a model with Xavier-uniform weights and zero biases.
func New(dim, numCategories, numFamilies int, rng *rand.Rand) *Model {
	m := &Model{
		Dim:           dim,
		NumCategories: numCategories,
		NumFamilies:   numFamilies,
		CategoryW:     make([]float64, numCategories*dim),
		CategoryB:     make([]float64, numCategories),
		FamilyW:       make([]float64, numFamilies*(dim+numCategories)),
		FamilyB:       make([]float64, numFamilies),
	}
	xavier(m.CategoryW, dim, numCategories, rng)
	xavier(m.FamilyW, dim+numCategories, numFamilies, rng)
	return m
}

func xavier(w []float64, fanIn, fanOut int, rng *rand.Rand) {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	for i := range w {
		w[i] = (2*rng.Float64() - 1) * limit
	}
}

// FamilyIn is the family head's input width.
func (m *Model) FamilyIn() int { return m.Dim + m.NumCategories }

// Params returns the parameter slices in a fixed order shared with Grads.
func (m *Model) Params() [][]float64 {
	return [][]float64{m.CategoryW, m.CategoryB, m.FamilyW, m.FamilyB}
}

// Clone returns a deep copy.
func (m *Model) Clone() *Model {
	return &Model{
		Dim:           m.Dim,
		NumCategories: m.NumCategories,
		NumFamilies:   m.NumFamilies,
		CategoryW:     slices.Clone(m.CategoryW),
		CategoryB:     slices.Clone(m.CategoryB),
		FamilyW:       slices.Clone(m.FamilyW),
		FamilyB:       slices.Clone(m.FamilyB),
	}
}

// Grow returns a copy widened to numCategories/numFamilies. Existing rows keep
// their index; new category rows, new family rows, and the family head's new
// one-hot columns are initialised fresh. Shrinking is refused.
func (m *Model) Grow(numCategories, numFamilies int, rng *rand.Rand) (*Model, error) {
	if numCategories < m.NumCategories {
		return nil, &model.DimensionMismatchError{What: "grow categories", Expected: m.NumCategories, Got: numCategories}
	}
	if numFamilies < m.NumFamilies {
		return nil, &model.DimensionMismatchError{What: "grow families", Expected: m.NumFamilies, Got: numFamilies}
	}

	next := New(m.Dim, numCategories, numFamilies, rng)
	copy(next.CategoryW, m.CategoryW)
	copy(next.CategoryB, m.CategoryB)

	oldIn, newIn := m.FamilyIn(), next.FamilyIn()
	for f := 0; f < m.NumFamilies; f++ {
		row := next.FamilyW[f*newIn : (f+1)*newIn]
		copy(row, m.FamilyW[f*oldIn:(f+1)*oldIn])
		clear(row[oldIn:])
	}
	copy(next.FamilyB, m.FamilyB)
	return next, nil
}

// CheckShapes verifies the model against the encoder width and codec sizes.
// A mismatch almost always means the bundle was paired with the wrong codec.
func (m *Model) CheckShapes(embeddingDim int, c *codec.Codec) error {
	checks := []struct {
		what          string
		expected, got int
	}{
		{"embedding width", m.Dim, embeddingDim},
		{"category head output width", c.NumCategories(), m.NumCategories},
		{"family head output width", c.NumFamilies(), m.NumFamilies},
		{"category weight size", m.NumCategories * m.Dim, len(m.CategoryW)},
		{"category bias size", m.NumCategories, len(m.CategoryB)},
		{"family weight size", m.NumFamilies * m.FamilyIn(), len(m.FamilyW)},
		{"family bias size", m.NumFamilies, len(m.FamilyB)},
	}
	for _, ch := range checks {
		if ch.expected != ch.got {
			return &model.DimensionMismatchError{What: ch.what, Expected: ch.expected, Got: ch.got}
		}
	}
	return nil
}
