package classifier

import (
	"bytes"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hejijunhao/hierclass/internal/engine/codec"
	"github.com/hejijunhao/hierclass/internal/model"
	"github.com/hejijunhao/hierclass/internal/safetensors"
)

func exampleCodec(t *testing.T) *codec.Codec {
	t.Helper()
	c, err := codec.Fit([]model.LabeledRecord{
		{Text: "cable eléctrico de cobre", Category: "electronica", Family: "cables"},
		{Text: "tubo de pvc", Category: "plasticos", Family: "tuberia"},
	})
	require.NoError(t, err)
	return c
}

// biasedModel predicts "electronica" while its raw family head prefers "tuberia".
func biasedModel() *Model {
	return &Model{
		Dim: 2, NumCategories: 2, NumFamilies: 2,
		CategoryW: []float64{2, 0, 0, 0},
		CategoryB: []float64{0, 0},
		FamilyW: []float64{
			0, 0, 0, 0, // cables
			3, 0, 0, 0, // tuberia
		},
		FamilyB: []float64{0, 0},
	}
}

func TestPredictMasksIllegalFamily(t *testing.T) {
	c := exampleCodec(t)
	m := biasedModel()

	p, err := m.Predict([]float64{1, 0}, c)
	require.NoError(t, err)

	assert.Equal(t, 0, p.Category, "electronica")
	assert.Equal(t, 1, p.RawFamily, "raw head prefers tuberia")
	assert.Equal(t, 0, p.Family, "masked to cables")
	assert.True(t, c.IsLegal(p.Category, p.Family))

	assert.InDelta(t, math.Exp(2)/(math.Exp(2)+1), p.CategoryConfidence, 1e-12)
	assert.InDelta(t, 1.0, p.FamilyConfidence, 1e-12)
	assert.InDelta(t, (p.CategoryConfidence+1)/2, p.Confidence(), 1e-12)

	cat, fam, err := c.Decode(p.Category, p.Family)
	require.NoError(t, err)
	assert.Equal(t, "electronica", cat)
	assert.Equal(t, "cables", fam)
}

func TestPredictAlwaysLegal(t *testing.T) {
	c, err := codec.Fit([]model.LabeledRecord{
		{Category: "a", Family: "a1"}, {Category: "a", Family: "a2"},
		{Category: "b", Family: "b1"}, {Category: "b", Family: "b2"}, {Category: "b", Family: "b3"},
		{Category: "c", Family: "c1"},
	})
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(7, 7))
	m := New(8, c.NumCategories(), c.NumFamilies(), rng)
	for i := 0; i < 200; i++ {
		x := make([]float64, 8)
		for j := range x {
			x[j] = rng.NormFloat64() * 3
		}
		p, err := m.Predict(x, c)
		require.NoError(t, err)
		require.True(t, c.IsLegal(p.Category, p.Family), "prediction %d illegal: %+v", i, p)
		require.GreaterOrEqual(t, p.FamilyConfidence, 1.0/float64(len(c.LegalFamilies(p.Category)))-1e-12)
		require.LessOrEqual(t, p.Confidence(), 1.0)
	}
}

func TestPredictDimensionMismatch(t *testing.T) {
	_, err := biasedModel().Predict([]float64{1, 2, 3}, exampleCodec(t))
	var dme *model.DimensionMismatchError
	require.ErrorAs(t, err, &dme)
	assert.Equal(t, 2, dme.Expected)
	assert.Equal(t, 3, dme.Got)
}

func TestCheckShapes(t *testing.T) {
	c := exampleCodec(t)
	m := biasedModel()
	require.NoError(t, m.CheckShapes(2, c))

	assert.ErrorIs(t, m.CheckShapes(3, c), model.ErrDimensionMismatch)

	bigger, err := c.Extend([]model.LabeledRecord{{Category: "textiles", Family: "hilos"}})
	require.NoError(t, err)
	err = m.CheckShapes(2, bigger)
	var dme *model.DimensionMismatchError
	require.ErrorAs(t, err, &dme)
	assert.Equal(t, "category head output width", dme.What)
}

// lossAt evaluates the deterministic (dropout-free) loss of one example.
func lossAt(m *Model, ex Example, obj Objective, legal []int) float64 {
	return m.Accumulate(NewGrads(m), ex, obj, legal, nil).Total(obj.PenaltyWeight)
}

func TestAccumulateMatchesFiniteDifferences(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	m := New(3, 2, 3, rng)
	for _, p := range m.Params() {
		for i := range p {
			p[i] = rng.NormFloat64()
		}
	}

	ex := Example{Embedding: []float64{0.5, -1, 2}, Category: 1, Family: 2}
	obj := Objective{
		CategoryWeights: []float64{0.7, 1.3},
		FamilyWeights:   []float64{1, 0.5, 2},
		PenaltyWeight:   0.8,
	}
	legal := []int{1, 2}

	g := NewGrads(m)
	m.Accumulate(g, ex, obj, legal, nil)

	const h = 1e-6
	params := m.Params()
	grads := g.Slices()
	for pi := range params {
		for i := range params[pi] {
			orig := params[pi][i]
			params[pi][i] = orig + h
			up := lossAt(m, ex, obj, legal)
			params[pi][i] = orig - h
			down := lossAt(m, ex, obj, legal)
			params[pi][i] = orig
			numeric := (up - down) / (2 * h)
			assert.InDelta(t, numeric, grads[pi][i], 1e-5, "param slice %d index %d", pi, i)
		}
	}
}

func TestPenaltyFallsAsLegalMassGrows(t *testing.T) {
	m := &Model{
		Dim: 1, NumCategories: 1, NumFamilies: 2,
		CategoryW: []float64{0}, CategoryB: []float64{0},
		FamilyW: []float64{0, 0, 0, 0}, FamilyB: []float64{0, 0},
	}
	ex := Example{Embedding: []float64{1}, Category: 0, Family: 0}
	legal := []int{0}

	prev := math.Inf(1)
	for _, bias := range []float64{-2, 0, 2, 4} {
		m.FamilyB[0] = bias
		l := m.Accumulate(NewGrads(m), ex, Objective{PenaltyWeight: 1}, legal, nil)
		assert.Less(t, l.Penalty, prev)
		assert.GreaterOrEqual(t, l.Penalty, 0.0)
		prev = l.Penalty
	}
}

func TestDropoutScalesSurvivors(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 3))
	x := []float64{1, 1, 1, 1, 1, 1, 1, 1}
	out := dropout(x, 0.5, rng)
	for _, v := range out {
		assert.True(t, v == 0 || v == 2, "unexpected value %v", v)
	}
	assert.Equal(t, []float64{1, 1, 1, 1, 1, 1, 1, 1}, x, "input untouched")
	assert.Same(t, &x[0], &dropout(x, 0, rng)[0])
}

func TestGrowKeepsExistingOutputs(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 5))
	m := New(4, 2, 3, rng)
	x := []float64{0.1, -0.2, 0.3, 0.4}

	grown, err := m.Grow(3, 5, rng)
	require.NoError(t, err)
	assert.Equal(t, 3, grown.NumCategories)
	assert.Equal(t, 5, grown.NumFamilies)

	oldCat := make([]float64, 2)
	newCat := make([]float64, 3)
	m.categoryLogits(x, oldCat)
	grown.categoryLogits(x, newCat)
	assert.InDeltaSlice(t, oldCat, newCat[:2], 1e-12)

	for cat := 0; cat < 2; cat++ {
		oldFam := make([]float64, 3)
		newFam := make([]float64, 5)
		m.familyLogits(x, cat, oldFam)
		grown.familyLogits(x, cat, newFam)
		assert.InDeltaSlice(t, oldFam, newFam[:3], 1e-12)
	}

	_, err = m.Grow(1, 3, rng)
	assert.ErrorIs(t, err, model.ErrDimensionMismatch)
}

func TestWriteLoadRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	m := New(5, 3, 4, rng)

	var buf bytes.Buffer
	require.NoError(t, m.Write(&buf))
	path := filepath.Join(t.TempDir(), "model.safetensors")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestLoadRejectsInconsistentFamilyWidth(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, safetensors.Write(&buf, map[string]safetensors.Tensor{
		tensorCategoryW: {Shape: []int{2, 2}, Data: make([]float64, 4)},
		tensorCategoryB: {Shape: []int{2}, Data: make([]float64, 2)},
		tensorFamilyW:   {Shape: []int{2, 3}, Data: make([]float64, 6)},
		tensorFamilyB:   {Shape: []int{2}, Data: make([]float64, 2)},
	}))
	path := filepath.Join(t.TempDir(), "model.safetensors")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	_, err := Load(path)
	var dme *model.DimensionMismatchError
	require.ErrorAs(t, err, &dme)
	assert.Equal(t, 4, dme.Expected)
	assert.Equal(t, 3, dme.Got)
}
