package classifier

import (
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// Grads mirrors Model's parameter layout.
type Grads struct {
	CategoryW []float64
	CategoryB []float64
	FamilyW   []float64
	FamilyB   []float64
}

// NewGrads allocates zeroed gradients shaped like m.
func NewGrads(m *Model) *Grads {
	return &Grads{
		CategoryW: make([]float64, len(m.CategoryW)),
		CategoryB: make([]float64, len(m.CategoryB)),
		FamilyW:   make([]float64, len(m.FamilyW)),
		FamilyB:   make([]float64, len(m.FamilyB)),
	}
}

// Slices returns the gradient slices in Model.Params order.
func (g *Grads) Slices() [][]float64 {
	return [][]float64{g.CategoryW, g.CategoryB, g.FamilyW, g.FamilyB}
}

// Zero resets every gradient to 0.
func (g *Grads) Zero() {
	for _, s := range g.Slices() {
		clear(s)
	}
}

// Scale multiplies every gradient by k.
func (g *Grads) Scale(k float64) {
	for _, s := range g.Slices() {
		floats.Scale(k, s)
	}
}

// Example is one encoded training record.
type Example struct {
	Embedding []float64
	Category  int
	Family    int
}

// Objective configures the per-example loss.
type Objective struct {
	CategoryWeights []float64 // per category index
	FamilyWeights   []float64 // per family index
	PenaltyWeight   float64   // λ
	Dropout         float64   // inverted dropout rate on each head's embedding input
}

// Loss breaks one example's loss into its terms.
type Loss struct {
	Category float64
	Family   float64
	Penalty  float64
}

// Total is Category + Family + λ·Penalty.
func (l Loss) Total(penaltyWeight float64) float64 {
	return l.Category + l.Family + penaltyWeight*l.Penalty
}

// Accumulate adds the gradient of one example's loss to g and returns the loss
// terms. legal lists the families legal under ex.Category. The family head is
// fed the one-hot of the true category, not the predicted one.
//
// Loss = wc·CE(category) + wf·CE(family) + λ·(−log Σ_{j∈legal} p_f[j]).
// The penalty is zero exactly when the family head puts all its mass on legal
// families and falls as that mass grows.
func (m *Model) Accumulate(g *Grads, ex Example, obj Objective, legal []int, rng *rand.Rand) Loss {
	catIn := dropout(ex.Embedding, obj.Dropout, rng)
	famIn := dropout(ex.Embedding, obj.Dropout, rng)

	catLogits := make([]float64, m.NumCategories)
	m.categoryLogits(catIn, catLogits)
	catProbs := make([]float64, m.NumCategories)
	catLSE := softmax(catLogits, catProbs)

	famLogits := make([]float64, m.NumFamilies)
	m.familyLogits(famIn, ex.Category, famLogits)
	famProbs := make([]float64, m.NumFamilies)
	famLSE := softmax(famLogits, famProbs)

	wc := weightAt(obj.CategoryWeights, ex.Category)
	wf := weightAt(obj.FamilyWeights, ex.Family)
	legalLSE := subsetLogSumExp(famLogits, legal)
	loss := Loss{
		Category: wc * (catLSE - catLogits[ex.Category]),
		Family:   wf * (famLSE - famLogits[ex.Family]),
		Penalty:  famLSE - legalLSE,
	}

	// dL/dz_c = wc·(p − onehot(y_c))
	dCat := catProbs
	dCat[ex.Category]--
	floats.Scale(wc, dCat)
	for c, d := range dCat {
		if d == 0 {
			continue
		}
		floats.AddScaled(g.CategoryW[c*m.Dim:(c+1)*m.Dim], d, catIn)
		g.CategoryB[c] += d
	}

	// dL/dz_f = wf·(p − onehot(y_f)) + λ·(p − p⊙legal/S), S = legal mass.
	dFam := make([]float64, m.NumFamilies)
	for f, p := range famProbs {
		dFam[f] = (wf + obj.PenaltyWeight) * p
	}
	dFam[ex.Family] -= wf
	if obj.PenaltyWeight != 0 && !math.IsInf(legalLSE, -1) {
		for _, f := range legal {
			dFam[f] -= obj.PenaltyWeight * math.Exp(famLogits[f]-legalLSE)
		}
	}
	in := m.FamilyIn()
	for f, d := range dFam {
		if d == 0 {
			continue
		}
		row := g.FamilyW[f*in : (f+1)*in]
		floats.AddScaled(row[:m.Dim], d, famIn)
		row[m.Dim+ex.Category] += d
		g.FamilyB[f] += d
	}
	return loss
}

// dropout returns x with each element zeroed with probability rate and the
// survivors scaled by 1/(1−rate). rate 0 or a nil rng returns x itself.
func dropout(x []float64, rate float64, rng *rand.Rand) []float64 {
	if rate <= 0 || rng == nil {
		return x
	}
	out := slices.Clone(x)
	keep := 1 / (1 - rate)
	for i := range out {
		if rng.Float64() < rate {
			out[i] = 0
		} else {
			out[i] *= keep
		}
	}
	return out
}

func weightAt(w []float64, i int) float64 {
	if w == nil {
		return 1
	}
	return w[i]
}
