package classifier

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// categoryLogits writes Wc·x + bc into out.
func (m *Model) categoryLogits(x, out []float64) {
	for c := range out {
		out[c] = floats.Dot(m.CategoryW[c*m.Dim:(c+1)*m.Dim], x) + m.CategoryB[c]
	}
}

// familyLogits writes the family head's logits for embedding x and category
// index cat (the one-hot half of the input reduces to a single column).
func (m *Model) familyLogits(x []float64, cat int, out []float64) {
	in := m.FamilyIn()
	for f := range out {
		row := m.FamilyW[f*in : (f+1)*in]
		out[f] = floats.Dot(row[:m.Dim], x) + row[m.Dim+cat] + m.FamilyB[f]
	}
}

// softmax writes the normalised distribution of logits into out and returns
// log-sum-exp, so callers can form log-probabilities as logit-lse.
func softmax(logits, out []float64) float64 {
	lse := floats.LogSumExp(logits)
	for i, z := range logits {
		out[i] = math.Exp(z - lse)
	}
	return lse
}

// subsetLogSumExp is log Σ exp(logits[i]) over idx.
func subsetLogSumExp(logits []float64, idx []int) float64 {
	if len(idx) == 0 {
		return math.Inf(-1)
	}
	hi := math.Inf(-1)
	for _, i := range idx {
		hi = math.Max(hi, logits[i])
	}
	if math.IsInf(hi, 0) {
		return hi
	}
	var sum float64
	for _, i := range idx {
		sum += math.Exp(logits[i] - hi)
	}
	return hi + math.Log(sum)
}
