package classifier

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/hejijunhao/hierclass/internal/engine/codec"
	"github.com/hejijunhao/hierclass/internal/model"
)

// Prediction is the masked output for one embedding.
type Prediction struct {
	Category           int
	Family             int
	CategoryConfidence float64
	FamilyConfidence   float64

	// RawFamily is the unmasked family arg-max; it may be illegal under Category.
	RawFamily int
}

// Confidence is the arithmetic mean of the two head confidences.
func (p Prediction) Confidence() float64 {
	return (p.CategoryConfidence + p.FamilyConfidence) / 2
}

// Predict classifies one embedding. The family distribution is renormalised
// over the families legal under the predicted category before the arg-max, so the
// returned pair is always hierarchy-consistent.
func (m *Model) Predict(x []float64, c *codec.Codec) (Prediction, error) {
	if len(x) != m.Dim {
		return Prediction{}, &model.DimensionMismatchError{What: "embedding width", Expected: m.Dim, Got: len(x)}
	}

	catLogits := make([]float64, m.NumCategories)
	m.categoryLogits(x, catLogits)
	catProbs := make([]float64, m.NumCategories)
	softmax(catLogits, catProbs)
	cat := floats.MaxIdx(catProbs)

	famLogits := make([]float64, m.NumFamilies)
	m.familyLogits(x, cat, famLogits)

	legal := c.LegalFamilies(cat)
	if len(legal) == 0 {
		return Prediction{}, &model.SchemaError{Reason: "category index has no legal families"}
	}
	lse := subsetLogSumExp(famLogits, legal)
	fam, famConf := legal[0], math.Exp(famLogits[legal[0]]-lse)
	for _, f := range legal[1:] {
		if p := math.Exp(famLogits[f] - lse); p > famConf {
			fam, famConf = f, p
		}
	}

	return Prediction{
		Category:           cat,
		Family:             fam,
		CategoryConfidence: catProbs[cat],
		FamilyConfidence:   famConf,
		RawFamily:          floats.MaxIdx(famLogits),
	}, nil
}
