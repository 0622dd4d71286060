package trainer

import (
	"github.com/hejijunhao/hierclass/internal/engine/classifier"
	"github.com/hejijunhao/hierclass/internal/engine/codec"
	"github.com/hejijunhao/hierclass/internal/model"
)

// evaluate scores m on examples with masked predictions.
func evaluate(m *classifier.Model, c *codec.Codec, examples []classifier.Example) (model.Metrics, error) {
	n := len(examples)
	if n == 0 {
		return model.Metrics{}, nil
	}

	predCat := make([]int, n)
	predFam := make([]int, n)
	trueCat := make([]int, n)
	trueFam := make([]int, n)
	var catHits, famHits, consistent int
	for i, ex := range examples {
		p, err := m.Predict(ex.Embedding, c)
		if err != nil {
			return model.Metrics{}, err
		}
		predCat[i], predFam[i] = p.Category, p.Family
		trueCat[i], trueFam[i] = ex.Category, ex.Family
		if p.Category == ex.Category {
			catHits++
		}
		if p.Family == ex.Family {
			famHits++
		}
		if c.IsLegal(p.Category, p.RawFamily) {
			consistent++
		}
	}

	return model.Metrics{
		Samples:          n,
		CategoryAccuracy: float64(catHits) / float64(n),
		FamilyAccuracy:   float64(famHits) / float64(n),
		CategoryMacroF1:  macroF1(predCat, trueCat, c.NumCategories()),
		FamilyMacroF1:    macroF1(predFam, trueFam, c.NumFamilies()),
		ConsistencyRate:  float64(consistent) / float64(n),
	}, nil
}

// macroF1 averages per-class F1 over classes that occur in truth or pred.
func macroF1(pred, truth []int, numClasses int) float64 {
	tp := make([]int, numClasses)
	fp := make([]int, numClasses)
	fn := make([]int, numClasses)
	for i := range pred {
		if pred[i] == truth[i] {
			tp[pred[i]]++
			continue
		}
		fp[pred[i]]++
		fn[truth[i]]++
	}

	var sum float64
	classes := 0
	for k := 0; k < numClasses; k++ {
		if tp[k]+fp[k]+fn[k] == 0 {
			continue
		}
		classes++
		if tp[k] == 0 {
			continue
		}
		precision := float64(tp[k]) / float64(tp[k]+fp[k])
		recall := float64(tp[k]) / float64(tp[k]+fn[k])
		sum += 2 * precision * recall / (precision + recall)
	}
	if classes == 0 {
		return 0
	}
	return sum / float64(classes)
}
