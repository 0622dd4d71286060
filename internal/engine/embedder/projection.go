package embedder

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/hejijunhao/hierclass/internal/safetensors"
)

// projection is a bias-free dense layer (identity activation) mapping pooled
// encoder output from inDim to outDim.
type projection struct {
	weights []float64 // row-major [outDim, inDim]
	inDim   int
	outDim  int
}

// loadProjection reads the "linear.weight" tensor of a sentence-transformers
// Dense module stored as safetensors.
func loadProjection(path string) (*projection, error) {
	tensors, err := safetensors.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("projection: %w", err)
	}
	w, ok := tensors["linear.weight"]
	if !ok {
		return nil, fmt.Errorf("projection: tensor 'linear.weight' not found in %s", path)
	}
	if len(w.Shape) != 2 {
		return nil, fmt.Errorf("projection: expected 2D tensor, got shape %v", w.Shape)
	}
	return &projection{weights: w.Data, outDim: w.Shape[0], inDim: w.Shape[1]}, nil
}

func (p *projection) apply(vec []float64) []float64 {
	out := make([]float64, p.outDim)
	for i := range out {
		out[i] = floats.Dot(p.weights[i*p.inDim:(i+1)*p.inDim], vec)
	}
	return out
}
