package trainer

import "math"

// adam keeps first and second moment estimates for every parameter slice.
type adam struct {
	lr, beta1, beta2, eps float64
	m, v                  [][]float64
	t                     int
}

func newAdam(cfg Config, params [][]float64) *adam {
	a := &adam{lr: cfg.LearningRate, beta1: cfg.Beta1, beta2: cfg.Beta2, eps: cfg.Epsilon}
	for _, p := range params {
		a.m = append(a.m, make([]float64, len(p)))
		a.v = append(a.v, make([]float64, len(p)))
	}
	return a
}

// step applies one bias-corrected update of params along grads.
func (a *adam) step(params, grads [][]float64) {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	for i, p := range params {
		g, m, v := grads[i], a.m[i], a.v[i]
		for j := range p {
			m[j] = a.beta1*m[j] + (1-a.beta1)*g[j]
			v[j] = a.beta2*v[j] + (1-a.beta2)*g[j]*g[j]
			p[j] -= a.lr * (m[j] / c1) / (math.Sqrt(v[j]/c2) + a.eps)
		}
	}
}
