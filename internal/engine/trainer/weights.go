package trainer

import "math"

// classWeights computes total/(present·count[i]) for every index in [0,n),
// floored at minWeight. present counts the classes that occur at least once;
// classes absent from labels get weight 1.
func classWeights(labels []int, n int, minWeight float64) []float64 {
	counts := make([]int, n)
	for _, l := range labels {
		counts[l]++
	}
	present := 0
	for _, c := range counts {
		if c > 0 {
			present++
		}
	}

	w := make([]float64, n)
	total := float64(len(labels))
	for i, c := range counts {
		if c == 0 {
			w[i] = 1
			continue
		}
		w[i] = math.Max(total/(float64(present)*float64(c)), minWeight)
	}
	return w
}
