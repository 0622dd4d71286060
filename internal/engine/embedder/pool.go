package embedder

import "gonum.org/v1/gonum/floats"

// meanPool averages per-token hidden states over the non-padding positions.
//
// hidden: flat [batchSize * seqLen * dim] encoder output
// mask:   flat [batchSize * seqLen], 1 for real tokens
//
// Returns flat [batchSize * dim]. A row with no real tokens stays zero.
func meanPool(hidden []float32, mask []int64, batchSize, seqLen, dim int64) []float64 {
	out := make([]float64, batchSize*dim)

	for b := int64(0); b < batchSize; b++ {
		row := out[b*dim : (b+1)*dim]
		var count float64
		for s := int64(0); s < seqLen; s++ {
			if mask[b*seqLen+s] != 1 {
				continue
			}
			count++
			tok := hidden[(b*seqLen+s)*dim : (b*seqLen+s+1)*dim]
			for d, v := range tok {
				row[d] += float64(v)
			}
		}
		if count > 0 {
			floats.Scale(1/count, row)
		}
	}
	return out
}

// l2Normalize scales v to unit length in place; a zero vector is left as is.
func l2Normalize(v []float64) {
	if n := floats.Norm(v, 2); n > 0 {
		floats.Scale(1/n, v)
	}
}
