package embedder

import (
	"fmt"
	"hash/fnv"
)

// DefaultHashingDim is the bucket count used when none is configured.
const DefaultHashingDim = 512

// HashingEmbedder is a model-free encoder: signed feature hashing of word
// unigrams and bigrams over BasicTokens, L2-normalised. It needs no model files,
// which makes it the encoder for air-gapped runs and tests.
type HashingEmbedder struct {
	dim       int
	maxTokens int
}

// NewHashing creates a hashing encoder with dim buckets. Only the first
// maxTokens basic tokens of each text are used, mirroring the ONNX truncation.
func NewHashing(dim, maxTokens int) (*HashingEmbedder, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("embedder: hashing dim must be positive, got %d", dim)
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxSeqLen
	}
	return &HashingEmbedder{dim: dim, maxTokens: maxTokens}, nil
}

func (h *HashingEmbedder) Dim() int     { return h.dim }
func (h *HashingEmbedder) Name() string { return fmt.Sprintf("hashing:d%d:seq%d", h.dim, h.maxTokens) }
func (h *HashingEmbedder) Close() error { return nil }

func (h *HashingEmbedder) Embed(text string) ([]float64, error) {
	tokens := BasicTokens(text)
	if len(tokens) > h.maxTokens {
		tokens = tokens[:h.maxTokens]
	}

	vec := make([]float64, h.dim)
	for i, tok := range tokens {
		h.add(vec, tok)
		if i > 0 {
			h.add(vec, tokens[i-1]+" "+tok)
		}
	}
	l2Normalize(vec)
	return vec, nil
}

func (h *HashingEmbedder) EmbedBatch(texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec, err := h.Embed(text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// add hashes feature into a bucket; bit 63 of the hash picks the sign so
// collisions tend to cancel rather than accumulate.
func (h *HashingEmbedder) add(vec []float64, feature string) {
	hasher := fnv.New64a()
	hasher.Write([]byte(feature))
	sum := hasher.Sum64()
	idx := int(sum % uint64(h.dim))
	if sum>>63 == 1 {
		vec[idx]--
	} else {
		vec[idx]++
	}
}
