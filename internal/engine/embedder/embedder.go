package embedder

import (
	"fmt"
	"path/filepath"
)

// DefaultMaxSeqLen is the truncation/padding width used when none is configured.
const DefaultMaxSeqLen = 128

// Embedder turns preprocessed text into fixed-width dense vectors. The encoder is
// frozen: the same text always maps to the same vector.
type Embedder interface {
	Embed(text string) ([]float64, error)
	EmbedBatch(texts []string) ([][]float64, error)
	Dim() int
	Name() string
	Close() error
}

// ONNXOptions locates the encoder files.
type ONNXOptions struct {
	ModelPath      string
	VocabPath      string
	ProjectionPath string // optional; empty keeps the encoder's native width
	LibraryPath    string // optional; defaults to libonnxruntime.so next to the model
	MaxSeqLen      int
	IntraOpThreads int
}

// ONNXEmbedder wraps the ONNX runtime, WordPiece tokenizer, and optional dense
// projection for local inference.
type ONNXEmbedder struct {
	session *onnxSession
	tok     *tokenizer
	proj    *projection
	name    string
}

// NewONNX loads the encoder. The pipeline is:
// tokenize (truncate/pad to MaxSeqLen) → ONNX inference → mean pool → projection.
func NewONNX(opts ONNXOptions) (*ONNXEmbedder, error) {
	if opts.MaxSeqLen == 0 {
		opts.MaxSeqLen = DefaultMaxSeqLen
	}
	if opts.MaxSeqLen < 2 {
		return nil, fmt.Errorf("embedder: max sequence length %d leaves no room for [CLS]/[SEP]", opts.MaxSeqLen)
	}

	sess, err := newONNXSession(opts.ModelPath, opts.LibraryPath, opts.IntraOpThreads)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	tok, err := newTokenizer(opts.VocabPath, opts.MaxSeqLen)
	if err != nil {
		sess.close()
		return nil, fmt.Errorf("embedder: %w", err)
	}

	var proj *projection
	if opts.ProjectionPath != "" {
		proj, err = loadProjection(opts.ProjectionPath)
		if err != nil {
			sess.close()
			return nil, fmt.Errorf("embedder: %w", err)
		}
		if int(sess.embedDim) != proj.inDim {
			sess.close()
			return nil, fmt.Errorf("embedder: ONNX output dim %d != projection input dim %d",
				sess.embedDim, proj.inDim)
		}
	}

	return &ONNXEmbedder{
		session: sess,
		tok:     tok,
		proj:    proj,
		name:    fmt.Sprintf("onnx:%s:seq%d", filepath.Base(opts.ModelPath), opts.MaxSeqLen),
	}, nil
}

// Dim returns the final embedding width (after projection, when present).
func (e *ONNXEmbedder) Dim() int {
	if e.proj != nil {
		return e.proj.outDim
	}
	return int(e.session.embedDim)
}

// Name identifies the encoder and its sequence length; bundles record it.
func (e *ONNXEmbedder) Name() string { return e.name }

// Embed produces a single embedding vector.
func (e *ONNXEmbedder) Embed(text string) ([]float64, error) {
	vecs, err := e.EmbedBatch([]string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one inference call, padded to the longest sequence.
func (e *ONNXEmbedder) EmbedBatch(texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batch := e.tok.tokenizeBatch(texts)

	hidden, err := e.session.infer(
		batch.inputIDs, batch.attentionMask, batch.tokenTypeIDs,
		batch.batchSize, batch.seqLen,
	)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	dim := e.session.embedDim
	pooled := meanPool(hidden, batch.attentionMask, batch.batchSize, batch.seqLen, dim)

	results := make([][]float64, batch.batchSize)
	for i := int64(0); i < batch.batchSize; i++ {
		vec := pooled[i*dim : (i+1)*dim]
		if e.proj != nil {
			vec = e.proj.apply(vec)
		}
		results[i] = vec
	}
	return results, nil
}

// Close releases ONNX Runtime resources.
func (e *ONNXEmbedder) Close() error {
	if e.session != nil {
		return e.session.close()
	}
	return nil
}
