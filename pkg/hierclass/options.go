package hierclass

import "path/filepath"

type options struct {
	storeDir       string
	version        string
	threshold      float64
	modelDir       string
	modelPath      string
	vocabPath      string
	projectionPath string
	hashingDim     int
	maxSeqLen      int
	workers        int
	batchSize      int
}

// Option configures a Classifier.
type Option func(*options)

// WithStoreDir sets the artifact store directory. Default: "models/hierclass".
func WithStoreDir(dir string) Option {
	return func(o *options) { o.storeDir = dir }
}

// WithVersion selects the bundle to load. Default: the latest published version.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithThreshold sets the confidence cutoff in [0,1]; predictions at or above it
// are classified. Default: 0.86.
func WithThreshold(t float64) Option {
	return func(o *options) { o.threshold = t }
}

// WithModelDir sets the directory holding the ONNX encoder files.
// Expects: model_quantized.onnx and vocab.txt.
func WithModelDir(dir string) Option {
	return func(o *options) { o.modelDir = dir }
}

// WithModelPaths sets explicit encoder file paths. projection may be empty.
func WithModelPaths(model, vocab, projection string) Option {
	return func(o *options) {
		o.modelPath = model
		o.vocabPath = vocab
		o.projectionPath = projection
	}
}

// WithHashingEncoder uses the offline feature-hashing encoder of width dim
// instead of ONNX. The bundle must have been trained with the same encoder.
func WithHashingEncoder(dim int) Option {
	return func(o *options) { o.hashingDim = dim }
}

// WithMaxSequenceLength sets the encoder's token limit. Default: 128.
func WithMaxSequenceLength(n int) Option {
	return func(o *options) { o.maxSeqLen = n }
}

// WithWorkers bounds concurrent encoder batches. Default: GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithBatchSize sets how many texts go to the encoder per call. Default: 32.
func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}

func defaultOptions() options {
	return options{
		storeDir:  filepath.Join("models", "hierclass"),
		threshold: 0.86,
		maxSeqLen: 128,
	}
}

// resolvePaths determines the encoder file paths. Explicit paths take
// precedence over modelDir.
func resolvePaths(o options) (model, vocab, projection string) {
	if o.modelPath != "" {
		return o.modelPath, o.vocabPath, o.projectionPath
	}
	dir := o.modelDir
	if dir == "" {
		dir = "models"
	}
	return filepath.Join(dir, "model_quantized.onnx"), filepath.Join(dir, "vocab.txt"), ""
}
