package hierclass

import (
	"context"
	"fmt"

	"github.com/hejijunhao/hierclass/internal/artifact"
	"github.com/hejijunhao/hierclass/internal/engine"
	"github.com/hejijunhao/hierclass/internal/engine/embedder"
	"github.com/hejijunhao/hierclass/internal/engine/trainer"
	"github.com/hejijunhao/hierclass/internal/model"
	"github.com/hejijunhao/hierclass/internal/pipeline"
)

// Errors callers can test for with errors.Is.
var (
	ErrNotFound          = model.ErrNotFound
	ErrDimensionMismatch = model.ErrDimensionMismatch
	ErrConfiguration     = model.ErrConfiguration
)

// Classifier applies one published bundle. Safe for concurrent use.
type Classifier struct {
	embedder embedder.Embedder
	pipeline *pipeline.Pipeline
}

// Open loads the encoder and the selected bundle. This is an expensive
// operation; create once and reuse.
func Open(opts ...Option) (*Classifier, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := pipeline.ValidateThreshold(o.threshold); err != nil {
		return nil, fmt.Errorf("hierclass: %w", err)
	}

	emb, err := openEncoder(o)
	if err != nil {
		return nil, fmt.Errorf("hierclass: %w", err)
	}
	store, err := artifact.New(o.storeDir)
	if err != nil {
		emb.Close()
		return nil, fmt.Errorf("hierclass: %w", err)
	}

	var popts []pipeline.Option
	if o.workers > 0 {
		popts = append(popts, pipeline.WithWorkers(o.workers))
	}
	if o.batchSize > 0 {
		popts = append(popts, pipeline.WithBatchSize(o.batchSize))
	}
	eng := engine.New(emb, store, trainer.DefaultConfig())
	p, err := eng.Pipeline(o.version, o.threshold, popts...)
	if err != nil {
		emb.Close()
		return nil, fmt.Errorf("hierclass: %w", err)
	}
	return &Classifier{embedder: emb, pipeline: p}, nil
}

func openEncoder(o options) (embedder.Embedder, error) {
	if o.hashingDim > 0 {
		h, err := embedder.NewHashing(o.hashingDim, o.maxSeqLen)
		if err != nil {
			return nil, err
		}
		return h, nil
	}
	modelPath, vocabPath, projPath := resolvePaths(o)
	e, err := embedder.NewONNX(embedder.ONNXOptions{
		ModelPath:      modelPath,
		VocabPath:      vocabPath,
		ProjectionPath: projPath,
		MaxSeqLen:      o.maxSeqLen,
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Version returns the loaded bundle version.
func (c *Classifier) Version() string { return c.pipeline.Version() }

// Threshold returns the confidence cutoff.
func (c *Classifier) Threshold() float64 { return c.pipeline.Threshold() }

// Classify predicts every input. It returns either a prediction for every
// input or an error, never a partial result.
func (c *Classifier) Classify(ctx context.Context, inputs []Input) (Result, error) {
	records := make([]model.InputRecord, len(inputs))
	for i, in := range inputs {
		records[i] = model.InputRecord{ID: in.ID, Text: in.Text}
	}
	part, err := c.pipeline.Classify(ctx, records)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Version:      part.Version,
		Threshold:    part.Threshold,
		GeneratedAt:  part.GeneratedAt,
		Classified:   predictions(part.Classified),
		Unclassified: predictions(part.Unclassified),
	}, nil
}

// ClassifyText classifies a single text regardless of the threshold.
func (c *Classifier) ClassifyText(ctx context.Context, text string) (Prediction, error) {
	res, err := c.Classify(ctx, []Input{{ID: "1", Text: text}})
	if err != nil {
		return Prediction{}, err
	}
	if len(res.Classified) == 1 {
		return res.Classified[0], nil
	}
	return res.Unclassified[0], nil
}

// Close releases encoder resources.
func (c *Classifier) Close() error {
	return c.embedder.Close()
}

func predictions(recs []model.PredictionRecord) []Prediction {
	out := make([]Prediction, len(recs))
	for i, r := range recs {
		out[i] = Prediction{
			ID:                 r.RecordID,
			Category:           r.Category,
			Family:             r.Family,
			Confidence:         r.Confidence,
			CategoryConfidence: r.CategoryConfidence,
			FamilyConfidence:   r.FamilyConfidence,
		}
	}
	return out
}
