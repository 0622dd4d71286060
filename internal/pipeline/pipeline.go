// Package pipeline applies a published bundle to unlabeled records and
// partitions the predictions by confidence.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hejijunhao/hierclass/internal/artifact"
	"github.com/hejijunhao/hierclass/internal/engine/embedder"
	"github.com/hejijunhao/hierclass/internal/model"
	"github.com/hejijunhao/hierclass/internal/output"
)

// DefaultThreshold is the confidence cutoff used when none is configured.
const DefaultThreshold = 0.86

const defaultBatchSize = 32

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBatchSize sets how many texts go to the encoder per call.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) { p.batchSize = n }
}

// WithWorkers bounds concurrent encoder batches. Default: GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(p *Pipeline) { p.workers = n }
}

// WithOutput sends every completed partition to w.
func WithOutput(w output.Writer) Option {
	return func(p *Pipeline) { p.out = w }
}

// WithClock overrides the generation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline connects an encoder, a loaded bundle, and an optional output.
// It holds no state between calls beyond the bundle, which is never modified, so
// one Pipeline may serve concurrent Classify calls.
type Pipeline struct {
	embedder  embedder.Embedder
	bundle    *artifact.Bundle
	threshold float64
	batchSize int
	workers   int
	out       output.Writer
	now       func() time.Time
}

// ValidateThreshold rejects thresholds outside [0,1].
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return &model.ConfigurationError{Key: "classification_threshold", Value: threshold, Reason: "must be in [0,1]"}
	}
	return nil
}

// New creates a Pipeline after checking the bundle against the encoder.
func New(emb embedder.Embedder, bundle *artifact.Bundle, threshold float64, opts ...Option) (*Pipeline, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	p := &Pipeline{
		embedder:  emb,
		bundle:    bundle,
		threshold: threshold,
		batchSize: defaultBatchSize,
		workers:   runtime.GOMAXPROCS(0),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.batchSize < 1 {
		return nil, &model.ConfigurationError{Key: "batch_size", Value: p.batchSize, Reason: "must be at least 1"}
	}
	if p.workers < 1 {
		return nil, &model.ConfigurationError{Key: "inference.workers", Value: p.workers, Reason: "must be at least 1"}
	}

	if err := bundle.Check(); err != nil {
		return nil, err
	}
	if bundle.Encoder.Dim != emb.Dim() {
		return nil, &model.DimensionMismatchError{What: "encoder width vs bundle", Expected: bundle.Encoder.Dim, Got: emb.Dim()}
	}
	if bundle.Encoder.Name != emb.Name() {
		slog.Warn("encoder differs from the one the bundle was trained on",
			"version", bundle.Version, "bundle_encoder", bundle.Encoder.Name, "encoder", emb.Name())
	}
	return p, nil
}

// Threshold returns the confidence cutoff.
func (p *Pipeline) Threshold() float64 { return p.threshold }

// Version returns the loaded bundle's version.
func (p *Pipeline) Version() string { return p.bundle.Version }

// Classify predicts every record and partitions the result. Either every record
// is classified or an error is returned; there is no partial partition.
// Records with an empty ID are identified by their 1-based position; IDs,
// including those positions, must be unique.
func (p *Pipeline) Classify(ctx context.Context, records []model.InputRecord) (model.Partition, error) {
	ids, err := recordIDs(records)
	if err != nil {
		return model.Partition{}, err
	}
	embeddings, err := p.embed(ctx, records)
	if err != nil {
		return model.Partition{}, err
	}

	preds := make([]model.PredictionRecord, len(records))
	for i := range records {
		pred, err := p.bundle.Model.Predict(embeddings[i], p.bundle.Codec)
		if err != nil {
			return model.Partition{}, fmt.Errorf("pipeline: record %d: %w", i+1, err)
		}
		cat, fam, err := p.bundle.Codec.Decode(pred.Category, pred.Family)
		if err != nil {
			return model.Partition{}, fmt.Errorf("pipeline: record %d: %w", i+1, err)
		}
		preds[i] = model.PredictionRecord{
			RecordID:           ids[i],
			Category:           cat,
			Family:             fam,
			CategoryConfidence: pred.CategoryConfidence,
			FamilyConfidence:   pred.FamilyConfidence,
			Confidence:         pred.Confidence(),
		}
	}

	part := Split(preds, p.threshold)
	part.Version = p.bundle.Version
	part.GeneratedAt = p.now()

	slog.Debug("batch classified",
		"version", part.Version,
		"records", len(records),
		"classified", len(part.Classified),
		"unclassified", len(part.Unclassified),
	)
	return part, nil
}

// recordIDs fills empty IDs with the 1-based position and rejects duplicates,
// so every output row traces back to exactly one input.
func recordIDs(records []model.InputRecord) ([]string, error) {
	ids := make([]string, len(records))
	seen := make(map[string]int, len(records))
	for i, r := range records {
		id := r.ID
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		if prev, ok := seen[id]; ok {
			return nil, &model.SchemaError{
				Record: id,
				Reason: fmt.Sprintf("duplicate id at records %d and %d (empty ids take their position)", prev+1, i+1),
			}
		}
		seen[id] = i
		ids[i] = id
	}
	return ids, nil
}

// Run classifies records and hands the partition to the configured output.
func (p *Pipeline) Run(ctx context.Context, records []model.InputRecord) (model.Partition, error) {
	part, err := p.Classify(ctx, records)
	if err != nil {
		return model.Partition{}, err
	}
	if p.out != nil {
		if err := p.out.Write(ctx, part); err != nil {
			return part, fmt.Errorf("pipeline output: %w", err)
		}
	}
	return part, nil
}

// Close shuts down the output.
func (p *Pipeline) Close() error {
	if p.out == nil {
		return nil
	}
	return p.out.Close()
}

// Split partitions preds by threshold (inclusive) keeping input order on both sides.
func Split(preds []model.PredictionRecord, threshold float64) model.Partition {
	part := model.Partition{
		Classified:   []model.PredictionRecord{},
		Unclassified: []model.PredictionRecord{},
		Threshold:    threshold,
	}
	for _, r := range preds {
		if r.Confidence >= threshold {
			part.Classified = append(part.Classified, r)
		} else {
			part.Unclassified = append(part.Unclassified, r)
		}
	}
	return part
}

// embed encodes records in batches on up to p.workers goroutines. Each batch
// writes only its own slots, so the result is in input order.
func (p *Pipeline) embed(ctx context.Context, records []model.InputRecord) ([][]float64, error) {
	out := make([][]float64, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for lo := 0; lo < len(records); lo += p.batchSize {
		hi := min(lo+p.batchSize, len(records))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			texts := make([]string, hi-lo)
			for i := range texts {
				texts[i] = records[lo+i].Text
			}
			vecs, err := p.embedder.EmbedBatch(texts)
			if err != nil {
				return fmt.Errorf("pipeline: embed records %d-%d: %w", lo+1, hi, err)
			}
			if len(vecs) != len(texts) {
				return &model.DimensionMismatchError{What: "encoder batch size", Expected: len(texts), Got: len(vecs)}
			}
			copy(out[lo:hi], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
