// Package trainer fits the hierarchical classifier heads on top of a frozen
// encoder.
//
// A run moves Idle → Preparing → Optimizing → Finalizing → Done. Data errors
// fail in Preparing and a non-finite loss fails in Optimizing; a failed run
// produces no bundle.
package trainer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/hejijunhao/hierclass/internal/artifact"
	"github.com/hejijunhao/hierclass/internal/engine/classifier"
	"github.com/hejijunhao/hierclass/internal/engine/codec"
	"github.com/hejijunhao/hierclass/internal/engine/embedder"
	"github.com/hejijunhao/hierclass/internal/model"
)

// Trainer runs one training pass at a time.
type Trainer struct {
	cfg      Config
	emb      embedder.Embedder
	progress io.Writer
	runID    string

	mu    sync.Mutex
	state State
}

// New validates cfg and returns an idle Trainer.
func New(emb embedder.Embedder, cfg Config, opts ...Option) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Trainer{cfg: cfg, emb: emb}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// State returns the current lifecycle state.
func (t *Trainer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Trainer) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
	slog.Debug("trainer state", "state", s.String())
}

func (t *Trainer) begin() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.running() {
		return fmt.Errorf("trainer: run already in progress (state %s)", t.state)
	}
	t.state = Idle
	return nil
}

// Train fits a fresh codec and model on records. The returned bundle has no
// version; the store assigns one on save.
func (t *Trainer) Train(ctx context.Context, records []model.LabeledRecord) (*artifact.Bundle, error) {
	return t.run(ctx, records, nil)
}

// Retrain extends base's codec with the labels new in records and warm-starts
// from base's parameters. Existing label indices are preserved.
func (t *Trainer) Retrain(ctx context.Context, records []model.LabeledRecord, base *artifact.Bundle) (*artifact.Bundle, error) {
	if base == nil {
		return nil, &model.SchemaError{Reason: "retrain requires a base bundle"}
	}
	return t.run(ctx, records, base)
}

func (t *Trainer) run(ctx context.Context, records []model.LabeledRecord, base *artifact.Bundle) (*artifact.Bundle, error) {
	if err := t.begin(); err != nil {
		return nil, err
	}
	start := time.Now()
	rng := rand.New(rand.NewPCG(t.cfg.Seed, t.cfg.Seed^0x9e3779b97f4a7c15))

	t.setState(Preparing)
	prep, err := t.prepare(ctx, records, base, rng)
	if err != nil {
		t.setState(Failed)
		return nil, err
	}

	t.setState(Optimizing)
	finalLoss, err := t.optimize(ctx, prep, rng)
	if err != nil {
		t.setState(Failed)
		slog.Error("training failed", "run_id", t.runID, "error", err)
		return nil, err
	}

	t.setState(Finalizing)
	evalSet := prep.holdout
	onTraining := false
	if len(evalSet) == 0 {
		evalSet, onTraining = prep.train, true
	}
	metrics, err := evaluate(prep.model, prep.codec, evalSet)
	if err != nil {
		t.setState(Failed)
		return nil, err
	}
	metrics.EvaluatedOnTraining = onTraining
	metrics.FinalLoss = finalLoss
	metrics.Epochs = t.cfg.Epochs

	b := &artifact.Bundle{
		CreatedAt:    time.Now().UTC(),
		RunID:        t.runID,
		Encoder:      artifact.Encoder{Name: t.emb.Name(), Dim: t.emb.Dim()},
		Model:        prep.model,
		Codec:        prep.codec,
		ClassWeights: prep.weights,
		Metrics:      metrics,
	}
	if base != nil {
		b.BaseVersion = base.Version
	}
	t.setState(Done)

	slog.Info("training complete",
		"run_id", t.runID,
		"records", len(records),
		"categories", prep.codec.NumCategories(),
		"families", prep.codec.NumFamilies(),
		"loss", finalLoss,
		"category_accuracy", metrics.CategoryAccuracy,
		"family_accuracy", metrics.FamilyAccuracy,
		"consistency", metrics.ConsistencyRate,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return b, nil
}

type prepared struct {
	codec   *codec.Codec
	model   *classifier.Model
	weights artifact.ClassWeights
	train   []classifier.Example
	holdout []classifier.Example
}

func (t *Trainer) prepare(ctx context.Context, records []model.LabeledRecord, base *artifact.Bundle, rng *rand.Rand) (*prepared, error) {
	if len(records) == 0 {
		return nil, &model.SchemaError{Reason: "no training records"}
	}

	var (
		c   *codec.Codec
		err error
	)
	if base == nil {
		c, err = codec.Fit(records)
	} else {
		if base.Encoder.Dim != t.emb.Dim() {
			return nil, &model.DimensionMismatchError{What: "encoder width vs base bundle", Expected: base.Encoder.Dim, Got: t.emb.Dim()}
		}
		if base.Encoder.Name != t.emb.Name() {
			slog.Warn("encoder differs from base bundle", "base", base.Encoder.Name, "current", t.emb.Name())
		}
		c, err = base.Codec.Extend(records)
	}
	if err != nil {
		return nil, err
	}
	cats, fams, err := c.EncodeAll(records)
	if err != nil {
		return nil, err
	}

	embeddings, err := t.embedAll(ctx, model.Texts(records))
	if err != nil {
		return nil, err
	}

	examples := make([]classifier.Example, len(records))
	for i := range records {
		examples[i] = classifier.Example{Embedding: embeddings[i], Category: cats[i], Family: fams[i]}
	}
	rng.Shuffle(len(examples), func(i, j int) { examples[i], examples[j] = examples[j], examples[i] })

	nHold := int(math.Floor(t.cfg.ValidationFraction * float64(len(examples))))
	if nHold >= len(examples) {
		nHold = len(examples) - 1
	}
	split := len(examples) - nHold
	train, holdout := examples[:split], examples[split:]

	trainCats := make([]int, len(train))
	trainFams := make([]int, len(train))
	for i, ex := range train {
		trainCats[i], trainFams[i] = ex.Category, ex.Family
	}
	weights := artifact.ClassWeights{
		Category: classWeights(trainCats, c.NumCategories(), t.cfg.MinClassWeight),
		Family:   classWeights(trainFams, c.NumFamilies(), t.cfg.MinClassWeight),
	}

	var m *classifier.Model
	if base == nil {
		m = classifier.New(t.emb.Dim(), c.NumCategories(), c.NumFamilies(), rng)
	} else {
		if err := base.Model.CheckShapes(base.Encoder.Dim, base.Codec); err != nil {
			return nil, err
		}
		m, err = base.Model.Grow(c.NumCategories(), c.NumFamilies(), rng)
		if err != nil {
			return nil, err
		}
	}

	slog.Info("training prepared",
		"run_id", t.runID,
		"train", len(train),
		"holdout", len(holdout),
		"categories", c.NumCategories(),
		"families", c.NumFamilies(),
		"encoder", t.emb.Name(),
	)
	return &prepared{codec: c, model: m, weights: weights, train: train, holdout: holdout}, nil
}

// embedAll encodes texts in BatchSize chunks, checking ctx between chunks.
func (t *Trainer) embedAll(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for lo := 0; lo < len(texts); lo += t.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hi := min(lo+t.cfg.BatchSize, len(texts))
		vecs, err := t.emb.EmbedBatch(texts[lo:hi])
		if err != nil {
			return nil, fmt.Errorf("trainer: embed records %d-%d: %w", lo, hi-1, err)
		}
		for _, v := range vecs {
			if len(v) != t.emb.Dim() {
				return nil, &model.DimensionMismatchError{What: "encoder output width", Expected: t.emb.Dim(), Got: len(v)}
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// optimize runs the epochs and returns the last epoch's mean loss.
func (t *Trainer) optimize(ctx context.Context, p *prepared, rng *rand.Rand) (float64, error) {
	obj := classifier.Objective{
		CategoryWeights: p.weights.Category,
		FamilyWeights:   p.weights.Family,
		PenaltyWeight:   t.cfg.PenaltyWeight,
		Dropout:         t.cfg.Dropout,
	}
	grads := classifier.NewGrads(p.model)
	opt := newAdam(t.cfg, p.model.Params())

	batchesPerEpoch := (len(p.train) + t.cfg.BatchSize - 1) / t.cfg.BatchSize
	bar := t.newProgressBar(batchesPerEpoch * t.cfg.Epochs)

	order := make([]int, len(p.train))
	for i := range order {
		order[i] = i
	}

	var epochLoss float64
	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var sum float64
		for b := 0; b < batchesPerEpoch; b++ {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			batch := order[b*t.cfg.BatchSize : min((b+1)*t.cfg.BatchSize, len(order))]

			grads.Zero()
			var batchLoss float64
			for _, idx := range batch {
				ex := p.train[idx]
				l := p.model.Accumulate(grads, ex, obj, p.codec.LegalFamilies(ex.Category), rng)
				batchLoss += l.Total(obj.PenaltyWeight)
			}
			batchLoss /= float64(len(batch))
			if math.IsNaN(batchLoss) || math.IsInf(batchLoss, 0) {
				return 0, &model.TrainingDivergedError{Epoch: epoch, Batch: b + 1, Loss: batchLoss}
			}
			grads.Scale(1 / float64(len(batch)))
			opt.step(p.model.Params(), grads.Slices())
			sum += batchLoss

			if bar != nil {
				if err := bar.Add(1); err != nil {
					slog.Warn("Failed to update progress bar", "error", err)
				}
			}
		}
		epochLoss = sum / float64(batchesPerEpoch)
		slog.Info("epoch complete", "run_id", t.runID, "epoch", epoch, "loss", epochLoss)
	}

	if bar != nil {
		if err := bar.Finish(); err != nil {
			slog.Warn("Failed to finish progress bar", "error", err)
		}
	}
	return epochLoss, nil
}

func (t *Trainer) newProgressBar(total int) *progressbar.ProgressBar {
	if t.progress == nil {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(t.progress),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("training"),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(t.progress); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}
