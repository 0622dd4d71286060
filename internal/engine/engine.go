// Package engine ties the encoder, trainer, artifact store, and run ledger
// together: it trains and publishes bundles and opens inference pipelines on
// published versions.
package engine

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hejijunhao/hierclass/internal/artifact"
	"github.com/hejijunhao/hierclass/internal/engine/embedder"
	"github.com/hejijunhao/hierclass/internal/engine/trainer"
	"github.com/hejijunhao/hierclass/internal/model"
	"github.com/hejijunhao/hierclass/internal/pipeline"
	"github.com/hejijunhao/hierclass/internal/runlog"
)

// Latest resolves to the newest published version.
const Latest = "latest"

// Engine orchestrates train → publish and load → classify.
type Engine struct {
	embedder embedder.Embedder
	store    *artifact.Store
	cfg      trainer.Config
	ledger   *runlog.Ledger
	progress io.Writer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLedger records every training attempt in l.
func WithLedger(l *runlog.Ledger) Option {
	return func(e *Engine) { e.ledger = l }
}

// WithProgress renders a training progress bar on w.
func WithProgress(w io.Writer) Option {
	return func(e *Engine) { e.progress = w }
}

// New creates an Engine. cfg is validated when a training run starts.
func New(emb embedder.Embedder, store *artifact.Store, cfg trainer.Config, opts ...Option) *Engine {
	e := &Engine{embedder: emb, store: store, cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the artifact store.
func (e *Engine) Store() *artifact.Store { return e.store }

// Train fits a fresh model on records and publishes it as the base bundle.
func (e *Engine) Train(ctx context.Context, records []model.LabeledRecord) (*artifact.Bundle, error) {
	runID, err := e.start(ctx, runlog.KindTrain, len(records), "")
	if err != nil {
		return nil, err
	}
	b, err := e.train(ctx, runID, func(tr *trainer.Trainer) (*artifact.Bundle, error) {
		return tr.Train(ctx, records)
	})
	if err == nil {
		err = e.store.SaveBase(ctx, b)
	}
	return e.finish(ctx, runID, b, err)
}

// Retrain extends baseVersion (or the latest version when it is empty or
// Latest) with records and publishes the result as the next retrain_vN.
func (e *Engine) Retrain(ctx context.Context, records []model.LabeledRecord, baseVersion string) (*artifact.Bundle, error) {
	base, err := e.Load(baseVersion)
	if err != nil {
		return nil, err
	}
	runID, err := e.start(ctx, runlog.KindRetrain, len(records), base.Version)
	if err != nil {
		return nil, err
	}
	b, err := e.train(ctx, runID, func(tr *trainer.Trainer) (*artifact.Bundle, error) {
		return tr.Retrain(ctx, records, base)
	})
	if err == nil {
		_, err = e.store.SaveRetrain(ctx, b, base.Version)
	}
	return e.finish(ctx, runID, b, err)
}

func (e *Engine) train(ctx context.Context, runID string, fit func(*trainer.Trainer) (*artifact.Bundle, error)) (*artifact.Bundle, error) {
	opts := []trainer.Option{trainer.WithRunID(runID)}
	if e.progress != nil {
		opts = append(opts, trainer.WithProgress(e.progress))
	}
	tr, err := trainer.New(e.embedder, e.cfg, opts...)
	if err != nil {
		return nil, err
	}
	return fit(tr)
}

func (e *Engine) start(ctx context.Context, kind runlog.Kind, records int, baseVersion string) (string, error) {
	if e.ledger == nil {
		return uuid.NewString(), nil
	}
	return e.ledger.Start(ctx, kind, records, baseVersion)
}

// finish records the outcome. Ledger errors are logged, never returned: the
// bundle is already published (or the run already failed) by this point.
func (e *Engine) finish(ctx context.Context, runID string, b *artifact.Bundle, runErr error) (*artifact.Bundle, error) {
	if runErr != nil {
		if e.ledger != nil {
			if err := e.ledger.Fail(context.WithoutCancel(ctx), runID, runErr); err != nil {
				slog.Warn("failed to record failed run", "run_id", runID, "error", err)
			}
		}
		return nil, runErr
	}
	if e.ledger != nil {
		if err := e.ledger.Finish(ctx, runID, b.Version, b.Metrics); err != nil {
			slog.Warn("failed to record finished run", "run_id", runID, "error", err)
		}
	}
	slog.Info("bundle published", "run_id", runID, "version", b.Version, "base_version", b.BaseVersion)
	return b, nil
}

// Load returns the bundle for version, resolving "" and Latest.
func (e *Engine) Load(version string) (*artifact.Bundle, error) {
	if version == "" || version == Latest {
		v, err := e.store.Latest()
		if err != nil {
			return nil, err
		}
		version = v
	}
	return e.store.Load(version)
}

// Pipeline loads version and returns an inference pipeline over it.
func (e *Engine) Pipeline(version string, threshold float64, opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	b, err := e.Load(version)
	if err != nil {
		return nil, err
	}
	return pipeline.New(e.embedder, b, threshold, opts...)
}
