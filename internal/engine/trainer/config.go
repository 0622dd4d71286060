package trainer

import (
	"io"
	"math"

	"github.com/hejijunhao/hierclass/internal/model"
)

// Config holds the optimisation settings for one run.
type Config struct {
	BatchSize          int
	LearningRate       float64
	Epochs             int
	PenaltyWeight      float64 // λ on the hierarchy penalty
	MinClassWeight     float64 // floor for inverse-frequency weights
	Dropout            float64
	ValidationFraction float64
	Seed               uint64

	// Adam moments.
	Beta1   float64
	Beta2   float64
	Epsilon float64
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		BatchSize:          32,
		LearningRate:       1e-3,
		Epochs:             10,
		PenaltyWeight:      0.5,
		MinClassWeight:     0.1,
		Dropout:            0.3,
		ValidationFraction: 0.1,
		Seed:               42,
		Beta1:              0.9,
		Beta2:              0.999,
		Epsilon:            1e-8,
	}
}

// Validate rejects values the optimiser cannot run with.
func (c Config) Validate() error {
	switch {
	case c.BatchSize < 1:
		return &model.ConfigurationError{Key: "batch_size", Value: c.BatchSize, Reason: "must be at least 1"}
	case !(c.LearningRate > 0) || math.IsInf(c.LearningRate, 0):
		return &model.ConfigurationError{Key: "learning_rate", Value: c.LearningRate, Reason: "must be positive and finite"}
	case c.Epochs < 1:
		return &model.ConfigurationError{Key: "num_epochs", Value: c.Epochs, Reason: "must be at least 1"}
	case !(c.PenaltyWeight >= 0) || math.IsInf(c.PenaltyWeight, 0):
		return &model.ConfigurationError{Key: "hierarchy_penalty_weight", Value: c.PenaltyWeight, Reason: "must be non-negative and finite"}
	case !(c.MinClassWeight >= 0):
		return &model.ConfigurationError{Key: "min_class_weight", Value: c.MinClassWeight, Reason: "must be non-negative"}
	case !(c.Dropout >= 0 && c.Dropout < 1):
		return &model.ConfigurationError{Key: "dropout", Value: c.Dropout, Reason: "must be in [0,1)"}
	case !(c.ValidationFraction >= 0 && c.ValidationFraction < 1):
		return &model.ConfigurationError{Key: "validation_fraction", Value: c.ValidationFraction, Reason: "must be in [0,1)"}
	case !(c.Beta1 >= 0 && c.Beta1 < 1):
		return &model.ConfigurationError{Key: "beta1", Value: c.Beta1, Reason: "must be in [0,1)"}
	case !(c.Beta2 >= 0 && c.Beta2 < 1):
		return &model.ConfigurationError{Key: "beta2", Value: c.Beta2, Reason: "must be in [0,1)"}
	case !(c.Epsilon > 0):
		return &model.ConfigurationError{Key: "epsilon", Value: c.Epsilon, Reason: "must be positive"}
	}
	return nil
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithProgress renders a per-batch progress bar to w.
func WithProgress(w io.Writer) Option {
	return func(t *Trainer) {
		t.progress = w
	}
}

// WithRunID tags the produced bundle with a run ledger id.
func WithRunID(id string) Option {
	return func(t *Trainer) {
		t.runID = id
	}
}
