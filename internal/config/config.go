// Package config loads hierclass settings from an optional hierclass.yaml,
// HIERCLASS_* environment variables, and bound CLI flags, in that order of
// increasing precedence.
package config

import (
	"errors"
	"math"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"

	"github.com/hejijunhao/hierclass/internal/engine/embedder"
	"github.com/hejijunhao/hierclass/internal/engine/trainer"
	"github.com/hejijunhao/hierclass/internal/model"
	"github.com/hejijunhao/hierclass/internal/output"
)

// EnvPrefix is prepended to every environment variable, e.g.
// HIERCLASS_TRAINING_BATCH_SIZE.
const EnvPrefix = "HIERCLASS"

// Config holds all hierclass configuration.
type Config struct {
	Store     StoreConfig     `mapstructure:"store"`
	Encoder   EncoderConfig   `mapstructure:"encoder"`
	Training  TrainingConfig  `mapstructure:"training"`
	Inference InferenceConfig `mapstructure:"inference"`
	Output    OutputConfig    `mapstructure:"output"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// StoreConfig locates bundles and the run ledger.
type StoreConfig struct {
	Dir        string `mapstructure:"dir"`
	RunlogPath string `mapstructure:"runlog_path"` // default <dir>/runs.db
}

// EncoderConfig selects and locates the frozen text encoder.
type EncoderConfig struct {
	Kind              string `mapstructure:"kind"` // "onnx" or "hashing"
	ModelPath         string `mapstructure:"model_path"`
	VocabPath         string `mapstructure:"vocab_path"`
	ProjectionPath    string `mapstructure:"projection_path"`
	LibraryPath       string `mapstructure:"library_path"`
	MaxSequenceLength int    `mapstructure:"max_sequence_length"`
	HashingDim        int    `mapstructure:"hashing_dim"`
	Threads           int    `mapstructure:"threads"`
}

// TrainingConfig mirrors trainer.Config.
type TrainingConfig struct {
	BatchSize              int     `mapstructure:"batch_size"`
	LearningRate           float64 `mapstructure:"learning_rate"`
	NumEpochs              int     `mapstructure:"num_epochs"`
	HierarchyPenaltyWeight float64 `mapstructure:"hierarchy_penalty_weight"`
	MinClassWeight         float64 `mapstructure:"min_class_weight"`
	Dropout                float64 `mapstructure:"dropout"`
	ValidationFraction     float64 `mapstructure:"validation_fraction"`
	Seed                   uint64  `mapstructure:"seed"`
	Beta1                  float64 `mapstructure:"beta1"`
	Beta2                  float64 `mapstructure:"beta2"`
	Epsilon                float64 `mapstructure:"epsilon"`
}

// InferenceConfig holds pipeline settings.
type InferenceConfig struct {
	ClassificationThreshold float64 `mapstructure:"classification_threshold"`
	BatchSize               int     `mapstructure:"batch_size"`
	Workers                 int     `mapstructure:"workers"`
	Version                 string  `mapstructure:"version"` // bundle to load; "latest" by default
}

// OutputConfig holds partition writer settings.
type OutputConfig struct {
	Dir       string   `mapstructure:"dir"`
	Formats   []string `mapstructure:"formats"` // any of xlsx, ndjson, stdout
	Verbosity string   `mapstructure:"verbosity"`
}

// LoggingConfig holds slog settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"; empty picks by output
}

// New returns a viper instance with defaults and environment binding applied.
// Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// SetDefaults registers the default of every key. AutomaticEnv only resolves
// keys viper knows about, so every key has a default here.
func SetDefaults(v *viper.Viper) {
	tc := trainer.DefaultConfig()

	v.SetDefault("store.dir", "models/hierclass")
	v.SetDefault("store.runlog_path", "")

	v.SetDefault("encoder.kind", "onnx")
	v.SetDefault("encoder.model_path", "models/model_quantized.onnx")
	v.SetDefault("encoder.vocab_path", "models/vocab.txt")
	v.SetDefault("encoder.projection_path", "")
	v.SetDefault("encoder.library_path", "")
	v.SetDefault("encoder.max_sequence_length", embedder.DefaultMaxSeqLen)
	v.SetDefault("encoder.hashing_dim", 512)
	v.SetDefault("encoder.threads", 0)

	v.SetDefault("training.batch_size", tc.BatchSize)
	v.SetDefault("training.learning_rate", tc.LearningRate)
	v.SetDefault("training.num_epochs", tc.Epochs)
	v.SetDefault("training.hierarchy_penalty_weight", tc.PenaltyWeight)
	v.SetDefault("training.min_class_weight", tc.MinClassWeight)
	v.SetDefault("training.dropout", tc.Dropout)
	v.SetDefault("training.validation_fraction", tc.ValidationFraction)
	v.SetDefault("training.seed", tc.Seed)
	v.SetDefault("training.beta1", tc.Beta1)
	v.SetDefault("training.beta2", tc.Beta2)
	v.SetDefault("training.epsilon", tc.Epsilon)

	v.SetDefault("inference.classification_threshold", 0.86)
	v.SetDefault("inference.batch_size", tc.BatchSize)
	v.SetDefault("inference.workers", 4)
	v.SetDefault("inference.version", "latest")

	v.SetDefault("output.dir", "out")
	v.SetDefault("output.formats", []string{"xlsx"})
	v.SetDefault("output.verbosity", "minimal")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "")
}

// Load reads the config file, if any, and unmarshals v. An explicit file that
// cannot be read is an error; a missing hierclass.yaml in the search path is not.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("hierclass")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if cfg.Store.RunlogPath == "" {
		cfg.Store.RunlogPath = filepath.Join(cfg.Store.Dir, "runs.db")
	}
	return &cfg, nil
}

// Validate rejects out-of-range values.
func (c *Config) Validate() error {
	if c.Store.Dir == "" {
		return &model.ConfigurationError{Key: "store.dir", Value: c.Store.Dir, Reason: "must not be empty"}
	}
	switch c.Encoder.Kind {
	case "onnx":
		if c.Encoder.ModelPath == "" || c.Encoder.VocabPath == "" {
			return &model.ConfigurationError{Key: "encoder.model_path", Value: c.Encoder.ModelPath, Reason: "onnx encoder needs model_path and vocab_path"}
		}
	case "hashing":
		if c.Encoder.HashingDim < 1 {
			return &model.ConfigurationError{Key: "encoder.hashing_dim", Value: c.Encoder.HashingDim, Reason: "must be >= 1"}
		}
	default:
		return &model.ConfigurationError{Key: "encoder.kind", Value: c.Encoder.Kind, Reason: `must be "onnx" or "hashing"`}
	}
	if c.Encoder.MaxSequenceLength < 2 {
		return &model.ConfigurationError{Key: "max_sequence_length", Value: c.Encoder.MaxSequenceLength, Reason: "must be >= 2"}
	}
	if err := c.Trainer().Validate(); err != nil {
		return err
	}

	t := c.Inference.ClassificationThreshold
	if math.IsNaN(t) || t < 0 || t > 1 {
		return &model.ConfigurationError{Key: "classification_threshold", Value: t, Reason: "must be in [0, 1]"}
	}
	if c.Inference.BatchSize < 1 {
		return &model.ConfigurationError{Key: "inference.batch_size", Value: c.Inference.BatchSize, Reason: "must be >= 1"}
	}
	if c.Inference.Workers < 1 {
		return &model.ConfigurationError{Key: "inference.workers", Value: c.Inference.Workers, Reason: "must be >= 1"}
	}

	for _, f := range c.Output.Formats {
		switch f {
		case "xlsx", "ndjson", "stdout":
		default:
			return &model.ConfigurationError{Key: "output.formats", Value: f, Reason: "must be xlsx, ndjson, or stdout"}
		}
	}
	if _, err := output.ParseVerbosity(c.Output.Verbosity); err != nil {
		return &model.ConfigurationError{Key: "output.verbosity", Value: c.Output.Verbosity, Reason: err.Error()}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return &model.ConfigurationError{Key: "logging.format", Value: c.Logging.Format, Reason: `must be "text" or "json"`}
	}
	return nil
}

// Trainer converts the training section.
func (c *Config) Trainer() trainer.Config {
	t := c.Training
	return trainer.Config{
		BatchSize:          t.BatchSize,
		LearningRate:       t.LearningRate,
		Epochs:             t.NumEpochs,
		PenaltyWeight:      t.HierarchyPenaltyWeight,
		MinClassWeight:     t.MinClassWeight,
		Dropout:            t.Dropout,
		ValidationFraction: t.ValidationFraction,
		Seed:               t.Seed,
		Beta1:              t.Beta1,
		Beta2:              t.Beta2,
		Epsilon:            t.Epsilon,
	}
}

// OpenEncoder builds the configured embedder.
func (c *Config) OpenEncoder() (embedder.Embedder, error) {
	e := c.Encoder
	if e.Kind == "hashing" {
		h, err := embedder.NewHashing(e.HashingDim, e.MaxSequenceLength)
		if err != nil {
			return nil, err
		}
		return h, nil
	}
	o, err := embedder.NewONNX(embedder.ONNXOptions{
		ModelPath:      e.ModelPath,
		VocabPath:      e.VocabPath,
		ProjectionPath: e.ProjectionPath,
		LibraryPath:    e.LibraryPath,
		MaxSeqLen:      e.MaxSequenceLength,
		IntraOpThreads: e.Threads,
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}
