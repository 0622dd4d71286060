package model

import (
	"errors"
	"fmt"
)

// Sentinel errors. Each typed error below matches exactly one of these through
// errors.Is, so callers can branch on the kind without unpacking the context.
var (
	ErrSchema            = errors.New("schema error")
	ErrUnknownLabel      = errors.New("unknown label")
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrTrainingDiverged  = errors.New("training diverged")
	ErrCodecIncompatible = errors.New("codec incompatible")
	ErrConfiguration     = errors.New("configuration error")
	ErrAlreadyExists     = errors.New("already exists")
	ErrNotFound          = errors.New("not found")
)

// Level names one side of the label hierarchy.
type Level string

const (
	LevelCategory Level = "category"
	LevelFamily   Level = "family"
)

// SchemaError reports malformed or ambiguous hierarchy data.
type SchemaError struct {
	Record string // record id or text excerpt, when known
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Record != "" {
		return fmt.Sprintf("schema error: record %q: %s", e.Record, e.Reason)
	}
	return "schema error: " + e.Reason
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// UnknownLabelError reports a label the codec has never seen.
type UnknownLabelError struct {
	Level Level
	Label string
}

func (e *UnknownLabelError) Error() string {
	return fmt.Sprintf("unknown %s label %q", e.Level, e.Label)
}

func (e *UnknownLabelError) Is(target error) bool { return target == ErrUnknownLabel }

// DimensionMismatchError reports a model whose shape disagrees with its codec
// or encoder, usually a bundle loaded with the wrong codec.
type DimensionMismatchError struct {
	What     string
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: %s: expected %d, got %d", e.What, e.Expected, e.Got)
}

func (e *DimensionMismatchError) Is(target error) bool { return target == ErrDimensionMismatch }

// TrainingDivergedError reports a non-finite loss during optimization.
type TrainingDivergedError struct {
	Epoch int
	Batch int
	Loss  float64
}

func (e *TrainingDivergedError) Error() string {
	return fmt.Sprintf("training diverged at epoch %d batch %d: loss=%v", e.Epoch, e.Batch, e.Loss)
}

func (e *TrainingDivergedError) Is(target error) bool { return target == ErrTrainingDiverged }

// CodecIncompatibleError reports a retrain codec that renumbers or drops a base label.
type CodecIncompatibleError struct {
	BaseVersion string
	Level       Level
	Index       int
	Expected    string // label at Index in the base codec
	Got         string // label at Index in the candidate codec, empty when missing
}

func (e *CodecIncompatibleError) Error() string {
	if e.Got == "" {
		return fmt.Sprintf("codec incompatible with %s: %s %q (index %d) missing",
			e.BaseVersion, e.Level, e.Expected, e.Index)
	}
	return fmt.Sprintf("codec incompatible with %s: %s index %d is %q, base has %q",
		e.BaseVersion, e.Level, e.Index, e.Got, e.Expected)
}

func (e *CodecIncompatibleError) Is(target error) bool { return target == ErrCodecIncompatible }

// ConfigurationError reports an out-of-range option value.
type ConfigurationError struct {
	Key    string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s=%v: %s", e.Key, e.Value, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// AlreadyExistsError reports an attempt to overwrite a published bundle.
type AlreadyExistsError struct {
	Version string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("bundle %q already exists", e.Version)
}

func (e *AlreadyExistsError) Is(target error) bool { return target == ErrAlreadyExists }

// NotFoundError reports an unknown bundle version.
type NotFoundError struct {
	Version string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("bundle %q not found", e.Version)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
