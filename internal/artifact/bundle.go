// Package artifact defines the model bundle and the versioned store that
// publishes bundles atomically under "base" or "retrain_vN".
package artifact

import (
	"time"

	"github.com/hejijunhao/hierclass/internal/engine/classifier"
	"github.com/hejijunhao/hierclass/internal/engine/codec"
	"github.com/hejijunhao/hierclass/internal/model"
)

// Version identifiers.
const (
	BaseVersion   = "base"
	retrainPrefix = "retrain_v"
)

// ClassWeights are the inverse-frequency loss weights used for the run, indexed
// like the codec.
type ClassWeights struct {
	Category []float64 `json:"category"`
	Family   []float64 `json:"family"`
}

// Encoder identifies the frozen encoder the heads were trained on.
type Encoder struct {
	Name string `toml:"name"`
	Dim  int    `toml:"dim"`
}

// Bundle is the unit of persistence: heads, codec (with its legality mask),
// class weights, and provenance under one version id.
type Bundle struct {
	Version     string
	BaseVersion string // for retrains, the bundle whose codec this one extends
	CreatedAt   time.Time
	RunID       string

	Encoder      Encoder
	Model        *classifier.Model
	Codec        *codec.Codec
	ClassWeights ClassWeights
	Metrics      model.Metrics
}

// LegalityMask returns the codec's category -> families map.
func (b *Bundle) LegalityMask() map[int][]int {
	return b.Codec.LegalityMask()
}

// Check verifies that the model, codec, encoder width, and class weights agree.
func (b *Bundle) Check() error {
	if b.Model == nil || b.Codec == nil {
		return &model.SchemaError{Reason: "bundle is missing its model or codec"}
	}
	if err := b.Model.CheckShapes(b.Encoder.Dim, b.Codec); err != nil {
		return err
	}
	if n := len(b.ClassWeights.Category); n != b.Codec.NumCategories() {
		return &model.DimensionMismatchError{What: "category class weights", Expected: b.Codec.NumCategories(), Got: n}
	}
	if n := len(b.ClassWeights.Family); n != b.Codec.NumFamilies() {
		return &model.DimensionMismatchError{What: "family class weights", Expected: b.Codec.NumFamilies(), Got: n}
	}
	return nil
}
