package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hejijunhao/hierclass/internal/artifact"
	"github.com/hejijunhao/hierclass/internal/engine/classifier"
	"github.com/hejijunhao/hierclass/internal/engine/codec"
	"github.com/hejijunhao/hierclass/internal/model"
)

// mapEmbedder returns a fixed vector per known text and fails on failText.
type mapEmbedder struct {
	vecs     map[string][]float64
	dim      int
	failText string
}

func (e *mapEmbedder) Embed(text string) ([]float64, error) {
	if text == e.failText {
		return nil, errors.New("encoder exploded")
	}
	if v, ok := e.vecs[text]; ok {
		return v, nil
	}
	return make([]float64, e.dim), nil
}

func (e *mapEmbedder) EmbedBatch(texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := e.Embed(t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *mapEmbedder) Dim() int     { return e.dim }
func (e *mapEmbedder) Name() string { return "map" }
func (e *mapEmbedder) Close() error { return nil }

// recordingWriter captures partitions handed to it.
type recordingWriter struct {
	got    []model.Partition
	closed bool
}

func (w *recordingWriter) Write(_ context.Context, p model.Partition) error {
	w.got = append(w.got, p)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

// exampleBundle is built so that "cable" is confidently electronica while the
// raw family head prefers tuberia, and "tubo" is confidently plasticos.
func exampleBundle(t *testing.T) *artifact.Bundle {
	t.Helper()
	c, err := codec.Fit([]model.LabeledRecord{
		{Text: "cable eléctrico de cobre", Category: "electronica", Family: "cables"},
		{Text: "tubo de pvc", Category: "plasticos", Family: "tuberia"},
	})
	require.NoError(t, err)

	m := &classifier.Model{
		Dim: 2, NumCategories: 2, NumFamilies: 2,
		CategoryW: []float64{
			8, 0, // electronica
			0, 8, // plasticos
		},
		CategoryB: []float64{0, 0},
		FamilyW: []float64{
			0, 0, 0, 0, // cables
			3, 6, 0, 0, // tuberia
		},
		FamilyB: []float64{0, 0},
	}
	return &artifact.Bundle{
		Version:      "base",
		Encoder:      artifact.Encoder{Name: "map", Dim: 2},
		Model:        m,
		Codec:        c,
		ClassWeights: artifact.ClassWeights{Category: []float64{1, 1}, Family: []float64{1, 1}},
	}
}

func exampleEmbedder() *mapEmbedder {
	return &mapEmbedder{dim: 2, vecs: map[string][]float64{
		"cable": {1, 0},
		"tubo":  {0, 1},
		"???":   {0.05, 0.05},
	}}
}

func fixedClock() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) }

func TestValidateThreshold(t *testing.T) {
	for _, ok := range []float64{0, 0.5, 0.86, 1} {
		assert.NoError(t, ValidateThreshold(ok), ok)
	}
	for _, bad := range []float64{-0.01, 1.01, math.NaN(), math.Inf(1)} {
		err := ValidateThreshold(bad)
		var ce *model.ConfigurationError
		require.ErrorAs(t, err, &ce, bad)
		assert.Equal(t, "classification_threshold", ce.Key)
	}

	_, err := New(exampleEmbedder(), exampleBundle(t), 1.5)
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestSplitBoundaryIsInclusive(t *testing.T) {
	preds := []model.PredictionRecord{
		{RecordID: "a", Confidence: 0.84},
		{RecordID: "b", Confidence: 0.86},
		{RecordID: "c", Confidence: 0.99},
		{RecordID: "d", Confidence: 0.1},
	}
	p := Split(preds, 0.86)

	require.Len(t, p.Classified, 2)
	require.Len(t, p.Unclassified, 2)
	assert.Equal(t, "b", p.Classified[0].RecordID)
	assert.Equal(t, "c", p.Classified[1].RecordID)
	assert.Equal(t, "a", p.Unclassified[0].RecordID)
	assert.Equal(t, "d", p.Unclassified[1].RecordID)
	assert.Equal(t, 0.86, p.Threshold)
}

func TestClassifyRemapsIllegalFamily(t *testing.T) {
	pl, err := New(exampleEmbedder(), exampleBundle(t), DefaultThreshold, WithClock(fixedClock))
	require.NoError(t, err)

	part, err := pl.Classify(context.Background(), []model.InputRecord{{ID: "r1", Text: "cable"}})
	require.NoError(t, err)
	require.Len(t, part.Classified, 1)

	r := part.Classified[0]
	assert.Equal(t, "r1", r.RecordID)
	assert.Equal(t, "electronica", r.Category)
	assert.Equal(t, "cables", r.Family, "tuberia is illegal under electronica")
	assert.InDelta(t, 1.0, r.FamilyConfidence, 1e-12)
	assert.InDelta(t, (r.CategoryConfidence+r.FamilyConfidence)/2, r.Confidence, 1e-12)
	assert.Equal(t, "base", part.Version)
	assert.Equal(t, fixedClock(), part.GeneratedAt)
}

func TestClassifyPartitionInvariant(t *testing.T) {
	pl, err := New(exampleEmbedder(), exampleBundle(t), DefaultThreshold, WithBatchSize(2), WithWorkers(3))
	require.NoError(t, err)

	texts := []string{"cable", "???", "tubo", "cable", "???", "tubo", "tubo"}
	records := make([]model.InputRecord, len(texts))
	for i, txt := range texts {
		records[i] = model.InputRecord{ID: fmt.Sprintf("r%d", i), Text: txt}
	}

	part, err := pl.Classify(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, len(records), part.Len())

	seen := map[string]int{}
	for _, r := range part.Classified {
		seen[r.RecordID]++
		assert.GreaterOrEqual(t, r.Confidence, DefaultThreshold)
	}
	for _, r := range part.Unclassified {
		seen[r.RecordID]++
		assert.Less(t, r.Confidence, DefaultThreshold)
	}
	for _, r := range records {
		assert.Equal(t, 1, seen[r.ID], r.ID)
	}

	// The ambiguous texts fall below the cutoff; order is preserved on both sides.
	assert.Equal(t, []string{"r1", "r4"}, ids(part.Unclassified))
	assert.Equal(t, []string{"r0", "r2", "r3", "r5", "r6"}, ids(part.Classified))
}

func ids(recs []model.PredictionRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.RecordID
	}
	return out
}

func TestClassifyIsDeterministic(t *testing.T) {
	pl, err := New(exampleEmbedder(), exampleBundle(t), 0.5, WithBatchSize(1), WithWorkers(4))
	require.NoError(t, err)

	records := []model.InputRecord{{ID: "a", Text: "cable"}, {ID: "b", Text: "???"}, {ID: "c", Text: "tubo"}}
	first, err := pl.Classify(context.Background(), records)
	require.NoError(t, err)
	second, err := pl.Classify(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, first.Classified, second.Classified)
	assert.Equal(t, first.Unclassified, second.Unclassified)
}

func TestClassifyFillsMissingIDs(t *testing.T) {
	pl, err := New(exampleEmbedder(), exampleBundle(t), 0)
	require.NoError(t, err)

	part, err := pl.Classify(context.Background(), []model.InputRecord{{Text: "cable"}, {ID: "x", Text: "tubo"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "x"}, ids(part.Classified))
}

func TestClassifyRejectsDuplicateIDs(t *testing.T) {
	tests := []struct {
		name    string
		records []model.InputRecord
		id      string
	}{
		{"explicit duplicates", []model.InputRecord{{ID: "a", Text: "cable"}, {ID: "a", Text: "tubo"}}, "a"},
		{"position collides with explicit id", []model.InputRecord{{ID: "2", Text: "cable"}, {Text: "tubo"}}, "2"},
		{"explicit id collides with position", []model.InputRecord{{Text: "cable"}, {ID: "1", Text: "tubo"}}, "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &recordingWriter{}
			pl, err := New(exampleEmbedder(), exampleBundle(t), 0, WithOutput(w))
			require.NoError(t, err)

			_, err = pl.Run(context.Background(), tt.records)
			var se *model.SchemaError
			require.ErrorAs(t, err, &se)
			assert.ErrorIs(t, err, model.ErrSchema)
			assert.Equal(t, tt.id, se.Record)
			assert.Empty(t, w.got)
		})
	}
}

func TestClassifyEmpty(t *testing.T) {
	pl, err := New(exampleEmbedder(), exampleBundle(t), DefaultThreshold)
	require.NoError(t, err)

	part, err := pl.Classify(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, part.Len())
	assert.NotNil(t, part.Classified)
	assert.NotNil(t, part.Unclassified)
}

func TestClassifyFailureIsAllOrNothing(t *testing.T) {
	emb := exampleEmbedder()
	emb.failText = "boom"
	w := &recordingWriter{}
	pl, err := New(emb, exampleBundle(t), DefaultThreshold, WithBatchSize(1), WithOutput(w))
	require.NoError(t, err)

	part, err := pl.Run(context.Background(), []model.InputRecord{{ID: "a", Text: "cable"}, {ID: "b", Text: "boom"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encoder exploded")
	assert.Equal(t, 0, part.Len())
	assert.Empty(t, w.got, "nothing reaches the output on failure")
}

func TestClassifyCancelled(t *testing.T) {
	pl, err := New(exampleEmbedder(), exampleBundle(t), DefaultThreshold)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pl.Classify(ctx, []model.InputRecord{{ID: "a", Text: "cable"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunWritesOutput(t *testing.T) {
	w := &recordingWriter{}
	pl, err := New(exampleEmbedder(), exampleBundle(t), DefaultThreshold, WithOutput(w), WithClock(fixedClock))
	require.NoError(t, err)

	part, err := pl.Run(context.Background(), []model.InputRecord{{ID: "a", Text: "cable"}, {ID: "b", Text: "???"}})
	require.NoError(t, err)
	require.Len(t, w.got, 1)
	assert.Equal(t, part, w.got[0])

	require.NoError(t, pl.Close())
	assert.True(t, w.closed)
}

func TestNewRejectsMismatchedBundle(t *testing.T) {
	_, err := New(&mapEmbedder{dim: 3}, exampleBundle(t), DefaultThreshold)
	assert.ErrorIs(t, err, model.ErrDimensionMismatch)

	b := exampleBundle(t)
	b.Model.NumFamilies = 3
	_, err = New(exampleEmbedder(), b, DefaultThreshold)
	assert.ErrorIs(t, err, model.ErrDimensionMismatch)

	_, err = New(exampleEmbedder(), exampleBundle(t), DefaultThreshold, WithWorkers(0))
	assert.ErrorIs(t, err, model.ErrConfiguration)
}
