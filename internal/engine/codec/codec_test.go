package codec

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hejijunhao/hierclass/internal/model"
)

func sampleRecords() []model.LabeledRecord {
	return []model.LabeledRecord{
		{Text: "cable eléctrico de cobre", Category: "electronica", Family: "cables"},
		{Text: "tubo de pvc", Category: "plasticos", Family: "tuberia"},
	}
}

func TestFitExample(t *testing.T) {
	c, err := Fit(sampleRecords())
	require.NoError(t, err)

	assert.Equal(t, 2, c.NumCategories())
	assert.Equal(t, 2, c.NumFamilies())
	assert.Equal(t, []string{"electronica", "plasticos"}, c.Categories())
	assert.Equal(t, []string{"cables", "tuberia"}, c.Families())
	assert.Equal(t, map[int][]int{0: {0}, 1: {1}}, c.LegalityMask())

	assert.True(t, c.IsLegal(0, 0))
	assert.False(t, c.IsLegal(0, 1))
	assert.True(t, c.IsLegal(1, 1))
	assert.False(t, c.IsLegal(1, 5))
}

func TestFitFirstSeenOrder(t *testing.T) {
	c, err := Fit([]model.LabeledRecord{
		{Category: "z", Family: "z1"},
		{Category: "a", Family: "a1"},
		{Category: "z", Family: "z2"},
		{Category: "a", Family: "a1"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"z", "a"}, c.Categories())
	assert.Equal(t, []string{"z1", "a1", "z2"}, c.Families())
	assert.Equal(t, []int{0, 2}, c.LegalFamilies(0))
	assert.Equal(t, []int{1}, c.LegalFamilies(1))
}

func TestFitAmbiguousFamily(t *testing.T) {
	_, err := Fit([]model.LabeledRecord{
		{ID: "r1", Category: "electronica", Family: "cables"},
		{ID: "r2", Category: "plasticos", Family: "cables"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrSchema))

	var se *model.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "r2", se.Record)
	assert.Contains(t, se.Reason, "cables")
}

func TestFitEmptyLabel(t *testing.T) {
	_, err := Fit([]model.LabeledRecord{{Text: "x", Category: "a"}})
	assert.ErrorIs(t, err, model.ErrSchema)
}

func TestRoundTrip(t *testing.T) {
	records := []model.LabeledRecord{
		{Category: "electronica", Family: "cables"},
		{Category: "electronica", Family: "enchufes"},
		{Category: "plasticos", Family: "tuberia"},
		{Category: "plasticos", Family: "laminas"},
	}
	c, err := Fit(records)
	require.NoError(t, err)

	for _, r := range records {
		ci, fi, err := c.Encode(r)
		require.NoError(t, err)
		cat, fam, err := c.Decode(ci, fi)
		require.NoError(t, err)
		assert.Equal(t, r.Category, cat)
		assert.Equal(t, r.Family, fam)
		assert.True(t, c.IsLegal(ci, fi))
	}
}

func TestEncodeUnknown(t *testing.T) {
	c, err := Fit(sampleRecords())
	require.NoError(t, err)

	_, _, err = c.Encode(model.LabeledRecord{Category: "textiles", Family: "cables"})
	var ule *model.UnknownLabelError
	require.ErrorAs(t, err, &ule)
	assert.Equal(t, model.LevelCategory, ule.Level)
	assert.Equal(t, "textiles", ule.Label)

	_, _, err = c.Encode(model.LabeledRecord{Category: "electronica", Family: "bombillas"})
	require.ErrorAs(t, err, &ule)
	assert.Equal(t, model.LevelFamily, ule.Level)
}

func TestEncodeWrongParent(t *testing.T) {
	c, err := Fit(sampleRecords())
	require.NoError(t, err)

	_, _, err = c.Encode(model.LabeledRecord{Category: "electronica", Family: "tuberia"})
	assert.ErrorIs(t, err, model.ErrSchema)
}

func TestExtendKeepsIndices(t *testing.T) {
	base, err := Fit(sampleRecords())
	require.NoError(t, err)

	ext, err := base.Extend([]model.LabeledRecord{
		{Category: "textiles", Family: "hilos"},
		{Category: "electronica", Family: "enchufes"},
		{Category: "plasticos", Family: "tuberia"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"electronica", "plasticos", "textiles"}, ext.Categories())
	assert.Equal(t, []string{"cables", "tuberia", "hilos", "enchufes"}, ext.Families())
	assert.Equal(t, []int{0, 3}, ext.LegalFamilies(0))
	assert.NoError(t, ext.CompatibleWith(base, "base"))

	// base is untouched.
	assert.Equal(t, 2, base.NumFamilies())
}

func TestExtendRejectsReparenting(t *testing.T) {
	base, err := Fit(sampleRecords())
	require.NoError(t, err)

	_, err = base.Extend([]model.LabeledRecord{{Category: "plasticos", Family: "cables"}})
	assert.ErrorIs(t, err, model.ErrSchema)
	assert.Equal(t, 2, base.NumFamilies())
}

func TestCompatibleWith(t *testing.T) {
	base, err := Fit(sampleRecords())
	require.NoError(t, err)

	t.Run("missing label", func(t *testing.T) {
		fresh, err := Fit([]model.LabeledRecord{{Category: "electronica", Family: "cables"}})
		require.NoError(t, err)
		err = fresh.CompatibleWith(base, "base")
		var cie *model.CodecIncompatibleError
		require.ErrorAs(t, err, &cie)
		assert.Equal(t, "plasticos", cie.Expected)
		assert.Empty(t, cie.Got)
	})

	t.Run("renumbered", func(t *testing.T) {
		refit, err := Fit([]model.LabeledRecord{
			{Category: "plasticos", Family: "tuberia"},
			{Category: "electronica", Family: "cables"},
		})
		require.NoError(t, err)
		err = refit.CompatibleWith(base, "base")
		assert.ErrorIs(t, err, model.ErrCodecIncompatible)
	})
}

func TestJSONRoundTrip(t *testing.T) {
	c, err := Fit([]model.LabeledRecord{
		{Category: "electronica", Family: "cables"},
		{Category: "plasticos", Family: "tuberia"},
		{Category: "electronica", Family: "enchufes"},
	})
	require.NoError(t, err)

	data, err := json.Marshal(c)
	require.NoError(t, err)

	var got Codec
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, c.Categories(), got.Categories())
	assert.Equal(t, c.Families(), got.Families())
	assert.Equal(t, c.LegalityMask(), got.LegalityMask())
	assert.NoError(t, got.CompatibleWith(c, "base"))
}

func TestJSONRejectsInconsistentMask(t *testing.T) {
	data := []byte(`{"categories":["a","b"],"families":[{"name":"x","category":0}],"legality":{"0":[],"1":[0]}}`)
	var c Codec
	assert.ErrorIs(t, json.Unmarshal(data, &c), model.ErrSchema)
}
