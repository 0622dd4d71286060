// Package codec maps (category, family) label pairs to the integer indices used by
// the classifier heads and keeps the category -> family legality mask.
//
// Indices are assigned in first-seen order and never renumbered. Extending a codec
// only appends, so a model trained against an older codec keeps valid output rows.
package codec

import (
	"slices"

	"github.com/hejijunhao/hierclass/internal/model"
)

// Codec is the bidirectional label table for both hierarchy levels.
type Codec struct {
	categories    []string
	families      []string
	categoryIndex map[string]int
	familyIndex   map[string]int
	parent        []int   // family index -> category index
	legal         [][]int // category index -> family indices, ascending
}

func newEmpty() *Codec {
	return &Codec{
		categoryIndex: make(map[string]int),
		familyIndex:   make(map[string]int),
	}
}

// Fit builds a codec from every distinct (category, family) pair in records.
// A family observed under two categories is ambiguous and fails with SchemaError.
func Fit(records []model.LabeledRecord) (*Codec, error) {
	c := newEmpty()
	if err := c.add(records); err != nil {
		return nil, err
	}
	return c, nil
}

// Extend returns a new codec holding every label of c plus the labels first seen
// in records, appended after the existing indices. c itself is not modified.
func (c *Codec) Extend(records []model.LabeledRecord) (*Codec, error) {
	next := c.Clone()
	if err := next.add(records); err != nil {
		return nil, err
	}
	return next, nil
}

// add validates the whole batch before mutating, so a failed Fit or Extend never
// leaves a half-grown table behind.
func (c *Codec) add(records []model.LabeledRecord) error {
	pending := make(map[string]string) // family -> category, for families new in this batch
	for _, r := range records {
		if r.Category == "" || r.Family == "" {
			return &model.SchemaError{Record: recordRef(r), Reason: "empty category or family"}
		}
		if fi, ok := c.familyIndex[r.Family]; ok {
			owner := c.categories[c.parent[fi]]
			if owner != r.Category {
				return &model.SchemaError{
					Record: recordRef(r),
					Reason: "family " + quote(r.Family) + " belongs to category " + quote(owner) +
						", also seen under " + quote(r.Category),
				}
			}
			continue
		}
		if owner, ok := pending[r.Family]; ok && owner != r.Category {
			return &model.SchemaError{
				Record: recordRef(r),
				Reason: "family " + quote(r.Family) + " seen under categories " + quote(owner) +
					" and " + quote(r.Category),
			}
		}
		pending[r.Family] = r.Category
	}

	for _, r := range records {
		ci, ok := c.categoryIndex[r.Category]
		if !ok {
			ci = len(c.categories)
			c.categories = append(c.categories, r.Category)
			c.categoryIndex[r.Category] = ci
			c.legal = append(c.legal, nil)
		}
		if _, ok := c.familyIndex[r.Family]; ok {
			continue
		}
		fi := len(c.families)
		c.families = append(c.families, r.Family)
		c.familyIndex[r.Family] = fi
		c.parent = append(c.parent, ci)
		c.legal[ci] = append(c.legal[ci], fi)
	}
	return nil
}

// Encode returns the label indices of a record. Labels the codec has never seen
// fail with UnknownLabelError; a known family under the wrong category fails with
// SchemaError.
func (c *Codec) Encode(r model.LabeledRecord) (categoryIdx, familyIdx int, err error) {
	ci, ok := c.categoryIndex[r.Category]
	if !ok {
		return 0, 0, &model.UnknownLabelError{Level: model.LevelCategory, Label: r.Category}
	}
	fi, ok := c.familyIndex[r.Family]
	if !ok {
		return 0, 0, &model.UnknownLabelError{Level: model.LevelFamily, Label: r.Family}
	}
	if c.parent[fi] != ci {
		return 0, 0, &model.SchemaError{
			Record: recordRef(r),
			Reason: "family " + quote(r.Family) + " is not a child of category " + quote(r.Category),
		}
	}
	return ci, fi, nil
}

// EncodeAll encodes records in order, stopping at the first failure.
func (c *Codec) EncodeAll(records []model.LabeledRecord) (categories, families []int, err error) {
	categories = make([]int, len(records))
	families = make([]int, len(records))
	for i, r := range records {
		categories[i], families[i], err = c.Encode(r)
		if err != nil {
			return nil, nil, err
		}
	}
	return categories, families, nil
}

// Decode maps indices back to labels.
func (c *Codec) Decode(categoryIdx, familyIdx int) (category, family string, err error) {
	if categoryIdx < 0 || categoryIdx >= len(c.categories) {
		return "", "", &model.DimensionMismatchError{What: "category index", Expected: len(c.categories) - 1, Got: categoryIdx}
	}
	if familyIdx < 0 || familyIdx >= len(c.families) {
		return "", "", &model.DimensionMismatchError{What: "family index", Expected: len(c.families) - 1, Got: familyIdx}
	}
	return c.categories[categoryIdx], c.families[familyIdx], nil
}

// IsLegal reports whether familyIdx is a child of categoryIdx.
func (c *Codec) IsLegal(categoryIdx, familyIdx int) bool {
	if familyIdx < 0 || familyIdx >= len(c.parent) {
		return false
	}
	return c.parent[familyIdx] == categoryIdx
}

// LegalFamilies returns the family indices allowed under categoryIdx, ascending.
// The returned slice must not be modified.
func (c *Codec) LegalFamilies(categoryIdx int) []int {
	if categoryIdx < 0 || categoryIdx >= len(c.legal) {
		return nil
	}
	return c.legal[categoryIdx]
}

// Parent returns the category index owning familyIdx.
func (c *Codec) Parent(familyIdx int) int {
	return c.parent[familyIdx]
}

// NumCategories returns the size of the category label space.
func (c *Codec) NumCategories() int { return len(c.categories) }

// NumFamilies returns the size of the family label space.
func (c *Codec) NumFamilies() int { return len(c.families) }

// Categories returns the category labels in index order.
func (c *Codec) Categories() []string { return slices.Clone(c.categories) }

// Families returns the family labels in index order.
func (c *Codec) Families() []string { return slices.Clone(c.families) }

// LegalityMask returns a copy of the category -> family index mask.
func (c *Codec) LegalityMask() map[int][]int {
	out := make(map[int][]int, len(c.legal))
	for ci, fams := range c.legal {
		out[ci] = slices.Clone(fams)
	}
	return out
}

// Clone returns a deep copy.
func (c *Codec) Clone() *Codec {
	next := &Codec{
		categories:    slices.Clone(c.categories),
		families:      slices.Clone(c.families),
		categoryIndex: make(map[string]int, len(c.categoryIndex)),
		familyIndex:   make(map[string]int, len(c.familyIndex)),
		parent:        slices.Clone(c.parent),
		legal:         make([][]int, len(c.legal)),
	}
	for k, v := range c.categoryIndex {
		next.categoryIndex[k] = v
	}
	for k, v := range c.familyIndex {
		next.familyIndex[k] = v
	}
	for i, fams := range c.legal {
		next.legal[i] = slices.Clone(fams)
	}
	return next
}

// CompatibleWith checks that every label of base keeps its index (and every base
// family keeps its parent) in c. Extra labels appended after the base ones are fine.
func (c *Codec) CompatibleWith(base *Codec, baseVersion string) error {
	for i, label := range base.categories {
		if i >= len(c.categories) {
			return &model.CodecIncompatibleError{BaseVersion: baseVersion, Level: model.LevelCategory, Index: i, Expected: label}
		}
		if c.categories[i] != label {
			return &model.CodecIncompatibleError{BaseVersion: baseVersion, Level: model.LevelCategory, Index: i, Expected: label, Got: c.categories[i]}
		}
	}
	for i, label := range base.families {
		if i >= len(c.families) {
			return &model.CodecIncompatibleError{BaseVersion: baseVersion, Level: model.LevelFamily, Index: i, Expected: label}
		}
		if c.families[i] != label {
			return &model.CodecIncompatibleError{BaseVersion: baseVersion, Level: model.LevelFamily, Index: i, Expected: label, Got: c.families[i]}
		}
		if c.parent[i] != base.parent[i] {
			return &model.CodecIncompatibleError{
				BaseVersion: baseVersion, Level: model.LevelFamily, Index: i,
				Expected: label + " under " + base.categories[base.parent[i]],
				Got:      label + " under " + c.categories[c.parent[i]],
			}
		}
	}
	return nil
}

func recordRef(r model.LabeledRecord) string {
	if r.ID != "" {
		return r.ID
	}
	runes := []rune(r.Text)
	if len(runes) > 40 {
		return string(runes[:40]) + "..."
	}
	return r.Text
}

func quote(s string) string { return `"` + s + `"` }
