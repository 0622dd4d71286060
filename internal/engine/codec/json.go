package codec

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/hejijunhao/hierclass/internal/model"
)

type familyJSON struct {
	Name     string `json:"name"`
	Category int    `json:"category"`
}

type codecJSON struct {
	Categories []string         `json:"categories"`
	Families   []familyJSON     `json:"families"`
	Legality   map[string][]int `json:"legality"`
}

// MarshalJSON encodes the label tables in index order together with the legality mask.
func (c *Codec) MarshalJSON() ([]byte, error) {
	out := codecJSON{
		Categories: c.categories,
		Families:   make([]familyJSON, len(c.families)),
		Legality:   make(map[string][]int, len(c.legal)),
	}
	for i, name := range c.families {
		out.Families[i] = familyJSON{Name: name, Category: c.parent[i]}
	}
	for ci, fams := range c.legal {
		out.Legality[strconv.Itoa(ci)] = fams
	}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds the codec and checks that the stored legality mask agrees
// with the family -> category table.
func (c *Codec) UnmarshalJSON(data []byte) error {
	var in codecJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("codec: %w", err)
	}

	next := newEmpty()
	for _, name := range in.Categories {
		if _, dup := next.categoryIndex[name]; dup {
			return &model.SchemaError{Reason: "duplicate category " + quote(name) + " in stored codec"}
		}
		next.categoryIndex[name] = len(next.categories)
		next.categories = append(next.categories, name)
		next.legal = append(next.legal, nil)
	}
	for _, f := range in.Families {
		if _, dup := next.familyIndex[f.Name]; dup {
			return &model.SchemaError{Reason: "duplicate family " + quote(f.Name) + " in stored codec"}
		}
		if f.Category < 0 || f.Category >= len(next.categories) {
			return &model.SchemaError{Reason: fmt.Sprintf("family %q points at category %d of %d", f.Name, f.Category, len(next.categories))}
		}
		fi := len(next.families)
		next.familyIndex[f.Name] = fi
		next.families = append(next.families, f.Name)
		next.parent = append(next.parent, f.Category)
		next.legal[f.Category] = append(next.legal[f.Category], fi)
	}

	if in.Legality != nil {
		for ci, fams := range next.legal {
			stored := slices.Clone(in.Legality[strconv.Itoa(ci)])
			slices.Sort(stored)
			if !slices.Equal(stored, fams) {
				return &model.SchemaError{Reason: fmt.Sprintf("stored legality mask for category %q disagrees with family table", next.categories[ci])}
			}
		}
	}

	*c = *next
	return nil
}
