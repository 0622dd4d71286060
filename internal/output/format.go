package output

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hejijunhao/hierclass/internal/model"
)

// Verbosity controls which fields of a prediction are emitted.
type Verbosity int

const (
	// Minimal keeps identifier, category, family, and overall confidence.
	Minimal Verbosity = iota
	// Full adds the per-head confidences.
	Full
)

// ParseVerbosity maps "minimal" or "full" to a Verbosity.
func ParseVerbosity(s string) (Verbosity, error) {
	switch strings.ToLower(s) {
	case "minimal", "":
		return Minimal, nil
	case "full":
		return Full, nil
	default:
		return Minimal, fmt.Errorf("unknown verbosity %q", s)
	}
}

// FormatRecord returns a copy of r with fields stripped according to verbosity.
// At Minimal the per-head confidences are zeroed (omitted from JSON via omitempty).
func FormatRecord(r model.PredictionRecord, verbosity Verbosity) model.PredictionRecord {
	if verbosity == Minimal {
		r.CategoryConfidence = 0
		r.FamilyConfidence = 0
	}
	return r
}

// Columns returns the tabular header for verbosity.
func Columns(verbosity Verbosity) []string {
	cols := []string{"id", "category", "family", "confidence"}
	if verbosity == Full {
		cols = append(cols, "category_confidence", "family_confidence")
	}
	return cols
}

// Row renders r as strings in Columns order.
func Row(r model.PredictionRecord, verbosity Verbosity) []string {
	row := []string{r.RecordID, r.Category, r.Family, FormatConfidence(r.Confidence)}
	if verbosity == Full {
		row = append(row, FormatConfidence(r.CategoryConfidence), FormatConfidence(r.FamilyConfidence))
	}
	return row
}

// FormatConfidence prints a confidence with four decimals.
func FormatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'f', 4, 64)
}
