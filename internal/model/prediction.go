package model

import "time"

// PredictionRecord is the classifier's output for one input record.
type PredictionRecord struct {
	RecordID           string  `json:"id"`
	Category           string  `json:"category"`
	Family             string  `json:"family"`
	CategoryConfidence float64 `json:"category_confidence,omitempty"`
	FamilyConfidence   float64 `json:"family_confidence,omitempty"`
	Confidence         float64 `json:"confidence"` // mean of the two head confidences
}

// Partition splits one inference batch by confidence threshold. Both slices keep
// input order; together they hold every input record exactly once.
type Partition struct {
	Classified   []PredictionRecord `json:"classified"`
	Unclassified []PredictionRecord `json:"unclassified"`
	Threshold    float64            `json:"threshold"`
	Version      string             `json:"version"`
	GeneratedAt  time.Time          `json:"generated_at"`
}

// Len returns the total number of records across both sides.
func (p Partition) Len() int {
	return len(p.Classified) + len(p.Unclassified)
}
