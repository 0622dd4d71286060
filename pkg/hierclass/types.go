package hierclass

import "time"

// Input is one record to classify. An empty ID is replaced by the record's
// 1-based position.
type Input struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Prediction is the classification of one Input.
// This is the stable public type; internal representations may change
// without breaking consumers.
type Prediction struct {
	ID                 string  `json:"id"`
	Category           string  `json:"category"`
	Family             string  `json:"family"`
	Confidence         float64 `json:"confidence"`          // mean of the two head confidences
	CategoryConfidence float64 `json:"category_confidence"` // softmax probability of Category
	FamilyConfidence   float64 `json:"family_confidence"`   // renormalised over Category's families
}

// Result splits a batch by confidence. Classified and Unclassified keep input
// order and together hold every input exactly once.
type Result struct {
	Version      string       `json:"version"`
	Threshold    float64      `json:"threshold"`
	GeneratedAt  time.Time    `json:"generated_at"`
	Classified   []Prediction `json:"classified"`
	Unclassified []Prediction `json:"unclassified"`
}

// Len returns the number of predictions on both sides.
func (r Result) Len() int { return len(r.Classified) + len(r.Unclassified) }
