package model

// LabeledRecord is a training example: preprocessed text and its two-level label.
type LabeledRecord struct {
	ID       string `json:"id,omitempty"`
	Text     string `json:"text"`
	Category string `json:"category"`
	Family   string `json:"family"`
}

// InputRecord is a record submitted for inference. ID is the external identifier
// carried through to the output tables.
type InputRecord struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Texts returns the text of each labeled record in order.
func Texts(records []LabeledRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Text
	}
	return out
}
