// Package testdata embeds a small labeled product corpus shared by the engine,
// store, and pipeline tests.
package testdata

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/hejijunhao/hierclass/internal/model"
)

//go:embed corpus.json
var corpusJSON []byte

// LoadCorpus parses the embedded corpus.json and returns all records.
func LoadCorpus() ([]model.LabeledRecord, error) {
	var records []model.LabeledRecord
	if err := json.Unmarshal(corpusJSON, &records); err != nil {
		return nil, fmt.Errorf("parse corpus.json: %w", err)
	}
	return records, nil
}

// Families returns the family -> category pairs the corpus covers.
func Families() map[string]string {
	return map[string]string{
		"cables":        "electronica",
		"interruptores": "electronica",
		"baterias":      "electronica",
		"tuberia":       "plasticos",
		"envases":       "plasticos",
		"hilos":         "textiles",
		"tejidos":       "textiles",
		"tornillos":     "metales",
		"laminas":       "metales",
	}
}
