package model

// Metrics summarises a trained model on held-out records.
type Metrics struct {
	Samples          int     `json:"samples" toml:"samples"`
	CategoryAccuracy float64 `json:"category_accuracy" toml:"category_accuracy"`
	FamilyAccuracy   float64 `json:"family_accuracy" toml:"family_accuracy"`
	CategoryMacroF1  float64 `json:"category_macro_f1" toml:"category_macro_f1"`
	FamilyMacroF1    float64 `json:"family_macro_f1" toml:"family_macro_f1"`

	// ConsistencyRate is the fraction of raw (unmasked) family arg-maxes that are
	// legal under the predicted category. Masked predictions are always legal.
	ConsistencyRate float64 `json:"consistency_rate" toml:"consistency_rate"`

	// EvaluatedOnTraining is set when the holdout split was empty.
	EvaluatedOnTraining bool `json:"evaluated_on_training" toml:"evaluated_on_training"`

	FinalLoss float64 `json:"final_loss" toml:"final_loss"`
	Epochs    int     `json:"epochs" toml:"epochs"`
}
