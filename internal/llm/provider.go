// Package llm defines the external classification collaborator. The
// engine only ever sees the Classifier interface; the OpenAI
// implementation lives behind it so tests can substitute a fake.
package llm

import "context"

// Classifier categorizes transactions the rule engine left unmatched.
type Classifier interface {
	ClassifyBatch(ctx context.Context, records []Record) ([]Classification, error)
}

// Record is the classifier's view of an unmatched transaction.
type Record struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Date        string  `json:"date"`
	Account     string  `json:"account"`
}

// Classification is one classifier verdict. Confidence is 0-1;
// Reasoning explains the pick and is stored alongside it as provenance.
type Classification struct {
	ID          string  `json:"id"`
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory"`
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning"`
}
