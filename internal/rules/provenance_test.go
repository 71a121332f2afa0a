package rules

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/halvard/ledgerlink/internal/database/repository"
)

func classified() repository.Transaction {
	conf := 0.85
	reason := "high confidence grocery match"
	return repository.Transaction{
		ID:          "tx-1",
		Category:    "Food & Dining",
		Subcategory: "Groceries",
		Confidence:  &conf,
		Reasoning:   &reason,
	}
}

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }

func TestScrubProvenanceCategoryChange(t *testing.T) {
	t.Parallel()

	u := ScrubProvenance(classified(), repository.TransactionUpdate{Category: strPtr("Shopping")})
	require.True(t, u.ClearConfidence)
	require.True(t, u.ClearReasoning)
}

func TestScrubProvenanceSubcategoryChangeAlone(t *testing.T) {
	t.Parallel()

	u := ScrubProvenance(classified(), repository.TransactionUpdate{Subcategory: strPtr("Restaurants")})
	require.True(t, u.ClearConfidence, "subcategory-only change is independently sufficient")
	require.True(t, u.ClearReasoning)
}

func TestScrubProvenanceIdenticalValuesPreserve(t *testing.T) {
	t.Parallel()

	u := ScrubProvenance(classified(), repository.TransactionUpdate{
		Category:    strPtr("Food & Dining"),
		Subcategory: strPtr("Groceries"),
	})
	require.False(t, u.ClearConfidence, "no actual change, provenance stays")
	require.False(t, u.ClearReasoning)
}

func TestScrubProvenanceUnrelatedFieldsPreserve(t *testing.T) {
	t.Parallel()

	u := ScrubProvenance(classified(), repository.TransactionUpdate{
		Description: strPtr("edited description"),
		Amount:      f64Ptr(-12.34),
		Notes:       strPtr("checked this one"),
	})
	require.False(t, u.ClearConfidence)
	require.False(t, u.ClearReasoning)
}

func TestScrubProvenanceRuleEditKeepsItsOwnConfidence(t *testing.T) {
	t.Parallel()

	conf := 1.0
	u := ScrubProvenance(classified(), repository.TransactionUpdate{
		Category:   strPtr("Transport"),
		Confidence: &conf,
		Reasoning:  strPtr("Matched rule: Rideshare"),
	})
	// the edit supplies replacement provenance; nothing to clear
	require.False(t, u.ClearConfidence)
	require.False(t, u.ClearReasoning)
	require.Equal(t, 1.0, *u.Confidence)
}
