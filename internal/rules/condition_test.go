package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/halvard/ledgerlink/internal/database/repository"
)

func sampleTx() repository.Transaction {
	return repository.Transaction{
		ID:          "tx-1",
		Account:     "Everyday Checking",
		Date:        time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Amount:      -42.50,
		Description: "Starbucks Coffee Shop #1234",
		Category:    repository.Uncategorized,
		Type:        repository.TypeExpense,
	}
}

func TestEvaluateStringOperators(t *testing.T) {
	t.Parallel()
	tx := sampleTx()

	cases := []struct {
		name string
		cond repository.Condition
		want bool
	}{
		{"contains case-folded", repository.Condition{Field: "description", Operator: "contains", Value: "starbucks"}, true},
		{"contains case-sensitive miss", repository.Condition{Field: "description", Operator: "contains", Value: "starbucks", CaseSensitive: true}, false},
		{"contains case-sensitive hit", repository.Condition{Field: "description", Operator: "contains", Value: "Starbucks", CaseSensitive: true}, true},
		{"equals full string", repository.Condition{Field: "description", Operator: "equals", Value: "starbucks coffee shop #1234"}, true},
		{"equals partial miss", repository.Condition{Field: "description", Operator: "equals", Value: "starbucks"}, false},
		{"startsWith", repository.Condition{Field: "description", Operator: "startsWith", Value: "STAR"}, true},
		{"endsWith", repository.Condition{Field: "description", Operator: "endsWith", Value: "#1234"}, true},
		{"account equals", repository.Condition{Field: "account", Operator: "equals", Value: "everyday checking"}, true},
		{"unknown operator", repository.Condition{Field: "description", Operator: "matches", Value: "star"}, false},
		{"unknown field", repository.Condition{Field: "memo", Operator: "contains", Value: "star"}, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Evaluate(tx, tc.cond))
		})
	}
}

func TestEvaluateAmountIsSignAgnostic(t *testing.T) {
	t.Parallel()
	spend := sampleTx()
	refund := sampleTx()
	refund.Amount = 42.50

	cond := repository.Condition{Field: "amount", Operator: "equals", Value: "42.50"}
	require.True(t, Evaluate(spend, cond), "outflow should match on absolute value")
	require.True(t, Evaluate(refund, cond), "refund should match the same rule")

	greater := repository.Condition{Field: "amount", Operator: "greaterThan", Value: "40"}
	require.True(t, Evaluate(spend, greater))
	less := repository.Condition{Field: "amount", Operator: "lessThan", Value: "40"}
	require.False(t, Evaluate(spend, less))
}

func TestEvaluateBetweenInclusive(t *testing.T) {
	t.Parallel()
	tx := sampleTx()

	require.True(t, Evaluate(tx, repository.Condition{Field: "amount", Operator: "between", Value: "42.50", ValueEnd: "100"}), "lower bound inclusive")
	require.True(t, Evaluate(tx, repository.Condition{Field: "amount", Operator: "between", Value: "10", ValueEnd: "42.50"}), "upper bound inclusive")
	require.False(t, Evaluate(tx, repository.Condition{Field: "amount", Operator: "between", Value: "43", ValueEnd: "100"}))

	// missing or invalid end never errors, just fails the condition
	require.False(t, Evaluate(tx, repository.Condition{Field: "amount", Operator: "between", Value: "10"}))
	require.False(t, Evaluate(tx, repository.Condition{Field: "amount", Operator: "between", Value: "10", ValueEnd: "not-a-number"}))
}

func TestEvaluateDateOperators(t *testing.T) {
	t.Parallel()
	tx := sampleTx()

	require.True(t, Evaluate(tx, repository.Condition{Field: "date", Operator: "equals", Value: "2026-03-14"}))
	require.True(t, Evaluate(tx, repository.Condition{Field: "date", Operator: "greaterThan", Value: "2026-03-01"}))
	require.True(t, Evaluate(tx, repository.Condition{Field: "date", Operator: "lessThan", Value: "2026-04-01"}))
	require.True(t, Evaluate(tx, repository.Condition{Field: "date", Operator: "between", Value: "2026-03-14", ValueEnd: "2026-03-20"}))
	require.False(t, Evaluate(tx, repository.Condition{Field: "date", Operator: "equals", Value: "garbage"}))

	var zero repository.Transaction
	zero.Description = "x"
	require.False(t, Evaluate(zero, repository.Condition{Field: "date", Operator: "equals", Value: "2026-03-14"}))
}

func TestEvaluateRegex(t *testing.T) {
	t.Parallel()
	tx := sampleTx()

	require.True(t, Evaluate(tx, repository.Condition{Field: "description", Operator: "regex", Value: `starbucks\s+coffee`}), "case-insensitive by default")
	require.False(t, Evaluate(tx, repository.Condition{Field: "description", Operator: "regex", Value: `starbucks`, CaseSensitive: true}))
	require.True(t, Evaluate(tx, repository.Condition{Field: "description", Operator: "regex", Value: `Starbucks.*#\d+`, CaseSensitive: true}))

	// malformed patterns fail closed, never panic
	require.False(t, Evaluate(tx, repository.Condition{Field: "description", Operator: "regex", Value: `([unclosed`}))
	require.False(t, Evaluate(tx, repository.Condition{Field: "description", Operator: "regex", Value: `*invalid`}))
}

func TestEvaluateMissingValuesFailClosed(t *testing.T) {
	t.Parallel()
	var empty repository.Transaction

	require.False(t, Evaluate(empty, repository.Condition{Field: "description", Operator: "contains", Value: "x"}))
	require.False(t, Evaluate(empty, repository.Condition{Field: "account", Operator: "equals", Value: "x"}))
	require.False(t, Evaluate(sampleTx(), repository.Condition{Field: "amount", Operator: "equals", Value: "abc"}))
}
