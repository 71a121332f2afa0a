package rules

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/halvard/ledgerlink/internal/database/repository"
)

// in-memory stores so tests can count persistence round-trips

type fakeRuleStore struct {
	rules []repository.CategoryRule
}

func (s *fakeRuleStore) ListActive(ctx context.Context) ([]repository.CategoryRule, error) {
	var out []repository.CategoryRule
	for _, r := range s.rules {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeRuleStore) Upsert(ctx context.Context, rule repository.CategoryRule) error {
	for i := range s.rules {
		if s.rules[i].ID == rule.ID {
			s.rules[i] = rule
			return nil
		}
	}
	s.rules = append(s.rules, rule)
	return nil
}

func (s *fakeRuleStore) MaxPriority(ctx context.Context) (int, error) {
	max := 0
	for _, r := range s.rules {
		if r.Priority > max {
			max = r.Priority
		}
	}
	return max, nil
}

type fakeTxStore struct {
	txs        []repository.Transaction
	batchCalls int
	failBatch  bool
}

func (s *fakeTxStore) List(ctx context.Context, f repository.TransactionFilters) ([]repository.Transaction, error) {
	out := make([]repository.Transaction, len(s.txs))
	copy(out, s.txs)
	return out, nil
}

func (s *fakeTxStore) BatchUpdate(ctx context.Context, items []repository.BatchItem, skipHistory bool) (int, error) {
	s.batchCalls++
	if s.failBatch {
		return 0, fmt.Errorf("disk full")
	}
	count := 0
	for _, it := range items {
		for i := range s.txs {
			if s.txs[i].ID != it.ID {
				continue
			}
			if it.Update.Category != nil {
				s.txs[i].Category = *it.Update.Category
			}
			if it.Update.Subcategory != nil {
				s.txs[i].Subcategory = *it.Update.Subcategory
			}
			if it.Update.Confidence != nil {
				s.txs[i].Confidence = it.Update.Confidence
			}
			if it.Update.Reasoning != nil {
				s.txs[i].Reasoning = it.Update.Reasoning
			}
			count++
		}
	}
	return count, nil
}

func newGenerator() (*AutoGenerator, *fakeRuleStore, *fakeTxStore) {
	rs := &fakeRuleStore{}
	ts := &fakeTxStore{txs: []repository.Transaction{
		{ID: "a", Account: "Checking", Description: "ACME GYM", Category: repository.Uncategorized},
		{ID: "b", Account: "Checking", Description: "ACME GYM", Category: repository.Uncategorized},
		{ID: "c", Account: "Checking", Description: "Rent", Category: "Housing"},
		{ID: "d", Account: "Savings", Description: "ACME GYM", Category: repository.Uncategorized},
	}}
	return &AutoGenerator{Rules: rs, Transactions: ts}, rs, ts
}

func TestCreateRuleFromEdit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gen, rs, _ := newGenerator()

	res, err := gen.CreateOrUpdateRuleFromEdit(ctx, "Checking", "ACME GYM", "Health", "Gym", false)
	require.NoError(t, err)
	require.True(t, res.IsNew)
	require.Equal(t, 0, res.ReclassifiedCount)
	require.Len(t, rs.rules, 1)

	rule := rs.rules[0]
	require.True(t, rule.Active)
	require.Equal(t, "Health", rule.Category)
	require.Equal(t, "Gym", rule.Subcategory)
	require.Len(t, rule.Conditions, 2)
}

func TestCreateRuleFromEditDeduplicates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gen, rs, _ := newGenerator()

	first, err := gen.CreateOrUpdateRuleFromEdit(ctx, "Checking", "ACME GYM", "Health", "Gym", false)
	require.NoError(t, err)
	require.True(t, first.IsNew)

	// same dedup key, different action: updates in place
	second, err := gen.CreateOrUpdateRuleFromEdit(ctx, "Checking", "ACME GYM", "Fitness", "Membership", false)
	require.NoError(t, err)
	require.False(t, second.IsNew)
	require.Equal(t, first.Rule.ID, second.Rule.ID)
	require.Len(t, rs.rules, 1)
	require.Equal(t, "Fitness", rs.rules[0].Category)

	// different account: genuinely a new rule
	third, err := gen.CreateOrUpdateRuleFromEdit(ctx, "Savings", "ACME GYM", "Health", "Gym", false)
	require.NoError(t, err)
	require.True(t, third.IsNew)
	require.Len(t, rs.rules, 2)
}

func TestApplyToExistingSingleBatchWrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gen, _, ts := newGenerator()

	res, err := gen.CreateOrUpdateRuleFromEdit(ctx, "Checking", "ACME GYM", "Health", "Gym", true)
	require.NoError(t, err)
	require.Equal(t, 2, res.ReclassifiedCount, "only the two Checking/ACME GYM rows change")
	require.Equal(t, 1, ts.batchCalls, "bulk reclassification is one persistence write, not one per row")

	for _, tx := range ts.txs {
		if tx.ID == "a" || tx.ID == "b" {
			require.Equal(t, "Health", tx.Category)
			require.Equal(t, "Gym", tx.Subcategory)
			require.NotNil(t, tx.Confidence)
			require.Equal(t, 1.0, *tx.Confidence)
		} else {
			require.NotEqual(t, "Health", tx.Category)
		}
	}
}

func TestApplyToExistingIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gen, _, ts := newGenerator()

	first, err := gen.CreateOrUpdateRuleFromEdit(ctx, "Checking", "ACME GYM", "Health", "Gym", true)
	require.NoError(t, err)
	require.Equal(t, 2, first.ReclassifiedCount)
	callsAfterFirst := ts.batchCalls

	second, err := gen.CreateOrUpdateRuleFromEdit(ctx, "Checking", "ACME GYM", "Health", "Gym", true)
	require.NoError(t, err)
	require.Equal(t, 0, second.ReclassifiedCount, "unchanged data yields zero on the second run")
	require.Equal(t, callsAfterFirst, ts.batchCalls, "no-op runs issue no batch write at all")
}

func TestApplyToExistingBatchFailureKeepsRule(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gen, rs, ts := newGenerator()
	ts.failBatch = true

	res, err := gen.CreateOrUpdateRuleFromEdit(ctx, "Checking", "ACME GYM", "Health", "Gym", true)
	require.Error(t, err)
	require.Equal(t, 0, res.ReclassifiedCount, "failed batch reports zero reclassified")
	require.Len(t, rs.rules, 1, "the rule itself survives the failed batch")
}

func TestPromoteFromClassificationThreshold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gen, rs, _ := newGenerator()
	tx := repository.Transaction{ID: "a", Account: "Checking", Description: "ACME GYM"}

	_, promoted, err := gen.PromoteFromClassification(ctx, tx, "Health", "Gym", 0.79)
	require.NoError(t, err)
	require.False(t, promoted, "below-threshold confidence is never codified")
	require.Empty(t, rs.rules)

	res, promoted, err := gen.PromoteFromClassification(ctx, tx, "Health", "Gym", 0.8)
	require.NoError(t, err)
	require.True(t, promoted)
	require.Equal(t, repository.RuleSourceAI, res.Rule.Source)
	require.Len(t, rs.rules, 1)
}
