package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/halvard/ledgerlink/internal/database/repository"
)

// DefaultPromotionThreshold is the minimum classifier confidence
// required before a classification becomes a standing rule.
const DefaultPromotionThreshold = 0.8

// RuleStore is the rule persistence surface the generator needs.
type RuleStore interface {
	ListActive(ctx context.Context) ([]repository.CategoryRule, error)
	Upsert(ctx context.Context, rule repository.CategoryRule) error
	MaxPriority(ctx context.Context) (int, error)
}

// TransactionStore is the transaction persistence surface the generator
// needs for bulk reclassification.
type TransactionStore interface {
	List(ctx context.Context, f repository.TransactionFilters) ([]repository.Transaction, error)
	BatchUpdate(ctx context.Context, items []repository.BatchItem, skipHistory bool) (int, error)
}

// AutoGenerator derives rules from user edits and high-confidence
// classifier output, deduplicating against existing rules.
type AutoGenerator struct {
	Rules        RuleStore
	Transactions TransactionStore

	// PromotionThreshold overrides DefaultPromotionThreshold when > 0.
	PromotionThreshold float64
}

// Result reports what a generator call did.
type Result struct {
	Rule              repository.CategoryRule
	IsNew             bool
	ReclassifiedCount int
}

// CreateOrUpdateRuleFromEdit turns a manual category edit into a
// standing rule keyed on {account equals, description equals}. An
// existing active rule with exactly that condition set has its action
// updated instead of a duplicate being created.
//
// With applyToExisting, every persisted transaction the rule matches is
// reclassified in one batch write — transactions whose category and
// subcategory already equal the rule's action are skipped, so a repeat
// run on unchanged data reports zero. If the batch write fails the rule
// itself remains saved and ReclassifiedCount is zero; callers must not
// assume atomicity across the two.
func (g *AutoGenerator) CreateOrUpdateRuleFromEdit(ctx context.Context, account, description, category, subcategory string, applyToExisting bool) (Result, error) {
	existing, err := g.Rules.ListActive(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list rules: %w", err)
	}

	var rule repository.CategoryRule
	isNew := true
	for _, r := range existing {
		if isEditRule(r, account, description) {
			rule = r
			isNew = false
			break
		}
	}
	if isNew {
		maxPriority, err := g.Rules.MaxPriority(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("rule priority: %w", err)
		}
		rule = repository.CategoryRule{
			ID:       uuid.NewString(),
			Name:     fmt.Sprintf("Auto: %s (%s)", description, account),
			Active:   true,
			Priority: maxPriority + 1,
			Conditions: []repository.Condition{
				{Field: repository.FieldAccount, Operator: repository.OpEquals, Value: account},
				{Field: repository.FieldDescription, Operator: repository.OpEquals, Value: description},
			},
			Source:    repository.RuleSourceAuto,
			CreatedAt: time.Now().UTC(),
		}
	}
	rule.Category = category
	rule.Subcategory = subcategory
	rule.UpdatedAt = time.Now().UTC()

	if err := g.Rules.Upsert(ctx, rule); err != nil {
		return Result{}, fmt.Errorf("save rule: %w", err)
	}

	res := Result{Rule: rule, IsNew: isNew}
	if !applyToExisting {
		return res, nil
	}

	count, err := g.reclassify(ctx, rule)
	if err != nil {
		return res, fmt.Errorf("reclassify: %w", err)
	}
	res.ReclassifiedCount = count
	return res, nil
}

// PromoteFromClassification creates a rule from classifier output, but
// only when confidence clears the promotion threshold; low-confidence
// guesses are never codified.
func (g *AutoGenerator) PromoteFromClassification(ctx context.Context, t repository.Transaction, category, subcategory string, confidence float64) (Result, bool, error) {
	threshold := g.PromotionThreshold
	if threshold <= 0 {
		threshold = DefaultPromotionThreshold
	}
	if confidence < threshold {
		return Result{}, false, nil
	}
	res, err := g.CreateOrUpdateRuleFromEdit(ctx, t.Account, t.Description, category, subcategory, false)
	if err != nil {
		return Result{}, false, err
	}
	res.Rule.Source = repository.RuleSourceAI
	if err := g.Rules.Upsert(ctx, res.Rule); err != nil {
		return Result{}, false, err
	}
	return res, true, nil
}

// reclassify scans all persisted transactions, evaluates the rule, and
// issues exactly one batch write covering every transaction whose
// category or subcategory would actually change.
func (g *AutoGenerator) reclassify(ctx context.Context, rule repository.CategoryRule) (int, error) {
	txs, err := g.Transactions.List(ctx, repository.TransactionFilters{})
	if err != nil {
		return 0, err
	}

	var items []repository.BatchItem
	for _, t := range txs {
		if !RuleMatches(t, rule) {
			continue
		}
		if t.Category == rule.Category && t.Subcategory == rule.Subcategory {
			continue // no-op update, skip to keep the run idempotent
		}
		category := rule.Category
		subcategory := rule.Subcategory
		conf := RuleConfidence
		reasoning := "Matched rule: " + rule.Name
		items = append(items, repository.BatchItem{
			ID: t.ID,
			Update: repository.TransactionUpdate{
				Category:    &category,
				Subcategory: &subcategory,
				Confidence:  &conf,
				Reasoning:   &reasoning,
			},
		})
	}
	if len(items) == 0 {
		return 0, nil
	}
	return g.Transactions.BatchUpdate(ctx, items, true)
}

// isEditRule reports whether an existing rule has exactly the condition
// set an edit-derived rule would carry.
func isEditRule(r repository.CategoryRule, account, description string) bool {
	if len(r.Conditions) != 2 {
		return false
	}
	var accountOK, descriptionOK bool
	for _, c := range r.Conditions {
		if c.Operator != repository.OpEquals {
			return false
		}
		switch c.Field {
		case repository.FieldAccount:
			accountOK = c.Value == account
		case repository.FieldDescription:
			descriptionOK = c.Value == description
		default:
			return false
		}
	}
	return accountOK && descriptionOK
}
