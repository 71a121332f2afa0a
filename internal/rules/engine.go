package rules

import (
	"sort"

	"github.com/halvard/ledgerlink/internal/database/repository"
)

// RuleConfidence is the confidence recorded on every rule match.
// Deterministic rule hits are the only source of 1.0 — heuristic
// matchers cap below it.
const RuleConfidence = 1.0

// Outcome describes the result of evaluating one transaction against
// the rule set.
type Outcome struct {
	Matched    bool
	Rule       *repository.CategoryRule
	Confidence float64
	Reasoning  string
}

// Engine evaluates transactions against a prioritized rule set. Rules
// are kept sorted ascending by priority (input order breaking ties) so
// evaluation never re-sorts. Inactive rules are dropped at load time.
type Engine struct {
	rules []repository.CategoryRule
}

// NewEngine builds an engine from the given rules. The slice is copied
// and filtered to active rules.
func NewEngine(ruleSet []repository.CategoryRule) *Engine {
	e := &Engine{}
	e.SetRules(ruleSet)
	return e
}

// SetRules replaces the engine's rule set.
func (e *Engine) SetRules(ruleSet []repository.CategoryRule) {
	active := make([]repository.CategoryRule, 0, len(ruleSet))
	for _, r := range ruleSet {
		if r.Active {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority < active[j].Priority
	})
	e.rules = active
}

// Rules returns the active rules in evaluation order.
func (e *Engine) Rules() []repository.CategoryRule {
	return e.rules
}

// Apply evaluates a transaction against every active rule in priority
// order and returns the first match. All of a rule's conditions must
// hold (AND); evaluation stops at the first matching rule.
func (e *Engine) Apply(t repository.Transaction) Outcome {
	for i := range e.rules {
		if RuleMatches(t, e.rules[i]) {
			return Outcome{
				Matched:    true,
				Rule:       &e.rules[i],
				Confidence: RuleConfidence,
				Reasoning:  "Matched rule: " + e.rules[i].Name,
			}
		}
	}
	return Outcome{}
}

// RuleMatches reports whether every condition of the rule holds for the
// transaction. A rule with no conditions matches nothing.
func RuleMatches(t repository.Transaction, r repository.CategoryRule) bool {
	if len(r.Conditions) == 0 {
		return false
	}
	for _, c := range r.Conditions {
		if !Evaluate(t, c) {
			return false
		}
	}
	return true
}

// BatchResult partitions a batch: every input lands in exactly one of
// Matched or Unmatched, preserving input order within each part.
type BatchResult struct {
	Matched   []repository.Transaction
	Unmatched []repository.Transaction
}

// ApplyBatch classifies each transaction, rewriting matched ones with
// the winning rule's action. A rule hit overwrites category and
// subcategory, pins confidence to RuleConfidence, and replaces any
// classifier-provided reasoning — rule-matched transactions never keep
// residual AI metadata.
func (e *Engine) ApplyBatch(txs []repository.Transaction) BatchResult {
	var res BatchResult
	for _, t := range txs {
		out := e.Apply(t)
		if !out.Matched {
			res.Unmatched = append(res.Unmatched, t)
			continue
		}
		res.Matched = append(res.Matched, ApplyOutcome(t, out))
	}
	return res
}

// ApplyOutcome rewrites a transaction with a rule match result.
func ApplyOutcome(t repository.Transaction, out Outcome) repository.Transaction {
	if !out.Matched || out.Rule == nil {
		return t
	}
	t.Category = out.Rule.Category
	t.Subcategory = out.Rule.Subcategory
	conf := out.Confidence
	t.Confidence = &conf
	reasoning := out.Reasoning
	t.Reasoning = &reasoning
	return t
}
