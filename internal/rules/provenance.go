package rules

import "github.com/halvard/ledgerlink/internal/database/repository"

// ScrubProvenance enforces the category-change invalidation policy at
// the update boundary: when an edit actually changes the category or
// the subcategory value, any classifier provenance (confidence and
// reasoning) on the transaction is cleared alongside the edit. Either
// field changing is sufficient on its own. Edits that supply identical
// values, or that touch unrelated fields, leave provenance intact.
//
// The returned update is the input plus whatever clears the policy
// demands; the input is never mutated.
func ScrubProvenance(current repository.Transaction, u repository.TransactionUpdate) repository.TransactionUpdate {
	categoryChanged := u.Category != nil && *u.Category != current.Category
	subcategoryChanged := u.Subcategory != nil && *u.Subcategory != current.Subcategory
	if !categoryChanged && !subcategoryChanged {
		return u
	}
	// The edit asserts a new category; the classifier's confidence about
	// the old one no longer applies. An edit that itself supplies fresh
	// confidence (a rule hit) keeps its own values.
	if u.Confidence == nil {
		u.ClearConfidence = true
	}
	if u.Reasoning == nil {
		u.ClearReasoning = true
	}
	return u
}
