package database

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/halvard/ledgerlink/internal/database/repository"
)

// SeedDefaults installs a handful of starter rules covering the
// unambiguous merchant patterns most imports contain. It only runs on
// an empty rule table, so user edits are never overwritten.
func SeedDefaults(ctx context.Context, db *sql.DB) error {
	ruleRepo := repository.NewCategoryRuleRepo(db)
	existing, err := ruleRepo.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	type starter struct {
		name        string
		pattern     string
		category    string
		subcategory string
	}
	starters := []starter{
		{"Salary deposits", "(?:salary|payroll|direct deposit)", "Income", "Salary"},
		{"Groceries", "(?:woolworths|coles|aldi|grocery)", "Food & Dining", "Groceries"},
		{"Coffee shops", "(?:starbucks|coffee|espresso)", "Food & Dining", "Coffee Shops"},
		{"Rideshare", "(?:uber |lyft|taxi)", "Transport", "Rideshare"},
		{"Streaming", "(?:netflix|spotify|disney\\+)", "Subscriptions", "Streaming"},
	}
	for i, s := range starters {
		rule := repository.CategoryRule{
			ID:       uuid.NewSHA1(uuid.NameSpaceOID, []byte("rule:"+s.name)).String(),
			Name:     s.name,
			Active:   true,
			Priority: 100 + i,
			Conditions: []repository.Condition{
				{Field: repository.FieldDescription, Operator: repository.OpRegex, Value: s.pattern},
			},
			Category:    s.category,
			Subcategory: s.subcategory,
			Source:      repository.RuleSourceUser,
		}
		if err := ruleRepo.Upsert(ctx, rule); err != nil {
			return err
		}
	}
	return nil
}
