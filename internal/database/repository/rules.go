package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// CategoryRuleRepo stores categorization rules. Listing returns rules
// ordered by ascending priority so evaluation order falls straight out
// of the query.
type CategoryRuleRepo struct{ db *sql.DB }

func NewCategoryRuleRepo(db *sql.DB) *CategoryRuleRepo { return &CategoryRuleRepo{db: db} }

func (r *CategoryRuleRepo) Upsert(ctx context.Context, rule CategoryRule) error {
	conds, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("marshal conditions: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
	INSERT INTO category_rules(id, name, active, priority, conditions, category, subcategory, source, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(id) DO UPDATE SET
	 name=excluded.name,
	 active=excluded.active,
	 priority=excluded.priority,
	 conditions=excluded.conditions,
	 category=excluded.category,
	 subcategory=excluded.subcategory,
	 source=excluded.source,
	 updated_at=CURRENT_TIMESTAMP;
	`, rule.ID, rule.Name, rule.Active, rule.Priority, string(conds), rule.Category, rule.Subcategory, rule.Source)
	return err
}

func (r *CategoryRuleRepo) List(ctx context.Context) ([]CategoryRule, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, name, active, priority, conditions, category, subcategory, source, created_at, updated_at
	FROM category_rules
	ORDER BY priority ASC, created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CategoryRule
	for rows.Next() {
		var rule CategoryRule
		var conds string
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.Active, &rule.Priority, &conds,
			&rule.Category, &rule.Subcategory, &rule.Source, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(conds), &rule.Conditions); err != nil {
			return nil, fmt.Errorf("rule %s conditions: %w", rule.ID, err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// ListActive returns only rules that participate in evaluation.
func (r *CategoryRuleRepo) ListActive(ctx context.Context) ([]CategoryRule, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]CategoryRule, 0, len(all))
	for _, rule := range all {
		if rule.Active {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *CategoryRuleRepo) SetActive(ctx context.Context, id string, active bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE category_rules SET active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, active, id)
	return err
}

func (r *CategoryRuleRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM category_rules WHERE id = ?`, id)
	return err
}

// MaxPriority returns the highest priority currently stored, so new
// rules can be appended after every existing one. Zero when empty.
func (r *CategoryRuleRepo) MaxPriority(ctx context.Context) (int, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(priority), 0) FROM category_rules`)
	var max int
	if err := row.Scan(&max); err != nil {
		return 0, err
	}
	return max, nil
}
