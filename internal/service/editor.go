package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/halvard/ledgerlink/internal/database/repository"
	"github.com/halvard/ledgerlink/internal/rules"
)

// Editor is the update boundary for user edits. It enforces the
// provenance invalidation policy: an edit that actually changes the
// category or subcategory clears the classifier's confidence and
// reasoning along with it.
type Editor struct {
	Transactions *repository.TransactionRepo
	AutoRules    *rules.AutoGenerator
	Log          *zap.Logger
}

// Update applies a partial edit to one transaction, scrubbing
// classifier provenance when the policy demands it.
func (s *Editor) Update(ctx context.Context, id string, u repository.TransactionUpdate) error {
	current, err := s.Transactions.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get transaction: %w", err)
	}
	if current == nil {
		return fmt.Errorf("transaction %s not found", id)
	}
	u = rules.ScrubProvenance(*current, u)
	if err := s.Transactions.Update(ctx, id, u); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return nil
}

// Recategorize edits one transaction's category and optionally derives
// a standing rule from the edit, reapplying it to matching history.
func (s *Editor) Recategorize(ctx context.Context, id, category, subcategory string, createRule, applyToExisting bool) (rules.Result, error) {
	current, err := s.Transactions.Get(ctx, id)
	if err != nil {
		return rules.Result{}, fmt.Errorf("get transaction: %w", err)
	}
	if current == nil {
		return rules.Result{}, fmt.Errorf("transaction %s not found", id)
	}

	u := repository.TransactionUpdate{Category: &category, Subcategory: &subcategory}
	u = rules.ScrubProvenance(*current, u)
	if err := s.Transactions.Update(ctx, id, u); err != nil {
		return rules.Result{}, fmt.Errorf("update transaction: %w", err)
	}

	if !createRule || s.AutoRules == nil {
		return rules.Result{}, nil
	}
	res, err := s.AutoRules.CreateOrUpdateRuleFromEdit(ctx, current.Account, current.Description, category, subcategory, applyToExisting)
	if err != nil {
		return res, err
	}
	s.logger().Info("rule derived from edit",
		zap.String("rule", res.Rule.ID),
		zap.Bool("new", res.IsNew),
		zap.Int("reclassified", res.ReclassifiedCount))
	return res, nil
}

func (s *Editor) logger() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}
