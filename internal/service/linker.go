package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/halvard/ledgerlink/internal/database/repository"
	"github.com/halvard/ledgerlink/internal/match"
)

// Linker runs pair matching over the persisted transaction set and
// applies the symmetric links. Both sides of every pair persist inside
// a single database transaction, so a reader can never observe one side
// linked without the other.
type Linker struct {
	Transactions *repository.TransactionRepo
	Log          *zap.Logger

	// AutoApplyThreshold gates automatic linking; candidates below it
	// are surfaced for review instead. Zero means the default.
	AutoApplyThreshold float64
}

// LinkOutcome reports what one run linked and what needs review.
type LinkOutcome struct {
	Applied []match.Match
	Review  []match.Match
}

// Run finds candidate pairs of the given kind, auto-applies the ones
// above the confidence threshold, and returns the remainder for manual
// review.
func (s *Linker) Run(ctx context.Context, p match.Params) (LinkOutcome, error) {
	txs, err := s.Transactions.List(ctx, repository.TransactionFilters{})
	if err != nil {
		return LinkOutcome{}, fmt.Errorf("list transactions: %w", err)
	}

	candidates := match.Find(txs, p)
	apply, review := match.SplitByThreshold(candidates, s.AutoApplyThreshold)
	outcome := LinkOutcome{Applied: apply, Review: review}
	if len(apply) == 0 {
		return outcome, nil
	}

	if err := s.persistLinks(ctx, txs, apply); err != nil {
		return LinkOutcome{Review: candidates}, err
	}
	s.logger().Info("pair matching finished",
		zap.String("kind", string(p.Kind)),
		zap.Int("applied", len(apply)),
		zap.Int("review", len(review)))
	return outcome, nil
}

// ApplyManual links one reviewed candidate pair.
func (s *Linker) ApplyManual(ctx context.Context, m match.Match) error {
	txs, err := s.Transactions.List(ctx, repository.TransactionFilters{})
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}
	m.Type = match.TypeManual
	return s.persistLinks(ctx, txs, []match.Match{m})
}

// Unlink clears the symmetric link on a transaction and its
// counterpart in one batch write.
func (s *Linker) Unlink(ctx context.Context, txID string) error {
	t, err := s.Transactions.Get(ctx, txID)
	if err != nil {
		return fmt.Errorf("get transaction: %w", err)
	}
	if t == nil {
		return fmt.Errorf("transaction %s not found", txID)
	}
	if t.TransferMatchID == nil {
		return nil
	}
	items := []repository.BatchItem{
		{ID: t.ID, Update: repository.TransactionUpdate{ClearTransferLink: true}},
		{ID: *t.TransferMatchID, Update: repository.TransactionUpdate{ClearTransferLink: true}},
	}
	if _, err := s.Transactions.BatchUpdate(ctx, items, true); err != nil {
		return fmt.Errorf("unlink %s: %w", txID, err)
	}
	return nil
}

// persistLinks computes the linked state with match.Apply and writes
// every changed row in one batch.
func (s *Linker) persistLinks(ctx context.Context, txs []repository.Transaction, ms []match.Match) error {
	before := make(map[string]repository.Transaction, len(txs))
	for _, t := range txs {
		before[t.ID] = t
	}

	linked := match.Apply(txs, ms)
	var items []repository.BatchItem
	for _, t := range linked {
		prev := before[t.ID]
		if prev.TransferMatchID == nil && t.TransferMatchID != nil {
			items = append(items, repository.BatchItem{
				ID: t.ID,
				Update: repository.TransactionUpdate{
					TransferMatchID: t.TransferMatchID,
					Notes:           t.Notes,
				},
			})
		}
	}
	if len(items) == 0 {
		return nil
	}
	if _, err := s.Transactions.BatchUpdate(ctx, items, true); err != nil {
		return fmt.Errorf("persist links: %w", err)
	}
	return nil
}

func (s *Linker) logger() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}
