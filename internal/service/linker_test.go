package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/halvard/ledgerlink/internal/database/repository"
	"github.com/halvard/ledgerlink/internal/match"
)

func TestLinkerAppliesSymmetricLinks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	txRepo, _ := openTestDB(t)

	seedTransactions(t, txRepo, []repository.Transaction{
		{ID: "out", Account: "Checking", Date: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), Amount: -500, Description: "Transfer to savings", Type: repository.TypeTransfer},
		{ID: "in", Account: "Savings", Date: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), Amount: 500, Description: "Transfer from checking", Type: repository.TypeTransfer},
		{ID: "noise", Account: "Checking", Date: time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC), Amount: -42, Description: "Groceries", Type: repository.TypeExpense},
	})

	linker := &Linker{Transactions: txRepo}
	outcome, err := linker.Run(ctx, match.Params{
		Kind:                match.KindTransfer,
		MaxDaysDifference:   3,
		TolerancePercentage: 0.01,
	})
	require.NoError(t, err)
	require.Len(t, outcome.Applied, 1)
	require.Empty(t, outcome.Review)

	out, err := txRepo.Get(ctx, "out")
	require.NoError(t, err)
	in, err := txRepo.Get(ctx, "in")
	require.NoError(t, err)
	require.NotNil(t, out.TransferMatchID)
	require.NotNil(t, in.TransferMatchID)
	require.Equal(t, "in", *out.TransferMatchID)
	require.Equal(t, "out", *in.TransferMatchID)
	require.NotNil(t, out.Notes)

	noise, err := txRepo.Get(ctx, "noise")
	require.NoError(t, err)
	require.Nil(t, noise.TransferMatchID)
}

func TestLinkerSurfacesLowConfidenceForReview(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	txRepo, _ := openTestDB(t)

	// three days apart, no keywords, amounts differ slightly: no bonuses
	seedTransactions(t, txRepo, []repository.Transaction{
		{ID: "a", Account: "Checking", Date: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), Amount: -100, Description: "withdrawal", Type: repository.TypeExpense},
		{ID: "b", Account: "Savings", Date: time.Date(2026, 8, 7, 0, 0, 0, 0, time.UTC), Amount: 99.50, Description: "deposit", Type: repository.TypeIncome},
	})

	linker := &Linker{Transactions: txRepo}
	outcome, err := linker.Run(ctx, match.Params{
		Kind:                match.KindTransfer,
		MaxDaysDifference:   7,
		TolerancePercentage: 0.01,
	})
	require.NoError(t, err)
	require.Empty(t, outcome.Applied)
	require.Len(t, outcome.Review, 1, "below-threshold candidates are surfaced, never auto-linked")

	a, err := txRepo.Get(ctx, "a")
	require.NoError(t, err)
	require.Nil(t, a.TransferMatchID)
}

func TestLinkerUnlinkClearsBothSides(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	txRepo, _ := openTestDB(t)

	seedTransactions(t, txRepo, []repository.Transaction{
		{ID: "out", Account: "Checking", Date: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), Amount: -500, Description: "transfer out", Type: repository.TypeTransfer},
		{ID: "in", Account: "Savings", Date: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), Amount: 500, Description: "transfer in", Type: repository.TypeTransfer},
	})

	linker := &Linker{Transactions: txRepo}
	_, err := linker.Run(ctx, match.Params{Kind: match.KindTransfer, MaxDaysDifference: 1, TolerancePercentage: 0.01})
	require.NoError(t, err)

	require.NoError(t, linker.Unlink(ctx, "out"))

	out, err := txRepo.Get(ctx, "out")
	require.NoError(t, err)
	in, err := txRepo.Get(ctx, "in")
	require.NoError(t, err)
	require.Nil(t, out.TransferMatchID)
	require.Nil(t, in.TransferMatchID)

	// unlinking an unlinked transaction is a no-op
	require.NoError(t, linker.Unlink(ctx, "out"))
}

func TestLinkerRunIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	txRepo, _ := openTestDB(t)

	seedTransactions(t, txRepo, []repository.Transaction{
		{ID: "out", Account: "Checking", Date: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), Amount: -500, Description: "transfer out", Type: repository.TypeTransfer},
		{ID: "in", Account: "Savings", Date: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), Amount: 500, Description: "transfer in", Type: repository.TypeTransfer},
	})

	linker := &Linker{Transactions: txRepo}
	p := match.Params{Kind: match.KindTransfer, MaxDaysDifference: 1, TolerancePercentage: 0.01}

	first, err := linker.Run(ctx, p)
	require.NoError(t, err)
	require.Len(t, first.Applied, 1)

	second, err := linker.Run(ctx, p)
	require.NoError(t, err)
	require.Empty(t, second.Applied, "already-linked rows are not candidates again")

	out, err := txRepo.Get(ctx, "out")
	require.NoError(t, err)
	require.Equal(t, "in", *out.TransferMatchID)
}
