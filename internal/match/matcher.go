// Package match finds and links counterpart transaction pairs:
// cross-account transfers, same-account corrections, and
// reimbursements. Candidate generation, scoring, and link application
// are pure functions over in-memory transaction slices; persistence is
// the caller's concern.
package match

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/halvard/ledgerlink/internal/database/repository"
)

// Kind selects a matcher variant.
type Kind string

const (
	// KindTransfer pairs opposite-signed amounts across different
	// accounts.
	KindTransfer Kind = "transfer"
	// KindSameAccount pairs opposite-signed amounts within one account
	// (refunds, reversals). Transactions typed as transfers are left to
	// KindTransfer so the two variants never claim the same pair.
	KindSameAccount Kind = "same-account"
	// KindReimbursement pairs an expense with its repayment arriving in
	// a different account. Same-account repayments belong to
	// KindSameAccount.
	KindReimbursement Kind = "reimbursement"
)

// Match types.
const (
	TypeExact       = "exact"
	TypeApproximate = "approximate"
	TypeManual      = "manual"
)

// Match is a scored candidate pairing of two transactions.
type Match struct {
	ID               string
	SourceID         string
	TargetID         string
	Confidence       float64
	Type             string
	DateDifference   int // whole days, rounded before any formatting
	AmountDifference float64
	Reasoning        string
}

// Params controls candidate generation for one Find run.
type Params struct {
	Kind                Kind
	MaxDaysDifference   int
	TolerancePercentage float64 // relative amount difference, 0.01 == 1%
	Scoring             Scoring
}

// Find returns scored candidate matches, best first. Each transaction
// appears in at most one returned match; when several candidates
// compete for a transaction the highest-confidence pairing wins.
// Transactions that already carry a transfer link are never candidates.
func Find(txs []repository.Transaction, p Params) []Match {
	if p.Scoring == (Scoring{}) {
		p.Scoring = DefaultScoring()
	}

	var candidates []Match
	for i := 0; i < len(txs); i++ {
		for j := i + 1; j < len(txs); j++ {
			if m, ok := candidate(txs[i], txs[j], p); ok {
				candidates = append(candidates, m)
			}
		}
	}

	sortCandidates(candidates)

	used := make(map[string]bool, len(candidates)*2)
	out := candidates[:0]
	for _, m := range candidates {
		if used[m.SourceID] || used[m.TargetID] {
			continue
		}
		used[m.SourceID] = true
		used[m.TargetID] = true
		out = append(out, m)
	}
	return out
}

func candidate(a, b repository.Transaction, p Params) (Match, bool) {
	if a.TransferMatchID != nil || b.TransferMatchID != nil {
		return Match{}, false
	}
	// one inflow, one outflow — same-signed pairs are never candidates
	if a.Amount == 0 || b.Amount == 0 || (a.Amount < 0) == (b.Amount < 0) {
		return Match{}, false
	}

	switch p.Kind {
	case KindTransfer:
		if a.Account == b.Account {
			return Match{}, false
		}
	case KindSameAccount:
		if a.Account != b.Account {
			return Match{}, false
		}
		if a.Type == repository.TypeTransfer || b.Type == repository.TypeTransfer {
			return Match{}, false
		}
	case KindReimbursement:
		if a.Account == b.Account {
			return Match{}, false
		}
		if a.Type == repository.TypeTransfer || b.Type == repository.TypeTransfer {
			return Match{}, false
		}
		// the outflow is the expense being repaid, the inflow the repayment
		outflow, inflow := a, b
		if a.Amount > 0 {
			outflow, inflow = b, a
		}
		if outflow.Type == repository.TypeIncome || inflow.Type == repository.TypeExpense {
			return Match{}, false
		}
	default:
		return Match{}, false
	}

	days := wholeDaysApart(a.Date, b.Date)
	if days > p.MaxDaysDifference {
		return Match{}, false
	}

	absA, absB := math.Abs(a.Amount), math.Abs(b.Amount)
	amountDiff := math.Abs(absA - absB)
	if relativeDiff(absA, absB) > p.TolerancePercentage {
		return Match{}, false
	}

	confidence := p.Scoring.score(a, b, days, amountDiff, p.Kind)
	m := Match{
		ID:               uuid.NewString(),
		SourceID:         a.ID,
		TargetID:         b.ID,
		Confidence:       confidence,
		Type:             TypeApproximate,
		DateDifference:   days,
		AmountDifference: amountDiff,
		Reasoning:        reasoning(a, b, days, amountDiff, p.Kind),
	}
	if days == 0 && amountDiff == 0 {
		m.Type = TypeExact
	}
	return m, true
}

// wholeDaysApart rounds the gap between two timestamps to the nearest
// whole day. The rounded value drives both the eligibility window and
// every user-facing reasoning string; fractional days never escape.
func wholeDaysApart(a, b time.Time) int {
	hours := math.Abs(a.Sub(b).Hours())
	return int(math.Round(hours / 24))
}

func relativeDiff(a, b float64) float64 {
	larger := math.Max(a, b)
	if larger == 0 {
		return 0
	}
	return math.Abs(a-b) / larger
}

func sortCandidates(ms []Match) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].Confidence != ms[j].Confidence {
			return ms[i].Confidence > ms[j].Confidence
		}
		if ms[i].DateDifference != ms[j].DateDifference {
			return ms[i].DateDifference < ms[j].DateDifference
		}
		return ms[i].SourceID < ms[j].SourceID
	})
}
