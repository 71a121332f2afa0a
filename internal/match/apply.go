package match

import (
	"github.com/halvard/ledgerlink/internal/database/repository"
)

// DefaultAutoApplyThreshold is the minimum confidence at which a
// candidate match may be linked without user review.
const DefaultAutoApplyThreshold = 0.7

// SplitByThreshold partitions candidates into those safe to auto-apply
// and those that need manual review. A non-positive threshold falls
// back to the default.
func SplitByThreshold(matches []Match, threshold float64) (apply, review []Match) {
	if threshold <= 0 {
		threshold = DefaultAutoApplyThreshold
	}
	for _, m := range matches {
		if m.Confidence >= threshold {
			apply = append(apply, m)
		} else {
			review = append(review, m)
		}
	}
	return apply, review
}

// Apply links each matched pair by setting both sides' back-reference
// to the other's id and appending the match reasoning to the notes. The
// link is symmetric; a pair where either side is already linked is
// skipped rather than relinked, so reapplying is harmless. The input
// slice is copied, not mutated.
func Apply(txs []repository.Transaction, matches []Match) []repository.Transaction {
	out := make([]repository.Transaction, len(txs))
	copy(out, txs)
	index := indexByID(out)

	for _, m := range matches {
		i, okA := index[m.SourceID]
		j, okB := index[m.TargetID]
		if !okA || !okB {
			continue
		}
		if out[i].TransferMatchID != nil || out[j].TransferMatchID != nil {
			continue
		}
		link(&out[i], out[j].ID, m.Reasoning)
		link(&out[j], out[i].ID, m.Reasoning)
	}
	return out
}

// Unmatch clears the link on the named transaction and on its
// counterpart. Both sides are cleared together or not at all; a
// transaction whose counterpart is absent from the slice is left
// untouched so a half-cleared pair can never be produced.
func Unmatch(txs []repository.Transaction, txID string) []repository.Transaction {
	out := make([]repository.Transaction, len(txs))
	copy(out, txs)
	index := indexByID(out)

	i, ok := index[txID]
	if !ok || out[i].TransferMatchID == nil {
		return out
	}
	j, ok := index[*out[i].TransferMatchID]
	if !ok {
		return out
	}
	out[i].TransferMatchID = nil
	out[j].TransferMatchID = nil
	return out
}

func link(t *repository.Transaction, counterpartID, note string) {
	id := counterpartID
	t.TransferMatchID = &id
	appended := note
	if t.Notes != nil && *t.Notes != "" {
		appended = *t.Notes + "\n" + note
	}
	t.Notes = &appended
}

func indexByID(txs []repository.Transaction) map[string]int {
	index := make(map[string]int, len(txs))
	for i := range txs {
		index[txs[i].ID] = i
	}
	return index
}
