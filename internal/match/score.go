package match

import (
	"fmt"
	"strings"

	"github.com/halvard/ledgerlink/internal/database/repository"
)

// Scoring holds the confidence tuning constants. The values are
// heuristics: their relative ordering matters (same-day outweighs exact
// amount outweighs vocabulary), the exact magnitudes are configurable.
// Cap keeps heuristic scores strictly below 1.0, which is reserved for
// deterministic rule matches.
type Scoring struct {
	Base             float64
	SameDayBonus     float64
	NearDayBonus     float64 // one day apart
	CloseDayBonus    float64 // two or three days apart
	ExactAmountBonus float64
	KeywordBonus     float64
	Cap              float64
}

// DefaultScoring returns the stock tuning.
func DefaultScoring() Scoring {
	return Scoring{
		Base:             0.50,
		SameDayBonus:     0.25,
		NearDayBonus:     0.15,
		CloseDayBonus:    0.05,
		ExactAmountBonus: 0.15,
		KeywordBonus:     0.10,
		Cap:              0.95,
	}
}

// transferKeywords is the vocabulary that marks a description as
// transfer-like. Matching any of them in either side of a pair earns
// the keyword bonus.
var transferKeywords = []string{
	"transfer", "xfer", "trf", "move", "payment", "pymt", "internal",
}

var reimbursementKeywords = []string{
	"reimburse", "reimbursement", "refund", "repay", "repayment", "payback",
}

func (s Scoring) score(a, b repository.Transaction, days int, amountDiff float64, kind Kind) float64 {
	score := s.Base
	switch {
	case days == 0:
		score += s.SameDayBonus
	case days == 1:
		score += s.NearDayBonus
	case days <= 3:
		score += s.CloseDayBonus
	}
	if amountDiff == 0 {
		score += s.ExactAmountBonus
	}
	if hasKeyword(a.Description, kind) || hasKeyword(b.Description, kind) {
		score += s.KeywordBonus
	}
	if score > s.Cap {
		score = s.Cap
	}
	return score
}

func hasKeyword(description string, kind Kind) bool {
	vocabulary := transferKeywords
	if kind == KindReimbursement {
		vocabulary = reimbursementKeywords
	}
	lower := strings.ToLower(description)
	for _, kw := range vocabulary {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// reasoning builds the human-readable explanation. days is already
// rounded to whole days by the caller.
func reasoning(a, b repository.Transaction, days int, amountDiff float64, kind Kind) string {
	var sb strings.Builder
	switch kind {
	case KindSameAccount:
		sb.WriteString("Same-account pair")
	case KindReimbursement:
		sb.WriteString("Reimbursement pair")
	default:
		sb.WriteString("Transfer pair")
	}
	fmt.Fprintf(&sb, ": %.2f and %.2f", a.Amount, b.Amount)
	if amountDiff > 0 {
		fmt.Fprintf(&sb, " (amounts differ by %.2f)", amountDiff)
	}
	if days == 0 {
		sb.WriteString(", same day")
	} else if days == 1 {
		sb.WriteString(", 1 day apart")
	} else {
		fmt.Fprintf(&sb, ", %d days apart", days)
	}
	if kind == KindTransfer && a.Account != b.Account {
		from, to := outflowFirst(a, b)
		fmt.Fprintf(&sb, ", %s to %s", from, to)
	}
	return sb.String()
}

func outflowFirst(a, b repository.Transaction) (string, string) {
	if a.Amount < 0 {
		return a.Account, b.Account
	}
	return b.Account, a.Account
}
