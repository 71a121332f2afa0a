// Package dedup flags likely duplicates among newly imported
// transactions before they are committed. Detection is pure
// classification: the caller decides whether to import anyway.
package dedup

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/halvard/ledgerlink/internal/database/repository"
)

// DefaultThreshold separates duplicate from unique.
const DefaultThreshold = 0.8

// Weights control how the three signals combine into one score. They
// should sum to 1.
type Weights struct {
	Description float64
	Amount      float64
	Date        float64
}

// DefaultWeights returns the stock blend: description similarity
// dominates, amount equality second, date proximity last.
func DefaultWeights() Weights {
	return Weights{Description: 0.5, Amount: 0.3, Date: 0.2}
}

// Detector scores incoming transactions against existing ones.
type Detector struct {
	Threshold float64
	Weights   Weights

	// MaxDaysWindow bounds how far apart two dates can be and still
	// contribute any date credit.
	MaxDaysWindow int
}

// NewDetector returns a detector with stock tuning.
func NewDetector() *Detector {
	return &Detector{Threshold: DefaultThreshold, Weights: DefaultWeights(), MaxDaysWindow: 7}
}

// Duplicate pairs an incoming transaction with its closest existing
// counterpart and the score that flagged it.
type Duplicate struct {
	Incoming   repository.Transaction
	ExistingID string
	Score      float64
	Reason     string
}

// Result partitions the incoming batch: every record lands in exactly
// one of Duplicates or Unique.
type Result struct {
	Duplicates []Duplicate
	Unique     []repository.Transaction
}

// Detect classifies each incoming transaction as duplicate or unique by
// its best score against the existing set. Empty inputs produce empty
// outputs, never an error.
func (d *Detector) Detect(existing, incoming []repository.Transaction) Result {
	threshold := d.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	weights := d.Weights
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}

	var res Result
	for _, in := range incoming {
		best := -1.0
		bestID := ""
		for _, ex := range existing {
			if s := d.score(ex, in, weights); s > best {
				best = s
				bestID = ex.ID
			}
		}
		if best >= threshold {
			res.Duplicates = append(res.Duplicates, Duplicate{
				Incoming:   in,
				ExistingID: bestID,
				Score:      best,
				Reason:     fmt.Sprintf("Similarity %.2f against existing transaction %s", best, bestID),
			})
			continue
		}
		res.Unique = append(res.Unique, in)
	}
	return res
}

func (d *Detector) score(a, b repository.Transaction, w Weights) float64 {
	return w.Description*descriptionSimilarity(a.Description, b.Description) +
		w.Amount*amountSimilarity(a.Amount, b.Amount) +
		w.Date*d.dateSimilarity(a.Date, b.Date)
}

// descriptionSimilarity is 1 minus the normalized edit distance,
// case-folded. Identical descriptions score 1.
func descriptionSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	sim := 1 - float64(dist)/float64(longest)
	if sim < 0 {
		return 0
	}
	return sim
}

func amountSimilarity(a, b float64) float64 {
	if a == b {
		return 1
	}
	larger := math.Max(math.Abs(a), math.Abs(b))
	if larger == 0 {
		return 0
	}
	rel := math.Abs(a-b) / larger
	if rel >= 0.05 {
		return 0
	}
	return 1 - rel/0.05
}

func (d *Detector) dateSimilarity(a, b time.Time) float64 {
	window := d.MaxDaysWindow
	if window <= 0 {
		window = 7
	}
	days := int(math.Round(math.Abs(a.Sub(b).Hours()) / 24))
	if days >= window {
		return 0
	}
	return 1 - float64(days)/float64(window)
}
