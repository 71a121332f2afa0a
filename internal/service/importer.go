package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/halvard/ledgerlink/internal/database/repository"
	"github.com/halvard/ledgerlink/internal/dedup"
	"github.com/halvard/ledgerlink/internal/llm"
	"github.com/halvard/ledgerlink/internal/rules"
)

const defaultChunkSize = 20

// Importer runs the classification pipeline over imported transactions:
// rule engine first pass, external classifier for the remainder,
// auto-promotion of high-confidence verdicts into standing rules. Each
// persisted stage is a single batch write.
type Importer struct {
	Transactions *repository.TransactionRepo
	Rules        *repository.CategoryRuleRepo
	Classifier   llm.Classifier
	AutoRules    *rules.AutoGenerator
	Detector     *dedup.Detector
	Log          *zap.Logger

	// ChunkSize bounds how many unmatched transactions go to the
	// classifier per call. Cancellation is honored between chunks.
	ChunkSize int
}

// ClassifyOutcome summarizes one pipeline run.
type ClassifyOutcome struct {
	RuleMatched   int
	Classified    int
	FellBack      int
	RulesPromoted int
}

// ImportResult summarizes an import.
type ImportResult struct {
	Imported   int
	Duplicates []dedup.Duplicate
	Classify   ClassifyOutcome
}

// ImportBatch screens incoming transactions against the persisted set,
// inserts the unique ones (plus flagged duplicates when keepDuplicates
// is set), and classifies everything inserted. Flagged duplicates that
// are not kept are reported, never silently dropped transactions the
// caller didn't hear about.
func (s *Importer) ImportBatch(ctx context.Context, incoming []repository.Transaction, keepDuplicates bool) (ImportResult, error) {
	res := ImportResult{}
	if len(incoming) == 0 {
		return res, nil
	}

	existing, err := s.Transactions.List(ctx, repository.TransactionFilters{})
	if err != nil {
		return res, fmt.Errorf("list existing: %w", err)
	}

	detector := s.Detector
	if detector == nil {
		detector = dedup.NewDetector()
	}
	screened := detector.Detect(existing, incoming)
	res.Duplicates = screened.Duplicates

	toInsert := screened.Unique
	if keepDuplicates {
		for _, d := range screened.Duplicates {
			toInsert = append(toInsert, d.Incoming)
		}
	}

	inserted := make([]repository.Transaction, 0, len(toInsert))
	for _, t := range toInsert {
		added, err := s.Transactions.Add(ctx, t)
		if err != nil {
			return res, fmt.Errorf("insert transaction: %w", err)
		}
		inserted = append(inserted, added)
	}
	res.Imported = len(inserted)
	s.logger().Info("import batch inserted",
		zap.Int("imported", res.Imported),
		zap.Int("duplicates", len(res.Duplicates)))

	outcome, err := s.Classify(ctx, inserted)
	if err != nil {
		return res, err
	}
	res.Classify = outcome
	return res, nil
}

// Classify runs the rule engine over the given transactions and sends
// the unmatched remainder to the external classifier in chunks. Rule
// matches persist in one batch write; each classifier chunk persists in
// one batch write. A classifier failure degrades that chunk to
// Uncategorized with no provenance instead of failing the run.
func (s *Importer) Classify(ctx context.Context, txs []repository.Transaction) (ClassifyOutcome, error) {
	outcome := ClassifyOutcome{}
	if len(txs) == 0 {
		return outcome, nil
	}

	activeRules, err := s.Rules.ListActive(ctx)
	if err != nil {
		return outcome, fmt.Errorf("load rules: %w", err)
	}
	engine := rules.NewEngine(activeRules)
	partition := engine.ApplyBatch(txs)
	outcome.RuleMatched = len(partition.Matched)

	if len(partition.Matched) > 0 {
		items := make([]repository.BatchItem, 0, len(partition.Matched))
		for _, t := range partition.Matched {
			items = append(items, repository.BatchItem{ID: t.ID, Update: ruleUpdate(t)})
		}
		if _, err := s.Transactions.BatchUpdate(ctx, items, true); err != nil {
			return outcome, fmt.Errorf("persist rule matches: %w", err)
		}
	}

	chunkSize := s.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	for start := 0; start < len(partition.Unmatched); start += chunkSize {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		end := start + chunkSize
		if end > len(partition.Unmatched) {
			end = len(partition.Unmatched)
		}
		chunkOutcome, err := s.classifyChunk(ctx, partition.Unmatched[start:end])
		if err != nil {
			return outcome, err
		}
		outcome.Classified += chunkOutcome.Classified
		outcome.FellBack += chunkOutcome.FellBack
		outcome.RulesPromoted += chunkOutcome.RulesPromoted
	}

	s.logger().Info("classification finished",
		zap.Int("rule_matched", outcome.RuleMatched),
		zap.Int("classified", outcome.Classified),
		zap.Int("fell_back", outcome.FellBack),
		zap.Int("rules_promoted", outcome.RulesPromoted))
	return outcome, nil
}

func (s *Importer) classifyChunk(ctx context.Context, chunk []repository.Transaction) (ClassifyOutcome, error) {
	outcome := ClassifyOutcome{}
	byID := make(map[string]repository.Transaction, len(chunk))
	records := make([]llm.Record, 0, len(chunk))
	for _, t := range chunk {
		byID[t.ID] = t
		records = append(records, llm.Record{
			ID:          t.ID,
			Description: t.Description,
			Amount:      t.Amount,
			Date:        t.Date.Format(time.DateOnly),
			Account:     t.Account,
		})
	}

	verdicts, err := s.classify(ctx, records)
	if err != nil {
		// degrade the chunk rather than failing the import
		s.logger().Warn("classifier failed, falling back", zap.Error(err))
		items := make([]repository.BatchItem, 0, len(chunk))
		for _, t := range chunk {
			items = append(items, repository.BatchItem{ID: t.ID, Update: fallbackUpdate()})
		}
		n, err := s.Transactions.BatchUpdate(ctx, items, true)
		if err != nil {
			return outcome, fmt.Errorf("persist fallback: %w", err)
		}
		outcome.FellBack = n
		return outcome, nil
	}

	classified := make(map[string]bool, len(verdicts))
	items := make([]repository.BatchItem, 0, len(chunk))
	for _, v := range verdicts {
		t, ok := byID[v.ID]
		if !ok || v.Category == "" {
			continue
		}
		classified[v.ID] = true
		items = append(items, repository.BatchItem{ID: v.ID, Update: classifierUpdate(v)})

		if s.AutoRules != nil {
			_, promoted, err := s.AutoRules.PromoteFromClassification(ctx, t, v.Category, v.Subcategory, v.Confidence)
			if err != nil {
				s.logger().Warn("rule promotion failed", zap.Error(err), zap.String("transaction", t.ID))
			} else if promoted {
				outcome.RulesPromoted++
			}
		}
	}
	// anything the classifier skipped still falls back
	for _, t := range chunk {
		if !classified[t.ID] {
			items = append(items, repository.BatchItem{ID: t.ID, Update: fallbackUpdate()})
			outcome.FellBack++
		}
	}
	outcome.Classified = len(classified)

	if _, err := s.Transactions.BatchUpdate(ctx, items, true); err != nil {
		return ClassifyOutcome{}, fmt.Errorf("persist classifications: %w", err)
	}
	return outcome, nil
}

func (s *Importer) classify(ctx context.Context, records []llm.Record) ([]llm.Classification, error) {
	if s.Classifier == nil {
		return nil, fmt.Errorf("classifier not configured")
	}
	return s.Classifier.ClassifyBatch(ctx, records)
}

func (s *Importer) logger() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}

func ruleUpdate(t repository.Transaction) repository.TransactionUpdate {
	category := t.Category
	subcategory := t.Subcategory
	return repository.TransactionUpdate{
		Category:    &category,
		Subcategory: &subcategory,
		Confidence:  t.Confidence,
		Reasoning:   t.Reasoning,
	}
}

func classifierUpdate(v llm.Classification) repository.TransactionUpdate {
	category := v.Category
	subcategory := v.Subcategory
	confidence := v.Confidence
	reasoning := v.Reasoning
	return repository.TransactionUpdate{
		Category:    &category,
		Subcategory: &subcategory,
		Confidence:  &confidence,
		Reasoning:   &reasoning,
	}
}

func fallbackUpdate() repository.TransactionUpdate {
	category := repository.Uncategorized
	subcategory := ""
	return repository.TransactionUpdate{
		Category:        &category,
		Subcategory:     &subcategory,
		ClearConfidence: true,
		ClearReasoning:  true,
	}
}
