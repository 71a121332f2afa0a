package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/halvard/ledgerlink/internal/config"
	"github.com/halvard/ledgerlink/internal/database"
	"github.com/halvard/ledgerlink/internal/database/repository"
	"github.com/halvard/ledgerlink/internal/dedup"
	"github.com/halvard/ledgerlink/internal/llm"
	"github.com/halvard/ledgerlink/internal/match"
	"github.com/halvard/ledgerlink/internal/rules"
	"github.com/halvard/ledgerlink/internal/secrets"
	"github.com/halvard/ledgerlink/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if len(os.Args) > 1 && os.Args[1] == "key" {
		return runKey(cfg, os.Args[2:])
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("mkdir db dir: %w", err)
	}
	if err := database.RunMigrations(cfg.Database.Path, cfg.Database.MigrationsPath); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	if err := database.SeedDefaults(ctx, db); err != nil {
		return fmt.Errorf("seed defaults: %w", err)
	}

	txRepo := repository.NewTransactionRepo(db)
	ruleRepo := repository.NewCategoryRuleRepo(db)

	autoRules := &rules.AutoGenerator{
		Rules:              ruleRepo,
		Transactions:       txRepo,
		PromotionThreshold: cfg.Rules.PromotionThreshold,
	}
	classifier := llm.NewOpenAIClassifier(resolveKey(cfg), cfg.Classifier.Model)
	detector := &dedup.Detector{
		Threshold:     cfg.Dedup.Threshold,
		Weights:       dedup.DefaultWeights(),
		MaxDaysWindow: cfg.Dedup.MaxDaysWindow,
	}

	importer := &service.Importer{
		Transactions: txRepo,
		Rules:        ruleRepo,
		Classifier:   classifier,
		AutoRules:    autoRules,
		Detector:     detector,
		Log:          log,
		ChunkSize:    cfg.Classifier.ChunkSize,
	}
	linker := &service.Linker{
		Transactions:       txRepo,
		Log:                log,
		AutoApplyThreshold: cfg.Matching.AutoApplyThreshold,
	}
	editor := &service.Editor{Transactions: txRepo, AutoRules: autoRules, Log: log}
	maintenance := &service.MaintenanceService{DB: db}

	if len(os.Args) < 2 {
		usage()
		return nil
	}

	switch os.Args[1] {
	case "classify":
		txs, err := txRepo.List(ctx, repository.TransactionFilters{Category: repository.Uncategorized})
		if err != nil {
			return err
		}
		outcome, err := importer.Classify(ctx, txs)
		if err != nil {
			return err
		}
		fmt.Printf("rules: %d  classified: %d  fallback: %d  promoted: %d\n",
			outcome.RuleMatched, outcome.Classified, outcome.FellBack, outcome.RulesPromoted)
		return nil

	case "link":
		fs := flag.NewFlagSet("link", flag.ExitOnError)
		kind := fs.String("kind", string(match.KindTransfer), "transfer | same-account | reimbursement")
		days := fs.Int("days", cfg.Matching.MaxDaysDifference, "max day difference")
		tolerance := fs.Float64("tolerance", cfg.Matching.TolerancePercentage, "relative amount tolerance")
		_ = fs.Parse(os.Args[2:])

		outcome, err := linker.Run(ctx, match.Params{
			Kind:                match.Kind(*kind),
			MaxDaysDifference:   *days,
			TolerancePercentage: *tolerance,
		})
		if err != nil {
			return err
		}
		fmt.Printf("linked %d pair(s), %d candidate(s) for review\n", len(outcome.Applied), len(outcome.Review))
		for _, m := range outcome.Review {
			fmt.Printf("  review %.2f: %s\n", m.Confidence, m.Reasoning)
		}
		return nil

	case "unlink":
		fs := flag.NewFlagSet("unlink", flag.ExitOnError)
		id := fs.String("id", "", "transaction id")
		_ = fs.Parse(os.Args[2:])
		if *id == "" {
			return fmt.Errorf("unlink: -id required")
		}
		return linker.Unlink(ctx, *id)

	case "recategorize":
		fs := flag.NewFlagSet("recategorize", flag.ExitOnError)
		id := fs.String("id", "", "transaction id")
		category := fs.String("category", "", "new category")
		subcategory := fs.String("subcategory", "", "new subcategory")
		rule := fs.Bool("rule", false, "derive a standing rule from this edit")
		apply := fs.Bool("apply", false, "reapply the derived rule to existing transactions")
		_ = fs.Parse(os.Args[2:])
		if *id == "" || *category == "" {
			return fmt.Errorf("recategorize: -id and -category required")
		}
		res, err := editor.Recategorize(ctx, *id, *category, *subcategory, *rule, *apply)
		if err != nil {
			return err
		}
		if *rule {
			fmt.Printf("rule %s (new=%v), reclassified %d\n", res.Rule.ID, res.IsNew, res.ReclassifiedCount)
		}
		return nil

	case "reset":
		return maintenance.Reset(ctx)

	default:
		usage()
		return fmt.Errorf("unknown command %q", os.Args[1])
	}
}

// resolveKey prefers env/config, then the local secret store.
func resolveKey(cfg config.Config) string {
	if k := cfg.ResolveAPIKey(); k != "" {
		return k
	}
	store, err := secrets.Open()
	if err != nil {
		return ""
	}
	k, err := store.Get(cfg.Classifier.Provider)
	if err != nil {
		return ""
	}
	return k
}

func runKey(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("key", flag.ExitOnError)
	set := fs.String("set", "", "store an API key for the configured provider")
	del := fs.Bool("delete", false, "delete the stored API key")
	_ = fs.Parse(args)

	store, err := secrets.Open()
	if err != nil {
		return fmt.Errorf("secret store: %w", err)
	}
	switch {
	case *set != "":
		return store.Put(cfg.Classifier.Provider, *set)
	case *del:
		return store.Delete(cfg.Classifier.Provider)
	default:
		return fmt.Errorf("key: -set <key> or -delete required")
	}
}

func usage() {
	fmt.Println(`usage: ledgerlink <command> [flags]

commands:
  classify       run rules then the classifier over uncategorized transactions
  link           find and link transfer/reimbursement pairs
  unlink         clear the link on a transaction and its counterpart
  recategorize   edit a transaction's category, optionally deriving a rule
  key            store or delete the classifier API key
  reset          wipe all data`)
}
