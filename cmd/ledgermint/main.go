package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ledgermint/ledgermint/internal/config"
	"github.com/ledgermint/ledgermint/internal/domain"
	"github.com/ledgermint/ledgermint/internal/importer"
	"github.com/ledgermint/ledgermint/internal/learning"
	"github.com/ledgermint/ledgermint/internal/output"
	"github.com/ledgermint/ledgermint/internal/recurring"
	fsstore "github.com/ledgermint/ledgermint/internal/store/firestore"
	"github.com/ledgermint/ledgermint/internal/store/sqlite"
	"github.com/ledgermint/ledgermint/internal/ui"
	"github.com/ledgermint/ledgermint/internal/validate"
)

const version = "0.1.0"

func usage() {
	fmt.Fprint(os.Stderr, `ledgermint - bank statement ingestion and categorization

Usage:
  ledgermint <command> [flags]

Commands:
  import         Import a statement file (CSV or OFX) into the ledger
  subscriptions  List detected recurring payments awaiting review
  confirm        Confirm the category of a ledger entry
  confirm-sub    Confirm a recurring pattern as a subscription
  dismiss-sub    Dismiss a recurring pattern permanently
  validate       Check stored ledger state against its invariants
  history        Show the import audit trail for an account
  version        Show version

Examples:
  # Import a statement into the local database
  ledgermint import -input statement.csv -account acc-1 -db ledger.db

  # Review detected subscriptions as JSON
  ledgermint subscriptions -db ledger.db -json

  # Teach the classifier
  ledgermint confirm -entry 7f3a... -category groceries -db ledger.db

`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "import":
		err = runImport(os.Args[2:])
	case "subscriptions":
		err = runSubscriptions(os.Args[2:])
	case "confirm":
		err = runConfirm(os.Args[2:])
	case "confirm-sub":
		err = runSubscriptionFlag(os.Args[2:], true)
	case "dismiss-sub":
		err = runSubscriptionFlag(os.Args[2:], false)
	case "validate":
		err = runValidate(os.Args[2:])
	case "history":
		err = runHistory(os.Args[2:])
	case "version":
		fmt.Printf("ledgermint version %s\n", version)
	case "-h", "-help", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// storeFlags is the backend selection shared by every command: a local
// SQLite file by default, Firestore when -project is set.
type storeFlags struct {
	dbPath    string
	projectID string
	credsPath string
}

func (f *storeFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.dbPath, "db", "ledgermint.db", "SQLite database path")
	fs.StringVar(&f.projectID, "project", "", "GCP project ID (use Firestore instead of SQLite)")
	fs.StringVar(&f.credsPath, "credentials", "", "Service account credentials file (Firestore only)")
}

// stores bundles the backend behind the per-concern interfaces.
type stores struct {
	ledger   importer.LedgerStore
	rules    learning.RuleStore
	patterns recurring.PatternStore
	audit    importer.AuditStore
	imports  importLister
	close    func() error
}

type importLister interface {
	ListImports(ctx context.Context, accountID string) ([]domain.ImportRecord, error)
}

func openStores(ctx context.Context, f *storeFlags) (*stores, error) {
	if f.projectID != "" {
		client, err := fsstore.NewClient(ctx, f.projectID, f.credsPath)
		if err != nil {
			return nil, err
		}
		return &stores{
			ledger: client, rules: client, patterns: client,
			audit: client, imports: client, close: client.Close,
		}, nil
	}

	store, err := sqlite.Open(f.dbPath)
	if err != nil {
		return nil, err
	}
	return &stores{
		ledger: store, rules: store, patterns: store,
		audit: store, imports: store, close: store.Close,
	}, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Default()
}

func runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	var sf storeFlags
	sf.register(fs)
	input := fs.String("input", "", "Statement file to import (required)")
	account := fs.String("account", "", "Account ID the statement belongs to (required)")
	configPath := fs.String("config", "", "Tunables YAML file (default: embedded)")
	jsonOut := fs.String("json", "", "Write the import summary as JSON to this file ('-' = stdout)")
	dryRun := fs.Bool("dry-run", false, "Parse and classify without writing")
	verbose := fs.Bool("verbose", false, "Show per-row issues")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return fmt.Errorf("-input flag is required")
	}
	if *account == "" {
		return fmt.Errorf("-account flag is required")
	}

	ctx := context.Background()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(*input)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", *input, err)
	}

	ui.Header("Importing Statement")
	ui.Step(1, 3, fmt.Sprintf("Loading %s", filepath.Base(*input)))

	var imp *importer.Importer
	if *dryRun {
		// Run the full pipeline against an empty in-memory store so nothing
		// persists, including seed rules.
		mem, err := sqlite.Open(":memory:")
		if err != nil {
			return err
		}
		defer mem.Close()
		dryEngine := learning.NewEngine(mem, cfg.Learning)
		if err := dryEngine.Seed(ctx); err != nil {
			return fmt.Errorf("failed to seed starter rules: %w", err)
		}
		imp = importer.New(mem, nil, dryEngine, recurring.NewDetector(mem, cfg.Recurring))
	} else {
		st, err := openStores(ctx, &sf)
		if err != nil {
			return err
		}
		defer st.close()
		engine := learning.NewEngine(st.rules, cfg.Learning)
		if err := engine.Seed(ctx); err != nil {
			return fmt.Errorf("failed to seed starter rules: %w", err)
		}
		detector := recurring.NewDetector(st.patterns, cfg.Recurring)
		imp = importer.New(st.ledger, st.audit, engine, detector)
	}

	ui.Step(2, 3, "Parsing and deduplicating")
	result, err := imp.ImportStatementFrom(ctx, raw, *account, filepath.Base(*input))
	if err != nil {
		return err
	}

	ui.Step(3, 3, "Summary")
	ui.Success(fmt.Sprintf("Imported %d of %d rows (%d duplicates, %d skipped)",
		result.InsertedCount, result.TotalRows, result.DuplicateCount, result.MalformedRowCount))
	if result.AutoCategorizedCount > 0 {
		ui.Info(fmt.Sprintf("Auto-categorized %d entries", result.AutoCategorizedCount))
	}
	if result.MalformedRowCount > 0 {
		if *verbose {
			for _, issue := range result.Issues {
				ui.Warning(issue.String())
			}
		} else {
			ui.Warning(fmt.Sprintf("%d rows skipped; run with -verbose to see them", result.MalformedRowCount))
		}
	}
	if *dryRun {
		ui.Info("Dry run: nothing was written")
	}

	if *jsonOut != "" {
		path := *jsonOut
		if path == "-" {
			path = ""
		}
		if err := output.WriteImportResultTo(&result, output.WriteOptions{FilePath: path}); err != nil {
			return err
		}
	}
	return nil
}

func runSubscriptions(args []string) error {
	fs := flag.NewFlagSet("subscriptions", flag.ExitOnError)
	var sf storeFlags
	sf.register(fs)
	configPath := fs.String("config", "", "Tunables YAML file (default: embedded)")
	asJSON := fs.Bool("json", false, "Print as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	st, err := openStores(ctx, &sf)
	if err != nil {
		return err
	}
	defer st.close()

	detector := recurring.NewDetector(st.patterns, cfg.Recurring)
	patterns, err := detector.Unconfirmed(ctx)
	if err != nil {
		return err
	}

	if *asJSON {
		return output.WritePatterns(patterns, os.Stdout)
	}

	if len(patterns) == 0 {
		ui.Info("No unreviewed recurring payments")
		return nil
	}
	ui.Header("Possible Subscriptions")
	for _, p := range patterns {
		ui.Info(fmt.Sprintf("%-30s %10s  %-8s  seen %dx, last %s",
			p.Merchant, p.AverageAmount.StringFixed(2), p.Frequency,
			p.Occurrences, p.LastSeen.Format("2006-01-02")))
	}
	ui.Info("Confirm with: ledgermint confirm-sub -merchant <m> -bucket <b>")
	return nil
}

func runConfirm(args []string) error {
	fs := flag.NewFlagSet("confirm", flag.ExitOnError)
	var sf storeFlags
	sf.register(fs)
	entryID := fs.String("entry", "", "Ledger entry ID (required)")
	categoryID := fs.String("category", "", "Category to assign (required)")
	configPath := fs.String("config", "", "Tunables YAML file (default: embedded)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *entryID == "" {
		return fmt.Errorf("-entry flag is required")
	}
	if *categoryID == "" {
		return fmt.Errorf("-category flag is required")
	}

	ctx := context.Background()
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	st, err := openStores(ctx, &sf)
	if err != nil {
		return err
	}
	defer st.close()

	engine := learning.NewEngine(st.rules, cfg.Learning)
	detector := recurring.NewDetector(st.patterns, cfg.Recurring)
	imp := importer.New(st.ledger, st.audit, engine, detector)

	if err := imp.ConfirmCategory(ctx, *entryID, *categoryID); err != nil {
		return err
	}
	ui.Success(fmt.Sprintf("Entry %s categorized as %s", *entryID, *categoryID))
	return nil
}

func runSubscriptionFlag(args []string, confirm bool) error {
	name := "dismiss-sub"
	if confirm {
		name = "confirm-sub"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	var sf storeFlags
	sf.register(fs)
	merchant := fs.String("merchant", "", "Merchant key of the pattern (required)")
	bucket := fs.String("bucket", "", "Amount bucket of the pattern (required)")
	configPath := fs.String("config", "", "Tunables YAML file (default: embedded)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *merchant == "" {
		return fmt.Errorf("-merchant flag is required")
	}
	if *bucket == "" {
		return fmt.Errorf("-bucket flag is required")
	}

	ctx := context.Background()
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	st, err := openStores(ctx, &sf)
	if err != nil {
		return err
	}
	defer st.close()

	detector := recurring.NewDetector(st.patterns, cfg.Recurring)
	if confirm {
		if err := detector.Confirm(ctx, *merchant, *bucket); err != nil {
			return err
		}
		ui.Success(fmt.Sprintf("Confirmed subscription %s/%s", *merchant, *bucket))
	} else {
		if err := detector.Dismiss(ctx, *merchant, *bucket); err != nil {
			return err
		}
		ui.Success(fmt.Sprintf("Dismissed %s/%s; it will not be suggested again", *merchant, *bucket))
	}
	return nil
}

func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	var sf storeFlags
	sf.register(fs)
	account := fs.String("account", "", "Account ID to validate (required)")
	verbose := fs.Bool("verbose", false, "Show all findings")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *account == "" {
		return fmt.Errorf("-account flag is required")
	}

	ctx := context.Background()
	st, err := openStores(ctx, &sf)
	if err != nil {
		return err
	}
	defer st.close()

	entries, err := st.ledger.QueryLedgerEntries(ctx, *account)
	if err != nil {
		return err
	}
	rules, err := st.rules.ListLearningRules(ctx)
	if err != nil {
		return err
	}
	patterns, err := st.patterns.ListRecurringPatterns(ctx)
	if err != nil {
		return err
	}

	ui.Header("Validating Ledger State")
	results := map[string]*validate.ValidationResult{
		"entries":  validate.ValidateLedger(entries),
		"rules":    validate.ValidateRules(rules),
		"patterns": validate.ValidatePatterns(patterns),
	}

	failed := false
	for _, name := range []string{"entries", "rules", "patterns"} {
		r := results[name]
		if r.HasErrors() {
			failed = true
			ui.Error(fmt.Sprintf("%s: %d errors, %d warnings", name, len(r.Errors), len(r.Warnings)))
		} else {
			ui.Success(fmt.Sprintf("%s: ok (%d warnings)", name, len(r.Warnings)))
		}
		if *verbose {
			for _, e := range r.Errors {
				ui.Error(fmt.Sprintf("  %s %s [%s]: %s", e.Entity, e.ID, e.Field, e.Message))
			}
			for _, w := range r.Warnings {
				ui.Warning(fmt.Sprintf("  %s %s [%s]: %s", w.Entity, w.ID, w.Field, w.Message))
			}
		}
	}
	if failed {
		return fmt.Errorf("validation failed; run with -verbose to see all findings")
	}
	return nil
}

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	var sf storeFlags
	sf.register(fs)
	account := fs.String("account", "", "Account ID (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *account == "" {
		return fmt.Errorf("-account flag is required")
	}

	ctx := context.Background()
	st, err := openStores(ctx, &sf)
	if err != nil {
		return err
	}
	defer st.close()

	records, err := st.imports.ListImports(ctx, *account)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		ui.Info("No imports recorded for this account")
		return nil
	}

	ui.Header("Import History")
	for _, r := range records {
		source := r.Source
		if source == "" {
			source = "<unnamed>"
		}
		ui.Info(fmt.Sprintf("%s  %-30s inserted %d / %d rows (%d dup, %d skipped)",
			r.ImportedAt.Format("2006-01-02 15:04"), source,
			r.InsertedCount, r.TotalRows, r.DuplicateCount, r.SkippedCount))
	}
	return nil
}
