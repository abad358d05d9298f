package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harlytics/harlytics/corpus"
	"github.com/harlytics/harlytics/engine"
	"github.com/harlytics/harlytics/logging"
	"github.com/harlytics/harlytics/refdata"
	"github.com/harlytics/harlytics/report"
	"github.com/harlytics/harlytics/store"
)

var (
	blocklistPath  string
	entitiesPath   string
	sitesPath      string
	outDir         string
	dbPath         string
	topN           int
	dnsResolver    string
	dnsTimeout     time.Duration
	dnsConcurrency int

	analyzeCmd = &cobra.Command{
		Use:   "analyze [capture-root...]",
		Short: "Analyze a corpus of captured visits and write result tables",
		Long: `Analyze loads every HAR capture under the given roots (default:
crawl_data_accept, crawl_data_reject, crawl_data_block), resolves request
hostnames against the entity ownership map, reconstructs redirect chains,
detects CNAME cloaking, and writes the aggregated metric tables.`,
		Example: `  harlytics analyze --blocklist disconnect_blocklist.json --sites site_list.csv
  harlytics analyze --blocklist bl.json --entities entities.json --db results.db crawl_data_accept`,
		RunE: runAnalyze,
	}
)

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&blocklistPath, "blocklist", "", "Disconnect-format blocklist JSON (required)")
	analyzeCmd.Flags().StringVar(&entitiesPath, "entities", "", "Disconnect entities JSON refining organization names")
	analyzeCmd.Flags().StringVar(&sitesPath, "sites", "", "Site list CSV mapping site domains to countries")
	analyzeCmd.Flags().StringVarP(&outDir, "out", "o", "results", "Output directory for result tables")
	analyzeCmd.Flags().StringVar(&dbPath, "db", "", "Optional SQLite database to persist results into")
	analyzeCmd.Flags().IntVar(&topN, "top", 10, "Leaderboard depth for ranking tables")
	analyzeCmd.Flags().StringVar(&dnsResolver, "dns-resolver", "8.8.8.8:53", "Recursive resolver for alias-chain lookups")
	analyzeCmd.Flags().DurationVar(&dnsTimeout, "dns-timeout", 5*time.Second, "Timeout per alias-chain resolution")
	analyzeCmd.Flags().IntVar(&dnsConcurrency, "dns-concurrency", 16, "Maximum in-flight DNS resolutions")

	_ = analyzeCmd.MarkFlagRequired("blocklist")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	roots := args
	if len(roots) == 0 {
		roots = []string{"crawl_data_accept", "crawl_data_reject", "crawl_data_block"}
	}

	// Reference data first: the engine refuses to start without it.
	entities, err := refdata.LoadEntityMap(blocklistPath, entitiesPath, Logger)
	if err != nil {
		return fmt.Errorf("load entity map: %w", err)
	}
	Logger.Info("entity map loaded", logging.Component("refdata"), zap.Int("domains", entities.Len()))

	var sites map[string]refdata.Site
	if sitesPath != "" {
		sites, err = refdata.LoadSiteList(sitesPath)
		if err != nil {
			return fmt.Errorf("load site list: %w", err)
		}
		Logger.Info("site list loaded", logging.Component("refdata"), zap.Int("sites", len(sites)))
	}

	loader := corpus.NewLoader(sites, Logger)
	visits, err := loader.LoadRoots(roots)
	if err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}

	cfg := engine.DefaultConfig()
	cfg.DNS.Resolver = dnsResolver
	cfg.DNS.Timeout = dnsTimeout
	cfg.DNS.Concurrency = dnsConcurrency

	resolver := engine.NewAliasResolver(cfg.DNS, Logger)
	analyzer := engine.NewAnalyzer(cfg, entities, resolver, Logger)

	result, err := analyzer.Run(cmd.Context(), visits)
	if err != nil {
		return err
	}

	opts := report.DefaultOptions()
	opts.TopN = topN
	if err := report.WriteAll(outDir, result, opts); err != nil {
		return fmt.Errorf("write reports: %w", err)
	}

	if dbPath != "" {
		db, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open results database: %w", err)
		}
		defer db.Close()
		if err := db.SaveRun(result); err != nil {
			return fmt.Errorf("persist results: %w", err)
		}
	}

	printSummary(result, outDir)
	return nil
}

func printSummary(result *engine.RunResult, outDir string) {
	bold := color.New(color.Bold)
	bold.Println("analysis complete")

	crossEntity := 0
	for i := range result.Chains {
		if result.Chains[i].CrossEntity {
			crossEntity++
		}
	}

	fmt.Printf("  visits analyzed:       %s\n", color.GreenString("%d", len(result.Rows)))
	fmt.Printf("  redirect chains:       %s\n", color.GreenString("%d", len(result.Chains)))
	fmt.Printf("  cross-entity chains:   %s\n", color.YellowString("%d", crossEntity))
	fmt.Printf("  cloaking findings:     %s\n", color.RedString("%d", len(result.Cloaking)))
	fmt.Printf("  cookie observations:   %s\n", color.GreenString("%d", len(result.Cookies)))
	if len(result.Faults) > 0 {
		fmt.Printf("  per-visit faults:      %s\n", color.RedString("%d", len(result.Faults)))
	}
	fmt.Printf("  tables written to:     %s\n", outDir)
}
