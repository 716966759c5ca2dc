package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nao1215/harvester/internal/config"
	"github.com/nao1215/harvester/internal/crawl"
	"github.com/nao1215/harvester/internal/database"
	"github.com/nao1215/harvester/internal/log"
	"github.com/nao1215/harvester/internal/model"
	"github.com/nao1215/harvester/internal/pipeline"
	"github.com/spf13/cobra"
)

// NewHarvestCmd creates the harvest command.
func NewHarvestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest [container.wacz...]",
		Short: "Harvest records from web-crawl archive containers",
		Long: `Harvest ingests one or more web-crawl container artifacts (WACZ files)
and assembles one structured record per captured page.

For each container it validates the layout, loads the page manifests
and content index, extracts and parses every indexed capture, and
reconciles the result against the prior inventory to detect deleted
pages. Each harvest is recorded in the run-history database for later
comparison.

Examples:
  # Harvest a single container
  harvester harvest crawl.wacz

  # Harvest several containers concurrently
  harvester harvest site-a.wacz site-b.wacz site-c.wacz

  # Write records in two formats and verify member digests
  harvester harvest --verify -r records.jsonl -r records.csv crawl.wacz

  # Reconcile deletions against a URL list from an earlier crawl
  harvester harvest --prior-urls previous.urls crawl.wacz

  # Run the external crawler first, then harvest its output
  harvester harvest --crawl --collection news --output-dir ./crawls

Configuration file (.harvester) example:
  defaults:
    keywordLimit: 10
  containers:
    news-site.wacz:
      priorInventory: inventories/news-site.urls
      outputs:
        - out/news-site.jsonl`,
		Args: cobra.ArbitraryArgs,
		RunE: runHarvestCmd,
	}

	// Record assembly flags
	cmd.Flags().StringArrayP("records", "r", nil,
		"Write assembled records to this path (repeatable; extension selects format: .jsonl, .csv, .tsv, .xml, .md)")
	cmd.Flags().StringP("prior-urls", "p", "",
		"URL list (or .xml sitemap) from an earlier crawl, used for deletion reconciliation")
	cmd.Flags().Bool("verify", false,
		"Verify container member digests against the datapackage before assembly")
	cmd.Flags().IntP("workers", "w", config.DefaultExtractWorkers,
		"Number of concurrent capture extractions per container")
	cmd.Flags().IntP("keyword-limit", "k", config.DefaultKeywordLimit,
		"Number of keywords derived per record")
	cmd.Flags().Bool("keep-html", false,
		"Retain a base64 copy of each HTML payload in the records")

	// Batch harvesting flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of containers harvested concurrently")
	cmd.Flags().StringP("list", "l", "",
		"File listing container paths to harvest, one per line")

	// History flags
	cmd.Flags().Bool("no-history", false,
		"Do not record this harvest in the run-history database")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .harvester in current directory or XDG config directory)")

	// External crawl flags
	cmd.Flags().Bool("crawl", false,
		"Run the external crawler first, then harvest the container it produces")
	cmd.Flags().String("collection", "",
		"Crawl collection name (crawl mode)")
	cmd.Flags().String("output-dir", ".",
		"Crawler working directory (crawl mode)")
	cmd.Flags().String("crawl-config", "",
		"Crawler's own YAML configuration file with seeds and scope (crawl mode)")
	cmd.Flags().Int("crawl-workers", 0,
		"Crawler page worker count; 0 keeps the crawler default (crawl mode)")
	cmd.Flags().Bool("sitemap", false,
		"Seed the crawl from the site's sitemap (crawl mode)")
	cmd.Flags().String("sitemap-from", "",
		"Only crawl sitemap URLs modified after this date, YYYY-MM-DD (crawl mode)")
	cmd.Flags().String("crawler-cmd", config.DefaultCrawlerCommand,
		"External crawler executable (crawl mode)")
	cmd.Flags().StringArray("crawler-arg", nil,
		"Extra argument appended to the crawler command line (repeatable, crawl mode)")
	cmd.Flags().DurationP("crawl-timeout", "T", config.DefaultCrawlTimeout,
		"Maximum duration for one crawler run (crawl mode)")

	return cmd
}

// runHarvestCmd executes the harvest command.
func runHarvestCmd(cmd *cobra.Command, args []string) error {
	// Build config from flags
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Set up structured logging
	verbose := getVerboseFlag(cmd)
	logger := log.NewLogger(os.Stderr, verbose)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	return runHarvest(ctx, cfg, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	// Get flag values
	var err error

	cfg.OutputPaths, err = cmd.Flags().GetStringArray("records")
	if err != nil {
		return nil, err
	}

	cfg.PriorInventoryPath, err = cmd.Flags().GetString("prior-urls")
	if err != nil {
		return nil, err
	}

	cfg.VerifyDigests, err = cmd.Flags().GetBool("verify")
	if err != nil {
		return nil, err
	}

	cfg.ExtractWorkers, err = cmd.Flags().GetInt("workers")
	if err != nil {
		return nil, err
	}

	cfg.KeywordLimit, err = cmd.Flags().GetInt("keyword-limit")
	if err != nil {
		return nil, err
	}

	cfg.KeepHTML, err = cmd.Flags().GetBool("keep-html")
	if err != nil {
		return nil, err
	}

	cfg.BatchSize, err = cmd.Flags().GetInt("batch")
	if err != nil {
		return nil, err
	}

	listFile, err := cmd.Flags().GetString("list")
	if err != nil {
		return nil, err
	}

	noHistory, err := cmd.Flags().GetBool("no-history")
	if err != nil {
		return nil, err
	}

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg.FileConfig, err = loadFileConfig(cfg.ConfigFilePath)
	if err != nil {
		return nil, err
	}

	// Crawl mode flags
	cfg.Crawl, err = cmd.Flags().GetBool("crawl")
	if err != nil {
		return nil, err
	}

	cfg.CrawlCollection, err = cmd.Flags().GetString("collection")
	if err != nil {
		return nil, err
	}

	cfg.CrawlOutputDir, err = cmd.Flags().GetString("output-dir")
	if err != nil {
		return nil, err
	}

	cfg.CrawlConfigPath, err = cmd.Flags().GetString("crawl-config")
	if err != nil {
		return nil, err
	}

	cfg.CrawlWorkers, err = cmd.Flags().GetInt("crawl-workers")
	if err != nil {
		return nil, err
	}

	cfg.CrawlSitemap, err = cmd.Flags().GetBool("sitemap")
	if err != nil {
		return nil, err
	}

	cfg.CrawlSitemapFrom, err = cmd.Flags().GetString("sitemap-from")
	if err != nil {
		return nil, err
	}

	cfg.CrawlerCommand, err = cmd.Flags().GetString("crawler-cmd")
	if err != nil {
		return nil, err
	}

	cfg.CrawlerArgs, err = cmd.Flags().GetStringArray("crawler-arg")
	if err != nil {
		return nil, err
	}

	cfg.CrawlTimeout, err = cmd.Flags().GetDuration("crawl-timeout")
	if err != nil {
		return nil, err
	}

	// Always record harvests using the XDG data directory unless the
	// user opted out
	cfg.SaveToDB = !noHistory
	cfg.DBDir = config.XDGDataDir()

	// Positional arguments are container paths
	cfg.ContainerPaths = args
	if listFile != "" {
		listed, err := readContainerList(listFile)
		if err != nil {
			return nil, err
		}
		cfg.ContainerPaths = append(cfg.ContainerPaths, listed...)
	}

	return cfg, nil
}

// loadFileConfig resolves and loads the configuration file.
// If the user explicitly specified a config file path, error if not found.
// If no path was specified, silently use an empty config if no file is found.
func loadFileConfig(configPath string) (*config.File, error) {
	explicitConfigPath := configPath != ""
	foundPath := config.FindConfigFile(configPath)

	if foundPath != "" {
		fc, err := config.LoadConfigFile(foundPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", foundPath, err)
		}
		return fc, nil
	}
	if explicitConfigPath {
		// User explicitly specified a config file that doesn't exist
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}
	return &config.File{
		Containers: make(map[string]config.ContainerConfig),
	}, nil
}

// readContainerList reads container paths from a file, one per line.
// Blank lines and lines starting with # are skipped.
func readContainerList(path string) ([]string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided list path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to read container list %s: %w", path, err)
	}

	var paths []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, line)
	}
	return paths, nil
}

// runHarvest executes the harvest.
func runHarvest(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Drive the external crawler first when requested. The produced
	// artifact joins the containers to harvest.
	if cfg.Crawl {
		waczPath, err := runCrawl(ctx, cfg, logger)
		if err != nil {
			return err
		}
		cfg.ContainerPaths = append(cfg.ContainerPaths, waczPath)
	}

	if len(cfg.ContainerPaths) == 0 {
		return errors.New("no containers to harvest (pass archive paths as arguments or use --crawl)")
	}

	logger.Info("starting harvest",
		"containers", len(cfg.ContainerPaths),
		"batchSize", cfg.BatchSize,
		"saveHistory", cfg.SaveToDB,
	)

	// Open the run-history store if recording is enabled
	var db *database.HarvestDB
	if cfg.SaveToDB {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "dir", cfg.DBDir)
	}

	// Use batch processor for parallel harvesting if multiple containers
	if len(cfg.ContainerPaths) > 1 && cfg.BatchSize > 1 {
		return runBatchHarvest(ctx, cfg, db, logger)
	}

	// Single container or sequential harvesting
	return runSequentialHarvest(ctx, cfg, db, logger)
}

// runCrawl drives the external crawler and returns the container
// artifact it produced.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger) (string, error) {
	fmt.Printf("Crawling collection %q with %s...\n", cfg.CrawlCollection, cfg.CrawlerCommand)
	fmt.Printf("This can take a long time for large sites (timeout: %s).\n\n", cfg.CrawlTimeout)

	runner := crawl.NewExecRunner(cfg.CrawlerCommand,
		crawl.WithExtraArgs(cfg.CrawlerArgs),
		crawl.WithLogger(logger),
	)

	crawlCtx, cancel := context.WithTimeout(ctx, cfg.CrawlTimeout)
	defer cancel()

	res, err := runner.Crawl(crawlCtx, crawl.Request{
		Collection:      cfg.CrawlCollection,
		OutputDir:       cfg.CrawlOutputDir,
		ConfigPath:      cfg.CrawlConfigPath,
		Workers:         cfg.CrawlWorkers,
		SitemapFromDate: cfg.CrawlSitemapFrom,
		UseSitemap:      cfg.CrawlSitemap,
	})
	if err != nil {
		return "", fmt.Errorf("crawl failed: %w", err)
	}

	fmt.Printf("Crawl produced %s\n\n", res.WACZPath)
	return res.WACZPath, nil
}

// runSequentialHarvest harvests containers one at a time.
func runSequentialHarvest(ctx context.Context, cfg *config.Config, db *database.HarvestDB, logger *slog.Logger) error {
	for _, containerPath := range cfg.ContainerPaths {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Create pipeline with per-container configuration
		p, session := createPipelineForContainer(cfg, db, logger, containerPath)

		h := model.NewHarvest(containerPath)

		fmt.Printf("Harvesting %s...\n", containerPath)

		// Execute the pipeline
		if err := p.Execute(ctx, h); err != nil {
			_ = session.Close() //nolint:errcheck // Close error is secondary to the run error
			logger.Error("harvest failed", "container", containerPath, "error", err)
			fmt.Fprintf(os.Stderr, "Harvest error for %s: %v\n", containerPath, err)
			continue
		}
		if err := session.Close(); err != nil {
			logger.Warn("failed to close container", "container", containerPath, "error", err)
		}
		h.Finish()

		fmt.Printf("Harvest completed in %s\n", h.Elapsed().Round(time.Millisecond))
		printHarvestSummary(h)
	}

	return nil
}

// runBatchHarvest harvests multiple containers concurrently using BatchProcessor.
func runBatchHarvest(ctx context.Context, cfg *config.Config, db *database.HarvestDB, logger *slog.Logger) error {
	fmt.Printf("Starting batch harvest of %d containers (concurrency: %d)...\n\n",
		len(cfg.ContainerPaths), cfg.BatchSize)

	startTime := time.Now()

	// Create batch processor with pipeline factory
	bp := pipeline.NewBatchProcessor(
		func(containerPath string) (*pipeline.Pipeline, *pipeline.Session) {
			return createPipelineForContainer(cfg, db, logger, containerPath)
		},
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	// Process with callback for streaming output
	var mu sync.Mutex
	err := bp.ProcessBatchWithCallback(ctx, cfg.ContainerPaths, func(h *model.Harvest, index int) {
		mu.Lock()
		defer mu.Unlock()

		if h.Error != nil {
			fmt.Printf("[%d/%d] Harvest failed: %s: %v\n",
				index+1, len(cfg.ContainerPaths), h.ContainerPath, h.Error)
			return
		}

		fmt.Printf("[%d/%d] Harvest completed: %s\n",
			index+1, len(cfg.ContainerPaths), h.ContainerPath)
		printHarvestSummary(h)
	})

	elapsed := time.Since(startTime)
	fmt.Printf("\nBatch harvest completed in %s\n", elapsed.Round(time.Millisecond))

	return err
}

// createPipelineForContainer creates a pipeline and its session for one
// container. Per-container settings from the configuration file
// override the global flags.
func createPipelineForContainer(cfg *config.Config, db *database.HarvestDB, logger *slog.Logger, containerPath string) (*pipeline.Pipeline, *pipeline.Session) {
	runCfg := *cfg
	if cfg.FileConfig != nil {
		cc := cfg.FileConfig.GetContainerConfig(filepath.Base(containerPath))
		if cc.PriorInventory != "" {
			runCfg.PriorInventoryPath = cc.PriorInventory
		}
		if len(cc.Outputs) > 0 {
			runCfg.OutputPaths = cc.Outputs
		}
		if cc.KeywordLimit != 0 {
			runCfg.KeywordLimit = cc.KeywordLimit
		}
		if cc.KeepHTML {
			runCfg.KeepHTML = true
		}
	}

	session := pipeline.NewSession()
	return pipeline.DefaultPipeline(session, &runCfg, db, logger), session
}

// printHarvestSummary prints the run summary for one harvested container.
func printHarvestSummary(h *model.Harvest) {
	if h.RecordSet == nil {
		return
	}

	fmt.Printf("  records: %d (%d active, %d deleted)\n",
		h.RecordSet.Len(), h.RecordSet.Active(), h.RecordSet.Deleted())
	for _, path := range h.OutputPaths {
		fmt.Printf("  wrote %s\n", path)
	}
	if h.RunID != "" {
		fmt.Printf("  run ID: %s\n", h.RunID)
	}
	fmt.Println()
}
