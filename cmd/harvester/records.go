package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nao1215/harvester/internal/config"
	"github.com/nao1215/harvester/internal/log"
	"github.com/nao1215/harvester/internal/model"
	"github.com/nao1215/harvester/internal/report"
	"github.com/spf13/cobra"
)

// NewRecordsCmd creates the records command.
func NewRecordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records [container.wacz]",
		Short: "Assemble records from an existing archive container",
		Long: `Records assembles structured records from an existing container
without recording the run in the history database.

When no output path is given, records are written as JSON Lines to
standard output so they can be piped into other tools.

Examples:
  # Print records as JSON Lines
  harvester records crawl.wacz

  # Pipe into jq
  harvester records crawl.wacz | jq .url

  # Write CSV and Markdown files instead
  harvester records -r records.csv -r records.md crawl.wacz

  # Reconcile deletions against a URL list from an earlier crawl
  harvester records --prior-urls previous.urls crawl.wacz`,
		Args: cobra.ExactArgs(1),
		RunE: runRecordsCmd,
	}

	cmd.Flags().StringArrayP("records", "r", nil,
		"Write assembled records to this path (repeatable; extension selects format: .jsonl, .csv, .tsv, .xml, .md)")
	cmd.Flags().StringP("prior-urls", "p", "",
		"URL list (or .xml sitemap) from an earlier crawl, used for deletion reconciliation")
	cmd.Flags().Bool("verify", false,
		"Verify container member digests against the datapackage before assembly")
	cmd.Flags().IntP("workers", "w", config.DefaultExtractWorkers,
		"Number of concurrent capture extractions")
	cmd.Flags().IntP("keyword-limit", "k", config.DefaultKeywordLimit,
		"Number of keywords derived per record")
	cmd.Flags().Bool("keep-html", false,
		"Retain a base64 copy of each HTML payload in the records")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .harvester in current directory or XDG config directory)")

	return cmd
}

// runRecordsCmd executes the records command.
func runRecordsCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildRecordsConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	verbose := getVerboseFlag(cmd)
	logger := log.NewLogger(os.Stderr, verbose)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	return runRecords(ctx, cfg, logger)
}

// buildRecordsConfig creates a Config from the records command flags.
func buildRecordsConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

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

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg.FileConfig, err = loadFileConfig(cfg.ConfigFilePath)
	if err != nil {
		return nil, err
	}

	cfg.ContainerPaths = args

	return cfg, nil
}

// runRecords assembles records from one container and writes them out.
// The run is not recorded in the history database.
func runRecords(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	containerPath := cfg.ContainerPaths[0]

	p, session := createPipelineForContainer(cfg, nil, logger, containerPath)

	h := model.NewHarvest(containerPath)

	if err := p.Execute(ctx, h); err != nil {
		_ = session.Close() //nolint:errcheck // Close error is secondary to the run error
		return fmt.Errorf("failed to assemble records for %s: %w", containerPath, err)
	}
	if err := session.Close(); err != nil {
		logger.Warn("failed to close container", "container", containerPath, "error", err)
	}
	h.Finish()

	// Default destination is standard output so records can be piped
	if len(h.OutputPaths) == 0 {
		w := report.NewJSONLWriter(os.Stdout)
		if _, err := w.Write(h.RecordSet); err != nil {
			return fmt.Errorf("failed to write records: %w", err)
		}
	}
	for _, path := range h.OutputPaths {
		fmt.Printf("Wrote %s\n", path)
	}

	logger.Info("records assembled",
		"container", containerPath,
		"records", h.RecordSet.Len(),
		"elapsed", h.Elapsed().Round(time.Millisecond),
	)

	return nil
}
