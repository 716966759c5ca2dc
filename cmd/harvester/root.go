// Package main provides the entry point for the harvester CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for harvester.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Assemble structured records from web-crawl archives",
		Long: `Harvester ingests web-crawl container artifacts (WACZ files) and
assembles one structured record per captured page: titles, metadata
fields, keywords, and capture details, reconciled against prior
harvests to detect deleted pages.

The crawl itself is performed by an external crawler; harvester reads
the container it produces. Use 'harvester harvest --crawl' to drive
the crawler and ingest its output in one step.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewHarvestCmd())
	cmd.AddCommand(NewRecordsCmd())
	cmd.AddCommand(NewInspectCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
