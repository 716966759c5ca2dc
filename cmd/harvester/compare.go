package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/nao1215/harvester/internal/config"
	"github.com/nao1215/harvester/internal/database"
	"github.com/spf13/cobra"
)

// NewCompareCmd creates the compare command.
// This command compares recorded harvest runs from the history database.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [old-run-id] [new-run-id]",
		Short: "Compare two recorded harvest runs",
		Long: `Compare shows URL-level differences between two recorded runs:
pages added since the baseline, pages removed, and pages whose
capture details changed.

Without arguments, the two most recent runs are compared. Run IDs
come from 'harvester compare --list' or the harvest output.

Examples:
  # Compare the two most recent runs
  harvester compare

  # List recorded runs with their IDs
  harvester compare --list

  # Compare two specific runs
  harvester compare 1b4e28ba-2fa1-11d2-883f-0016d3cca427 6fa459ea-ee8a-3ca4-894e-db77e160355e

  # Output the comparison as JSON
  harvester compare --json`,
		Args: cobra.MaximumNArgs(2),
		RunE: runCompareCmd,
	}

	// History listing flags
	cmd.Flags().BoolP("list", "l", false,
		"List recorded runs instead of comparing")
	cmd.Flags().IntP("limit", "n", 20,
		"Maximum number of runs listed with --list (0 lists all)")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")

	return cmd
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	listRuns, err := cmd.Flags().GetBool("list")
	if err != nil {
		return err
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	// Validate arguments before opening the database
	if !listRuns && len(args) == 1 {
		return errors.New("provide two run IDs, or none to compare the latest runs")
	}

	// Use XDG data directory for database
	dbDir := config.XDGDataDir()

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()

	if listRuns {
		return listRecordedRuns(ctx, db, limit)
	}

	var oldID, newID string
	if len(args) == 2 {
		oldID, newID = args[0], args[1]
	} else {
		// Default: compare the two most recent runs
		runs, err := db.Runs(ctx, 2)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) < 2 {
			return fmt.Errorf("at least 2 recorded runs are required for comparison (found %d)", len(runs))
		}
		// Runs are ordered most recent first
		oldID, newID = runs[1].ID, runs[0].ID
	}

	comparison, err := db.CompareRuns(ctx, oldID, newID)
	if err != nil {
		return fmt.Errorf("failed to compare runs: %w", err)
	}

	if jsonOutput {
		return outputComparisonJSON(comparison)
	}
	return outputComparisonText(comparison)
}

// listRecordedRuns lists recorded harvest runs, most recent first.
func listRecordedRuns(ctx context.Context, db *database.HarvestDB, limit int) error {
	runs, err := db.Runs(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No recorded runs found in the database.")
		fmt.Println("\nUse 'harvester harvest <container.wacz>' to record a harvest.")
		return nil
	}

	fmt.Printf("Recorded runs (%d):\n\n", len(runs))
	fmt.Printf("  %-36s  %-19s  %7s  %7s  %7s  %s\n",
		"ID", "Finished", "Total", "Active", "Deleted", "Container")
	fmt.Println("  " + strings.Repeat("-", 100))

	for _, run := range runs {
		fmt.Printf("  %-36s  %-19s  %7d  %7d  %7d  %s\n",
			run.ID,
			run.FinishedAt.Format("2006-01-02 15:04:05"),
			run.Total,
			run.Active,
			run.Deleted,
			run.Container,
		)
	}

	fmt.Println("\nUse 'harvester compare <old-id> <new-id>' to compare two runs.")

	return nil
}

// outputComparisonJSON outputs the comparison result in JSON format.
func outputComparisonJSON(cmp *database.RunComparison) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(cmp)
}

// outputComparisonText outputs the comparison result in human-readable text format.
func outputComparisonText(cmp *database.RunComparison) error {
	fmt.Println("Run Comparison")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\nOld run: %s\n", cmp.Old.ID)
	fmt.Printf("  %s, finished %s\n", cmp.Old.Container, cmp.Old.FinishedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("New run: %s\n", cmp.New.ID)
	fmt.Printf("  %s, finished %s\n", cmp.New.Container, cmp.New.FinishedAt.Format("2006-01-02 15:04:05"))

	// Summary table
	fmt.Println("\nRecord Summary:")
	fmt.Printf("  %-10s  %-10s  %-10s  %-10s\n", "Metric", "Old", "New", "Change")
	fmt.Println("  " + strings.Repeat("-", 45))
	fmt.Printf("  %-10s  %-10d  %-10d  %-10s\n", "Total",
		cmp.Old.Total, cmp.New.Total, formatDelta(cmp.New.Total-cmp.Old.Total))
	fmt.Printf("  %-10s  %-10d  %-10d  %-10s\n", "Active",
		cmp.Old.Active, cmp.New.Active, formatDelta(cmp.New.Active-cmp.Old.Active))
	fmt.Printf("  %-10s  %-10d  %-10d  %-10s\n", "Deleted",
		cmp.Old.Deleted, cmp.New.Deleted, formatDelta(cmp.New.Deleted-cmp.Old.Deleted))

	// Added URLs
	if len(cmp.Added) > 0 {
		fmt.Printf("\nAdded URLs (%d):\n", len(cmp.Added))
		for _, url := range cmp.Added {
			fmt.Printf("  [+] %s\n", url)
		}
	}

	// Removed URLs
	if len(cmp.Removed) > 0 {
		fmt.Printf("\nRemoved URLs (%d):\n", len(cmp.Removed))
		for _, url := range cmp.Removed {
			fmt.Printf("  [-] %s\n", url)
		}
	}

	// Changed URLs
	if len(cmp.Changed) > 0 {
		fmt.Printf("\nChanged URLs (%d):\n", len(cmp.Changed))
		for _, url := range cmp.Changed {
			fmt.Printf("  [~] %s\n", url)
		}
	}

	if len(cmp.Added) == 0 && len(cmp.Removed) == 0 && len(cmp.Changed) == 0 {
		fmt.Println("\nNo URL-level differences.")
	}

	return nil
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	} else if delta < 0 {
		return strconv.Itoa(delta)
	}
	return "0"
}
