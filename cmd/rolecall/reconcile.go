package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/rolecall/internal/janitor"
	"github.com/amishk599/rolecall/internal/store"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Seal abandoned scrape runs",
	Long:  "Marks scrape runs still running after janitor.stale_after as failed, then prints the most recent runs.",
	Args:  cobra.NoArgs,
	RunE:  runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fail(logger, "failed to load config", err)
	}

	ctx, cancel := withTimeout(time.Minute)
	defer cancel()

	sqlStore, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fail(logger, "failed to open store", err)
	}
	defer sqlStore.Close()

	n, err := janitor.New(sqlStore, cfg.Janitor.StaleAfter, nil, logger).Sweep(ctx)
	if err != nil {
		return fail(logger, "failed to reconcile", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "sealed %d abandoned runs\n\n", n)

	runs, err := sqlStore.RecentScrapeRuns(ctx, 20)
	if err != nil {
		return fail(logger, "failed to list runs", err)
	}
	fmt.Fprintf(out, "%-20s %-12s %-10s %6s %6s  %s\n", "Started", "Board", "Status", "Found", "New", "Error")
	for _, r := range runs {
		fmt.Fprintf(out, "%-20s %-12s %-10s %6d %6d  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Board, r.Status, r.JobsFound, r.JobsNew, r.ErrorMessage)
	}
	return nil
}
