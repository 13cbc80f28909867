package main

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/rolecall/internal/pipeline"
	"github.com/amishk599/rolecall/internal/queue"
	"github.com/amishk599/rolecall/internal/store"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape <profile-id> [board...]",
	Short: "Queue a scrape for a profile now",
	Long:  "Queues one scrape job per board for the profile, outside its schedule. Boards default to the profile's own list.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fail(logger, "failed to load config", err)
	}

	ctx, cancel := withTimeout(30 * time.Second)
	defer cancel()

	sqlStore, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fail(logger, "failed to open store", err)
	}
	defer sqlStore.Close()

	profile, err := sqlStore.ProfileByID(ctx, args[0])
	if err != nil {
		return fail(logger, "failed to load profile", err)
	}

	boards := args[1:]
	if len(boards) == 0 {
		boards = profile.Boards
	}
	for _, b := range boards {
		if !slices.Contains(profile.Boards, b) {
			logger.Warn("board is not on the profile, scraping anyway", "board", b)
		}
	}

	rdb, err := queue.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return fail(logger, "failed to connect to redis", err)
	}
	defer rdb.Close()

	q := newScrapeQueue(rdb, cfg, logger)
	stamp := strconv.FormatInt(time.Now().Unix(), 10)
	for _, b := range boards {
		payload := pipeline.ScrapePayload{ProfileID: profile.ID, Board: b}
		id, err := q.Add(ctx, pipeline.ScrapeJobName, payload, queue.AddOptions{JobID: "manual:" + profile.ID + ":" + b + ":" + stamp})
		if err != nil {
			return fail(logger, "failed to queue scrape", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queued %s for %q (job %s)\n", b, profile.Name, id)
	}
	return nil
}
