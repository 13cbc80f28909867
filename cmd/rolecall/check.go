package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/rolecall/internal/model"
	"github.com/amishk599/rolecall/internal/scraper"
)

var (
	checkKeywords []string
	checkLocation string
	checkRadius   int
	checkLimit    int
)

var checkCmd = &cobra.Command{
	Use:   "check <board>",
	Short: "Scrape one board once, print listings, exit",
	Long:  "One-shot scrape of a single board with ad-hoc search terms. Prints listings and exits. Does not write to the store or queue anything.",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().StringSliceVarP(&checkKeywords, "keywords", "k", []string{"administration"}, "search keywords, highest priority first")
	checkCmd.Flags().StringVarP(&checkLocation, "location", "l", "Brisbane", "search location")
	checkCmd.Flags().IntVar(&checkRadius, "radius", model.DefaultRadiusKm, "search radius in km")
	checkCmd.Flags().IntVarP(&checkLimit, "limit", "n", 10, "stop after this many listings (0 = no limit)")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fail(logger, "failed to load config", err)
	}

	registry := scraper.Default(scraperOptions(cfg), logger)
	s, ok := registry.Get(args[0])
	if !ok {
		return fmt.Errorf("unknown board %q (known: %s)", args[0], strings.Join(registry.Boards(), ", "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	params := scraper.SearchParams{Keywords: checkKeywords, Location: checkLocation, RadiusKm: checkRadius}
	logger.Info("check mode: nothing will be stored", "board", s.Board(), "url", s.BuildSearchURL(params))

	out := cmd.OutOrStdout()
	count := 0
	for l, err := range s.Scrape(ctx, params) {
		if err != nil {
			return fail(logger, "scrape failed", err)
		}
		count++
		fmt.Fprintf(out, "%3d. %s | %s | %s\n", count, l.Title, l.Company, l.LocationRaw)
		if l.SalaryDisplay != "" {
			fmt.Fprintf(out, "     %s\n", l.SalaryDisplay)
		}
		fmt.Fprintf(out, "     %s\n", l.SourceURL)
		if checkLimit > 0 && count >= checkLimit {
			break
		}
	}

	logger.Info("check complete", "board", s.Board(), "listings", count)
	return nil
}
