package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/rolecall/internal/model"
	"github.com/amishk599/rolecall/internal/queue"
	"github.com/amishk599/rolecall/internal/scheduler"
	"github.com/amishk599/rolecall/internal/store"
)

var profilesUser string

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Search profile subcommands",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List search profiles",
	Long:  "Lists active profiles, or every profile of one user with --user.",
	Args:  cobra.NoArgs,
	RunE:  runProfilesList,
}

var profilesActivateCmd = &cobra.Command{
	Use:   "activate <profile-id>",
	Short: "Resume scheduled scrapes for a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setProfileActive(cmd, args[0], true)
	},
}

var profilesDeactivateCmd = &cobra.Command{
	Use:   "deactivate <profile-id>",
	Short: "Stop scheduled scrapes for a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setProfileActive(cmd, args[0], false)
	},
}

func init() {
	profilesListCmd.Flags().StringVarP(&profilesUser, "user", "u", "", "list every profile of this user id")
	profilesCmd.AddCommand(profilesListCmd, profilesActivateCmd, profilesDeactivateCmd)
	rootCmd.AddCommand(profilesCmd)
}

func runProfilesList(cmd *cobra.Command, args []string) error {
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

	var profiles []model.SearchProfile
	if profilesUser != "" {
		profiles, err = sqlStore.ProfilesForUser(ctx, profilesUser)
	} else {
		profiles, err = sqlStore.ActiveProfiles(ctx)
	}
	if err != nil {
		return fail(logger, "failed to list profiles", err)
	}

	printProfiles(cmd.OutOrStdout(), profiles)
	return nil
}

func printProfiles(w io.Writer, profiles []model.SearchProfile) {
	fmt.Fprintf(w, "%-36s %-24s %-8s %-6s %-20s %s\n", "ID", "Name", "Active", "Every", "Last scraped", "Boards")
	fmt.Fprintln(w, strings.Repeat("─", 120))
	for _, p := range profiles {
		last := "never"
		if p.LastScrapedAt != nil {
			last = p.LastScrapedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%-36s %-24s %-8t %-6s %-20s %s\n",
			p.ID, truncate(p.Name, 24), p.IsActive, fmt.Sprintf("%dh", p.ScrapeIntervalHours), last, strings.Join(p.Boards, ","))
	}
	fmt.Fprintf(w, "\nTotal: %d profiles\n", len(profiles))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// setProfileActive flips a profile and tells running schedulers to reload it.
func setProfileActive(cmd *cobra.Command, id string, active bool) error {
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

	if err := sqlStore.SetProfileActive(ctx, id, active); err != nil {
		return fail(logger, "failed to update profile", err)
	}

	rdb, err := queue.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return fail(logger, "failed to connect to redis", err)
	}
	defer rdb.Close()

	if err := scheduler.PublishProfileChanged(ctx, rdb, id); err != nil {
		return fail(logger, "profile updated but schedulers were not told", err)
	}

	state := "deactivated"
	if active {
		state = "activated"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "profile %s %s\n", id, state)
	return nil
}
