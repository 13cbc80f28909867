package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amishk599/rolecall/internal/scraper"
)

var boardsCmd = &cobra.Command{
	Use:   "boards",
	Short: "List supported job boards",
	Long:  "Prints a table of every board a profile can list, with its display name.",
	RunE:  runBoards,
}

func init() {
	rootCmd.AddCommand(boardsCmd)
}

func runBoards(cmd *cobra.Command, args []string) error {
	registry := scraper.Default(scraper.Options{}, setupLogger(debug))
	printBoards(cmd.OutOrStdout(), registry)
	return nil
}

func printBoards(w io.Writer, registry *scraper.Registry) {
	fmt.Fprintf(w, "%-15s %s\n", "Board", "Name")
	fmt.Fprintln(w, strings.Repeat("─", 40))
	for _, b := range registry.Boards() {
		s, _ := registry.Get(b)
		fmt.Fprintf(w, "%-15s %s\n", b, s.Name())
	}
	fmt.Fprintf(w, "\nTotal: %d boards\n", len(registry.Boards()))
}
