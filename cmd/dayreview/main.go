// DayReview - daily activity review daemon and CLI
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashureev/dayreview/internal/domain"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, domain.ErrAlreadyRunning) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts clientOptions

	rootCmd := &cobra.Command{
		Use:   "dayreview",
		Short: "Daily activity review",
		Long: `DayReview watches which applications you use during the day and,
shortly after midnight, writes a short review of how the day went.

Usage:
  dayreview run              Start the daemon
  dayreview stats            Show today's statistics
  dayreview report           Generate a preview report for today
  dayreview show 2026-03-09  Show a past day
  dayreview history          List recent days`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			// A missing .env is fine; environment variables still apply.
			_ = godotenv.Load()
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.addr, "addr", "", "Daemon address (default $DAYREVIEW_LISTEN_ADDR or 127.0.0.1:7817)")
	rootCmd.PersistentFlags().BoolVar(&opts.json, "json", false, "Output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "daemon", Title: "Daemon:"},
		&cobra.Group{ID: "query", Title: "Query:"},
	)

	run := runCmd()
	run.GroupID = "daemon"
	rootCmd.AddCommand(run)

	for _, cmd := range []*cobra.Command{
		statsCmd(&opts),
		reportCmd(&opts),
		pauseCmd(&opts),
		resumeCmd(&opts),
		showCmd(&opts),
		historyCmd(&opts),
	} {
		cmd.GroupID = "query"
		rootCmd.AddCommand(cmd)
	}

	return rootCmd
}
