package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[kinobot] %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kinobot",
		Short: "Telegram bot that looks up movies and videos",
		Long: `kinobot answers chat messages with movie details from the catalog
service and matching videos from the video search service.

Available subcommands:
  serve   - Run the bot (long polling)
  history - Print recent lookups of a user from the history database
  stats   - Print the most frequent queries of a user`,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newHistoryCmd(), newStatsCmd())
	return root
}
