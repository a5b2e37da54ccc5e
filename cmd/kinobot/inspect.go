package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/stupiduntilnot/kinobot/internal/config"
	"github.com/stupiduntilnot/kinobot/internal/db"
)

type inspectFlags struct {
	dbPath  string
	userID  int64
	limit   int
	jsonOut bool
}

func (f *inspectFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.dbPath, "db", "", "SQLite database path (default $KINOBOT_DB_PATH or ./data/movies_bot.db)")
	cmd.Flags().Int64Var(&f.userID, "user", 0, "Telegram user id")
	cmd.Flags().IntVarP(&f.limit, "limit", "n", 10, "maximum number of rows")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "output JSON format")
	_ = cmd.MarkFlagRequired("user")
}

func (f *inspectFlags) open() (*db.History, func(), error) {
	path := f.dbPath
	if path == "" {
		path = config.LoadStoreConfig().DBPath
	}
	database, err := db.OpenReadOnly(path)
	if err != nil {
		return nil, nil, err
	}
	return db.NewHistory(database), func() { database.Close() }, nil
}

func newHistoryCmd() *cobra.Command {
	var f inspectFlags
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent lookups of a user, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, closeDB, err := f.open()
			if err != nil {
				return err
			}
			defer closeDB()
			return printHistory(cmd.Context(), cmd.OutOrStdout(), h, f)
		},
	}
	f.register(cmd)
	return cmd
}

func newStatsCmd() *cobra.Command {
	var f inspectFlags
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the most frequent queries among a user's recent lookups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, closeDB, err := f.open()
			if err != nil {
				return err
			}
			defer closeDB()
			return printStats(cmd.Context(), cmd.OutOrStdout(), h, f)
		},
	}
	f.register(cmd)
	return cmd
}

func printHistory(ctx context.Context, w io.Writer, h *db.History, f inspectFlags) error {
	entries, err := h.Recent(ctx, f.userID, f.limit)
	if err != nil {
		return err
	}
	if f.jsonOut {
		return writeJSON(w, entries)
	}
	for _, e := range entries {
		line := fmt.Sprintf("[%d] %s  %s", e.ID, e.Timestamp, e.Query)
		if e.Title != nil {
			line += "  title=" + formatValue(*e.Title)
		}
		if e.URL != nil {
			line += "  url=" + *e.URL
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func printStats(ctx context.Context, w io.Writer, h *db.History, f inspectFlags) error {
	counts, err := h.Frequency(ctx, f.userID, f.limit)
	if err != nil {
		return err
	}
	if f.jsonOut {
		return writeJSON(w, counts)
	}
	for _, c := range counts {
		fmt.Fprintf(w, "%4d  %s\n", c.Count, c.Query)
	}
	return nil
}

// formatValue quotes and truncates long titles.
func formatValue(s string) string {
	r := []rune(s)
	if len(r) > 80 {
		return fmt.Sprintf("%q", string(r[:80])+"...")
	}
	return s
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
