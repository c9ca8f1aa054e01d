package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourorg/scan-sweeper/internal/app"
	"github.com/yourorg/scan-sweeper/internal/worker"
)

func newStatusCmd(root *rootOptions) *cobra.Command {
	var runs int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the saved cursor, the target list and recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := root.load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			items, err := app.Targets(cfg).List()
			if err != nil {
				return err
			}
			cursor, err := worker.NewProgressStore(cfg.ProgressFile, log).Peek()
			switch {
			case errors.Is(err, os.ErrNotExist):
				fmt.Fprintf(out, "progress: %s not created yet\n", cfg.ProgressFile)
			case err != nil:
				fmt.Fprintf(out, "progress: unreadable (%v), the next run starts at 0\n", err)
				cursor = 0
			default:
				fmt.Fprintf(out, "progress: next index %d of %d\n", cursor, len(items))
			}

			for i, it := range items {
				marker := " "
				if i == cursor {
					marker = ">"
				}
				fmt.Fprintf(out, "%s %4d  %s\n", marker, i, it.Name)
			}

			if !cfg.ArchiveEnabled() || runs <= 0 {
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			store, err := app.OpenArchive(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()
			recent, err := store.RecentRuns(ctx, runs)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "\nrecent runs:")
			for _, r := range recent {
				fmt.Fprintf(out, "  %s  %-11s  %s  items=%d processed=%d failed=%d reported=%d cursor=%d->%d\n",
					r.StartedAt.Format(time.RFC3339), r.Status, r.ID, r.Total, r.Processed, r.Failed, r.Reported, r.StartCursor, r.EndCursor)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&runs, "runs", 5, "recent runs to list when archiving is enabled")
	return cmd
}
