package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"kvitto/internal/core"
	"kvitto/internal/services"
	"kvitto/internal/storage"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit int
		key   string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent fetch runs from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config("")
			if err != nil {
				return err
			}
			if cfg.JournalPath == "" {
				return fmt.Errorf("%w: KVITTO_JOURNAL_PATH is empty, the journal is disabled", core.ErrConfig)
			}
			journal, err := storage.Open(cfg.JournalPath)
			if err != nil {
				return fmt.Errorf("%w: journal: %v", core.ErrIO, err)
			}
			defer journal.Close()

			out := cmd.OutOrStdout()
			if key != "" {
				d, err := journal.Detail(cmd.Context(), key)
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("%w: no fetch recorded for %s", core.ErrNotFound, key)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %s after %d attempts (run %s, %s)\n",
					d.Key, d.Status, d.Attempts, d.RunID, d.UpdatedAt.Format(time.RFC3339))
				if d.LastError != "" {
					fmt.Fprintf(out, "last error: %s\n", d.LastError)
				}
				return nil
			}

			runs, err := journal.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No fetch runs recorded")
				return nil
			}
			t := [][]string{{"Started", "Sender", "Status", "Receipts", "Fetched", "Skipped", "Failures"}}
			for _, r := range runs {
				t = append(t, []string{
					r.StartedAt.Format(time.DateTime),
					services.ListKey(r.Sender),
					r.Status,
					fmt.Sprint(r.Receipts),
					fmt.Sprint(r.DetailsFetched),
					fmt.Sprint(r.DetailsSkipped),
					fmt.Sprint(r.Failures),
				})
			}
			printTable(out, t)
			fmt.Fprintf(out, "journal %s, schema v%d\n", cfg.JournalPath, journal.SchemaVersion())
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")
	cmd.Flags().StringVar(&key, "key", "", "show the last outcome for one receipt key")
	return cmd
}

