package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"kvitto/internal/sheets"
	"kvitto/internal/sheets/google"
	"kvitto/internal/sheets/memory"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		sender string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the monthly summary to a Google Sheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config(sender)
			if err != nil {
				return err
			}

			var exporter sheets.SummaryExporter
			if dryRun {
				exporter = memory.New()
			} else {
				if err := cfg.ValidateExport(); err != nil {
					return err
				}
				client, err := google.New(cmd.Context(), google.Options{
					SpreadsheetID:   cfg.GoogleSpreadsheetID,
					Range:           cfg.GoogleSheetRange,
					CredentialsJSON: cfg.GoogleServiceAccountJSON,
					CredentialsFile: cfg.GoogleServiceAccountFile,
					Logger:          a.logger,
				})
				if err != nil {
					return err
				}
				exporter = client
			}

			reports, err := a.reportService(cfg, nil)
			if err != nil {
				return err
			}
			groups, err := reports.Groups(cmd.Context(), cfg.Sender)
			if err != nil {
				return err
			}
			summary := sheets.SummaryTable(groups)
			ref, err := exporter.ExportSummary(cmd.Context(), summary)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dryRun {
				printTable(out, summary)
			}
			fmt.Fprintf(out, "Exported %d months to %s\n", len(groups), ref)
			return nil
		},
	}
	cmd.Flags().StringVar(&sender, "sender", "", "export one sender's cached list")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the summary instead of writing the sheet")
	return cmd
}

func printTable(w io.Writer, t sheets.Table) {
	if len(t) == 0 {
		return
	}
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(t[0]...).
		Rows(t[1:]...)
	fmt.Fprintln(w, tbl.String())
}
