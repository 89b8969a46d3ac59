package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"kvitto/internal/render"
)

func newReportCmd(a *app) *cobra.Command {
	var sender string
	cmd := &cobra.Command{
		Use:     "report",
		Aliases: []string{"parse"},
		Short:   "Print cached receipts grouped by month with totals",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config(sender)
			if err != nil {
				return err
			}
			reports, err := a.reportService(cfg, nil)
			if err != nil {
				return err
			}
			groups, err := reports.Groups(cmd.Context(), cfg.Sender)
			if err != nil {
				return err
			}
			return render.Text(cmd.OutOrStdout(), groups)
		},
	}
	cmd.Flags().StringVar(&sender, "sender", "", "report on one sender's cached list")
	return cmd
}

func newChartCmd(a *app) *cobra.Command {
	var (
		sender string
		output string
	)
	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Write a standalone HTML chart of monthly totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config(sender)
			if err != nil {
				return err
			}
			if output == "" {
				output = cfg.ChartFile
			}
			reports, err := a.reportService(cfg, nil)
			if err != nil {
				return err
			}
			groups, err := reports.Groups(cmd.Context(), cfg.Sender)
			if err != nil {
				return err
			}
			pages, err := render.NewPages()
			if err != nil {
				return err
			}
			if err := writeChartFile(pages, output, render.Chart(groups)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Chart written to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&sender, "sender", "", "chart one sender's cached list")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default from KVITTO_CHART_FILE)")
	return cmd
}

// writeChartFile renders into a temp file next to path and renames it, so an
// open browser tab never reloads a half-written page.
func writeChartFile(pages *render.Pages, path string, data render.ChartData) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".chart-*.html")
	if err != nil {
		return fmt.Errorf("create chart file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := pages.ChartPage(tmp, render.FileChart, data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write chart file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
