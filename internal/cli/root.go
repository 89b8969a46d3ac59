package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"kvitto/internal/backend"
	"kvitto/internal/cache"
	"kvitto/internal/config"
	"kvitto/internal/core"
	applog "kvitto/internal/log"
	"kvitto/internal/services"
	"kvitto/internal/source"
)

const availableActions = "Available actions: fetch, parse, serve, chart"

// app carries the state shared by every verb.
type app struct {
	verbose bool
	logger  *applog.Logger
}

// NewRootCmd builds the kvitto command tree. With no verb, or a verb it does
// not know, it prints the available actions and exits successfully.
func NewRootCmd() *cobra.Command {
	a := &app{logger: applog.Discard()}

	root := &cobra.Command{
		Use:           "kvitto [action]",
		Short:         "Fetch, cache and summarize purchase receipts",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			a.logger = SetupLogger(cmd.ErrOrStderr(), a.verbose)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) > 0 {
				fmt.Fprintf(out, "Unknown action %q\n", args[0])
			}
			fmt.Fprintln(out, availableActions)
			fmt.Fprint(out, cmd.UsageString())
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newFetchCmd(a),
		newReportCmd(a),
		newServeCmd(a),
		newChartCmd(a),
		newExportCmd(a),
		newWorkerCmd(a),
		newHistoryCmd(a),
	)
	return root
}

func (a *app) config(sender string) (*config.Config, error) {
	cfg, err := LoadAndValidateConfig()
	if err != nil {
		return nil, err
	}
	if sender != "" {
		cfg.Sender = sender
	}
	return cfg, nil
}

func (a *app) openStore(cfg *config.Config) (*cache.FileStore, error) {
	return cache.NewFileStore(cfg.CacheRoot)
}

func (a *app) reportService(cfg *config.Config, groups cache.Cache[[]core.Group]) (*services.ReportService, error) {
	store, err := a.openStore(cfg)
	if err != nil {
		return nil, err
	}
	return services.NewReportService(store, groups, a.logger), nil
}

func (a *app) newSource(cmd *cobra.Command, cfg *config.Config) (source.Source, error) {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(a.logger).CreateSource(cmd.Context(), bc)
	if err != nil {
		return nil, err
	}
	return res.Source, nil
}
