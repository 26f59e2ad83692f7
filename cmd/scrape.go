package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/tibia-housing-crawler/internal/pipeline"
)

// newScrapeCmd creates the 'scrape' subcommand.
func newScrapeCmd() *cobra.Command {
	var (
		servers     []string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrapes every world's houses and guildhalls",
		Long: `Discovers the worlds, fetches each world's listings town by town in bounded
batches, and persists them. Exhausted retries or a maintenance page end the
run with a non-zero exit code.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScrape(cmd.Context(), servers, metricsAddr)
		},
	}
	cmd.Flags().StringSliceVar(&servers, "server", nil, "only scrape the named worlds (repeatable)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics and health probes on this address (overrides metrics.addr)")
	return cmd
}

func runScrape(ctx context.Context, servers []string, metricsAddr string) error {
	appInstance, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	if metricsAddr == "" {
		metricsAddr = appInstance.Config().Metrics.Addr
	}
	opsCtx, stopOps := context.WithCancel(ctx)
	defer stopOps()
	if metricsAddr != "" {
		ops := appInstance.Ops()
		go func() {
			if err := ops.ListenAndServe(opsCtx, metricsAddr); err != nil {
				logger.Warn("ops endpoint stopped", zap.Error(err))
			}
		}()
	}

	logger.Info("starting scrape", zap.String("run_key", appInstance.RunKey()), zap.Strings("servers", servers))
	stats, err := appInstance.Scrape(ctx, servers)
	if err != nil {
		if pipeline.IsFatal(err) {
			logger.Error("fatal scrape error, aborting", zap.Error(err))
		}
		return err
	}
	logger.Info("scrape complete",
		zap.Int("servers", stats.Servers),
		zap.Int("houses", stats.Houses),
		zap.Int("guildhalls", stats.Guildhalls),
	)
	return nil
}
