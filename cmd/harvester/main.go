package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samvad-hq/samvad-article-pipeline/internal/app"
	"github.com/samvad-hq/samvad-article-pipeline/internal/config"
	"github.com/samvad-hq/samvad-article-pipeline/internal/logger"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "harvester failed: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Crawl every configured source on its schedule",
		Long: `Runs until interrupted. Each enabled source schedule triggers a crawl
cycle on a bounded worker pool; extracted articles and job, breaker and
queue events go to the configured publishers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd)
		},
	}
	config.BindFlags(cmd.Flags())
	return cmd
}

func run(cmd *cobra.Command) error {
	cfg, err := config.LoadFlags(cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("harvester starting", "config", map[string]any{
		"sources_file":     cfg.SourcesFile,
		"publishers_file":  cfg.PublishersFile,
		"storage_type":     cfg.StorageType,
		"workers":          cfg.WorkerCount,
		"page_concurrency": cfg.PageConcurrency,
		"timezone":         cfg.Timezone,
	})

	// SIGINT/SIGTERM cancel in-flight cycles; their partial results are discarded.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	harvester, err := app.NewHarvester(ctx, cfg, log)
	if err != nil {
		logger.ErrorObj("failed to initialize harvester", "error", err.Error())
		return err
	}
	if err := harvester.Run(ctx); err != nil {
		return fmt.Errorf("harvester run: %w", err)
	}
	logger.InfoObj("harvester stopped", "reason", "signal")
	return nil
}
