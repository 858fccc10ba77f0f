package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/samvad-hq/samvad-article-pipeline/internal/app"
	"github.com/samvad-hq/samvad-article-pipeline/internal/config"
	"github.com/samvad-hq/samvad-article-pipeline/internal/logger"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "collector failed: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var only []string

	cmd := &cobra.Command{
		Use:   "collector",
		Short: "Crawl configured sources once and exit",
		Long: `Runs one crawl cycle per source, honouring circuit breakers and content
hashes, then exits. The exit status is non-zero when any cycle failed as a
whole.

Example:
  collector --source daily --source metro --storage-type memory
  collector validate --sources-file ./configs/sources.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return collect(cmd, only)
		},
	}
	config.BindFlags(cmd.PersistentFlags())
	cmd.Flags().StringSliceVarP(&only, "source", "s", nil, "crawl only the named sources (repeatable)")
	cmd.AddCommand(newValidateCommand())
	return cmd
}

func collect(cmd *cobra.Command, only []string) error {
	cfg, err := config.LoadFlags(cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("collector starting", "config", map[string]any{
		"sources_file":    cfg.SourcesFile,
		"publishers_file": cfg.PublishersFile,
		"storage_type":    cfg.StorageType,
		"workers":         cfg.WorkerCount,
		"only":            only,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector, err := app.NewCollector(ctx, cfg, log)
	if err != nil {
		logger.ErrorObj("failed to initialize collector", "error", err.Error())
		return err
	}
	if err := collector.Only(only); err != nil {
		return err
	}

	report, err := collector.Run(ctx)
	logger.InfoObj("collector finished", "collector_report", map[string]any{
		"cycles":  len(report.Cycles),
		"skipped": report.Skipped,
		"failed":  len(report.Failed),
	})
	if err != nil {
		return fmt.Errorf("collector run: %w", err)
	}
	return nil
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the source and publisher files and print each source's next run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFlags(cmd.Flags())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			check, err := app.CheckConfig(cfg, time.Now())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SOURCE\tTYPE\tTRIGGER\tNEXT RUN")
			for _, p := range check.Sources {
				next := "disabled"
				if !p.Next.IsZero() {
					next = p.Next.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, p.Type, p.Trigger, next)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d sources, publishers: %v\n", len(check.Sources), check.Publishers)
			return nil
		},
	}
}
