package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/accrete/internal/config"
	"github.com/dyluth/accrete/internal/filter"
	"github.com/dyluth/accrete/internal/printer"
	"github.com/dyluth/accrete/internal/watch"
	"github.com/dyluth/accrete/pkg/events"
	"github.com/spf13/cobra"
)

var (
	watchRun          string
	watchRedisURL     string
	watchOutputFormat string
	watchExit         bool
	watchKind         string
	watchAggregate    string
	watchPathways     []int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the progress events of a run",
	Long: `Stream growth events published by a running 'accrete aggregate' or
'accrete solvate' that has events.redis_url configured.

The run name and Redis URL are read from the configuration file when present;
flags override them. Events are not stored, so only events published while
watching are shown.

Filters (all must match):
  --kind       Glob on the event kind, e.g. "step_*"
  --aggregate  Glob on the aggregate id, e.g. "ag_a_b_*"
  --pathway    Pathway indices, repeatable or comma separated

Output Formats:
  default - Human-readable output with timestamps and emojis
  jsonl   - Line-delimited JSON for programmatic processing

Examples:
  accrete watch --run water-cluster
  accrete watch --redis redis://localhost:6379/0 --run water-cluster --output jsonl > events.jsonl
  accrete watch --kind 'step_*' --pathway 3,4 --exit`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchRun, "run", "r", "", "Run name (defaults to run.name from the config)")
	watchCmd.Flags().StringVar(&watchRedisURL, "redis", "", "Redis URL (defaults to events.redis_url from the config)")
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or jsonl)")
	watchCmd.Flags().BoolVar(&watchExit, "exit", false, "Exit when the run completes or stops")
	watchCmd.Flags().StringVar(&watchKind, "kind", "", "Only show events whose kind matches this glob")
	watchCmd.Flags().StringVar(&watchAggregate, "aggregate", "", "Only show events whose aggregate id matches this glob")
	watchCmd.Flags().IntSliceVar(&watchPathways, "pathway", nil, "Only show events for these pathway indices")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	format, err := watch.ParseOutputFormat(watchOutputFormat)
	if err != nil {
		return printer.Error("invalid output format", err.Error(), []string{"Valid formats: default, jsonl"})
	}

	criteria := filter.Criteria{KindGlob: watchKind, AggregateGlob: watchAggregate, Pathways: watchPathways}
	if err := criteria.Validate(); err != nil {
		return printer.Error("invalid filter", err.Error(), []string{"Use shell-style globs such as --kind 'step_*'"})
	}

	run, url := watchRun, watchRedisURL
	if run == "" || url == "" {
		// The config only fills gaps; a missing file is fine when flags say it all.
		if cfg, err := config.Load(configPath); err == nil {
			if run == "" {
				run = cfg.Run.Name
			}
			if url == "" {
				url = cfg.Events.RedisURL
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return printer.ErrorWithContext("failed to load configuration", err.Error(), map[string]string{"Config": configPath}, nil)
		}
	}
	if url == "" {
		return printer.Error("no event bus configured", "Neither --redis nor events.redis_url is set.", []string{"accrete watch --redis redis://localhost:6379/0 --run <name>"})
	}
	if run == "" {
		return printer.Error("no run name", "Neither --run nor run.name is set.", []string{"accrete watch --run <name>"})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := events.NewClientFromURL(url, run)
	if err != nil {
		return printer.Error("invalid redis url", err.Error(), nil)
	}
	defer client.Close()

	if err := client.Ping(ctx); err != nil {
		return printer.ErrorWithContext("event bus unreachable", err.Error(), map[string]string{"Redis": url}, nil)
	}

	sub, err := client.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Close()

	if format == watch.OutputFormatDefault {
		printer.Step("Watching run '%s'\n", run)
	}
	return watch.Stream(ctx, sub, cmd.OutOrStdout(), watch.Options{Format: format, Filter: criteria, Exit: watchExit})
}
