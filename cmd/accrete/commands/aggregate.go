package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dyluth/accrete/internal/growth"
	"github.com/dyluth/accrete/internal/molecule"
	"github.com/dyluth/accrete/internal/orchestrator"
	"github.com/dyluth/accrete/internal/printer"
	"github.com/dyluth/accrete/internal/workdir"
	"github.com/spf13/cobra"
)

var (
	aggregateSizes string
	aggregateFirst int
	aggregateCount int
	aggregateFlags runFlags
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate <monomer.xyz>...",
	Short: "Grow mixed-composition aggregates over every addition pathway",
	Long: `Grow an aggregate containing several species.

Each monomer file is one species, tagged a, b, c, ... in the order given, and
--sizes says how many units of each the final aggregate holds. Every distinct
order of adding those units is a pathway; pathways are numbered from 0 and
grown one after another under ./aggregates.

Use --first and --count to resume an interrupted run or to split the pathways
across several machines. 'accrete pathways' previews the numbering.

Examples:
  # Two waters and one methane, all pathways
  accrete aggregate water.xyz methane.xyz --sizes 2,1

  # Pathways 10-19 only, with a fixed orientation count
  accrete aggregate water.xyz methane.xyz --sizes 3,3 --first 10 --count 10 --orientations 16`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAggregate,
}

func init() {
	aggregateCmd.Flags().StringVarP(&aggregateSizes, "sizes", "s", "", "Units per species, comma separated (required)")
	aggregateCmd.Flags().IntVar(&aggregateFirst, "first", 0, "First pathway index (overrides run.first_pathway)")
	aggregateCmd.Flags().IntVar(&aggregateCount, "count", 0, "Number of pathways, 0 for all remaining (overrides run.number_of_pathways)")
	aggregateFlags.register(aggregateCmd)
	aggregateCmd.MarkFlagRequired("sizes")
	rootCmd.AddCommand(aggregateCmd)
}

func runAggregate(cmd *cobra.Command, args []string) error {
	sizes, err := parseSizes(aggregateSizes)
	if err != nil {
		return printer.Error("invalid --sizes", err.Error(), []string{"Give one count per monomer file, e.g. --sizes 2,1"})
	}
	if len(sizes) != len(args) {
		return printer.Error(
			"sizes do not match monomers",
			fmt.Sprintf("%d monomer files but %d sizes.", len(args), len(sizes)),
			[]string{"Give one count per monomer file, in the same order"},
		)
	}
	if len(args) > len(orchestrator.Tags) {
		return printer.Error("too many species", fmt.Sprintf("At most %d species are supported.", len(orchestrator.Tags)), nil)
	}

	components := make([]orchestrator.Component, len(args))
	for i, path := range args {
		m, err := molecule.ReadFile(path)
		if err != nil {
			return printer.Error("failed to read monomer", err.Error(), nil)
		}
		components[i] = orchestrator.Component{Monomer: m, Count: sizes[i]}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := aggregateFlags.apply(cmd, cfg); err != nil {
		return printer.Error("invalid flag", err.Error(), nil)
	}
	if cmd.Flags().Changed("first") {
		cfg.Run.FirstPathway = aggregateFirst
	}
	if cmd.Flags().Changed("count") {
		cfg.Run.NumberOfPathways = aggregateCount
	}
	if cfg.Run.FirstPathway < 0 || cfg.Run.NumberOfPathways < 0 {
		return printer.Error("invalid pathway window", "--first and --count must be >= 0.", nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	dir, err := workdir.Open(cfg.Run.OutputDir)
	if err != nil {
		return printer.Error("invalid run directory", err.Error(), nil)
	}

	printer.Step("Growing %s in %s\n", aggregateSizes, dir)
	summary, err := s.orchestrator().Aggregate(ctx, dir, components)
	if errors.Is(err, growth.ErrStopped) {
		printer.Warning("Run stopped after %d pathways (%d steps)\n", summary.Pathways, summary.Steps)
		printer.Info("Remove the stop file and resume with:\n  %s\n", resumeCommand(aggregateSizes, cfg.Run.FirstPathway, cfg.Run.NumberOfPathways, summary.Pathways))
		return nil
	}
	if err != nil {
		return printer.ErrorWithContext("aggregation failed", err.Error(), map[string]string{"Run": cfg.Run.Name, "Directory": dir.Path()}, nil)
	}

	printer.Success("Aggregation finished\n")
	printer.KeyValues("Summary", [][2]string{
		{"run", cfg.Run.Name},
		{"pathways", strconv.Itoa(summary.Pathways)},
		{"steps", strconv.Itoa(summary.Steps)},
		{"results", dir.Join(orchestrator.AggregatesDir)},
	})
	return nil
}

// resumeCommand rebuilds the invocation that continues a stopped window. The
// interrupted pathway is the first one re-run; a bounded window keeps its end.
func resumeCommand(sizes string, first, count, done int) string {
	cmd := fmt.Sprintf("accrete aggregate ... --sizes %s --first %d", sizes, first+done)
	if count > 0 {
		cmd += fmt.Sprintf(" --count %d", count-done)
	}
	return cmd
}
