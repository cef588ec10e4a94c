package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/dyluth/accrete/internal/growth"
	"github.com/dyluth/accrete/internal/molecule"
	"github.com/dyluth/accrete/internal/printer"
	"github.com/dyluth/accrete/internal/workdir"
	"github.com/spf13/cobra"
)

var (
	solvateSeeds   []string
	solvateMonomer string
	solvateSize    int
	solvateFlags   runFlags
)

var solvateCmd = &cobra.Command{
	Use:   "solvate",
	Short: "Add the same monomer to seed structures repeatedly",
	Long: `Grow seed structures by adding one monomer at a time, --size times.

Step n runs in aggregate_NNN (starting at aggregate_002) inside the run
directory. The run ends early if a step keeps no structures.

Examples:
  # Solvate a solute with five waters
  accrete solvate --seed solute.xyz --monomer water.xyz --size 5

  # Several starting structures
  accrete solvate --seed conf1.xyz --seed conf2.xyz --monomer water.xyz --size 3`,
	RunE: runSolvate,
}

func init() {
	solvateCmd.Flags().StringArrayVar(&solvateSeeds, "seed", nil, "Seed structure file (repeatable, required)")
	solvateCmd.Flags().StringVarP(&solvateMonomer, "monomer", "m", "", "Monomer structure file (required)")
	solvateCmd.Flags().IntVarP(&solvateSize, "size", "n", 0, "Number of monomers to add (required)")
	solvateFlags.register(solvateCmd)
	solvateCmd.MarkFlagRequired("seed")
	solvateCmd.MarkFlagRequired("monomer")
	solvateCmd.MarkFlagRequired("size")
	rootCmd.AddCommand(solvateCmd)
}

func runSolvate(cmd *cobra.Command, args []string) error {
	if solvateSize < 1 {
		return printer.Error("invalid --size", "--size must be >= 1.", nil)
	}

	seeds := make([]*molecule.Molecule, 0, len(solvateSeeds))
	for _, path := range solvateSeeds {
		m, err := molecule.ReadFile(path)
		if err != nil {
			return printer.Error("failed to read seed", err.Error(), nil)
		}
		seeds = append(seeds, m)
	}
	monomer, err := molecule.ReadFile(solvateMonomer)
	if err != nil {
		return printer.Error("failed to read monomer", err.Error(), nil)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := solvateFlags.apply(cmd, cfg); err != nil {
		return printer.Error("invalid flag", err.Error(), nil)
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

	printer.Step("Adding %d x %s to %d seeds in %s\n", solvateSize, monomer.Name, len(seeds), dir)
	final, err := s.orchestrator().Solvate(ctx, dir, seeds, monomer, solvateSize)
	if errors.Is(err, growth.ErrStopped) {
		printer.Warning("Run stopped, partial results are in %s\n", dir)
		return nil
	}
	if err != nil {
		return printer.ErrorWithContext("solvation failed", err.Error(), map[string]string{"Run": cfg.Run.Name, "Directory": dir.Path()}, nil)
	}

	if len(final) == 0 {
		printer.Warning("No structures survived\n")
		return nil
	}
	names := make([]string, len(final))
	for i, m := range final {
		names[i] = m.Name
	}
	printer.Success("Solvation finished\n")
	printer.KeyValues("Summary", [][2]string{
		{"run", cfg.Run.Name},
		{"structures", strconv.Itoa(len(final))},
		{"names", strings.Join(names, ", ")},
	})
	return nil
}
