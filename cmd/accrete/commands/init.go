package commands

import (
	"errors"

	"github.com/dyluth/accrete/internal/printer"
	"github.com/dyluth/accrete/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	initForce bool
	initDir   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter accrete.yml and placeholder tool scripts",
	Long: `Initialize an accrete project in the current directory (or --dir).

Creates:
  - accrete.yml with defaults for every section
  - tools/optimise.sh, tools/orient.sh and tools/cluster.sh, placeholders that
    document the JSON request and response of each external program

Replace the placeholder scripts with wrappers around your quantum chemistry,
orientation and clustering programs before running 'accrete aggregate'.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing accrete.yml and tools/ directory")
	initCmd.Flags().StringVarP(&initDir, "dir", "d", ".", "Project directory")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := scaffold.Initialize(initDir, initForce); err != nil {
		var existing *scaffold.ExistingError
		if errors.As(err, &existing) {
			return printer.Error("project already initialized", existing.Error(), nil)
		}
		return printer.ErrorWithContext("initialization failed", err.Error(), map[string]string{"Directory": initDir}, nil)
	}

	printer.Success("Initialized accrete project\n")
	printer.Info("\nCreated:\n")
	for _, f := range scaffold.Files {
		printer.Info("  ✓ %s\n", f.Path)
	}
	printer.Info("\nNext steps:\n")
	printer.Info("  1. Replace the scripts under tools/ with your own programs\n")
	printer.Info("  2. Adjust qc: in accrete.yml for your optimiser\n")
	printer.Info("  3. Run 'accrete aggregate monomer.xyz --sizes 4'\n")
	return nil
}
