package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/dyluth/accrete/internal/orchestrator"
	"github.com/dyluth/accrete/internal/printer"
	"github.com/dyluth/accrete/pkg/pathway"
	"github.com/spf13/cobra"
)

// maxListed bounds an unwindowed --list.
const maxListed = 10000

var (
	pathwaysSizes string
	pathwaysFirst int
	pathwaysCount int
	pathwaysList  bool
)

var pathwaysCmd = &cobra.Command{
	Use:   "pathways",
	Short: "Count and list the addition pathways for a composition",
	Long: `Show how many distinct addition orders a composition has, and optionally list
them with their indices. Species are tagged a, b, c, ... in --sizes order.

Use the indices to plan --first / --count windows for 'accrete aggregate'.

Examples:
  accrete pathways --sizes 2,2
  accrete pathways --sizes 3,2,1 --list --first 20 --count 10`,
	RunE: runPathways,
}

func init() {
	pathwaysCmd.Flags().StringVarP(&pathwaysSizes, "sizes", "s", "", "Units per species, comma separated (required)")
	pathwaysCmd.Flags().IntVar(&pathwaysFirst, "first", 0, "First pathway index to list")
	pathwaysCmd.Flags().IntVar(&pathwaysCount, "count", 0, "Number of pathways to list, 0 for all remaining")
	pathwaysCmd.Flags().BoolVarP(&pathwaysList, "list", "l", false, "List the pathways in the window")
	pathwaysCmd.MarkFlagRequired("sizes")
	rootCmd.AddCommand(pathwaysCmd)
}

func runPathways(cmd *cobra.Command, args []string) error {
	sizes, err := parseSizes(pathwaysSizes)
	if err != nil {
		return printer.Error("invalid --sizes", err.Error(), []string{"Give one count per species, e.g. --sizes 2,1"})
	}
	enumerator, err := tagEnumerator(sizes)
	if err != nil {
		return printer.Error("invalid composition", err.Error(), nil)
	}

	total, err := enumerator.Count()
	if errors.Is(err, pathway.ErrTooManyPathways) {
		return printer.Error("too many pathways", "The composition has more pathways than fit in 64 bits.", []string{"Reduce the number of units"})
	}
	if err != nil {
		return err
	}

	units := len(enumerator.Units())
	printer.Info("%s units, %s pathways\n", humanize.Comma(int64(units)), humanize.Comma(int64(total)))
	if !pathwaysList {
		return nil
	}

	if pathwaysCount == 0 && total-min(total, uint64(max(pathwaysFirst, 0))) > maxListed {
		return printer.Error(
			"window too large",
			fmt.Sprintf("Listing every pathway would print more than %s lines.", humanize.Comma(maxListed)),
			[]string{"Pick a window:\n  accrete pathways --sizes " + pathwaysSizes + " --list --first 0 --count 100"},
		)
	}

	window, err := enumerator.Window(pathwaysFirst, pathwaysCount)
	if err != nil {
		return printer.Error("invalid window", err.Error(), nil)
	}
	return writePathways(cmd.OutOrStdout(), window)
}

func tagEnumerator(sizes []int) (*pathway.Enumerator[string], error) {
	if len(sizes) > len(orchestrator.Tags) {
		return nil, fmt.Errorf("at most %d species are supported", len(orchestrator.Tags))
	}
	species := make([]pathway.Species[string], len(sizes))
	for i, n := range sizes {
		tag := string(orchestrator.Tags[i])
		species[i] = pathway.Species[string]{Name: tag, Item: tag, Count: n}
	}
	return pathway.New(species, func(item, _ string) string { return item })
}

func writePathways(w io.Writer, window []pathway.Pathway[string]) error {
	width := 1
	if len(window) > 0 {
		width = len(fmt.Sprint(window[len(window)-1].Index))
	}
	for _, p := range window {
		if _, err := fmt.Fprintf(w, "%*d  %s\n", width, p.Index, strings.Join(p.Species(), "")); err != nil {
			return err
		}
	}
	return nil
}
