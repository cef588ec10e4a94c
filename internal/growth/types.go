package growth

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyluth/accrete/internal/molecule"
	"github.com/dyluth/accrete/internal/workdir"
)

// ErrStopped is returned when a cooperative stop was observed before the work finished.
// It is distinct from a nil error with an empty result, which means growth produced
// no surviving candidates.
var ErrStopped = errors.New("growth stopped by stop signal")

// Status is the outcome of one optimisation attempt.
type Status int

const (
	// Failed means the optimiser gave up; the candidate is dropped.
	Failed Status = iota
	// Converged means the geometry met the convergence threshold.
	Converged
	// CycleExceeded means the cycle budget ran out; the candidate may be retried.
	CycleExceeded
)

// String returns the wire name used by optimiser tools.
func (s Status) String() string {
	switch s {
	case Converged:
		return "converged"
	case CycleExceeded:
		return "cycle_exceeded"
	default:
		return "failed"
	}
}

// ParseStatus maps a wire name to a Status. Unknown names are an error, never a guess.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "converged":
		return Converged, nil
	case "failed":
		return Failed, nil
	case "cycle_exceeded":
		return CycleExceeded, nil
	default:
		return Failed, fmt.Errorf("unknown optimisation status %q", s)
	}
}

// Convergence is the threshold requested from the optimiser.
type Convergence string

const (
	// Loose is used inside the retry loop.
	Loose Convergence = "loose"
	// Normal is used for the final pass over selected candidates.
	Normal Convergence = "normal"
)

// Request carries the per-call optimiser settings.
type Request struct {
	MaxCycles   int
	Convergence Convergence
	Params      map[string]any
}

// Outcome is the optimiser's answer. Geometry is the last geometry the optimiser
// produced and may be nil when the status is Failed. ResultPath, when set, names the
// optimiser's own result file for a converged run.
type Outcome struct {
	Status     Status
	Geometry   *molecule.Molecule
	ResultPath string
}

// Optimiser relaxes one structure inside dir.
type Optimiser interface {
	Optimise(ctx context.Context, dir workdir.Dir, mol *molecule.Molecule, req Request) (Outcome, error)
}

// Orienter produces count trial structures placing monomer around seed. Each result is
// named from idPrefix plus a disambiguating index. dir already holds SeedFile and
// MonomerFile for seed and monomer.
type Orienter interface {
	Orientations(ctx context.Context, dir workdir.Dir, idPrefix string, seed, monomer *molecule.Molecule, count int) ([]*molecule.Molecule, error)
}

// Clusterer prunes candidate pools by geometric similarity.
type Clusterer interface {
	// RemoveSimilar drops near-duplicates.
	RemoveSimilar(ctx context.Context, dir workdir.Dir, candidates []*molecule.Molecule) ([]*molecule.Molecule, error)
	// ChooseGeometries selects up to maximum representatives.
	ChooseGeometries(ctx context.Context, dir workdir.Dir, candidates []*molecule.Molecule, maximum int) ([]*molecule.Molecule, error)
}

// StopSignal reports whether a cooperative stop has been requested for the given
// directory context.
type StopSignal interface {
	Requested(dir workdir.Dir) bool
}

// StopFunc adapts a function to StopSignal.
type StopFunc func(dir workdir.Dir) bool

// Requested implements StopSignal.
func (f StopFunc) Requested(dir workdir.Dir) bool {
	return f(dir)
}

// SentinelStop polls for a stop file in the directory being worked in.
var SentinelStop StopSignal = StopFunc(func(dir workdir.Dir) bool { return dir.StopRequested() })

// NeverStop never requests a stop.
var NeverStop StopSignal = StopFunc(func(workdir.Dir) bool { return false })
