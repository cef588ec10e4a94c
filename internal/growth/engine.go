// Package growth adds one monomer to a batch of seed structures.
//
// For every seed the engine generates trial orientations, relaxes them in a bounded
// retry loop, and pools the converged structures. The pool is then reduced to a few
// representatives that are re-optimised with a stricter threshold. Only structures that
// pass that final pass are returned.
package growth

import (
	"context"
	"fmt"

	"github.com/dyluth/accrete/internal/molecule"
	"github.com/dyluth/accrete/internal/ops"
	"github.com/dyluth/accrete/internal/workdir"
	"github.com/rs/zerolog"
)

const (
	// MaxRounds bounds the retry loop. Candidates still pending afterwards are dropped.
	MaxRounds = 10

	// MaxCycles is the optimiser cycle budget per attempt.
	MaxCycles = 100

	// SelectedDir holds the final pass and the retained geometries of a step.
	SelectedDir = "selected"

	// SeedFile and MonomerFile are written into every seed directory before the
	// orienter runs there.
	SeedFile    = "seed.xyz"
	MonomerFile = "monomer.xyz"
)

// Engine runs growth steps against external collaborators.
type Engine struct {
	optimiser    Optimiser
	orienter     Orienter
	clusterer    Clusterer
	stop         StopSignal
	params       map[string]any
	maximumSeeds int
	metrics      *ops.Metrics
	log          zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithStopSignal sets the cooperative stop predicate. Defaults to SentinelStop.
func WithStopSignal(s StopSignal) Option {
	return func(e *Engine) { e.stop = s }
}

// WithParams sets the opaque quantum-chemistry parameters passed to the optimiser.
func WithParams(p map[string]any) Option {
	return func(e *Engine) { e.params = p }
}

// WithMaximumSeeds caps the structures kept per step. Defaults to 8.
func WithMaximumSeeds(n int) Option {
	return func(e *Engine) { e.maximumSeeds = n }
}

// WithMetrics records optimiser outcomes and step sizes.
func WithMetrics(m *ops.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine creates an engine.
func NewEngine(optimiser Optimiser, orienter Orienter, clusterer Clusterer, opts ...Option) *Engine {
	e := &Engine{
		optimiser:    optimiser,
		orienter:     orienter,
		clusterer:    clusterer,
		stop:         SentinelStop,
		maximumSeeds: 8,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With().Str("component", "growth").Logger()
	return e
}

// StopRequested polls the stop predicate and the context for dir.
func (e *Engine) StopRequested(ctx context.Context, dir workdir.Dir) bool {
	if ctx.Err() != nil || e.stop.Requested(dir) {
		e.metrics.RecordStop()
		return true
	}
	return false
}

func (e *Engine) interrupted(ctx context.Context) bool {
	if ctx.Err() != nil {
		e.metrics.RecordStop()
		return true
	}
	return false
}

// AddOne adds monomer to every seed and returns the curated successors, at most
// the engine's maximum seed count. dir is the step directory; one seed_NNN directory is
// created per processed seed plus selected/ for the final pass.
//
// ErrStopped is returned when a stop is observed before the step starts or before
// any seed; seeds after that point are not touched. It is also returned when ctx is
// cancelled while the step runs, since the outcome of the interrupted optimisations is
// unknown.
func (e *Engine) AddOne(ctx context.Context, dir workdir.Dir, aggregateID string, seeds []*molecule.Molecule, monomer *molecule.Molecule, orientations int) ([]*molecule.Molecule, error) {
	log := e.log.With().Str("aid", aggregateID).Logger()

	if e.StopRequested(ctx, dir) {
		log.Info().Str("dir", dir.Path()).Msg("stop signal found before growth step")
		return nil, ErrStopped
	}
	log.Info().Int("seeds", len(seeds)).Int("orientations", orientations).Msg("adding monomer")

	var pool []*molecule.Molecule
	for i, seed := range seeds {
		if e.StopRequested(ctx, dir) {
			log.Info().Int("seed", i).Msg("stop signal found, abandoning remaining seeds")
			return nil, ErrStopped
		}

		converged, err := e.growSeed(ctx, dir, aggregateID, i, seed, monomer, orientations)
		if err != nil {
			log.Warn().Err(err).Int("seed", i).Msg("seed skipped")
			continue
		}
		pool = append(pool, converged...)
	}

	// A cancelled context fails every pending optimisation, so an empty or partial
	// pool is not a result.
	if e.interrupted(ctx) {
		log.Info().Msg("context cancelled during growth step")
		return nil, ErrStopped
	}

	if len(pool) < 2 {
		e.metrics.RecordStep(len(pool))
		return pool, nil
	}

	log.Info().Int("candidates", len(pool)).Int("maximum", e.maximumSeeds).Msg("clustering")
	selected := e.choose(ctx, dir, pool)

	selectedDir, err := dir.Sub(SelectedDir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare final pass: %w", err)
	}

	kept := make([]*molecule.Molecule, 0, len(selected))
	for _, m := range selected {
		out := e.optimise(ctx, selectedDir, m, Normal)
		if out.Status != Converged {
			log.Debug().Str("name", m.Name).Stringer("status", out.Status).Msg("dropped in final pass")
			continue
		}
		final := out.Geometry
		if final == nil {
			final = m
		}
		if err := persist(selectedDir, final, out.ResultPath); err != nil {
			log.Warn().Err(err).Str("name", final.Name).Msg("failed to persist final geometry")
			continue
		}
		kept = append(kept, final)
	}

	if e.interrupted(ctx) {
		log.Info().Msg("context cancelled during final pass")
		return nil, ErrStopped
	}

	log.Info().Int("kept", len(kept)).Msg("growth step finished")
	e.metrics.RecordStep(len(kept))
	return kept, nil
}

// growSeed generates orientations for one seed and runs the retry loop over them.
func (e *Engine) growSeed(ctx context.Context, dir workdir.Dir, aggregateID string, index int, seed, monomer *molecule.Molecule, orientations int) ([]*molecule.Molecule, error) {
	seedID := fmt.Sprintf("%03d", index)
	seedDir, err := dir.Sub("seed_" + seedID)
	if err != nil {
		return nil, err
	}
	if err := molecule.WriteFile(seedDir.Join(SeedFile), seed); err != nil {
		return nil, err
	}
	if err := molecule.WriteFile(seedDir.Join(MonomerFile), monomer); err != nil {
		return nil, err
	}

	e.log.Info().Str("aid", aggregateID).Int("seed", index).Msg("making orientations")
	candidates, err := e.orienter.Orientations(ctx, seedDir, seedID+"_"+aggregateID, seed, monomer, orientations)
	if err != nil {
		return nil, fmt.Errorf("failed to generate orientations: %w", err)
	}

	return e.converge(ctx, seedDir, candidates), nil
}

// converge runs at most MaxRounds rounds of loose optimisation. Converged candidates
// leave the pool, cycle-exceeded ones are deduplicated and retried, failures are
// dropped.
func (e *Engine) converge(ctx context.Context, dir workdir.Dir, candidates []*molecule.Molecule) []*molecule.Molecule {
	var accepted []*molecule.Molecule
	pending := candidates

	for round := 1; round <= MaxRounds; round++ {
		e.log.Info().Int("round", round).Int("molecules", len(pending)).Msg("block optimisation")
		if len(pending) == 0 {
			e.log.Debug().Msg("no candidates left")
			break
		}

		var retry []*molecule.Molecule
		for _, m := range pending {
			out := e.optimise(ctx, dir, m, Loose)
			switch out.Status {
			case Converged:
				if out.Geometry != nil {
					m = out.Geometry
				}
				accepted = append(accepted, m)
			case CycleExceeded:
				if out.Geometry != nil {
					m = out.Geometry
				}
				retry = append(retry, m)
			}
		}
		pending = e.removeSimilar(ctx, dir, retry)
	}

	if len(pending) > 0 {
		e.log.Debug().Int("dropped", len(pending)).Msg("retry limit reached")
	}
	return accepted
}

// optimise calls the optimiser, treating any error as a failed attempt.
func (e *Engine) optimise(ctx context.Context, dir workdir.Dir, m *molecule.Molecule, c Convergence) Outcome {
	out, err := e.optimiser.Optimise(ctx, dir, m, Request{
		MaxCycles:   MaxCycles,
		Convergence: c,
		Params:      e.params,
	})
	if err != nil {
		e.log.Warn().Err(err).Str("name", m.Name).Msg("optimisation error")
		out = Outcome{Status: Failed}
	}
	e.metrics.RecordOptimisation(string(c), out.Status.String())
	return out
}

func (e *Engine) removeSimilar(ctx context.Context, dir workdir.Dir, candidates []*molecule.Molecule) []*molecule.Molecule {
	if len(candidates) < 2 {
		return candidates
	}
	unique, err := e.clusterer.RemoveSimilar(ctx, dir, candidates)
	if err != nil {
		e.log.Warn().Err(err).Msg("similarity pruning failed, keeping pool")
		return candidates
	}
	return unique
}

// choose selects representatives, never more than the maximum seed count.
func (e *Engine) choose(ctx context.Context, dir workdir.Dir, pool []*molecule.Molecule) []*molecule.Molecule {
	selected, err := e.clusterer.ChooseGeometries(ctx, dir, pool, e.maximumSeeds)
	if err != nil {
		e.log.Warn().Err(err).Msg("clustering failed, taking leading candidates")
		selected = pool
	}
	if len(selected) > e.maximumSeeds {
		selected = selected[:e.maximumSeeds]
	}
	return selected
}

// persist stores a retained geometry as result_<name>.xyz in dir.
func persist(dir workdir.Dir, m *molecule.Molecule, resultPath string) error {
	name := "result_" + m.Name + ".xyz"
	if resultPath != "" {
		return dir.CopyFile(resultPath, name)
	}
	return molecule.WriteFile(dir.Join(name), m)
}
