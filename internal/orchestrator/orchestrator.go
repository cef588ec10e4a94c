// Package orchestrator drives whole growth runs.
//
// Fixed-composition runs (Solvate) add the same monomer to a seed list one unit at a
// time. Mixed-composition runs (Aggregate) enumerate the distinct orders in which the
// requested units can be added and grow each order as its own pathway, keeping only
// the previous generation of seeds between steps.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyluth/accrete/internal/config"
	"github.com/dyluth/accrete/internal/growth"
	"github.com/dyluth/accrete/internal/molecule"
	"github.com/dyluth/accrete/internal/ops"
	"github.com/dyluth/accrete/internal/workdir"
	"github.com/dyluth/accrete/pkg/aggid"
	"github.com/dyluth/accrete/pkg/events"
	"github.com/dyluth/accrete/pkg/pathway"
	"github.com/rs/zerolog"
)

// AggregatesDir is created under the launch directory for mixed-composition runs.
const AggregatesDir = "aggregates"

// Tags are assigned to species in input order.
const Tags = "abcdefghijklmnopqrstuvwxyz"

// Grower performs one growth step. *growth.Engine implements it.
type Grower interface {
	AddOne(ctx context.Context, dir workdir.Dir, aggregateID string, seeds []*molecule.Molecule, monomer *molecule.Molecule, orientations int) ([]*molecule.Molecule, error)
	StopRequested(ctx context.Context, dir workdir.Dir) bool
}

// Publisher receives progress events. *events.Client implements it.
type Publisher interface {
	Publish(ctx context.Context, ev *events.Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, *events.Event) error { return nil }

// Component is one species of a mixed-composition run.
type Component struct {
	Monomer *molecule.Molecule
	Count   int
}

// Summary reports what a run got through.
type Summary struct {
	Pathways int  // Pathways walked to the end or until their seeds ran out
	Steps    int  // Growth steps completed
	Stopped  bool // A stop request ended the run early
}

// State is the position of a pathway walk.
type State int

const (
	// StateInit is a pathway that has not placed its first unit yet.
	StateInit State = iota

	// StateSeeded means the first unit is stored as the only seed.
	StateSeeded

	// StateGrowing means growth steps are adding the remaining units.
	StateGrowing

	// StateDone means every unit was added or the seeds ran out.
	StateDone

	// StateReset means seed storage was cleared for the next pathway.
	StateReset
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSeeded:
		return "seeded"
	case StateGrowing:
		return "growing"
	case StateDone:
		return "done"
	case StateReset:
		return "reset"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Orchestrator sequences growth steps.
type Orchestrator struct {
	grower       Grower
	publisher    Publisher
	orientations config.Orientations
	firstPathway int
	numPathways  int
	run          string
	metrics      *ops.Metrics
	log          zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithOrientations sets the orientation count or auto mode. Defaults to auto.
func WithOrientations(o config.Orientations) Option {
	return func(or *Orchestrator) { or.orientations = o }
}

// WithWindow selects pathways [first, first+n), or [first, end) when n is 0.
func WithWindow(first, n int) Option {
	return func(or *Orchestrator) {
		or.firstPathway = first
		or.numPathways = n
	}
}

// WithPublisher sends progress events to p.
func WithPublisher(p Publisher) Option {
	return func(or *Orchestrator) { or.publisher = p }
}

// WithRunName sets the run name stamped on events.
func WithRunName(name string) Option {
	return func(or *Orchestrator) { or.run = name }
}

// WithMetrics records pathway outcomes.
func WithMetrics(m *ops.Metrics) Option {
	return func(or *Orchestrator) { or.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(or *Orchestrator) { or.log = l }
}

// New creates an orchestrator around a growth engine.
func New(grower Grower, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		grower:       grower,
		publisher:    NopPublisher{},
		orientations: config.Auto(),
		run:          "local",
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.With().Str("component", "orchestrator").Str("run", o.run).Logger()
	return o
}

// Solvate grows seeds by size units of monomer. Step n (2..size+1) runs in
// aggregate_NNN under dir with aggregate id NNN. It stops early, without error, once a
// step leaves no seeds, and returns the last seed list.
func (o *Orchestrator) Solvate(ctx context.Context, dir workdir.Dir, seeds []*molecule.Molecule, monomer *molecule.Molecule, size int) ([]*molecule.Molecule, error) {
	if o.grower.StopRequested(ctx, dir) {
		o.log.Info().Str("dir", dir.Path()).Msg("stop signal found, solvation not started")
		o.emit(ctx, events.KindStopped, func(ev *events.Event) { ev.Pathway = -1 })
		return nil, growth.ErrStopped
	}

	schedule := NewSchedule(o.orientations)
	o.log.Info().Str("dir", dir.Path()).Int("size", size).Int("seeds", len(seeds)).Msg("starting solvation")

	steps := 0
	for counter := 2; counter < size+2; counter++ {
		if len(seeds) == 0 {
			o.log.Info().Int("step", counter).Msg("no seeds to process")
			break
		}

		aid := fmt.Sprintf("%03d", counter)
		stepDir, err := dir.Sub("aggregate_" + aid)
		if err != nil {
			return seeds, err
		}

		o.log.Info().Int("step", counter).Int("orientations", schedule.Current()).Msg("starting aggregation cycle")
		o.emit(ctx, events.KindStepStarted, func(ev *events.Event) {
			ev.AggregateID = aid
			ev.Pathway = -1
			ev.Step = counter
			ev.Orientations = schedule.Current()
			ev.Seeds = len(seeds)
		})

		grown, err := o.grower.AddOne(ctx, stepDir, aid, seeds, monomer, schedule.Current())
		err = interrupted(ctx, grown, err)
		if err != nil {
			if errors.Is(err, growth.ErrStopped) {
				o.emit(ctx, events.KindStopped, func(ev *events.Event) { ev.AggregateID = aid; ev.Pathway = -1; ev.Step = counter })
			}
			return nil, err
		}
		seeds = grown
		steps++

		o.log.Info().Int("step", counter).Int("seeds", len(seeds)).Msg("aggregation cycle completed")
		o.emit(ctx, events.KindStepCompleted, func(ev *events.Event) {
			ev.AggregateID = aid
			ev.Pathway = -1
			ev.Step = counter
			ev.Seeds = len(seeds)
		})
		schedule.Double()
	}

	o.emit(ctx, events.KindRunCompleted, func(ev *events.Event) {
		ev.Pathway = -1
		ev.Step = steps
		ev.Seeds = len(seeds)
	})
	return seeds, nil
}

// Aggregate grows every pathway in the configured window under dir/aggregates.
// Species are tagged a, b, c, ... in the order given; step directories are named
// <aggregate id>_<pathway index>.
func (o *Orchestrator) Aggregate(ctx context.Context, dir workdir.Dir, components []Component) (Summary, error) {
	var summary Summary
	if o.grower.StopRequested(ctx, dir) {
		o.log.Info().Str("dir", dir.Path()).Msg("stop signal found, aggregation not started")
		o.emit(ctx, events.KindStopped, nil)
		summary.Stopped = true
		return summary, growth.ErrStopped
	}

	species, err := tagComponents(components)
	if err != nil {
		return summary, err
	}
	enumerator, err := pathway.New(species, tagMolecule)
	if err != nil {
		return summary, err
	}
	pathways, err := enumerator.Window(o.firstPathway, o.numPathways)
	if err != nil {
		return summary, err
	}

	home, err := dir.Sub(AggregatesDir)
	if err != nil {
		return summary, err
	}
	o.log.Info().Str("dir", home.Path()).Int("pathways", len(pathways)).Int("first", o.firstPathway).Msg("starting aggregation")

	names := make([]string, len(species))
	for i, s := range species {
		names[i] = s.Name
	}
	initial := aggid.New(aggid.DefaultPrefix, names...)
	schedule := NewSchedule(o.orientations)
	storage := NewSeedStorage()

	for _, p := range pathways {
		steps, err := o.walk(ctx, home, storage, initial, p, schedule.Current())
		storage.Reset()
		summary.Steps += steps
		if err != nil {
			if errors.Is(err, growth.ErrStopped) {
				summary.Stopped = true
				o.metrics.RecordPathway("stopped")
				o.emit(ctx, events.KindStopped, func(ev *events.Event) { ev.Pathway = p.Index })
			}
			return summary, err
		}
		summary.Pathways++
		o.log.Debug().Int("pathway", p.Index).Stringer("state", StateReset).Msg("pathway state")
		schedule.Step()
	}

	o.log.Info().Int("pathways", summary.Pathways).Int("steps", summary.Steps).Msg("aggregation finished")
	o.emit(ctx, events.KindRunCompleted, func(ev *events.Event) {
		ev.Step = summary.Steps
		ev.Message = fmt.Sprintf("%d pathways", summary.Pathways)
	})
	return summary, nil
}

// walk grows one pathway. The first unit seeds storage; every later unit advances the
// aggregate id, grows the previous generation and retires it.
// interrupted turns an empty step into ErrStopped when ctx was cancelled, so a
// cancellation is never mistaken for an exhausted pathway.
func interrupted(ctx context.Context, grown []*molecule.Molecule, err error) error {
	if err == nil && len(grown) == 0 && ctx.Err() != nil {
		return growth.ErrStopped
	}
	return err
}

// walk grows one pathway. storage must be empty on entry.
func (o *Orchestrator) walk(ctx context.Context, home workdir.Dir, storage *SeedStorage, initial aggid.ID, p pathway.Pathway[*molecule.Molecule], orientations int) (int, error) {
	log := o.log.With().Int("pathway", p.Index).Logger()
	log.Info().Strs("sequence", p.Species()).Int("orientations", orientations).Stringer("state", StateInit).Msg("starting pathway")

	aid := initial
	steps := 0

	for _, unit := range p.Units {
		next, err := aid.Advance(unit.Species)
		if err != nil {
			return steps, err
		}

		if storage.Len() == 0 {
			storage.Push(next.String(), []*molecule.Molecule{unit.Item})
			aid = next
			log.Debug().Stringer("state", StateSeeded).Str("aid", aid.String()).Msg("pathway state")
			o.emit(ctx, events.KindPathwayStarted, func(ev *events.Event) {
				ev.AggregateID = aid.String()
				ev.Pathway = p.Index
				ev.Step = 1
				ev.Orientations = orientations
				ev.Seeds = 1
			})
			continue
		}

		seeds, ok := storage.Lookup(aid.String())
		if !ok {
			return steps, fmt.Errorf("no seeds stored for %s", aid)
		}
		aid = next
		log.Debug().Stringer("state", StateGrowing).Str("aid", aid.String()).Msg("pathway state")

		stepDir, err := home.Sub(fmt.Sprintf("%s_%03d", aid, p.Index))
		if err != nil {
			return steps, err
		}
		o.emit(ctx, events.KindStepStarted, func(ev *events.Event) {
			ev.AggregateID = aid.String()
			ev.Pathway = p.Index
			ev.Step = steps + 2
			ev.Orientations = orientations
			ev.Seeds = len(seeds)
		})

		grown, err := o.grower.AddOne(ctx, stepDir, aid.String(), seeds, unit.Item, orientations)
		err = interrupted(ctx, grown, err)
		if err != nil {
			return steps, err
		}
		storage.Push(aid.String(), grown)
		storage.PopOldest()
		steps++

		log.Info().Str("aid", aid.String()).Int("seeds", len(grown)).Msg("growth step completed")
		o.emit(ctx, events.KindStepCompleted, func(ev *events.Event) {
			ev.AggregateID = aid.String()
			ev.Pathway = p.Index
			ev.Step = steps + 1
			ev.Seeds = len(grown)
		})

		if len(grown) == 0 {
			log.Info().Str("aid", aid.String()).Msg("no seeds left, ending pathway")
			o.metrics.RecordPathway("exhausted")
			o.done(ctx, p.Index, aid.String(), 0)
			return steps, nil
		}
	}

	final := 0
	if g, ok := storage.Latest(); ok {
		final = len(g.Seeds)
	}
	o.metrics.RecordPathway("completed")
	o.done(ctx, p.Index, aid.String(), final)
	return steps, nil
}

func (o *Orchestrator) done(ctx context.Context, index int, aid string, seeds int) {
	o.log.Debug().Int("pathway", index).Stringer("state", StateDone).Msg("pathway state")
	o.emit(ctx, events.KindPathwayDone, func(ev *events.Event) {
		ev.AggregateID = aid
		ev.Pathway = index
		ev.Seeds = seeds
	})
}

// emit publishes a progress event. Publishing never fails a run.
func (o *Orchestrator) emit(ctx context.Context, kind events.Kind, fill func(*events.Event)) {
	ev := events.NewEvent(o.run, kind)
	if fill != nil {
		fill(ev)
	}
	// Cancellation must not swallow the final stopped event.
	if err := o.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		o.log.Warn().Err(err).Str("kind", string(kind)).Msg("failed to publish growth event")
	}
}

func tagComponents(components []Component) ([]pathway.Species[*molecule.Molecule], error) {
	if len(components) > len(Tags) {
		return nil, fmt.Errorf("at most %d species are supported, got %d", len(Tags), len(components))
	}
	species := make([]pathway.Species[*molecule.Molecule], len(components))
	for i, c := range components {
		if c.Monomer == nil {
			return nil, fmt.Errorf("species %c has no structure", Tags[i])
		}
		species[i] = pathway.Species[*molecule.Molecule]{
			Name:  string(Tags[i]),
			Item:  c.Monomer,
			Count: c.Count,
		}
	}
	return species, nil
}

func tagMolecule(m *molecule.Molecule, name string) *molecule.Molecule {
	return m.Renamed(name)
}
