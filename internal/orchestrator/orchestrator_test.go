package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dyluth/accrete/internal/config"
	"github.com/dyluth/accrete/internal/growth"
	"github.com/dyluth/accrete/internal/molecule"
	"github.com/dyluth/accrete/internal/workdir"
	"github.com/dyluth/accrete/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	dir          string
	aid          string
	seeds        []string
	monomer      string
	orientations int
}

type fakeGrower struct {
	calls []call
	grow  func(aid string, seeds []*molecule.Molecule) ([]*molecule.Molecule, error)
	stop  func() bool
}

func (f *fakeGrower) AddOne(_ context.Context, dir workdir.Dir, aid string, seeds []*molecule.Molecule, monomer *molecule.Molecule, orientations int) ([]*molecule.Molecule, error) {
	f.calls = append(f.calls, call{
		dir:          filepath.Base(dir.Path()),
		aid:          aid,
		seeds:        names(seeds),
		monomer:      monomer.Name,
		orientations: orientations,
	})
	if f.grow != nil {
		return f.grow(aid, seeds)
	}
	return []*molecule.Molecule{{Name: "grown_" + aid}}, nil
}

func (f *fakeGrower) StopRequested(ctx context.Context, _ workdir.Dir) bool {
	if ctx.Err() != nil {
		return true
	}
	return f.stop != nil && f.stop()
}

type recorder struct {
	mu     sync.Mutex
	events []*events.Event
	err    error
}

func (r *recorder) Publish(_ context.Context, ev *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func names(ms []*molecule.Molecule) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Name
	}
	return out
}

func openDir(t *testing.T) workdir.Dir {
	t.Helper()
	d, err := workdir.Open(t.TempDir())
	require.NoError(t, err)
	return d
}

func monomer(name string) *molecule.Molecule {
	return &molecule.Molecule{Name: name, Atoms: []molecule.Atom{{Symbol: "O"}}}
}

func TestAggregate_SingleSpeciesTwoUnits(t *testing.T) {
	dir := openDir(t)
	g := &fakeGrower{}
	rec := &recorder{}
	o := New(g, WithPublisher(rec), WithRunName("unit"))

	summary, err := o.Aggregate(context.Background(), dir, []Component{{Monomer: monomer("water"), Count: 2}})
	require.NoError(t, err)
	assert.Equal(t, Summary{Pathways: 1, Steps: 1}, summary)

	require.Len(t, g.calls, 1)
	assert.Equal(t, call{
		dir:          "ag_a_002_000",
		aid:          "ag_a_002",
		seeds:        []string{"a"},
		monomer:      "a",
		orientations: AutoOrientations,
	}, g.calls[0])
	assert.DirExists(t, dir.Join(AggregatesDir, "ag_a_002_000"))

	assert.Equal(t, []events.Kind{
		events.KindPathwayStarted,
		events.KindStepStarted,
		events.KindStepCompleted,
		events.KindPathwayDone,
		events.KindRunCompleted,
	}, rec.kinds())
	assert.Equal(t, "ag_a_001", rec.events[0].AggregateID)
	assert.Equal(t, "ag_a_002", rec.events[2].AggregateID)
	assert.Equal(t, 1, rec.events[3].Seeds)
	for _, ev := range rec.events {
		assert.Equal(t, "unit", ev.RunID)
		assert.NoError(t, ev.Validate())
	}
}

func TestAggregate_TwoSpeciesPathways(t *testing.T) {
	dir := openDir(t)
	g := &fakeGrower{}
	o := New(g)

	summary, err := o.Aggregate(context.Background(), dir, []Component{
		{Monomer: monomer("water"), Count: 1},
		{Monomer: monomer("methane"), Count: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Pathways)
	assert.Equal(t, 2, summary.Steps)

	require.Len(t, g.calls, 2)
	// Pathway 0 is a then b, pathway 1 is b then a.
	assert.Equal(t, "ag_a_001_b_001_000", g.calls[0].dir)
	assert.Equal(t, []string{"a"}, g.calls[0].seeds)
	assert.Equal(t, "b", g.calls[0].monomer)
	assert.Equal(t, "ag_a_001_b_001_001", g.calls[1].dir)
	assert.Equal(t, []string{"b"}, g.calls[1].seeds)
	assert.Equal(t, "a", g.calls[1].monomer)

	// Auto orientations grow by a step between pathways.
	assert.Equal(t, AutoOrientations, g.calls[0].orientations)
	assert.Equal(t, AutoOrientations+OrientationStep, g.calls[1].orientations)
}

func TestAggregate_ExhaustedPathwayDoesNotLeakSeeds(t *testing.T) {
	g := &fakeGrower{}
	g.grow = func(aid string, _ []*molecule.Molecule) ([]*molecule.Molecule, error) {
		if len(g.calls) == 1 {
			return nil, nil
		}
		return []*molecule.Molecule{{Name: "grown_" + aid}}, nil
	}

	summary, err := New(g).Aggregate(context.Background(), openDir(t), []Component{
		{Monomer: monomer("water"), Count: 1},
		{Monomer: monomer("methane"), Count: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, Summary{Pathways: 3, Steps: 5}, summary)

	require.Len(t, g.calls, 5)
	// Pathway 1 (b, a, b) starts from its own first unit, not pathway 0's leftovers.
	assert.Equal(t, "ag_a_001_b_001", g.calls[1].aid)
	assert.Equal(t, []string{"b"}, g.calls[1].seeds)
}

func TestAggregate_StepUsesPreviousGeneration(t *testing.T) {
	g := &fakeGrower{}
	o := New(g, WithOrientations(config.Fixed(5)))

	_, err := o.Aggregate(context.Background(), openDir(t), []Component{{Monomer: monomer("water"), Count: 4}})
	require.NoError(t, err)

	require.Len(t, g.calls, 3)
	assert.Equal(t, []string{"ag_a_002", "ag_a_003", "ag_a_004"}, []string{g.calls[0].aid, g.calls[1].aid, g.calls[2].aid})
	assert.Equal(t, []string{"a"}, g.calls[0].seeds)
	assert.Equal(t, []string{"grown_ag_a_002"}, g.calls[1].seeds)
	assert.Equal(t, []string{"grown_ag_a_003"}, g.calls[2].seeds)
	for _, c := range g.calls {
		assert.Equal(t, 5, c.orientations)
	}
}

func TestAggregate_Window(t *testing.T) {
	g := &fakeGrower{}
	o := New(g, WithWindow(1, 2))

	summary, err := o.Aggregate(context.Background(), openDir(t), []Component{
		{Monomer: monomer("water"), Count: 2},
		{Monomer: monomer("methane"), Count: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Pathways)

	// aabb is skipped; abab is pathway 1 and abba pathway 2.
	require.Len(t, g.calls, 6)
	assert.Equal(t, "ag_a_001_b_001_001", g.calls[0].dir)
	assert.Equal(t, "ag_a_002_b_001_001", g.calls[1].dir)
	assert.Equal(t, "ag_a_002_b_002_001", g.calls[2].dir)
	assert.Equal(t, "ag_a_001_b_001_002", g.calls[3].dir)
	assert.Equal(t, "ag_a_001_b_002_002", g.calls[4].dir)
	assert.Equal(t, "ag_a_002_b_002_002", g.calls[5].dir)
}

func TestAggregate_EmptySeedsEndPathway(t *testing.T) {
	g := &fakeGrower{grow: func(string, []*molecule.Molecule) ([]*molecule.Molecule, error) { return nil, nil }}
	rec := &recorder{}
	o := New(g, WithPublisher(rec))

	summary, err := o.Aggregate(context.Background(), openDir(t), []Component{{Monomer: monomer("water"), Count: 4}})
	require.NoError(t, err)
	assert.Equal(t, Summary{Pathways: 1, Steps: 1}, summary)
	assert.Len(t, g.calls, 1)
	assert.Contains(t, rec.kinds(), events.KindPathwayDone)
}

func TestAggregate_StopAtEntry(t *testing.T) {
	dir := openDir(t)
	g := &fakeGrower{stop: func() bool { return true }}
	rec := &recorder{}
	o := New(g, WithPublisher(rec))

	summary, err := o.Aggregate(context.Background(), dir, []Component{{Monomer: monomer("water"), Count: 2}})
	assert.ErrorIs(t, err, growth.ErrStopped)
	assert.True(t, summary.Stopped)
	assert.Empty(t, g.calls)
	assert.NoDirExists(t, dir.Join(AggregatesDir))
	assert.Equal(t, []events.Kind{events.KindStopped}, rec.kinds())
}

func TestAggregate_StopDuringStep(t *testing.T) {
	g := &fakeGrower{}
	g.grow = func(aid string, _ []*molecule.Molecule) ([]*molecule.Molecule, error) {
		if len(g.calls) == 2 {
			return nil, growth.ErrStopped
		}
		return []*molecule.Molecule{{Name: aid}}, nil
	}
	rec := &recorder{}
	o := New(g, WithPublisher(rec))

	summary, err := o.Aggregate(context.Background(), openDir(t), []Component{{Monomer: monomer("water"), Count: 4}})
	assert.ErrorIs(t, err, growth.ErrStopped)
	assert.Equal(t, Summary{Pathways: 0, Steps: 1, Stopped: true}, summary)
	kinds := rec.kinds()
	assert.Equal(t, events.KindStopped, kinds[len(kinds)-1])
	assert.NotContains(t, kinds, events.KindRunCompleted)
}

func TestAggregate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(&fakeGrower{}).Aggregate(ctx, openDir(t), []Component{{Monomer: monomer("water"), Count: 2}})
	assert.ErrorIs(t, err, growth.ErrStopped)
}

func TestAggregate_CancelledMidStepIsNotExhaustion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g := &fakeGrower{grow: func(string, []*molecule.Molecule) ([]*molecule.Molecule, error) {
		cancel()
		return nil, nil
	}}
	rec := &recorder{}
	o := New(g, WithPublisher(rec))

	summary, err := o.Aggregate(ctx, openDir(t), []Component{
		{Monomer: monomer("water"), Count: 2},
		{Monomer: monomer("methane"), Count: 1},
	})
	assert.ErrorIs(t, err, growth.ErrStopped)
	assert.Equal(t, Summary{Pathways: 0, Steps: 0, Stopped: true}, summary)
	assert.Len(t, g.calls, 1, "no later pathway is started")
	assert.NotContains(t, rec.kinds(), events.KindPathwayDone)
	assert.NotContains(t, rec.kinds(), events.KindStepCompleted)
	assert.Equal(t, events.KindStopped, rec.kinds()[len(rec.kinds())-1])
}

func TestAggregate_GrowthErrorPropagates(t *testing.T) {
	boom := errors.New("disk full")
	g := &fakeGrower{grow: func(string, []*molecule.Molecule) ([]*molecule.Molecule, error) { return nil, boom }}

	summary, err := New(g).Aggregate(context.Background(), openDir(t), []Component{{Monomer: monomer("water"), Count: 2}})
	assert.ErrorIs(t, err, boom)
	assert.False(t, summary.Stopped)
}

func TestAggregate_PublishErrorsAreIgnored(t *testing.T) {
	rec := &recorder{err: errors.New("redis down")}
	summary, err := New(&fakeGrower{}, WithPublisher(rec)).Aggregate(context.Background(), openDir(t), []Component{{Monomer: monomer("water"), Count: 2}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Pathways)
}

func TestAggregate_InvalidInput(t *testing.T) {
	t.Run("too many species", func(t *testing.T) {
		components := make([]Component, len(Tags)+1)
		for i := range components {
			components[i] = Component{Monomer: monomer("x"), Count: 1}
		}
		_, err := New(&fakeGrower{}).Aggregate(context.Background(), openDir(t), components)
		assert.ErrorContains(t, err, "at most 26 species")
	})

	t.Run("missing structure", func(t *testing.T) {
		_, err := New(&fakeGrower{}).Aggregate(context.Background(), openDir(t), []Component{{Count: 1}})
		assert.ErrorContains(t, err, "has no structure")
	})

	t.Run("negative count", func(t *testing.T) {
		_, err := New(&fakeGrower{}).Aggregate(context.Background(), openDir(t), []Component{{Monomer: monomer("x"), Count: -1}})
		assert.Error(t, err)
	})
}

func TestSolvate(t *testing.T) {
	dir := openDir(t)
	g := &fakeGrower{}
	rec := &recorder{}
	o := New(g, WithPublisher(rec))

	seeds := []*molecule.Molecule{monomer("s0"), monomer("s1")}
	out, err := o.Solvate(context.Background(), dir, seeds, monomer("water"), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"grown_004"}, names(out))

	require.Len(t, g.calls, 3)
	assert.Equal(t, call{dir: "aggregate_002", aid: "002", seeds: []string{"s0", "s1"}, monomer: "water", orientations: 8}, g.calls[0])
	assert.Equal(t, call{dir: "aggregate_003", aid: "003", seeds: []string{"grown_002"}, monomer: "water", orientations: 16}, g.calls[1])
	assert.Equal(t, call{dir: "aggregate_004", aid: "004", seeds: []string{"grown_003"}, monomer: "water", orientations: 32}, g.calls[2])

	kinds := rec.kinds()
	assert.Equal(t, events.KindRunCompleted, kinds[len(kinds)-1])
	assert.Equal(t, -1, rec.events[0].Pathway)
}

func TestSolvate_FixedOrientations(t *testing.T) {
	g := &fakeGrower{}
	_, err := New(g, WithOrientations(config.Fixed(12))).Solvate(context.Background(), openDir(t), []*molecule.Molecule{monomer("s")}, monomer("w"), 2)
	require.NoError(t, err)
	require.Len(t, g.calls, 2)
	assert.Equal(t, 12, g.calls[0].orientations)
	assert.Equal(t, 12, g.calls[1].orientations)
}

func TestSolvate_EmptySeeds(t *testing.T) {
	g := &fakeGrower{}
	out, err := New(g).Solvate(context.Background(), openDir(t), nil, monomer("w"), 3)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, g.calls)
}

func TestSolvate_StopsWhenSeedsRunOut(t *testing.T) {
	g := &fakeGrower{grow: func(string, []*molecule.Molecule) ([]*molecule.Molecule, error) { return nil, nil }}
	out, err := New(g).Solvate(context.Background(), openDir(t), []*molecule.Molecule{monomer("s")}, monomer("w"), 5)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Len(t, g.calls, 1)
}

func TestSolvate_StopAtEntry(t *testing.T) {
	dir := openDir(t)
	g := &fakeGrower{stop: func() bool { return true }}
	_, err := New(g).Solvate(context.Background(), dir, []*molecule.Molecule{monomer("s")}, monomer("w"), 2)
	assert.ErrorIs(t, err, growth.ErrStopped)
	assert.Empty(t, g.calls)
	assert.NoDirExists(t, dir.Join("aggregate_002"))
}

func TestSolvate_StopDuringStep(t *testing.T) {
	g := &fakeGrower{grow: func(string, []*molecule.Molecule) ([]*molecule.Molecule, error) { return nil, growth.ErrStopped }}
	rec := &recorder{}
	_, err := New(g, WithPublisher(rec)).Solvate(context.Background(), openDir(t), []*molecule.Molecule{monomer("s")}, monomer("w"), 2)
	assert.ErrorIs(t, err, growth.ErrStopped)
	assert.Equal(t, []events.Kind{events.KindStepStarted, events.KindStopped}, rec.kinds())
}

func TestSolvate_CancelledMidStep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g := &fakeGrower{grow: func(string, []*molecule.Molecule) ([]*molecule.Molecule, error) {
		cancel()
		return nil, nil
	}}
	rec := &recorder{}
	out, err := New(g, WithPublisher(rec)).Solvate(ctx, openDir(t), []*molecule.Molecule{monomer("s")}, monomer("w"), 3)
	assert.ErrorIs(t, err, growth.ErrStopped)
	assert.Nil(t, out)
	assert.Equal(t, []events.Kind{events.KindStepStarted, events.KindStopped}, rec.kinds())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "init", StateInit.String())
	assert.Equal(t, "growing", StateGrowing.String())
	assert.Equal(t, "reset", StateReset.String())
	assert.Equal(t, "state(9)", State(9).String())
}
