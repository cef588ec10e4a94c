package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dyluth/accrete/internal/growth"
	"github.com/dyluth/accrete/internal/molecule"
	"github.com/dyluth/accrete/internal/workdir"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shell(script string) *Runner {
	return NewRunner([]string{"sh", "-c", script}, 10*time.Second, zerolog.Nop())
}

func testDir(t *testing.T) workdir.Dir {
	t.Helper()
	d, err := workdir.Open(t.TempDir())
	require.NoError(t, err)
	return d
}

func probe(name string) *molecule.Molecule {
	return &molecule.Molecule{Name: name, Atoms: []molecule.Atom{{Symbol: "H"}, {Symbol: "H", Z: 0.74}}}
}

func TestRunner(t *testing.T) {
	ctx := context.Background()

	t.Run("round trips JSON through stdin and stdout", func(t *testing.T) {
		r := shell(`cat`)
		var out map[string]any
		require.NoError(t, r.Run(ctx, t.TempDir(), map[string]any{"echo": "yes"}, &out))
		assert.Equal(t, "yes", out["echo"])
	})

	t.Run("runs in the given directory", func(t *testing.T) {
		dir := t.TempDir()
		r := shell(`cat >/dev/null; touch here; echo '{}'`)
		var out map[string]any
		require.NoError(t, r.Run(ctx, dir, nil, &out))
		assert.FileExists(t, filepath.Join(dir, "here"))
	})

	t.Run("non-zero exit is an ExecError with stderr", func(t *testing.T) {
		r := shell(`echo 'scf did not converge' >&2; exit 3`)
		err := r.Run(ctx, t.TempDir(), nil, &struct{}{})
		var execErr *ExecError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, 3, execErr.ExitCode)
		assert.Contains(t, err.Error(), "scf did not converge")
	})

	t.Run("empty stdout is an error", func(t *testing.T) {
		err := shell(`true`).Run(ctx, t.TempDir(), nil, &struct{}{})
		assert.ErrorContains(t, err, "no output")
	})

	t.Run("invalid JSON is an error", func(t *testing.T) {
		err := shell(`echo not-json`).Run(ctx, t.TempDir(), nil, &struct{}{})
		assert.ErrorContains(t, err, "invalid JSON")
	})

	t.Run("timeout kills the tool and its children", func(t *testing.T) {
		// The trailing echo keeps sh alive as the parent of sleep.
		r := NewRunner([]string{"sh", "-c", "sleep 5; echo '{}'"}, 100*time.Millisecond, zerolog.Nop())
		start := time.Now()
		err := r.Run(ctx, t.TempDir(), nil, &struct{}{})
		assert.Less(t, time.Since(start), time.Second)

		var execErr *ExecError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, -1, execErr.ExitCode)
		assert.ErrorContains(t, err, "tool execution timeout")
	})

	t.Run("cancelled context is reported as cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		time.AfterFunc(100*time.Millisecond, cancel)
		start := time.Now()
		err := shell(`sleep 5; echo '{}'`).Run(cctx, t.TempDir(), nil, &struct{}{})
		assert.Less(t, time.Since(start), time.Second)
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorContains(t, err, "tool cancelled")
	})

	t.Run("empty command is rejected", func(t *testing.T) {
		err := NewRunner(nil, 0, zerolog.Nop()).Run(ctx, t.TempDir(), nil, &struct{}{})
		assert.ErrorContains(t, err, "command array is empty")
	})
}

func TestLimitedWriter(t *testing.T) {
	var buf []byte
	w := &limitedWriter{w: writerFunc(func(p []byte) (int, error) { buf = append(buf, p...); return len(p), nil }), limit: 4}
	n, err := w.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	n, err = w.Write([]byte("gh"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "abcd", string(buf))
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func TestOptimiser(t *testing.T) {
	ctx := context.Background()
	req := growth.Request{MaxCycles: 100, Convergence: growth.Loose, Params: map[string]any{"method": "gfn2"}}

	t.Run("converged reads the result file", func(t *testing.T) {
		dir := testDir(t)
		opt := NewOptimiser(shell(`cat >/dev/null
printf '2\nresult\nH 0 0 0\nH 0 0 0.70\n' > job_m1/result_m1.xyz
echo '{"status":"converged","energy":-1.17}'`))

		out, err := opt.Optimise(ctx, dir, probe("m1"), req)
		require.NoError(t, err)
		assert.Equal(t, growth.Converged, out.Status)
		require.NotNil(t, out.Geometry)
		assert.Equal(t, "m1", out.Geometry.Name)
		assert.InDelta(t, -1.17, out.Geometry.Energy, 1e-9)
		assert.InDelta(t, 0.70, out.Geometry.Atoms[1].Z, 1e-9)
		assert.Equal(t, ResultPath(dir, "m1"), out.ResultPath)
		assert.FileExists(t, dir.Join("job_m1", "m1.xyz"))
	})

	t.Run("request carries the convention paths", func(t *testing.T) {
		dir := testDir(t)
		opt := NewOptimiser(shell(`cat > request.json; echo '{"status":"failed"}'`))

		out, err := opt.Optimise(ctx, dir, probe("m2"), req)
		require.NoError(t, err)
		assert.Equal(t, growth.Failed, out.Status)
		assert.Nil(t, out.Geometry)

		data, err := os.ReadFile(dir.Join("request.json"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"m2","geometry":"job_m2/m2.xyz","result":"job_m2/result_m2.xyz","max_cycles":100,"convergence":"loose","params":{"method":"gfn2"}}`, string(data))
	})

	t.Run("cycle exceeded without result keeps geometry unset", func(t *testing.T) {
		out, err := NewOptimiser(shell(`cat >/dev/null; echo '{"status":"cycle_exceeded"}'`)).Optimise(ctx, testDir(t), probe("m3"), req)
		require.NoError(t, err)
		assert.Equal(t, growth.CycleExceeded, out.Status)
		assert.Nil(t, out.Geometry)
		assert.Empty(t, out.ResultPath)
	})

	t.Run("converged without result is an error", func(t *testing.T) {
		_, err := NewOptimiser(shell(`cat >/dev/null; echo '{"status":"converged"}'`)).Optimise(ctx, testDir(t), probe("m4"), req)
		assert.ErrorContains(t, err, "without a result")
	})

	t.Run("unknown status is an error", func(t *testing.T) {
		_, err := NewOptimiser(shell(`cat >/dev/null; echo '{"status":"True"}'`)).Optimise(ctx, testDir(t), probe("m5"), req)
		assert.ErrorContains(t, err, "unknown optimisation status")
	})

	t.Run("missing status is an error", func(t *testing.T) {
		_, err := NewOptimiser(shell(`cat >/dev/null; echo '{}'`)).Optimise(ctx, testDir(t), probe("m6"), req)
		assert.ErrorContains(t, err, "status is required")
	})
}

func TestOrienter(t *testing.T) {
	ctx := context.Background()
	dir := testDir(t)
	require.NoError(t, molecule.WriteFile(dir.Join(growth.SeedFile), probe("staged-seed")))
	require.NoError(t, molecule.WriteFile(dir.Join(growth.MonomerFile), probe("staged-monomer")))
	orienter := NewOrienter(shell(`cat > request.json
printf '1\n\nH 0 0 0\n' > o0.xyz
printf '1\n\nH 0 0 1\n' > o1.xyz
echo '{"orientations":[{"name":"000_ag_001","path":"o0.xyz"},{"name":"000_ag_002","path":"o1.xyz"}]}'`))

	out, err := orienter.Orientations(ctx, dir, "000_ag", probe("seed"), probe("a"), 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "000_ag_001", out[0].Name)
	assert.Equal(t, "000_ag_002", out[1].Name)
	assert.InDelta(t, 1.0, out[1].Atoms[0].Z, 1e-9)

	data, err := os.ReadFile(dir.Join("request.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id_prefix":"000_ag","seed":"seed.xyz","monomer":"monomer.xyz","count":2}`, string(data))

	// The staged files are left as the engine wrote them.
	staged, err := molecule.ReadFile(dir.Join(growth.SeedFile))
	require.NoError(t, err)
	assert.Equal(t, "staged-seed", staged.Name)

	_, err = orienter.Orientations(ctx, dir, "000_ag", probe("seed"), probe("a"), 3)
	assert.ErrorContains(t, err, "expected 3 orientations")
}

func TestClusterer(t *testing.T) {
	ctx := context.Background()
	candidates := []*molecule.Molecule{probe("c0"), probe("c1"), probe("c2")}

	t.Run("maps selected names back to candidates", func(t *testing.T) {
		dir := testDir(t)
		c := NewClusterer(shell(`cat > request.json; echo '{"selected":["c2","c0"]}'`))

		out, err := c.ChooseGeometries(ctx, dir, candidates, 2)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Same(t, candidates[2], out[0])
		assert.Same(t, candidates[0], out[1])

		data, err := os.ReadFile(dir.Join("request.json"))
		require.NoError(t, err)
		assert.Contains(t, string(data), `"operation":"choose_geometries"`)
		assert.Contains(t, string(data), `"maximum":2`)

		entries, err := os.ReadDir(dir.Path())
		require.NoError(t, err)
		for _, e := range entries {
			assert.NotContains(t, e.Name(), "cluster_", "scratch directory is removed")
		}
	})

	t.Run("remove similar", func(t *testing.T) {
		c := NewClusterer(shell(`cat >/dev/null; echo '{"selected":["c1"]}'`))
		out, err := c.RemoveSimilar(ctx, testDir(t), candidates)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "c1", out[0].Name)
	})

	t.Run("unknown name is an error", func(t *testing.T) {
		c := NewClusterer(shell(`cat >/dev/null; echo '{"selected":["zz"]}'`))
		_, err := c.RemoveSimilar(ctx, testDir(t), candidates)
		assert.ErrorContains(t, err, "unknown candidate")
	})
}
