package workdir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAndSub(t *testing.T) {
	root, err := Open(filepath.Join(t.TempDir(), "run"))
	require.NoError(t, err)
	assert.DirExists(t, root.Path())

	child, err := root.Sub("seed_000")
	require.NoError(t, err)
	assert.DirExists(t, child.Path())
	assert.Equal(t, filepath.Join(root.Path(), "seed_000"), child.Path())

	again, err := root.Sub("seed_000")
	require.NoError(t, err)
	assert.Equal(t, child, again)

	// The parent value is unchanged by descending.
	assert.Equal(t, filepath.Dir(child.Path()), root.Path())
}

func TestJoin(t *testing.T) {
	d := Dir{path: "/tmp/x"}
	assert.Equal(t, "/tmp/x/job_a/result_a.xyz", d.Join("job_a", "result_a.xyz"))
}

func TestCopyFile(t *testing.T) {
	root, err := Open(t.TempDir())
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "result.xyz")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))

	require.NoError(t, root.CopyFile(src, "copy.xyz"))
	data, err := os.ReadFile(root.Join("copy.xyz"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, os.WriteFile(src, []byte("second"), 0644))
	require.NoError(t, root.CopyFile(src, "copy.xyz"))
	data, err = os.ReadFile(root.Join("copy.xyz"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	assert.Error(t, root.CopyFile(filepath.Join(t.TempDir(), "missing"), "x"))
}

func TestStopRequested(t *testing.T) {
	for _, name := range []string{"stop", "STOP", "Stop"} {
		t.Run(name, func(t *testing.T) {
			d, err := Open(t.TempDir())
			require.NoError(t, err)
			assert.False(t, d.StopRequested())

			require.NoError(t, os.WriteFile(d.Join(name), nil, 0644))
			assert.True(t, d.StopRequested())
		})
	}

	t.Run("sentinel in a child does not count", func(t *testing.T) {
		d, err := Open(t.TempDir())
		require.NoError(t, err)
		child, err := d.Sub("child")
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(child.Join("stop"), nil, 0644))

		assert.False(t, d.StopRequested())
		assert.True(t, child.StopRequested())
	})

	t.Run("missing directory is not a stop", func(t *testing.T) {
		assert.False(t, Dir{path: filepath.Join(t.TempDir(), "gone")}.StopRequested())
	})
}
