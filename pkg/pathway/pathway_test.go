package pathway

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStrings(t *testing.T, counts map[string]int, names ...string) *Enumerator[string] {
	t.Helper()
	species := make([]Species[string], 0, len(names))
	for _, n := range names {
		species = append(species, Species[string]{Name: n, Item: "mol-" + n, Count: counts[n]})
	}
	e, err := New(species, func(item, name string) string { return item + "@" + name })
	require.NoError(t, err)
	return e
}

func key(p Pathway[string]) string {
	return strings.Join(p.Species(), "")
}

func TestNew(t *testing.T) {
	t.Run("expands and tags units", func(t *testing.T) {
		e := newStrings(t, map[string]int{"a": 2, "b": 1}, "a", "b")
		units := e.Units()
		require.Len(t, units, 3)
		assert.Equal(t, Unit[string]{Species: "a", Item: "mol-a@a"}, units[0])
		assert.Equal(t, Unit[string]{Species: "a", Item: "mol-a@a"}, units[1])
		assert.Equal(t, Unit[string]{Species: "b", Item: "mol-b@b"}, units[2])
	})

	t.Run("rejects bad species", func(t *testing.T) {
		_, err := New([]Species[string]{{Name: "a", Count: -1}}, nil)
		assert.Error(t, err)

		_, err = New([]Species[string]{{Name: "a"}, {Name: "a"}}, nil)
		assert.Error(t, err)

		_, err = New([]Species[string]{{Name: ""}}, nil)
		assert.Error(t, err)
	})
}

func TestCount(t *testing.T) {
	cases := []struct {
		name   string
		counts map[string]int
		names  []string
		want   uint64
	}{
		{"empty", map[string]int{}, nil, 1},
		{"single unit", map[string]int{"a": 1}, []string{"a"}, 1},
		{"identical units", map[string]int{"a": 2}, []string{"a"}, 1},
		{"two by two", map[string]int{"a": 2, "b": 2}, []string{"a", "b"}, 6},
		{"three species", map[string]int{"a": 2, "b": 1, "c": 3}, []string{"a", "b", "c"}, 60},
		{"all distinct", map[string]int{"a": 1, "b": 1, "c": 1, "d": 1}, []string{"a", "b", "c", "d"}, 24},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newStrings(t, tc.counts, tc.names...)
			n, err := e.Count()
			require.NoError(t, err)
			assert.Equal(t, tc.want, n)

			all, err := e.Window(0, 0)
			require.NoError(t, err)
			assert.Len(t, all, int(tc.want))
		})
	}
}

func TestCount_Overflow(t *testing.T) {
	species := make([]Species[int], 0, 26)
	for i := 0; i < 26; i++ {
		species = append(species, Species[int]{Name: string(rune('a' + i)), Count: 1})
	}
	e, err := New(species, nil)
	require.NoError(t, err)

	_, err = e.Count()
	assert.ErrorIs(t, err, ErrTooManyPathways)
}

func TestWindow_DistinctAndOrdered(t *testing.T) {
	e := newStrings(t, map[string]int{"a": 2, "b": 2}, "a", "b")
	all, err := e.Window(0, 0)
	require.NoError(t, err)

	got := make([]string, len(all))
	for i, p := range all {
		assert.Equal(t, i, p.Index)
		got[i] = key(p)
	}
	assert.Equal(t, []string{"aabb", "abab", "abba", "baab", "baba", "bbaa"}, got)

	// Items follow their species tag.
	for _, u := range all[3].Units {
		assert.Equal(t, "mol-"+u.Species+"@"+u.Species, u.Item)
	}
}

func TestWindow_NoDuplicates(t *testing.T) {
	e := newStrings(t, map[string]int{"a": 3, "b": 2, "c": 1}, "a", "b", "c")
	all, err := e.Window(0, 0)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, p := range all {
		k := key(p)
		assert.False(t, seen[k], "duplicate pathway %s", k)
		seen[k] = true
	}
	assert.Len(t, seen, 60)
}

func TestWindow_IsAPureSlice(t *testing.T) {
	e := newStrings(t, map[string]int{"a": 2, "b": 2, "c": 1}, "a", "b", "c")

	for f := 0; f < 30; f += 7 {
		for n := 1; n < 6; n++ {
			for m := 1; m < 6; m++ {
				head, err := e.Window(f, n)
				require.NoError(t, err)
				tail, err := e.Window(f+n, m)
				require.NoError(t, err)
				whole, err := e.Window(f, n+m)
				require.NoError(t, err)

				joined := append(append([]Pathway[string]{}, head...), tail...)
				require.Equal(t, len(whole), len(joined))
				for i := range whole {
					assert.Equal(t, whole[i].Index, joined[i].Index)
					assert.Equal(t, key(whole[i]), key(joined[i]))
				}
			}
		}
	}
}

func TestWindow_Bounds(t *testing.T) {
	e := newStrings(t, map[string]int{"a": 2, "b": 1}, "a", "b")

	t.Run("zero count runs to the end", func(t *testing.T) {
		ps, err := e.Window(1, 0)
		require.NoError(t, err)
		require.Len(t, ps, 2)
		assert.Equal(t, "aba", key(ps[0]))
		assert.Equal(t, "baa", key(ps[1]))
	})

	t.Run("window is clipped at the end", func(t *testing.T) {
		ps, err := e.Window(2, 10)
		require.NoError(t, err)
		require.Len(t, ps, 1)
		assert.Equal(t, 2, ps[0].Index)
	})

	t.Run("start past the end is empty", func(t *testing.T) {
		ps, err := e.Window(3, 0)
		require.NoError(t, err)
		assert.Empty(t, ps)
	})

	t.Run("negative arguments are rejected", func(t *testing.T) {
		_, err := e.Window(-1, 0)
		assert.Error(t, err)
		_, err = e.Window(0, -1)
		assert.Error(t, err)
	})
}

func TestWindow_SingleSpecies(t *testing.T) {
	e := newStrings(t, map[string]int{"a": 2}, "a")
	ps, err := e.Window(0, 0)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, []string{"a", "a"}, ps[0].Species())
}
