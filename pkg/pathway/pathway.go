// Package pathway enumerates the distinct orders in which the units of a
// multi-species aggregate can be added.
//
// The units form a multiset: two units of the same species are interchangeable, so the
// universe of pathways is the set of distinct permutations of that multiset. Pathways are
// numbered in lexicographic order of species position, with the first species listed
// sorting first. The numbering is a pure function of the species list and counts, so a
// window [first, first+n) names the same pathways in every process. This is what makes
// runs resumable and shardable by index range.
//
// The universe grows combinatorially with the total unit count. Callers are expected to
// keep aggregate sizes small; Count reports ErrTooManyPathways once the count no longer
// fits in 64 bits.
package pathway

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrTooManyPathways is returned when the pathway count overflows uint64.
var ErrTooManyPathways = errors.New("pathway count overflows uint64")

// Species describes one constituent: its tag, the structure added for each unit, and how
// many units of it the final aggregate contains.
type Species[T any] struct {
	Name  string
	Item  T
	Count int
}

// Unit is one monomer addition event.
type Unit[T any] struct {
	Species string
	Item    T
}

// Pathway is one total order of unit additions. Index is its position in the universe.
type Pathway[T any] struct {
	Index int
	Units []Unit[T]
}

// Species returns the species tag of every unit, in addition order.
func (p Pathway[T]) Species() []string {
	out := make([]string, len(p.Units))
	for i, u := range p.Units {
		out[i] = u.Species
	}
	return out
}

// Enumerator produces windows of the pathway universe for a fixed species list.
type Enumerator[T any] struct {
	species []string
	items   []T
	counts  []int
	units   []Unit[T]
}

// New expands species into a flat unit sequence. Each species' item is passed once through
// tag together with the species name, and the result is reused for all of its units.
// A nil tag leaves items unchanged.
func New[T any](species []Species[T], tag func(item T, name string) T) (*Enumerator[T], error) {
	e := &Enumerator[T]{}
	seen := make(map[string]bool, len(species))

	for _, s := range species {
		if s.Name == "" {
			return nil, fmt.Errorf("species name cannot be empty")
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate species %q", s.Name)
		}
		if s.Count < 0 {
			return nil, fmt.Errorf("species %q has negative count %d", s.Name, s.Count)
		}
		seen[s.Name] = true

		item := s.Item
		if tag != nil {
			item = tag(item, s.Name)
		}
		e.species = append(e.species, s.Name)
		e.items = append(e.items, item)
		e.counts = append(e.counts, s.Count)
		for i := 0; i < s.Count; i++ {
			e.units = append(e.units, Unit[T]{Species: s.Name, Item: item})
		}
	}
	return e, nil
}

// Units returns the flat, tagged unit sequence in species order.
func (e *Enumerator[T]) Units() []Unit[T] {
	out := make([]Unit[T], len(e.units))
	copy(out, e.units)
	return out
}

// Count returns the number of distinct pathways: total! / prod(count_i!).
func (e *Enumerator[T]) Count() (uint64, error) {
	m := multinomial(e.counts)
	if !m.IsUint64() {
		return 0, ErrTooManyPathways
	}
	return m.Uint64(), nil
}

// Window returns pathways [first, first+n), or [first, end) when n is 0.
// A window starting past the end is empty.
func (e *Enumerator[T]) Window(first, n int) ([]Pathway[T], error) {
	if first < 0 {
		return nil, fmt.Errorf("first pathway must be >= 0, got %d", first)
	}
	if n < 0 {
		return nil, fmt.Errorf("number of pathways must be >= 0, got %d", n)
	}

	total := multinomial(e.counts)
	start := big.NewInt(int64(first))
	if start.Cmp(total) >= 0 {
		return []Pathway[T]{}, nil
	}

	remaining := new(big.Int).Sub(total, start)
	if n > 0 && remaining.Cmp(big.NewInt(int64(n))) > 0 {
		remaining.SetInt64(int64(n))
	}
	if !remaining.IsInt64() {
		return nil, ErrTooManyPathways
	}
	size := int(remaining.Int64())

	order := e.unrank(start)
	out := make([]Pathway[T], 0, size)
	for i := 0; i < size; i++ {
		out = append(out, e.pathway(first+i, order))
		if !nextPermutation(order) {
			break
		}
	}
	return out, nil
}

func (e *Enumerator[T]) pathway(index int, order []int) Pathway[T] {
	units := make([]Unit[T], len(order))
	for i, s := range order {
		units[i] = Unit[T]{Species: e.species[s], Item: e.items[s]}
	}
	return Pathway[T]{Index: index, Units: units}
}

// unrank returns the rank-th distinct permutation of species indices in lexicographic order.
func (e *Enumerator[T]) unrank(rank *big.Int) []int {
	counts := make([]int, len(e.counts))
	copy(counts, e.counts)
	left := new(big.Int).Set(rank)

	n := len(e.units)
	order := make([]int, 0, n)
	for pos := 0; pos < n; pos++ {
		for s := range counts {
			if counts[s] == 0 {
				continue
			}
			counts[s]--
			block := multinomial(counts)
			if left.Cmp(block) < 0 {
				order = append(order, s)
				break
			}
			left.Sub(left, block)
			counts[s]++
		}
	}
	return order
}

// nextPermutation advances a to its lexicographic successor in place. Repeated values
// yield only distinct permutations. Returns false when a is already the last one.
func nextPermutation(a []int) bool {
	i := len(a) - 2
	for i >= 0 && a[i] >= a[i+1] {
		i--
	}
	if i < 0 {
		return false
	}
	j := len(a) - 1
	for a[j] <= a[i] {
		j--
	}
	a[i], a[j] = a[j], a[i]
	for l, r := i+1, len(a)-1; l < r; l, r = l+1, r-1 {
		a[l], a[r] = a[r], a[l]
	}
	return true
}

// multinomial returns (sum counts)! / prod(counts_i!).
func multinomial(counts []int) *big.Int {
	total := 0
	for _, c := range counts {
		total += c
	}
	result := factorial(total)
	for _, c := range counts {
		result.Quo(result, factorial(c))
	}
	return result
}

func factorial(n int) *big.Int {
	if n < 2 {
		return big.NewInt(1)
	}
	return new(big.Int).MulRange(1, int64(n))
}
