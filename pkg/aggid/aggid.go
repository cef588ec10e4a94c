// Package aggid encodes and decodes aggregate identifiers.
//
// An aggregate identifier names one growth state of a multi-species aggregate by
// recording how many units of each species have been incorporated so far:
//
//	ag_a_000_b_002
//
// The first token is a fixed prefix; every following pair is a species tag and its
// count, zero-padded to width 3. The species order is fixed for the lifetime of an id.
// The id only names directories and result files; it is never used to rebuild a geometry.
package aggid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultPrefix is the prefix used for mixed-composition aggregates.
const DefaultPrefix = "ag"

var (
	// ErrMalformed is returned when an identifier does not follow prefix(_species_count)*.
	ErrMalformed = errors.New("malformed aggregate id")

	// ErrUnknownSpecies is returned when advancing a species that has no slot in the id.
	// Callers must create one slot per species before advancing any of them.
	ErrUnknownSpecies = errors.New("species has no slot in aggregate id")
)

// Slot is one (species, count) pair of an identifier.
type Slot struct {
	Species string
	Count   int
}

// ID is a parsed aggregate identifier. The zero value is not useful; use New or Parse.
type ID struct {
	prefix string
	slots  []Slot
}

// New returns an identifier with one zero-count slot per species, in the given order.
func New(prefix string, species ...string) ID {
	slots := make([]Slot, len(species))
	for i, s := range species {
		slots[i] = Slot{Species: s}
	}
	return ID{prefix: prefix, slots: slots}
}

// Parse decodes an identifier string, preserving the species order.
func Parse(aid string) (ID, error) {
	parts := strings.Split(aid, "_")
	if parts[0] == "" {
		return ID{}, fmt.Errorf("%w: %q has no prefix", ErrMalformed, aid)
	}
	rest := parts[1:]
	if len(rest)%2 != 0 {
		return ID{}, fmt.Errorf("%w: %q has an unpaired species token", ErrMalformed, aid)
	}

	id := ID{prefix: parts[0], slots: make([]Slot, 0, len(rest)/2)}
	for i := 0; i < len(rest); i += 2 {
		species, raw := rest[i], rest[i+1]
		if species == "" {
			return ID{}, fmt.Errorf("%w: %q has an empty species tag", ErrMalformed, aid)
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return ID{}, fmt.Errorf("%w: %q has invalid count %q for species %s", ErrMalformed, aid, raw, species)
		}
		id.slots = append(id.slots, Slot{Species: species, Count: n})
	}
	return id, nil
}

// Prefix returns the identifier prefix.
func (id ID) Prefix() string {
	return id.prefix
}

// Slots returns a copy of the (species, count) pairs in order.
func (id ID) Slots() []Slot {
	out := make([]Slot, len(id.slots))
	copy(out, id.slots)
	return out
}

// Species returns the species tags in order.
func (id ID) Species() []string {
	out := make([]string, len(id.slots))
	for i, s := range id.slots {
		out[i] = s.Species
	}
	return out
}

// Count returns the count recorded for species and whether the species has a slot.
func (id ID) Count(species string) (int, bool) {
	for _, s := range id.slots {
		if s.Species == species {
			return s.Count, true
		}
	}
	return 0, false
}

// Advance returns a copy of id with the count of species incremented by one.
// The receiver is left untouched.
func (id ID) Advance(species string) (ID, error) {
	next := ID{prefix: id.prefix, slots: id.Slots()}
	for i := range next.slots {
		if next.slots[i].Species == species {
			next.slots[i].Count++
			return next, nil
		}
	}
	return ID{}, fmt.Errorf("%w: %s in %s", ErrUnknownSpecies, species, id)
}

// String renders the identifier, counts zero-padded to width 3.
func (id ID) String() string {
	var b strings.Builder
	b.WriteString(id.prefix)
	for _, s := range id.slots {
		fmt.Fprintf(&b, "_%s_%03d", s.Species, s.Count)
	}
	return b.String()
}

// Advance parses aid, increments the count for species and renders the result.
func Advance(aid, species string) (string, error) {
	id, err := Parse(aid)
	if err != nil {
		return "", err
	}
	next, err := id.Advance(species)
	if err != nil {
		return "", err
	}
	return next.String(), nil
}
