package orchestrator

import (
	"github.com/dyluth/accrete/internal/molecule"
)

// Generation is the seed list associated with one aggregate id.
type Generation struct {
	ID    string
	Seeds []*molecule.Molecule
}

// SeedStorage is a FIFO of generations. During growth a new generation is pushed
// after every step and the oldest one is retired straight away, so exactly one
// generation is live between steps and each step can only look back one generation.
type SeedStorage struct {
	generations []Generation
}

// NewSeedStorage returns empty storage.
func NewSeedStorage() *SeedStorage {
	return &SeedStorage{}
}

// Push appends a generation at the back.
func (s *SeedStorage) Push(id string, seeds []*molecule.Molecule) {
	s.generations = append(s.generations, Generation{ID: id, Seeds: seeds})
}

// PopOldest retires the front generation. It reports false when storage is empty.
func (s *SeedStorage) PopOldest() (Generation, bool) {
	if len(s.generations) == 0 {
		return Generation{}, false
	}
	g := s.generations[0]
	s.generations[0] = Generation{}
	s.generations = s.generations[1:]
	return g, true
}

// Lookup returns the seeds stored under id.
func (s *SeedStorage) Lookup(id string) ([]*molecule.Molecule, bool) {
	for i := len(s.generations) - 1; i >= 0; i-- {
		if s.generations[i].ID == id {
			return s.generations[i].Seeds, true
		}
	}
	return nil, false
}

// Latest returns the most recently pushed generation.
func (s *SeedStorage) Latest() (Generation, bool) {
	if len(s.generations) == 0 {
		return Generation{}, false
	}
	return s.generations[len(s.generations)-1], true
}

// Len is the number of stored generations.
func (s *SeedStorage) Len() int {
	return len(s.generations)
}

// Reset drops every generation.
func (s *SeedStorage) Reset() {
	s.generations = nil
}
