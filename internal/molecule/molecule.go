// Package molecule holds the geometry value passed between the growth engine and the
// external optimisation, orientation and clustering tools, plus its xyz file form.
package molecule

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Atom is one atom of a geometry, in Angstrom.
type Atom struct {
	Symbol string
	X      float64
	Y      float64
	Z      float64
}

// Molecule is a named geometry. Name is the on-disk identity used to derive file and
// job directory names; for monomers it is the species tag.
type Molecule struct {
	Name   string
	Energy float64
	Atoms  []Atom
}

// Clone returns a deep copy.
func (m *Molecule) Clone() *Molecule {
	c := &Molecule{Name: m.Name, Energy: m.Energy, Atoms: make([]Atom, len(m.Atoms))}
	copy(c.Atoms, m.Atoms)
	return c
}

// Renamed returns a deep copy carrying name.
func (m *Molecule) Renamed(name string) *Molecule {
	c := m.Clone()
	c.Name = name
	return c
}

// energyField marks the energy in the xyz comment line.
const energyField = "energy:"

// WriteXYZ writes m in xyz format. The comment line carries the name and, when set,
// the energy.
func WriteXYZ(w io.Writer, m *Molecule) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n", len(m.Atoms))
	if m.Energy != 0 {
		fmt.Fprintf(bw, "%s %s %.10f\n", m.Name, energyField, m.Energy)
	} else {
		fmt.Fprintf(bw, "%s\n", m.Name)
	}
	for _, a := range m.Atoms {
		fmt.Fprintf(bw, "%-2s %14.8f %14.8f %14.8f\n", a.Symbol, a.X, a.Y, a.Z)
	}
	return bw.Flush()
}

// ReadXYZ parses one xyz frame. The first comment token, if any, becomes the name.
func ReadXYZ(r io.Reader) (*Molecule, error) {
	sc := bufio.NewScanner(r)

	if !sc.Scan() {
		return nil, fmt.Errorf("xyz: missing atom count line")
	}
	n, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
	if err != nil || n < 0 {
		return nil, fmt.Errorf("xyz: invalid atom count %q", sc.Text())
	}

	m := &Molecule{Atoms: make([]Atom, 0, n)}
	if !sc.Scan() {
		return nil, fmt.Errorf("xyz: missing comment line")
	}
	fields := strings.Fields(sc.Text())
	if len(fields) > 0 && fields[0] != energyField {
		m.Name = fields[0]
	}
	for i := 0; i < len(fields)-1; i++ {
		if fields[i] == energyField {
			if e, err := strconv.ParseFloat(fields[i+1], 64); err == nil {
				m.Energy = e
			}
		}
	}

	for i := 0; i < n; i++ {
		if !sc.Scan() {
			return nil, fmt.Errorf("xyz: expected %d atoms, got %d", n, i)
		}
		f := strings.Fields(sc.Text())
		if len(f) < 4 {
			return nil, fmt.Errorf("xyz: atom line %d: want symbol and three coordinates", i+1)
		}
		var xyz [3]float64
		for k := 0; k < 3; k++ {
			v, err := strconv.ParseFloat(f[k+1], 64)
			if err != nil {
				return nil, fmt.Errorf("xyz: atom line %d: %w", i+1, err)
			}
			xyz[k] = v
		}
		m.Atoms = append(m.Atoms, Atom{Symbol: f[0], X: xyz[0], Y: xyz[1], Z: xyz[2]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("xyz: %w", err)
	}
	return m, nil
}

// ReadFile loads an xyz file. A molecule without a name in its comment line is named
// after the file stem.
func ReadFile(path string) (*Molecule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	m, err := ReadXYZ(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return m, nil
}

// WriteFile stores m as an xyz file, replacing any existing file.
func WriteFile(path string, m *Molecule) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteXYZ(f, m); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
