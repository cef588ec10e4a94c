package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/accrete/internal/growth"
	"github.com/dyluth/accrete/internal/molecule"
	"github.com/dyluth/accrete/internal/workdir"
)

// Optimiser runs the optimiser tool in a job_<name> directory.
type Optimiser struct {
	runner *Runner
}

// NewOptimiser wraps a runner.
func NewOptimiser(r *Runner) *Optimiser {
	return &Optimiser{runner: r}
}

// ResultPath is where the optimiser tool leaves the final geometry of name inside dir.
func ResultPath(dir workdir.Dir, name string) string {
	return dir.Join("job_"+name, "result_"+name+".xyz")
}

// Optimise implements growth.Optimiser.
func (o *Optimiser) Optimise(ctx context.Context, dir workdir.Dir, mol *molecule.Molecule, req growth.Request) (growth.Outcome, error) {
	jobDir, err := dir.Sub("job_" + mol.Name)
	if err != nil {
		return growth.Outcome{}, err
	}
	input := jobDir.Join(mol.Name + ".xyz")
	if err := molecule.WriteFile(input, mol); err != nil {
		return growth.Outcome{}, err
	}
	result := ResultPath(dir, mol.Name)
	// A stale result from an earlier round must not be mistaken for this one.
	if err := os.Remove(result); err != nil && !errors.Is(err, os.ErrNotExist) {
		return growth.Outcome{}, fmt.Errorf("failed to clear previous result: %w", err)
	}

	request := OptimiseRequest{
		Name:        mol.Name,
		Geometry:    relative(dir, input),
		Result:      relative(dir, result),
		MaxCycles:   req.MaxCycles,
		Convergence: string(req.Convergence),
		Params:      req.Params,
	}
	var response OptimiseResponse
	if err := o.runner.Run(ctx, dir.Path(), request, &response); err != nil {
		return growth.Outcome{}, fmt.Errorf("optimiser failed for %s: %w", mol.Name, err)
	}
	if err := response.Validate(); err != nil {
		return growth.Outcome{}, fmt.Errorf("optimiser response for %s: %w", mol.Name, err)
	}
	status, err := growth.ParseStatus(response.Status)
	if err != nil {
		return growth.Outcome{}, fmt.Errorf("optimiser response for %s: %w", mol.Name, err)
	}

	out := growth.Outcome{Status: status}
	if status == growth.Failed {
		return out, nil
	}

	geometry, err := molecule.ReadFile(result)
	switch {
	case err == nil:
		geometry.Name = mol.Name
		if response.Energy != 0 {
			geometry.Energy = response.Energy
		}
		out.Geometry = geometry
	case status == growth.Converged:
		return growth.Outcome{}, fmt.Errorf("optimiser reported convergence for %s without a result: %w", mol.Name, err)
	}
	if status == growth.Converged {
		out.ResultPath = result
	}
	return out, nil
}

// Orienter runs the orientation tool.
type Orienter struct {
	runner *Runner
}

// NewOrienter wraps a runner.
func NewOrienter(r *Runner) *Orienter {
	return &Orienter{runner: r}
}

// Orientations implements growth.Orienter. The seed and monomer files staged by the
// engine are passed to the tool by name.
func (o *Orienter) Orientations(ctx context.Context, dir workdir.Dir, idPrefix string, seed, monomer *molecule.Molecule, count int) ([]*molecule.Molecule, error) {
	request := OrientRequest{
		IDPrefix: idPrefix,
		Seed:     growth.SeedFile,
		Monomer:  growth.MonomerFile,
		Count:    count,
	}
	var response OrientResponse
	if err := o.runner.Run(ctx, dir.Path(), request, &response); err != nil {
		return nil, fmt.Errorf("orientation tool failed for %s: %w", idPrefix, err)
	}
	if err := response.Validate(count); err != nil {
		return nil, fmt.Errorf("orientation response for %s: %w", idPrefix, err)
	}

	out := make([]*molecule.Molecule, 0, count)
	for _, s := range response.Orientations {
		m, err := molecule.ReadFile(absolute(dir, s.Path))
		if err != nil {
			return nil, err
		}
		m.Name = s.Name
		out = append(out, m)
	}
	return out, nil
}

// Clusterer runs the clustering tool over staged candidate files.
type Clusterer struct {
	runner *Runner
}

// NewClusterer wraps a runner.
func NewClusterer(r *Runner) *Clusterer {
	return &Clusterer{runner: r}
}

// RemoveSimilar implements growth.Clusterer.
func (c *Clusterer) RemoveSimilar(ctx context.Context, dir workdir.Dir, candidates []*molecule.Molecule) ([]*molecule.Molecule, error) {
	return c.cluster(ctx, dir, OperationRemoveSimilar, candidates, 0)
}

// ChooseGeometries implements growth.Clusterer.
func (c *Clusterer) ChooseGeometries(ctx context.Context, dir workdir.Dir, candidates []*molecule.Molecule, maximum int) ([]*molecule.Molecule, error) {
	return c.cluster(ctx, dir, OperationChooseGeometries, candidates, maximum)
}

func (c *Clusterer) cluster(ctx context.Context, dir workdir.Dir, operation string, candidates []*molecule.Molecule, maximum int) ([]*molecule.Molecule, error) {
	scratch, err := os.MkdirTemp(dir.Path(), "cluster_")
	if err != nil {
		return nil, fmt.Errorf("failed to stage candidates: %w", err)
	}
	defer os.RemoveAll(scratch)

	byName := make(map[string]*molecule.Molecule, len(candidates))
	request := ClusterRequest{Operation: operation, Maximum: maximum}
	for _, m := range candidates {
		path := filepath.Join(scratch, m.Name+".xyz")
		if err := molecule.WriteFile(path, m); err != nil {
			return nil, err
		}
		byName[m.Name] = m
		request.Candidates = append(request.Candidates, Structure{Name: m.Name, Path: relative(dir, path)})
	}

	var response ClusterResponse
	if err := c.runner.Run(ctx, dir.Path(), request, &response); err != nil {
		return nil, fmt.Errorf("clustering tool failed (%s): %w", operation, err)
	}

	out := make([]*molecule.Molecule, 0, len(response.Selected))
	for _, name := range response.Selected {
		m, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("clustering tool selected unknown candidate %q", name)
		}
		out = append(out, m)
	}
	return out, nil
}

func relative(dir workdir.Dir, path string) string {
	rel, err := filepath.Rel(dir.Path(), path)
	if err != nil {
		return path
	}
	return rel
}

func absolute(dir workdir.Dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return dir.Join(path)
}
