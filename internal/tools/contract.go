// Package tools drives the external optimisation, orientation and clustering programs.
//
// Each collaborator is an executable configured as an argv array. The adapters stage
// geometries as xyz files, call the program once per operation with a JSON request on
// stdin, and read one JSON response from stdout. Programs run inside the directory the
// growth engine is working in, so their job files land in the result tree.
package tools

import (
	"fmt"
)

// OptimiseRequest is sent to the optimiser tool.
//
// Example JSON:
//
//	{
//	  "name": "000_ag_a_002_000",
//	  "geometry": "job_000_ag_a_002_000/000_ag_a_002_000.xyz",
//	  "result": "job_000_ag_a_002_000/result_000_ag_a_002_000.xyz",
//	  "max_cycles": 100,
//	  "convergence": "loose",
//	  "params": {"method": "gfn2", "charge": 0, "multiplicity": 1}
//	}
type OptimiseRequest struct {
	Name        string         `json:"name"`
	Geometry    string         `json:"geometry"`
	Result      string         `json:"result"`
	MaxCycles   int            `json:"max_cycles"`
	Convergence string         `json:"convergence"`
	Params      map[string]any `json:"params,omitempty"`
}

// OptimiseResponse is read back from the optimiser tool. When Status is "converged" or
// "cycle_exceeded" the tool must have written the last geometry to the request's
// Result path.
type OptimiseResponse struct {
	Status string  `json:"status"`
	Energy float64 `json:"energy,omitempty"`
}

// Validate checks the response fields.
func (r *OptimiseResponse) Validate() error {
	if r.Status == "" {
		return fmt.Errorf("status is required and cannot be empty")
	}
	return nil
}

// OrientRequest is sent to the orientation tool.
type OrientRequest struct {
	IDPrefix string `json:"id_prefix"`
	Seed     string `json:"seed"`
	Monomer  string `json:"monomer"`
	Count    int    `json:"count"`
}

// Structure names one geometry file.
type Structure struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// OrientResponse lists the generated trial structures, paths relative to the working
// directory or absolute.
type OrientResponse struct {
	Orientations []Structure `json:"orientations"`
}

// Validate checks that every orientation is named and has a file.
func (r *OrientResponse) Validate(count int) error {
	if len(r.Orientations) != count {
		return fmt.Errorf("expected %d orientations, got %d", count, len(r.Orientations))
	}
	for i, o := range r.Orientations {
		if o.Name == "" || o.Path == "" {
			return fmt.Errorf("orientation %d: name and path are required", i)
		}
	}
	return nil
}

// Cluster operations.
const (
	OperationRemoveSimilar    = "remove_similar"
	OperationChooseGeometries = "choose_geometries"
)

// ClusterRequest is sent to the clustering tool.
type ClusterRequest struct {
	Operation  string      `json:"operation"`
	Candidates []Structure `json:"candidates"`
	Maximum    int         `json:"maximum,omitempty"`
}

// ClusterResponse names the retained candidates.
type ClusterResponse struct {
	Selected []string `json:"selected"`
}
