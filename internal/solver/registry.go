// Package solver wires domain models to solver back-ends through a read-only
// registry keyed by (problem_type, problem_name).
package solver

import (
	"github.com/puzzler-io/puzzler/internal/domain"
	"github.com/puzzler-io/puzzler/internal/solver/ir"
)

// Model encodes a named problem into a back-end IR and decodes the raw
// back-end result into a domain solution.
type Model interface {
	Encode(p domain.Problem) (ir.Problem, error)
	Decode(p domain.Problem, res ir.Result) (domain.Solution, error)
}

// Adapter invokes a back-end solver kernel on an IR.
type Adapter interface {
	Solve(ctx domain.Context, prob ir.Problem) (ir.Result, error)
}

// Key identifies one registered pipeline.
type Key struct {
	Type domain.ProblemType
	Name domain.ProblemName
}

// Entry pairs the model with its back-end adapter.
type Entry struct {
	Model   Model
	Adapter Adapter
}

// Registry is populated once at startup and read-only afterwards.
type Registry struct {
	entries map[Key]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Key]Entry)}
}

// Register installs a pipeline for a (type, name) pair.
func (r *Registry) Register(k Key, e Entry) {
	r.entries[k] = e
}

// Lookup returns the pipeline for a pair. A miss is not an error at this
// level; the caller emits UNSUPPORTED.
func (r *Registry) Lookup(t domain.ProblemType, n domain.ProblemName) (Entry, bool) {
	e, ok := r.entries[Key{Type: t, Name: n}]
	return e, ok
}
