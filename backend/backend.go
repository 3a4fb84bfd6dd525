// Package backend abstracts the inference runtime behind small Session and
// Runtime interfaces so the restoration engine can be exercised without a
// real model runtime.
package backend

import "context"

// Tensor is a named flat buffer plus an explicit shape descriptor. Exactly
// one of Floats or Ints is set, matching the element type the model expects.
type Tensor struct {
	Name   string
	Shape  []int64
	Floats []float32
	Ints   []int64
}

// Elems returns the element count implied by the shape.
func (t Tensor) Elems() int {
	n := 1
	for _, d := range t.Shape {
		n *= int(d)
	}
	return n
}

// Session is a single loaded model. Run is blocking and not safe for
// concurrent calls; callers serialize access.
type Session interface {
	// Run executes the model with the given named inputs and returns its
	// outputs in the model's declared order.
	Run(ctx context.Context, inputs []Tensor) ([]Tensor, error)

	// Close releases the session. It is idempotent.
	Close() error
}

// Runtime owns the shared inference environment and loads model sessions
// from it. It is constructed explicitly by the process and handed to each
// restoration session; there is no package-level runtime state.
type Runtime interface {
	// LoadSession loads the model at path.
	LoadSession(path string) (Session, error)

	// Provider names the execution provider actually in use, e.g. "cpu"
	// or "cuda". Acceleration that failed to enable falls back and is
	// reflected here.
	Provider() string

	// Close releases the runtime. Sessions must be closed first.
	Close() error
}
