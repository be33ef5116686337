// Package langrt defines the pluggable interface between the evaluator and
// the concrete language runtime being REPL'd. The runtime itself is an
// external collaborator assumed present as a black box offering
// eval(expr, bindings) -> value|error with redirectable standard streams;
// this package only fixes the shape of that contract.
package langrt

import (
	"context"
	"io"
)

// Results holds the three most-recent evaluation results (*1, *2, *3),
// rotated newest-first on every successful form evaluation.
type Results struct {
	Star1, Star2, Star3 string
}

// Rotate pushes value in as the new *1, shifting the others back.
func (r *Results) Rotate(value string) {
	r.Star3 = r.Star2
	r.Star2 = r.Star1
	r.Star1 = value
}

// Bindings is the dynamic evaluation context installed for the duration of
// one eval task: current namespace, redirected standard streams, the
// last-three-result slots, the last exception seen, and a free-form
// extension map for runtime-specific state.
type Bindings struct {
	Namespace string
	Stdout    io.Writer
	Stderr    io.Writer
	Stdin     io.Reader

	Results   Results
	LastError error

	// Vars holds any additional user-definable key/value bindings the
	// runtime wants to carry across evaluations within a session (e.g.
	// def'd names).
	Vars map[string]any
}

// Clone returns a deep-enough copy of b for installing into a new/child
// session: Vars is copied so mutations in the child do not leak back to
// the parent.
func (b *Bindings) Clone() *Bindings {
	nb := *b
	nb.Vars = make(map[string]any, len(b.Vars))
	for k, v := range b.Vars {
		nb.Vars[k] = v
	}
	return &nb
}

// Runtime is the black-box language runtime collaborator. Forms splits a
// raw source string into the top-level forms it contains (languages differ
// on what a "form" is, so this is left to the runtime); Eval evaluates one
// form against bindings and returns its printed representation.
type Runtime interface {
	Forms(source string) ([]string, error)
	Eval(ctx context.Context, form string, bindings *Bindings) (value string, err error)
}
