package nrepl

import (
	"fmt"
	"sort"

	"nrepl.dev/nrepl/transport"
)

// SendFunc emits one response message for the request currently being
// processed.
type SendFunc func(transport.Message) error

// NextFunc forwards a request to the next handler down the chain.
type NextFunc func(req transport.Message, send SendFunc)

// Handler processes one request message, writing zero or more responses via
// send, and forwarding to next when it does not fully handle the op itself.
type Handler func(req transport.Message, send SendFunc, next NextFunc)

// Descriptor advertises what a middleware needs from handlers ordered
// before it (Requires), what dynamic context it adds for handlers after it
// (Expects), and which ops it actually handles (Handles) — the inputs to
// linearization.
type Descriptor struct {
	Name     string
	Requires OpSet
	Expects  OpSet
	Handles  OpSet

	Handler Handler
}

// Middleware is a named, linearizable unit of request processing.
type Middleware struct {
	Descriptor
}

// Linearize topologically sorts mws into a single ordered chain: a
// middleware that Requires op X is placed after the one middleware that
// Handles or Expects X. A middleware that itself Expects X is placed after
// every *other* middleware that Handles or Expects X too (several such
// providers are allowed here, unlike for Requires) — so a descriptor that
// only ever states Expects still gets ordered relative to whatever else
// provides the same context, instead of floating free with no constraint
// at all. Ties are broken by input order for determinism. Returns an error
// if the requirement graph has a cycle, or if a Requires names an op that
// no middleware, or more than one middleware, in the set Handles or
// Expects.
func Linearize(mws []Middleware) ([]Middleware, error) {
	// provides[op] = set of middleware indices that Handle or Expect op.
	provides := make(map[string][]int)
	for i, m := range mws {
		for op := range m.Handles.All() {
			provides[op] = append(provides[op], i)
		}
		for op := range m.Expects.All() {
			provides[op] = append(provides[op], i)
		}
	}

	// edges[before] = set of middleware indices that must run after before.
	edges := make([][]int, len(mws))
	indegree := make([]int, len(mws))
	seen := make([]map[int]bool, len(mws))
	for i := range mws {
		seen[i] = map[int]bool{}
	}
	addEdge := func(before, after int) {
		if before == after || seen[after][before] {
			return
		}
		seen[after][before] = true
		edges[before] = append(edges[before], after)
		indegree[after]++
	}

	for i, m := range mws {
		for op := range m.Requires.All() {
			providers, ok := provides[op]
			if !ok {
				return nil, fmt.Errorf("nrepl: middleware %q requires op %q, provided by nothing", m.Name, op)
			}
			// providers is in ascending index order, so distinct first and
			// last entries mean two different middlewares provide op.
			if providers[0] != providers[len(providers)-1] {
				return nil, fmt.Errorf("nrepl: middleware %q requires op %q, provided by more than one middleware", m.Name, op)
			}
			for _, j := range providers {
				addEdge(j, i) // j provides op, so j must run before i
			}
		}
		for op := range m.Expects.All() {
			for _, j := range provides[op] {
				addEdge(j, i) // j also provides/expects op, so j must run before i too
			}
		}
	}

	var order []int
	var ready []int
	for i := range mws {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	sort.Ints(ready)

	for len(ready) > 0 {
		sort.Ints(ready)
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)

		for _, j := range edges[n] {
			indegree[j]--
			if indegree[j] == 0 {
				ready = append(ready, j)
			}
		}
	}

	if len(order) != len(mws) {
		return nil, fmt.Errorf("nrepl: middleware requirement graph has a cycle")
	}

	out := make([]Middleware, len(order))
	for k, idx := range order {
		out[k] = mws[idx]
	}
	return out, nil
}

// Chain folds a linearized middleware list right-to-left into a single
// NextFunc entry point: the first middleware in the list is outermost, so
// it runs first on the way in and last on the way out.
func Chain(mws []Middleware, terminal Handler) NextFunc {
	next := NextFunc(func(req transport.Message, send SendFunc) {
		terminal(req, send, nil)
	})
	for i := len(mws) - 1; i >= 0; i-- {
		h := mws[i].Handler
		capturedNext := next
		next = func(req transport.Message, send SendFunc) {
			h(req, send, capturedNext)
		}
	}
	return next
}
