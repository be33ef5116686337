package nrepl

import "iter"

// OpSet is a small string set used by middleware Descriptors to advertise
// the op names they require, expect, and handle.
type OpSet struct {
	ops map[string]struct{}
}

// NewOpSet creates an OpSet containing ops.
func NewOpSet(ops ...string) OpSet {
	s := OpSet{ops: make(map[string]struct{}, len(ops))}
	for _, op := range ops {
		s.ops[op] = struct{}{}
	}
	return s
}

// Len returns the number of ops in the set.
func (s OpSet) Len() int { return len(s.ops) }

// All returns an iterator over every op name in the set. For a slice, use
// slices.Collect(s.All()).
func (s OpSet) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		for op := range s.ops {
			if !yield(op) {
				return
			}
		}
	}
}

// Has reports whether op is present in the set.
func (s OpSet) Has(op string) bool {
	_, ok := s.ops[op]
	return ok
}
