package nrepl

import (
	"strings"
	"testing"

	"nrepl.dev/nrepl/transport"
)

func noopHandler(req transport.Message, send SendFunc, next NextFunc) {
	if next != nil {
		next(req, send)
	}
}

func TestLinearize_OrdersByRequires(t *testing.T) {
	// "eval" requires "session" to have already run, so SessionMiddleware
	// (which Handles "session") must come first regardless of input order.
	evalMW := Middleware{Descriptor{Name: "eval", Requires: NewOpSet("session"), Handler: noopHandler}}
	sessionMW := Middleware{Descriptor{Name: "session", Handles: NewOpSet("session"), Handler: noopHandler}}

	order, err := Linearize([]Middleware{evalMW, sessionMW})
	if err != nil {
		t.Fatalf("Linearize: %v", err)
	}
	if len(order) != 2 || order[0].Name != "session" || order[1].Name != "eval" {
		names := make([]string, len(order))
		for i, m := range order {
			names[i] = m.Name
		}
		t.Fatalf("order = %v, want [session eval]", names)
	}
}

func TestLinearize_UnsatisfiableRequiresErrors(t *testing.T) {
	mw := Middleware{Descriptor{Name: "lonely", Requires: NewOpSet("nothing-provides-this"), Handler: noopHandler}}
	_, err := Linearize([]Middleware{mw})
	if err == nil {
		t.Fatalf("expected an error for an unsatisfiable Requires")
	}
	if !strings.Contains(err.Error(), "nothing-provides-this") {
		t.Fatalf("error %q does not name the unmet op", err)
	}
}

func TestLinearize_CycleErrors(t *testing.T) {
	a := Middleware{Descriptor{Name: "a", Handles: NewOpSet("a-op"), Requires: NewOpSet("b-op"), Handler: noopHandler}}
	b := Middleware{Descriptor{Name: "b", Handles: NewOpSet("b-op"), Requires: NewOpSet("a-op"), Handler: noopHandler}}

	_, err := Linearize([]Middleware{a, b})
	if err == nil {
		t.Fatalf("expected an error for a cyclic requirement graph")
	}
}

func TestLinearize_DeterministicTieBreak(t *testing.T) {
	// Neither middleware constrains the other, so input order wins.
	a := Middleware{Descriptor{Name: "a", Handler: noopHandler}}
	b := Middleware{Descriptor{Name: "b", Handler: noopHandler}}

	order, err := Linearize([]Middleware{a, b})
	if err != nil {
		t.Fatalf("Linearize: %v", err)
	}
	if order[0].Name != "a" || order[1].Name != "b" {
		t.Fatalf("expected input order [a b] to be preserved as the tie-break")
	}
}

func TestLinearize_ExpectsOnlyOrdersAfterTrueProvider(t *testing.T) {
	// "provider" is the canonical handler of "ctx". "extender" only ever
	// Expects "ctx" (it layers more context on top of what provider already
	// established) and never separately declares a Requires naming "ctx",
	// so it must still land after provider rather than floating free with
	// no constraint linking the two.
	provider := Middleware{Descriptor{Name: "provider", Handles: NewOpSet("ctx"), Handler: noopHandler}}
	extender := Middleware{Descriptor{Name: "extender", Expects: NewOpSet("ctx"), Handler: noopHandler}}

	order, err := Linearize([]Middleware{extender, provider})
	if err != nil {
		t.Fatalf("Linearize: %v", err)
	}
	if len(order) != 2 || order[0].Name != "provider" || order[1].Name != "extender" {
		names := make([]string, len(order))
		for i, m := range order {
			names[i] = m.Name
		}
		t.Fatalf("order = %v, want [provider extender]", names)
	}
}

func TestChain_OutermostRunsFirst(t *testing.T) {
	var calls []string
	outer := Middleware{Descriptor{Name: "outer", Handler: func(req transport.Message, send SendFunc, next NextFunc) {
		calls = append(calls, "outer-before")
		next(req, send)
		calls = append(calls, "outer-after")
	}}}
	inner := Middleware{Descriptor{Name: "inner", Handler: func(req transport.Message, send SendFunc, next NextFunc) {
		calls = append(calls, "inner")
		next(req, send)
	}}}

	entry := Chain([]Middleware{outer, inner}, func(req transport.Message, send SendFunc, _ NextFunc) {
		calls = append(calls, "terminal")
	})
	entry(transport.Message{"op": "noop"}, func(transport.Message) error { return nil })

	want := []string{"outer-before", "inner", "terminal", "outer-after"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
}

func TestUnknownOpHandler_SendsUnknownOpStatus(t *testing.T) {
	var got transport.Message
	UnknownOpHandler(transport.Message{"id": "1", "op": "bogus"}, func(m transport.Message) error {
		got = m
		return nil
	}, nil)

	if !got.HasStatus("unknown-op") || !got.HasStatus("done") {
		t.Fatalf("got %v, want status to contain unknown-op and done", got)
	}
}
