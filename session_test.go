package nrepl

import (
	"testing"

	"nrepl.dev/nrepl/langrt/simplelisp"
	"nrepl.dev/nrepl/transport"
)

func TestSession_OutLimitTakesEffectOnNextWrite(t *testing.T) {
	s := newSession("s1", simplelisp.New())

	if got := s.getOutLimit(); got != defaultOutLimit {
		t.Fatalf("getOutLimit() = %d, want default %d", got, defaultOutLimit)
	}

	var flushed []transport.Message
	send := func(m transport.Message) error {
		flushed = append(flushed, m)
		return nil
	}

	w := newStreamWriter(send, s.ID, "req-1", "out", s.getOutLimit)

	s.setOutLimit(4)
	if got := s.getOutLimit(); got != 4 {
		t.Fatalf("getOutLimit() after setOutLimit(4) = %d, want 4", got)
	}

	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(flushed) != 1 {
		t.Fatalf("expected a flush once the new, lower limit is crossed, got %d messages", len(flushed))
	}
	if flushed[0]["out"] != "hello" {
		t.Fatalf("flushed out = %v, want %q", flushed[0]["out"], "hello")
	}
}

func TestSession_CloneIsolatesVars(t *testing.T) {
	s := newSession("parent", simplelisp.New())
	s.bindings.Vars["x"] = "42"

	cloned := s.clone()
	cloned.Vars["x"] = "0"

	if s.bindings.Vars["x"] != "42" {
		t.Fatalf("parent binding mutated by clone: got %v", s.bindings.Vars["x"])
	}
}
