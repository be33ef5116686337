package nrepl

import (
	"context"
	"sync"
	"testing"
	"time"

	"nrepl.dev/nrepl/langrt/simplelisp"
	"nrepl.dev/nrepl/transport"
)

func collectSends(t *testing.T) (func(transport.Message) error, func() []transport.Message) {
	t.Helper()
	var mu sync.Mutex
	var got []transport.Message
	send := func(m transport.Message) error {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
		return nil
	}
	read := func() []transport.Message {
		mu.Lock()
		defer mu.Unlock()
		out := make([]transport.Message, len(got))
		copy(out, got)
		return out
	}
	return send, read
}

func submitAndWait(t *testing.T, ev *Evaluator, s *Session, id string, forms []string, send func(transport.Message) error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	task := &evalTask{id: id, session: s, forms: forms, send: send, ctx: ctx, cancel: cancel, done: make(chan struct{})}
	ev.Submit(task)
	select {
	case <-task.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("eval task %s did not complete in time", id)
	}
}

func TestEvaluator_SequentialEvalsWithinSession(t *testing.T) {
	rt := simplelisp.New()
	ev := NewEvaluator(rt, 4, nil)
	s := newSession("s1", rt)
	send, reads := collectSends(t)

	submitAndWait(t, ev, s, "req-1", []string{"(def x 10)"}, send)
	submitAndWait(t, ev, s, "req-2", []string{"x"}, send)

	var sawValue bool
	for _, m := range reads() {
		if v, ok := m["value"].(string); ok && m.ID() == "req-2" {
			if v != "10" {
				t.Fatalf("value = %q, want %q", v, "10")
			}
			sawValue = true
		}
	}
	if !sawValue {
		t.Fatalf("expected a value message for req-2")
	}
}

func TestEvaluator_AllConcurrentSubmitsComplete(t *testing.T) {
	rt := simplelisp.New()
	ev := NewEvaluator(rt, 4, nil)
	s := newSession("s1", rt)
	send, reads := collectSends(t)

	var wg sync.WaitGroup
	for i := 1; i <= 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ctx, cancel := context.WithCancel(context.Background())
			task := &evalTask{
				id:      itoa(n),
				session: s,
				forms:   []string{"(+ 1 1)"},
				send:    send,
				ctx:     ctx,
				cancel:  cancel,
				done:    make(chan struct{}),
			}
			ev.Submit(task)
			<-task.done
		}(i)
	}
	wg.Wait()

	doneCount := 0
	for _, m := range reads() {
		if m.HasStatus("done") {
			doneCount++
		}
	}
	if doneCount != 5 {
		t.Fatalf("got %d done statuses, want 5", doneCount)
	}
}

func TestEvaluator_Interrupt(t *testing.T) {
	rt := simplelisp.New()
	ev := NewEvaluator(rt, 4, nil)
	s := newSession("s1", rt)
	send, reads := collectSends(t)

	ctx, cancel := context.WithCancel(context.Background())
	task := &evalTask{
		id:      "loop-1",
		session: s,
		forms:   []string{"(loop [n 0] (recur (+ n 1)))"},
		send:    send,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	ev.Submit(task)

	time.Sleep(20 * time.Millisecond)
	result := ev.Interrupt(s, "")
	if result != interruptOK {
		t.Fatalf("Interrupt result = %v, want interruptOK", result)
	}

	var sawInterrupted, sawDoneAfter bool
	for _, m := range reads() {
		if m.HasStatus("interrupted") {
			sawInterrupted = true
			continue
		}
		if sawInterrupted && m.ID() == "loop-1" && m.HasStatus("done") {
			sawDoneAfter = true
		}
	}
	if !sawInterrupted {
		t.Fatalf("expected an interrupted status message")
	}
	if !sawDoneAfter {
		t.Fatalf("expected a terminal done status to follow interrupted, for the same eval id")
	}
}

func TestEvaluator_InterruptWithNoRunningEval(t *testing.T) {
	rt := simplelisp.New()
	ev := NewEvaluator(rt, 4, nil)
	s := newSession("s1", rt)

	if result := ev.Interrupt(s, ""); result != interruptNone {
		t.Fatalf("Interrupt on idle session = %v, want interruptNone", result)
	}
}

func itoa(n int) string {
	digits := "0123456789"
	if n == 0 {
		return "0"
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{digits[n%10]}, buf...)
		n /= 10
	}
	return string(buf)
}
