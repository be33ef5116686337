package nrepl

import (
	"context"
	"errors"
	"fmt"

	"nrepl.dev/nrepl/langrt"
	"nrepl.dev/nrepl/transport"
)

// evalTask is one queued evaluation: a form or set of forms to run inside a
// session's dynamic bindings, with a way to send response messages back and
// a cancellation handle for interrupt.
type evalTask struct {
	id      string // the request "id" this eval's responses are tagged with
	session *Session
	forms   []string
	send    func(transport.Message) error

	ctx    context.Context
	cancel context.CancelFunc

	done chan struct{}
}

// Evaluator runs eval tasks against a langrt.Runtime using a bounded worker
// pool shared across all sessions; each session admits at most one task at
// a time, preserving FIFO order within the session while letting different
// sessions evaluate concurrently.
type Evaluator struct {
	rt  langrt.Runtime
	sem chan struct{}

	metrics EvalMetrics
}

// EvalMetrics is the subset of metrics.Collector the evaluator reports
// into; kept as an interface here so this package does not import metrics
// directly.
type EvalMetrics interface {
	EvalStarted()
	EvalFinished()
}

type noopMetrics struct{}

func (noopMetrics) EvalStarted()  {}
func (noopMetrics) EvalFinished() {}

// NewEvaluator returns an Evaluator backed by rt with workers concurrent
// evaluations in flight at once.
func NewEvaluator(rt langrt.Runtime, workers int, m EvalMetrics) *Evaluator {
	if workers < 1 {
		workers = 1
	}
	if m == nil {
		m = noopMetrics{}
	}
	return &Evaluator{rt: rt, sem: make(chan struct{}, workers), metrics: m}
}

// Submit enqueues a task on its session and, if the session is idle, admits
// it immediately. Returns once the task has been queued (not once it has
// run).
func (e *Evaluator) Submit(t *evalTask) {
	t.session.mu.Lock()
	t.session.queue = append(t.session.queue, t)
	admitNow := !t.session.admitted
	if admitNow {
		t.session.admitted = true
	}
	t.session.mu.Unlock()

	if admitNow {
		e.runNext(t.session)
	}
}

// runNext pops the front of session's queue (if any) and runs it in a fresh
// goroutine gated by the shared worker semaphore. Called with the session
// already marked admitted by the caller, or by a task's completion handoff.
func (e *Evaluator) runNext(s *Session) {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.admitted = false
		s.mu.Unlock()
		return
	}
	t := s.queue[0]
	s.queue = s.queue[1:]
	s.current = t
	s.mu.Unlock()

	go e.run(t)
}

// run executes one eval task to completion and hands the session off to its
// next queued task, if any.
func (e *Evaluator) run(t *evalTask) {
	e.sem <- struct{}{}
	defer func() { <-e.sem }()

	e.metrics.EvalStarted()
	defer e.metrics.EvalFinished()

	bindings := t.session.snapshot()

	outW := newStreamWriter(t.send, t.session.ID, t.id, "out", t.session.getOutLimit)
	errW := newStreamWriter(t.send, t.session.ID, t.id, "err", t.session.getOutLimit)
	defer outW.Flush()
	defer errW.Flush()

	runBindings := *bindings
	runBindings.Stdout = outW
	runBindings.Stderr = errW
	runBindings.Stdin = t.session.stdin

	t.session.stdin.setActive(t.send, t.session.ID, t.id)

	status := e.evalForms(t, &runBindings)

	bindings.Namespace = runBindings.Namespace
	bindings.Results = runBindings.Results
	bindings.LastError = runBindings.LastError

	_ = outW.Flush()
	_ = errW.Flush()

	_ = t.send(transport.Message{
		"id":      t.id,
		"session": t.session.ID,
		"status":  []string{status},
	})
	if status != "done" {
		_ = t.send(transport.Message{
			"id":      t.id,
			"session": t.session.ID,
			"status":  []string{"done"},
		})
	}

	close(t.done)

	t.session.mu.Lock()
	t.session.current = nil
	t.session.mu.Unlock()
	e.runNext(t.session)
}

// evalForms evaluates each form in t in order against bindings, stopping
// and returning "interrupted" if the task's context is cancelled
// mid-sequence. If a form raises, it sends its own "eval-error"-tagged
// message and evalForms still returns "done" (the run stops at that form,
// but the task itself completed rather than being cut short). Returns
// "done" on normal completion of all forms too.
func (e *Evaluator) evalForms(t *evalTask, bindings *langrt.Bindings) (status string) {
	for _, form := range t.forms {
		select {
		case <-t.ctx.Done():
			return "interrupted"
		default:
		}

		value, err := e.rt.Eval(t.ctx, form, bindings)
		if err != nil {
			if t.ctx.Err() != nil {
				return "interrupted"
			}
			bindings.LastError = err
			fmt.Fprintf(bindings.Stderr, "%s: %s\n", form, err)
			_ = t.send(transport.Message{
				"id":      t.id,
				"session": t.session.ID,
				"ex":      exceptionTypeName(err),
				"root-ex": exceptionTypeName(rootCause(err)),
				"status":  []string{"eval-error"},
			})
			return "done"
		}

		bindings.Results.Rotate(value)
		_ = t.send(transport.Message{
			"id":      t.id,
			"session": t.session.ID,
			"value":   value,
			"ns":      bindings.Namespace,
		})
	}
	return "done"
}

// rootCause unwraps err down to the innermost error in its chain, the
// closest Go analogue to a root-cause exception in a runtime that has no
// exception-class hierarchy, only wrapped errors.
func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// exceptionTypeName renders err's dynamic type, standing in for the
// type-name an `ex`/`root-ex` field would carry in a runtime that does
// have an exception-class hierarchy.
func exceptionTypeName(err error) string {
	return fmt.Sprintf("%T", err)
}

// interruptResult reports the outcome of attempting to interrupt a
// session's running eval.
type interruptResult int

const (
	interruptNone interruptResult = iota
	interruptOK
	interruptMismatch
)

// Interrupt cancels session's currently running eval if its id matches
// interruptID (or interruptID is empty, meaning "whatever is running").
// The "interrupted" status for the cancelled eval is guaranteed to be sent
// strictly before this call returns (via plain Go program order: Interrupt
// cancels the task's context, then waits on the task's done channel, which
// the task closes only after it has sent its own status messages),
// so a caller never observes the outcome of the *next* eval before this
// one's interruption has been reported.
func (e *Evaluator) Interrupt(s *Session, interruptID string) interruptResult {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()

	if cur == nil {
		return interruptNone
	}
	if interruptID != "" && cur.id != interruptID {
		return interruptMismatch
	}

	cur.cancel()
	<-cur.done
	return interruptOK
}
