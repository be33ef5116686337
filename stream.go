package nrepl

import (
	"io"
	"sync"

	"nrepl.dev/nrepl/transport"
)

// streamWriter is an io.Writer that buffers bytes written to a session's
// stdout/stderr until outLimit is reached (or Flush is called), then emits
// them as a response message tagged with both the session id and the
// request id of the eval that produced them, so asynchronous output can
// always be attributed back to the request that produced it.
//
// A fresh streamWriter is created per eval task rather than reused: tagging
// follows the id captured at construction time instead of a mutable
// "current message" field shared across evals, so output that arrives
// after a task's own "done" is still tagged with that task's id rather
// than whichever eval happens to be running next.
type streamWriter struct {
	send      func(transport.Message) error
	session   string
	requestID string
	field     string // "out" or "err"
	limit     func() int

	mu  sync.Mutex
	buf []byte
}

func newStreamWriter(send func(transport.Message) error, session, requestID, field string, limit func() int) *streamWriter {
	return &streamWriter{send: send, session: session, requestID: requestID, field: field, limit: limit}
}

func (w *streamWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	w.buf = append(w.buf, p...)
	full := w.limit()
	var flush []byte
	if full > 0 && len(w.buf) >= full {
		flush = w.buf
		w.buf = nil
	}
	w.mu.Unlock()

	if flush != nil {
		if err := w.emit(flush); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Flush emits any buffered bytes immediately, regardless of the limit. Eval
// tasks call this at task completion so trailing output isn't lost waiting
// for the threshold.
func (w *streamWriter) Flush() error {
	w.mu.Lock()
	flush := w.buf
	w.buf = nil
	w.mu.Unlock()

	if len(flush) == 0 {
		return nil
	}
	return w.emit(flush)
}

func (w *streamWriter) emit(data []byte) error {
	return w.send(transport.Message{
		"id":      w.requestID,
		"session": w.session,
		w.field:   string(data),
	})
}

// needInputReader backs a session's stdin: a blocking reader fed by "stdin"
// ops. The evaluator's eval task installs it as langrt.Bindings.Stdin and
// calls setActive before running, so a Read that finds nothing buffered can
// announce which request it is blocking on before it waits.
type needInputReader struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []byte
	closed  bool

	send      func(transport.Message) error
	session   string
	requestID string
}

func newNeedInputReader() *needInputReader {
	r := &needInputReader{}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// setActive records which running eval a blocking Read should attribute a
// "need-input" status to. Called once per eval task, before it starts
// evaluating forms; safe because a session admits at most one eval task at
// a time.
func (r *needInputReader) setActive(send func(transport.Message) error, session, requestID string) {
	r.mu.Lock()
	r.send = send
	r.session = session
	r.requestID = requestID
	r.mu.Unlock()
}

// Feed appends data delivered by a "stdin" op and wakes any blocked Read.
func (r *needInputReader) Feed(data []byte) {
	r.mu.Lock()
	r.pending = append(r.pending, data...)
	r.cond.Broadcast()
	r.mu.Unlock()
}

// Close marks the reader as exhausted; a blocked Read returns io.EOF.
func (r *needInputReader) Close() {
	r.mu.Lock()
	r.closed = true
	r.cond.Broadcast()
	r.mu.Unlock()
}

func (r *needInputReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	if len(r.pending) == 0 && !r.closed {
		send, session, requestID := r.send, r.session, r.requestID
		r.mu.Unlock()
		if send != nil {
			_ = send(transport.Message{
				"id":      requestID,
				"session": session,
				"status":  []string{"need-input"},
			})
		}
		r.mu.Lock()
	}
	defer r.mu.Unlock()
	for len(r.pending) == 0 && !r.closed {
		r.cond.Wait()
	}
	if len(r.pending) == 0 && r.closed {
		return 0, io.EOF
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
