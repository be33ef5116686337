package nrepl

import (
	"context"
	"fmt"

	"nrepl.dev/nrepl/langrt"
	"nrepl.dev/nrepl/transport"
)

// EvalMiddleware handles "eval" and "interrupt": splitting submitted code
// into forms via the langrt.Runtime, submitting an evalTask to ev, and
// relaying interrupt requests to it.
func EvalMiddleware(reg *Registry, rt langrt.Runtime, ev *Evaluator) Middleware {
	return Middleware{Descriptor{
		Name:     "eval",
		Requires: NewOpSet("session"),
		Handles:  NewOpSet("eval", "interrupt"),
		Handler: func(req transport.Message, send SendFunc, next NextFunc) {
			switch req.Op() {
			case "eval":
				handleEval(req, send, reg, rt, ev)
				return
			case "interrupt":
				handleInterrupt(req, send, reg, ev)
				return
			}
			next(req, send)
		},
	}}
}

func handleEval(req transport.Message, send SendFunc, reg *Registry, rt langrt.Runtime, ev *Evaluator) {
	s, ok := reg.Get(req.Session())
	if !ok {
		_ = send(transport.Message{
			"id":     req.ID(),
			"status": []string{"error", "unknown-session", "done"},
		})
		return
	}

	var forms []string
	if raw, ok := req["forms"].([]any); ok {
		for _, f := range raw {
			if str, ok := f.(string); ok {
				forms = append(forms, str)
			}
		}
	} else {
		source := req.GetString("code")
		parsed, err := rt.Forms(source)
		if err != nil {
			_ = send(transport.Message{
				"id":     req.ID(),
				"ex":     fmt.Sprintf("parse error: %s", err),
				"status": []string{"eval-error", "done"},
			})
			return
		}
		forms = parsed
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &evalTask{
		id:      req.ID(),
		session: s,
		forms:   forms,
		send:    send,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	ev.Submit(t)
}

func handleInterrupt(req transport.Message, send SendFunc, reg *Registry, ev *Evaluator) {
	s, ok := reg.Get(req.Session())
	if !ok {
		_ = send(transport.Message{
			"id":     req.ID(),
			"status": []string{"error", "unknown-session", "done"},
		})
		return
	}

	switch ev.Interrupt(s, req.GetString("interrupt-id")) {
	case interruptNone:
		_ = send(transport.Message{"id": req.ID(), "status": []string{"session-idle", "done"}})
	case interruptMismatch:
		_ = send(transport.Message{"id": req.ID(), "status": []string{"interrupt-id-mismatch", "done"}})
	case interruptOK:
		_ = send(transport.Message{"id": req.ID(), "status": []string{"done"}})
	}
}
