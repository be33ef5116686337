package nrepl

import (
	"context"

	"nrepl.dev/nrepl/langrt"
	"nrepl.dev/nrepl/transport"
)

// LoadFileMiddleware handles "load-file": evaluating the content of a file
// as if its forms had been typed at the REPL in sequence. It builds its
// own evalTask and submits it to the same Evaluator that EvalMiddleware
// uses, so a load-file queues and can be interrupted like an eval.
func LoadFileMiddleware(reg *Registry, rt langrt.Runtime, ev *Evaluator) Middleware {
	return Middleware{Descriptor{
		Name:     "load-file",
		Requires: NewOpSet("session"),
		Handles:  NewOpSet("load-file"),
		Handler: func(req transport.Message, send SendFunc, next NextFunc) {
			if req.Op() != "load-file" {
				next(req, send)
				return
			}

			s, ok := reg.Get(req.Session())
			if !ok {
				_ = send(transport.Message{
					"id":     req.ID(),
					"status": []string{"error", "unknown-session", "done"},
				})
				return
			}

			forms, err := rt.Forms(req.GetString("file"))
			if err != nil {
				_ = send(transport.Message{
					"id":     req.ID(),
					"ex":     err.Error(),
					"status": []string{"eval-error", "done"},
				})
				return
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
		},
	}}
}
