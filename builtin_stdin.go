package nrepl

import "nrepl.dev/nrepl/transport"

// StdinMiddleware (named "add-stdin") handles "stdin": feeding data to a
// session's stdin stream for an evaluation currently blocked reading it.
func StdinMiddleware(reg *Registry) Middleware {
	return Middleware{Descriptor{
		Name:     "add-stdin",
		Requires: NewOpSet("session"),
		Handles:  NewOpSet("stdin"),
		Handler: func(req transport.Message, send SendFunc, next NextFunc) {
			if req.Op() != "stdin" {
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

			s.stdin.Feed(req.GetBytes("stdin"))
			_ = send(transport.Message{"id": req.ID(), "status": []string{"done"}})
		},
	}}
}
