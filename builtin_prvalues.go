package nrepl

import "nrepl.dev/nrepl/transport"

// PrValuesMiddleware handles "pr-values": reporting a session's current
// *1/*2/*3 result slots without evaluating anything new.
func PrValuesMiddleware(reg *Registry) Middleware {
	return Middleware{Descriptor{
		Name:     "pr-values",
		Requires: NewOpSet("session"),
		Handles:  NewOpSet("pr-values"),
		Handler: func(req transport.Message, send SendFunc, next NextFunc) {
			if req.Op() != "pr-values" {
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

			b := s.snapshot()
			_ = send(transport.Message{
				"id":     req.ID(),
				"*1":     b.Results.Star1,
				"*2":     b.Results.Star2,
				"*3":     b.Results.Star3,
				"status": []string{"done"},
			})
		},
	}}
}
