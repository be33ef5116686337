package nrepl

import "nrepl.dev/nrepl/transport"

// LsMiddlewareMiddleware handles "ls-middleware", a small diagnostic op
// reporting the names of every other installed middleware, in assembly
// order (the describe and ls-middleware middlewares themselves are built
// from that same list and so are not included).
func LsMiddlewareMiddleware(stack []Middleware) Middleware {
	names := make([]any, len(stack))
	for i, m := range stack {
		names[i] = m.Name
	}

	return Middleware{Descriptor{
		Name:    "ls-middleware",
		Handles: NewOpSet("ls-middleware"),
		Handler: func(req transport.Message, send SendFunc, next NextFunc) {
			if req.Op() != "ls-middleware" {
				next(req, send)
				return
			}
			_ = send(transport.Message{
				"id":         req.ID(),
				"middleware": names,
				"status":     []string{"done"},
			})
		},
	}}
}
