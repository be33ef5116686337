package nrepl

import "nrepl.dev/nrepl/transport"

// Version is the protocol/server version reported by "describe".
const Version = "0.1.0"

// DescribeMiddleware handles "describe": reporting every op name claimed by
// any middleware in the stack and the server version.
func DescribeMiddleware(stack []Middleware) Middleware {
	ops := make([]any, 0)
	seen := map[string]bool{}
	for _, m := range stack {
		for op := range m.Handles.All() {
			if !seen[op] {
				seen[op] = true
				ops = append(ops, op)
			}
		}
	}
	ops = append(ops, "describe")

	return Middleware{Descriptor{
		Name:    "describe",
		Handles: NewOpSet("describe"),
		Handler: func(req transport.Message, send SendFunc, next NextFunc) {
			if req.Op() != "describe" {
				next(req, send)
				return
			}
			_ = send(transport.Message{
				"id":      req.ID(),
				"ops":     ops,
				"version": Version,
				"status":  []string{"done"},
			})
		},
	}}
}
