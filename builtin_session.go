package nrepl

import "nrepl.dev/nrepl/transport"

// SessionMiddleware handles "clone", "close", and "ls-sessions", and wraps
// every other op with a default-session guarantee: a request naming no
// session id is assigned a freshly cloned one before being forwarded, so
// downstream handlers can always assume req.Session() is populated and
// every op implicitly runs inside a session.
func SessionMiddleware(reg *Registry) Middleware {
	return Middleware{Descriptor{
		Name:    "session",
		Handles: NewOpSet("clone", "close", "ls-sessions"),
		Expects: NewOpSet("session"),
		Handler: func(req transport.Message, send SendFunc, next NextFunc) {
			switch req.Op() {
			case "clone":
				var parent *Session
				if id := req.Session(); id != "" {
					parent, _ = reg.Get(id)
				}
				s := reg.Clone(parent)
				_ = send(transport.Message{
					"id":          req.ID(),
					"new-session": s.ID,
					"status":      []string{"done"},
				})
				return

			case "close":
				id := req.Session()
				reg.Close(id)
				_ = send(transport.Message{
					"id":      req.ID(),
					"session": id,
					"status":  []string{"done"},
				})
				return

			case "ls-sessions":
				sessions := make([]any, 0)
				for _, id := range reg.IDs() {
					sessions = append(sessions, id)
				}
				_ = send(transport.Message{
					"id":       req.ID(),
					"sessions": sessions,
					"status":   []string{"done"},
				})
				return
			}

			if req.Session() == "" {
				s := reg.Create()
				req = req.With("session", s.ID)
			}
			next(req, send)
		},
	}}
}
