package nrepl

import "nrepl.dev/nrepl/transport"

// UnknownOpHandler is the terminal handler at the bottom of every
// middleware chain: any request that reaches it was not claimed by any
// middleware's Handles set.
func UnknownOpHandler(req transport.Message, send SendFunc, _ NextFunc) {
	_ = send(transport.Message{
		"id":     req.ID(),
		"op":     req.Op(),
		"status": NewStatus("error", "unknown-op", "done").Strings(),
	})
}
