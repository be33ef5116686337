package nrepl

import (
	"errors"
	"log"
	"sync"

	"nrepl.dev/nrepl/transport"
)

// Conn pumps messages from one client transport through a linearized
// middleware chain. One Conn per accepted connection: many sessions may be
// driven through one connection, or one session driven across reconnects by
// naming it explicitly.
type Conn struct {
	tr    transport.Transport
	entry NextFunc

	sendMu sync.Mutex
}

// NewConn wraps tr and dispatches every inbound message through entry.
func NewConn(tr transport.Transport, entry NextFunc) *Conn {
	return &Conn{tr: tr, entry: entry}
}

// Serve reads messages from the connection until EOF, dispatching each one
// to a fresh goroutine so a slow or blocked eval on one request does not
// stall receipt of the next (e.g. an "interrupt" sent while an "eval" is
// still running). Returns once the transport reports EOF.
func (c *Conn) Serve() {
	var wg sync.WaitGroup
	for {
		msg, err := c.tr.Recv(transport.Forever)
		if err != nil {
			if !errors.Is(err, transport.ErrEOF) {
				log.Printf("nrepl: %v", &TransportError{Err: err})
			}
			break
		}
		if msg == nil {
			continue
		}

		wg.Add(1)
		go func(msg transport.Message) {
			defer wg.Done()
			c.dispatch(msg)
		}(msg)
	}
	wg.Wait()
}

// dispatch runs one request through the middleware chain, recovering a
// panicking handler so it cannot take down the whole connection.
func (c *Conn) dispatch(req transport.Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("nrepl: %v", &HandlerError{Op: req.Op(), Recovered: r})
			_ = c.send(transport.Message{
				"id":     req.ID(),
				"status": NewStatus("error", "done").Strings(),
			})
		}
	}()
	c.entry(req, c.send)
}

// send serializes concurrent writers (multiple in-flight evals on the same
// connection may both produce output at once) before handing off to the
// transport, which itself also serializes at the wire-framing layer.
func (c *Conn) send(msg transport.Message) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.tr.Send(msg)
}
