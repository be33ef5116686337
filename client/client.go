// Package client implements a typed client for talking to an nrepl server:
// a Do/recvLoop correlation layer, plus typed op builders for each
// supported op.
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"nrepl.dev/nrepl"
	"nrepl.dev/nrepl/transport"
)

// ErrClosed is returned by in-flight calls once the client has been closed.
var ErrClosed = errors.New("client: closed")

// pendingCall collects every response message tagged with one request id
// until a message carrying a "done" status arrives.
type pendingCall struct {
	ch  chan transport.Message
	ctx context.Context
}

// Client correlates requests and responses over a transport.Transport by
// message id.
type Client struct {
	tr  transport.Transport
	seq int

	mu      sync.Mutex
	pending map[string]*pendingCall
	closing bool
}

// New wraps tr in a Client and starts its background receive loop.
func New(tr transport.Transport) *Client {
	c := &Client{
		tr:      tr,
		pending: make(map[string]*pendingCall),
	}
	go c.recvLoop()
	return c
}

func (c *Client) nextID() string {
	c.mu.Lock()
	c.seq++
	n := c.seq
	c.mu.Unlock()
	return fmt.Sprintf("%s-%d", uuid.NewString()[:8], n)
}

// recvLoop dispatches every inbound message to the pending call matching its
// id, closing that call's channel once a "done" status message arrives.
func (c *Client) recvLoop() {
	for {
		msg, err := c.tr.Recv(transport.Forever)
		if err != nil {
			if !errors.Is(err, transport.ErrEOF) {
				log.Printf("client: %v", &nrepl.TransportError{Err: err})
			}
			c.failAll()
			return
		}
		if msg == nil {
			continue
		}

		id := msg.ID()
		c.mu.Lock()
		call, ok := c.pending[id]
		if ok && msg.HasStatus("done") {
			delete(c.pending, id)
		}
		c.mu.Unlock()

		if !ok {
			continue
		}

		select {
		case call.ch <- msg:
		case <-call.ctx.Done():
		}
		if msg.HasStatus("done") {
			close(call.ch)
		}
	}
}

func (c *Client) failAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, call := range c.pending {
		close(call.ch)
		delete(c.pending, id)
	}
}

// Send issues msg (filling in an id if absent) and returns a channel that
// receives every response tagged with that id, closed once a "done" status
// arrives or the client is closed.
func (c *Client) Send(ctx context.Context, msg transport.Message) (<-chan transport.Message, error) {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if msg.ID() == "" {
		msg = msg.With("id", c.nextID())
	}
	id := msg.ID()
	ch := make(chan transport.Message, 8)
	c.pending[id] = &pendingCall{ch: ch, ctx: ctx}
	c.mu.Unlock()

	if err := c.tr.Send(msg); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("client: send failed: %w", err)
	}
	return ch, nil
}

// Do issues msg and collects every response up to and including the message
// carrying a "done" status.
func (c *Client) Do(ctx context.Context, msg transport.Message) ([]transport.Message, error) {
	ch, err := c.Send(ctx, msg)
	if err != nil {
		return nil, err
	}

	var out []transport.Message
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return out, nil
			}
			out = append(out, m)
		case <-ctx.Done():
			return out, ctx.Err()
		}
	}
}

// Close closes the underlying transport and unblocks all pending calls.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()
	return c.tr.Close()
}
