// Package transport implements the bidirectional, message-framed channel
// nREPL sessions talk over: a socket transport for real
// connections and an in-memory paired transport for tests and in-process
// embedding.
package transport

import (
	"errors"
	"time"
)

// ErrEOF is returned by Recv exactly once after the channel has been
// closed, and on every subsequent call after that.
var ErrEOF = errors.New("transport: EOF")

// ErrClosed is returned by Send once the transport has been closed.
var ErrClosed = errors.New("transport: closed")

// Forever can be passed to Recv to wait indefinitely.
const Forever time.Duration = -1

// Transport is a bidirectional message channel between a client and the
// server.
type Transport interface {
	// Send writes msg to the peer. Safe to call concurrently from any
	// number of producers; serialization is the transport's
	// responsibility.
	Send(msg Message) error

	// Recv blocks for up to timeout for the next inbound message. Forever
	// blocks indefinitely. If no message arrives within timeout, Recv
	// returns (nil, nil): a timeout is not an error and does not poison
	// the channel.
	Recv(timeout time.Duration) (Message, error)

	// Close tears down the transport. Recv calls blocked on it unblock
	// and return ErrEOF.
	Close() error
}
