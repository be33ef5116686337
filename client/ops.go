package client

import (
	"context"
	"errors"
	"fmt"

	"nrepl.dev/nrepl"
	"nrepl.dev/nrepl/transport"
)

// EvalOp issues an "eval" op and returns every response up to "done": a
// typed request struct with an Exec method that drives the underlying
// session.
type EvalOp struct {
	Session string
	Code    Code
}

func (op EvalOp) Exec(ctx context.Context, c *Client) ([]transport.Message, error) {
	key, val := op.Code.field()
	msg := transport.Message{"op": "eval", "session": op.Session, key: val}
	replies, err := c.Do(ctx, msg)
	if err != nil {
		return replies, err
	}
	return replies, evalErrors(op.Session, replies)
}

// evalErrors collects a typed *nrepl.UnknownSessionError for every
// "unknown-session" response and a typed *nrepl.EvaluationError for every
// "eval-error" response among replies, returned as an nrepl.Errs whenever
// there is at least one. Returns nil if every response was unproblematic.
func evalErrors(session string, replies []transport.Message) error {
	var errs nrepl.Errs
	for _, r := range replies {
		if r.HasStatus("unknown-session") {
			errs = append(errs, &nrepl.UnknownSessionError{Session: session})
			continue
		}
		if r.HasStatus("eval-error") {
			errs = append(errs, &nrepl.EvaluationError{
				Form: r.GetString("ex"),
				Err:  errors.New(r.GetString("root-ex")),
			})
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// InterruptOp issues an "interrupt" op for the given eval id within a
// session.
type InterruptOp struct {
	Session     string
	InterruptID string
}

func (op InterruptOp) Exec(ctx context.Context, c *Client) (transport.Message, error) {
	msg := transport.Message{"op": "interrupt", "session": op.Session, "interrupt-id": op.InterruptID}
	replies, err := c.Do(ctx, msg)
	reply, err := lastOrErr(replies, err)
	if err != nil {
		return reply, err
	}
	if reply.HasStatus("interrupt-id-mismatch") {
		return reply, &nrepl.InterruptMismatchError{InterruptID: op.InterruptID}
	}
	if reply.HasStatus("unknown-session") {
		return reply, &nrepl.UnknownSessionError{Session: op.Session}
	}
	return reply, nil
}

// CloneOp issues a "clone" op, returning the new session id.
type CloneOp struct {
	Session string
}

func (op CloneOp) Exec(ctx context.Context, c *Client) (string, error) {
	msg := transport.Message{"op": "clone"}
	if op.Session != "" {
		msg["session"] = op.Session
	}
	replies, err := c.Do(ctx, msg)
	reply, err := lastOrErr(replies, err)
	if err != nil {
		return "", err
	}
	newID := reply.GetString("new-session")
	if newID == "" {
		return "", fmt.Errorf("client: clone: no new-session in reply")
	}
	return newID, nil
}

// CloseOp issues a "close" op, terminating a session.
type CloseOp struct {
	Session string
}

func (op CloseOp) Exec(ctx context.Context, c *Client) error {
	msg := transport.Message{"op": "close", "session": op.Session}
	replies, err := c.Do(ctx, msg)
	_, err = lastOrErr(replies, err)
	return err
}

// LsSessionsOp issues a "ls-sessions" op, listing known session ids.
type LsSessionsOp struct{}

func (op LsSessionsOp) Exec(ctx context.Context, c *Client) ([]string, error) {
	msg := transport.Message{"op": "ls-sessions"}
	replies, err := c.Do(ctx, msg)
	reply, err := lastOrErr(replies, err)
	if err != nil {
		return nil, err
	}
	return reply.GetStrings("sessions"), nil
}

// StdinOp issues a "stdin" op, delivering data for an evaluation blocked
// reading stdin.
type StdinOp struct {
	Session string
	Data    string
}

func (op StdinOp) Exec(ctx context.Context, c *Client) error {
	msg := transport.Message{"op": "stdin", "session": op.Session, "stdin": op.Data}
	replies, err := c.Do(ctx, msg)
	reply, err := lastOrErr(replies, err)
	if err != nil {
		return err
	}
	if reply.HasStatus("unknown-session") {
		return &nrepl.UnknownSessionError{Session: op.Session}
	}
	return nil
}

// LoadFileOp issues a "load-file" op, evaluating file content as if typed at
// the REPL.
type LoadFileOp struct {
	Session  string
	FileName string
	FilePath string
	Content  string
}

func (op LoadFileOp) Exec(ctx context.Context, c *Client) ([]transport.Message, error) {
	msg := transport.Message{
		"op":        "load-file",
		"session":   op.Session,
		"file":      op.Content,
		"file-name": op.FileName,
		"file-path": op.FilePath,
	}
	replies, err := c.Do(ctx, msg)
	if err != nil {
		return replies, err
	}
	return replies, evalErrors(op.Session, replies)
}

// DescribeOp issues a "describe" op, retrieving server metadata: known ops
// and version.
type DescribeOp struct{}

func (op DescribeOp) Exec(ctx context.Context, c *Client) (transport.Message, error) {
	msg := transport.Message{"op": "describe"}
	replies, err := c.Do(ctx, msg)
	return lastOrErr(replies, err)
}

func lastOrErr(replies []transport.Message, err error) (transport.Message, error) {
	if err != nil {
		return nil, err
	}
	if len(replies) == 0 {
		return nil, fmt.Errorf("client: no reply received")
	}
	reply := replies[len(replies)-1]
	if reply.HasStatus("unknown-op") {
		return reply, &nrepl.UnknownOpError{Op: reply.Op()}
	}
	return reply, nil
}
