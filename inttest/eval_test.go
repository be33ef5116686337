package inttest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nrepl.dev/nrepl"
	"nrepl.dev/nrepl/client"
	"nrepl.dev/nrepl/langrt/simplelisp"
	"nrepl.dev/nrepl/transport"
)

func newTestServer(t *testing.T) (*nrepl.Server, *client.Client) {
	t.Helper()
	srv, err := nrepl.NewServer(simplelisp.New(), nrepl.WithWorkers(2))
	require.NoError(t, err)

	serverSide, clientSide := transport.NewPipe()
	srv.ServeConn(serverSide)
	c := client.New(clientSide)
	t.Cleanup(func() { _ = c.Close() })
	return srv, c
}

func cloneSession(t *testing.T, ctx context.Context, c *client.Client) string {
	t.Helper()
	id, err := (client.CloneOp{}).Exec(ctx, c)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return id
}

// Simple eval: (+ 1 2) evaluates to "3" with a final done status.
func TestEval_SimpleArithmetic(t *testing.T) {
	_, c := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session := cloneSession(t, ctx, c)

	replies, err := (client.EvalOp{Session: session, Code: client.StringCode("(+ 1 2)")}).Exec(ctx, c)
	require.NoError(t, err)
	require.NotEmpty(t, replies)

	var gotValue bool
	for _, r := range replies {
		if v, ok := r["value"]; ok {
			assert.Equal(t, "3", v)
			gotValue = true
		}
	}
	assert.True(t, gotValue, "expected a value message")
	assert.True(t, replies[len(replies)-1].HasStatus("done"))
}

// Session isolation: a def in one session must not be visible in another.
func TestEval_SessionIsolation(t *testing.T) {
	_, c := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s1 := cloneSession(t, ctx, c)
	s2 := cloneSession(t, ctx, c)

	_, err := (client.EvalOp{Session: s1, Code: client.StringCode("(def x 42)")}).Exec(ctx, c)
	require.NoError(t, err)

	replies, err := (client.EvalOp{Session: s2, Code: client.StringCode("x")}).Exec(ctx, c)
	require.Error(t, err, "x is unbound in a fresh session, so lookup must fail")
	require.NotEmpty(t, replies)
	last := replies[len(replies)-1]
	assert.True(t, last.HasStatus("done"))
}

// *1/*2/*3 rotate across sequential evals within the same session.
func TestEval_ResultSlotsRotate(t *testing.T) {
	_, c := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session := cloneSession(t, ctx, c)

	_, err := (client.EvalOp{Session: session, Code: client.StringCode("1")}).Exec(ctx, c)
	require.NoError(t, err)
	_, err = (client.EvalOp{Session: session, Code: client.StringCode("2")}).Exec(ctx, c)
	require.NoError(t, err)

	replies, err := (client.EvalOp{Session: session, Code: client.StringCode("*1")}).Exec(ctx, c)
	require.NoError(t, err)
	var value string
	for _, r := range replies {
		if v, ok := r["value"].(string); ok {
			value = v
		}
	}
	assert.Equal(t, "2", value)
}

// Interrupt: a (loop) that checks cancellation cooperatively must report
// "interrupted" strictly before any subsequent eval's "done" for the same
// session.
func TestEval_Interrupt(t *testing.T) {
	_, c := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	session := cloneSession(t, ctx, c)

	ch, err := c.Send(ctx, map[string]any{
		"op":      "eval",
		"session": session,
		"code":    "(loop [n 0] (recur (+ n 1)))",
	})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	reply, err := (client.InterruptOp{Session: session}).Exec(ctx, c)
	require.NoError(t, err)
	assert.True(t, reply.HasStatus("done"))

	var sawInterrupted bool
	for m := range ch {
		if m.HasStatus("interrupted") {
			sawInterrupted = true
		}
	}
	assert.True(t, sawInterrupted, "expected the running eval to report interrupted")
}

// Stdin round-trip: a (read-line) eval blocks, reports need-input, and
// resumes once a "stdin" op delivers a line, evaluating to what was sent.
func TestEval_StdinRoundTrip(t *testing.T) {
	_, c := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session := cloneSession(t, ctx, c)

	ch, err := c.Send(ctx, map[string]any{
		"op":      "eval",
		"session": session,
		"code":    "(read-line)",
	})
	require.NoError(t, err)

	var sawNeedInput bool
	for !sawNeedInput {
		select {
		case m, ok := <-ch:
			require.True(t, ok, "channel closed before a need-input status arrived")
			if m.HasStatus("need-input") {
				sawNeedInput = true
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for need-input")
		}
	}

	err = (client.StdinOp{Session: session, Data: "hello\n"}).Exec(ctx, c)
	require.NoError(t, err)

	var value string
	var gotDone bool
	for m := range ch {
		if v, ok := m["value"].(string); ok {
			value = v
		}
		if m.HasStatus("done") {
			gotDone = true
		}
	}
	assert.Equal(t, "hello", value)
	assert.True(t, gotDone)
}

// ls-sessions / close: a cloned session is listed, then disappears from the
// listing once closed.
func TestSessions_LsAndClose(t *testing.T) {
	_, c := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session := cloneSession(t, ctx, c)

	ids, err := (client.LsSessionsOp{}).Exec(ctx, c)
	require.NoError(t, err)
	assert.Contains(t, ids, session)

	err = (client.CloseOp{Session: session}).Exec(ctx, c)
	require.NoError(t, err)

	ids, err = (client.LsSessionsOp{}).Exec(ctx, c)
	require.NoError(t, err)
	assert.NotContains(t, ids, session)
}

// describe reports every op handled by the installed middleware stack.
func TestDescribe_ListsOps(t *testing.T) {
	_, c := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := (client.DescribeOp{}).Exec(ctx, c)
	require.NoError(t, err)
	assert.True(t, reply.HasStatus("done"))
	assert.NotEmpty(t, reply["ops"])
}

// unknown-op: a request for an op no middleware claims falls through to the
// terminal handler.
func TestUnknownOp(t *testing.T) {
	_, c := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	replies, err := c.Do(ctx, map[string]any{"op": "no-such-op"})
	require.NoError(t, err)
	require.NotEmpty(t, replies)
	assert.True(t, replies[len(replies)-1].HasStatus("unknown-op"))
}
