// Package inttest drives a full nrepl.Server through an in-memory
// transport.PipeTransport and exercises end-to-end client/server scenarios.
package inttest

import (
	"bytes"
	"strconv"
	"testing"
)

// logWriter routes writes to t.Log, quoting them so whitespace/control
// bytes are visible.
type logWriter struct {
	t      *testing.T
	prefix string
	buf    bytes.Buffer
}

func newLogWriter(prefix string, t *testing.T) *logWriter {
	return &logWriter{t: t, prefix: prefix}
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.t.Log(w.prefix, strconv.Quote(string(p)))
	return len(p), nil
}
