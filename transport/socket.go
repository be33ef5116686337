package transport

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"syscall"
	"time"

	"nrepl.dev/nrepl/bencode"
)

// mailboxSize bounds the number of decoded-but-not-yet-Recv'd messages the
// background reader will buffer before blocking.
const mailboxSize = 64

// SocketTransport wraps a byte-stream connection (typically a *net.TCPConn)
// in the Bencode wire protocol. A background goroutine continuously decodes
// incoming messages and posts them to a bounded mailbox; Recv pulls from
// that mailbox: a single always-running receive goroutine that logs and
// breaks on the first fatal error, then drains pending waiters.
type SocketTransport struct {
	conn io.ReadWriteCloser

	sendMu sync.Mutex
	enc    *bencode.Encoder

	mailbox chan Message

	closeOnce sync.Once
	closed    chan struct{}

	mu      sync.Mutex
	fatal   error // sticky error surfaced by all Recv calls after the reader dies
	fatalOK bool
}

// NewSocketTransport wraps conn (any io.ReadWriteCloser; normally a
// net.Conn) in a Bencode-framed Transport and starts its background reader.
func NewSocketTransport(conn io.ReadWriteCloser) *SocketTransport {
	t := &SocketTransport{
		conn:    conn,
		enc:     bencode.NewEncoder(conn),
		mailbox: make(chan Message, mailboxSize),
		closed:  make(chan struct{}),
	}
	go t.recvLoop()
	return t
}

// Send writes one message to the wire, holding the output-side lock so
// concurrent senders still produce a well-framed stream.
func (t *SocketTransport) Send(msg Message) error {
	select {
	case <-t.closed:
		return ErrClosed
	default:
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	if err := t.enc.Encode(encodeMessage(msg)); err != nil {
		return fmt.Errorf("transport: send failed: %w", err)
	}
	return nil
}

// recvLoop repeatedly decodes one message from the connection and posts it
// to the mailbox. It exits on the first decode/read error, recording it as
// the sticky fatal error and unblocking every future Recv with ErrEOF (or
// the recorded protocol error, if decoding - rather than the stream ending
// cleanly - is what failed).
func (t *SocketTransport) recvLoop() {
	dec := bencode.NewDecoder(t.conn)
	for {
		v, err := dec.Decode()
		if err != nil {
			t.setFatal(err)
			break
		}

		dict, err := bencode.AsDict(v)
		if err != nil {
			t.setFatal(err)
			break
		}

		select {
		case t.mailbox <- decodeMessage(dict):
		case <-t.closed:
			return
		}
	}
	t.closeOnce.Do(func() { close(t.closed) })
}

func (t *SocketTransport) setFatal(err error) {
	if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		log.Printf("transport: recv: %v", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.fatalOK {
		t.fatal = err
		t.fatalOK = true
	}
}

// Recv waits up to timeout for the next message. Forever waits
// indefinitely. Once the connection has ended, every subsequent call
// returns immediately: with the recorded *bencode.ProtocolError if
// decoding failed, and with ErrEOF otherwise.
func (t *SocketTransport) Recv(timeout time.Duration) (Message, error) {
	var timer *time.Timer
	var timerC <-chan time.Time
	if timeout >= 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		timerC = timer.C
	}

	select {
	case msg, ok := <-t.mailbox:
		if !ok {
			return nil, t.eofErr()
		}
		return msg, nil
	case <-t.closed:
		// Drain any messages that raced the close signal before
		// surfacing EOF.
		select {
		case msg, ok := <-t.mailbox:
			if ok {
				return msg, nil
			}
		default:
		}
		return nil, t.eofErr()
	case <-timerC:
		return nil, nil
	}
}

func (t *SocketTransport) eofErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fatalOK && !errors.Is(t.fatal, io.EOF) {
		var perr *bencode.ProtocolError
		if errors.As(t.fatal, &perr) {
			return t.fatal
		}
	}
	return ErrEOF
}

// Close tears down the underlying connection. Any blocked Recv unblocks
// with ErrEOF; in-flight Send calls may fail silently against the now-dead
// connection.
func (t *SocketTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	err := t.conn.Close()
	if err != nil &&
		!errors.Is(err, net.ErrClosed) &&
		!errors.Is(err, io.EOF) &&
		!errors.Is(err, syscall.EPIPE) {
		return err
	}
	return nil
}

var _ Transport = (*SocketTransport)(nil)

// DialTCP is a convenience constructor that dials addr and wraps the
// resulting connection in a SocketTransport, used by the ack sub-protocol
// client and by test/demo clients.
func DialTCP(network, addr string, timeout time.Duration) (*SocketTransport, error) {
	conn, err := net.DialTimeout(network, addr, timeout)
	if err != nil {
		return nil, err
	}
	return NewSocketTransport(conn), nil
}
