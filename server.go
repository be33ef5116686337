package nrepl

import (
	"fmt"
	"log"
	"net"
	"time"

	"nrepl.dev/nrepl/langrt"
	"nrepl.dev/nrepl/transport"
)

// ServerMetrics is the subset of metrics.Collector the server reports
// into.
type ServerMetrics interface {
	EvalMetrics
	SessionMetrics
	ConnectionOpened()
	ConnectionClosed()
}

type noopServerMetrics struct {
	noopMetrics
	noopSessionMetrics
}

func (noopServerMetrics) ConnectionOpened() {}
func (noopServerMetrics) ConnectionClosed() {}

type serverConfig struct {
	network string
	addr    string
	workers int
	metrics ServerMetrics
}

// ServerOption configures a Server using the functional options pattern.
type ServerOption func(*serverConfig)

// WithAddress sets the listen address (as accepted by net.Listen).
func WithAddress(addr string) ServerOption {
	return func(c *serverConfig) { c.addr = addr }
}

// WithNetwork sets the listen network, "tcp" by default.
func WithNetwork(network string) ServerOption {
	return func(c *serverConfig) { c.network = network }
}

// WithWorkers sets the size of the shared evaluator worker pool.
func WithWorkers(n int) ServerOption {
	return func(c *serverConfig) { c.workers = n }
}

// WithMetrics installs a metrics collector.
func WithMetrics(m ServerMetrics) ServerOption {
	return func(c *serverConfig) { c.metrics = m }
}

// Server accepts connections and drives each one through a linearized
// middleware chain over a shared Registry and Evaluator: functional
// options, a background Listen, and per-connection goroutines.
type Server struct {
	cfg      serverConfig
	listener net.Listener

	reg *Registry
	ev  *Evaluator

	entry NextFunc
}

// NewServer builds a Server whose "eval" op drives rt, configured by opts.
func NewServer(rt langrt.Runtime, opts ...ServerOption) (*Server, error) {
	cfg := serverConfig{
		network: "tcp",
		addr:    "127.0.0.1:0",
		workers: 4,
		metrics: noopServerMetrics{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.network != "tcp" && cfg.network != "tcp4" && cfg.network != "tcp6" {
		return nil, fmt.Errorf("nrepl: invalid network %q", cfg.network)
	}

	reg := NewRegistry(rt, cfg.metrics)
	ev := NewEvaluator(rt, cfg.workers, cfg.metrics)

	stack := []Middleware{
		SessionMiddleware(reg),
		EvalMiddleware(reg, rt, ev),
		StdinMiddleware(reg),
		LoadFileMiddleware(reg, rt, ev),
		PrValuesMiddleware(reg),
	}
	stack = append(stack, DescribeMiddleware(stack), LsMiddlewareMiddleware(stack))

	linear, err := Linearize(stack)
	if err != nil {
		return nil, fmt.Errorf("nrepl: building middleware chain: %w", err)
	}
	entry := Chain(linear, UnknownOpHandler)

	return &Server{cfg: cfg, reg: reg, ev: ev, entry: entry}, nil
}

// Addr returns the server's actual listen address; only valid after Listen
// has started (or returned an error).
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ServeConn drives tr through the server's middleware chain in the calling
// goroutine's stead (spawns its own goroutine and returns immediately),
// without going through a real listener. Used for in-process embedding and
// tests against a transport.PipeTransport.
func (s *Server) ServeConn(tr transport.Transport) {
	s.cfg.metrics.ConnectionOpened()
	go func() {
		defer s.cfg.metrics.ConnectionClosed()
		NewConn(tr, s.entry).Serve()
	}()
}

// Listen binds the configured address and accepts connections until the
// listener is closed, driving each one through the middleware chain on its
// own goroutine.
func (s *Server) Listen() error {
	ln, err := net.Listen(s.cfg.network, s.cfg.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	defer ln.Close()

	log.Printf("nrepl: listening on %s (port %d)", ln.Addr(), listenPort(ln.Addr()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		s.cfg.metrics.ConnectionOpened()
		go func() {
			defer s.cfg.metrics.ConnectionClosed()
			tr := transport.NewSocketTransport(conn)
			defer tr.Close()
			NewConn(tr, s.entry).Serve()
		}()
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// DialAck implements the ack sub-protocol client: dial ackAddr and send a
// single `{op: "ack", port: <port>}` message announcing this server's
// listening port, then close. Used by tooling that spawned the server to
// discover which port it bound (relevant when WithAddress names port 0).
func DialAck(ackAddr string, port int, timeout time.Duration) error {
	tr, err := transport.DialTCP("tcp", ackAddr, timeout)
	if err != nil {
		return fmt.Errorf("nrepl: ack dial: %w", err)
	}
	defer tr.Close()

	if err := tr.Send(transport.Message{"op": "ack", "port": int64(port)}); err != nil {
		return fmt.Errorf("nrepl: ack send: %w", err)
	}
	return nil
}

// listenPort extracts the numeric port from a net.Addr, logging and
// returning 0 if it is not a *net.TCPAddr (should not happen for a "tcp"
// network server).
func listenPort(addr net.Addr) int {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		log.Printf("nrepl: listener address %v is not a TCP address", addr)
		return 0
	}
	return tcpAddr.Port
}
