// Command nreplsrv is a thin bootstrap around the nrepl package: it parses
// flags, wires the simplelisp reference runtime, starts the accept loop,
// and performs the optional ack-port dial-back, with signal-driven shutdown
// over a small set of channels.
package main

import (
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nrepl.dev/nrepl"
	"nrepl.dev/nrepl/langrt/simplelisp"
	"nrepl.dev/nrepl/metrics"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:0", "address to listen on")
	ackAddr := flag.String("ack-port", "", "host:port to dial and announce our listening port to, per the ack sub-protocol")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address")
	workers := flag.Int("workers", 4, "size of the shared evaluator worker pool")
	flag.Parse()

	collector := metrics.NewCollector("nrepl")
	prometheus.MustRegister(collector)

	if *metricsAddr != "" {
		go func() {
			log.Printf("nreplsrv: serving metrics on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, promhttp.Handler()); err != nil {
				log.Printf("nreplsrv: metrics server: %v", err)
			}
		}()
	}

	srv, err := nrepl.NewServer(simplelisp.New(),
		nrepl.WithAddress(*addr),
		nrepl.WithWorkers(*workers),
		nrepl.WithMetrics(collector),
	)
	if err != nil {
		log.Fatalf("nreplsrv: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen() }()

	// Give Listen a moment to bind before reading Addr(); a production
	// bootstrap would instead have NewServer bind synchronously and return
	// the listener.
	time.Sleep(50 * time.Millisecond)

	if *ackAddr != "" {
		if err := dialAck(srv, *ackAddr); err != nil {
			log.Printf("nreplsrv: ack dial failed: %v", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("nreplsrv: %v", err)
	case <-sigCh:
		if err := srv.Close(); err != nil {
			log.Printf("nreplsrv: close: %v", err)
		}
		os.Exit(0)
	}
}

func dialAck(srv *nrepl.Server, ackAddr string) error {
	addr := srv.Addr()
	if addr == nil {
		return nil
	}
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return nil
	}
	return nrepl.DialAck(ackAddr, tcpAddr.Port, 5*time.Second)
}
