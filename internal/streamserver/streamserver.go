// Package streamserver implements StreamServer (§4.5): a TCP (optionally
// TLS) accept loop that constructs one fresh decoder per connection and
// feeds it bytes until EOF.
//
// A plain accept loop (net.Listen, blocking Accept, one goroutine per
// connection) made protocol-agnostic via the DecoderFactory/HandlerFactory
// seams, using golang.org/x/sync/errgroup (§2.2) in place of a bare
// WaitGroup for the listener-close/accept-loop pair.
package streamserver

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ShivamForkedRepos/ndrop/internal/metrics"
	"github.com/ShivamForkedRepos/ndrop/internal/recv"
	"github.com/ShivamForkedRepos/ndrop/internal/xerrors"
	"github.com/ShivamForkedRepos/ndrop/internal/xlog"
)

// FrameDecoder is the subset of duktocodec.Decoder/nitrosharecodec.Decoder
// a connection worker needs: Feed bytes, return a decode error if the
// stream is malformed.
type FrameDecoder interface {
	Feed(data []byte) error
}

// DecoderFactory builds one fresh FrameDecoder per accepted connection, the
// "state is per-connection" requirement of §4.5.
type DecoderFactory func(h recv.Handler) FrameDecoder

// HandlerFactory builds one fresh recv.Handler per accepted connection, so
// that per-connection state (e.g. the file currently being written) is
// never shared between concurrent connections.
type HandlerFactory func() recv.Handler

// Server binds one protocol's TCP transfer port.
type Server struct {
	NewDecoder DecoderFactory
	NewHandler HandlerFactory
	TLSConfig  *tls.Config // nil means plaintext
	Conns      *metrics.ConnectionCounter
	Metrics    *metrics.TransferMetrics
	// OnConnDone, when non-nil, fires once per accepted connection after it
	// closes (success or failure), the "OnRequestFinish per completed
	// inbound connection" event of §6.
	OnConnDone func()

	listener net.Listener
}

// Run binds bind:port (TLS-wrapped if s.TLSConfig is non-nil) and accepts
// connections until ctx is cancelled, at which point the listener is
// closed and Run returns once the accept loop has stopped. Connection
// workers already started are not waited for and are not closed by the
// cancellation; each runs until its peer closes the connection or a decode
// error aborts it.
func (s *Server) Run(ctx context.Context, bind string, port int) error {
	addr := net.JoinHostPort(bind, strconv.Itoa(port))
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return xerrors.NetworkTransientError{Op: "listen tcp", Err: err}
	}
	if s.TLSConfig != nil {
		ln = tls.NewListener(ln, s.TLSConfig)
	}
	s.listener = ln

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return s.listener.Close()
	})
	g.Go(func() error {
		return s.acceptLoop(gctx)
	})
	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Server) acceptLoop(ctx context.Context) error {
	log := xlog.For("streamserver")
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return xerrors.NetworkTransientError{Op: "accept", Err: err}
		}
		go s.handleConn(conn, log)
	}
}

func (s *Server) handleConn(conn net.Conn, log zerolog.Logger) {
	defer conn.Close()
	if s.Conns != nil {
		s.Conns.Inc()
		defer s.Conns.Dec()
	}
	if s.OnConnDone != nil {
		defer s.OnConnDone()
	}

	dec := s.NewDecoder(s.NewHandler())
	buf := make([]byte, 64*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if ferr := dec.Feed(buf[:n]); ferr != nil {
				log.Err(ferr).Msg("aborting connection on decode error")
				return
			}
			if s.Metrics != nil {
				s.Metrics.AddBytesReceived(uint64(n))
			}
		}
		if err != nil {
			return
		}
	}
}

