package tcplink

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"pkt.systems/pslog"

	"dropcat.dev/dropcat/identity"
	"dropcat.dev/dropcat/peerwire"
)

// Server accepts authenticated streams and dispatches them through a Mux.
// One connection carries one stream for one protocol.
type Server struct {
	Secret identity.Secret
	Mux    *peerwire.Mux
	Logger pslog.Logger

	// HandshakeTimeout bounds the per-connection handshake; zero means
	// DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// Rand is the handshake nonce source. Nil means crypto/rand.
	Rand io.Reader
}

func (s *Server) log() pslog.Logger {
	if s.Logger == nil {
		return pslog.NoopLogger()
	}
	return s.Logger
}

// Listen binds addr and serves until ctx is cancelled.
func (s *Server) Listen(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("tcplink: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is cancelled or the listener
// fails. Handler errors are logged, never fatal to the accept loop.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	s.log().Info("listening", "addr", ln.Addr().String(), "protocols", s.Mux.Protocols())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("tcplink: accept: %w", err)
		}
		go s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		s.log().Warn("dropping non-tcp connection", "type", fmt.Sprintf("%T", conn))
		return
	}

	timeout := s.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	_ = tcp.SetDeadline(time.Now().Add(timeout))
	remote, protocol, err := serverHandshake(tcp, s.Secret, s.rand())
	if err != nil {
		s.log().Warn("handshake failed", "addr", conn.RemoteAddr().String(), "error", err)
		return
	}
	_ = tcp.SetDeadline(time.Time{})

	h, err := s.Mux.Lookup(protocol)
	if err != nil {
		s.log().Warn("no handler for requested protocol",
			"protocol", protocol, "peer", remote.Short())
		return
	}

	log := s.log().With("protocol", protocol, "peer", remote.Short())
	log.Debug("stream accepted")
	if err := h(ctx, remote, &stream{conn: tcp}); err != nil {
		log.Warn("handler failed", "error", err)
	}
}

func (s *Server) rand() io.Reader {
	if s.Rand != nil {
		return s.Rand
	}
	return crand.Reader
}
