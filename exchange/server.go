package exchange

import (
	"context"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/google/uuid"
	"pkt.systems/pslog"

	"dropcat.dev/dropcat/identity"
	"dropcat.dev/dropcat/peerwire"
	"dropcat.dev/dropcat/ticket"
)

// Protocol is the id the connection layer routes ticket exchanges under.
const Protocol = "dropcat/ticket/1"

// Server answers ticket queries from the shared registry. It keeps no state
// across streams: every exchange starts fresh and ends with the stream.
type Server struct {
	Registry *Registry
	Logger   pslog.Logger
}

func (s *Server) log() pslog.Logger {
	if s.Logger == nil {
		return pslog.NoopLogger()
	}
	return s.Logger
}

// Handler returns the peerwire handler for Protocol.
func (s *Server) Handler() peerwire.Handler {
	return s.serve
}

func (s *Server) serve(ctx context.Context, remote identity.Public, st peerwire.Stream) error {
	_ = ctx
	log := s.log().With("exchange", uuid.NewString(), "peer", remote.Short())

	querySize, err := peerwire.ReadUint32(st)
	if err != nil {
		log.Warn("failed to read query length", "error", err)
		return fmt.Errorf("exchange: read query length: %w", err)
	}

	// Empty queries are answered with Error without touching the registry.
	if querySize == 0 {
		log.Warn("empty query")
		return s.respond(st, ticket.CodeError, nil)
	}
	if querySize > peerwire.MaxFrameLen {
		log.Warn("oversized query", "bytes", querySize)
		return s.respond(st, ticket.CodeError, nil)
	}

	buf := make([]byte, querySize)
	if _, err := io.ReadFull(st, buf); err != nil {
		log.Warn("failed to read query", "error", err)
		return fmt.Errorf("exchange: read query: %w", err)
	}
	if !utf8.Valid(buf) {
		log.Warn("query is not valid utf-8")
		return fmt.Errorf("exchange: query is not valid utf-8")
	}
	query := string(buf)

	tk, ok := s.Registry.Lookup(query)
	if !ok {
		log.Info("ticket not found", "query", query)
		return s.respond(st, ticket.CodeNotFound, nil)
	}

	body, err := tk.Encode()
	if err != nil {
		log.Error("failed to encode ticket", "query", query, "error", err)
		return s.respond(st, ticket.CodeError, nil)
	}
	log.Info("served ticket", "query", query, "hash", tk.Hash)
	return s.respond(st, ticket.CodeOk, body)
}

// respond writes the response code byte, the length-prefixed body, then
// half-closes so the client sees a complete response and EOF.
func (s *Server) respond(st peerwire.Stream, code ticket.ResponseCode, body []byte) error {
	if err := peerwire.WriteByte1(st, byte(code)); err != nil {
		return fmt.Errorf("exchange: write response code: %w", err)
	}
	if err := peerwire.WriteFrame(st, body); err != nil {
		return fmt.Errorf("exchange: write response body: %w", err)
	}
	return st.CloseWrite()
}
