// Package peerwire is the seam between dropcat's application protocols and
// the peer connection layer. The connection layer owns establishment,
// authentication and routing; this package only sees bidirectional streams
// already bound to a protocol id.
package peerwire

import (
	"context"
	"fmt"
	"io"
	"sync"

	"dropcat.dev/dropcat/identity"
)

// Stream is one bidirectional ordered byte stream. Each exchange uses exactly
// one stream and closes it when done. CloseWrite half-closes the sending
// direction, signalling "no more data" to the peer while reads stay open.
type Stream interface {
	io.Reader
	io.Writer
	CloseWrite() error
	Close() error
}

// Dialer opens a stream to a peer for one protocol. Implementations handle
// addressing and authentication; callers see only identities.
type Dialer interface {
	Connect(ctx context.Context, peer identity.Public, protocol string) (Stream, error)
}

// Handler serves one accepted stream. The stream is closed by the dispatcher
// when the handler returns.
type Handler func(ctx context.Context, remote identity.Public, st Stream) error

// Mux routes accepted streams to handlers by protocol id.
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewMux() *Mux {
	return &Mux{handlers: make(map[string]Handler)}
}

func (m *Mux) Handle(protocol string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[protocol] = h
}

// Lookup returns the handler bound to protocol.
func (m *Mux) Lookup(protocol string) (Handler, error) {
	m.mu.RLock()
	h, ok := m.handlers[protocol]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("peerwire: no handler for protocol %q", protocol)
	}
	return h, nil
}

// Protocols returns the registered protocol ids.
func (m *Mux) Protocols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.handlers))
	for p := range m.handlers {
		out = append(out, p)
	}
	return out
}
