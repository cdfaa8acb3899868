// Package memlink is an in-memory peerwire implementation for tests: peers
// join a Network under their identity and streams are paired pipes. It also
// supports injected dial failures for exercising retry paths.
package memlink

import (
	"context"
	"fmt"
	"io"
	"sync"

	"dropcat.dev/dropcat/identity"
	"dropcat.dev/dropcat/peerwire"
)

type Network struct {
	mu       sync.Mutex
	peers    map[identity.Public]*peerEntry
	failures map[identity.Public]int
}

type peerEntry struct {
	mux *peerwire.Mux
}

func NewNetwork() *Network {
	return &Network{
		peers:    make(map[identity.Public]*peerEntry),
		failures: make(map[identity.Public]int),
	}
}

// Join registers a peer's protocol mux under its identity. Incoming streams
// are dispatched on fresh goroutines, one per stream, mirroring how a real
// endpoint handles concurrent accepts.
func (n *Network) Join(id identity.Public, mux *peerwire.Mux) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.peers[id] = &peerEntry{mux: mux}
}

func (n *Network) Leave(id identity.Public) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.peers, id)
}

// FailDials makes the next count dials to id fail before connecting succeeds
// again. Used to test connect retry behavior.
func (n *Network) FailDials(id identity.Public, count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures[id] = count
}

// Dialer returns a peerwire.Dialer that presents local as the remote identity
// to every peer it connects to.
func (n *Network) Dialer(local identity.Public) peerwire.Dialer {
	return &dialer{net: n, local: local}
}

type dialer struct {
	net   *Network
	local identity.Public
}

func (d *dialer) Connect(ctx context.Context, peer identity.Public, protocol string) (peerwire.Stream, error) {
	d.net.mu.Lock()
	if remaining := d.net.failures[peer]; remaining > 0 {
		d.net.failures[peer] = remaining - 1
		d.net.mu.Unlock()
		return nil, fmt.Errorf("memlink: dial to %s refused", peer.Short())
	}
	entry, ok := d.net.peers[peer]
	d.net.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("memlink: peer %s not reachable", peer.Short())
	}

	handler, err := entry.mux.Lookup(protocol)
	if err != nil {
		return nil, err
	}

	client, server := pair()
	go func() {
		defer server.Close()
		_ = handler(context.Background(), d.local, server)
	}()

	_ = ctx
	return client, nil
}

// stream is one direction-pair of pipes.
type stream struct {
	r *io.PipeReader
	w *io.PipeWriter

	closeOnce sync.Once
}

func pair() (*stream, *stream) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return &stream{r: ar, w: aw}, &stream{r: br, w: bw}
}

func (s *stream) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *stream) Write(p []byte) (int, error) { return s.w.Write(p) }

// CloseWrite half-closes: the peer's reads observe EOF, our reads stay open.
func (s *stream) CloseWrite() error { return s.w.Close() }

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		_ = s.w.Close()
		_ = s.r.Close()
	})
	return nil
}

var _ peerwire.Stream = (*stream)(nil)
