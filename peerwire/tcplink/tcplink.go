// Package tcplink carries dropcat's peer protocols over plain TCP with a
// mutual ed25519 handshake. Each stream is one connection: the protocol id is
// negotiated up front and both sides prove possession of their identity key
// before any application byte flows. Content is digest-verified end to end,
// so the link itself stays unencrypted.
package tcplink

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/cloudflare/circl/sign/ed25519"
	"golang.org/x/crypto/sha3"

	"dropcat.dev/dropcat/identity"
	"dropcat.dev/dropcat/peerwire"
)

// ErrIdentityMismatch is returned when the peer at the dialed address proves
// a different identity than the one the caller asked for.
var ErrIdentityMismatch = errors.New("tcplink: peer identity mismatch")

// ErrHandshake covers a structurally broken or unverifiable handshake.
var ErrHandshake = errors.New("tcplink: handshake failed")

const (
	magic = "DCW1"

	domainServer = "dropcat/handshake/server"
	domainClient = "dropcat/handshake/client"

	nonceLen       = 16
	maxProtocolLen = 1024

	// DefaultHandshakeTimeout bounds the whole handshake, both directions.
	DefaultHandshakeTimeout = 10 * time.Second
)

// AddrResolver maps a peer identity to a dialable "host:port" address.
// The host registry provides one backed by per-host metadata.
type AddrResolver func(peer identity.Public) (string, error)

// StaticAddr resolves every peer to the one given address.
func StaticAddr(addr string) AddrResolver {
	return func(identity.Public) (string, error) { return addr, nil }
}

type stream struct {
	conn *net.TCPConn
}

func (s *stream) Read(p []byte) (int, error)  { return s.conn.Read(p) }
func (s *stream) Write(p []byte) (int, error) { return s.conn.Write(p) }
func (s *stream) CloseWrite() error           { return s.conn.CloseWrite() }
func (s *stream) Close() error                { return s.conn.Close() }

// transcript binds every handshake field under a domain label, so a signature
// from one direction or protocol cannot be replayed in another.
func transcript(domain, protocol string, clientPub, serverPub identity.Public, clientNonce, serverNonce []byte) []byte {
	h := sha3.New256()
	h.Write([]byte(domain))
	h.Write([]byte{0})
	h.Write([]byte(magic))
	h.Write([]byte(protocol))
	h.Write([]byte{0})
	h.Write(clientPub[:])
	h.Write(clientNonce)
	h.Write(serverPub[:])
	h.Write(serverNonce)
	return h.Sum(nil)
}

// clientHandshake runs the dialing side: send hello, verify the server's
// proof, send our own.
func clientHandshake(conn net.Conn, sec identity.Secret, want identity.Public, protocol string, rand io.Reader) error {
	local := sec.Public()

	var nonce [nonceLen]byte
	if _, err := io.ReadFull(rand, nonce[:]); err != nil {
		return fmt.Errorf("%w: draw nonce: %v", ErrHandshake, err)
	}

	if _, err := conn.Write([]byte(magic)); err != nil {
		return fmt.Errorf("%w: send magic: %v", ErrHandshake, err)
	}
	if err := peerwire.WriteFrame(conn, []byte(protocol)); err != nil {
		return fmt.Errorf("%w: send protocol id: %v", ErrHandshake, err)
	}
	if _, err := conn.Write(local[:]); err != nil {
		return fmt.Errorf("%w: send public key: %v", ErrHandshake, err)
	}
	if _, err := conn.Write(nonce[:]); err != nil {
		return fmt.Errorf("%w: send nonce: %v", ErrHandshake, err)
	}

	var remote identity.Public
	if _, err := io.ReadFull(conn, remote[:]); err != nil {
		return fmt.Errorf("%w: read server public key: %v", ErrHandshake, err)
	}
	var serverNonce [nonceLen]byte
	if _, err := io.ReadFull(conn, serverNonce[:]); err != nil {
		return fmt.Errorf("%w: read server nonce: %v", ErrHandshake, err)
	}
	sig := make([]byte, ed25519.SignatureSize)
	if _, err := io.ReadFull(conn, sig); err != nil {
		return fmt.Errorf("%w: read server signature: %v", ErrHandshake, err)
	}

	if remote != want {
		return fmt.Errorf("%w: wanted %s, got %s", ErrIdentityMismatch, want.Short(), remote.Short())
	}
	msg := transcript(domainServer, protocol, local, remote, nonce[:], serverNonce[:])
	if !remote.Verify(msg, sig) {
		return fmt.Errorf("%w: server signature does not verify", ErrHandshake)
	}

	proof := sec.Sign(transcript(domainClient, protocol, local, remote, nonce[:], serverNonce[:]))
	if _, err := conn.Write(proof); err != nil {
		return fmt.Errorf("%w: send client signature: %v", ErrHandshake, err)
	}
	return nil
}

// serverHandshake runs the accepting side and returns the authenticated
// client identity and requested protocol id.
func serverHandshake(conn net.Conn, sec identity.Secret, rand io.Reader) (identity.Public, string, error) {
	local := sec.Public()

	var gotMagic [len(magic)]byte
	if _, err := io.ReadFull(conn, gotMagic[:]); err != nil {
		return identity.Public{}, "", fmt.Errorf("%w: read magic: %v", ErrHandshake, err)
	}
	if string(gotMagic[:]) != magic {
		return identity.Public{}, "", fmt.Errorf("%w: bad magic %q", ErrHandshake, gotMagic)
	}

	protoLen, err := peerwire.ReadUint32(conn)
	if err != nil {
		return identity.Public{}, "", fmt.Errorf("%w: read protocol length: %v", ErrHandshake, err)
	}
	if protoLen == 0 || protoLen > maxProtocolLen {
		return identity.Public{}, "", fmt.Errorf("%w: protocol id length %d out of range", ErrHandshake, protoLen)
	}
	protoBuf := make([]byte, protoLen)
	if _, err := io.ReadFull(conn, protoBuf); err != nil {
		return identity.Public{}, "", fmt.Errorf("%w: read protocol id: %v", ErrHandshake, err)
	}
	protocol := string(protoBuf)

	var remote identity.Public
	if _, err := io.ReadFull(conn, remote[:]); err != nil {
		return identity.Public{}, "", fmt.Errorf("%w: read client public key: %v", ErrHandshake, err)
	}
	var clientNonce [nonceLen]byte
	if _, err := io.ReadFull(conn, clientNonce[:]); err != nil {
		return identity.Public{}, "", fmt.Errorf("%w: read client nonce: %v", ErrHandshake, err)
	}

	var nonce [nonceLen]byte
	if _, err := io.ReadFull(rand, nonce[:]); err != nil {
		return identity.Public{}, "", fmt.Errorf("%w: draw nonce: %v", ErrHandshake, err)
	}
	if _, err := conn.Write(local[:]); err != nil {
		return identity.Public{}, "", fmt.Errorf("%w: send public key: %v", ErrHandshake, err)
	}
	if _, err := conn.Write(nonce[:]); err != nil {
		return identity.Public{}, "", fmt.Errorf("%w: send nonce: %v", ErrHandshake, err)
	}
	proof := sec.Sign(transcript(domainServer, protocol, remote, local, clientNonce[:], nonce[:]))
	if _, err := conn.Write(proof); err != nil {
		return identity.Public{}, "", fmt.Errorf("%w: send server signature: %v", ErrHandshake, err)
	}

	sig := make([]byte, ed25519.SignatureSize)
	if _, err := io.ReadFull(conn, sig); err != nil {
		return identity.Public{}, "", fmt.Errorf("%w: read client signature: %v", ErrHandshake, err)
	}
	msg := transcript(domainClient, protocol, remote, local, clientNonce[:], nonce[:])
	if !remote.Verify(msg, sig) {
		return identity.Public{}, "", fmt.Errorf("%w: client signature does not verify", ErrHandshake)
	}
	return remote, protocol, nil
}

// Dialer opens authenticated TCP streams. Resolve supplies the address for a
// peer identity; Secret is the local identity proved during the handshake.
type Dialer struct {
	Secret  identity.Secret
	Resolve AddrResolver

	// Timeout bounds dial plus handshake; zero means DefaultHandshakeTimeout.
	Timeout time.Duration

	// Rand is the handshake nonce source. Nil means crypto/rand.
	Rand io.Reader
}

var _ peerwire.Dialer = (*Dialer)(nil)

// Connect dials peer, runs the handshake for protocol and returns the live
// stream.
func (d *Dialer) Connect(ctx context.Context, peer identity.Public, protocol string) (peerwire.Stream, error) {
	if d.Resolve == nil {
		return nil, errors.New("tcplink: no address resolver configured")
	}
	addr, err := d.Resolve(peer)
	if err != nil {
		return nil, fmt.Errorf("tcplink: resolve %s: %w", peer.Short(), err)
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var nd net.Dialer
	conn, err := nd.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcplink: dial %s: %w", addr, err)
	}
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("tcplink: unexpected connection type %T", conn)
	}

	deadline := time.Now().Add(timeout)
	_ = tcp.SetDeadline(deadline)
	if err := clientHandshake(tcp, d.Secret, peer, protocol, d.rand()); err != nil {
		tcp.Close()
		return nil, err
	}
	_ = tcp.SetDeadline(time.Time{})
	return &stream{conn: tcp}, nil
}

func (d *Dialer) rand() io.Reader {
	if d.Rand != nil {
		return d.Rand
	}
	return crand.Reader
}
