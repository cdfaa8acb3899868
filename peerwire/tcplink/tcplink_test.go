package tcplink

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"dropcat.dev/dropcat/identity"
	"dropcat.dev/dropcat/peerwire"
)

func newSecret(t *testing.T) identity.Secret {
	t.Helper()
	sec, err := identity.Generate(rand.Reader)
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}
	return sec
}

// startServer listens on an ephemeral loopback port and returns the address.
func startServer(t *testing.T, srv *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Serve(ctx, ln)
	return ln.Addr().String()
}

const echoProtocol = "dropcat/test-echo/1"

func echoHandler(ctx context.Context, remote identity.Public, st peerwire.Stream) error {
	body, err := peerwire.ReadFrame(st)
	if err != nil {
		return err
	}
	if err := peerwire.WriteFrame(st, body); err != nil {
		return err
	}
	return st.CloseWrite()
}

func TestEchoRoundTrip(t *testing.T) {
	serverSec := newSecret(t)
	mux := peerwire.NewMux()
	mux.Handle(echoProtocol, echoHandler)
	addr := startServer(t, &Server{Secret: serverSec, Mux: mux})

	d := &Dialer{Secret: newSecret(t), Resolve: StaticAddr(addr)}
	st, err := d.Connect(context.Background(), serverSec.Public(), echoProtocol)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer st.Close()

	msg := []byte("ping over tcp")
	if err := peerwire.WriteFrame(st, msg); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if err := st.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite: %v", err)
	}
	got, err := peerwire.ReadFrame(st)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if string(got) != string(msg) {
		t.Fatalf("echo mismatch: got %q", got)
	}
}

func TestHandlerSeesClientIdentity(t *testing.T) {
	serverSec := newSecret(t)
	clientSec := newSecret(t)

	seen := make(chan identity.Public, 1)
	mux := peerwire.NewMux()
	mux.Handle(echoProtocol, func(ctx context.Context, remote identity.Public, st peerwire.Stream) error {
		seen <- remote
		_ = peerwire.WriteFrame(st, nil)
		return st.CloseWrite()
	})
	addr := startServer(t, &Server{Secret: serverSec, Mux: mux})

	d := &Dialer{Secret: clientSec, Resolve: StaticAddr(addr)}
	st, err := d.Connect(context.Background(), serverSec.Public(), echoProtocol)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer st.Close()
	if _, err := peerwire.ReadFrame(st); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	select {
	case got := <-seen:
		if got != clientSec.Public() {
			t.Fatalf("handler saw %s, want %s", got.Short(), clientSec.Public().Short())
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("handler never ran")
	}
}

func TestConnectRejectsWrongIdentity(t *testing.T) {
	serverSec := newSecret(t)
	mux := peerwire.NewMux()
	mux.Handle(echoProtocol, echoHandler)
	addr := startServer(t, &Server{Secret: serverSec, Mux: mux})

	imposter := newSecret(t).Public()
	d := &Dialer{Secret: newSecret(t), Resolve: StaticAddr(addr)}
	_, err := d.Connect(context.Background(), imposter, echoProtocol)
	if !errors.Is(err, ErrIdentityMismatch) {
		t.Fatalf("got %v want ErrIdentityMismatch", err)
	}
}

func TestUnknownProtocolClosesStream(t *testing.T) {
	serverSec := newSecret(t)
	addr := startServer(t, &Server{Secret: serverSec, Mux: peerwire.NewMux()})

	d := &Dialer{Secret: newSecret(t), Resolve: StaticAddr(addr), Timeout: 5 * time.Second}
	st, err := d.Connect(context.Background(), serverSec.Public(), "dropcat/no-such/1")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer st.Close()

	// The server has no handler, so the stream closes without a payload.
	buf := make([]byte, 1)
	if _, err := st.Read(buf); err != io.EOF {
		t.Fatalf("expected EOF from unhandled protocol, got %v", err)
	}
}

func TestConnectRequiresResolver(t *testing.T) {
	d := &Dialer{Secret: newSecret(t)}
	if _, err := d.Connect(context.Background(), newSecret(t).Public(), echoProtocol); err == nil {
		t.Fatalf("Connect without resolver should fail")
	}
}

func TestGarbageHandshakeIsRejected(t *testing.T) {
	serverSec := newSecret(t)
	srv := &Server{Secret: serverSec, Mux: peerwire.NewMux(), HandshakeTimeout: 2 * time.Second}
	addr := startServer(t, srv)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("NOPE")); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Read(buf); err == nil {
		t.Fatalf("server should close on bad magic")
	}
}
