package exchange

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"dropcat.dev/dropcat/cidutil"
	"dropcat.dev/dropcat/identity"
	"dropcat.dev/dropcat/peerwire"
	"dropcat.dev/dropcat/peerwire/memlink"
	"dropcat.dev/dropcat/ticket"
)

func newPeer(t *testing.T) identity.Public {
	t.Helper()
	sec, err := identity.Generate(rand.Reader)
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}
	return sec.Public()
}

func startServer(t *testing.T, net *memlink.Network, reg *Registry) identity.Public {
	t.Helper()
	server := newPeer(t)
	mux := peerwire.NewMux()
	mux.Handle(Protocol, (&Server{Registry: reg}).Handler())
	net.Join(server, mux)
	return server
}

func TestFetchOk(t *testing.T) {
	net := memlink.NewNetwork()
	reg := NewRegistry()

	d := cidutil.DigestBytes([]byte("dropped payload"))
	tk := ticket.New(d).WithFilename("payload.bin")
	reg.Insert(tk)

	server := startServer(t, net, reg)
	client := &Client{Dialer: net.Dialer(newPeer(t))}

	res, err := client.Fetch(context.Background(), server, tk.Query)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Code != ticket.CodeOk {
		t.Fatalf("code: got %v want ok", res.Code)
	}
	if res.Ticket != tk {
		t.Fatalf("ticket mismatch: got %+v want %+v", res.Ticket, tk)
	}
}

func TestFetchNotFound(t *testing.T) {
	net := memlink.NewNetwork()
	server := startServer(t, net, NewRegistry())
	client := &Client{Dialer: net.Dialer(newPeer(t))}

	res, err := client.Fetch(context.Background(), server, "zzzzzz")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Code != ticket.CodeNotFound {
		t.Fatalf("code: got %v want not-found", res.Code)
	}
	if res.Ticket != (ticket.Ticket{}) {
		t.Fatalf("ticket should be empty on NotFound")
	}
}

func TestEmptyQueryShortCircuitsToError(t *testing.T) {
	net := memlink.NewNetwork()

	reg := NewRegistry()
	reg.Insert(ticket.New(cidutil.DigestBytes([]byte("present"))))
	server := startServer(t, net, reg)

	// Drive the wire by hand to send a zero-length query prefix.
	st, err := net.Dialer(newPeer(t)).Connect(context.Background(), server, Protocol)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer st.Close()
	if err := peerwire.WriteUint32(st, 0); err != nil {
		t.Fatalf("write zero prefix: %v", err)
	}
	if err := st.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite: %v", err)
	}

	codeByte, err := peerwire.ReadByte1(st)
	if err != nil {
		t.Fatalf("read code: %v", err)
	}
	if ticket.ParseResponseCode(codeByte) != ticket.CodeError {
		t.Fatalf("code: got %v want error", ticket.ParseResponseCode(codeByte))
	}
	body, err := peerwire.ReadFrame(st)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if len(body) != 0 {
		t.Fatalf("error body should be empty, got %d bytes", len(body))
	}
}

func TestConnectRetriesThenSucceeds(t *testing.T) {
	net := memlink.NewNetwork()
	reg := NewRegistry()
	tk := ticket.New(cidutil.DigestBytes([]byte("third time lucky")))
	reg.Insert(tk)
	server := startServer(t, net, reg)

	net.FailDials(server, 2)

	var mu sync.Mutex
	var slept []time.Duration
	client := &Client{
		Dialer: net.Dialer(newPeer(t)),
		Sleep: func(ctx context.Context, d time.Duration) error {
			mu.Lock()
			slept = append(slept, d)
			mu.Unlock()
			return nil
		},
	}

	res, err := client.Fetch(context.Background(), server, tk.Query)
	if err != nil {
		t.Fatalf("Fetch after retries: %v", err)
	}
	if res.Code != ticket.CodeOk {
		t.Fatalf("code: got %v want ok", res.Code)
	}
	if len(slept) != 2 {
		t.Fatalf("expected 2 retry delays, got %d", len(slept))
	}
	for _, d := range slept {
		if d != DefaultRetryDelay {
			t.Fatalf("retry delay: got %v want %v", d, DefaultRetryDelay)
		}
	}
}

func TestConnectRetriesExhausted(t *testing.T) {
	net := memlink.NewNetwork()
	server := startServer(t, net, NewRegistry())
	net.FailDials(server, 100)

	client := &Client{
		Dialer: net.Dialer(newPeer(t)),
		Sleep:  func(ctx context.Context, d time.Duration) error { return nil },
	}

	if _, err := client.Fetch(context.Background(), server, "abc123"); err == nil {
		t.Fatalf("Fetch should surface the final connect error")
	}
}

func TestUnknownResponseCodeIsProtocolViolation(t *testing.T) {
	net := memlink.NewNetwork()
	rogue := newPeer(t)
	mux := peerwire.NewMux()
	mux.Handle(Protocol, func(ctx context.Context, remote identity.Public, st peerwire.Stream) error {
		// Drain the query, then answer with a code outside the enumeration.
		_, _ = peerwire.ReadFrame(st)
		_ = peerwire.WriteByte1(st, 0x7f)
		_ = peerwire.WriteFrame(st, nil)
		return st.CloseWrite()
	})
	net.Join(rogue, mux)

	client := &Client{Dialer: net.Dialer(newPeer(t))}
	_, err := client.Fetch(context.Background(), rogue, "abc123")
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("got %v want ErrProtocol", err)
	}
}

func TestTruncatedResponseIsProtocolViolation(t *testing.T) {
	net := memlink.NewNetwork()
	rogue := newPeer(t)
	mux := peerwire.NewMux()
	mux.Handle(Protocol, func(ctx context.Context, remote identity.Public, st peerwire.Stream) error {
		_, _ = peerwire.ReadFrame(st)
		// Close without writing any response byte.
		return st.CloseWrite()
	})
	net.Join(rogue, mux)

	client := &Client{Dialer: net.Dialer(newPeer(t))}
	_, err := client.Fetch(context.Background(), rogue, "abc123")
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("got %v want ErrProtocol", err)
	}
}

func TestRegistryCollisionReplaces(t *testing.T) {
	reg := NewRegistry()
	first := ticket.Ticket{Hash: "aaaa", Query: "abc123"}
	second := ticket.Ticket{Hash: "bbbb", Query: "abc123"}

	reg.Insert(first)
	reg.Insert(second)

	got, ok := reg.Lookup("abc123")
	if !ok {
		t.Fatalf("Lookup: missing")
	}
	if got.Hash != "bbbb" {
		t.Fatalf("later insert should shadow: got %q", got.Hash)
	}
	if reg.Len() != 1 {
		t.Fatalf("Len: got %d want 1", reg.Len())
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				d := cidutil.DigestBytes([]byte{byte(i), byte(j)})
				reg.Insert(ticket.New(d))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				reg.Lookup("abc123")
			}
		}()
	}
	wg.Wait()
}
