package grpccas

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"dropcat.dev/dropcat/cas"
	"dropcat.dev/dropcat/cas/castest"
	"dropcat.dev/dropcat/cas/localfs"
)

func newBufconnClient(t *testing.T, backend cas.Store) *Client {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterStoreServer(srv, &Server{Store: backend})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.DialContext(
		context.Background(),
		"bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("DialContext: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close() })

	return &Client{cc: cc, client: NewStoreClient(cc), Timeout: 2 * time.Second}
}

func TestConformanceOverBufconn(t *testing.T) {
	castest.RunConformance(t, func(t *testing.T) cas.Store {
		backend, err := localfs.New(t.TempDir())
		if err != nil {
			t.Fatalf("localfs.New: %v", err)
		}
		return newBufconnClient(t, backend)
	})
}

func TestNotFoundMapsToSentinel(t *testing.T) {
	client := newBufconnClient(t, cas.NewMemory())

	// Compute a valid CID without storing the bytes.
	probe := cas.NewMemory()
	id, err := probe.Put([]byte("never stored remotely"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, err := client.Get(id); !cas.IsNotFound(err) {
		t.Fatalf("Get: got %v want ErrNotFound", err)
	}
}
