package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pkt.systems/pslog"

	"dropcat.dev/dropcat/identity"
	"dropcat.dev/dropcat/peerwire"
	"dropcat.dev/dropcat/ticket"
)

// ErrProtocol marks a malformed response: a missing or unrecognized response
// code byte, or a garbled body. The exchange is aborted and never retried.
var ErrProtocol = errors.New("exchange: protocol violation")

const (
	// DefaultRetries is how many extra connect attempts follow a failed one.
	DefaultRetries = 3
	// DefaultRetryDelay separates connect attempts. Flat, no backoff.
	DefaultRetryDelay = 2 * time.Second
)

// Client fetches one ticket per call. Only connection establishment is
// retried; once a stream is open, any I/O failure aborts the exchange.
type Client struct {
	Dialer peerwire.Dialer
	Logger pslog.Logger

	// Retries and RetryDelay default to the package constants when zero.
	Retries    int
	RetryDelay time.Duration

	// Sleep is injectable for tests; nil means a real timer honoring ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Result is the terminal outcome of one exchange. Ticket is set only when
// Code is CodeOk.
type Result struct {
	Code   ticket.ResponseCode
	Ticket ticket.Ticket
}

func (c *Client) log() pslog.Logger {
	if c.Logger == nil {
		return pslog.NoopLogger()
	}
	return c.Logger
}

// Fetch connects to peer, sends query and returns the decoded outcome.
// NotFound and Error responses are valid results, not errors.
func (c *Client) Fetch(ctx context.Context, peer identity.Public, query string) (Result, error) {
	st, err := c.connectWithRetry(ctx, peer)
	if err != nil {
		return Result{}, fmt.Errorf("exchange: connect to %s: %w", peer.Short(), err)
	}
	defer st.Close()

	if err := peerwire.WriteUint32(st, uint32(len(query))); err != nil {
		return Result{}, fmt.Errorf("exchange: send query length: %w", err)
	}
	if _, err := st.Write([]byte(query)); err != nil {
		return Result{}, fmt.Errorf("exchange: send query: %w", err)
	}
	// Half-close: the server sees EOF after the query and we block until it
	// has produced a response.
	if err := st.CloseWrite(); err != nil {
		return Result{}, fmt.Errorf("exchange: close query direction: %w", err)
	}

	codeByte, err := peerwire.ReadByte1(st)
	if err != nil {
		return Result{}, fmt.Errorf("%w: missing response code: %v", ErrProtocol, err)
	}
	code := ticket.ParseResponseCode(codeByte)

	body, err := peerwire.ReadFrame(st)
	if err != nil {
		return Result{}, fmt.Errorf("%w: truncated response body: %v", ErrProtocol, err)
	}

	switch code {
	case ticket.CodeOk:
		tk, err := ticket.Decode(body)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrProtocol, err)
		}
		c.log().Info("received ticket", "query", query, "hash", tk.Hash)
		return Result{Code: code, Ticket: tk}, nil
	case ticket.CodeNotFound:
		c.log().Warn("ticket not found", "query", query)
		return Result{Code: code}, nil
	case ticket.CodeError:
		c.log().Warn("peer reported an error", "query", query)
		return Result{Code: code}, nil
	default:
		return Result{}, fmt.Errorf("%w: unknown response code 0x%02x", ErrProtocol, codeByte)
	}
}

func (c *Client) connectWithRetry(ctx context.Context, peer identity.Public) (peerwire.Stream, error) {
	retries := c.Retries
	if retries <= 0 {
		retries = DefaultRetries
	}
	delay := c.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	sleep := c.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		st, err := c.Dialer.Connect(ctx, peer, Protocol)
		if err == nil {
			return st, nil
		}
		lastErr = err
		if attempt >= retries {
			return nil, lastErr
		}
		c.log().Warn("connection failed, retrying",
			"attempt", attempt+1, "retries", retries, "error", err)
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
