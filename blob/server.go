package blob

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"dropcat.dev/dropcat/cas"
	"dropcat.dev/dropcat/cidutil"
	"dropcat.dev/dropcat/identity"
	"dropcat.dev/dropcat/peerwire"
	"dropcat.dev/dropcat/ticket"
)

// Protocol is the id the connection layer routes blob transfers under.
const Protocol = "dropcat/blob/1"

// chunkLen is the payload size of one blob body frame. Content of any size
// travels as a sequence of bounded frames ending with an empty one, so no
// single frame ever approaches the peerwire limit.
const chunkLen = 1 << 20

// Handler returns the peerwire handler serving blob requests from the store.
// The request is a length-prefixed digest in hex; the response is a code byte
// followed by the length-prefixed content.
func (s *Store) Handler() peerwire.Handler {
	return s.serve
}

func (s *Store) serve(ctx context.Context, remote identity.Public, st peerwire.Stream) error {
	_ = ctx
	log := s.log().With("transfer", uuid.NewString(), "peer", remote.Short())

	req, err := peerwire.ReadFrame(st)
	if err != nil {
		log.Warn("failed to read blob request", "error", err)
		return fmt.Errorf("blob: read request: %w", err)
	}
	d, err := cidutil.ParseDigest(string(req))
	if err != nil {
		log.Warn("malformed digest in blob request", "error", err)
		return respond(st, ticket.CodeError, nil)
	}

	data, err := s.CAS.Get(d.CID())
	if cas.IsNotFound(err) {
		log.Info("blob not found", "hash", d.String())
		return respond(st, ticket.CodeNotFound, nil)
	}
	if err != nil {
		log.Error("failed to load blob", "hash", d.String(), "error", err)
		return respond(st, ticket.CodeError, nil)
	}
	log.Info("served blob", "hash", d.String(), "bytes", len(data))
	return respond(st, ticket.CodeOk, data)
}

// respond writes the code byte, the body as chunked frames and the empty
// terminator frame, then half-closes.
func respond(st peerwire.Stream, code ticket.ResponseCode, body []byte) error {
	if err := peerwire.WriteByte1(st, byte(code)); err != nil {
		return fmt.Errorf("blob: write response code: %w", err)
	}
	for len(body) > 0 {
		n := len(body)
		if n > chunkLen {
			n = chunkLen
		}
		if err := peerwire.WriteFrame(st, body[:n]); err != nil {
			return fmt.Errorf("blob: write response body: %w", err)
		}
		body = body[n:]
	}
	if err := peerwire.WriteFrame(st, nil); err != nil {
		return fmt.Errorf("blob: write response terminator: %w", err)
	}
	return st.CloseWrite()
}

// readChunked reassembles a chunked body up to and including the empty
// terminator frame.
func readChunked(st peerwire.Stream) ([]byte, error) {
	var body []byte
	for {
		chunk, err := peerwire.ReadFrame(st)
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			return body, nil
		}
		body = append(body, chunk...)
	}
}

// ErrNotAvailable is returned by Download when the source peer does not hold
// the requested content.
var ErrNotAvailable = fmt.Errorf("blob: content not available at peer")

// Download pulls the digest's content from source and stores it locally.
// Already-present content is not re-fetched. Received bytes are verified
// against the digest before they touch the store.
func (s *Store) Download(ctx context.Context, d cidutil.Digest, source identity.Public, dialer peerwire.Dialer) error {
	if s.Has(d) {
		s.log().Debug("blob already present", "hash", d.String())
		return nil
	}

	st, err := dialer.Connect(ctx, source, Protocol)
	if err != nil {
		return fmt.Errorf("blob: connect to %s: %w", source.Short(), err)
	}
	defer st.Close()

	if err := peerwire.WriteFrame(st, []byte(d.String())); err != nil {
		return fmt.Errorf("blob: send request: %w", err)
	}
	if err := st.CloseWrite(); err != nil {
		return fmt.Errorf("blob: close request direction: %w", err)
	}

	codeByte, err := peerwire.ReadByte1(st)
	if err != nil {
		return fmt.Errorf("blob: missing response code: %w", err)
	}
	body, err := readChunked(st)
	if err != nil {
		return fmt.Errorf("blob: truncated response body: %w", err)
	}

	switch ticket.ParseResponseCode(codeByte) {
	case ticket.CodeOk:
	case ticket.CodeNotFound:
		return ErrNotAvailable
	case ticket.CodeError:
		return fmt.Errorf("blob: peer reported an error for %s", d.Short(8))
	default:
		return fmt.Errorf("blob: unknown response code 0x%02x", codeByte)
	}

	if got := cidutil.DigestBytes(body); got != d {
		return fmt.Errorf("%w: wanted %s, received %s", cas.ErrCIDMismatch, d.Short(8), got.Short(8))
	}
	if _, err := s.CAS.Put(body); err != nil {
		return fmt.Errorf("blob: store downloaded content: %w", err)
	}
	s.log().Info("downloaded blob", "hash", d.String(), "bytes", len(body), "source", source.Short())
	return nil
}
