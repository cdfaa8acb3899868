// Package ticket defines the record a drop serves and a catch retrieves: a
// content digest plus the short query code it is filed under.
package ticket

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"dropcat.dev/dropcat/cidutil"
)

// QueryLen is the number of leading digest characters used as the query code.
//
// Two digests sharing a prefix silently shadow each other in the registry;
// the last drop wins. Widening this constant shrinks that window.
const QueryLen = 6

// Ticket binds a query code to a content digest and an optional filename.
// Tickets live only as long as the serving process; they are never persisted.
type Ticket struct {
	Hash     string `msgpack:"hash"`
	Query    string `msgpack:"query"`
	Filename string `msgpack:"filename,omitempty"`
}

// New derives the ticket for a digest. The query is the first QueryLen
// characters of the digest's canonical hex form.
func New(d cidutil.Digest) Ticket {
	return Ticket{Hash: d.String(), Query: d.Short(QueryLen)}
}

func (t Ticket) WithFilename(name string) Ticket {
	t.Filename = name
	return t
}

// Digest parses the ticket's hash field.
func (t Ticket) Digest() (cidutil.Digest, error) {
	return cidutil.ParseDigest(t.Hash)
}

// Encode serializes the ticket for the exchange response body.
func (t Ticket) Encode() ([]byte, error) {
	b, err := msgpack.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("ticket: encode: %w", err)
	}
	return b, nil
}

// Decode deserializes an exchange response body.
func Decode(data []byte) (Ticket, error) {
	var t Ticket
	if err := msgpack.Unmarshal(data, &t); err != nil {
		return Ticket{}, fmt.Errorf("ticket: decode: %w", err)
	}
	return t, nil
}

// ResponseCode is the one-byte outcome prefix of an exchange response.
type ResponseCode byte

const (
	CodeOk       ResponseCode = 0
	CodeNotFound ResponseCode = 1
	CodeError    ResponseCode = 2

	// CodeUnknown is never sent on the wire; it is the decode result for any
	// byte value outside the closed enumeration.
	CodeUnknown ResponseCode = 0xff
)

// ParseResponseCode is total: unrecognized bytes map to CodeUnknown.
func ParseResponseCode(b byte) ResponseCode {
	switch ResponseCode(b) {
	case CodeOk, CodeNotFound, CodeError:
		return ResponseCode(b)
	default:
		return CodeUnknown
	}
}

func (c ResponseCode) String() string {
	switch c {
	case CodeOk:
		return "ok"
	case CodeNotFound:
		return "not-found"
	case CodeError:
		return "error"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(c))
	}
}
