// Package cas defines the content-addressable blob storage contract used by
// the drop and catch flows. Only CIDs and opaque bytes cross this boundary.
package cas

import (
	"errors"

	"github.com/ipfs/go-cid"
)

// Store is a minimal content-addressable store.
//
// Contract:
// - Put MUST be idempotent.
// - Stored objects MUST be immutable.
// - CIDs MUST be derived from the bytes written.
// - Get MUST return ErrNotFound when the CID is absent.
type Store interface {
	Put(data []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}

var (
	ErrNotFound    = errors.New("cas: not found")
	ErrInvalidCID  = errors.New("cas: invalid cid")
	ErrCIDMismatch = errors.New("cas: cid mismatch")
	ErrImmutable   = errors.New("cas: immutable object mismatch")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
