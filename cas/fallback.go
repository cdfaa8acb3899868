package cas

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"

	"dropcat.dev/dropcat/cidutil"
)

// Fallback reads from a fixed, ordered list of stores and writes only to the
// first one. Slice order is the retrieval order; callers MUST supply a fixed
// order so hydration stays deterministic.
type Fallback struct {
	Stores []Store
}

var _ Store = Fallback{}

func (f Fallback) Put(data []byte) (cid.Cid, error) {
	if len(f.Stores) == 0 {
		return cid.Undef, errors.New("cas: fallback has no stores")
	}
	return f.Stores[0].Put(data)
}

func (f Fallback) Get(id cid.Cid) ([]byte, error) {
	var sawNotFound bool
	for _, s := range f.Stores {
		b, err := s.Get(id)
		if err == nil {
			return b, nil
		}
		if IsNotFound(err) {
			sawNotFound = true
			continue
		}
		return nil, err
	}
	if sawNotFound {
		return nil, ErrNotFound
	}
	return nil, errors.New("cas: fallback has no stores")
}

func (f Fallback) Has(id cid.Cid) bool {
	for _, s := range f.Stores {
		if s.Has(id) {
			return true
		}
	}
	return false
}

// Named associates a store with a stable backend name for reporting.
type Named struct {
	Name  string
	Store Store
}

// Mirror writes every object to all configured backends and requires the
// returned CIDs to agree. Reads fall back in order.
type Mirror struct {
	Backends []Named
}

var _ Store = Mirror{}

func (m Mirror) Put(data []byte) (cid.Cid, error) {
	id, _, err := m.PutAll(data)
	return id, err
}

// PutAll writes data to all backends and returns the canonical CID plus the
// per-backend CID map. Any disagreement is ErrCIDMismatch.
func (m Mirror) PutAll(data []byte) (cid.Cid, map[string]cid.Cid, error) {
	if len(m.Backends) == 0 {
		return cid.Undef, nil, errors.New("cas: mirror has no backends")
	}
	want, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, nil, err
	}
	got := make(map[string]cid.Cid, len(m.Backends))
	for _, b := range m.Backends {
		id, err := b.Store.Put(data)
		if err != nil {
			return cid.Undef, got, fmt.Errorf("cas: mirror put to %q: %w", b.Name, err)
		}
		got[b.Name] = id
		if id != want {
			return cid.Undef, got, ErrCIDMismatch
		}
	}
	return want, got, nil
}

func (m Mirror) Get(id cid.Cid) ([]byte, error) {
	stores := make([]Store, 0, len(m.Backends))
	for _, b := range m.Backends {
		stores = append(stores, b.Store)
	}
	return Fallback{Stores: stores}.Get(id)
}

func (m Mirror) Has(id cid.Cid) bool {
	for _, b := range m.Backends {
		if b.Store.Has(id) {
			return true
		}
	}
	return false
}
