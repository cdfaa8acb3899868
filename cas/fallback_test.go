package cas

import (
	"bytes"
	"testing"

	"dropcat.dev/dropcat/cidutil"
)

func TestFallbackReadsSecondTier(t *testing.T) {
	first := NewMemory()
	second := NewMemory()

	data := []byte("only in second tier")
	id, err := second.Put(data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	f := Fallback{Stores: []Store{first, second}}
	got, err := f.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("bytes mismatch")
	}
	if !f.Has(id) {
		t.Fatalf("Has should see second tier")
	}
}

func TestFallbackWritesFirstTierOnly(t *testing.T) {
	first := NewMemory()
	second := NewMemory()
	f := Fallback{Stores: []Store{first, second}}

	id, err := f.Put([]byte("written through fallback"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !first.Has(id) {
		t.Fatalf("first tier should hold the object")
	}
	if second.Has(id) {
		t.Fatalf("second tier must not be written")
	}
}

func TestMirrorPutAll(t *testing.T) {
	a := NewMemory()
	b := NewMemory()
	m := Mirror{Backends: []Named{{Name: "a", Store: a}, {Name: "b", Store: b}}}

	data := []byte("mirrored")
	id, perBackend, err := m.PutAll(data)
	if err != nil {
		t.Fatalf("PutAll: %v", err)
	}
	want, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		t.Fatalf("CIDv1RawSHA256CID: %v", err)
	}
	if id != want {
		t.Fatalf("canonical CID mismatch")
	}
	if len(perBackend) != 2 || perBackend["a"] != want || perBackend["b"] != want {
		t.Fatalf("per-backend map wrong: %v", perBackend)
	}
	if !a.Has(id) || !b.Has(id) {
		t.Fatalf("both backends should hold the object")
	}
}
