package cidutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Digest identifies content by its sha-256 hash.
//
// The canonical string form is the 64-character lowercase hex of the raw
// sha-256 digest. This is what users see, what ticket query codes are derived
// from, and what crosses the blob protocol. Storage keys by CID instead; the
// two forms convert losslessly in both directions.
type Digest struct {
	sum [sha256.Size]byte
}

func (d Digest) String() string { return hex.EncodeToString(d.sum[:]) }

// Short returns the leading n characters of the hex form.
func (d Digest) Short(n int) string {
	s := d.String()
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}

// CID returns the CIDv1 (raw + sha2-256) wrapping this digest.
func (d Digest) CID() cid.Cid {
	sum, err := multihash.Encode(d.sum[:], multihash.SHA2_256)
	if err != nil {
		// Encode only fails for unknown codes; SHA2_256 is always known.
		return cid.Undef
	}
	return cid.NewCidV1(cid.Raw, sum)
}

// ParseDigest parses the canonical hex form.
func ParseDigest(s string) (Digest, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, fmt.Errorf("cidutil: invalid digest %q: %w", s, err)
	}
	if len(b) != sha256.Size {
		return Digest{}, fmt.Errorf("cidutil: digest must be %d bytes, got %d", sha256.Size, len(b))
	}
	var d Digest
	copy(d.sum[:], b)
	return d, nil
}

// DigestFromCID extracts the sha-256 digest carried by a raw CIDv1.
func DigestFromCID(id cid.Cid) (Digest, error) {
	if !id.Defined() {
		return Digest{}, fmt.Errorf("cidutil: undefined cid")
	}
	dec, err := multihash.Decode(id.Hash())
	if err != nil {
		return Digest{}, err
	}
	if dec.Code != multihash.SHA2_256 || len(dec.Digest) != sha256.Size {
		return Digest{}, fmt.Errorf("cidutil: unsupported multihash code %d", dec.Code)
	}
	var d Digest
	copy(d.sum[:], dec.Digest)
	return d, nil
}

// DigestBytes hashes data.
func DigestBytes(data []byte) Digest {
	return Digest{sum: sha256.Sum256(data)}
}

// DigestFile hashes the contents of the file at path without loading it
// whole into memory.
func DigestFile(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return Digest{}, err
	}
	var d Digest
	copy(d.sum[:], h.Sum(nil))
	return d, nil
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}
