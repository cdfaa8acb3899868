// Package identity defines the ed25519 peer identities dropcat endpoints are
// addressed and authenticated by.
package identity

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudflare/circl/sign/ed25519"
)

const (
	publicPrefix = "ed25519:"
	secretPrefix = "ed25519-secret:"
)

// Public is a peer's public identity key.
//
// String form: "ed25519:" + base64(key). This is the form persisted in the
// host registry and typed on the command line.
type Public [ed25519.PublicKeySize]byte

func (p Public) String() string {
	return publicPrefix + base64.StdEncoding.EncodeToString(p[:])
}

// Short returns an abbreviated form for log lines and list output.
func (p Public) Short() string {
	enc := base64.StdEncoding.EncodeToString(p[:])
	if len(enc) <= 12 {
		return enc
	}
	return enc[:6] + ".." + enc[len(enc)-6:]
}

func (p Public) IsZero() bool { return p == Public{} }

func (p Public) Key() ed25519.PublicKey { return ed25519.PublicKey(p[:]) }

// Verify reports whether sig is a valid signature of message by this key.
func (p Public) Verify(message, sig []byte) bool {
	return ed25519.Verify(p.Key(), message, sig)
}

// ParsePublic parses the canonical string form. The "ed25519:" prefix is
// optional so raw base64 identities pasted from elsewhere still parse.
func ParsePublic(s string) (Public, error) {
	s = strings.TrimSpace(strings.TrimPrefix(s, publicPrefix))
	if s == "" {
		return Public{}, errors.New("identity: empty public key")
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Public{}, fmt.Errorf("identity: invalid public key encoding: %w", err)
	}
	if len(b) != ed25519.PublicKeySize {
		return Public{}, fmt.Errorf("identity: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(b))
	}
	var p Public
	copy(p[:], b)
	return p, nil
}

// Secret is a local secret identity. Its string form carries only the seed.
type Secret struct {
	priv ed25519.PrivateKey
}

// Generate creates a new secret identity from the given entropy source.
// Pass crypto/rand.Reader in production; tests may inject a deterministic one.
func Generate(rand io.Reader) (Secret, error) {
	_, priv, err := ed25519.GenerateKey(rand)
	if err != nil {
		return Secret{}, fmt.Errorf("identity: generate: %w", err)
	}
	return Secret{priv: priv}, nil
}

func (s Secret) String() string {
	if len(s.priv) == 0 {
		return ""
	}
	return secretPrefix + base64.StdEncoding.EncodeToString(s.priv.Seed())
}

func (s Secret) IsZero() bool { return len(s.priv) == 0 }

func (s Secret) Public() Public {
	var p Public
	if len(s.priv) == 0 {
		return p
	}
	copy(p[:], s.priv.Public().(ed25519.PublicKey))
	return p
}

// Sign signs message with this identity.
func (s Secret) Sign(message []byte) []byte {
	return ed25519.Sign(s.priv, message)
}

// ParseSecret parses the canonical secret string form.
func ParseSecret(str string) (Secret, error) {
	str = strings.TrimSpace(strings.TrimPrefix(str, secretPrefix))
	if str == "" {
		return Secret{}, errors.New("identity: empty secret key")
	}
	seed, err := base64.StdEncoding.DecodeString(str)
	if err != nil {
		return Secret{}, fmt.Errorf("identity: invalid secret key encoding: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return Secret{}, fmt.Errorf("identity: secret seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return Secret{priv: ed25519.NewKeyFromSeed(seed)}, nil
}
