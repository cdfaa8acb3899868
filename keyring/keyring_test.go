package keyring

import (
	"crypto/rand"
	"errors"
	"testing"

	"dropcat.dev/dropcat/config"
	"dropcat.dev/dropcat/identity"
)

func newRing(t *testing.T) *Ring {
	t.Helper()
	return New(config.Dir(t.TempDir()))
}

func newSecretString(t *testing.T) string {
	t.Helper()
	sec, err := identity.Generate(rand.Reader)
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}
	return sec.String()
}

func TestFirstKeyBecomesDefault(t *testing.T) {
	r := newRing(t)
	if _, err := r.Generate(rand.Reader, "work", "office identity", false); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	def, err := r.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if def != "work" {
		t.Fatalf("default: got %q want work", def)
	}

	// A second key does not displace the default.
	if _, err := r.Generate(rand.Reader, "home", "", false); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if def, _ = r.Default(); def != "work" {
		t.Fatalf("default moved to %q unexpectedly", def)
	}
}

func TestGenerateSetDefault(t *testing.T) {
	r := newRing(t)
	if _, err := r.Generate(rand.Reader, "first", "", false); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := r.Generate(rand.Reader, "second", "", true); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if def, _ := r.Default(); def != "second" {
		t.Fatalf("default: got %q want second", def)
	}
}

func TestAddDuplicateName(t *testing.T) {
	r := newRing(t)
	if err := r.Add(Key{Name: "work", Secret: newSecretString(t)}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	err := r.Add(Key{Name: "work", Secret: newSecretString(t)})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("got %v want ErrConflict", err)
	}
}

func TestAddRejectsMalformedSecret(t *testing.T) {
	r := newRing(t)
	if err := r.Add(Key{Name: "bad", Secret: "garbage"}); err == nil {
		t.Fatalf("Add should reject a malformed secret")
	}
}

func TestRemoveReassignsDefaultDeterministically(t *testing.T) {
	r := newRing(t)
	for _, name := range []string{"mid", "zeta", "alpha"} {
		if _, err := r.Generate(rand.Reader, name, "", false); err != nil {
			t.Fatalf("Generate %s: %v", name, err)
		}
	}
	// "mid" was first, so it is the default.
	if _, err := r.Remove("mid"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	def, err := r.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if def != "alpha" {
		t.Fatalf("default after removal: got %q want alpha", def)
	}
}

func TestRemoveLastKeyClearsDefault(t *testing.T) {
	r := newRing(t)
	if _, err := r.Generate(rand.Reader, "only", "", false); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := r.Remove("only"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if def, _ := r.Default(); def != "" {
		t.Fatalf("default should be cleared, got %q", def)
	}
}

func TestRemoveNonDefaultLeavesDefault(t *testing.T) {
	r := newRing(t)
	for _, name := range []string{"keep", "drop"} {
		if _, err := r.Generate(rand.Reader, name, "", false); err != nil {
			t.Fatalf("Generate %s: %v", name, err)
		}
	}
	if _, err := r.Remove("drop"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if def, _ := r.Default(); def != "keep" {
		t.Fatalf("default: got %q want keep", def)
	}
}

func TestRemoveUnknown(t *testing.T) {
	r := newRing(t)
	if _, err := r.Remove("ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v want ErrNotFound", err)
	}
}

func TestSetDefaultUnknown(t *testing.T) {
	r := newRing(t)
	if err := r.SetDefault("ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v want ErrNotFound", err)
	}
}

func TestResolveExplicitName(t *testing.T) {
	r := newRing(t)
	k, err := r.Generate(rand.Reader, "work", "", false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := r.Generate(rand.Reader, "home", "", true); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	sec, err := r.Resolve(rand.Reader, "work")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if sec.String() != k.Secret {
		t.Fatalf("explicit name should win over default")
	}
}

func TestResolveDefault(t *testing.T) {
	r := newRing(t)
	k, err := r.Generate(rand.Reader, "work", "", false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	sec, err := r.Resolve(rand.Reader, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if sec.String() != k.Secret {
		t.Fatalf("Resolve should return the default key")
	}
}

func TestResolveEmptyRegistryAutoGenerates(t *testing.T) {
	dir := config.Dir(t.TempDir())
	r := New(dir)

	sec, err := r.Resolve(rand.Reader, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if sec.IsZero() {
		t.Fatalf("Resolve should return a usable identity")
	}

	// The generated identity is persisted and stable across instances.
	again, err := New(dir).Resolve(rand.Reader, "")
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if again.String() != sec.String() {
		t.Fatalf("auto-generated identity should persist")
	}
	k, err := r.Get(DefaultKeyName)
	if err != nil {
		t.Fatalf("Get default: %v", err)
	}
	if k.Secret != sec.String() {
		t.Fatalf("persisted secret mismatch")
	}
}

func TestResolveUnknownName(t *testing.T) {
	r := newRing(t)
	if _, err := r.Resolve(rand.Reader, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v want ErrNotFound", err)
	}
}

func TestListSortedByName(t *testing.T) {
	r := newRing(t)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if _, err := r.Generate(rand.Reader, name, "", false); err != nil {
			t.Fatalf("Generate %s: %v", name, err)
		}
	}
	keys, err := r.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, k := range keys {
		if k.Name != want[i] {
			t.Fatalf("order: got %q at %d want %q", k.Name, i, want[i])
		}
	}
}
