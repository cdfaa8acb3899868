// Package keyring is the persistent registry of local secret identities. One
// of the keys may be marked as the default; the first key added becomes the
// default automatically.
package keyring

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"dropcat.dev/dropcat/config"
	"dropcat.dev/dropcat/identity"
)

const fileName = "keys.yaml"

// DefaultKeyName is the name given to an auto-generated identity when the
// registry is empty at resolve time.
const DefaultKeyName = "default"

var (
	// ErrNotFound means no key is filed under the given name.
	ErrNotFound = errors.New("keyring: key not found")
	// ErrConflict means the name is already taken.
	ErrConflict = errors.New("keyring: conflicting entry")
)

// Key is one stored secret identity.
type Key struct {
	Name        string    `yaml:"name"`
	Secret      string    `yaml:"secret"`
	Description string    `yaml:"description,omitempty"`
	CreatedAt   time.Time `yaml:"created_at"`
}

// Identity parses the key's secret string.
func (k Key) Identity() (identity.Secret, error) {
	return identity.ParseSecret(k.Secret)
}

type document struct {
	Default string `yaml:"default,omitempty"`
	Keys    []Key  `yaml:"keys"`
}

// Ring is the key registry. It holds no in-memory state between calls.
// Entropy is always passed in by the caller, so tests can be deterministic.
type Ring struct {
	doc config.Document[document]
}

func New(dir config.Dir) *Ring {
	return &Ring{doc: config.NewDocument[document](dir, fileName)}
}

// Add files a new key under its name. The first key added becomes the
// default.
func (r *Ring) Add(k Key) error {
	if k.Name == "" {
		return fmt.Errorf("keyring: empty key name")
	}
	if _, err := k.Identity(); err != nil {
		return err
	}
	d, err := r.doc.Load()
	if err != nil {
		return err
	}
	for _, existing := range d.Keys {
		if existing.Name == k.Name {
			return fmt.Errorf("%w: key %q already exists", ErrConflict, k.Name)
		}
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	d.Keys = append(d.Keys, k)
	if len(d.Keys) == 1 {
		d.Default = k.Name
	}
	return r.doc.Save(d)
}

// Generate creates a new identity from rand, files it under name and
// optionally makes it the default.
func (r *Ring) Generate(rand io.Reader, name, description string, setDefault bool) (Key, error) {
	sec, err := identity.Generate(rand)
	if err != nil {
		return Key{}, err
	}
	k := Key{
		Name:        name,
		Secret:      sec.String(),
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.Add(k); err != nil {
		return Key{}, err
	}
	if setDefault {
		if err := r.SetDefault(name); err != nil {
			return Key{}, err
		}
	}
	return k, nil
}

// Get returns the key filed under name.
func (r *Ring) Get(name string) (Key, error) {
	d, err := r.doc.Load()
	if err != nil {
		return Key{}, err
	}
	for _, k := range d.Keys {
		if k.Name == name {
			return k, nil
		}
	}
	return Key{}, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Remove deletes the key filed under name and returns it. If the default key
// is removed, the default moves to the lexicographically smallest remaining
// name, or is cleared when no keys remain. The reassignment is deterministic
// so repeated runs over the same registry agree.
func (r *Ring) Remove(name string) (Key, error) {
	d, err := r.doc.Load()
	if err != nil {
		return Key{}, err
	}
	idx := -1
	for i, k := range d.Keys {
		if k.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Key{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	removed := d.Keys[idx]
	d.Keys = append(d.Keys[:idx], d.Keys[idx+1:]...)

	if d.Default == name {
		d.Default = ""
		if len(d.Keys) > 0 {
			names := make([]string, len(d.Keys))
			for i, k := range d.Keys {
				names[i] = k.Name
			}
			sort.Strings(names)
			d.Default = names[0]
		}
	}
	if err := r.doc.Save(d); err != nil {
		return Key{}, err
	}
	return removed, nil
}

// SetDefault marks an existing key as the default.
func (r *Ring) SetDefault(name string) error {
	d, err := r.doc.Load()
	if err != nil {
		return err
	}
	for _, k := range d.Keys {
		if k.Name == name {
			d.Default = name
			return r.doc.Save(d)
		}
	}
	return fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Default returns the name of the default key, or "" when unset.
func (r *Ring) Default() (string, error) {
	d, err := r.doc.Load()
	if err != nil {
		return "", err
	}
	return d.Default, nil
}

// List returns all keys sorted by name.
func (r *Ring) List() ([]Key, error) {
	d, err := r.doc.Load()
	if err != nil {
		return nil, err
	}
	sort.Slice(d.Keys, func(i, j int) bool { return d.Keys[i].Name < d.Keys[j].Name })
	return d.Keys, nil
}

// Resolve returns the secret identity to operate as. A non-empty name wins;
// otherwise the configured default is used; if the registry is empty, a fresh
// identity is generated from rand, persisted under DefaultKeyName and made
// the default.
func (r *Ring) Resolve(rand io.Reader, name string) (identity.Secret, error) {
	if name != "" {
		k, err := r.Get(name)
		if err != nil {
			return identity.Secret{}, err
		}
		return k.Identity()
	}

	d, err := r.doc.Load()
	if err != nil {
		return identity.Secret{}, err
	}
	if d.Default != "" {
		for _, k := range d.Keys {
			if k.Name == d.Default {
				return k.Identity()
			}
		}
		return identity.Secret{}, fmt.Errorf("%w: default key %q missing from registry", ErrNotFound, d.Default)
	}
	if len(d.Keys) > 0 {
		return identity.Secret{}, fmt.Errorf("keyring: no default key set; pass a key name")
	}

	k, err := r.Generate(rand, DefaultKeyName, "", false)
	if err != nil {
		return identity.Secret{}, err
	}
	return k.Identity()
}
