// Package hostbook is the persistent registry of known peers, keyed by a
// human-chosen alias. The whole registry is one YAML document: every mutation
// loads it, changes it in memory and saves it back.
package hostbook

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"dropcat.dev/dropcat/config"
	"dropcat.dev/dropcat/identity"
)

const fileName = "hosts.yaml"

var (
	// ErrNotFound means no host is filed under the given alias.
	ErrNotFound = errors.New("hostbook: host not found")
	// ErrConflict means an alias or identity is already taken.
	ErrConflict = errors.New("hostbook: conflicting entry")
)

// Host is one known peer.
type Host struct {
	Alias       string            `yaml:"alias"`
	Identity    string            `yaml:"identity"`
	Description string            `yaml:"description,omitempty"`
	AddedAt     time.Time         `yaml:"added_at"`
	LastSeen    *time.Time        `yaml:"last_seen,omitempty"`
	Metadata    map[string]string `yaml:"metadata,omitempty"`
}

// Public parses the host's identity string.
func (h Host) Public() (identity.Public, error) {
	return identity.ParsePublic(h.Identity)
}

type document struct {
	Hosts []Host `yaml:"hosts"`
}

// Book is the host registry. It holds no in-memory state between calls.
type Book struct {
	doc config.Document[document]
}

func New(dir config.Dir) *Book {
	return &Book{doc: config.NewDocument[document](dir, fileName)}
}

// Add files a new host. Both the alias and the identity must be unused; on
// conflict the registry is left unchanged. The identity is stored in its
// canonical string form, so the prefixed and bare spellings of the same key
// cannot slip past the uniqueness check under two aliases.
func (b *Book) Add(h Host) error {
	if h.Alias == "" {
		return fmt.Errorf("hostbook: empty alias")
	}
	pub, err := h.Public()
	if err != nil {
		return err
	}
	h.Identity = pub.String()
	d, err := b.doc.Load()
	if err != nil {
		return err
	}
	for _, existing := range d.Hosts {
		if existing.Alias == h.Alias {
			return fmt.Errorf("%w: alias %q already exists", ErrConflict, h.Alias)
		}
		if existing.Identity == h.Identity {
			return fmt.Errorf("%w: identity already filed under alias %q", ErrConflict, existing.Alias)
		}
	}
	if h.AddedAt.IsZero() {
		h.AddedAt = time.Now().UTC()
	}
	d.Hosts = append(d.Hosts, h)
	return b.doc.Save(d)
}

// Get returns the host filed under alias.
func (b *Book) Get(alias string) (Host, error) {
	d, err := b.doc.Load()
	if err != nil {
		return Host{}, err
	}
	for _, h := range d.Hosts {
		if h.Alias == alias {
			return h, nil
		}
	}
	return Host{}, fmt.Errorf("%w: %q", ErrNotFound, alias)
}

// Remove deletes the host filed under alias and returns it.
func (b *Book) Remove(alias string) (Host, error) {
	d, err := b.doc.Load()
	if err != nil {
		return Host{}, err
	}
	for i, h := range d.Hosts {
		if h.Alias == alias {
			d.Hosts = append(d.Hosts[:i], d.Hosts[i+1:]...)
			if err := b.doc.Save(d); err != nil {
				return Host{}, err
			}
			return h, nil
		}
	}
	return Host{}, fmt.Errorf("%w: %q", ErrNotFound, alias)
}

// Rename moves a host to a new alias in one load/save cycle. The target alias
// must be free.
func (b *Book) Rename(alias, newAlias string) error {
	if newAlias == "" {
		return fmt.Errorf("hostbook: empty alias")
	}
	d, err := b.doc.Load()
	if err != nil {
		return err
	}
	idx := -1
	for i, h := range d.Hosts {
		if h.Alias == newAlias && alias != newAlias {
			return fmt.Errorf("%w: alias %q already exists", ErrConflict, newAlias)
		}
		if h.Alias == alias {
			idx = i
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, alias)
	}
	d.Hosts[idx].Alias = newAlias
	return b.doc.Save(d)
}

// List returns all hosts sorted by alias.
func (b *Book) List() ([]Host, error) {
	d, err := b.doc.Load()
	if err != nil {
		return nil, err
	}
	sort.Slice(d.Hosts, func(i, j int) bool { return d.Hosts[i].Alias < d.Hosts[j].Alias })
	return d.Hosts, nil
}

// UpdateLastSeen stamps the host's last contact time. An unknown alias is a
// silent no-op: the caller just finished talking to the peer and a missing
// registry row is not worth failing the operation over.
func (b *Book) UpdateLastSeen(alias string, at time.Time) error {
	d, err := b.doc.Load()
	if err != nil {
		return err
	}
	for i := range d.Hosts {
		if d.Hosts[i].Alias == alias {
			t := at.UTC()
			d.Hosts[i].LastSeen = &t
			return b.doc.Save(d)
		}
	}
	return nil
}

// Resolve maps a command-line host argument to an identity: an alias from the
// registry first, a raw identity string otherwise.
func (b *Book) Resolve(arg string) (identity.Public, *Host, error) {
	h, err := b.Get(arg)
	if err == nil {
		pub, perr := h.Public()
		if perr != nil {
			return identity.Public{}, nil, perr
		}
		return pub, &h, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return identity.Public{}, nil, err
	}
	pub, perr := identity.ParsePublic(arg)
	if perr != nil {
		return identity.Public{}, nil, fmt.Errorf("%w: %q is neither a known alias nor an identity", ErrNotFound, arg)
	}
	return pub, nil, nil
}
