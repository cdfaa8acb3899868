// Package blob moves file content in and out of the content-addressed store
// and across the wire. Only digests cross its API; callers never see raw
// bytes.
package blob

import (
	"fmt"
	"os"
	"path/filepath"

	"pkt.systems/pslog"

	"dropcat.dev/dropcat/cas"
	"dropcat.dev/dropcat/cidutil"
)

// Store is the blob facade the drop and catch flows talk to.
type Store struct {
	CAS    cas.Store
	Logger pslog.Logger
}

func (s *Store) log() pslog.Logger {
	if s.Logger == nil {
		return pslog.NoopLogger()
	}
	return s.Logger
}

// Ingest reads the file at path into the store and returns its digest and
// base filename.
func (s *Store) Ingest(path string) (cidutil.Digest, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cidutil.Digest{}, "", fmt.Errorf("blob: read %s: %w", path, err)
	}
	id, err := s.CAS.Put(data)
	if err != nil {
		return cidutil.Digest{}, "", fmt.Errorf("blob: ingest %s: %w", path, err)
	}
	d, err := cidutil.DigestFromCID(id)
	if err != nil {
		return cidutil.Digest{}, "", err
	}
	s.log().Debug("ingested file", "path", path, "hash", d.String(), "bytes", len(data))
	return d, filepath.Base(path), nil
}

// Has reports whether the digest's content is available locally.
func (s *Store) Has(d cidutil.Digest) bool {
	return s.CAS.Has(d.CID())
}

// Export materializes the digest's content at dest, creating parent
// directories as needed.
func (s *Store) Export(d cidutil.Digest, dest string) error {
	data, err := s.CAS.Get(d.CID())
	if err != nil {
		return fmt.Errorf("blob: export %s: %w", d.Short(8), err)
	}
	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("blob: create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("blob: write %s: %w", dest, err)
	}
	s.log().Debug("exported file", "hash", d.String(), "dest", dest)
	return nil
}
