// Package config persists whole-document YAML registries under an explicit
// configuration directory. There is no incremental update: every mutation is
// load, change in memory, save.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Dir is the configuration directory both registries live in. It is always
// passed explicitly so tests can point registries at a temp dir.
type Dir string

// DefaultDir resolves the per-user location (e.g. ~/.config/dropcat).
func DefaultDir() (Dir, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve user config dir: %w", err)
	}
	return Dir(filepath.Join(base, "dropcat")), nil
}

func (d Dir) Join(name string) string { return filepath.Join(string(d), name) }

// Document is a whole-file YAML document of type T.
//
// Load returns T's zero value when the file does not exist and fails the
// whole operation on any parse error; there is no partial recovery. Save
// serializes the entire value and overwrites the file, creating parent
// directories as needed. Concurrent writers on the same file are not
// detected: last save wins.
type Document[T any] struct {
	Path string
}

func NewDocument[T any](dir Dir, name string) Document[T] {
	return Document[T]{Path: dir.Join(name)}
}

func (d Document[T]) Load() (T, error) {
	var v T
	data, err := os.ReadFile(d.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return v, nil
		}
		return v, fmt.Errorf("config: read %s: %w", d.Path, err)
	}
	if err := yaml.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("config: parse %s: %w", d.Path, err)
	}
	return v, nil
}

func (d Document[T]) Save(v T) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("config: encode %s: %w", d.Path, err)
	}
	if err := os.MkdirAll(filepath.Dir(d.Path), 0o700); err != nil {
		return fmt.Errorf("config: create %s: %w", filepath.Dir(d.Path), err)
	}
	if err := os.WriteFile(d.Path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", d.Path, err)
	}
	return nil
}

func (d Document[T]) Exists() bool {
	_, err := os.Stat(d.Path)
	return err == nil
}
