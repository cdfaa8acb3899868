package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"dropcat.dev/dropcat/cas"
)

// Config describes how to open one or more store backends.
//
// WritePolicy values:
// - "first" (default): write only to the first backend; reads fall back in order
// - "all": write to all backends and require CID equality (cas.Mirror)
//
// Example:
//
//	{
//	  "write_policy": "all",
//	  "backends": [
//	    {"name":"localfs", "options":{"dir":"/var/lib/dropcat/objects"}},
//	    {"name":"grpc", "options":{"target":"127.0.0.1:9470"}}
//	  ]
//	}
type Config struct {
	WritePolicy string          `json:"write_policy,omitempty"`
	Backends    []BackendConfig `json:"backends"`
}

type BackendConfig struct {
	// Name is the registered backend to open (e.g. "localfs", "grpc").
	Name string `json:"name"`
	// ID is an optional stable alias for per-backend reporting; Name if empty.
	ID      string            `json:"id,omitempty"`
	Options map[string]string `json:"options,omitempty"`
}

func LoadConfigFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("registry: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if len(c.Backends) == 0 {
		return errors.New("registry: at least one backend is required")
	}
	seen := make(map[string]struct{}, len(c.Backends))
	for _, b := range c.Backends {
		if b.Name == "" {
			return errors.New("registry: backend name is required")
		}
		id := b.Name
		if b.ID != "" {
			id = b.ID
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("registry: duplicate backend id %q", id)
		}
		seen[id] = struct{}{}
	}
	switch c.WritePolicy {
	case "", "first", "all":
		return nil
	default:
		return fmt.Errorf("registry: invalid write_policy %q", c.WritePolicy)
	}
}

// OpenAll opens every configured backend and composes them per WritePolicy.
func (c Config) OpenAll() (cas.Store, func() error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	named := make([]cas.Named, 0, len(c.Backends))
	closers := make([]func() error, 0, len(c.Backends))
	for _, b := range c.Backends {
		store, closeFn, err := Open(b.Name, b.Options)
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
			return nil, nil, err
		}
		id := b.Name
		if b.ID != "" {
			id = b.ID
		}
		named = append(named, cas.Named{Name: id, Store: store})
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
	}

	closeAll := func() error {
		var firstErr error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	if len(named) == 1 {
		return named[0].Store, closeAll, nil
	}

	switch c.WritePolicy {
	case "", "first":
		stores := make([]cas.Store, 0, len(named))
		for _, n := range named {
			stores = append(stores, n.Store)
		}
		return cas.Fallback{Stores: stores}, closeAll, nil
	default: // "all", already validated
		return cas.Mirror{Backends: named}, closeAll, nil
	}
}
