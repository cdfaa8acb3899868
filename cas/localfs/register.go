package localfs

import (
	"fmt"

	"dropcat.dev/dropcat/cas"
	"dropcat.dev/dropcat/cas/registry"
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "localfs",
		Description: "Local filesystem object store (option: dir)",
		Open: func(opts map[string]string) (cas.Store, func() error, error) {
			dir := opts["dir"]
			if dir == "" {
				return nil, nil, fmt.Errorf("localfs: missing required option \"dir\"")
			}
			s, err := New(dir)
			return s, nil, err
		},
	})
}
