package grpccas

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"dropcat.dev/dropcat/cas"
	"dropcat.dev/dropcat/cas/registry"
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "grpc",
		Description: "gRPC store client (options: target, dial_timeout, rpc_timeout, max_msg_bytes)",
		Open: func(opts map[string]string) (cas.Store, func() error, error) {
			target := strings.TrimSpace(opts["target"])
			if target == "" {
				return nil, nil, fmt.Errorf("grpccas: missing required option \"target\"")
			}

			dialTimeout := 5 * time.Second
			if v := opts["dial_timeout"]; v != "" {
				d, err := time.ParseDuration(v)
				if err != nil {
					return nil, nil, fmt.Errorf("grpccas: invalid dial_timeout: %w", err)
				}
				dialTimeout = d
			}
			var rpcTimeout time.Duration
			if v := opts["rpc_timeout"]; v != "" {
				d, err := time.ParseDuration(v)
				if err != nil {
					return nil, nil, fmt.Errorf("grpccas: invalid rpc_timeout: %w", err)
				}
				rpcTimeout = d
			}
			var maxMsg int
			if v := opts["max_msg_bytes"]; v != "" {
				n, err := strconv.Atoi(v)
				if err != nil {
					return nil, nil, fmt.Errorf("grpccas: invalid max_msg_bytes: %w", err)
				}
				maxMsg = n
			}

			client, err := Dial(target, DialOptions{Timeout: dialTimeout, MaxMsgBytes: maxMsg})
			if err != nil {
				return nil, nil, err
			}
			client.Timeout = rpcTimeout
			return client, client.Close, nil
		},
	})
}
