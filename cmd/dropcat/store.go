package main

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"dropcat.dev/dropcat/cas"
	"dropcat.dev/dropcat/cas/grpccas"
	"dropcat.dev/dropcat/cas/registry"
	"dropcat.dev/dropcat/cidutil"
	"dropcat.dev/dropcat/internal/ui"
)

func newStoreCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Operate on the object store",
	}
	cmd.AddCommand(
		newStoreServeCommand(a),
		newStorePutCommand(a),
		newStoreGetCommand(a),
		newStoreHasCommand(a),
		newStoreBackendsCommand(a),
	)
	return cmd
}

func newStoreServeCommand(a *app) *cobra.Command {
	var (
		listen     string
		backendCfg string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the object store over gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				store   cas.Store
				closeFn func() error
				err     error
			)
			if backendCfg != "" {
				cfg, cerr := registry.LoadConfigFile(backendCfg)
				if cerr != nil {
					return cerr
				}
				store, closeFn, err = cfg.OpenAll()
			} else {
				store, err = a.openStore()
			}
			if err != nil {
				return err
			}
			if closeFn != nil {
				defer closeFn()
			}

			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("listen %s: %w", listen, err)
			}
			defer ln.Close()

			s := grpc.NewServer()
			grpccas.RegisterStoreServer(s, &grpccas.Server{Store: store, Logger: a.logger})

			go func() {
				<-cmd.Context().Done()
				s.GracefulStop()
			}()
			ui.Infof("store listening on %s", ln.Addr())
			return s.Serve(ln)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:9470", "listen address")
	cmd.Flags().StringVar(&backendCfg, "backend-config", "", "JSON backend configuration file")
	return cmd
}

func newStorePutCommand(a *app) *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "put <file>",
		Short: "Store a file and print its digest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := openTarget(a, target)
			if err != nil {
				return err
			}
			defer cleanup()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			id, err := store.Put(data)
			if err != nil {
				return err
			}
			d, err := cidutil.DigestFromCID(id)
			if err != nil {
				return err
			}
			ui.Successf("stored %s (%s)", d, ui.Bytes(len(data)))
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "gRPC store address (default: local store)")
	return cmd
}

func newStoreGetCommand(a *app) *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "get <digest>",
		Short: "Print stored content to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := cidutil.ParseDigest(args[0])
			if err != nil {
				return err
			}
			store, cleanup, err := openTarget(a, target)
			if err != nil {
				return err
			}
			defer cleanup()

			data, err := store.Get(d.CID())
			if errors.Is(err, cas.ErrNotFound) {
				ui.Warnf("%s is not in the store", d.Short(8))
				return errReported
			}
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "gRPC store address (default: local store)")
	return cmd
}

func newStoreHasCommand(a *app) *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "has <digest>",
		Short: "Check whether content is stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := cidutil.ParseDigest(args[0])
			if err != nil {
				return err
			}
			store, cleanup, err := openTarget(a, target)
			if err != nil {
				return err
			}
			defer cleanup()

			if !store.Has(d.CID()) {
				ui.Warnf("%s is not in the store", d.Short(8))
				return errReported
			}
			ui.Successf("%s is in the store", d.Short(8))
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "gRPC store address (default: local store)")
	return cmd
}

func newStoreBackendsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List available store backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, b := range registry.List() {
				if b.Description == "" {
					ui.Plainf("%s", b.Name)
					continue
				}
				ui.Plainf("%s\t%s", b.Name, b.Description)
			}
			return nil
		},
	}
}

// openTarget opens either the local store or a remote gRPC one.
func openTarget(a *app, target string) (cas.Store, func() error, error) {
	if target == "" {
		store, err := a.openStore()
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	}
	client, err := grpccas.Dial(target, grpccas.DialOptions{})
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}
