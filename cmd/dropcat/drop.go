package main

import (
	"crypto/rand"
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"

	"dropcat.dev/dropcat/blob"
	"dropcat.dev/dropcat/exchange"
	"dropcat.dev/dropcat/internal/ui"
	"dropcat.dev/dropcat/peerwire"
	"dropcat.dev/dropcat/peerwire/tcplink"
	"dropcat.dev/dropcat/ticket"
)

func newDropCommand(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "drop <file>",
		Short: "Offer a file and print its query code",
		Long: "Reads the file into the local store, publishes a ticket under a " +
			"6-character query code and serves ticket and content requests until " +
			"interrupted.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			ring, err := a.keyring()
			if err != nil {
				return err
			}
			sec, err := ring.Resolve(rand.Reader, a.keyName)
			if err != nil {
				return err
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			blobs := &blob.Store{CAS: store, Logger: a.logger}

			d, filename, err := blobs.Ingest(args[0])
			if err != nil {
				return err
			}
			tk := ticket.New(d).WithFilename(filename)

			reg := exchange.NewRegistry()
			reg.Insert(tk)

			mux := peerwire.NewMux()
			mux.Handle(exchange.Protocol, (&exchange.Server{Registry: reg, Logger: a.logger}).Handler())
			mux.Handle(blob.Protocol, blobs.Handler())

			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("listen %s: %w", listen, err)
			}

			size := int64(0)
			if fi, err := os.Stat(args[0]); err == nil {
				size = fi.Size()
			}
			ui.Successf("dropped %s (%s)", filename, ui.Bytes(int(size)))
			ui.Infof("query code: %s", tk.Query)
			ui.Infof("identity:   %s", sec.Public())
			ui.Infof("address:    %s", ln.Addr())
			ui.Plainf("")
			ui.Plainf("on the other machine:")
			ui.Plainf("  dropcat catch <this-host> %s --addr <address>", tk.Query)

			srv := &tcplink.Server{Secret: sec, Mux: mux, Logger: a.logger}
			return srv.Serve(ctx, ln)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", ":41170", "address to serve on")
	return cmd
}
