package main

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dropcat.dev/dropcat/blob"
	"dropcat.dev/dropcat/exchange"
	"dropcat.dev/dropcat/hostbook"
	"dropcat.dev/dropcat/identity"
	"dropcat.dev/dropcat/internal/ui"
	"dropcat.dev/dropcat/peerwire/tcplink"
	"dropcat.dev/dropcat/ticket"
)

func newCatchCommand(a *app) *cobra.Command {
	var (
		output string
		addr   string
	)

	cmd := &cobra.Command{
		Use:   "catch <host|identity> <query>",
		Short: "Fetch a dropped file by query code",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			hostArg, query := args[0], args[1]

			book, err := a.hostbook()
			if err != nil {
				return err
			}
			peer, host, err := book.Resolve(hostArg)
			if err != nil {
				return err
			}
			resolve, err := addrResolver(addr, host)
			if err != nil {
				return err
			}

			ring, err := a.keyring()
			if err != nil {
				return err
			}
			sec, err := ring.Resolve(rand.Reader, a.keyName)
			if err != nil {
				return err
			}

			dialer := &tcplink.Dialer{Secret: sec, Resolve: resolve}
			client := &exchange.Client{Dialer: dialer, Logger: a.logger}

			res, err := client.Fetch(ctx, peer, query)
			if err != nil {
				return err
			}
			switch res.Code {
			case ticket.CodeOk:
			case ticket.CodeNotFound:
				ui.Warnf("no file is offered under %q", query)
				return errReported
			default:
				ui.Warnf("peer could not serve %q", query)
				return errReported
			}

			d, err := res.Ticket.Digest()
			if err != nil {
				return err
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			blobs := &blob.Store{CAS: store, Logger: a.logger}
			if err := blobs.Download(ctx, d, peer, dialer); err != nil {
				return err
			}

			dest := output
			if dest == "" {
				dest = res.Ticket.Filename
			}
			if dest == "" {
				dest = d.Short(8)
			}
			if err := blobs.Export(d, dest); err != nil {
				return err
			}

			if host != nil {
				if err := book.UpdateLastSeen(host.Alias, time.Now()); err != nil {
					a.logger.Warn("failed to update last seen", "alias", host.Alias, "error", err)
				}
			}
			ui.Successf("caught %s", dest)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the file to this path")
	cmd.Flags().StringVar(&addr, "addr", "", "dial this address instead of the host's stored one")
	return cmd
}

// addrResolver picks the dial address: an explicit --addr wins, then the
// host's stored "addr" metadata.
func addrResolver(flagAddr string, host *hostbook.Host) (tcplink.AddrResolver, error) {
	if flagAddr != "" {
		return tcplink.StaticAddr(flagAddr), nil
	}
	if host != nil {
		if stored, ok := host.Metadata["addr"]; ok && stored != "" {
			return tcplink.StaticAddr(stored), nil
		}
		return nil, fmt.Errorf("host %q has no stored address; pass --addr", host.Alias)
	}
	return func(identity.Public) (string, error) {
		return "", fmt.Errorf("no address known for this identity; pass --addr")
	}, nil
}
