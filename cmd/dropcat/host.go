package main

import (
	"errors"

	"github.com/spf13/cobra"

	"dropcat.dev/dropcat/hostbook"
	"dropcat.dev/dropcat/internal/ui"
)

func newHostCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Manage known hosts",
	}
	cmd.AddCommand(
		newHostAddCommand(a),
		newHostRemoveCommand(a),
		newHostListCommand(a),
		newHostShowCommand(a),
		newHostRenameCommand(a),
	)
	return cmd
}

func newHostAddCommand(a *app) *cobra.Command {
	var (
		description string
		addr        string
	)
	cmd := &cobra.Command{
		Use:   "add <alias> <identity>",
		Short: "File a peer identity under an alias",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := a.hostbook()
			if err != nil {
				return err
			}
			h := hostbook.Host{
				Alias:       args[0],
				Identity:    args[1],
				Description: description,
			}
			if addr != "" {
				h.Metadata = map[string]string{"addr": addr}
			}
			if err := book.Add(h); err != nil {
				if errors.Is(err, hostbook.ErrConflict) {
					ui.Warnf("%s", err)
					return errReported
				}
				return err
			}
			ui.Successf("added host %s", h.Alias)
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "free-form note")
	cmd.Flags().StringVar(&addr, "addr", "", "dialable address to store with the host")
	return cmd
}

func newHostRemoveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <alias>",
		Short: "Remove a host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := a.hostbook()
			if err != nil {
				return err
			}
			h, err := book.Remove(args[0])
			if err != nil {
				if errors.Is(err, hostbook.ErrNotFound) {
					ui.Warnf("%s", err)
					return errReported
				}
				return err
			}
			ui.Successf("removed host %s (%s)", h.Alias, h.Identity)
			return nil
		},
	}
}

func newHostListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known hosts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := a.hostbook()
			if err != nil {
				return err
			}
			hosts, err := book.List()
			if err != nil {
				return err
			}
			if len(hosts) == 0 {
				ui.Infof("no hosts known")
				return nil
			}
			for _, h := range hosts {
				last := "never seen"
				if h.LastSeen != nil {
					last = "seen " + ui.Ago(*h.LastSeen)
				}
				ui.Plainf("%-16s %s (%s)", h.Alias, h.Identity, last)
			}
			return nil
		},
	}
}

func newHostShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <alias>",
		Short: "Show one host in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := a.hostbook()
			if err != nil {
				return err
			}
			h, err := book.Get(args[0])
			if err != nil {
				if errors.Is(err, hostbook.ErrNotFound) {
					ui.Warnf("%s", err)
					return errReported
				}
				return err
			}
			ui.Plainf("alias:       %s", h.Alias)
			ui.Plainf("identity:    %s", h.Identity)
			if h.Description != "" {
				ui.Plainf("description: %s", h.Description)
			}
			ui.Plainf("added:       %s", ui.Ago(h.AddedAt))
			if h.LastSeen != nil {
				ui.Plainf("last seen:   %s", ui.Ago(*h.LastSeen))
			} else {
				ui.Plainf("last seen:   never")
			}
			for k, v := range h.Metadata {
				ui.Plainf("%s:        %s", k, v)
			}
			return nil
		},
	}
}

func newHostRenameCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <alias> <new-alias>",
		Short: "Rename a host",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := a.hostbook()
			if err != nil {
				return err
			}
			if err := book.Rename(args[0], args[1]); err != nil {
				if errors.Is(err, hostbook.ErrNotFound) || errors.Is(err, hostbook.ErrConflict) {
					ui.Warnf("%s", err)
					return errReported
				}
				return err
			}
			ui.Successf("renamed %s to %s", args[0], args[1])
			return nil
		},
	}
}
