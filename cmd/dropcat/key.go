package main

import (
	"crypto/rand"
	"errors"

	"github.com/spf13/cobra"

	"dropcat.dev/dropcat/identity"
	"dropcat.dev/dropcat/internal/ui"
	"dropcat.dev/dropcat/keyring"
)

func newKeyCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage identity keys",
	}
	cmd.AddCommand(
		newKeyGenerateCommand(a),
		newKeyAddCommand(a),
		newKeyRemoveCommand(a),
		newKeyListCommand(a),
		newKeyShowCommand(a),
		newKeyDefaultCommand(a),
	)
	return cmd
}

func newKeyGenerateCommand(a *app) *cobra.Command {
	var (
		description string
		setDefault  bool
	)
	cmd := &cobra.Command{
		Use:   "generate <name>",
		Short: "Generate a new identity key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ring, err := a.keyring()
			if err != nil {
				return err
			}
			k, err := ring.Generate(rand.Reader, args[0], description, setDefault)
			if err != nil {
				if errors.Is(err, keyring.ErrConflict) {
					ui.Warnf("%s", err)
					return errReported
				}
				return err
			}
			sec, err := k.Identity()
			if err != nil {
				return err
			}
			ui.Successf("generated key %s", k.Name)
			ui.Infof("identity: %s", sec.Public())
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "free-form note")
	cmd.Flags().BoolVar(&setDefault, "default", false, "make this the default key")
	return cmd
}

func newKeyAddCommand(a *app) *cobra.Command {
	var (
		description string
		setDefault  bool
	)
	cmd := &cobra.Command{
		Use:   "add <name> <secret>",
		Short: "Import an existing secret key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ring, err := a.keyring()
			if err != nil {
				return err
			}
			k := keyring.Key{Name: args[0], Secret: args[1], Description: description}
			if err := ring.Add(k); err != nil {
				if errors.Is(err, keyring.ErrConflict) {
					ui.Warnf("%s", err)
					return errReported
				}
				return err
			}
			if setDefault {
				if err := ring.SetDefault(k.Name); err != nil {
					return err
				}
			}
			ui.Successf("added key %s", k.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "free-form note")
	cmd.Flags().BoolVar(&setDefault, "default", false, "make this the default key")
	return cmd
}

func newKeyRemoveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ring, err := a.keyring()
			if err != nil {
				return err
			}
			if _, err := ring.Remove(args[0]); err != nil {
				if errors.Is(err, keyring.ErrNotFound) {
					ui.Warnf("%s", err)
					return errReported
				}
				return err
			}
			ui.Successf("removed key %s", args[0])
			if def, err := ring.Default(); err == nil && def != "" {
				ui.Infof("default key is now %s", def)
			}
			return nil
		},
	}
}

func newKeyListCommand(a *app) *cobra.Command {
	var showSecret bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ring, err := a.keyring()
			if err != nil {
				return err
			}
			keys, err := ring.List()
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				ui.Infof("no keys; one will be generated on first use")
				return nil
			}
			def, err := ring.Default()
			if err != nil {
				return err
			}
			for _, k := range keys {
				marker := " "
				if k.Name == def {
					marker = "*"
				}
				id := k.Secret
				if !showSecret {
					sec, err := k.Identity()
					if err != nil {
						return err
					}
					id = sec.Public().String()
				}
				ui.Plainf("%s %-16s %s", marker, k.Name, id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showSecret, "show-secret", false, "print secret keys instead of public identities")
	return cmd
}

func newKeyShowCommand(a *app) *cobra.Command {
	var showSecret bool
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show one key in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ring, err := a.keyring()
			if err != nil {
				return err
			}
			k, err := ring.Get(args[0])
			if err != nil {
				if errors.Is(err, keyring.ErrNotFound) {
					ui.Warnf("%s", err)
					return errReported
				}
				return err
			}
			var sec identity.Secret
			if sec, err = k.Identity(); err != nil {
				return err
			}
			ui.Plainf("name:        %s", k.Name)
			ui.Plainf("identity:    %s", sec.Public())
			if showSecret {
				ui.Plainf("secret:      %s", k.Secret)
			}
			if k.Description != "" {
				ui.Plainf("description: %s", k.Description)
			}
			ui.Plainf("created:     %s", ui.Ago(k.CreatedAt))
			return nil
		},
	}
	cmd.Flags().BoolVar(&showSecret, "show-secret", false, "print the secret key")
	return cmd
}

func newKeyDefaultCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "default [name]",
		Short: "Show or set the default key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ring, err := a.keyring()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				def, err := ring.Default()
				if err != nil {
					return err
				}
				if def == "" {
					ui.Infof("no default key set")
					return nil
				}
				ui.Plainf("%s", def)
				return nil
			}
			if err := ring.SetDefault(args[0]); err != nil {
				if errors.Is(err, keyring.ErrNotFound) {
					ui.Warnf("%s", err)
					return errReported
				}
				return err
			}
			ui.Successf("default key is now %s", args[0])
			return nil
		},
	}
}
