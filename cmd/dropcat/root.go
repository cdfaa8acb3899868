package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	"dropcat.dev/dropcat/cas"
	"dropcat.dev/dropcat/cas/localfs"
	"dropcat.dev/dropcat/config"
	"dropcat.dev/dropcat/hostbook"
	"dropcat.dev/dropcat/keyring"
)

// errReported marks failures whose message already went through ui; main
// must not print them a second time.
var errReported = errors.New("reported")

type app struct {
	logger pslog.Logger

	configDir string
	keyName   string
	storeDir  string
}

func (a *app) dir() (config.Dir, error) {
	if a.configDir != "" {
		return config.Dir(a.configDir), nil
	}
	return config.DefaultDir()
}

func (a *app) hostbook() (*hostbook.Book, error) {
	dir, err := a.dir()
	if err != nil {
		return nil, err
	}
	return hostbook.New(dir), nil
}

func (a *app) keyring() (*keyring.Ring, error) {
	dir, err := a.dir()
	if err != nil {
		return nil, err
	}
	return keyring.New(dir), nil
}

// openStore opens the local object store: --store when set, otherwise
// <config-dir>/objects.
func (a *app) openStore() (cas.Store, error) {
	root := a.storeDir
	if root == "" {
		dir, err := a.dir()
		if err != nil {
			return nil, err
		}
		root = dir.Join("objects")
	}
	return localfs.New(root)
}

func newRootCommand(logger pslog.Logger) *cobra.Command {
	a := &app{logger: logger}

	root := &cobra.Command{
		Use:           "dropcat",
		Short:         "Peer-to-peer single-file handoff",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Env fills any flag the user left at its default.
			if !cmd.Flags().Changed("config-dir") && viper.GetString("config-dir") != "" {
				a.configDir = viper.GetString("config-dir")
			}
			if !cmd.Flags().Changed("key") && viper.GetString("key") != "" {
				a.keyName = viper.GetString("key")
			}
			if !cmd.Flags().Changed("store") && viper.GetString("store") != "" {
				a.storeDir = viper.GetString("store")
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configDir, "config-dir", "", "configuration directory (default: per-user config dir)")
	pf.StringVar(&a.keyName, "key", "", "name of the identity key to operate as")
	pf.StringVar(&a.storeDir, "store", "", "object store directory (default: <config-dir>/objects)")

	viper.SetEnvPrefix("DROPCAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	for _, name := range []string{"config-dir", "key", "store"} {
		if err := viper.BindPFlag(name, pf.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}

	root.AddCommand(
		newDropCommand(a),
		newCatchCommand(a),
		newHostCommand(a),
		newKeyCommand(a),
		newStoreCommand(a),
	)
	return root
}
