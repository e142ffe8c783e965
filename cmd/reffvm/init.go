package main

import (
	"fmt"
	"strings"

	"github.com/filecoin-project/go-address"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/foxxcn/RefFVM/pkg/config"
	"github.com/foxxcn/RefFVM/pkg/gen/genesis"
	"github.com/foxxcn/RefFVM/pkg/repo"
)

func newInitCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "initialize a repo and write the genesis state into it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "config file to start from instead of the defaults",
			},
			&cli.StringFlag{
				Name:  "network",
				Usage: "network name recorded by the init actor",
			},
			&cli.Uint64Flag{
				Name:  "first-id",
				Usage: "first actor ID handed out by the init actor",
			},
			&cli.StringSliceFlag{
				Name:  "account",
				Usage: "funded account as <key address>=<attoFIL>, may be repeated",
			},
			&cli.StringSliceFlag{
				Name:  "miner",
				Usage: "miner as <owner>,<worker>[,<control>...], may be repeated",
			},
			&cli.StringFlag{
				Name:  "datastore",
				Usage: "datastore type, badgerds or memory",
			},
		},
		Action: func(cctx *cli.Context) error {
			cfg, err := initConfig(cctx)
			if err != nil {
				return err
			}

			repoDir := cctx.String(flagRepo)
			if err := repo.InitFSRepo(repoDir, cfg); err != nil {
				return err
			}
			r, err := repo.OpenFSRepo(repoDir)
			if err != nil {
				return err
			}
			defer r.Close() // nolint: errcheck

			gen, err := genesis.MakeGenesis(cctx.Context, r.Blockstore(), cfg.Genesis)
			if err != nil {
				return errors.Wrap(err, "failed to make genesis")
			}
			if err := r.SetStateRoot(cctx.Context, gen.Root); err != nil {
				return err
			}

			w := cctx.App.Writer
			_, _ = fmt.Fprintf(w, "state root: %s\n", gen.Root)
			for _, acct := range cfg.Genesis.Accounts {
				key, err := address.NewFromString(acct.Address)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(w, "account %s: %s\n", key, gen.Accounts[key])
			}
			for i, id := range gen.Miners {
				_, _ = fmt.Fprintf(w, "miner %d: %s\n", i, id)
			}
			return nil
		},
	}
}

func initConfig(cctx *cli.Context) (*config.Config, error) {
	cfg := config.NewDefaultConfig()
	if cctx.IsSet("config") {
		var err error
		if cfg, err = config.ReadFile(cctx.String("config")); err != nil {
			return nil, err
		}
	}

	if cctx.IsSet("network") {
		cfg.Genesis.NetworkName = cctx.String("network")
	}
	if cctx.IsSet("first-id") {
		cfg.Genesis.FirstActorID = cctx.Uint64("first-id")
	}
	if cctx.IsSet("datastore") {
		cfg.Datastore.Type = cctx.String("datastore")
	}
	for _, s := range cctx.StringSlice("account") {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --account %q, expected <address>=<balance>", s)
		}
		cfg.Genesis.Accounts = append(cfg.Genesis.Accounts, config.AccountConfig{Address: parts[0], Balance: parts[1]})
	}
	for _, s := range cctx.StringSlice("miner") {
		parts := strings.Split(s, ",")
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid --miner %q, expected <owner>,<worker>[,<control>...]", s)
		}
		cfg.Genesis.Miners = append(cfg.Genesis.Miners, config.MinerConfig{Owner: parts[0], Worker: parts[1], Controls: parts[2:]})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
