// reffvm applies messages to a local actor state kept in a repo directory.
package main

import (
	"fmt"
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
)

var log = logging.Logger("reffvm")

const (
	flagRepo     = "repo"
	flagLogLevel = "log-level"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "reffvm",
		Usage: "apply actor messages to a local state tree",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagRepo,
				Usage:   "repo directory",
				Value:   "~/.reffvm",
				EnvVars: []string{"REFFVM_PATH"},
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "log level of every logger, overrides the repo config",
			},
		},
		Before: func(cctx *cli.Context) error {
			if !cctx.IsSet(flagLogLevel) {
				return nil
			}
			return setLogLevel(cctx.String(flagLogLevel))
		},
		Commands: []*cli.Command{
			newInitCmd(),
			newSendCmd(),
			newResolveCmd(),
			newControlAddrsCmd(),
			newAddBalanceCmd(),
			newWithdrawBalanceCmd(),
			newActorCmd(),
			newEscrowCmd(),
			newMinersCmd(),
		},
	}
}

func setLogLevel(level string) error {
	lvl, err := logging.LevelFromString(level)
	if err != nil {
		return err
	}
	logging.SetAllLoggers(lvl)
	return nil
}

func main() {
	app := newApp()
	app.Setup()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ERR: %v\n", err) // nolint: errcheck
		os.Exit(1)
	}
}
