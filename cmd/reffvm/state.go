package main

import (
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/foxxcn/RefFVM/pkg/builtin"
	"github.com/foxxcn/RefFVM/pkg/types"
	"github.com/foxxcn/RefFVM/pkg/vm/runtime"
)

func addressParam(cctx *cli.Context) (address.Address, error) {
	if cctx.NArg() != 1 {
		return address.Undef, fmt.Errorf("expected exactly one address argument")
	}
	return address.NewFromString(cctx.Args().First())
}

func newResolveCmd() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "print the ID address of an actor",
		ArgsUsage: "<address>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "assign-from",
				Usage: "if the address is unmapped, send it a zero value message from this account to assign an ID",
			},
			newGasLimitFlag(),
		},
		Action: func(cctx *cli.Context) error {
			addr, err := addressParam(cctx)
			if err != nil {
				return err
			}

			n, err := openNode(cctx)
			if err != nil {
				return err
			}
			defer n.Close() // nolint: errcheck

			resolver := &messageResolver{cctx: cctx, n: n, receipts: cctx.App.ErrWriter}
			var id address.Address
			if cctx.IsSet("assign-from") {
				if resolver.from, err = addressArg(cctx, "assign-from"); err != nil {
					return err
				}
				if id, err = builtin.ResolveToIDAddr(resolver, addr); err != nil {
					return err
				}
			} else {
				var found bool
				if id, found, err = resolver.ResolveAddress(addr); err != nil {
					return err
				}
				if !found {
					return errors.Errorf("%s has no ID", addr)
				}
			}

			_, _ = fmt.Fprintf(cctx.App.Writer, "%s\n", id)
			return nil
		},
	}
}

func newControlAddrsCmd() *cli.Command {
	return &cli.Command{
		Name:      "control-addrs",
		Usage:     "print the owner, worker and control addresses of a miner",
		ArgsUsage: "<miner address>",
		Action: func(cctx *cli.Context) error {
			maddr, err := addressParam(cctx)
			if err != nil {
				return err
			}

			n, err := openNode(cctx)
			if err != nil {
				return err
			}
			defer n.Close() // nolint: errcheck

			// The query runs as an implicit message and its state is never flushed.
			ret, err := n.vm.ApplyImplicitMessage(cctx.Context, &types.Message{
				From:   builtin.SystemActorAddr,
				To:     maddr,
				Value:  big.Zero(),
				Method: builtin.MethodsMiner.ControlAddresses,
			})
			if err != nil {
				return err
			}

			var addrs builtin.MinerAddrs
			if err := runtime.UnmarshalExact(ret.Receipt.Return, &addrs); err != nil {
				return errors.Wrap(err, "failed to decode control addresses")
			}

			w := cctx.App.Writer
			_, _ = fmt.Fprintf(w, "owner: %s\n", addrs.Owner)
			_, _ = fmt.Fprintf(w, "worker: %s\n", addrs.Worker)
			for _, c := range addrs.ControlAddrs {
				_, _ = fmt.Fprintf(w, "control: %s\n", c)
			}
			return nil
		},
	}
}

func newActorCmd() *cli.Command {
	return &cli.Command{
		Name:      "actor",
		Usage:     "print an actor",
		ArgsUsage: "<address>",
		Action: func(cctx *cli.Context) error {
			addr, err := addressParam(cctx)
			if err != nil {
				return err
			}

			n, err := openNode(cctx)
			if err != nil {
				return err
			}
			defer n.Close() // nolint: errcheck

			view := n.view()
			id, err := view.InitResolveAddress(cctx.Context, addr)
			if err != nil {
				return err
			}
			act, err := view.LoadActor(cctx.Context, id)
			if err != nil {
				return err
			}

			w := cctx.App.Writer
			_, _ = fmt.Fprintf(w, "id: %s\n", id)
			_, _ = fmt.Fprintf(w, "code: %s\n", builtin.ActorNameByCode(act.Code))
			_, _ = fmt.Fprintf(w, "balance: %s\n", act.Balance)
			_, _ = fmt.Fprintf(w, "nonce: %d\n", act.Nonce)
			_, _ = fmt.Fprintf(w, "head: %s\n", act.Head)
			if builtin.IsAccountActor(act.Code) {
				key, err := view.ResolveToKeyAddr(cctx.Context, id)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(w, "key: %s\n", key)
			}
			return nil
		},
	}
}

func newEscrowCmd() *cli.Command {
	return &cli.Command{
		Name:      "escrow",
		Usage:     "print the market escrow balance of a client or miner",
		ArgsUsage: "<address>",
		Action: func(cctx *cli.Context) error {
			addr, err := addressParam(cctx)
			if err != nil {
				return err
			}

			n, err := openNode(cctx)
			if err != nil {
				return err
			}
			defer n.Close() // nolint: errcheck

			bal, err := n.view().MarketEscrowBalance(cctx.Context, addr)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cctx.App.Writer, "%s\n", bal)
			return nil
		},
	}
}

func newMinersCmd() *cli.Command {
	return &cli.Command{
		Name:  "miners",
		Usage: "list the miners",
		Action: func(cctx *cli.Context) error {
			n, err := openNode(cctx)
			if err != nil {
				return err
			}
			defer n.Close() // nolint: errcheck

			miners, err := n.view().ListMiners(cctx.Context)
			if err != nil {
				return err
			}
			for _, m := range miners {
				_, _ = fmt.Fprintf(cctx.App.Writer, "%s\n", m)
			}
			return nil
		},
	}
}
