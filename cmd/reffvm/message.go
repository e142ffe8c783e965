package main

import (
	"encoding/hex"
	"io"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/foxxcn/RefFVM/pkg/builtin"
	"github.com/foxxcn/RefFVM/pkg/builtin/market"
)

// rawParams are already encoded params.
type rawParams []byte

func (p rawParams) MarshalCBOR(w io.Writer) error {
	_, err := w.Write(p)
	return err
}

func newSendCmd() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "send a message",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "from", Usage: "sender, must be an account"},
			&cli.StringFlag{Name: "to", Usage: "receiver, in any address form"},
			&cli.StringFlag{Name: "value", Usage: "attoFIL to transfer", Value: "0"},
			&cli.Uint64Flag{Name: "method", Usage: "method number, 0 transfers only"},
			&cli.StringFlag{Name: "params", Usage: "hex encoded CBOR params"},
			newGasLimitFlag(),
		},
		Action: func(cctx *cli.Context) error {
			from, err := addressArg(cctx, "from")
			if err != nil {
				return err
			}
			to, err := addressArg(cctx, "to")
			if err != nil {
				return err
			}
			value, err := amountArg(cctx, "value")
			if err != nil {
				return err
			}
			var params cbor.Marshaler
			if cctx.IsSet("params") {
				raw, err := hex.DecodeString(cctx.String("params"))
				if err != nil {
					return errors.Wrap(err, "invalid --params")
				}
				params = rawParams(raw)
			}

			n, err := openNode(cctx)
			if err != nil {
				return err
			}
			defer n.Close() // nolint: errcheck

			_, err = n.apply(cctx, from, to, abi.MethodNum(cctx.Uint64("method")), params, value)
			return err
		},
	}
}

func newEscrowFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "from", Usage: "sender, must be an account"},
		&cli.StringFlag{Name: "for", Usage: "escrow owner, defaults to the sender"},
		&cli.StringFlag{Name: "amount", Usage: "attoFIL"},
		newGasLimitFlag(),
	}
}

func escrowArgs(cctx *cli.Context) (from, owner address.Address, amount abi.TokenAmount, err error) {
	if from, err = addressArg(cctx, "from"); err != nil {
		return
	}
	owner = from
	if cctx.IsSet("for") {
		if owner, err = addressArg(cctx, "for"); err != nil {
			return
		}
	}
	amount, err = amountArg(cctx, "amount")
	return
}

func newAddBalanceCmd() *cli.Command {
	return &cli.Command{
		Name:  "add-balance",
		Usage: "deposit funds into the market escrow of a client or miner",
		Flags: newEscrowFlags(),
		Action: func(cctx *cli.Context) error {
			from, owner, amount, err := escrowArgs(cctx)
			if err != nil {
				return err
			}

			n, err := openNode(cctx)
			if err != nil {
				return err
			}
			defer n.Close() // nolint: errcheck

			_, err = n.apply(cctx, from, builtin.StorageMarketActorAddr, builtin.MethodsMarket.AddBalance, &owner, amount)
			return err
		},
	}
}

func newWithdrawBalanceCmd() *cli.Command {
	return &cli.Command{
		Name:  "withdraw-balance",
		Usage: "withdraw funds from the market escrow of a client or miner",
		Flags: newEscrowFlags(),
		Action: func(cctx *cli.Context) error {
			from, owner, amount, err := escrowArgs(cctx)
			if err != nil {
				return err
			}

			n, err := openNode(cctx)
			if err != nil {
				return err
			}
			defer n.Close() // nolint: errcheck

			params := &market.WithdrawBalanceParams{ProviderOrClientAddress: owner, Amount: amount}
			_, err = n.apply(cctx, from, builtin.StorageMarketActorAddr, builtin.MethodsMarket.WithdrawBalance, params, big.Zero())
			return err
		},
	}
}
