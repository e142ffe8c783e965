package main

import (
	"bytes"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"
	cbornode "github.com/ipfs/go-ipld-cbor"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/foxxcn/RefFVM/pkg/config"
	"github.com/foxxcn/RefFVM/pkg/repo"
	"github.com/foxxcn/RefFVM/pkg/state"
	"github.com/foxxcn/RefFVM/pkg/types"
	"github.com/foxxcn/RefFVM/pkg/vm"
	"github.com/foxxcn/RefFVM/pkg/vm/vmcontext"
)

const flagGasLimit = "gas-limit"

func newGasLimitFlag() cli.Flag {
	return &cli.Int64Flag{
		Name:  flagGasLimit,
		Usage: "gas limit of the message, defaults to vm.gasLimit of the repo config",
	}
}

// node is an opened repo with a VM over its latest state root.
type node struct {
	repo repo.Repo
	cfg  *config.Config
	root cid.Cid
	vm   *vmcontext.VM
}

func openNode(cctx *cli.Context) (*node, error) {
	r, err := repo.OpenFSRepo(cctx.String(flagRepo))
	if err != nil {
		return nil, err
	}
	cfg := r.Config()
	if !cctx.IsSet(flagLogLevel) {
		if err := setLogLevel(cfg.Log.Level); err != nil {
			_ = r.Close()
			return nil, err
		}
	}

	root, err := r.StateRoot(cctx.Context)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	if !root.Defined() {
		_ = r.Close()
		return nil, errors.New("repo has no state, please run 'reffvm init'")
	}

	v, err := vm.NewVM(cctx.Context, r.Blockstore(), root, vm.VmOption{
		ImplicitGasLimit: cfg.VM.ImplicitGasLimit,
		Tracing:          cfg.VM.Tracing,
	})
	if err != nil {
		_ = r.Close()
		return nil, errors.Wrap(err, "failed to load state")
	}
	log.Debugw("opened state", "root", root)
	return &node{repo: r, cfg: cfg, root: root, vm: v}, nil
}

// view reads the state the node was opened at.
func (n *node) view() *state.View {
	return state.NewView(cbornode.NewCborStore(n.repo.Blockstore()), n.root)
}

func (n *node) Close() error {
	return n.repo.Close()
}

// apply runs one message from `from`, persists the resulting state root and
// prints the receipt to the app's writer.
func (n *node) apply(cctx *cli.Context, from, to address.Address, method abi.MethodNum, params cbor.Marshaler, value abi.TokenAmount) (*vm.Ret, error) {
	return n.applyTo(cctx, cctx.App.Writer, from, to, method, params, value)
}

// applyTo is apply with the receipt printed to `w`. The root is persisted on
// failure too, since the sender's nonce is consumed either way.
func (n *node) applyTo(cctx *cli.Context, w io.Writer, from, to address.Address, method abi.MethodNum, params cbor.Marshaler, value abi.TokenAmount) (*vm.Ret, error) {
	enc, err := encodeParams(params)
	if err != nil {
		return nil, err
	}

	var nonce uint64
	act, found, err := n.vm.StateTree().GetActor(cctx.Context, from)
	if err != nil {
		return nil, err
	}
	if found {
		nonce = act.Nonce
	}

	gasLimit := n.cfg.VM.GasLimit
	if cctx.IsSet(flagGasLimit) {
		gasLimit = cctx.Int64(flagGasLimit)
	}

	msg := types.NewMessage(from, to, nonce, value, method, enc, gasLimit)
	ret, err := n.vm.ApplyMessage(cctx.Context, msg)
	if err != nil {
		return nil, err
	}

	root, err := n.vm.Flush(cctx.Context)
	if err != nil {
		return nil, errors.Wrap(err, "failed to flush state")
	}
	if err := n.repo.SetStateRoot(cctx.Context, root); err != nil {
		return nil, err
	}
	log.Infow("applied message", "from", from, "to", to, "method", method, "code", ret.Receipt.ExitCode, "root", root)

	printReceipt(w, ret)
	if ret.Receipt.ExitCode != exitcode.Ok {
		if ret.ActorErr != nil {
			return ret, fmt.Errorf("message failed with exit code %d: %w", ret.Receipt.ExitCode, ret.ActorErr)
		}
		return ret, fmt.Errorf("message failed with exit code %d", ret.Receipt.ExitCode)
	}
	return ret, nil
}

func printReceipt(w io.Writer, ret *vm.Ret) {
	code := color.GreenString("%d", ret.Receipt.ExitCode)
	if ret.Receipt.ExitCode != exitcode.Ok {
		code = color.RedString("%d", ret.Receipt.ExitCode)
	}
	_, _ = fmt.Fprintf(w, "exit code: %s\n", code)
	_, _ = fmt.Fprintf(w, "gas used: %d\n", ret.Receipt.GasUsed)
	if len(ret.Receipt.Return) > 0 {
		_, _ = fmt.Fprintf(w, "return: %x\n", ret.Receipt.Return)
	}
	for _, c := range ret.GasTracker.Charges {
		log.Debugw("gas charge", "name", c.Name, "total", c.Total())
	}
}

func encodeParams(params cbor.Marshaler) ([]byte, error) {
	if params == nil {
		return nil, nil
	}
	buf := new(bytes.Buffer)
	if err := params.MarshalCBOR(buf); err != nil {
		return nil, errors.Wrap(err, "failed to encode params")
	}
	return buf.Bytes(), nil
}

func addressArg(cctx *cli.Context, name string) (address.Address, error) {
	s := cctx.String(name)
	if s == "" {
		return address.Undef, fmt.Errorf("--%s is required", name)
	}
	addr, err := address.NewFromString(s)
	if err != nil {
		return address.Undef, errors.Wrapf(err, "invalid --%s", name)
	}
	return addr, nil
}

func amountArg(cctx *cli.Context, name string) (abi.TokenAmount, error) {
	v, err := config.ParseBalance(cctx.String(name))
	if err != nil {
		return abi.NewTokenAmount(0), errors.Wrapf(err, "invalid --%s", name)
	}
	return v, nil
}
