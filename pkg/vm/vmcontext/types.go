package vmcontext

import (
	"context"
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/foxxcn/RefFVM/pkg/adt"
	"github.com/foxxcn/RefFVM/pkg/builtin"
	"github.com/foxxcn/RefFVM/pkg/builtin/account"
	"github.com/foxxcn/RefFVM/pkg/state/tree"
	"github.com/foxxcn/RefFVM/pkg/types"
	"github.com/foxxcn/RefFVM/pkg/vm/dispatch"
	"github.com/foxxcn/RefFVM/pkg/vm/gas"
)

type VmOption struct { //nolint
	// Epoch is the epoch every message is applied at.
	Epoch abi.ChainEpoch
	// Pricelist defaults to gas.DefaultPricelist.
	Pricelist gas.Pricelist
	// ImplicitGasLimit is the gas available to implicit messages.
	ImplicitGasLimit int64
	// Tracing records every gas charge in Ret.GasTracker.
	Tracing bool
	// ActorCodeLoader overrides the builtin actors.
	ActorCodeLoader ActorImplLookup
}

// DefaultImplicitGasLimit is the gas available to implicit messages unless configured.
const DefaultImplicitGasLimit = int64(10_000_000_000)

// ActorImplLookup provides access to actor code.
type ActorImplLookup interface {
	GetActorImpl(code cid.Cid) (dispatch.Dispatcher, error)
}

// Ret is the outcome of applying a message.
type Ret struct {
	GasTracker *gas.GasTracker
	Receipt    types.MessageReceipt
	// ActorErr is the error the invocation failed with, nil on success.
	ActorErr error
}

// Failure returns with a non-zero exit code.
func Failure(exitCode exitcode.ExitCode, gasAmount int64) types.MessageReceipt {
	return types.MessageReceipt{
		ExitCode: exitCode,
		Return:   []byte{},
		GasUsed:  gasAmount,
	}
}

// Interface is what callers applying messages need from the VM.
type Interface interface {
	ApplyMessage(ctx context.Context, msg *types.Message) (*Ret, error)
	ApplyImplicitMessage(ctx context.Context, msg *types.Message) (*Ret, error)
	Flush(ctx context.Context) (cid.Cid, error)
}

// ResolveToKeyAddr returns the public key address of the account actor at
// `addr`. Key addresses are returned as they are.
func ResolveToKeyAddr(ctx context.Context, state tree.Tree, addr address.Address, store adt.Store) (address.Address, error) {
	if addr.Protocol() == address.BLS || addr.Protocol() == address.SECP256K1 {
		return addr, nil
	}

	act, found, err := state.GetActor(ctx, addr)
	if err != nil {
		return address.Undef, errors.Wrapf(err, "failed to find actor: %s", addr)
	}
	if !found {
		return address.Undef, fmt.Errorf("actor not found %s", addr)
	}
	if !builtin.IsAccountActor(act.Code) {
		return address.Undef, fmt.Errorf("actor %s is a %s, not an account", addr, builtin.ActorNameByCode(act.Code))
	}

	var ast account.State
	if err := store.Get(ctx, act.Head, &ast); err != nil {
		return address.Undef, fmt.Errorf("failed to get account actor state for %s: %w", addr, err)
	}

	return ast.Address, nil
}
