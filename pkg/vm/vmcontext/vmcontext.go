// Package vmcontext is the internal implementation of the runtime package.
//
// Actors see the interfaces defined in the `runtime` while the concrete implementation is defined here.
package vmcontext

import (
	"bytes"
	"context"
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	cbor "github.com/ipfs/go-ipld-cbor"
	logging "github.com/ipfs/go-log/v2"
	"go.opencensus.io/trace"

	"github.com/foxxcn/RefFVM/pkg/adt"
	"github.com/foxxcn/RefFVM/pkg/builtin"
	"github.com/foxxcn/RefFVM/pkg/state/tree"
	"github.com/foxxcn/RefFVM/pkg/types"
	"github.com/foxxcn/RefFVM/pkg/vm/dispatch"
	"github.com/foxxcn/RefFVM/pkg/vm/gas"
	"github.com/foxxcn/RefFVM/pkg/vm/runtime"
)

// MaxCallDepth bounds the number of nested invocations below a top level message.
const MaxCallDepth = 4096

var vmlog = logging.Logger("vm.context")

// VM holds the state tree and executes messages over it.
//
// A VM is not safe for concurrent use. Messages are applied one at a time and
// every invocation they trigger runs synchronously on the caller's stack.
type VM struct {
	context    context.Context
	actorImpls ActorImplLookup
	bsstore    blockstore.Blockstore
	store      cbor.IpldStore

	currentEpoch abi.ChainEpoch
	pricelist    gas.Pricelist
	vmOption     VmOption

	State tree.Tree
}

var _ Interface = (*VM)(nil)

// NewVM creates a new runtime for executing messages over the state with
// root `root`. An undefined root starts from an empty tree.
func NewVM(ctx context.Context, actorImpls ActorImplLookup, bs blockstore.Blockstore, root cid.Cid, vmOption VmOption) (*VM, error) {
	cst := cbor.NewCborStore(bs)
	var st tree.Tree
	var err error
	if root == cid.Undef {
		st, err = tree.NewState(cst)
	} else {
		st, err = tree.LoadState(ctx, cst, root)
	}
	if err != nil {
		return nil, err
	}

	if vmOption.Pricelist == nil {
		vmOption.Pricelist = gas.DefaultPricelist
	}
	if vmOption.ImplicitGasLimit == 0 {
		vmOption.ImplicitGasLimit = DefaultImplicitGasLimit
	}

	return &VM{
		context:      ctx,
		actorImpls:   actorImpls,
		bsstore:      bs,
		store:        cst,
		State:        st,
		vmOption:     vmOption,
		pricelist:    vmOption.Pricelist,
		currentEpoch: vmOption.Epoch,
	}, nil
}

// ContextStore is the un-metered store the state tree lives in.
func (vm *VM) ContextStore() adt.Store {
	return adt.WrapStore(vm.context, vm.store)
}

// StateTree is the tree messages are applied to.
func (vm *VM) StateTree() tree.Tree {
	return vm.State
}

// CurrentEpoch implements runtime.Runtime.
func (vm *VM) CurrentEpoch() abi.ChainEpoch {
	return vm.currentEpoch
}

func (vm *VM) newGasTracker(limit int64) *gas.GasTracker {
	gasTank := gas.NewGasTracker(limit)
	if vm.vmOption.Tracing {
		gasTank.EnableTracing()
	}
	return gasTank
}

// ApplyImplicitMessage applies a message on behalf of a singleton actor. The
// sender's nonce is neither checked nor bumped, and gas comes from the
// implicit limit rather than the message.
func (vm *VM) ApplyImplicitMessage(ctx context.Context, msg *types.Message) (*Ret, error) {
	imsg := VmMessage{
		From:   msg.From,
		To:     msg.To,
		Value:  valueOrZero(msg.Value),
		Method: msg.Method,
		Params: msg.Params,
	}
	return vm.applyImplicitMessage(ctx, imsg)
}

func (vm *VM) applyImplicitMessage(ctx context.Context, imsg VmMessage) (*Ret, error) {
	// implicit messages gas is tracked separately and not paid by anyone
	gasTank := vm.newGasTracker(vm.vmOption.ImplicitGasLimit)

	// the execution of the implicit messages is simpler than full external/actor-actor messages
	// execution:
	// 1. load From actor
	// 2. build new context
	// 3. invoke message

	// 1. load From actor
	fromID, err := vm.State.LookupID(imsg.From)
	if err != nil {
		return nil, fmt.Errorf("implicit message `From` field actor not found, addr: %s: %w", imsg.From, err)
	}
	imsg.From = fromID

	// 2. build context
	gasStore := cbor.NewCborStore(NewGasChargeBlockStore(gasTank, vm.pricelist, vm.bsstore))
	ictx := newInvocationContext(vm, gasStore, imsg, gasTank, nil)

	// 3. invoke message
	ret, aerr := ictx.invoke()
	code := runtime.RetCode(aerr)
	if code.IsError() {
		return nil, fmt.Errorf("invalid exit code %d during implicit message execution: From %s, To %s, Method %d, Value %s: %w",
			code, imsg.From, imsg.To, imsg.Method, imsg.Value, aerr)
	}
	return &Ret{
		GasTracker: gasTank,
		Receipt: types.MessageReceipt{
			ExitCode: code,
			Return:   ret,
			GasUsed:  gasTank.GasUsed,
		},
	}, nil
}

// ApplyMessage applies the message to the current state.
//
// This method does not actually execute the message itself, but rather deals
// with the pre/post processing of a message.
// (see: `invocationContext.invoke()` for the dispatch and execution)
func (vm *VM) ApplyMessage(ctx context.Context, msg *types.Message) (*Ret, error) {
	_, span := trace.StartSpan(ctx, "vm.ApplyMessage")
	defer span.End()
	span.AddAttributes(
		trace.StringAttribute("from", msg.From.String()),
		trace.StringAttribute("to", msg.To.String()),
		trace.Int64Attribute("method", int64(msg.Method)),
	)

	// initiate gas tracking
	gasTank := vm.newGasTracker(msg.GasLimit)
	// pre-send
	// 1. charge for message existence
	// 2. load sender actor
	// 3. check message seq number
	// 4. increment message seq number
	// 5. snapshot state

	// 1. charge for bytes used in chain
	buf := new(bytes.Buffer)
	if err := msg.MarshalCBOR(buf); err != nil {
		return nil, fmt.Errorf("serializing message: %w", err)
	}
	msgGasCost := vm.pricelist.OnChainMessage(buf.Len())
	if ok := gasTank.TryCharge(msgGasCost); !ok {
		// Invalid message; insufficient gas limit to pay for the on-chain message size.
		return &Ret{
			GasTracker: gasTank,
			Receipt:    Failure(exitcode.SysErrOutOfGas, 0),
		}, nil
	}

	// 2. load sender actor and check it is an account
	fromActor, found, err := vm.State.GetActor(vm.context, msg.From)
	if err != nil {
		return nil, err
	}
	if !found || !builtin.IsAccountActor(fromActor.Code) {
		// Execution error; sender does not exist or is not an account.
		return &Ret{
			GasTracker: gasTank,
			Receipt:    Failure(exitcode.SysErrSenderInvalid, 0),
		}, nil
	}

	// 3. make sure this is the right message order for fromActor
	if msg.Nonce != fromActor.Nonce {
		// Execution error; invalid seq number.
		return &Ret{
			GasTracker: gasTank,
			Receipt:    Failure(exitcode.SysErrSenderStateInvalid, 0),
		}, nil
	}

	fromID, err := vm.State.LookupID(msg.From)
	if err != nil {
		return nil, err
	}

	// 4. increment sender Nonce
	if err = vm.State.MutateActor(fromID, func(msgFromActor *types.Actor) error {
		msgFromActor.IncrementSeqNum()
		return nil
	}); err != nil {
		return nil, err
	}

	// 5. snapshot state
	// Even if the message fails, the nonce increment is kept.
	if err = vm.snapshot(); err != nil {
		return nil, err
	}
	defer vm.clearSnapshot()

	// send
	// 1. build internal message
	// 2. build invocation context
	// 3. process the msg
	imsg := VmMessage{
		From:   fromID,
		To:     msg.To,
		Value:  valueOrZero(msg.Value),
		Method: msg.Method,
		Params: msg.Params,
	}

	gasStore := cbor.NewCborStore(NewGasChargeBlockStore(gasTank, vm.pricelist, vm.bsstore))
	ictx := newInvocationContext(vm, gasStore, imsg, gasTank, nil)

	ret, aerr := ictx.invoke()
	code := runtime.RetCode(aerr)

	// post-send
	// 1. charge gas for putting the return value on the chain
	// 2. roll back on failure
	// 3. success!

	// 1. charge for the space used by the return value
	if ok := gasTank.TryCharge(vm.pricelist.OnChainReturnValue(len(ret))); !ok {
		// Insufficient gas remaining to cover the on-chain return value; proceed as in the case
		// of method execution failure.
		code = exitcode.SysErrOutOfGas
		ret = []byte{}
		if aerr == nil {
			aerr = runtime.NewActorError(code, "not enough gas to store the return value")
		}
	}

	// 2. Roll back all state if the receipt's exit code is not ok.
	// This is required in addition to revert within the invocation context since top level messages can fail for
	// more reasons than internal ones.
	if code != exitcode.Ok {
		vmlog.Debugw("message failed", "from", msg.From, "to", msg.To, "method", msg.Method, "code", code, "error", aerr)
		if err := vm.revert(); err != nil {
			return nil, err
		}
	}
	span.AddAttributes(trace.Int64Attribute("exitcode", int64(code)))

	// 3. Success!
	return &Ret{
		GasTracker: gasTank,
		ActorErr:   aerr,
		Receipt: types.MessageReceipt{
			ExitCode: code,
			Return:   ret,
			GasUsed:  gasTank.GasUsed,
		},
	}, nil
}

// transfer debits money from one account and credits it to another.
//
// WARNING: this method will panic if the the amount is negative, accounts dont exist, or have inssuficient funds.
func (vm *VM) transfer(from address.Address, to address.Address, amount abi.TokenAmount) {
	if amount.LessThan(big.Zero()) {
		runtime.Abortf(exitcode.SysErrForbidden, "attempt to transfer negative value %s from %s to %s", amount, from, to)
	}

	fromID, err := vm.State.LookupID(from)
	if err != nil {
		panic(fmt.Errorf("transfer failed when resolving sender address: %s", err))
	}

	// retrieve sender account
	fromActor, found, err := vm.State.GetActor(vm.context, fromID)
	if err != nil {
		panic(err)
	}
	if !found {
		panic(fmt.Errorf("unreachable: sender account not found. %s", fromID))
	}

	// check that account has enough balance for transfer
	if fromActor.Balance.LessThan(amount) {
		runtime.Abortf(exitcode.SysErrInsufficientFunds, "sender %s insufficient balance %s to transfer %s to %s", from, fromActor.Balance, amount, to)
	}

	toID, err := vm.State.LookupID(to)
	if err != nil {
		panic(fmt.Errorf("transfer failed when resolving receiver address: %s", err))
	}

	if fromID == toID || amount.IsZero() {
		return
	}

	// retrieve receiver account
	toActor, found, err := vm.State.GetActor(vm.context, toID)
	if err != nil {
		panic(err)
	}
	if !found {
		panic(fmt.Errorf("unreachable: credit account not found. %s", toID))
	}

	// deduct funds
	fromActor.Balance = big.Sub(fromActor.Balance, amount)
	if err := vm.State.SetActor(vm.context, fromID, fromActor); err != nil {
		panic(err)
	}

	// deposit funds
	toActor.Balance = big.Add(toActor.Balance, amount)
	if err := vm.State.SetActor(vm.context, toID, toActor); err != nil {
		panic(err)
	}
}

func valueOrZero(v abi.TokenAmount) abi.TokenAmount {
	if v.Int == nil {
		return big.Zero()
	}
	return v
}

func (vm *VM) getActorImpl(code cid.Cid) dispatch.Dispatcher {
	actorImpl, err := vm.actorImpls.GetActorImpl(code)
	if err != nil {
		runtime.Abortf(exitcode.SysErrInvalidReceiver, "no code for actor: %s", err)
	}
	return actorImpl
}

//
// implement runtime.Message for VmMessage
//

var _ runtime.Message = (*VmMessage)(nil)

type VmMessage struct { //nolint
	From   address.Address
	To     address.Address
	Value  abi.TokenAmount
	Method abi.MethodNum
	Params []byte
}

// ValueReceived implements runtime.Message.
func (msg VmMessage) ValueReceived() abi.TokenAmount {
	return msg.Value
}

// Caller implements runtime.Message.
func (msg VmMessage) Caller() address.Address {
	return msg.From
}

// Receiver implements runtime.Message.
func (msg VmMessage) Receiver() address.Address {
	return msg.To
}

func (vm *VM) revert() error {
	return vm.State.Revert()
}

func (vm *VM) snapshot() error {
	return vm.State.Snapshot(vm.context)
}

func (vm *VM) clearSnapshot() {
	vm.State.ClearSnapshot()
}

// Flush writes the state tree to the blockstore and returns its root.
func (vm *VM) Flush(ctx context.Context) (tree.Root, error) {
	for _, a := range vm.State.Assignments() {
		vmlog.Infow("assigned ID address", "address", a.Addr, "id", a.ID)
	}
	root, err := vm.State.Flush(ctx)
	if err != nil {
		return cid.Undef, err
	}
	vmlog.Debugw("flushed vm state", "root", root, "epoch", vm.currentEpoch)
	return root, nil
}
