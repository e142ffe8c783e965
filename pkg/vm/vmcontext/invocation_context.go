package vmcontext

import (
	"bytes"
	"context"
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"
	ipldcbor "github.com/ipfs/go-ipld-cbor"
	"golang.org/x/xerrors"

	"github.com/foxxcn/RefFVM/pkg/builtin"
	"github.com/foxxcn/RefFVM/pkg/metrics"
	"github.com/foxxcn/RefFVM/pkg/types"
	"github.com/foxxcn/RefFVM/pkg/vm/gas"
	"github.com/foxxcn/RefFVM/pkg/vm/runtime"
)

// invocationContext is the runtime of a single invocation. Nested calls get
// their own context sharing the VM, the gas tank and the metered store.
type invocationContext struct {
	vm                *VM
	gasIpld           ipldcbor.IpldStore
	msg               VmMessage
	gasTank           *gas.GasTracker
	isCallerValidated bool
	allowSideEffects  bool
	depth             int
	parent            *invocationContext
}

func newInvocationContext(rt *VM, gasIpld ipldcbor.IpldStore, msg VmMessage, gasTank *gas.GasTracker, parent *invocationContext) invocationContext {
	depth := 0
	if parent != nil {
		depth = parent.depth + 1
	}
	return invocationContext{
		vm:                rt,
		gasIpld:           gasIpld,
		msg:               msg,
		gasTank:           gasTank,
		isCallerValidated: false,
		allowSideEffects:  true,
		depth:             depth,
		parent:            parent,
	}
}

// invoke runs the message with all-or-nothing semantics: on failure every
// change made by it and by the calls it made is reverted, and the error is
// returned as an *runtime.ActorError.
func (ctx *invocationContext) invoke() (ret []byte, aerr error) {
	// Checkpoint state, for restoration on revert
	if err := ctx.vm.snapshot(); err != nil {
		panic(err)
	}
	defer ctx.vm.clearSnapshot()

	metrics.Invocations.Inc(ctx.vm.context, 1)

	// Install handler for abort, which rolls back all state changes from this and any nested invocations.
	// This is the only path by which an error may be returned.
	defer func() {
		r := recover()
		if r != nil {
			switch e := r.(type) {
			case runtime.ExecutionPanic:
				aerr = runtime.NewActorError(e.Code(), "%s", e)
			default:
				vmlog.Errorw("unexpected panic during actor execution", "from", ctx.msg.From, "to", ctx.msg.To, "method", ctx.msg.Method, "panic", r)
				aerr = runtime.NewActorError(exitcode.SysErrorIllegalActor, "actor panicked: %v", r)
			}
		}
		if aerr != nil {
			metrics.InvocationFailures.Inc(ctx.vm.context, 1)
			vmlog.Debugw("abort during actor execution", "from", ctx.msg.From, "to", ctx.msg.To, "method", ctx.msg.Method, "code", runtime.RetCode(aerr), "error", aerr)
			if err := ctx.vm.revert(); err != nil {
				panic(err)
			}
			ret = nil
		}
	}()

	// pre-dispatch
	// 1. charge gas for message invocation
	// 2. load target actor
	// 3. transfer optional funds
	// 4. short-circuit _Send_ method
	// 5. load target actor code
	// 6. dispatch

	// assert from address is an ID address.
	runtime.Assert(ctx.msg.From.Protocol() == address.ID)

	// 1. charge gas for msg
	ctx.gasTank.Charge(ctx.vm.pricelist.OnMethodInvocation(ctx.msg.Value, ctx.msg.Method), "method invocation")

	// 2. load target actor
	// Note: we replace the "To" address with the normalized version
	toActor, toIDAddr := ctx.resolveTarget(ctx.msg.To)
	ctx.msg.To = toIDAddr

	// 3. transfer funds carried by the msg
	if !ctx.msg.Value.IsZero() {
		ctx.vm.transfer(ctx.msg.From, ctx.msg.To, ctx.msg.Value)
	}

	// 4. if we are just sending funds, there is nothing else to do.
	if ctx.msg.Method == builtin.MethodSend {
		return nil, nil
	}

	// 5. load target actor code
	actorImpl := ctx.vm.getActorImpl(toActor.Code)

	// 6. dispatch
	ret, err := actorImpl.Dispatch(ctx.msg.Method, ctx, ctx.msg.Params)
	if err != nil {
		return nil, runtime.Absorb(err, runtime.RetCode(err), fmt.Sprintf("%s.%d", builtin.ActorNameByCode(toActor.Code), ctx.msg.Method))
	}

	// post-dispatch
	// 1. check caller was validated
	if !ctx.isCallerValidated {
		runtime.Abortf(exitcode.SysErrorIllegalActor, "Caller MUST be validated during method execution")
	}

	return ret, nil
}

// resolveTarget loads an actor and returns its ActorID address.
//
// If the target actor does not exist, and the target address is a pub-key address,
// a new account actor will be created.
// Otherwise, this method will abort execution.
func (ctx *invocationContext) resolveTarget(target address.Address) (*types.Actor, address.Address) {
	// resolve the target address via the InitActor, and attempt to load state.
	targetIDAddr, err := ctx.vm.State.LookupID(target)
	if err == nil {
		targetActor, found, err := ctx.vm.State.GetActor(ctx.vm.context, targetIDAddr)
		if err != nil {
			panic(err)
		}
		if found {
			// actor found, return it and its IDAddress
			return targetActor, targetIDAddr
		}
	} else if !xerrors.Is(err, types.ErrActorNotFound) {
		panic(err)
	}

	// actor does not exist, create an account actor
	// - precond: address must be a pub-key
	// - sent init actor a msg to create the new account

	if target.Protocol() != address.SECP256K1 && target.Protocol() != address.BLS {
		// Don't implicitly create an account actor for an address without an associated key.
		runtime.Abortf(exitcode.SysErrInvalidReceiver, "actor %s does not exist", target)
	}

	ctx.gasTank.Charge(ctx.vm.pricelist.OnCreateActor(), "CreateActor  address %s", target)

	targetIDAddr, err = ctx.vm.State.RegisterNewAddress(target)
	if err != nil {
		panic(err)
	}

	if err := ctx.vm.State.SetActor(ctx.vm.context, targetIDAddr, types.NewActor(builtin.AccountActorCodeID, big.Zero())); err != nil {
		panic(err)
	}
	vmlog.Debugw("created account actor", "address", target, "id", targetIDAddr)

	// call constructor on account
	params, err := marshalParams(&target)
	if err != nil {
		runtime.Abortf(exitcode.ErrSerialization, "failed to encode account constructor params: %s", err)
	}
	newMsg := VmMessage{
		From:   builtin.SystemActorAddr,
		To:     targetIDAddr,
		Value:  big.Zero(),
		Method: builtin.MethodsAccount.Constructor,
		Params: params,
	}

	newCtx := newInvocationContext(ctx.vm, ctx.gasIpld, newMsg, ctx.gasTank, ctx)
	if _, aerr := newCtx.invoke(); aerr != nil {
		// we failed to construct an account actor..
		runtime.Abortf(runtime.RetCode(aerr), "failed to construct account actor %s: %s", target, aerr)
	}

	// load actor
	targetActor, found, err := ctx.vm.State.GetActor(ctx.vm.context, targetIDAddr)
	if err != nil {
		panic(err)
	}
	if !found {
		panic(fmt.Errorf("unreachable: actor is supposed to exist but it does not. addr: %s, idAddr: %s", target, targetIDAddr))
	}

	return targetActor, targetIDAddr
}

func marshalParams(params cbor.Marshaler) ([]byte, error) {
	if params == nil {
		return nil, nil
	}
	buf := new(bytes.Buffer)
	if err := params.MarshalCBOR(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

//
// implement runtime.Runtime for invocationContext
//

var _ runtime.Runtime = (*invocationContext)(nil)

// Message implements runtime.Runtime.
func (ctx *invocationContext) Message() runtime.Message {
	return ctx.msg
}

// CurrentEpoch implements runtime.Runtime.
func (ctx *invocationContext) CurrentEpoch() abi.ChainEpoch {
	return ctx.vm.CurrentEpoch()
}

// Context implements runtime.Runtime.
func (ctx *invocationContext) Context() context.Context {
	return ctx.vm.context
}

// ValidateImmediateCallerAcceptAny implements runtime.Runtime.
func (ctx *invocationContext) ValidateImmediateCallerAcceptAny() {
	ctx.assertf(!ctx.isCallerValidated, "caller has been double validated")
	ctx.isCallerValidated = true
}

// ValidateImmediateCallerIs implements runtime.Runtime.
func (ctx *invocationContext) ValidateImmediateCallerIs(addrs ...address.Address) {
	ctx.assertf(!ctx.isCallerValidated, "caller has been double validated")
	ctx.isCallerValidated = true
	for _, addr := range addrs {
		if ctx.msg.From == addr {
			return
		}
	}
	runtime.Abortf(exitcode.SysErrForbidden, "caller %s is not one of supported", ctx.msg.From)
}

// ValidateImmediateCallerType implements runtime.Runtime.
func (ctx *invocationContext) ValidateImmediateCallerType(codes ...cid.Cid) {
	ctx.assertf(!ctx.isCallerValidated, "caller has been double validated")
	ctx.isCallerValidated = true

	// fetch actor code
	code, ok := ctx.GetActorCodeCID(ctx.msg.From)
	if !ok {
		runtime.Abortf(exitcode.SysErrForbidden, "caller %s has no code", ctx.msg.From)
	}

	for _, t := range codes {
		if t.Equals(code) {
			return
		}
	}
	runtime.Abortf(exitcode.SysErrForbidden, "caller type %s is not one of supported", builtin.ActorNameByCode(code))
}

func (ctx *invocationContext) assertf(cond bool, msg string, args ...interface{}) {
	if !cond {
		runtime.Abortf(exitcode.SysErrorIllegalActor, msg, args...)
	}
}

// CurrentBalance implements runtime.Runtime.
func (ctx *invocationContext) CurrentBalance() abi.TokenAmount {
	// load balance
	act, found, err := ctx.vm.State.GetActor(ctx.vm.context, ctx.msg.To)
	if err != nil {
		panic(err)
	}
	if !found {
		runtime.Abortf(exitcode.SysErrorIllegalActor, "receiver %s no longer exists", ctx.msg.To)
	}
	return act.Balance
}

// ResolveAddress implements runtime.Runtime.
func (ctx *invocationContext) ResolveAddress(addr address.Address) (address.Address, bool, error) {
	idAddr, err := ctx.vm.State.LookupID(addr)
	if err != nil {
		if xerrors.Is(err, types.ErrActorNotFound) {
			return address.Undef, false, nil
		}
		return address.Undef, false, err
	}
	return idAddr, true, nil
}

// GetActorCodeCID implements runtime.Runtime.
func (ctx *invocationContext) GetActorCodeCID(addr address.Address) (cid.Cid, bool) {
	act, found, err := ctx.vm.State.GetActor(ctx.vm.context, addr)
	if err != nil {
		panic(err)
	}
	if !found {
		return cid.Undef, false
	}
	return act.Code, true
}

// Send implements runtime.Runtime.
func (ctx *invocationContext) Send(to address.Address, method abi.MethodNum, params cbor.Marshaler, value abi.TokenAmount) (runtime.SendReturn, error) {
	// check if side-effects are allowed
	if !ctx.allowSideEffects {
		runtime.Abortf(exitcode.SysErrorIllegalActor, "calling Send() is not allowed during side-effect lock")
	}
	if ctx.depth+1 > MaxCallDepth {
		return runtime.SendReturn{}, runtime.NewActorError(exitcode.SysErrForbidden, "message execution exceeds call depth")
	}

	encoded, err := marshalParams(params)
	if err != nil {
		return runtime.SendReturn{}, runtime.NewActorError(exitcode.ErrSerialization, "failed to marshal params of send to %s: %s", to, err)
	}

	// the message sender is the `to` actor, so this is what we set as `from` in the new message
	newMsg := VmMessage{
		From:   ctx.msg.To,
		To:     to,
		Value:  valueOrZero(value),
		Method: method,
		Params: encoded,
	}

	// invoke
	// 1. build new context
	// 2. invoke message
	newCtx := newInvocationContext(ctx.vm, ctx.gasIpld, newMsg, ctx.gasTank, ctx)
	ret, aerr := newCtx.invoke()
	if aerr != nil {
		return runtime.SendReturn{ExitCode: runtime.RetCode(aerr)}, aerr
	}
	return runtime.SendReturn{ExitCode: exitcode.Ok, Return: ret}, nil
}

// StateCreate implements runtime.Runtime.
func (ctx *invocationContext) StateCreate(obj cbor.Marshaler) error {
	act := ctx.receiverActor()
	if act.Head.Defined() && !act.Head.Equals(types.EmptyObjectCid) {
		runtime.Abortf(exitcode.SysErrorIllegalActor, "failed to construct actor state: already initialized")
	}
	return ctx.putHead(obj)
}

// StateReadonly implements runtime.Runtime.
func (ctx *invocationContext) StateReadonly(obj cbor.Unmarshaler) error {
	act := ctx.receiverActor()
	if err := ctx.gasIpld.Get(ctx.vm.context, act.Head, obj); err != nil {
		return runtime.Absorb(err, exitcode.ErrIllegalState, "failed to read actor state")
	}
	return nil
}

// StateTransaction implements runtime.Runtime. Sends are forbidden while f runs.
func (ctx *invocationContext) StateTransaction(obj cbor.Er, f func() error) error {
	if err := ctx.StateReadonly(obj); err != nil {
		return err
	}

	ctx.allowSideEffects = false
	err := f()
	ctx.allowSideEffects = true
	if err != nil {
		return err
	}

	return ctx.putHead(obj)
}

func (ctx *invocationContext) receiverActor() *types.Actor {
	act, found, err := ctx.vm.State.GetActor(ctx.vm.context, ctx.msg.To)
	if err != nil {
		panic(err)
	}
	if !found {
		runtime.Abortf(exitcode.SysErrorIllegalActor, "receiver %s no longer exists", ctx.msg.To)
	}
	return act
}

func (ctx *invocationContext) putHead(obj cbor.Marshaler) error {
	head, err := ctx.gasIpld.Put(ctx.vm.context, obj)
	if err != nil {
		return runtime.Absorb(err, exitcode.ErrIllegalState, "failed to store actor state")
	}
	if err := ctx.vm.State.MutateActor(ctx.msg.To, func(act *types.Actor) error {
		act.Head = head
		return nil
	}); err != nil {
		return runtime.Absorb(err, exitcode.ErrIllegalState, "failed to update actor head")
	}
	return nil
}

// Store implements runtime.Runtime.
func (ctx *invocationContext) Store() ipldcbor.IpldStore {
	return ctx.gasIpld
}
