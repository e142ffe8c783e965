// Package miner is a storage miner reduced to the addresses that control it.
package miner

import (
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"

	"github.com/foxxcn/RefFVM/pkg/builtin"
	"github.com/foxxcn/RefFVM/pkg/vm/runtime"
)

// MaxControlAddresses bounds the number of control addresses a miner may have.
const MaxControlAddresses = 10

type Actor struct{}

func (a Actor) Exports() []interface{} {
	return []interface{}{
		builtin.MethodConstructor: a.Constructor,
		2:                         a.ControlAddresses,
		3:                         a.ChangeWorkerAddress,
	}
}

func (a Actor) Code() cid.Cid {
	return builtin.StorageMinerActorCodeID
}

// ConstructorParams may name the addresses in any form. They are stored as
// ID addresses.
type ConstructorParams = builtin.MinerAddrs

type ChangeWorkerAddressParams struct {
	NewWorker       address.Address
	NewControlAddrs []address.Address
}

func (a Actor) Constructor(rt runtime.Runtime, params *ConstructorParams) (*abi.EmptyValue, error) {
	rt.ValidateImmediateCallerIs(builtin.SystemActorAddr)

	if len(params.ControlAddrs) > MaxControlAddresses {
		return nil, runtime.NewActorError(exitcode.ErrIllegalArgument, "control addresses length %d exceeds max control addresses length %d", len(params.ControlAddrs), MaxControlAddresses)
	}

	owner, err := resolveControlAddress(rt, params.Owner)
	if err != nil {
		return nil, err.Wrap("failed to resolve owner")
	}
	worker, err := resolveWorkerAddress(rt, params.Worker)
	if err != nil {
		return nil, err.Wrap("failed to resolve worker")
	}
	controls, err := resolveControlAddresses(rt, params.ControlAddrs)
	if err != nil {
		return nil, err
	}

	st := &State{Owner: owner, Worker: worker, ControlAddrs: controls}
	if err := rt.StateCreate(st); err != nil {
		return nil, runtime.Absorb(err, exitcode.ErrIllegalState, "failed to create miner state")
	}
	return nil, nil
}

// ControlAddresses returns the owner, worker and control addresses of the miner.
func (a Actor) ControlAddresses(rt runtime.Runtime) (*builtin.MinerAddrs, error) {
	rt.ValidateImmediateCallerAcceptAny()
	var st State
	if err := rt.StateReadonly(&st); err != nil {
		return nil, err
	}
	return st.Addrs(), nil
}

// ChangeWorkerAddress replaces the worker and the control addresses. Only the
// owner may call it.
func (a Actor) ChangeWorkerAddress(rt runtime.Runtime, params *ChangeWorkerAddressParams) (*abi.EmptyValue, error) {
	var st State
	if err := rt.StateReadonly(&st); err != nil {
		return nil, err
	}
	rt.ValidateImmediateCallerIs(st.Owner)

	if len(params.NewControlAddrs) > MaxControlAddresses {
		return nil, runtime.NewActorError(exitcode.ErrIllegalArgument, "control addresses length %d exceeds max control addresses length %d", len(params.NewControlAddrs), MaxControlAddresses)
	}

	// Resolution may send, which is not allowed inside the transaction.
	worker, aerr := resolveWorkerAddress(rt, params.NewWorker)
	if aerr != nil {
		return nil, aerr.Wrap("failed to resolve new worker")
	}
	controls, aerr := resolveControlAddresses(rt, params.NewControlAddrs)
	if aerr != nil {
		return nil, aerr
	}

	err := rt.StateTransaction(&st, func() error {
		st.Worker = worker
		st.ControlAddrs = controls
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nil, nil
}

func resolveControlAddresses(rt runtime.Runtime, raw []address.Address) ([]address.Address, *runtime.ActorError) {
	resolved := make([]address.Address, 0, len(raw))
	for _, ca := range raw {
		id, err := resolveControlAddress(rt, ca)
		if err != nil {
			return nil, err.Wrapf("failed to resolve control address %s", ca)
		}
		resolved = append(resolved, id)
	}
	return resolved, nil
}

// resolveControlAddress resolves an address to an ID address and verifies
// that it belongs to an account.
func resolveControlAddress(rt runtime.Runtime, raw address.Address) (address.Address, *runtime.ActorError) {
	resolved, err := builtin.ResolveToIDAddr(rt, raw)
	if err != nil {
		return address.Undef, builtin.AsActorError(err, "unable to resolve address")
	}
	code, ok := rt.GetActorCodeCID(resolved)
	if !ok {
		return address.Undef, runtime.NewActorError(exitcode.ErrIllegalArgument, "no code for address %v", resolved)
	}
	if !builtin.IsPrincipal(code) {
		return address.Undef, runtime.NewActorError(exitcode.ErrIllegalArgument, "owner actor type must be a principal, was %v", builtin.ActorNameByCode(code))
	}
	return resolved, nil
}

// resolveWorkerAddress resolves the worker to an ID address and verifies
// that it is an account.
func resolveWorkerAddress(rt runtime.Runtime, raw address.Address) (address.Address, *runtime.ActorError) {
	resolved, err := builtin.ResolveToIDAddr(rt, raw)
	if err != nil {
		return address.Undef, builtin.AsActorError(err, "unable to resolve address")
	}
	code, ok := rt.GetActorCodeCID(resolved)
	if !ok {
		return address.Undef, runtime.NewActorError(exitcode.ErrIllegalArgument, "no code for address %v", resolved)
	}
	if !builtin.IsAccountActor(code) {
		return address.Undef, runtime.NewActorError(exitcode.ErrIllegalArgument, "worker actor type must be an account, was %v", builtin.ActorNameByCode(code))
	}
	return resolved, nil
}
