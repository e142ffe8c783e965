package initactor

import (
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"

	"github.com/foxxcn/RefFVM/pkg/adt"
	"github.com/foxxcn/RefFVM/pkg/builtin"
	"github.com/foxxcn/RefFVM/pkg/vm/runtime"
)

// Actor is the init actor. Mappings are added by the VM when it creates
// accounts, never through a method call.
type Actor struct{}

func (a Actor) Exports() []interface{} {
	return []interface{}{
		builtin.MethodConstructor: a.Constructor,
	}
}

func (a Actor) Code() cid.Cid {
	return builtin.InitActorCodeID
}

type ConstructorParams struct {
	NetworkName string
}

func (a Actor) Constructor(rt runtime.Runtime, params *ConstructorParams) (*abi.EmptyValue, error) {
	rt.ValidateImmediateCallerIs(builtin.SystemActorAddr)

	st, err := ConstructState(adt.WrapStore(rt.Context(), rt.Store()), params.NetworkName)
	if err != nil {
		return nil, runtime.NewActorError(exitcode.ErrIllegalState, "failed to construct state: %s", err)
	}
	if err := rt.StateCreate(st); err != nil {
		return nil, runtime.Absorb(err, exitcode.ErrIllegalState, "failed to create init actor state")
	}
	return nil, nil
}
