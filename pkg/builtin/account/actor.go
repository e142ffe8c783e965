// Package account is the actor behind every key address. Its only state is
// the key address it was created for.
package account

import (
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"

	"github.com/foxxcn/RefFVM/pkg/builtin"
	"github.com/foxxcn/RefFVM/pkg/vm/runtime"
)

type Actor struct{}

func (a Actor) Exports() []interface{} {
	return []interface{}{
		builtin.MethodConstructor: a.Constructor,
		2:                         a.PubkeyAddress,
	}
}

func (a Actor) Code() cid.Cid {
	return builtin.AccountActorCodeID
}

type State struct {
	Address address.Address
}

func (a Actor) Constructor(rt runtime.Runtime, addr *address.Address) (*abi.EmptyValue, error) {
	// Account actors are created implicitly by sending a message to a pubkey-style address.
	// This constructor is not invoked by the InitActor, but by the system.
	rt.ValidateImmediateCallerIs(builtin.SystemActorAddr)
	switch addr.Protocol() {
	case address.SECP256K1, address.BLS:
		break // ok
	default:
		return nil, runtime.NewActorError(exitcode.ErrIllegalArgument, "address must use BLS or SECP protocol, got %v", addr.Protocol())
	}
	st := State{Address: *addr}
	if err := rt.StateCreate(&st); err != nil {
		return nil, runtime.Absorb(err, exitcode.ErrIllegalState, "failed to create account state")
	}
	return nil, nil
}

// PubkeyAddress fetches the key address this account was created for.
func (a Actor) PubkeyAddress(rt runtime.Runtime) (*address.Address, error) {
	rt.ValidateImmediateCallerAcceptAny()
	var st State
	if err := rt.StateReadonly(&st); err != nil {
		return nil, err
	}
	return &st.Address, nil
}
