package market

import (
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"

	"github.com/foxxcn/RefFVM/pkg/adt"
	"github.com/foxxcn/RefFVM/pkg/builtin"
	"github.com/foxxcn/RefFVM/pkg/vm/runtime"
)

type Actor struct{}

func (a Actor) Exports() []interface{} {
	return []interface{}{
		builtin.MethodConstructor: a.Constructor,
		2:                         a.AddBalance,
		3:                         a.WithdrawBalance,
	}
}

func (a Actor) Code() cid.Cid {
	return builtin.StorageMarketActorCodeID
}

type WithdrawBalanceParams struct {
	ProviderOrClientAddress address.Address
	Amount                  abi.TokenAmount
}

func (a Actor) Constructor(rt runtime.Runtime) (*abi.EmptyValue, error) {
	rt.ValidateImmediateCallerIs(builtin.SystemActorAddr)

	st, err := ConstructState(adt.WrapStore(rt.Context(), rt.Store()))
	if err != nil {
		return nil, runtime.NewActorError(exitcode.ErrIllegalState, "failed to construct state: %s", err)
	}
	if err := rt.StateCreate(st); err != nil {
		return nil, runtime.Absorb(err, exitcode.ErrIllegalState, "failed to create market state")
	}
	return nil, nil
}

// AddBalance deposits the received funds into the escrow of `providerOrClientAddress`.
// Funds for a miner may only come from its owner, worker or control addresses.
func (a Actor) AddBalance(rt runtime.Runtime, providerOrClientAddress *address.Address) (*abi.EmptyValue, error) {
	msgValue := rt.Message().ValueReceived()
	if msgValue.LessThanEqual(big.Zero()) {
		return nil, runtime.NewActorError(exitcode.ErrIllegalArgument, "balance to add must be greater than zero, was %s", msgValue)
	}

	nominal, _, approvedCallers, aerr := escrowAddress(rt, *providerOrClientAddress)
	if aerr != nil {
		return nil, aerr
	}
	if approvedCallers != nil {
		rt.ValidateImmediateCallerIs(approvedCallers...)
	} else {
		rt.ValidateImmediateCallerType(builtin.AccountActorCodeID)
	}

	var st State
	err := rt.StateTransaction(&st, func() error {
		if err := st.AddEscrow(adt.WrapStore(rt.Context(), rt.Store()), nominal, msgValue); err != nil {
			return runtime.NewActorError(exitcode.ErrIllegalState, "failed to add escrow for %s: %s", nominal, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nil, nil
}

// WithdrawBalance takes up to the requested amount out of escrow and sends it
// to the client, or to the owner when the escrow belongs to a miner. It
// returns the amount actually withdrawn.
func (a Actor) WithdrawBalance(rt runtime.Runtime, params *WithdrawBalanceParams) (*abi.TokenAmount, error) {
	if params.Amount.LessThan(big.Zero()) {
		return nil, runtime.NewActorError(exitcode.ErrIllegalArgument, "negative withdrawal %s", params.Amount)
	}

	nominal, recipient, approvedCallers, aerr := escrowAddress(rt, params.ProviderOrClientAddress)
	if aerr != nil {
		return nil, aerr
	}
	if approvedCallers == nil {
		approvedCallers = []address.Address{nominal}
	}
	rt.ValidateImmediateCallerIs(approvedCallers...)

	var st State
	var taken abi.TokenAmount
	err := rt.StateTransaction(&st, func() error {
		var err error
		taken, err = st.WithdrawEscrow(adt.WrapStore(rt.Context(), rt.Store()), nominal, params.Amount)
		if xerrors.Is(err, ErrInsufficientEscrow) {
			return runtime.NewActorError(exitcode.ErrInsufficientFunds, "%s", err)
		}
		if err != nil {
			return runtime.NewActorError(exitcode.ErrIllegalState, "failed to withdraw escrow for %s: %s", nominal, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := rt.Send(recipient, builtin.MethodSend, nil, taken); err != nil {
		return nil, builtin.AsActorError(err, "failed to send withdrawn funds")
	}
	return &taken, nil
}

// escrowAddress resolves `addr` to the ID address its escrow is kept under.
// For a miner it also returns the owner, which receives withdrawals, and the
// addresses allowed to act on the escrow. For anyone else approvedCallers is nil.
func escrowAddress(rt runtime.Runtime, addr address.Address) (nominal address.Address, recipient address.Address, approvedCallers []address.Address, aerr *runtime.ActorError) {
	nominal, err := builtin.ResolveToIDAddr(rt, addr)
	if err != nil {
		return address.Undef, address.Undef, nil, builtin.AsActorError(err, "failed to resolve escrow address")
	}

	codeID, ok := rt.GetActorCodeCID(nominal)
	if !ok {
		return address.Undef, address.Undef, nil, runtime.NewActorError(exitcode.ErrIllegalArgument, "no code for address %v", nominal)
	}

	if builtin.IsStorageMinerActor(codeID) {
		owner, worker, controls, err := builtin.RequestMinerControlAddrs(rt, nominal)
		if err != nil {
			return address.Undef, address.Undef, nil, builtin.AsActorError(err, "failed to get miner control addresses")
		}
		approved := make([]address.Address, 0, len(controls)+2)
		approved = append(approved, owner, worker)
		approved = append(approved, controls...)
		return nominal, owner, approved, nil
	}

	return nominal, nominal, nil, nil
}
