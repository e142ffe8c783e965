package builtin

import (
	"context"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	logging "github.com/ipfs/go-log/v2"

	"github.com/foxxcn/RefFVM/pkg/metrics"
	"github.com/foxxcn/RefFVM/pkg/vm/runtime"
)

var log = logging.Logger("builtin")

// Sender performs synchronous calls into other actors.
type Sender interface {
	Send(to address.Address, method abi.MethodNum, params cbor.Marshaler, value abi.TokenAmount) (runtime.SendReturn, error)
}

// AddressResolver looks up existing ID address mappings without creating any.
type AddressResolver interface {
	ResolveAddress(addr address.Address) (address.Address, bool, error)
}

// ResolverRuntime is the part of runtime.Runtime ResolveToIDAddr depends on.
type ResolverRuntime interface {
	Sender
	AddressResolver
	Context() context.Context
}

// MinerAddrs is the return value of the miner's ControlAddresses method.
type MinerAddrs struct {
	Owner        address.Address
	Worker       address.Address
	ControlAddrs []address.Address
}

// RequestMinerControlAddrs asks the miner actor at `minerAddr` for its owner,
// worker and control addresses. Every call goes to the miner; nothing is cached.
func RequestMinerControlAddrs(rt Sender, minerAddr address.Address) (ownerAddr address.Address, workerAddr address.Address, controlAddrs []address.Address, err error) {
	ret, err := rt.Send(minerAddr, MethodsMiner.ControlAddresses, nil, big.Zero())
	if err != nil {
		return address.Undef, address.Undef, nil, &Error{
			Kind:    ErrKindCall,
			Op:      "failed to request control addresses from",
			Address: minerAddr,
			Err:     err,
		}
	}

	var addrs MinerAddrs
	if err := ret.Into(&addrs); err != nil {
		return address.Undef, address.Undef, nil, &Error{
			Kind:    ErrKindDecode,
			Op:      "failed to decode control addresses of",
			Address: minerAddr,
			Err:     err,
		}
	}

	return addrs.Owner, addrs.Worker, addrs.ControlAddrs, nil
}

// ResolveToIDAddr resolves the given address to its ID address form.
//
// If no ID address exists for `addr` yet, one is created by sending a zero
// balance to it. This relies on the runtime creating an account actor, and
// with it an ID mapping, for any key address receiving a transfer, and on a
// zero value transfer having no other effect. Assignment is a one shot side
// effect of that transfer, so a mapping still missing afterwards is reported
// as an inconsistency, never retried.
func ResolveToIDAddr(rt ResolverRuntime, addr address.Address) (address.Address, error) {
	// if we are able to resolve it to an ID address, return the resolved address
	idAddr, found, err := rt.ResolveAddress(addr)
	if err != nil {
		return address.Undef, &Error{Kind: ErrKindLookup, Op: "failed to look up ID address of", Address: addr, Err: err}
	}
	if found {
		metrics.ResolveFastPath.Inc(rt.Context(), 1)
		return idAddr, nil
	}

	// send 0 balance to the account so an ID address for it is created and then try to resolve
	log.Debugw("sending zero balance to assign ID address", "address", addr)
	if _, err := rt.Send(addr, MethodSend, nil, big.Zero()); err != nil {
		return address.Undef, &Error{Kind: ErrKindCall, Op: "failed to send zero balance to address", Address: addr, Err: err}
	}
	metrics.ResolveForced.Inc(rt.Context(), 1)

	idAddr, found, err = rt.ResolveAddress(addr)
	if err != nil {
		return address.Undef, &Error{Kind: ErrKindLookup, Op: "failed to look up ID address of", Address: addr, Err: err}
	}
	if !found {
		return address.Undef, &Error{Kind: ErrKindInconsistentMapping, Address: addr, Err: ErrInconsistentMapping}
	}
	return idAddr, nil
}
