package state

import (
	"context"
	"fmt"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/pkg/errors"

	"github.com/foxxcn/RefFVM/pkg/adt"
	"github.com/foxxcn/RefFVM/pkg/builtin"
	"github.com/foxxcn/RefFVM/pkg/builtin/account"
	"github.com/foxxcn/RefFVM/pkg/builtin/initactor"
	"github.com/foxxcn/RefFVM/pkg/builtin/market"
	"github.com/foxxcn/RefFVM/pkg/builtin/miner"
	vmstate "github.com/foxxcn/RefFVM/pkg/state/tree"
	"github.com/foxxcn/RefFVM/pkg/types"
)

// View is a read-only interface to a snapshot of actor state.
// Addresses passed to it may be in any form; unmapped addresses fail with an
// error wrapping types.ErrActorNotFound, the view never assigns IDs.
type View struct {
	ipldStore cbor.IpldStore
	root      cid.Cid
}

// NewView creates a new state view
func NewView(store cbor.IpldStore, root cid.Cid) *View {
	return &View{
		ipldStore: store,
		root:      root,
	}
}

// InitNetworkName Returns the network name from the init actor state.
func (v *View) InitNetworkName(ctx context.Context) (string, error) {
	initState, err := v.LoadInitState(ctx)
	if err != nil {
		return "", err
	}
	return initState.NetworkName, nil
}

// InitResolveAddress Returns ID address if public key address is given.
func (v *View) InitResolveAddress(ctx context.Context, a addr.Address) (addr.Address, error) {
	if a.Protocol() == addr.ID {
		return a, nil
	}

	initState, err := v.LoadInitState(ctx)
	if err != nil {
		return addr.Undef, err
	}
	rAddr, found, err := initState.ResolveAddress(adt.WrapStore(ctx, v.ipldStore), a)
	if err != nil {
		return addr.Undef, err
	}
	if !found {
		return addr.Undef, errors.Wrapf(types.ErrActorNotFound, "no ID for %s", a)
	}

	return rAddr, nil
}

// MinerExists Returns true iff the miner exists.
func (v *View) MinerExists(ctx context.Context, maddr addr.Address) (bool, error) {
	_, err := v.LoadMinerState(ctx, maddr)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, types.ErrActorNotFound) {
		return false, nil
	}
	return false, err
}

// MinerControlAddrs returns the owner, worker and control addresses of a
// miner as stored, without invoking it.
func (v *View) MinerControlAddrs(ctx context.Context, maddr addr.Address) (*builtin.MinerAddrs, error) {
	minerState, err := v.LoadMinerState(ctx, maddr)
	if err != nil {
		return nil, err
	}
	return minerState.Addrs(), nil
}

// ListMiners returns the ID addresses of every miner.
func (v *View) ListMiners(ctx context.Context) ([]addr.Address, error) {
	tree, err := vmstate.LoadState(ctx, v.ipldStore, v.root)
	if err != nil {
		return nil, err
	}

	var miners []addr.Address
	err = tree.ForEach(func(a addr.Address, act *types.Actor) error {
		if builtin.IsStorageMinerActor(act.Code) {
			miners = append(miners, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return miners, nil
}

// MarketEscrowBalance looks up a token amount in the escrow table for the given address
func (v *View) MarketEscrowBalance(ctx context.Context, a addr.Address) (abi.TokenAmount, error) {
	idAddr, err := v.InitResolveAddress(ctx, a)
	if err != nil {
		return abi.NewTokenAmount(0), err
	}

	marketState, err := v.LoadMarketState(ctx)
	if err != nil {
		return abi.NewTokenAmount(0), err
	}

	return marketState.BalanceOf(adt.WrapStore(ctx, v.ipldStore), idAddr)
}

//LoadActor load actor from tree
func (v *View) LoadActor(ctx context.Context, address addr.Address) (*types.Actor, error) {
	return v.loadActor(ctx, address)
}

// ResolveToKeyAddr returns the public key type of address (`BLS`/`SECP256K1`) of an account actor identified by `addr`.
func (v *View) ResolveToKeyAddr(ctx context.Context, address addr.Address) (addr.Address, error) {
	if address.Protocol() == addr.BLS || address.Protocol() == addr.SECP256K1 {
		return address, nil
	}

	ast, err := v.LoadAccountState(ctx, address)
	if err != nil {
		return addr.Undef, fmt.Errorf("failed to get account actor state for %s: %w", address, err)
	}

	return ast.Address, nil
}

// LookupID retrieves the ID address of the given address
func (v *View) LookupID(ctx context.Context, address addr.Address) (addr.Address, error) {
	sTree, err := vmstate.LoadState(ctx, v.ipldStore, v.root)
	if err != nil {
		return addr.Address{}, err
	}

	return sTree.LookupID(address)
}

func (v *View) LoadInitState(ctx context.Context) (*initactor.State, error) {
	var st initactor.State
	if err := v.loadState(ctx, builtin.InitActorAddr, builtin.InitActorCodeID, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

//LoadMinerState return miner state
func (v *View) LoadMinerState(ctx context.Context, maddr addr.Address) (*miner.State, error) {
	var st miner.State
	if err := v.loadState(ctx, maddr, builtin.StorageMinerActorCodeID, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (v *View) LoadMarketState(ctx context.Context) (*market.State, error) {
	var st market.State
	if err := v.loadState(ctx, builtin.StorageMarketActorAddr, builtin.StorageMarketActorCodeID, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (v *View) LoadAccountState(ctx context.Context, a addr.Address) (*account.State, error) {
	var st account.State
	if err := v.loadState(ctx, a, builtin.AccountActorCodeID, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// loadState decodes the head of the actor at `address`, which must run `code`.
func (v *View) loadState(ctx context.Context, address addr.Address, code cid.Cid, out interface{}) error {
	resolvedAddr, err := v.InitResolveAddress(ctx, address)
	if err != nil {
		return err
	}
	actr, err := v.loadActor(ctx, resolvedAddr)
	if err != nil {
		return err
	}
	if !actr.Code.Equals(code) {
		return fmt.Errorf("actor %s is a %s, not a %s", address, builtin.ActorNameByCode(actr.Code), builtin.ActorNameByCode(code))
	}
	return v.ipldStore.Get(ctx, actr.Head, out)
}

//loadActor load actor of address in db
func (v *View) loadActor(ctx context.Context, address addr.Address) (*types.Actor, error) {
	tree, err := vmstate.LoadState(ctx, v.ipldStore, v.root)
	if err != nil {
		return nil, err
	}
	actor, found, err := tree.GetActor(ctx, address)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrapf(types.ErrActorNotFound, "address is :%s", address)
	}

	return actor, err
}
