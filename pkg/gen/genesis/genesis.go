// Package genesis builds the initial state tree of a RefFVM repo.
package genesis

import (
	"context"
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	cbor "github.com/ipfs/go-ipld-cbor"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/foxxcn/RefFVM/pkg/adt"
	"github.com/foxxcn/RefFVM/pkg/builtin"
	"github.com/foxxcn/RefFVM/pkg/builtin/initactor"
	"github.com/foxxcn/RefFVM/pkg/builtin/miner"
	"github.com/foxxcn/RefFVM/pkg/config"
	"github.com/foxxcn/RefFVM/pkg/state/tree"
	"github.com/foxxcn/RefFVM/pkg/types"
	"github.com/foxxcn/RefFVM/pkg/vm"
)

var log = logging.Logger("genesis")

// Genesis is the outcome of MakeGenesis.
type Genesis struct {
	Root cid.Cid
	// Accounts maps every funded key address to its ID address.
	Accounts map[address.Address]address.Address
	// Miners holds the ID addresses of the miners, in configuration order.
	Miners []address.Address
}

/*
From the genesis configuration, create the initial state

The process:
- Bootstrap state (MakeInitialStateTree)
  - Create empty state
  - Create system actor
  - Make init actor, NextID from the configuration
  - Create empty market
  - Setup burnt fund address
  - Create and fund accounts, mapping their key addresses
- Instantiate a vm over that state
  - Create miners
    - Each:
      - map a fresh actor address to a new ID
      - call the miner constructor from the system actor, which
        resolves the owner, worker and control addresses
*/

// MakeGenesis builds the initial state in `bs` and returns its root.
func MakeGenesis(ctx context.Context, bs blockstore.Blockstore, cfg *config.GenesisConfig) (*Genesis, error) {
	state, accounts, err := MakeInitialStateTree(ctx, bs, cfg)
	if err != nil {
		return nil, xerrors.Errorf("making initial state tree: %w", err)
	}
	root, err := state.Flush(ctx)
	if err != nil {
		return nil, xerrors.Errorf("flushing initial state tree: %w", err)
	}

	v, err := vm.NewVM(ctx, bs, root, vm.VmOption{})
	if err != nil {
		return nil, xerrors.Errorf("creating genesis vm: %w", err)
	}

	miners := make([]address.Address, 0, len(cfg.Miners))
	for i, m := range cfg.Miners {
		idAddr, err := createMiner(ctx, v, cfg.NetworkName, i, m)
		if err != nil {
			return nil, xerrors.Errorf("creating miner %d: %w", i, err)
		}
		log.Infow("created genesis miner", "id", idAddr, "owner", m.Owner, "worker", m.Worker)
		miners = append(miners, idAddr)
	}

	root, err = v.Flush(ctx)
	if err != nil {
		return nil, xerrors.Errorf("flushing genesis vm: %w", err)
	}
	log.Infow("genesis state created", "root", root, "accounts", len(accounts), "miners", len(miners))

	return &Genesis{
		Root:     root,
		Accounts: accounts,
		Miners:   miners,
	}, nil
}

// MakeInitialStateTree creates the singletons and the funded accounts. It
// returns the key address to ID address mapping of the accounts.
func MakeInitialStateTree(ctx context.Context, bs blockstore.Blockstore, cfg *config.GenesisConfig) (*tree.State, map[address.Address]address.Address, error) {
	// Create empty state tree

	cst := cbor.NewCborStore(bs)
	_, err := cst.Put(ctx, []struct{}{})
	if err != nil {
		return nil, nil, xerrors.Errorf("putting empty object: %w", err)
	}

	state, err := tree.NewState(cst)
	if err != nil {
		return nil, nil, xerrors.Errorf("making new state tree: %w", err)
	}

	// Create system actor

	if err := state.SetActor(ctx, builtin.SystemActorAddr, SetupSystemActor()); err != nil {
		return nil, nil, xerrors.Errorf("set system actor: %w", err)
	}

	// Create init actor

	initact, err := SetupInitActor(ctx, cst, cfg.NetworkName, cfg.FirstActorID)
	if err != nil {
		return nil, nil, xerrors.Errorf("setup init actor: %w", err)
	}
	if err := state.SetActor(ctx, builtin.InitActorAddr, initact); err != nil {
		return nil, nil, xerrors.Errorf("set init actor: %w", err)
	}

	// Create empty market actor
	marketact, err := SetupStorageMarketActor(ctx, cst)
	if err != nil {
		return nil, nil, xerrors.Errorf("setup storage market actor: %w", err)
	}
	if err := state.SetActor(ctx, builtin.StorageMarketActorAddr, marketact); err != nil {
		return nil, nil, xerrors.Errorf("set storage market actor: %w", err)
	}

	bact, err := makeAccountActor(ctx, cst, builtin.BurntFundsActorAddr, big.Zero())
	if err != nil {
		return nil, nil, xerrors.Errorf("setup burnt funds actor state: %w", err)
	}
	if err := state.SetActor(ctx, builtin.BurntFundsActorAddr, bact); err != nil {
		return nil, nil, xerrors.Errorf("set burnt funds actor: %w", err)
	}

	// Create accounts
	keyIDs := make(map[address.Address]address.Address, len(cfg.Accounts))
	for _, info := range cfg.Accounts {
		addr, ida, err := createAccountActor(ctx, cst, state, info)
		if err != nil {
			return nil, nil, xerrors.Errorf("failed to create account actor: %w", err)
		}
		keyIDs[addr] = ida
	}

	// ForEach only sees flushed actors.
	if _, err := state.Flush(ctx); err != nil {
		return nil, nil, xerrors.Errorf("flushing state tree: %w", err)
	}

	totalFilAllocated := big.Zero()
	err = state.ForEach(func(addr address.Address, act *types.Actor) error {
		if act.Balance.Nil() {
			panic(fmt.Sprintf("actor %s (%s) has nil balance", addr, builtin.ActorNameByCode(act.Code)))
		}
		totalFilAllocated = big.Add(totalFilAllocated, act.Balance)
		return nil
	})
	if err != nil {
		return nil, nil, xerrors.Errorf("summing account balances in state tree: %w", err)
	}
	log.Debugw("allocated genesis funds", "total", totalFilAllocated)

	return state, keyIDs, nil
}

// SetupInitActor returns the init actor handing out IDs from `firstID`, or
// from builtin.FirstNonSingletonActorID when it is zero.
func SetupInitActor(ctx context.Context, cst cbor.IpldStore, networkName string, firstID uint64) (*types.Actor, error) {
	ist, err := initactor.ConstructState(adt.WrapStore(ctx, cst), networkName)
	if err != nil {
		return nil, err
	}
	if firstID != 0 {
		ist.NextID = abi.ActorID(firstID)
	}

	statecid, err := cst.Put(ctx, ist)
	if err != nil {
		return nil, err
	}

	act := types.NewActor(builtin.InitActorCodeID, big.Zero())
	act.Head = statecid
	return act, nil
}

func createAccountActor(ctx context.Context, cst cbor.IpldStore, state *tree.State, info config.AccountConfig) (address.Address, address.Address, error) {
	addr, err := address.NewFromString(info.Address)
	if err != nil {
		return address.Undef, address.Undef, xerrors.Errorf("parsing account address %q: %w", info.Address, err)
	}
	if addr.Protocol() != address.SECP256K1 && addr.Protocol() != address.BLS {
		return address.Undef, address.Undef, xerrors.Errorf("account %s is not a key address", addr)
	}
	bal, err := config.ParseBalance(info.Balance)
	if err != nil {
		return address.Undef, address.Undef, xerrors.Errorf("parsing balance of %s: %w", addr, err)
	}

	aa, err := makeAccountActor(ctx, cst, addr, bal)
	if err != nil {
		return address.Undef, address.Undef, err
	}

	ida, err := state.RegisterNewAddress(addr)
	if err != nil {
		return address.Undef, address.Undef, xerrors.Errorf("registering %s: %w", addr, err)
	}

	if err := state.SetActor(ctx, ida, aa); err != nil {
		return address.Undef, address.Undef, xerrors.Errorf("setting account from actmap: %w", err)
	}
	return addr, ida, nil
}

// MinerActorAddress is the actor address a genesis miner is registered under.
func MinerActorAddress(networkName string, index int) (address.Address, error) {
	return address.NewActorAddress([]byte(fmt.Sprintf("%s/genesis/miner/%d", networkName, index)))
}

func createMiner(ctx context.Context, v vmApplier, networkName string, index int, m config.MinerConfig) (address.Address, error) {
	params, err := minerParams(m)
	if err != nil {
		return address.Undef, err
	}

	robust, err := MinerActorAddress(networkName, index)
	if err != nil {
		return address.Undef, err
	}
	st := v.StateTree()
	idAddr, err := st.RegisterNewAddress(robust)
	if err != nil {
		return address.Undef, xerrors.Errorf("registering miner address: %w", err)
	}
	if err := st.SetActor(ctx, idAddr, types.NewActor(builtin.StorageMinerActorCodeID, big.Zero())); err != nil {
		return address.Undef, xerrors.Errorf("setting miner actor: %w", err)
	}

	enc, err := encodeParams(params)
	if err != nil {
		return address.Undef, err
	}
	msg := &types.Message{
		From:   builtin.SystemActorAddr,
		To:     idAddr,
		Value:  big.Zero(),
		Method: builtin.MethodsMiner.Constructor,
		Params: enc,
	}
	if _, err := v.ApplyImplicitMessage(ctx, msg); err != nil {
		return address.Undef, xerrors.Errorf("constructing miner: %w", err)
	}
	return idAddr, nil
}

func minerParams(m config.MinerConfig) (*miner.ConstructorParams, error) {
	owner, err := address.NewFromString(m.Owner)
	if err != nil {
		return nil, xerrors.Errorf("parsing owner %q: %w", m.Owner, err)
	}
	worker, err := address.NewFromString(m.Worker)
	if err != nil {
		return nil, xerrors.Errorf("parsing worker %q: %w", m.Worker, err)
	}
	controls := make([]address.Address, 0, len(m.Controls))
	for _, c := range m.Controls {
		ca, err := address.NewFromString(c)
		if err != nil {
			return nil, xerrors.Errorf("parsing control address %q: %w", c, err)
		}
		controls = append(controls, ca)
	}
	return &miner.ConstructorParams{Owner: owner, Worker: worker, ControlAddrs: controls}, nil
}
