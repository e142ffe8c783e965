// Package tree holds the state tree: the map from ID address to actor that
// every message is applied to.
package tree

import (
	"context"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	lru "github.com/hashicorp/golang-lru"
	"github.com/ipfs/go-cid"
	ipldcbor "github.com/ipfs/go-ipld-cbor"
	logging "github.com/ipfs/go-log/v2"
	"go.opencensus.io/trace"
	"golang.org/x/xerrors"

	"github.com/foxxcn/RefFVM/pkg/adt"
	"github.com/foxxcn/RefFVM/pkg/builtin"
	"github.com/foxxcn/RefFVM/pkg/builtin/initactor"
	"github.com/foxxcn/RefFVM/pkg/types"
)

type ActorKey = address.Address

type Root = cid.Cid

// Tree is the state tree as the VM sees it.
type Tree interface {
	GetActor(ctx context.Context, addr ActorKey) (*types.Actor, bool, error)
	SetActor(ctx context.Context, addr ActorKey, act *types.Actor) error
	DeleteActor(ctx context.Context, addr ActorKey) error

	LookupID(addr ActorKey) (address.Address, error)
	RegisterNewAddress(addr ActorKey) (address.Address, error)

	Assignments() []Assignment

	Flush(ctx context.Context) (cid.Cid, error)
	Snapshot(ctx context.Context) error
	ClearSnapshot()
	Revert() error

	MutateActor(addr ActorKey, f func(*types.Actor) error) error
	ForEach(f func(ActorKey, *types.Actor) error) error
}

var log = logging.Logger("statetree")

// actorCacheSize bounds the number of flushed actors kept decoded in memory.
const actorCacheSize = 4096

// State stores actors state by their ID.
type State struct {
	root  *adt.Map
	Store ipldcbor.IpldStore

	journal *journal
	// committed holds actors as they are in `root`, keyed by ID address.
	committed *lru.Cache
}

var _ Tree = (*State)(nil)

// NewState returns an empty state tree.
func NewState(cst ipldcbor.IpldStore) (*State, error) {
	root, err := adt.MakeEmptyMap(adt.WrapStore(context.TODO(), cst), builtin.DefaultHamtBitwidth)
	if err != nil {
		return nil, err
	}
	return newState(root, cst)
}

// LoadState loads the state tree with root `c`.
func LoadState(ctx context.Context, cst ipldcbor.IpldStore, c cid.Cid) (*State, error) {
	root, err := adt.AsMap(adt.WrapStore(ctx, cst), c, builtin.DefaultHamtBitwidth)
	if err != nil {
		log.Errorf("loading hamt node %s failed: %s", c, err)
		return nil, err
	}
	return newState(root, cst)
}

func newState(root *adt.Map, cst ipldcbor.IpldStore) (*State, error) {
	committed, err := lru.New(actorCacheSize)
	if err != nil {
		return nil, err
	}
	return &State{
		root:      root,
		Store:     cst,
		journal:   newJournal(),
		committed: committed,
	}, nil
}

func (st *State) SetActor(ctx context.Context, addr ActorKey, act *types.Actor) error {
	iaddr, err := st.LookupID(addr)
	if err != nil {
		return xerrors.Errorf("ID lookup failed: %w", err)
	}

	st.journal.setActor(iaddr, act)
	return nil
}

// LookupID gets the ID address of this actor's `addr` stored in the init actor.
// Addresses without a mapping fail with an error wrapping types.ErrActorNotFound.
func (st *State) LookupID(addr ActorKey) (address.Address, error) {
	if addr.Protocol() == address.ID {
		return addr, nil
	}

	if id, ok := st.journal.lookupID(addr); ok {
		return id, nil
	}

	ias, err := st.initState(context.TODO())
	if err != nil {
		return address.Undef, err
	}

	a, found, err := ias.ResolveAddress(adt.WrapStore(context.TODO(), st.Store), addr)
	if err == nil && !found {
		err = types.ErrActorNotFound
	}
	if err != nil {
		return address.Undef, xerrors.Errorf("resolve address %s: %w", addr, err)
	}

	st.journal.cacheID(addr, a)

	return a, nil
}

func (st *State) initState(ctx context.Context) (*initactor.State, error) {
	act, found, err := st.GetActor(ctx, builtin.InitActorAddr)
	if err != nil {
		return nil, xerrors.Errorf("getting init actor: %w", err)
	}
	if !found {
		return nil, xerrors.Errorf("getting init actor: %w", types.ErrActorNotFound)
	}

	var ias initactor.State
	if err := st.Store.Get(ctx, act.Head, &ias); err != nil {
		return nil, xerrors.Errorf("loading init actor state: %w", err)
	}
	return &ias, nil
}

// GetActor returns the actor from any type of `addr` provided.
func (st *State) GetActor(ctx context.Context, addr ActorKey) (*types.Actor, bool, error) {
	if addr == address.Undef {
		return nil, false, xerrors.New("GetActor called on undefined address")
	}

	// Transform `addr` to its ID format.
	iaddr, err := st.LookupID(addr)
	if err != nil {
		if xerrors.Is(err, types.ErrActorNotFound) {
			return nil, false, nil
		}
		return nil, false, xerrors.Errorf("address resolution: %w", err)
	}
	addr = iaddr

	if pending, deleted, ok := st.journal.actor(addr); ok {
		if deleted {
			return nil, false, nil
		}
		return pending, true, nil
	}

	if cached, ok := st.committed.Get(addr); ok {
		act := cached.(types.Actor)
		return &act, true, nil
	}

	var act types.Actor
	if found, err := st.root.Get(abi.AddrKey(addr), &act); err != nil {
		return nil, false, xerrors.Errorf("hamt find failed: %w", err)
	} else if !found {
		return nil, false, nil
	}

	st.committed.Add(addr, act)

	return &act, true, nil
}

func (st *State) DeleteActor(ctx context.Context, addr ActorKey) error {
	if addr == address.Undef {
		return xerrors.New("DeleteActor called on undefined address")
	}

	iaddr, err := st.LookupID(addr)
	if err != nil {
		return xerrors.Errorf("address resolution: %w", err)
	}

	_, found, err := st.GetActor(ctx, iaddr)
	if err != nil {
		return err
	}
	if !found {
		return xerrors.Errorf("delete %s: %w", iaddr, types.ErrActorNotFound)
	}

	st.journal.deleteActor(iaddr)

	return nil
}

// Flush writes all pending changes to the HAMT and returns its new root. It
// fails while a snapshot is open.
func (st *State) Flush(ctx context.Context) (cid.Cid, error) {
	ctx, span := trace.StartSpan(ctx, "stateTree.Flush") //nolint:staticcheck
	defer span.End()
	if st.journal.depth() != 0 {
		return cid.Undef, xerrors.New("tried to flush state tree with snapshots on the stack")
	}

	assigned := st.journal.assignments()
	for addr, sto := range st.journal.base().actors {
		if sto.deleted {
			if err := st.root.Delete(abi.AddrKey(addr)); err != nil {
				return cid.Undef, err
			}
			st.committed.Remove(addr)
		} else {
			act := sto.act
			if err := st.root.Put(abi.AddrKey(addr), &act); err != nil {
				return cid.Undef, err
			}
			st.committed.Add(addr, act)
		}
	}
	st.journal.flushed()

	root, err := st.root.Root()
	if err != nil {
		return cid.Undef, err
	}
	span.AddAttributes(trace.StringAttribute("root", root.String()))
	log.Debugw("flushed state tree", "root", root, "assigned", len(assigned))
	return root, nil
}

// Snapshot opens a new layer. Changes made from here on are discarded by
// Revert or kept by ClearSnapshot.
func (st *State) Snapshot(ctx context.Context) error {
	_, span := trace.StartSpan(ctx, "stateTree.SnapShot") //nolint:staticcheck
	defer span.End()

	st.journal.push()

	return nil
}

// ClearSnapshot closes the top layer, keeping its changes.
func (st *State) ClearSnapshot() {
	st.journal.commit()
}

// Revert discards every change made in the top layer, leaving it open.
func (st *State) Revert() error {
	st.journal.discard()
	st.journal.push()

	return nil
}

// SnapshotDepth is the number of open snapshots.
func (st *State) SnapshotDepth() int {
	return st.journal.depth()
}

// RegisterNewAddress assigns the next free actor ID to `addr` in the init actor.
func (st *State) RegisterNewAddress(addr ActorKey) (address.Address, error) {
	var out address.Address
	err := st.MutateActor(builtin.InitActorAddr, func(initact *types.Actor) error {
		var ias initactor.State
		if err := st.Store.Get(context.TODO(), initact.Head, &ias); err != nil {
			return err
		}

		oaddr, err := ias.MapAddressToNewID(adt.WrapStore(context.TODO(), st.Store), addr)
		if err != nil {
			return err
		}
		out = oaddr

		ncid, err := st.Store.Put(context.TODO(), &ias)
		if err != nil {
			return err
		}

		initact.Head = ncid
		return nil
	})
	if err != nil {
		return address.Undef, err
	}

	st.journal.recordAssignment(addr, out)
	return out, nil
}

// Assignments lists the IDs assigned since the last flush, oldest first.
// Reverted snapshots take their assignments with them.
func (st *State) Assignments() []Assignment {
	return st.journal.assignments()
}

// MutateActor loads the actor at `addr`, applies f and stores it back.
func (st *State) MutateActor(addr ActorKey, f func(*types.Actor) error) error {
	act, found, err := st.GetActor(context.Background(), addr)
	if err != nil {
		return err
	}
	if !found {
		return xerrors.Errorf("mutate %s: %w", addr, types.ErrActorNotFound)
	}

	if err := f(act); err != nil {
		return err
	}

	return st.SetActor(context.Background(), addr, act)
}

// ForEach visits every actor in the flushed tree.
func (st *State) ForEach(f func(ActorKey, *types.Actor) error) error {
	var act types.Actor
	return st.root.ForEach(&act, func(k string) error {
		addr, err := address.NewFromBytes([]byte(k))
		if err != nil {
			return xerrors.Errorf("invalid address (%x) found in state tree key: %w", []byte(k), err)
		}

		return f(addr, &act)
	})
}
