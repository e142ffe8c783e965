// Package initactor holds the state of the init actor, which owns the mapping
// from public key and actor addresses to ID addresses.
package initactor

import (
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"
	cbg "github.com/whyrusleeping/cbor-gen"
	"golang.org/x/xerrors"

	"github.com/foxxcn/RefFVM/pkg/adt"
	"github.com/foxxcn/RefFVM/pkg/builtin"
)

// ErrAddressAlreadyMapped is returned when an address is assigned a second ID.
var ErrAddressAlreadyMapped = xerrors.New("address already mapped to an ID")

// State is the init actor's state.
type State struct {
	AddressMap  cid.Cid // HAMT[addr]ActorID
	NextID      abi.ActorID
	NetworkName string
}

// ConstructState returns the state of a fresh init actor, handing out IDs from
// builtin.FirstNonSingletonActorID.
func ConstructState(store adt.Store, networkName string) (*State, error) {
	emptyMap, err := adt.StoreEmptyMap(store, builtin.DefaultHamtBitwidth)
	if err != nil {
		return nil, xerrors.Errorf("failed to create empty map: %w", err)
	}

	return &State{
		AddressMap:  emptyMap,
		NextID:      builtin.FirstNonSingletonActorID,
		NetworkName: networkName,
	}, nil
}

// ResolveAddress resolves an address to an ID-address, if possible.
// If the provided address is an ID address, it is returned as-is.
// This means that mapped ID-addresses (which should only appear as values, not keys) and
// singleton actor addresses (which are not in the map) pass through unchanged.
//
// Returns an ID-address and `true` if the address was already an ID-address or was resolved in the mapping.
// Returns an undefined address and `false` if the address was not an ID-address and not found in the mapping.
// Returns an error only if state was inconsistent.
func (s *State) ResolveAddress(store adt.Store, addr address.Address) (address.Address, bool, error) {
	if addr.Protocol() == address.ID {
		return addr, true, nil
	}

	m, err := adt.AsMap(store, s.AddressMap, builtin.DefaultHamtBitwidth)
	if err != nil {
		return address.Undef, false, xerrors.Errorf("failed to load address map: %w", err)
	}

	var actorID cbg.CborInt
	if found, err := m.Get(abi.AddrKey(addr), &actorID); err != nil {
		return address.Undef, false, xerrors.Errorf("failed to get from address map: %w", err)
	} else if found {
		idAddr, err := address.NewIDAddress(uint64(actorID))
		return idAddr, true, err
	}
	return address.Undef, false, nil
}

// MapAddressToNewID allocates a new ID address and maps `addr` to it.
// The mapping is permanent, so an address which already has an ID is refused.
func (s *State) MapAddressToNewID(store adt.Store, addr address.Address) (address.Address, error) {
	if addr.Protocol() == address.ID {
		return address.Undef, xerrors.Errorf("cannot map ID address %s", addr)
	}

	m, err := adt.AsMap(store, s.AddressMap, builtin.DefaultHamtBitwidth)
	if err != nil {
		return address.Undef, xerrors.Errorf("failed to load address map: %w", err)
	}

	if has, err := m.Has(abi.AddrKey(addr)); err != nil {
		return address.Undef, xerrors.Errorf("failed to check address map: %w", err)
	} else if has {
		return address.Undef, xerrors.Errorf("%s: %w", addr, ErrAddressAlreadyMapped)
	}

	actorID := cbg.CborInt(s.NextID)
	s.NextID++

	if err := m.Put(abi.AddrKey(addr), &actorID); err != nil {
		return address.Undef, xerrors.Errorf("map address failed to store entry: %w", err)
	}
	amr, err := m.Root()
	if err != nil {
		return address.Undef, xerrors.Errorf("failed to get address map root: %w", err)
	}
	s.AddressMap = amr

	idAddr, err := address.NewIDAddress(uint64(actorID))
	if err != nil {
		return address.Undef, err
	}
	return idAddr, nil
}

// ForEachMapping calls fn for every address with an ID, in no particular order.
func (s *State) ForEachMapping(store adt.Store, fn func(addr address.Address, id abi.ActorID) error) error {
	m, err := adt.AsMap(store, s.AddressMap, builtin.DefaultHamtBitwidth)
	if err != nil {
		return xerrors.Errorf("failed to load address map: %w", err)
	}
	var actorID cbg.CborInt
	return m.ForEach(&actorID, func(key string) error {
		addr, err := address.NewFromBytes([]byte(key))
		if err != nil {
			return xerrors.Errorf("invalid address (%x) found in address map: %w", []byte(key), err)
		}
		return fn(addr, abi.ActorID(actorID))
	})
}
