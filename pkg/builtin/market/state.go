// Package market keeps escrow balances for storage clients and providers.
package market

import (
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"

	"github.com/foxxcn/RefFVM/pkg/adt"
	"github.com/foxxcn/RefFVM/pkg/builtin"
)

// ErrInsufficientEscrow is returned when a debit exceeds the escrowed balance.
var ErrInsufficientEscrow = xerrors.New("insufficient escrow balance")

type State struct {
	EscrowTable cid.Cid // HAMT[addr]TokenAmount
	TotalEscrow abi.TokenAmount
}

func ConstructState(store adt.Store) (*State, error) {
	emptyMap, err := adt.StoreEmptyMap(store, builtin.DefaultHamtBitwidth)
	if err != nil {
		return nil, xerrors.Errorf("failed to create empty map: %w", err)
	}
	return &State{
		EscrowTable: emptyMap,
		TotalEscrow: big.Zero(),
	}, nil
}

// BalanceOf returns the escrowed balance of `addr`, which must be an ID
// address. Unknown addresses have a zero balance.
func (st *State) BalanceOf(store adt.Store, addr address.Address) (abi.TokenAmount, error) {
	escrow, err := adt.AsMap(store, st.EscrowTable, builtin.DefaultHamtBitwidth)
	if err != nil {
		return big.Zero(), xerrors.Errorf("failed to load escrow table: %w", err)
	}
	return balanceOf(escrow, addr)
}

func balanceOf(escrow *adt.Map, addr address.Address) (abi.TokenAmount, error) {
	var amount abi.TokenAmount
	found, err := escrow.Get(abi.AddrKey(addr), &amount)
	if err != nil {
		return big.Zero(), xerrors.Errorf("failed to get escrow for %s: %w", addr, err)
	}
	if !found {
		return big.Zero(), nil
	}
	return amount, nil
}

// AddEscrow credits `amount` to `addr`.
func (st *State) AddEscrow(store adt.Store, addr address.Address, amount abi.TokenAmount) error {
	if amount.LessThan(big.Zero()) {
		return xerrors.Errorf("negative escrow amount %s for %s", amount, addr)
	}
	escrow, err := adt.AsMap(store, st.EscrowTable, builtin.DefaultHamtBitwidth)
	if err != nil {
		return xerrors.Errorf("failed to load escrow table: %w", err)
	}
	prev, err := balanceOf(escrow, addr)
	if err != nil {
		return err
	}
	next := big.Add(prev, amount)
	if err := escrow.Put(abi.AddrKey(addr), &next); err != nil {
		return xerrors.Errorf("failed to put escrow for %s: %w", addr, err)
	}
	if st.EscrowTable, err = escrow.Root(); err != nil {
		return xerrors.Errorf("failed to flush escrow table: %w", err)
	}
	st.TotalEscrow = big.Add(st.TotalEscrow, amount)
	return nil
}

// WithdrawEscrow debits up to `amount` from `addr` and returns what was
// actually taken. Emptied entries are removed from the table.
func (st *State) WithdrawEscrow(store adt.Store, addr address.Address, amount abi.TokenAmount) (abi.TokenAmount, error) {
	if amount.LessThan(big.Zero()) {
		return big.Zero(), xerrors.Errorf("negative withdrawal %s for %s", amount, addr)
	}
	escrow, err := adt.AsMap(store, st.EscrowTable, builtin.DefaultHamtBitwidth)
	if err != nil {
		return big.Zero(), xerrors.Errorf("failed to load escrow table: %w", err)
	}
	prev, err := balanceOf(escrow, addr)
	if err != nil {
		return big.Zero(), err
	}
	if prev.IsZero() {
		return big.Zero(), xerrors.Errorf("%s has no escrow: %w", addr, ErrInsufficientEscrow)
	}

	taken := amount
	if prev.LessThan(amount) {
		taken = prev
	}
	rest := big.Sub(prev, taken)
	if rest.IsZero() {
		err = escrow.Delete(abi.AddrKey(addr))
	} else {
		err = escrow.Put(abi.AddrKey(addr), &rest)
	}
	if err != nil {
		return big.Zero(), xerrors.Errorf("failed to update escrow for %s: %w", addr, err)
	}
	if st.EscrowTable, err = escrow.Root(); err != nil {
		return big.Zero(), xerrors.Errorf("failed to flush escrow table: %w", err)
	}
	st.TotalEscrow = big.Sub(st.TotalEscrow, taken)
	return taken, nil
}

// ForEachEscrow calls fn for every non-zero balance.
func (st *State) ForEachEscrow(store adt.Store, fn func(addr address.Address, amount abi.TokenAmount) error) error {
	escrow, err := adt.AsMap(store, st.EscrowTable, builtin.DefaultHamtBitwidth)
	if err != nil {
		return xerrors.Errorf("failed to load escrow table: %w", err)
	}
	var amount abi.TokenAmount
	return escrow.ForEach(&amount, func(key string) error {
		addr, err := address.NewFromBytes([]byte(key))
		if err != nil {
			return err
		}
		return fn(addr, amount)
	})
}
