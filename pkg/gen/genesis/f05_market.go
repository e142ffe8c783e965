package genesis

import (
	"context"

	"github.com/filecoin-project/go-state-types/big"
	cbor "github.com/ipfs/go-ipld-cbor"

	"github.com/foxxcn/RefFVM/pkg/adt"
	"github.com/foxxcn/RefFVM/pkg/builtin"
	"github.com/foxxcn/RefFVM/pkg/builtin/market"
	"github.com/foxxcn/RefFVM/pkg/types"
)

// SetupStorageMarketActor returns the market actor with an empty escrow table.
func SetupStorageMarketActor(ctx context.Context, cst cbor.IpldStore) (*types.Actor, error) {
	store := adt.WrapStore(ctx, cst)

	sms, err := market.ConstructState(store)
	if err != nil {
		return nil, err
	}

	stcid, err := store.Put(store.Context(), sms)
	if err != nil {
		return nil, err
	}

	act := types.NewActor(builtin.StorageMarketActorCodeID, big.Zero())
	act.Head = stcid
	return act, nil
}
