package genesis

import (
	"context"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	cbor "github.com/ipfs/go-ipld-cbor"

	"github.com/foxxcn/RefFVM/pkg/builtin"
	"github.com/foxxcn/RefFVM/pkg/builtin/account"
	"github.com/foxxcn/RefFVM/pkg/types"
)

// SetupSystemActor returns the system actor. It has no state of its own.
func SetupSystemActor() *types.Actor {
	return types.NewActor(builtin.SystemActorCodeID, big.Zero())
}

func makeAccountActor(ctx context.Context, cst cbor.IpldStore, addr address.Address, bal abi.TokenAmount) (*types.Actor, error) {
	ast := &account.State{Address: addr}
	statecid, err := cst.Put(ctx, ast)
	if err != nil {
		return nil, err
	}

	act := types.NewActor(builtin.AccountActorCodeID, bal)
	act.Head = statecid
	return act, nil
}
