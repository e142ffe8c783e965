package state_test

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-datastore"
	dss "github.com/ipfs/go-datastore/sync"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxxcn/RefFVM/pkg/config"
	"github.com/foxxcn/RefFVM/pkg/gen/genesis"
	"github.com/foxxcn/RefFVM/pkg/state"
	"github.com/foxxcn/RefFVM/pkg/testhelpers"
	tf "github.com/foxxcn/RefFVM/pkg/testhelpers/testflags"
	"github.com/foxxcn/RefFVM/pkg/types"
)

func setupTestMinerView(t *testing.T) (*state.View, address.Address, address.Address, address.Address) {
	ctx := context.Background()
	bs := blockstore.NewBlockstore(dss.MutexWrap(datastore.NewMapDatastore()))

	addrGetter := testhelpers.NewForTestGetter()
	owner, worker := addrGetter(), addrGetter()
	cfg := &config.GenesisConfig{
		NetworkName:  "viewnet",
		FirstActorID: 100,
		Accounts: []config.AccountConfig{
			{Address: owner.String(), Balance: "100"},
			{Address: worker.String(), Balance: "100"},
		},
		Miners: []config.MinerConfig{{Owner: owner.String(), Worker: worker.String()}},
	}
	gen, err := genesis.MakeGenesis(ctx, bs, cfg)
	require.NoError(t, err)
	require.Len(t, gen.Miners, 1)

	return state.NewView(cbor.NewCborStore(bs), gen.Root), owner, worker, gen.Miners[0]
}

func TestView(t *testing.T) {
	tf.IntegrationTest(t)

	ctx := context.Background()
	view, owner, worker, minerAddr := setupTestMinerView(t)

	name, err := view.InitNetworkName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "viewnet", name)

	ownerID, err := view.InitResolveAddress(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, testhelpers.RequireIDAddress(t, 100), ownerID)

	lookedUp, err := view.LookupID(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, ownerID, lookedUp)

	miners, err := view.ListMiners(ctx)
	require.NoError(t, err)
	assert.Equal(t, []address.Address{minerAddr}, miners)

	exist, err := view.MinerExists(ctx, minerAddr)
	require.NoError(t, err)
	assert.True(t, exist)

	addrs, err := view.MinerControlAddrs(ctx, minerAddr)
	require.NoError(t, err)
	assert.Equal(t, ownerID, addrs.Owner)
	assert.Empty(t, addrs.ControlAddrs)

	workerKey, err := view.ResolveToKeyAddr(ctx, addrs.Worker)
	require.NoError(t, err)
	assert.Equal(t, worker, workerKey)

	escrow, err := view.MarketEscrowBalance(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, abi.NewTokenAmount(0), escrow)
}

func TestViewUnknownAddress(t *testing.T) {
	tf.IntegrationTest(t)

	ctx := context.Background()
	view, owner, _, _ := setupTestMinerView(t)
	unknown, err := address.NewSecp256k1Address([]byte("nobody"))
	require.NoError(t, err)

	_, err = view.InitResolveAddress(ctx, unknown)
	assert.ErrorIs(t, err, types.ErrActorNotFound)

	_, err = view.LoadActor(ctx, testhelpers.RequireIDAddress(t, 999))
	assert.ErrorIs(t, err, types.ErrActorNotFound)

	exist, err := view.MinerExists(ctx, unknown)
	require.NoError(t, err)
	assert.False(t, exist)

	// an account is not a miner
	_, err = view.MinerControlAddrs(ctx, owner)
	assert.Error(t, err)
}
