package types

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tf "github.com/foxxcn/RefFVM/pkg/testhelpers/testflags"
)

func TestActorEmpty(t *testing.T) {
	tf.UnitTest(t)

	assert.True(t, (&Actor{}).Empty())
	assert.False(t, NewActor(EmptyObjectCid, abi.NewTokenAmount(0)).Empty())
}

func TestActorIncrementSeqNum(t *testing.T) {
	tf.UnitTest(t)

	act := NewActor(EmptyObjectCid, abi.NewTokenAmount(1))
	act.IncrementSeqNum()
	act.IncrementSeqNum()
	assert.Equal(t, uint64(2), act.Nonce)
}

func TestActorStoreRoundtrip(t *testing.T) {
	tf.UnitTest(t)

	ctx := context.Background()
	store := cbor.NewMemCborStore()

	act := &Actor{
		Code:    EmptyObjectCid,
		Head:    EmptyObjectCid,
		Nonce:   7,
		Balance: abi.NewTokenAmount(1000),
	}
	c, err := store.Put(ctx, act)
	require.NoError(t, err)
	assert.NotEqual(t, cid.Undef, c)

	var out Actor
	require.NoError(t, store.Get(ctx, c, &out))
	assert.Equal(t, act.Code, out.Code)
	assert.Equal(t, act.Head, out.Head)
	assert.Equal(t, act.Nonce, out.Nonce)
	assert.True(t, act.Balance.Equals(out.Balance))
}
