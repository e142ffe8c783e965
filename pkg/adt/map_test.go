package adt_test

import (
	"context"
	"sort"
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	ipldcbor "github.com/ipfs/go-ipld-cbor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cbg "github.com/whyrusleeping/cbor-gen"

	"github.com/foxxcn/RefFVM/pkg/adt"
	"github.com/foxxcn/RefFVM/pkg/builtin"
	"github.com/foxxcn/RefFVM/pkg/testhelpers"
	tf "github.com/foxxcn/RefFVM/pkg/testhelpers/testflags"
)

func TestMapPutGetDelete(t *testing.T) {
	tf.UnitTest(t)

	store := adt.WrapStore(context.Background(), ipldcbor.NewMemCborStore())
	m, err := adt.MakeEmptyMap(store, builtin.DefaultHamtBitwidth)
	require.NoError(t, err)

	addrGetter := testhelpers.NewForTestGetter()
	a1, a2 := addrGetter(), addrGetter()

	v1 := cbg.CborInt(101)
	require.NoError(t, m.Put(abi.AddrKey(a1), &v1))

	var out cbg.CborInt
	found, err := m.Get(abi.AddrKey(a1), &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, v1, out)

	found, err = m.Get(abi.AddrKey(a2), &out)
	require.NoError(t, err)
	assert.False(t, found)

	has, err := m.Has(abi.AddrKey(a1))
	require.NoError(t, err)
	assert.True(t, has)

	assert.Error(t, m.Delete(abi.AddrKey(a2)))
	require.NoError(t, m.Delete(abi.AddrKey(a1)))

	has, err = m.Has(abi.AddrKey(a1))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestMapPersistsAcrossLoad(t *testing.T) {
	tf.UnitTest(t)

	store := adt.WrapStore(context.Background(), ipldcbor.NewMemCborStore())
	m, err := adt.MakeEmptyMap(store, builtin.DefaultHamtBitwidth)
	require.NoError(t, err)

	for i := 0; i < 40; i++ {
		v := cbg.CborInt(i)
		require.NoError(t, m.Put(abi.UIntKey(uint64(i)), &v))
	}
	root, err := m.Root()
	require.NoError(t, err)

	loaded, err := adt.AsMap(store, root, builtin.DefaultHamtBitwidth)
	require.NoError(t, err)

	var seen []int
	var v cbg.CborInt
	require.NoError(t, loaded.ForEach(&v, func(string) error {
		seen = append(seen, int(v))
		return nil
	}))
	sort.Ints(seen)
	require.Len(t, seen, 40)
	assert.Equal(t, 0, seen[0])
	assert.Equal(t, 39, seen[39])

	root2, err := loaded.Root()
	require.NoError(t, err)
	assert.Equal(t, root, root2)
}

func TestStoreEmptyMapIsStable(t *testing.T) {
	tf.UnitTest(t)

	store := adt.WrapStore(context.Background(), ipldcbor.NewMemCborStore())
	c1, err := adt.StoreEmptyMap(store, builtin.DefaultHamtBitwidth)
	require.NoError(t, err)
	c2, err := adt.StoreEmptyMap(store, builtin.DefaultHamtBitwidth)
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
}
