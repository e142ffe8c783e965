package dispatch_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxxcn/RefFVM/pkg/testhelpers"
	tf "github.com/foxxcn/RefFVM/pkg/testhelpers/testflags"
	"github.com/foxxcn/RefFVM/pkg/vm/dispatch"
	"github.com/foxxcn/RefFVM/pkg/vm/runtime"
)

type echoActor struct {
	code cid.Cid
}

func (a echoActor) Exports() []interface{} {
	return []interface{}{
		1: a.Echo,
		2: a.Nothing,
		3: a.Fail,
		5: a.Plain,
	}
}

func (a echoActor) Code() cid.Cid {
	return a.code
}

func (a echoActor) Echo(rt runtime.Runtime, addr *address.Address) (*address.Address, error) {
	return addr, nil
}

func (a echoActor) Nothing(rt runtime.Runtime) (*abi.EmptyValue, error) {
	return nil, nil
}

func (a echoActor) Fail(rt runtime.Runtime) (*abi.EmptyValue, error) {
	return nil, runtime.NewActorError(exitcode.ErrForbidden, "no")
}

func (a echoActor) Plain(rt runtime.Runtime) (*abi.EmptyValue, error) {
	return nil, errors.New("plain error")
}

// nopRuntime stands in for the invocation context, which the test methods never touch.
type nopRuntime struct {
	runtime.Runtime
}

func newLoader(t *testing.T) (dispatch.CodeLoader, cid.Cid) {
	code, err := cid.V1Builder{Codec: cid.Raw, MhType: mh.IDENTITY}.Sum([]byte("test/echo"))
	require.NoError(t, err)
	return dispatch.NewBuilder().Add(echoActor{code: code}).Build(), code
}

func TestDispatch(t *testing.T) {
	tf.UnitTest(t)

	loader, code := newLoader(t)
	d, err := loader.GetActorImpl(code)
	require.NoError(t, err)
	rt := &nopRuntime{}

	t.Run("params are decoded and the return encoded", func(t *testing.T) {
		addr := testhelpers.RequireIDAddress(t, 1234)
		buf := new(bytes.Buffer)
		require.NoError(t, addr.MarshalCBOR(buf))

		ret, err := d.Dispatch(1, rt, buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, buf.Bytes(), ret)

		sig, err := d.Signature(1)
		require.NoError(t, err)
		decoded, err := sig.ReturnInterface(ret)
		require.NoError(t, err)
		assert.Equal(t, &addr, decoded)
	})

	t.Run("empty return", func(t *testing.T) {
		ret, err := d.Dispatch(2, rt, nil)
		require.NoError(t, err)
		assert.Empty(t, ret)
	})

	t.Run("undefined methods", func(t *testing.T) {
		for _, m := range []abi.MethodNum{0, 4, 6, 100} {
			_, err := d.Dispatch(m, rt, nil)
			assert.Equal(t, exitcode.SysErrInvalidMethod, runtime.RetCode(err), "method %d", m)
		}
	})

	t.Run("bad params", func(t *testing.T) {
		_, err := d.Dispatch(1, rt, []byte{0xff})
		assert.Equal(t, exitcode.ErrSerialization, runtime.RetCode(err))

		_, err = d.Dispatch(2, rt, []byte{0x80})
		assert.Equal(t, exitcode.ErrSerialization, runtime.RetCode(err))

		addr := testhelpers.RequireIDAddress(t, 1234)
		buf := new(bytes.Buffer)
		require.NoError(t, addr.MarshalCBOR(buf))
		require.NoError(t, buf.WriteByte(0x00))
		_, err = d.Dispatch(1, rt, buf.Bytes())
		assert.Equal(t, exitcode.ErrSerialization, runtime.RetCode(err))
	})

	t.Run("actor errors keep their code", func(t *testing.T) {
		_, err := d.Dispatch(3, rt, nil)
		var aerr *runtime.ActorError
		require.True(t, errors.As(err, &aerr))
		assert.Equal(t, exitcode.ErrForbidden, aerr.ExitCode())
	})

	t.Run("other errors are illegal state", func(t *testing.T) {
		_, err := d.Dispatch(5, rt, nil)
		assert.Equal(t, exitcode.ErrIllegalState, runtime.RetCode(err))
	})
}

func TestUnknownCode(t *testing.T) {
	tf.UnitTest(t)

	loader, _ := newLoader(t)
	other, err := cid.V1Builder{Codec: cid.Raw, MhType: mh.IDENTITY}.Sum([]byte("test/other"))
	require.NoError(t, err)

	_, err = loader.GetActorImpl(other)
	assert.Error(t, err)
}
