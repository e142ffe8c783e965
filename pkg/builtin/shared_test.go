package builtin_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxxcn/RefFVM/pkg/builtin"
	"github.com/foxxcn/RefFVM/pkg/testhelpers"
	tf "github.com/foxxcn/RefFVM/pkg/testhelpers/testflags"
	"github.com/foxxcn/RefFVM/pkg/vm/runtime"
)

type sentMessage struct {
	to     address.Address
	method abi.MethodNum
	params cbor.Marshaler
	value  abi.TokenAmount
}

// fakeRuntime answers lookups from a map and runs sends through onSend.
type fakeRuntime struct {
	mapping   map[address.Address]address.Address
	lookupErr error
	onSend    func(rt *fakeRuntime, msg sentMessage) (runtime.SendReturn, error)

	lookups  int
	contexts int
	sent     []sentMessage
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{mapping: make(map[address.Address]address.Address)}
}

func (rt *fakeRuntime) ResolveAddress(addr address.Address) (address.Address, bool, error) {
	rt.lookups++
	if rt.lookupErr != nil {
		return address.Undef, false, rt.lookupErr
	}
	if addr.Protocol() == address.ID {
		return addr, true, nil
	}
	idAddr, ok := rt.mapping[addr]
	return idAddr, ok, nil
}

func (rt *fakeRuntime) Context() context.Context {
	rt.contexts++
	return context.Background()
}

func (rt *fakeRuntime) Send(to address.Address, method abi.MethodNum, params cbor.Marshaler, value abi.TokenAmount) (runtime.SendReturn, error) {
	msg := sentMessage{to: to, method: method, params: params, value: value}
	rt.sent = append(rt.sent, msg)
	if rt.onSend == nil {
		return runtime.SendReturn{}, nil
	}
	return rt.onSend(rt, msg)
}

// assignOnSend maps every send target to `id`, as the init actor would.
func assignOnSend(t *testing.T, id int) func(*fakeRuntime, sentMessage) (runtime.SendReturn, error) {
	return func(rt *fakeRuntime, msg sentMessage) (runtime.SendReturn, error) {
		rt.mapping[msg.to] = testhelpers.RequireIDAddress(t, id)
		return runtime.SendReturn{}, nil
	}
}

func TestResolveToIDAddr(t *testing.T) {
	tf.UnitTest(t)

	addrGetter := testhelpers.NewForTestGetter()

	t.Run("mapped address is returned without sending", func(t *testing.T) {
		rt := newFakeRuntime()
		addr := addrGetter()
		rt.mapping[addr] = testhelpers.RequireIDAddress(t, 101)

		idAddr, err := builtin.ResolveToIDAddr(rt, addr)
		require.NoError(t, err)
		assert.Equal(t, testhelpers.RequireIDAddress(t, 101), idAddr)
		assert.Empty(t, rt.sent)
		assert.Equal(t, 1, rt.lookups)
		assert.Equal(t, 1, rt.contexts)
	})

	t.Run("ID address resolves to itself", func(t *testing.T) {
		rt := newFakeRuntime()
		idAddr := testhelpers.RequireIDAddress(t, 42)

		resolved, err := builtin.ResolveToIDAddr(rt, idAddr)
		require.NoError(t, err)
		assert.Equal(t, idAddr, resolved)
		assert.Empty(t, rt.sent)
	})

	t.Run("unmapped address is assigned by a single zero value send", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.onSend = assignOnSend(t, 7)
		addr := addrGetter()

		idAddr, err := builtin.ResolveToIDAddr(rt, addr)
		require.NoError(t, err)
		assert.Equal(t, testhelpers.RequireIDAddress(t, 7), idAddr)

		require.Len(t, rt.sent, 1)
		assert.Equal(t, addr, rt.sent[0].to)
		assert.Equal(t, builtin.MethodSend, rt.sent[0].method)
		assert.Nil(t, rt.sent[0].params)
		assert.True(t, rt.sent[0].value.IsZero())
		assert.Equal(t, 2, rt.lookups)
		assert.Equal(t, 1, rt.contexts)
	})

	t.Run("resolving twice sends once", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.onSend = assignOnSend(t, 108)
		addr := addrGetter()

		first, err := builtin.ResolveToIDAddr(rt, addr)
		require.NoError(t, err)
		second, err := builtin.ResolveToIDAddr(rt, addr)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Len(t, rt.sent, 1)
	})

	t.Run("send failure is a call error", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.onSend = func(*fakeRuntime, sentMessage) (runtime.SendReturn, error) {
			return runtime.SendReturn{}, runtime.NewActorError(exitcode.SysErrInvalidReceiver, "refused")
		}
		addr := testhelpers.NewActorAddrGetter()()

		_, err := builtin.ResolveToIDAddr(rt, addr)
		require.Error(t, err)

		var berr *builtin.Error
		require.True(t, errors.As(err, &berr))
		assert.Equal(t, builtin.ErrKindCall, berr.Kind)
		assert.Equal(t, addr, berr.Address)
		assert.Equal(t, exitcode.SysErrInvalidReceiver, berr.ExitCode())
		assert.Contains(t, err.Error(), addr.String())

		var aerr *runtime.ActorError
		require.True(t, errors.As(err, &aerr))
		assert.Equal(t, exitcode.SysErrInvalidReceiver, aerr.ExitCode())

		assert.Len(t, rt.sent, 1)
		assert.Equal(t, 1, rt.lookups)
		assert.Empty(t, rt.mapping)
	})

	t.Run("missing mapping after a successful send is inconsistent", func(t *testing.T) {
		rt := newFakeRuntime()
		addr := addrGetter()

		_, err := builtin.ResolveToIDAddr(rt, addr)
		require.Error(t, err)
		assert.True(t, errors.Is(err, builtin.ErrInconsistentMapping))

		var berr *builtin.Error
		require.True(t, errors.As(err, &berr))
		assert.Equal(t, builtin.ErrKindInconsistentMapping, berr.Kind)
		assert.Equal(t, addr, berr.Address)
		assert.Equal(t, exitcode.ErrIllegalState, berr.ExitCode())
		assert.Contains(t, err.Error(), addr.String())

		// no retries
		assert.Len(t, rt.sent, 1)
		assert.Equal(t, 2, rt.lookups)
	})

	t.Run("lookup failure is reported without sending", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.lookupErr = errors.New("blockstore gone")
		addr := addrGetter()

		_, err := builtin.ResolveToIDAddr(rt, addr)
		require.Error(t, err)

		var berr *builtin.Error
		require.True(t, errors.As(err, &berr))
		assert.Equal(t, builtin.ErrKindLookup, berr.Kind)
		assert.Empty(t, rt.sent)
	})
}

func TestRequestMinerControlAddrs(t *testing.T) {
	tf.UnitTest(t)

	minerAddr := testhelpers.RequireIDAddress(t, 1000)
	owner := testhelpers.RequireIDAddress(t, 101)
	worker := testhelpers.RequireIDAddress(t, 102)
	controls := []address.Address{testhelpers.RequireIDAddress(t, 103), testhelpers.RequireIDAddress(t, 104)}

	encode := func(t *testing.T, ret *builtin.MinerAddrs) []byte {
		buf := new(bytes.Buffer)
		require.NoError(t, ret.MarshalCBOR(buf))
		return buf.Bytes()
	}

	t.Run("decodes the miner's answer", func(t *testing.T) {
		payload := encode(t, &builtin.MinerAddrs{Owner: owner, Worker: worker, ControlAddrs: controls})
		rt := newFakeRuntime()
		rt.onSend = func(*fakeRuntime, sentMessage) (runtime.SendReturn, error) {
			return runtime.SendReturn{Return: payload}, nil
		}

		gotOwner, gotWorker, gotControls, err := builtin.RequestMinerControlAddrs(rt, minerAddr)
		require.NoError(t, err)
		assert.Equal(t, owner, gotOwner)
		assert.Equal(t, worker, gotWorker)
		assert.Equal(t, controls, gotControls)

		require.Len(t, rt.sent, 1)
		assert.Equal(t, minerAddr, rt.sent[0].to)
		assert.Equal(t, builtin.MethodsMiner.ControlAddresses, rt.sent[0].method)
		assert.Nil(t, rt.sent[0].params)
		assert.True(t, rt.sent[0].value.IsZero())
	})

	t.Run("no control addresses", func(t *testing.T) {
		payload := encode(t, &builtin.MinerAddrs{Owner: owner, Worker: worker})
		rt := newFakeRuntime()
		rt.onSend = func(*fakeRuntime, sentMessage) (runtime.SendReturn, error) {
			return runtime.SendReturn{Return: payload}, nil
		}

		_, _, gotControls, err := builtin.RequestMinerControlAddrs(rt, minerAddr)
		require.NoError(t, err)
		assert.Empty(t, gotControls)
	})

	t.Run("call failure", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.onSend = func(*fakeRuntime, sentMessage) (runtime.SendReturn, error) {
			return runtime.SendReturn{}, runtime.NewActorError(exitcode.SysErrInvalidMethod, "no such method")
		}

		_, _, _, err := builtin.RequestMinerControlAddrs(rt, minerAddr)
		var berr *builtin.Error
		require.True(t, errors.As(err, &berr))
		assert.Equal(t, builtin.ErrKindCall, berr.Kind)
		assert.Equal(t, minerAddr, berr.Address)
		assert.Equal(t, exitcode.SysErrInvalidMethod, berr.ExitCode())
	})

	t.Run("undecodable payloads are decode errors", func(t *testing.T) {
		for name, payload := range map[string][]byte{
			"empty":          nil,
			"not an array":   {0x01},
			"wrong arity":    {0x82, 0x40, 0x40},
			"truncated addr": encode(t, &builtin.MinerAddrs{Owner: owner, Worker: worker})[:4],
			"trailing bytes": append(encode(t, &builtin.MinerAddrs{Owner: owner, Worker: worker}), 0xff, 0xff, 0xff),
		} {
			payload := payload
			t.Run(name, func(t *testing.T) {
				rt := newFakeRuntime()
				rt.onSend = func(*fakeRuntime, sentMessage) (runtime.SendReturn, error) {
					return runtime.SendReturn{Return: payload}, nil
				}

				var err error
				require.NotPanics(t, func() {
					_, _, _, err = builtin.RequestMinerControlAddrs(rt, minerAddr)
				})
				var berr *builtin.Error
				require.True(t, errors.As(err, &berr))
				assert.Equal(t, builtin.ErrKindDecode, berr.Kind)
				assert.Equal(t, exitcode.ErrSerialization, berr.ExitCode())
				assert.Len(t, rt.sent, 1)
			})
		}
	})
}

func TestAsActorErrorKeepsExitCode(t *testing.T) {
	tf.UnitTest(t)

	addr := testhelpers.RequireIDAddress(t, 5)
	err := &builtin.Error{
		Kind:    builtin.ErrKindCall,
		Op:      "failed to send zero balance to address",
		Address: addr,
		Err:     runtime.NewActorError(exitcode.SysErrInsufficientFunds, "not enough funds"),
	}

	aerr := builtin.AsActorError(err, "resolving owner")
	assert.Equal(t, exitcode.SysErrInsufficientFunds, aerr.ExitCode())
	assert.Equal(t, "resolving owner: failed to send zero balance to address t05: not enough funds (RetCode=6)", aerr.Error())
}
