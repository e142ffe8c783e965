package vm_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-datastore"
	dss "github.com/ipfs/go-datastore/sync"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxxcn/RefFVM/pkg/builtin"
	"github.com/foxxcn/RefFVM/pkg/builtin/initactor"
	"github.com/foxxcn/RefFVM/pkg/builtin/market"
	"github.com/foxxcn/RefFVM/pkg/builtin/miner"
	"github.com/foxxcn/RefFVM/pkg/config"
	"github.com/foxxcn/RefFVM/pkg/gen/genesis"
	"github.com/foxxcn/RefFVM/pkg/state/tree"
	"github.com/foxxcn/RefFVM/pkg/testhelpers"
	tf "github.com/foxxcn/RefFVM/pkg/testhelpers/testflags"
	"github.com/foxxcn/RefFVM/pkg/types"
	"github.com/foxxcn/RefFVM/pkg/vm"
	"github.com/foxxcn/RefFVM/pkg/vm/vmcontext"
)

const testGasLimit = int64(1_000_000_000)

type harness struct {
	t   *testing.T
	ctx context.Context
	vm  *vmcontext.VM
	gen *genesis.Genesis
}

func newHarness(t *testing.T, cfg *config.GenesisConfig) *harness {
	ctx := context.Background()
	bs := blockstore.NewBlockstore(dss.MutexWrap(datastore.NewMapDatastore()))

	gen, err := genesis.MakeGenesis(ctx, bs, cfg)
	require.NoError(t, err)

	v, err := vm.NewVM(ctx, bs, gen.Root, vm.VmOption{Tracing: true})
	require.NoError(t, err)

	return &harness{t: t, ctx: ctx, vm: v, gen: gen}
}

func genesisConfig(firstID uint64, funded ...address.Address) *config.GenesisConfig {
	cfg := &config.GenesisConfig{NetworkName: "testnet", FirstActorID: firstID}
	for _, a := range funded {
		cfg.Accounts = append(cfg.Accounts, config.AccountConfig{Address: a.String(), Balance: "1000000"})
	}
	return cfg
}

func encode(t *testing.T, params cbor.Marshaler) []byte {
	if params == nil {
		return nil
	}
	buf := new(bytes.Buffer)
	require.NoError(t, params.MarshalCBOR(buf))
	return buf.Bytes()
}

func (h *harness) apply(from, to address.Address, method abi.MethodNum, params cbor.Marshaler, value int64) *vm.Ret {
	return h.applyWithGas(from, to, method, params, value, testGasLimit)
}

func (h *harness) applyWithGas(from, to address.Address, method abi.MethodNum, params cbor.Marshaler, value int64, gasLimit int64) *vm.Ret {
	msg := types.NewMessage(from, to, h.nonceOf(from), abi.NewTokenAmount(value), method, encode(h.t, params), gasLimit)
	ret, err := h.vm.ApplyMessage(h.ctx, msg)
	require.NoError(h.t, err)
	return ret
}

func (h *harness) nonceOf(addr address.Address) uint64 {
	act, found, err := h.vm.StateTree().GetActor(h.ctx, addr)
	require.NoError(h.t, err)
	if !found {
		return 0
	}
	return act.Nonce
}

func (h *harness) lookup(addr address.Address) (address.Address, bool) {
	id, err := h.vm.StateTree().LookupID(addr)
	if err != nil {
		require.ErrorIs(h.t, err, types.ErrActorNotFound)
		return address.Undef, false
	}
	return id, true
}

func (h *harness) balance(addr address.Address) abi.TokenAmount {
	act, found, err := h.vm.StateTree().GetActor(h.ctx, addr)
	require.NoError(h.t, err)
	require.True(h.t, found, "no actor at %s", addr)
	return act.Balance
}

func (h *harness) nextID() abi.ActorID {
	act, found, err := h.vm.StateTree().GetActor(h.ctx, builtin.InitActorAddr)
	require.NoError(h.t, err)
	require.True(h.t, found)
	var st initactor.State
	require.NoError(h.t, h.vm.ContextStore().Get(h.ctx, act.Head, &st))
	return st.NextID
}

func (h *harness) escrow(addr address.Address) abi.TokenAmount {
	act, found, err := h.vm.StateTree().GetActor(h.ctx, builtin.StorageMarketActorAddr)
	require.NoError(h.t, err)
	require.True(h.t, found)
	var st market.State
	store := h.vm.ContextStore()
	require.NoError(h.t, store.Get(h.ctx, act.Head, &st))
	bal, err := st.BalanceOf(store, addr)
	require.NoError(h.t, err)
	return bal
}

func TestSendCreatesAccount(t *testing.T) {
	tf.IntegrationTest(t)

	addrs := testhelpers.NewForTestGetter()
	sender, fresh := addrs(), addrs()
	h := newHarness(t, genesisConfig(0, sender))

	senderID, ok := h.lookup(sender)
	require.True(t, ok)
	assert.Equal(t, testhelpers.RequireIDAddress(t, 100), senderID)

	_, ok = h.lookup(fresh)
	require.False(t, ok)

	ret := h.apply(sender, fresh, builtin.MethodSend, nil, 10)
	require.Equal(t, exitcode.Ok, ret.Receipt.ExitCode, "%v", ret.ActorErr)
	assert.Positive(t, ret.Receipt.GasUsed)
	assert.NotEmpty(t, ret.GasTracker.Charges)

	freshID, ok := h.lookup(fresh)
	require.True(t, ok)
	assert.Equal(t, testhelpers.RequireIDAddress(t, 101), freshID)
	assert.Equal(t, abi.NewTokenAmount(10), h.balance(freshID))
	assert.Equal(t, abi.NewTokenAmount(1000000-10), h.balance(senderID))

	key, err := vmcontext.ResolveToKeyAddr(h.ctx, h.vm.StateTree(), freshID, h.vm.ContextStore())
	require.NoError(t, err)
	assert.Equal(t, fresh, key)

	// the new account can send in turn
	ret = h.apply(fresh, sender, builtin.MethodSend, nil, 3)
	require.Equal(t, exitcode.Ok, ret.Receipt.ExitCode, "%v", ret.ActorErr)
	assert.Equal(t, abi.NewTokenAmount(7), h.balance(freshID))
}

func TestResolveAssignsNextID(t *testing.T) {
	tf.IntegrationTest(t)

	addrs := testhelpers.NewForTestGetter()
	sender, client := addrs(), addrs()
	// the sender takes ID 6, leaving 7 as the next ID
	h := newHarness(t, genesisConfig(6, sender))
	require.Equal(t, abi.ActorID(7), h.nextID())

	ret := h.apply(sender, builtin.StorageMarketActorAddr, builtin.MethodsMarket.AddBalance, &client, 50)
	require.Equal(t, exitcode.Ok, ret.Receipt.ExitCode, "%v", ret.ActorErr)

	clientID, ok := h.lookup(client)
	require.True(t, ok)
	assert.Equal(t, testhelpers.RequireIDAddress(t, 7), clientID)
	assert.Equal(t, abi.ActorID(8), h.nextID())
	assert.Equal(t, abi.NewTokenAmount(50), h.escrow(clientID))
	assert.True(t, big.Zero().Equals(h.balance(clientID)))
	assert.Equal(t, []tree.Assignment{{Addr: client, ID: clientID}}, h.vm.StateTree().Assignments())

	// resolving again takes the fast path: no new ID
	ret = h.apply(sender, builtin.StorageMarketActorAddr, builtin.MethodsMarket.AddBalance, &client, 5)
	require.Equal(t, exitcode.Ok, ret.Receipt.ExitCode, "%v", ret.ActorErr)
	assert.Equal(t, abi.ActorID(8), h.nextID())
	assert.Equal(t, abi.NewTokenAmount(55), h.escrow(clientID))
}

func TestResolveActorAddressFails(t *testing.T) {
	tf.IntegrationTest(t)

	addrs := testhelpers.NewForTestGetter()
	sender := addrs()
	unknown := testhelpers.NewActorAddrGetter()()
	h := newHarness(t, genesisConfig(0, sender))
	senderID, _ := h.lookup(sender)
	before := h.nextID()

	ret := h.apply(sender, builtin.StorageMarketActorAddr, builtin.MethodsMarket.AddBalance, &unknown, 50)
	assert.Equal(t, exitcode.SysErrInvalidReceiver, ret.Receipt.ExitCode)
	require.Error(t, ret.ActorErr)
	assert.Contains(t, ret.ActorErr.Error(), "failed to send zero balance to address")

	// nothing but the nonce survives
	_, ok := h.lookup(unknown)
	assert.False(t, ok)
	assert.Equal(t, before, h.nextID())
	assert.Equal(t, abi.NewTokenAmount(1000000), h.balance(senderID))
	assert.True(t, big.Zero().Equals(h.balance(builtin.StorageMarketActorAddr)))
	assert.Empty(t, h.vm.StateTree().Assignments())

	act, _, err := h.vm.StateTree().GetActor(h.ctx, senderID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), act.Nonce)
}

func TestInsufficientFundsRollsBackAccountCreation(t *testing.T) {
	tf.IntegrationTest(t)

	addrs := testhelpers.NewForTestGetter()
	sender, fresh := addrs(), addrs()
	h := newHarness(t, genesisConfig(0, sender))
	before := h.nextID()

	ret := h.apply(sender, fresh, builtin.MethodSend, nil, 2000000)
	assert.Equal(t, exitcode.SysErrInsufficientFunds, ret.Receipt.ExitCode)

	_, ok := h.lookup(fresh)
	assert.False(t, ok)
	assert.Equal(t, before, h.nextID())
}

func TestOutOfGas(t *testing.T) {
	tf.IntegrationTest(t)

	addrs := testhelpers.NewForTestGetter()
	sender, fresh := addrs(), addrs()
	h := newHarness(t, genesisConfig(0, sender))
	senderID, _ := h.lookup(sender)

	t.Run("not enough for the message itself", func(t *testing.T) {
		ret := h.applyWithGas(sender, fresh, builtin.MethodSend, nil, 1, 1)
		assert.Equal(t, exitcode.SysErrOutOfGas, ret.Receipt.ExitCode)
		act, _, err := h.vm.StateTree().GetActor(h.ctx, senderID)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), act.Nonce)
	})

	t.Run("runs out while creating the account", func(t *testing.T) {
		ret := h.applyWithGas(sender, fresh, builtin.MethodSend, nil, 1, 300_000)
		assert.Equal(t, exitcode.SysErrOutOfGas, ret.Receipt.ExitCode)
		assert.Equal(t, int64(300_000), ret.Receipt.GasUsed)

		_, ok := h.lookup(fresh)
		assert.False(t, ok)
		assert.Equal(t, abi.NewTokenAmount(1000000), h.balance(senderID))
	})
}

func TestApplyMessageChecksSender(t *testing.T) {
	tf.IntegrationTest(t)

	addrs := testhelpers.NewForTestGetter()
	sender, stranger := addrs(), addrs()
	h := newHarness(t, genesisConfig(0, sender))

	ret := h.apply(stranger, sender, builtin.MethodSend, nil, 1)
	assert.Equal(t, exitcode.SysErrSenderInvalid, ret.Receipt.ExitCode)

	msg := types.NewMessage(sender, stranger, 5, abi.NewTokenAmount(1), builtin.MethodSend, nil, testGasLimit)
	r, err := h.vm.ApplyMessage(h.ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, exitcode.SysErrSenderStateInvalid, r.Receipt.ExitCode)
}

func TestUnknownMethod(t *testing.T) {
	tf.IntegrationTest(t)

	addrs := testhelpers.NewForTestGetter()
	sender := addrs()
	h := newHarness(t, genesisConfig(0, sender))

	ret := h.apply(sender, builtin.StorageMarketActorAddr, 99, nil, 0)
	assert.Equal(t, exitcode.SysErrInvalidMethod, ret.Receipt.ExitCode)
}

func TestMinerControlAddresses(t *testing.T) {
	tf.IntegrationTest(t)

	addrs := testhelpers.NewForTestGetter()
	owner, worker, control, stranger := addrs(), addrs(), addrs(), addrs()

	cfg := genesisConfig(0, owner, stranger)
	cfg.Miners = []config.MinerConfig{{
		Owner:    owner.String(),
		Worker:   worker.String(),
		Controls: []string{control.String()},
	}}
	h := newHarness(t, cfg)
	require.Len(t, h.gen.Miners, 1)
	minerID := h.gen.Miners[0]

	ownerID, ok := h.lookup(owner)
	require.True(t, ok)
	// the miner constructor created accounts for the worker and the control address
	workerID, ok := h.lookup(worker)
	require.True(t, ok)
	controlID, ok := h.lookup(control)
	require.True(t, ok)

	robust, err := genesis.MinerActorAddress("testnet", 0)
	require.NoError(t, err)
	resolved, ok := h.lookup(robust)
	require.True(t, ok)
	assert.Equal(t, minerID, resolved)

	t.Run("control addresses", func(t *testing.T) {
		ret := h.apply(stranger, minerID, builtin.MethodsMiner.ControlAddresses, nil, 0)
		require.Equal(t, exitcode.Ok, ret.Receipt.ExitCode, "%v", ret.ActorErr)

		var out builtin.MinerAddrs
		require.NoError(t, out.UnmarshalCBOR(bytes.NewReader(ret.Receipt.Return)))
		assert.Equal(t, ownerID, out.Owner)
		assert.Equal(t, workerID, out.Worker)
		assert.Equal(t, []address.Address{controlID}, out.ControlAddrs)
	})

	t.Run("stranger may not fund the miner", func(t *testing.T) {
		ret := h.apply(stranger, builtin.StorageMarketActorAddr, builtin.MethodsMarket.AddBalance, &minerID, 10)
		assert.Equal(t, exitcode.SysErrForbidden, ret.Receipt.ExitCode)
		assert.True(t, big.Zero().Equals(h.escrow(minerID)))
	})

	t.Run("owner funds and withdraws", func(t *testing.T) {
		ret := h.apply(owner, builtin.StorageMarketActorAddr, builtin.MethodsMarket.AddBalance, &robust, 100)
		require.Equal(t, exitcode.Ok, ret.Receipt.ExitCode, "%v", ret.ActorErr)
		assert.Equal(t, abi.NewTokenAmount(100), h.escrow(minerID))
		assert.Equal(t, abi.NewTokenAmount(1000000-100), h.balance(ownerID))

		ret = h.apply(owner, builtin.StorageMarketActorAddr, builtin.MethodsMarket.WithdrawBalance, &market.WithdrawBalanceParams{
			ProviderOrClientAddress: minerID,
			Amount:                  abi.NewTokenAmount(40),
		}, 0)
		require.Equal(t, exitcode.Ok, ret.Receipt.ExitCode, "%v", ret.ActorErr)

		var taken abi.TokenAmount
		require.NoError(t, taken.UnmarshalCBOR(bytes.NewReader(ret.Receipt.Return)))
		assert.Equal(t, abi.NewTokenAmount(40), taken)
		assert.Equal(t, abi.NewTokenAmount(60), h.escrow(minerID))
		assert.Equal(t, abi.NewTokenAmount(1000000-60), h.balance(ownerID))
	})

	t.Run("change worker is owner only", func(t *testing.T) {
		newWorker := addrs()
		params := &miner.ChangeWorkerAddressParams{NewWorker: newWorker}

		ret := h.apply(stranger, minerID, builtin.MethodsMiner.ChangeWorkerAddress, params, 0)
		assert.Equal(t, exitcode.SysErrForbidden, ret.Receipt.ExitCode)
		_, ok := h.lookup(newWorker)
		assert.False(t, ok)

		ret = h.apply(owner, minerID, builtin.MethodsMiner.ChangeWorkerAddress, params, 0)
		require.Equal(t, exitcode.Ok, ret.Receipt.ExitCode, "%v", ret.ActorErr)
		newWorkerID, ok := h.lookup(newWorker)
		require.True(t, ok)

		ret = h.apply(stranger, minerID, builtin.MethodsMiner.ControlAddresses, nil, 0)
		require.Equal(t, exitcode.Ok, ret.Receipt.ExitCode, "%v", ret.ActorErr)
		var out builtin.MinerAddrs
		require.NoError(t, out.UnmarshalCBOR(bytes.NewReader(ret.Receipt.Return)))
		assert.Equal(t, newWorkerID, out.Worker)
		assert.Empty(t, out.ControlAddrs)
	})
}

func TestFlushAndReload(t *testing.T) {
	tf.IntegrationTest(t)

	addrs := testhelpers.NewForTestGetter()
	sender, fresh := addrs(), addrs()
	ctx := context.Background()
	bs := blockstore.NewBlockstore(dss.MutexWrap(datastore.NewMapDatastore()))
	gen, err := genesis.MakeGenesis(ctx, bs, genesisConfig(0, sender))
	require.NoError(t, err)

	v, err := vm.NewVM(ctx, bs, gen.Root, vm.VmOption{})
	require.NoError(t, err)
	msg := types.NewMessage(sender, fresh, 0, big.NewInt(5), builtin.MethodSend, nil, testGasLimit)
	ret, err := v.ApplyMessage(ctx, msg)
	require.NoError(t, err)
	require.Equal(t, exitcode.Ok, ret.Receipt.ExitCode)

	root, err := v.Flush(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, gen.Root, root)

	reloaded, err := vm.NewVM(ctx, bs, root, vm.VmOption{})
	require.NoError(t, err)
	id, err := reloaded.StateTree().LookupID(fresh)
	require.NoError(t, err)
	act, found, err := reloaded.StateTree().GetActor(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, abi.NewTokenAmount(5), act.Balance)
}
