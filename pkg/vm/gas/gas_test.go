package gas_test

import (
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tf "github.com/foxxcn/RefFVM/pkg/testhelpers/testflags"
	"github.com/foxxcn/RefFVM/pkg/vm/gas"
	"github.com/foxxcn/RefFVM/pkg/vm/runtime"
)

func TestTryCharge(t *testing.T) {
	tf.UnitTest(t)

	tracker := gas.NewGasTracker(100)
	tracker.EnableTracing()

	assert.True(t, tracker.TryCharge(gas.GasCharge{Name: "a", ComputeGas: 60}))
	assert.Equal(t, int64(40), tracker.RemainingGas())

	assert.False(t, tracker.TryCharge(gas.GasCharge{Name: "b", ComputeGas: 30, StorageGas: 20}))
	assert.Equal(t, int64(100), tracker.GasUsed)
	assert.Equal(t, int64(0), tracker.RemainingGas())
	assert.Len(t, tracker.Charges, 2)
}

func TestChargeAbortsWhenOutOfGas(t *testing.T) {
	tf.UnitTest(t)

	tracker := gas.NewGasTracker(10)
	tracker.Charge(gas.GasCharge{Name: "fits", ComputeGas: 10}, "first")

	defer func() {
		r := recover()
		require.NotNil(t, r)
		p, ok := r.(runtime.ExecutionPanic)
		require.True(t, ok)
		assert.Equal(t, exitcode.SysErrOutOfGas, p.Code())
	}()
	tracker.Charge(gas.GasCharge{Name: "too much", ComputeGas: 1}, "second %d", 2)
}

func TestOnMethodInvocation(t *testing.T) {
	tf.UnitTest(t)

	pl := gas.DefaultPricelist
	zeroSend := pl.OnMethodInvocation(abi.NewTokenAmount(0), 0)
	valueSend := pl.OnMethodInvocation(abi.NewTokenAmount(1), 0)
	call := pl.OnMethodInvocation(abi.NewTokenAmount(0), 2)

	assert.Less(t, zeroSend.Total(), valueSend.Total())
	assert.NotEqual(t, zeroSend.Total(), call.Total())
	assert.Equal(t, "i", call.Extra)
	assert.Equal(t, "t", valueSend.Extra)
	assert.Greater(t, pl.OnIpldPut(100).Total(), pl.OnIpldPut(1).Total())
	assert.Greater(t, pl.OnCreateActor().Total(), int64(0))
}
