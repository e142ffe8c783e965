package gas

import (
	"fmt"

	"github.com/filecoin-project/go-state-types/exitcode"

	"github.com/foxxcn/RefFVM/pkg/vm/runtime"
)

// GasTracker maintains the state of gas usage throughout the execution of a message.
type GasTracker struct { //nolint
	GasAvailable int64
	GasUsed      int64

	// Charges records every charge made, in order, when tracing is on.
	Charges []GasCharge
	tracing bool
}

// NewGasTracker initializes a new empty gas tracker
func NewGasTracker(limit int64) *GasTracker {
	return &GasTracker{
		GasUsed:      0,
		GasAvailable: limit,
	}
}

// EnableTracing makes the tracker record every charge.
func (t *GasTracker) EnableTracing() {
	t.tracing = true
}

// Charge will add the gas charge to the current method gas context.
//
// WARNING: this method will panic if there is no sufficient gas left.
func (t *GasTracker) Charge(gas GasCharge, msg string, args ...interface{}) {
	if ok := t.TryCharge(gas); !ok {
		fmsg := fmt.Sprintf(msg, args...)
		runtime.Abortf(exitcode.SysErrOutOfGas, "gas limit %d exceeded with charge of %d: %s", t.GasAvailable, gas.Total(), fmsg)
	}
}

// TryCharge charges `amount` or `RemainingGas()`, whichever is smaller.
//
// Returns `True` if the there was enough gas to pay for `amount`.
func (t *GasTracker) TryCharge(gasCharge GasCharge) bool {
	toUse := gasCharge.Total()
	if t.tracing {
		t.Charges = append(t.Charges, gasCharge)
	}

	// overflow safe
	if t.GasUsed > t.GasAvailable-toUse {
		t.GasUsed = t.GasAvailable
		return false
	}
	t.GasUsed += toUse
	return true
}

// RemainingGas returns the gas not yet used.
func (t *GasTracker) RemainingGas() int64 {
	return t.GasAvailable - t.GasUsed
}
