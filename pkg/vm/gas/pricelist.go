package gas

import (
	"fmt"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
)

// GasCharge is a single charge with its compute and storage parts.
type GasCharge struct {
	Name  string
	Extra interface{}

	ComputeGas int64
	StorageGas int64
}

// Total is the amount of gas the charge consumes.
func (g GasCharge) Total() int64 {
	return g.ComputeGas + g.StorageGas
}

// WithExtra attaches tracing information to the charge.
func (g GasCharge) WithExtra(extra interface{}) GasCharge {
	out := g
	out.Extra = extra
	return out
}

func (g GasCharge) String() string {
	return fmt.Sprintf("%s: %d (compute %d, storage %d)", g.Name, g.Total(), g.ComputeGas, g.StorageGas)
}

func newGasCharge(name string, computeGas int64, storageGas int64) GasCharge {
	return GasCharge{
		Name:       name,
		ComputeGas: computeGas,
		StorageGas: storageGas,
	}
}

// Pricelist provides prices for operations in the VM.
type Pricelist interface {
	// OnChainMessage returns the gas used for storing a message of a given size in the chain.
	OnChainMessage(msgSize int) GasCharge
	// OnChainReturnValue returns the gas used for storing the response of a message in the chain.
	OnChainReturnValue(dataSize int) GasCharge

	// OnMethodInvocation returns the gas used when invoking a method.
	OnMethodInvocation(value abi.TokenAmount, methodNum abi.MethodNum) GasCharge

	// OnIpldGet returns the gas used for storage when a Get is performed.
	OnIpldGet() GasCharge
	// OnIpldPut returns the gas used for storage when a Put is performed.
	OnIpldPut(dataSize int) GasCharge

	// OnCreateActor returns the gas used for creating an actor.
	OnCreateActor() GasCharge
}

// pricelistV0 holds the flat prices of the reference runtime.
type pricelistV0 struct {
	onChainMessageComputeBase    int64
	onChainMessageStorageBase    int64
	onChainMessageStoragePerByte int64
	onChainReturnValuePerByte    int64

	sendBase             int64
	sendTransferFunds    int64
	sendInvokeMethod     int64
	ipldGetBase          int64
	ipldPutBase          int64
	ipldPutPerByte       int64
	createActorCompute   int64
	createActorStorage   int64
	storageGasMultiplier int64
}

var _ Pricelist = (*pricelistV0)(nil)

// DefaultPricelist is the pricelist every VM uses unless told otherwise.
var DefaultPricelist Pricelist = &pricelistV0{
	onChainMessageComputeBase:    38863,
	onChainMessageStorageBase:    36,
	onChainMessageStoragePerByte: 1,
	onChainReturnValuePerByte:    1,

	sendBase:             29233,
	sendTransferFunds:    27500,
	sendInvokeMethod:     -5377,
	ipldGetBase:          75242,
	ipldPutBase:          84070,
	ipldPutPerByte:       1,
	createActorCompute:   1108454,
	createActorStorage:   36 + 40,
	storageGasMultiplier: 1300,
}

func (pl *pricelistV0) OnChainMessage(msgSize int) GasCharge {
	return newGasCharge("OnChainMessage", pl.onChainMessageComputeBase,
		(pl.onChainMessageStorageBase+pl.onChainMessageStoragePerByte*int64(msgSize))*pl.storageGasMultiplier)
}

func (pl *pricelistV0) OnChainReturnValue(dataSize int) GasCharge {
	return newGasCharge("OnChainReturnValue", 0, int64(dataSize)*pl.onChainReturnValuePerByte*pl.storageGasMultiplier)
}

// OnMethodInvocation charges the base price of a send, plus the transfer
// price when value moves, plus the invocation price unless only value moves.
func (pl *pricelistV0) OnMethodInvocation(value abi.TokenAmount, methodNum abi.MethodNum) GasCharge {
	ret := pl.sendBase
	extra := ""

	if big.Cmp(value, abi.NewTokenAmount(0)) != 0 {
		ret += pl.sendTransferFunds
		if methodNum == 0 {
			extra += "t"
		}
	}

	if methodNum != 0 {
		extra += "i"
		ret += pl.sendInvokeMethod
	}
	return newGasCharge("OnMethodInvocation", ret, 0).WithExtra(extra)
}

func (pl *pricelistV0) OnIpldGet() GasCharge {
	return newGasCharge("OnIpldGet", pl.ipldGetBase, 0)
}

func (pl *pricelistV0) OnIpldPut(dataSize int) GasCharge {
	return newGasCharge("OnIpldPut", pl.ipldPutBase, int64(dataSize)*pl.ipldPutPerByte*pl.storageGasMultiplier).
		WithExtra(dataSize)
}

func (pl *pricelistV0) OnCreateActor() GasCharge {
	return newGasCharge("OnCreateActor", pl.createActorCompute, pl.createActorStorage*pl.storageGasMultiplier)
}
