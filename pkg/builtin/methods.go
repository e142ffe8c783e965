package builtin

import (
	"github.com/filecoin-project/go-state-types/abi"
)

const (
	// MethodSend transfers value only. No actor code runs on the receiver.
	MethodSend = abi.MethodNum(0)
	// MethodConstructor is invoked once, by the system, when an actor is created.
	MethodConstructor = abi.MethodNum(1)
)

var MethodsAccount = struct {
	Constructor   abi.MethodNum
	PubkeyAddress abi.MethodNum
}{MethodConstructor, 2}

var MethodsMiner = struct {
	Constructor         abi.MethodNum
	ControlAddresses    abi.MethodNum
	ChangeWorkerAddress abi.MethodNum
}{MethodConstructor, 2, 3}

var MethodsMarket = struct {
	Constructor     abi.MethodNum
	AddBalance      abi.MethodNum
	WithdrawBalance abi.MethodNum
}{MethodConstructor, 2, 3}
