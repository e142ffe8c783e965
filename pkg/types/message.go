package types

import (
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/exitcode"
)

// Message is a top level message applied to the state by the VM.
type Message struct {
	From   address.Address
	To     address.Address
	Nonce  uint64
	Value  abi.TokenAmount
	Method abi.MethodNum
	Params []byte

	GasLimit int64
}

// NewMessage builds a message with the given params already encoded.
func NewMessage(from, to address.Address, nonce uint64, value abi.TokenAmount, method abi.MethodNum, params []byte, gasLimit int64) *Message {
	return &Message{
		From:     from,
		To:       to,
		Nonce:    nonce,
		Value:    value,
		Method:   method,
		Params:   params,
		GasLimit: gasLimit,
	}
}

func (msg *Message) String() string {
	return fmt.Sprintf("Message{From: %s, To: %s, Nonce: %d, Value: %s, Method: %d}", msg.From, msg.To, msg.Nonce, msg.Value, msg.Method)
}

// MessageReceipt is what is returned by executing a message on the vm.
type MessageReceipt struct {
	ExitCode exitcode.ExitCode
	Return   []byte
	GasUsed  int64
}

func (r *MessageReceipt) String() string {
	return fmt.Sprintf("{ExitCode: %d, Return: %x, GasUsed: %d}", r.ExitCode, r.Return, r.GasUsed)
}
