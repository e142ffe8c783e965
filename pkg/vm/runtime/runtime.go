// Package runtime defines the interface the VM exposes to actor code.
package runtime

import (
	"bytes"
	"context"
	"io"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"
	ipldcbor "github.com/ipfs/go-ipld-cbor"
	"golang.org/x/xerrors"
)

// Message contains information available to the actor about the executing message.
type Message interface {
	// Caller is the ID address of the immediate caller.
	Caller() address.Address
	// Receiver is the ID address of the actor executing the method.
	Receiver() address.Address
	// ValueReceived is the amount of tokens transferred with the call.
	ValueReceived() abi.TokenAmount
}

// Runtime is the VM interface exposed to actors while they execute a method.
//
// All operations are synchronous. A call to Send does not return until the
// callee, and every call it makes in turn, has committed or failed.
type Runtime interface {
	Message() Message
	CurrentEpoch() abi.ChainEpoch
	Context() context.Context

	// Every method must validate its immediate caller exactly once before
	// returning, or the invocation aborts.
	ValidateImmediateCallerAcceptAny()
	ValidateImmediateCallerIs(addrs ...address.Address)
	ValidateImmediateCallerType(codes ...cid.Cid)

	// CurrentBalance is the balance of the receiving actor.
	CurrentBalance() abi.TokenAmount

	// ResolveAddress looks up the ID address mapped to `addr`. It never
	// creates a mapping. ID addresses resolve to themselves.
	ResolveAddress(addr address.Address) (address.Address, bool, error)

	// GetActorCodeCID returns the code of the actor at `addr`, if any.
	GetActorCodeCID(addr address.Address) (cid.Cid, bool)

	// Send invokes `method` on the actor at `to` transferring `value` from the
	// receiver. The returned error is always an *ActorError. The effects of a
	// failed call are discarded in full.
	Send(to address.Address, method abi.MethodNum, params cbor.Marshaler, value abi.TokenAmount) (SendReturn, error)

	StateCreate(obj cbor.Marshaler) error
	StateReadonly(obj cbor.Unmarshaler) error
	StateTransaction(obj cbor.Er, f func() error) error

	// Store gives access to the content addressed store, metered.
	Store() ipldcbor.IpldStore
}

// SendReturn is the outcome of a successful Send: the exit code and the
// serialized return value of the callee.
type SendReturn struct {
	ExitCode exitcode.ExitCode
	Return   []byte
}

// Into decodes the return value into `out`. Decoding is a step separate from
// the call itself and fails on its own.
func (r SendReturn) Into(out cbor.Unmarshaler) error {
	return UnmarshalExact(r.Return, out)
}

// UnmarshalExact decodes `data` into `out` and fails if any bytes are left
// over after the value.
func UnmarshalExact(data []byte, out cbor.Unmarshaler) error {
	br := bytes.NewReader(data)
	if err := out.UnmarshalCBOR(br); err != nil {
		return err
	}
	if br.Len() != 0 {
		return xerrors.Errorf("%d trailing bytes after %T", br.Len(), out)
	}
	return nil
}

// CBORBytes are parameters which have already been serialized.
type CBORBytes []byte

// MarshalCBOR implements cbor.Marshaler by writing the raw bytes.
func (b CBORBytes) MarshalCBOR(w io.Writer) error {
	_, err := w.Write(b)
	return err
}
