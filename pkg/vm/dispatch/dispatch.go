// Package dispatch calls actor methods by number through reflection over the
// table each actor exports.
package dispatch

import (
	"bytes"
	"reflect"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"

	"github.com/foxxcn/RefFVM/pkg/vm/runtime"
)

// Actor is the interface all actors have to implement.
type Actor interface {
	// Exports has a list of method available on the actor, indexed by method
	// number. A nil entry is an undefined method.
	//
	// Each entry is a `func(runtime.Runtime, *P) (R, error)` where P is the
	// parameter type, or a `func(runtime.Runtime) (R, error)` for methods
	// without parameters. R is a pointer to a cbor.Marshaler, nil for no value.
	Exports() []interface{}
	// Code returns the code ID for this actor.
	Code() cid.Cid
}

// Dispatcher allows for dynamic method dispatching on an actor.
type Dispatcher interface {
	// Dispatch decodes `params` into the type the method expects, calls it and
	// returns its encoded return value. Errors are always *runtime.ActorError.
	Dispatch(method abi.MethodNum, rt runtime.Runtime, params []byte) ([]byte, error)
	// Signature is a helper function that returns the signature for a given method.
	//
	// Note: This is intended to be used by tests and tools.
	Signature(method abi.MethodNum) (MethodSignature, error)
}

type actorDispatcher struct {
	code  cid.Cid
	actor Actor
}

var _ Dispatcher = (*actorDispatcher)(nil)

// Dispatch implements `Dispatcher`.
func (d *actorDispatcher) Dispatch(methodNum abi.MethodNum, rt runtime.Runtime, params []byte) ([]byte, error) {
	// get method signature
	m, err := d.signature(methodNum)
	if err != nil {
		return nil, err
	}

	// build args to pass to the method
	args := []reflect.Value{
		reflect.ValueOf(rt),
	}

	if m.takesParams() {
		obj, err := m.ArgInterface(params)
		if err != nil {
			return nil, runtime.NewActorError(exitcode.ErrSerialization, "failed to decode params of method %d on %s: %s", methodNum, d.code, err)
		}
		args = append(args, reflect.ValueOf(obj))
	} else if len(params) > 0 {
		return nil, runtime.NewActorError(exitcode.ErrSerialization, "method %d on %s takes no params, got %d bytes", methodNum, d.code, len(params))
	}

	// invoke the method
	out := m.method.Call(args)

	if errv := out[1]; !errv.IsNil() {
		err := errv.Interface().(error)
		if aerr, ok := err.(*runtime.ActorError); ok {
			return nil, aerr
		}
		return nil, runtime.Absorb(err, runtime.RetCode(err), "method failed")
	}

	// method returns unit
	// Note: we need to check for `IsNil()` here because Go doesnt work if you do `== nil` on the interface
	if out[0].Kind() == reflect.Ptr && out[0].IsNil() {
		return nil, nil
	}

	switch ret := out[0].Interface().(type) {
	case *abi.EmptyValue:
		return nil, nil
	case cbor.Marshaler:
		buf := new(bytes.Buffer)
		if err := ret.MarshalCBOR(buf); err != nil {
			return nil, runtime.NewActorError(exitcode.SysErrorIllegalActor, "failed to marshal return value of method %d: %s", methodNum, err)
		}
		return buf.Bytes(), nil
	default:
		return nil, runtime.NewActorError(exitcode.SysErrorIllegalActor, "could not determine type for response from call")
	}
}

func (d *actorDispatcher) signature(methodID abi.MethodNum) (*methodSignature, error) {
	exports := d.actor.Exports()

	// get method entry
	methodIdx := (uint64)(methodID)
	if uint64(len(exports)) <= methodIdx {
		return nil, runtime.NewActorError(exitcode.SysErrInvalidMethod, "Method undefined. method: %d, code: %s", methodID, d.code)
	}
	entry := exports[methodIdx]
	if entry == nil {
		return nil, runtime.NewActorError(exitcode.SysErrInvalidMethod, "Method undefined. method: %d, code: %s", methodID, d.code)
	}

	ventry := reflect.ValueOf(entry)
	if err := checkMethod(ventry.Type()); err != nil {
		return nil, runtime.NewActorError(exitcode.SysErrorIllegalActor, "bad export %d on %s: %s", methodID, d.code, err)
	}
	return &methodSignature{method: ventry}, nil
}

// Signature implements `Dispatcher`.
func (d *actorDispatcher) Signature(methodNum abi.MethodNum) (MethodSignature, error) {
	return d.signature(methodNum)
}
