package dispatch

import (
	"reflect"

	"github.com/filecoin-project/go-state-types/cbor"
	"golang.org/x/xerrors"

	"github.com/foxxcn/RefFVM/pkg/vm/runtime"
)

var (
	runtimeType     = reflect.TypeOf((*runtime.Runtime)(nil)).Elem()
	errorType       = reflect.TypeOf((*error)(nil)).Elem()
	unmarshalerType = reflect.TypeOf((*cbor.Unmarshaler)(nil)).Elem()
)

// MethodSignature wraps a specific method and allows you to encode/decodes input/output bytes into concrete types.
type MethodSignature interface {
	// ArgInterface decodes raw params into a new value of the parameter type.
	ArgInterface(argBytes []byte) (interface{}, error)
	// ReturnInterface decodes a raw return value into a new value of the return type.
	ReturnInterface(retBytes []byte) (interface{}, error)
}

type methodSignature struct {
	method reflect.Value
}

var _ MethodSignature = (*methodSignature)(nil)

func (ms *methodSignature) takesParams() bool {
	return ms.method.Type().NumIn() == 2
}

func (ms *methodSignature) ArgInterface(argBytes []byte) (interface{}, error) {
	if !ms.takesParams() {
		return nil, xerrors.New("method takes no params")
	}
	return decodeInto(ms.method.Type().In(1), argBytes)
}

func (ms *methodSignature) ReturnInterface(retBytes []byte) (interface{}, error) {
	return decodeInto(ms.method.Type().Out(0), retBytes)
}

func decodeInto(t reflect.Type, raw []byte) (interface{}, error) {
	// all params and returns are pointers
	obj := reflect.New(t.Elem()).Interface()
	u, ok := obj.(cbor.Unmarshaler)
	if !ok {
		return nil, xerrors.Errorf("type %s can not be decoded", t)
	}
	if err := runtime.UnmarshalExact(raw, u); err != nil {
		return nil, err
	}
	return obj, nil
}

// checkMethod verifies an exported method has one of the shapes Dispatch calls.
func checkMethod(t reflect.Type) error {
	if t.Kind() != reflect.Func {
		return xerrors.Errorf("export is a %s, not a func", t.Kind())
	}
	if t.NumIn() < 1 || t.NumIn() > 2 || t.In(0) != runtimeType {
		return xerrors.New("first and only argument besides params must be runtime.Runtime")
	}
	if t.NumIn() == 2 && (t.In(1).Kind() != reflect.Ptr || !t.In(1).Implements(unmarshalerType)) {
		return xerrors.Errorf("params %s must be a pointer implementing cbor.Unmarshaler", t.In(1))
	}
	if t.NumOut() != 2 || t.Out(0).Kind() != reflect.Ptr || t.Out(1) != errorType {
		return xerrors.New("must return a pointer and an error")
	}
	return nil
}
