package builtin

import (
	"errors"
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/exitcode"

	"github.com/foxxcn/RefFVM/pkg/vm/runtime"
)

// ErrInconsistentMapping is matched by errors.Is when a successful zero value
// transfer left an address without an ID mapping.
var ErrInconsistentMapping = errors.New("no ID address even after sending zero balance")

// ErrorKind tells the failures of the shared helpers apart.
type ErrorKind int

const (
	// ErrKindCall is a failed invocation. Err is the *runtime.ActorError.
	ErrKindCall ErrorKind = iota + 1
	// ErrKindDecode is a successful invocation whose return value did not decode.
	ErrKindDecode
	// ErrKindInconsistentMapping is a transfer that succeeded without assigning an ID.
	ErrKindInconsistentMapping
	// ErrKindLookup is a failure reading the address mapping itself.
	ErrKindLookup
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindCall:
		return "call"
	case ErrKindDecode:
		return "decode"
	case ErrKindInconsistentMapping:
		return "inconsistent mapping"
	case ErrKindLookup:
		return "lookup"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is returned by ResolveToIDAddr and RequestMinerControlAddrs. It always
// names the address the operation was about.
type Error struct {
	Kind    ErrorKind
	Op      string
	Address address.Address
	Err     error
}

func (e *Error) Error() string {
	if e.Kind == ErrKindInconsistentMapping {
		return fmt.Sprintf("failed to resolve address %s to ID address even after sending zero balance", e.Address)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Address, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ExitCode is the code an actor aborts with when it gives up on this error.
func (e *Error) ExitCode() exitcode.ExitCode {
	switch e.Kind {
	case ErrKindCall:
		return runtime.RetCode(e.Err)
	case ErrKindDecode:
		return exitcode.ErrSerialization
	default:
		return exitcode.ErrIllegalState
	}
}

// AsActorError converts `err` into an actor error, keeping the exit code.
func AsActorError(err error, msg string) *runtime.ActorError {
	return runtime.Absorb(err, runtime.RetCode(err), msg)
}
