package runtime

import (
	"fmt"

	"github.com/filecoin-project/go-state-types/exitcode"
	"golang.org/x/xerrors"
)

// ActorError is the error returned by a failed invocation. It carries the exit
// code of the failure and, through Wrap, the context added by each caller on
// the way up.
type ActorError struct {
	retCode exitcode.ExitCode

	msg   string
	frame xerrors.Frame
	err   error
}

// NewActorError returns an error with the given exit code.
func NewActorError(code exitcode.ExitCode, format string, args ...interface{}) *ActorError {
	return &ActorError{
		retCode: code,
		msg:     fmt.Sprintf(format, args...),
		frame:   xerrors.Caller(1),
	}
}

// Absorb turns an arbitrary error into an actor error with the given code.
// Absorbing an *ActorError keeps its code.
func Absorb(err error, code exitcode.ExitCode, msg string) *ActorError {
	if err == nil {
		return nil
	}
	var aerr *ActorError
	if xerrors.As(err, &aerr) {
		code = aerr.retCode
	}
	return &ActorError{
		retCode: code,
		msg:     msg,
		frame:   xerrors.Caller(1),
		err:     err,
	}
}

// ExitCode returns the exit code of the failure.
func (e *ActorError) ExitCode() exitcode.ExitCode {
	return e.retCode
}

// Wrap adds context to the error, keeping its exit code.
func (e *ActorError) Wrap(msg string) *ActorError {
	return &ActorError{
		retCode: e.retCode,
		msg:     msg,
		frame:   xerrors.Caller(1),
		err:     e,
	}
}

// Wrapf is Wrap with formatting.
func (e *ActorError) Wrapf(format string, args ...interface{}) *ActorError {
	return &ActorError{
		retCode: e.retCode,
		msg:     fmt.Sprintf(format, args...),
		frame:   xerrors.Caller(1),
		err:     e,
	}
}

func (e *ActorError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return fmt.Sprintf("%s (RetCode=%d)", e.msg, e.retCode)
}

func (e *ActorError) Format(s fmt.State, v rune) { xerrors.FormatError(e, s, v) }

func (e *ActorError) FormatError(p xerrors.Printer) (next error) {
	p.Print(e.msg)
	if e.err == nil {
		p.Printf(" (RetCode=%d)", e.retCode)
	}
	e.frame.Format(p)
	return e.err
}

func (e *ActorError) Unwrap() error {
	return e.err
}

// RetCode returns the exit code carried by `err`. Errors which are not actor
// errors map to ErrIllegalState.
func RetCode(err error) exitcode.ExitCode {
	if err == nil {
		return exitcode.Ok
	}
	var coded interface{ ExitCode() exitcode.ExitCode }
	if xerrors.As(err, &coded) {
		return coded.ExitCode()
	}
	return exitcode.ErrIllegalState
}
