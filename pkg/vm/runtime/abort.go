package runtime

import (
	"fmt"

	"github.com/filecoin-project/go-state-types/exitcode"
)

// ExecutionPanic is used to abort vm execution with an exit code.
//
// It is raised by the runtime itself, never by actor code, and is trapped at
// the invocation boundary which turns it into an *ActorError.
type ExecutionPanic struct {
	code exitcode.ExitCode
	msg  string
}

// Code is the code used to abort the execution.
func (p ExecutionPanic) Code() exitcode.ExitCode {
	return p.code
}

func (p ExecutionPanic) String() string {
	if p.msg != "" {
		return p.msg
	}
	return fmt.Sprintf("Abort(%s)", p.code)
}

// Abort aborts the current execution with the given exit code.
func Abort(code exitcode.ExitCode) {
	panic(ExecutionPanic{code: code})
}

// Abortf aborts the current execution with the given exit code and an error message.
func Abortf(code exitcode.ExitCode, msg string, args ...interface{}) {
	panic(ExecutionPanic{code: code, msg: fmt.Sprintf(msg, args...)})
}

// Assert aborts with SysErrorIllegalActor when the condition does not hold.
func Assert(cond bool) {
	if !cond {
		Abort(exitcode.SysErrorIllegalActor)
	}
}
