package metrics

// Counters recorded by the vm and the builtin actors.
var (
	// ResolveFastPath counts address resolutions answered by a lookup alone.
	ResolveFastPath = NewInt64Counter("builtin/resolve_fast_path", "Address resolutions satisfied by an existing ID mapping")
	// ResolveForced counts resolutions which had to send a zero value transfer.
	ResolveForced = NewInt64Counter("builtin/resolve_forced", "Address resolutions that sent zero value to assign an ID")
	// Invocations counts every actor invocation, nested ones included.
	Invocations = NewInt64Counter("vm/invocations", "Number of actor invocations")
	// InvocationFailures counts invocations that exited with a non zero code.
	InvocationFailures = NewInt64Counter("vm/invocation_failures", "Number of actor invocations that failed")
)
