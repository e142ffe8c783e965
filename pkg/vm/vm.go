package vm

import (
	"context"

	"github.com/ipfs/go-cid"
	blockstore "github.com/ipfs/go-ipfs-blockstore"

	"github.com/foxxcn/RefFVM/pkg/vm/dispatch"
	"github.com/foxxcn/RefFVM/pkg/vm/register"
	"github.com/foxxcn/RefFVM/pkg/vm/vmcontext"
)

// Re-exports

type VmOption = vmcontext.VmOption //nolint

type Ret = vmcontext.Ret

// Interpreter is the VM.
type Interpreter = vmcontext.Interface

type VmMessage = vmcontext.VmMessage //nolint

// NewVM creates a VM over the state rooted at `root` in `bs`. An undefined
// root starts from an empty state tree.
func NewVM(ctx context.Context, bs blockstore.Blockstore, root cid.Cid, option VmOption) (*vmcontext.VM, error) {
	if option.ActorCodeLoader == nil {
		option.ActorCodeLoader = register.DefaultActors()
	}
	return vmcontext.NewVM(ctx, option.ActorCodeLoader, bs, root, option)
}

// ActorCodeLoader allows you to load an actor's code based on its id.
type ActorCodeLoader = dispatch.CodeLoader

// ActorMethodSignature wraps a specific method and allows you to encode/decodes input/output bytes into concrete types.
type ActorMethodSignature = dispatch.MethodSignature
