package main

import (
	"context"
	"io"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/foxxcn/RefFVM/pkg/builtin"
	"github.com/foxxcn/RefFVM/pkg/types"
	"github.com/foxxcn/RefFVM/pkg/vm/runtime"
)

// messageResolver lets builtin.ResolveToIDAddr run against a repo. Lookups
// read the node's state tree and every send is a top-level message from
// `from` whose receipt goes to `receipts`.
type messageResolver struct {
	cctx     *cli.Context
	n        *node
	from     address.Address
	receipts io.Writer
}

var _ builtin.ResolverRuntime = (*messageResolver)(nil)

func (r *messageResolver) Context() context.Context {
	return r.cctx.Context
}

func (r *messageResolver) ResolveAddress(addr address.Address) (address.Address, bool, error) {
	id, err := r.n.vm.StateTree().LookupID(addr)
	if xerrors.Is(err, types.ErrActorNotFound) {
		return address.Undef, false, nil
	}
	if err != nil {
		return address.Undef, false, err
	}
	return id, true, nil
}

func (r *messageResolver) Send(to address.Address, method abi.MethodNum, params cbor.Marshaler, value abi.TokenAmount) (runtime.SendReturn, error) {
	ret, err := r.n.applyTo(r.cctx, r.receipts, r.from, to, method, params, value)
	if err != nil {
		return runtime.SendReturn{}, err
	}
	return runtime.SendReturn{ExitCode: ret.Receipt.ExitCode, Return: ret.Receipt.Return}, nil
}
