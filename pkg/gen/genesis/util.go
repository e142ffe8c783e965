package genesis

import (
	"bytes"
	"context"

	"github.com/filecoin-project/go-state-types/cbor"
	"golang.org/x/xerrors"

	"github.com/foxxcn/RefFVM/pkg/state/tree"
	"github.com/foxxcn/RefFVM/pkg/types"
	"github.com/foxxcn/RefFVM/pkg/vm"
)

type vmApplier interface {
	ApplyImplicitMessage(ctx context.Context, msg *types.Message) (*vm.Ret, error)
	StateTree() tree.Tree
}

func encodeParams(params cbor.Marshaler) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := params.MarshalCBOR(buf); err != nil {
		return nil, xerrors.Errorf("encoding params: %w", err)
	}
	return buf.Bytes(), nil
}
