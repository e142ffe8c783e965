package vmcontext

import (
	"context"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	blockstore "github.com/ipfs/go-ipfs-blockstore"

	"github.com/foxxcn/RefFVM/pkg/vm/gas"
)

// GasChargeBlockStore charges gas for every block actors read or write.
type GasChargeBlockStore struct {
	blockstore.Blockstore
	pricelist gas.Pricelist
	gasTank   *gas.GasTracker
}

// NewGasChargeBlockStore wraps `inner`, charging `gasTank` with prices from `pricelist`.
func NewGasChargeBlockStore(gasTank *gas.GasTracker, pricelist gas.Pricelist, inner blockstore.Blockstore) *GasChargeBlockStore {
	return &GasChargeBlockStore{
		Blockstore: inner,
		pricelist:  pricelist,
		gasTank:    gasTank,
	}
}

// Get charges gas before reading the block.
func (bs *GasChargeBlockStore) Get(ctx context.Context, c cid.Cid) (blocks.Block, error) {
	bs.gasTank.Charge(bs.pricelist.OnIpldGet(), "storage get %s", c)

	blk, err := bs.Blockstore.Get(ctx, c)
	if err != nil {
		return nil, err
	}
	return blk, nil
}

// Put charges gas for the size of the block before writing it.
func (bs *GasChargeBlockStore) Put(ctx context.Context, blk blocks.Block) error {
	bs.gasTank.Charge(bs.pricelist.OnIpldPut(len(blk.RawData())), "%s storage put %d bytes", blk.Cid(), len(blk.RawData()))

	return bs.Blockstore.Put(ctx, blk)
}
