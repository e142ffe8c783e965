package repo

import (
	"context"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	dss "github.com/ipfs/go-datastore/sync"
	blockstore "github.com/ipfs/go-ipfs-blockstore"

	"github.com/foxxcn/RefFVM/pkg/config"
)

// MemRepo is an in-memory implementation of the repo interface.
type MemRepo struct {
	// lk guards the config
	lk      sync.RWMutex
	C       *config.Config
	D       Datastore
	B       blockstore.Blockstore
	version uint
}

var _ Repo = (*MemRepo)(nil)

// NewInMemoryRepo makes a new instance of MemRepo
func NewInMemoryRepo() *MemRepo {
	defConfig := config.NewDefaultConfig()
	defConfig.Datastore.Type = "memory"
	ds := dss.MutexWrap(datastore.NewMapDatastore())
	return &MemRepo{
		C:       defConfig,
		D:       ds,
		B:       blockstore.NewBlockstore(ds),
		version: Version,
	}
}

// Config returns the configuration object.
func (mr *MemRepo) Config() *config.Config {
	mr.lk.RLock()
	defer mr.lk.RUnlock()

	return mr.C
}

// ReplaceConfig replaces the current config with the newly passed in one.
func (mr *MemRepo) ReplaceConfig(cfg *config.Config) error {
	mr.lk.Lock()
	defer mr.lk.Unlock()

	mr.C = cfg

	return nil
}

// Datastore returns the datastore.
func (mr *MemRepo) Datastore() Datastore {
	return mr.D
}

// Blockstore returns the blockstore over the datastore.
func (mr *MemRepo) Blockstore() blockstore.Blockstore {
	return mr.B
}

func (mr *MemRepo) StateRoot(ctx context.Context) (cid.Cid, error) {
	return loadStateRoot(ctx, mr.D)
}

func (mr *MemRepo) SetStateRoot(ctx context.Context, root cid.Cid) error {
	return storeStateRoot(ctx, mr.D, root)
}

// Version returns the version of the repo.
func (mr *MemRepo) Version() uint {
	return mr.version
}

// Path returns an empty path, there is nothing on disk.
func (mr *MemRepo) Path() (string, error) {
	return "", nil
}

// Close is a noop.
func (mr *MemRepo) Close() error {
	return nil
}
