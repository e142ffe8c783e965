// Package repo holds everything a RefFVM instance persists: its config and
// the datastore the state tree lives in.
package repo

import (
	"context"

	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"

	"github.com/foxxcn/RefFVM/pkg/config"
)

var log = logging.Logger("repo")

// Version is the version of the repo layout.
const Version uint = 1

// stateRootKey is where the root of the latest state tree is kept.
var stateRootKey = datastore.NewKey("/state/root")

// Datastore is the datastore interface provided by the repo
type Datastore interface {
	datastore.Batching
}

// Repo is a representation of all persistent data of a RefFVM instance.
type Repo interface {
	Config() *config.Config
	// ReplaceConfig replaces the current config, with the newly passed in one.
	ReplaceConfig(cfg *config.Config) error

	// Datastore is where blocks and metadata are kept.
	Datastore() Datastore
	// Blockstore is the block view of Datastore.
	Blockstore() blockstore.Blockstore

	// StateRoot returns the root of the latest state tree, or cid.Undef
	// before genesis.
	StateRoot(ctx context.Context) (cid.Cid, error)
	SetStateRoot(ctx context.Context, root cid.Cid) error

	// Version returns the current repo version.
	Version() uint

	// Path returns the repo path.
	Path() (string, error)

	// Close shuts down the repo.
	Close() error
}

func loadStateRoot(ctx context.Context, ds datastore.Datastore) (cid.Cid, error) {
	raw, err := ds.Get(ctx, stateRootKey)
	if err == datastore.ErrNotFound {
		return cid.Undef, nil
	}
	if err != nil {
		return cid.Undef, errors.Wrap(err, "failed to read state root")
	}
	c, err := cid.Cast(raw)
	if err != nil {
		return cid.Undef, errors.Wrap(err, "corrupt state root")
	}
	return c, nil
}

func storeStateRoot(ctx context.Context, ds datastore.Datastore, root cid.Cid) error {
	if err := ds.Put(ctx, stateRootKey, root.Bytes()); err != nil {
		return errors.Wrap(err, "failed to write state root")
	}
	log.Debugw("stored state root", "root", root)
	return nil
}
