package repo

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxxcn/RefFVM/pkg/config"
	tf "github.com/foxxcn/RefFVM/pkg/testhelpers/testflags"
)

func putObject(t *testing.T, r Repo) cid.Cid {
	c, err := cbor.NewCborStore(r.Blockstore()).Put(context.Background(), []string{"state"})
	require.NoError(t, err)
	return c
}

func TestMemRepoStateRoot(t *testing.T) {
	tf.UnitTest(t)

	ctx := context.Background()
	r := NewInMemoryRepo()

	root, err := r.StateRoot(ctx)
	require.NoError(t, err)
	assert.Equal(t, cid.Undef, root)

	c := putObject(t, r)
	require.NoError(t, r.SetStateRoot(ctx, c))
	root, err = r.StateRoot(ctx)
	require.NoError(t, err)
	assert.Equal(t, c, root)
}

func TestFSRepoInitOpen(t *testing.T) {
	tf.UnitTest(t)

	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "repo")

	cfg := config.NewDefaultConfig()
	cfg.Datastore.Type = "memory"
	require.NoError(t, InitFSRepo(dir, cfg))

	r, err := OpenFSRepo(dir)
	require.NoError(t, err)
	assert.Equal(t, Version, r.Version())
	assert.Equal(t, cfg, r.Config())
	path, err := r.Path()
	require.NoError(t, err)
	assert.Equal(t, dir, path)

	root, err := r.StateRoot(ctx)
	require.NoError(t, err)
	assert.Equal(t, cid.Undef, root)
	require.NoError(t, r.Close())

	t.Run("init twice fails", func(t *testing.T) {
		assert.Error(t, InitFSRepo(dir, cfg))
	})

	t.Run("replace config persists", func(t *testing.T) {
		r, err := OpenFSRepo(dir)
		require.NoError(t, err)
		next := config.NewDefaultConfig()
		next.Datastore.Type = "memory"
		next.Log.Level = "debug"
		require.NoError(t, r.ReplaceConfig(next))
		require.NoError(t, r.Close())

		r, err = OpenFSRepo(dir)
		require.NoError(t, err)
		assert.Equal(t, "debug", r.Config().Log.Level)
		require.NoError(t, r.Close())
	})
}

func TestOpenMissingRepo(t *testing.T) {
	tf.UnitTest(t)

	_, err := OpenFSRepo(filepath.Join(t.TempDir(), "nothing"))
	require.Error(t, err)
	var noRepo *NoRepoError
	assert.ErrorAs(t, err, &noRepo)
}

func TestFSRepoLock(t *testing.T) {
	tf.UnitTest(t)

	dir := t.TempDir()
	cfg := config.NewDefaultConfig()
	cfg.Datastore.Type = "memory"
	require.NoError(t, InitFSRepo(dir, cfg))

	r, err := OpenFSRepo(dir)
	require.NoError(t, err)

	_, err = OpenFSRepo(dir)
	assert.Error(t, err)

	require.NoError(t, r.Close())
	r, err = OpenFSRepo(dir)
	require.NoError(t, err)
	require.NoError(t, r.Close())
}

func TestOpenBadVersion(t *testing.T) {
	tf.UnitTest(t)

	dir := t.TempDir()
	cfg := config.NewDefaultConfig()
	cfg.Datastore.Type = "memory"
	require.NoError(t, InitFSRepo(dir, cfg))
	require.NoError(t, os.WriteFile(filepath.Join(dir, versionFilename), []byte("42"), 0644))

	_, err := OpenFSRepo(dir)
	assert.Error(t, err)
}

func TestFSRepoBadgerKeepsStateRoot(t *testing.T) {
	tf.BadgerTest(t)

	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, InitFSRepo(dir, config.NewDefaultConfig()))

	r, err := OpenFSRepo(dir)
	require.NoError(t, err)
	c := putObject(t, r)
	require.NoError(t, r.SetStateRoot(ctx, c))
	require.NoError(t, r.Close())

	r, err = OpenFSRepo(dir)
	require.NoError(t, err)
	defer r.Close() // nolint: errcheck

	root, err := r.StateRoot(ctx)
	require.NoError(t, err)
	assert.Equal(t, c, root)

	var out []string
	require.NoError(t, cbor.NewCborStore(r.Blockstore()).Get(ctx, root, &out))
	assert.Equal(t, []string{"state"}, out)
}
