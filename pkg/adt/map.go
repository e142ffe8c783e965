package adt

import (
	"bytes"

	hamt "github.com/filecoin-project/go-hamt-ipld/v3"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"
	cbg "github.com/whyrusleeping/cbor-gen"
	"golang.org/x/xerrors"
)

// Map stores key value pairs in a HAMT.
type Map struct {
	lastCid cid.Cid
	root    *hamt.Node
	store   Store
}

// MakeEmptyMap creates a new map backed by an empty HAMT with the given bit width.
func MakeEmptyMap(s Store, bitwidth int) (*Map, error) {
	nd, err := hamt.NewNode(s, hamt.UseTreeBitWidth(bitwidth))
	if err != nil {
		return nil, xerrors.Errorf("failed to create empty map: %w", err)
	}
	return &Map{
		lastCid: cid.Undef,
		root:    nd,
		store:   s,
	}, nil
}

// StoreEmptyMap writes a new empty map to the store and returns its CID.
func StoreEmptyMap(s Store, bitwidth int) (cid.Cid, error) {
	m, err := MakeEmptyMap(s, bitwidth)
	if err != nil {
		return cid.Undef, err
	}
	return m.Root()
}

// AsMap interprets a store as a HAMT-based map with root `root`.
func AsMap(s Store, root cid.Cid, bitwidth int) (*Map, error) {
	nd, err := hamt.LoadNode(s.Context(), s, root, hamt.UseTreeBitWidth(bitwidth))
	if err != nil {
		return nil, xerrors.Errorf("failed to load hamt node %s: %w", root, err)
	}

	return &Map{
		lastCid: root,
		root:    nd,
		store:   s,
	}, nil
}

// Root flushes pending changes and returns the root CID of the map.
func (m *Map) Root() (cid.Cid, error) {
	if err := m.root.Flush(m.store.Context()); err != nil {
		return cid.Undef, xerrors.Errorf("failed to flush map root: %w", err)
	}

	c, err := m.store.Put(m.store.Context(), m.root)
	if err != nil {
		return cid.Undef, xerrors.Errorf("writing map root object: %w", err)
	}
	m.lastCid = c

	return c, nil
}

// Put puts value `v` at key `k`.
func (m *Map) Put(k abi.Keyer, v cbg.CBORMarshaler) error {
	if err := m.root.Set(m.store.Context(), k.Key(), v); err != nil {
		return xerrors.Errorf("failed to put key %v in map root %v: %w", k, m.lastCid, err)
	}
	return nil
}

// Get loads the value at key `k` into `out`, reporting whether it was there.
func (m *Map) Get(k abi.Keyer, out cbg.CBORUnmarshaler) (bool, error) {
	found, err := m.root.Find(m.store.Context(), k.Key(), out)
	if err != nil {
		return false, xerrors.Errorf("failed to get key %v in map root %v: %w", k, m.lastCid, err)
	}
	return found, nil
}

// Has checks for the presence of a key.
func (m *Map) Has(k abi.Keyer) (bool, error) {
	return m.Get(k, nil)
}

// TryDelete removes the value at `k`, reporting whether it was present.
func (m *Map) TryDelete(k abi.Keyer) (bool, error) {
	found, err := m.root.Delete(m.store.Context(), k.Key())
	if err != nil {
		return false, xerrors.Errorf("failed to delete key %v in map root %v: %w", k, m.lastCid, err)
	}
	return found, nil
}

// Delete removes the value at `k`, failing if it was not present.
func (m *Map) Delete(k abi.Keyer) error {
	found, err := m.TryDelete(k)
	if err != nil {
		return err
	}
	if !found {
		return xerrors.Errorf("failed to delete key %v in map root %v: not found", k, m.lastCid)
	}
	return nil
}

// ForEach iterates all entries in the map, deserializing each value into
// `out` before calling fn with the key. `out` is reused across calls.
func (m *Map) ForEach(out cbg.CBORUnmarshaler, fn func(key string) error) error {
	return m.root.ForEach(m.store.Context(), func(k string, val *cbg.Deferred) error {
		if out != nil {
			if err := out.UnmarshalCBOR(bytes.NewReader(val.Raw)); err != nil {
				return err
			}
		}
		return fn(k)
	})
}
