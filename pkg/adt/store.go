// Package adt provides the content addressed collections actors keep their state in.
package adt

import (
	"context"

	ipldcbor "github.com/ipfs/go-ipld-cbor"
)

// Store is an IPLD store bound to the context of the operation using it.
type Store interface {
	Context() context.Context
	ipldcbor.IpldStore
}

// WrapStore adapts an IpldStore into a Store.
func WrapStore(ctx context.Context, store ipldcbor.IpldStore) Store {
	return &wstore{
		IpldStore: store,
		ctx:       ctx,
	}
}

type wstore struct {
	ipldcbor.IpldStore
	ctx context.Context
}

var _ Store = (*wstore)(nil)

func (s *wstore) Context() context.Context {
	return s.ctx
}
