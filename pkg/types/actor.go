package types

import (
	"errors"
	"fmt"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	mh "github.com/multiformats/go-multihash"
)

// ErrActorNotFound is returned when an address has no actor in the state tree.
var ErrActorNotFound = errors.New("actor not found")

// EmptyObjectCid is the CID of an empty CBOR array. It is the head of actors
// which never construct any state of their own.
var EmptyObjectCid cid.Cid

func init() {
	nd, err := cbor.WrapObject([]struct{}{}, mh.SHA2_256, -1)
	if err != nil {
		panic("failed to create empty object: " + err.Error())
	}
	EmptyObjectCid = nd.Cid()
}

// Actor is the central abstraction of entities in the system.
//
// Both individual accounts, as well as builtin actors are represented as
// actors. An actor has the following core functionality implemented on a
// system level:
// - track a balance, using the `Balance` field
// - execute code identified by the `Code` field
// - point to its state, using the `Head` field
// - replay protection, using the `Nonce` field
//
// Not safe for concurrent access.
type Actor struct {
	// Code is the CID identifying the go implementation of this actor.
	Code cid.Cid
	// Head is the CID of the root of the actor's state.
	Head cid.Cid
	// Nonce is the number expected on the next message from this actor.
	Nonce uint64
	// Balance is the amount of tokens in the actor's account.
	Balance abi.TokenAmount
}

// NewActor constructs a new actor with an empty state.
func NewActor(code cid.Cid, balance abi.TokenAmount) *Actor {
	return &Actor{
		Code:    code,
		Head:    EmptyObjectCid,
		Nonce:   0,
		Balance: balance,
	}
}

// Empty tests whether the actor's code is defined.
func (a *Actor) Empty() bool {
	return !a.Code.Defined()
}

// IncrementSeqNum increments the seq number.
func (a *Actor) IncrementSeqNum() {
	a.Nonce = a.Nonce + 1
}

// Format implements fmt.Formatter.
func (a *Actor) Format(f fmt.State, c rune) {
	bal := a.Balance
	if bal.Int == nil {
		bal = big.Zero()
	}
	f.Write([]byte(fmt.Sprintf("<%s (%p); balance: %v; nonce: %d>", a.Code, a, bal, a.Nonce))) // nolint: errcheck
}
