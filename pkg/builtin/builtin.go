package builtin

import (
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// DefaultHamtBitwidth is the bit width of every HAMT in the system: the state
// tree, the init actor's address map and the market escrow table.
const DefaultHamtBitwidth = 5

// FirstNonSingletonActorID is the first ID handed out by the init actor.
const FirstNonSingletonActorID = abi.ActorID(100)

// Addresses of the singleton actors.
var (
	SystemActorAddr        = mustMakeAddress(0)
	InitActorAddr          = mustMakeAddress(1)
	StorageMarketActorAddr = mustMakeAddress(5)
	BurntFundsActorAddr    = mustMakeAddress(99)
)

// Code IDs of the builtin actors.
var (
	SystemActorCodeID        cid.Cid
	InitActorCodeID          cid.Cid
	AccountActorCodeID       cid.Cid
	StorageMinerActorCodeID  cid.Cid
	StorageMarketActorCodeID cid.Cid
)

var builtinActors map[cid.Cid]*actorInfo

type actorInfo struct {
	name      string
	singleton bool
}

func init() {
	builtinActors = make(map[cid.Cid]*actorInfo)

	for id, info := range map[*cid.Cid]*actorInfo{
		&SystemActorCodeID:        {name: "fil/1/system", singleton: true},
		&InitActorCodeID:          {name: "fil/1/init", singleton: true},
		&AccountActorCodeID:       {name: "fil/1/account"},
		&StorageMinerActorCodeID:  {name: "fil/1/storageminer"},
		&StorageMarketActorCodeID: {name: "fil/1/storagemarket", singleton: true},
	} {
		c, err := makeBuiltinActorCode(info.name)
		if err != nil {
			panic(err)
		}
		*id = c
		builtinActors[c] = info
	}
}

func makeBuiltinActorCode(s string) (cid.Cid, error) {
	builder := cid.V1Builder{Codec: cid.Raw, MhType: mh.IDENTITY}
	return builder.Sum([]byte(s))
}

func mustMakeAddress(id uint64) address.Address {
	addr, err := address.NewIDAddress(id)
	if err != nil {
		panic(err)
	}
	return addr
}

// ActorNameByCode returns the (string) name of the actor given a cid code.
func ActorNameByCode(code cid.Cid) string {
	if !code.Defined() {
		return "<undefined>"
	}
	info, ok := builtinActors[code]
	if !ok {
		return "<unknown>"
	}
	return info.name
}

// IsBuiltinActor returns true if the code belongs to an actor defined in this package.
func IsBuiltinActor(code cid.Cid) bool {
	_, ok := builtinActors[code]
	return ok
}

// IsSingletonActor returns true if the code belongs to a singleton actor.
func IsSingletonActor(code cid.Cid) bool {
	info, ok := builtinActors[code]
	return ok && info.singleton
}

// IsAccountActor returns true if the code belongs to an account actor.
func IsAccountActor(code cid.Cid) bool {
	return code.Equals(AccountActorCodeID)
}

// IsStorageMinerActor returns true if the code belongs to a storage miner actor.
func IsStorageMinerActor(code cid.Cid) bool {
	return code.Equals(StorageMinerActorCodeID)
}

// IsPrincipal returns true if the code belongs to an actor which may sign messages.
func IsPrincipal(code cid.Cid) bool {
	return IsAccountActor(code)
}
