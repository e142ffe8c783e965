package register

import (
	"sync"

	"github.com/foxxcn/RefFVM/pkg/builtin/account"
	"github.com/foxxcn/RefFVM/pkg/builtin/initactor"
	"github.com/foxxcn/RefFVM/pkg/builtin/market"
	"github.com/foxxcn/RefFVM/pkg/builtin/miner"
	"github.com/foxxcn/RefFVM/pkg/vm/dispatch"
)

// BuiltinActors lists every actor with code. The system and burnt funds
// actors have none: they never receive anything but plain sends.
func BuiltinActors() []dispatch.Actor {
	return []dispatch.Actor{
		initactor.Actor{},
		account.Actor{},
		miner.Actor{},
		market.Actor{},
	}
}

var loadOnce sync.Once
var defaultActors dispatch.CodeLoader

// DefaultActors is the code loader for the builtin actors.
func DefaultActors() *dispatch.CodeLoader {
	loadOnce.Do(func() {
		defaultActors = dispatch.NewBuilder().AddMany(BuiltinActors()...).Build()
	})
	return &defaultActors
}
