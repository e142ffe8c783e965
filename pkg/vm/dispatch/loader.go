package dispatch

import (
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"

	"github.com/foxxcn/RefFVM/pkg/vm/runtime"
)

// CodeLoader allows you to load an actor's code based on its id.
type CodeLoader struct {
	actors map[cid.Cid]Actor
}

// GetActorImpl returns the dispatcher for the actor code `code`.
func (cl CodeLoader) GetActorImpl(code cid.Cid) (Dispatcher, error) {
	actor, ok := cl.actors[code]
	if !ok {
		return nil, runtime.NewActorError(exitcode.SysErrorIllegalActor, "actor code not found. code: %s", code)
	}
	return &actorDispatcher{code: code, actor: actor}, nil
}

// CodeLoaderBuilder helps you build a CodeLoader.
type CodeLoaderBuilder struct {
	actors map[cid.Cid]Actor
}

// NewBuilder creates a builder to generate a builtin.Actor data structure
func NewBuilder() *CodeLoaderBuilder {
	return &CodeLoaderBuilder{actors: map[cid.Cid]Actor{}}
}

// Add lets you add an actor dispatch table for a given code.
func (b *CodeLoaderBuilder) Add(actor Actor) *CodeLoaderBuilder {
	b.actors[actor.Code()] = actor
	return b
}

// AddMany adds many actors at once.
func (b *CodeLoaderBuilder) AddMany(actors ...Actor) *CodeLoaderBuilder {
	for _, actor := range actors {
		b.Add(actor)
	}
	return b
}

// Build builds the code loader.
func (b *CodeLoaderBuilder) Build() CodeLoader {
	return CodeLoader{actors: b.actors}
}
