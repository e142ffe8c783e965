package tree

import (
	"github.com/filecoin-project/go-address"

	"github.com/foxxcn/RefFVM/pkg/types"
)

// Assignment is an ID handed out by the init actor that has not been flushed yet.
type Assignment struct {
	Addr address.Address
	ID   address.Address
}

// journal holds every change not yet written to the HAMT. The base layer is
// what the next Flush writes. Each invocation in progress owns one layer
// above it, so failing an invocation drops exactly its own changes,
// including the IDs it caused to be assigned.
type journal struct {
	layers []*journalLayer
}

type journalLayer struct {
	actors map[address.Address]pendingActor
	// ids caches ID addresses of non-ID addresses, both looked up and assigned.
	ids map[address.Address]address.Address
	// assigned lists the IDs handed out in this layer, oldest first.
	assigned []Assignment
}

// pendingActor is an actor write. A deleted entry hides the actor from
// lower layers and from the HAMT.
type pendingActor struct {
	act     types.Actor
	deleted bool
}

func newJournalLayer() *journalLayer {
	return &journalLayer{
		actors: make(map[address.Address]pendingActor),
		ids:    make(map[address.Address]address.Address),
	}
}

func newJournal() *journal {
	return &journal{layers: []*journalLayer{newJournalLayer()}}
}

func (j *journal) top() *journalLayer {
	return j.layers[len(j.layers)-1]
}

func (j *journal) base() *journalLayer {
	return j.layers[0]
}

// depth is the number of open invocation layers.
func (j *journal) depth() int {
	return len(j.layers) - 1
}

func (j *journal) push() {
	j.layers = append(j.layers, newJournalLayer())
}

// discard drops the top layer and everything recorded in it.
func (j *journal) discard() {
	j.layers[len(j.layers)-1] = nil
	j.layers = j.layers[:len(j.layers)-1]
}

// commit folds the top layer into the one below.
func (j *journal) commit() {
	last := j.top()
	j.discard()
	parent := j.top()

	for k, v := range last.actors {
		parent.actors[k] = v
	}
	for k, v := range last.ids {
		parent.ids[k] = v
	}
	parent.assigned = append(parent.assigned, last.assigned...)
}

func (j *journal) lookupID(addr address.Address) (address.Address, bool) {
	for i := len(j.layers) - 1; i >= 0; i-- {
		if id, ok := j.layers[i].ids[addr]; ok {
			return id, true
		}
	}
	return address.Undef, false
}

func (j *journal) cacheID(addr, id address.Address) {
	j.top().ids[addr] = id
}

func (j *journal) recordAssignment(addr, id address.Address) {
	top := j.top()
	top.ids[addr] = id
	top.assigned = append(top.assigned, Assignment{Addr: addr, ID: id})
}

// assignments are the IDs handed out since the last flush across every
// layer, oldest first.
func (j *journal) assignments() []Assignment {
	var out []Assignment
	for _, l := range j.layers {
		out = append(out, l.assigned...)
	}
	return out
}

// actor returns the pending write for `addr`. `found` is false when no layer
// touched it.
func (j *journal) actor(addr address.Address) (act *types.Actor, deleted bool, found bool) {
	for i := len(j.layers) - 1; i >= 0; i-- {
		if p, ok := j.layers[i].actors[addr]; ok {
			if p.deleted {
				return nil, true, true
			}
			a := p.act
			return &a, false, true
		}
	}
	return nil, false, false
}

func (j *journal) setActor(addr address.Address, act *types.Actor) {
	j.top().actors[addr] = pendingActor{act: *act}
}

func (j *journal) deleteActor(addr address.Address) {
	j.top().actors[addr] = pendingActor{deleted: true}
}

// flushed resets the base layer once its writes are in the HAMT. Cached IDs
// stay valid since mappings are never removed.
func (j *journal) flushed() {
	b := j.base()
	b.actors = make(map[address.Address]pendingActor)
	b.assigned = nil
}
