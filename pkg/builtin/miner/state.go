package miner

import (
	"github.com/filecoin-project/go-address"

	"github.com/foxxcn/RefFVM/pkg/builtin"
)

// State holds the ID addresses of the accounts controlling the miner.
type State struct {
	Owner        address.Address
	Worker       address.Address
	ControlAddrs []address.Address
}

// Addrs is the state in the form returned by ControlAddresses.
func (st *State) Addrs() *builtin.MinerAddrs {
	controls := make([]address.Address, len(st.ControlAddrs))
	copy(controls, st.ControlAddrs)
	return &builtin.MinerAddrs{
		Owner:        st.Owner,
		Worker:       st.Worker,
		ControlAddrs: controls,
	}
}

// IsController tells whether `addr` (an ID address) may act for the miner.
func (st *State) IsController(addr address.Address) bool {
	if addr == st.Owner || addr == st.Worker {
		return true
	}
	for _, ca := range st.ControlAddrs {
		if addr == ca {
			return true
		}
	}
	return false
}
