package sim

import "github.com/lockstep-sim/lockstep/sim/collective"

// CollectiveComm adapts one rank's collective channel handle to the
// Communicator interface. The indirection exists because collective
// returns its own concrete reduction handles; everything behavioral
// passes straight through.
type CollectiveComm struct {
	C *collective.Comm
}

func (c CollectiveComm) Rank() int      { return c.C.Rank() }
func (c CollectiveComm) Size() int      { return c.C.Size() }
func (c CollectiveComm) Barrier() error { return c.C.Barrier() }

func (c CollectiveComm) StartMaxReduction(value uint64) (MaxReduction, error) {
	return c.C.StartMaxReduction(value)
}
