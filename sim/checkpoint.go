package sim

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/lockstep-sim/lockstep/sim/period"
)

// CheckpointScheduler decides when a checkpoint is due and coordinates
// the durability protocol around writing one. The trigger set is the
// union of the resolved periodic set and one-off steps injected by
// signal consensus; once a step is in the set it stays there for the
// rest of the process, soft restarts included.
type CheckpointScheduler struct {
	state     *RunState
	comm      Communicator
	pool      WorkPool
	observers *Registry

	periods  period.Set
	injected []uint64
	dir      string

	numCheckpoints int
}

// NewCheckpointScheduler wires a scheduler for one rank. comm must be the
// data channel, never the signal channel.
func NewCheckpointScheduler(state *RunState, comm Communicator, pool WorkPool, observers *Registry, periods period.Set, dir string) *CheckpointScheduler {
	if state == nil || comm == nil || pool == nil || observers == nil {
		panic("sim: NewCheckpointScheduler requires state, comm, pool and observers")
	}
	if dir == "" {
		panic("sim: NewCheckpointScheduler requires a checkpoint directory")
	}
	return &CheckpointScheduler{
		state:     state,
		comm:      comm,
		pool:      pool,
		observers: observers,
		periods:   periods,
		dir:       dir,
	}
}

// ShouldCheckpoint reports whether step is in the trigger set.
func (cs *CheckpointScheduler) ShouldCheckpoint(step uint64) bool {
	if cs.periods.Contains(step) {
		return true
	}
	for _, s := range cs.injected {
		if s == step {
			return true
		}
	}
	return false
}

// InjectStep adds a one-off trigger at step. Used by the signal
// coordinator once a checkpoint consensus resolves.
func (cs *CheckpointScheduler) InjectStep(step uint64) {
	for _, s := range cs.injected {
		if s == step {
			return
		}
	}
	cs.injected = append(cs.injected, step)
}

// NumCheckpoints returns how many checkpoints this rank completed.
func (cs *CheckpointScheduler) NumCheckpoints() int {
	return cs.numCheckpoints
}

// Dir returns the checkpoint storage directory.
func (cs *CheckpointScheduler) Dir() string {
	return cs.dir
}

// Perform runs the checkpoint sequence for step. No rank starts writing
// until the whole cohort has drained its outstanding work, and the log
// entry is appended only after every rank confirmed its write, so the
// log can never name a checkpoint some rank skipped.
func (cs *CheckpointScheduler) Perform(step uint64) error {
	// All device work for this step must retire first. A failed pool
	// aborts before any storage is touched.
	if err := cs.pool.Drain(); err != nil {
		return fmt.Errorf("drain before checkpoint %d: %w", step, err)
	}
	// Pre-write fence: storage is allocated only if the whole cohort got
	// this far.
	if err := cs.comm.Barrier(); err != nil {
		return fmt.Errorf("pre-write fence for checkpoint %d: %w", step, err)
	}

	if cs.numCheckpoints == 0 {
		if err := os.MkdirAll(cs.dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint directory: %w", err)
		}
	}

	if err := cs.observers.CheckpointAll(step, cs.dir); err != nil {
		return err
	}

	// The write may itself have queued device work.
	if err := cs.pool.Drain(); err != nil {
		return fmt.Errorf("drain after checkpoint %d: %w", step, err)
	}
	// Post-write fence: past this point every rank's write is confirmed.
	if err := cs.comm.Barrier(); err != nil {
		return fmt.Errorf("post-write fence for checkpoint %d: %w", step, err)
	}

	if cs.state.IsCanonical() {
		if err := AppendCheckpointStep(cs.dir, step); err != nil {
			return err
		}
		logrus.Infof("[step %07d] checkpoint #%d written to %s", step, cs.numCheckpoints+1, cs.dir)
	}
	cs.numCheckpoints++
	return nil
}
