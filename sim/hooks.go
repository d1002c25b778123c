package sim

// Simulation is the capability set a concrete simulation hands to the
// Driver. Implementations own the domain state and device streams; the
// Driver owns the step sequence and never reaches into either.
type Simulation interface {
	// Fill prepares rank-local state for one run round and returns the
	// starting step: 0 for a fresh start, the reloaded step when plan
	// says the round resumes from a checkpoint.
	Fill(plan RestartPlan) (uint64, error)
	// AdvanceOneStep computes step. Long-running work may be handed to
	// the work pool; the control loop drains it at checkpoint and
	// end-of-round boundaries. Errors are fatal to the run.
	AdvanceOneStep(step uint64) error
	// ResetTo rewinds rank-local state so the run can be replayed from
	// step. Called at the top of every round.
	ResetTo(step uint64) error
	// CheckWindow runs right after the counter reaches step, before
	// observers are notified.
	CheckWindow(step uint64) error
}

// Communicator is one rank's handle on a collective channel. The control
// loop holds two: a data channel for checkpoint fences and diagnostics,
// and a dedicated signal channel whose reductions can never pair with
// unrelated collectives.
type Communicator interface {
	Rank() int
	Size() int
	// Barrier blocks until every rank of the cohort has entered it on
	// this channel.
	Barrier() error
	// StartMaxReduction begins a non-blocking cohort-wide maximum over
	// one value per rank. Ranks must issue matching reductions in the
	// same per-channel order.
	StartMaxReduction(value uint64) (MaxReduction, error)
}

// MaxReduction is the completion handle of an in-flight max reduction.
type MaxReduction interface {
	// Poll reports, without blocking, whether the reduction completed.
	Poll() bool
	// Done is closed once the reduction completes.
	Done() <-chan struct{}
	// Result returns the cohort maximum; calling it before completion
	// is an error.
	Result() (uint64, error)
}

// SignalSource exposes latched operator requests. Reads are cheap and
// never block; Clear re-arms the source so later deliveries register as
// new requests.
type SignalSource interface {
	Pending() bool
	CheckpointRequested() bool
	StopRequested() bool
	Clear()
}

// WorkPool runs background work the step loop hands off, typically
// kernel launches on a device stream.
type WorkPool interface {
	Go(fn func() error)
	// Drain blocks until all outstanding work completes and returns the
	// first error any of it produced. A pool that has failed keeps
	// returning that error.
	Drain() error
	// Idle reports, without blocking, whether no work is outstanding.
	Idle() bool
}
