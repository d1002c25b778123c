package sim

import "github.com/google/uuid"

// RunState is the driver's view of where one rank's run stands. It is
// constructed once at startup and handed by reference to every component
// that needs it. CurrentStep is mutated only by the Driver; RunSteps only
// by the Driver (startup) and the SignalCoordinator (agreed stop).
type RunState struct {
	RunID uuid.UUID // run identity, shared by every rank of one run
	Rank  int
	// CurrentStep is the next step to compute. All ranks hold the same
	// value at every synchronization point.
	CurrentStep uint64
	// RunSteps bounds the run: the loop exits once CurrentStep reaches
	// it. A stop consensus rewrites it to the agreed step.
	RunSteps uint64
}

// NewRunState returns the state for one rank of a run bounded by
// runSteps.
func NewRunState(runID uuid.UUID, rank int, runSteps uint64) *RunState {
	return &RunState{RunID: runID, Rank: rank, RunSteps: runSteps}
}

// IsCanonical reports whether this rank is the canonical writer and
// console reporter (rank 0).
func (s *RunState) IsCanonical() bool {
	return s.Rank == 0
}
