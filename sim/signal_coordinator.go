package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// SignalState is the phase of the signal-to-consensus protocol as seen
// between driver iterations. The transient Observed and Resolved phases
// of the protocol collapse into a single Advance call and are never
// visible from outside.
type SignalState int

const (
	// SignalIdle means no request is outstanding.
	SignalIdle SignalState = iota
	// SignalConsensusPending means a consensus reduction is in flight.
	SignalConsensusPending
)

func (s SignalState) String() string {
	switch s {
	case SignalIdle:
		return "idle"
	case SignalConsensusPending:
		return "consensus-pending"
	default:
		return "unknown"
	}
}

// pendingRequest is the coalescing unit: at most one exists per rank at
// any time, created when a request is captured and destroyed once the
// agreed action has been applied. Requests observed while one is
// outstanding stay latched in the source and start a fresh round later.
type pendingRequest struct {
	requestedAt    uint64
	proposedStep   uint64
	wantCheckpoint bool
	wantStop       bool
	reduction      MaxReduction
}

// SignalCoordinator turns operator requests, which reach each rank at a
// different wall-clock time, into a single step number at which every
// rank takes the same action.
//
// On capture a rank proposes its current step plus one and starts a
// non-blocking max reduction on a channel reserved for consensus. One
// step of headroom means no rank is asked to join a collective for a
// step it has already passed. While the reduction is in flight the step
// loop keeps running and polls it; a rank blocks only when its counter
// reaches its own proposal, a step the whole cohort reaches. That is the
// deadlock-safety argument: the blocking wait happens at an agreed step
// number, never at the per-rank arrival time of the request. It assumes
// every rank observes the request; a request delivered to only part of
// the cohort would leave the reduction open forever.
type SignalCoordinator struct {
	state     *RunState
	comm      Communicator
	source    SignalSource
	scheduler *CheckpointScheduler

	pending *pendingRequest
}

// NewSignalCoordinator wires a coordinator for one rank. comm must be
// the dedicated signal channel, never the data channel.
func NewSignalCoordinator(state *RunState, comm Communicator, source SignalSource, scheduler *CheckpointScheduler) *SignalCoordinator {
	if state == nil || comm == nil || source == nil || scheduler == nil {
		panic("sim: NewSignalCoordinator requires state, comm, source and scheduler")
	}
	return &SignalCoordinator{
		state:     state,
		comm:      comm,
		source:    source,
		scheduler: scheduler,
	}
}

// State reports the protocol phase.
func (sc *SignalCoordinator) State() SignalState {
	if sc.pending != nil {
		return SignalConsensusPending
	}
	return SignalIdle
}

// Advance runs one protocol step at the given step counter value. With
// no request outstanding it checks the source; with one outstanding it
// polls the reduction, blocking only at the settle step. A source read
// never happens while a round is outstanding, so concurrent deliveries
// coalesce into the latched request.
func (sc *SignalCoordinator) Advance(step uint64) error {
	if sc.pending == nil {
		return sc.observe(step)
	}
	return sc.resolve(step)
}

func (sc *SignalCoordinator) observe(step uint64) error {
	if !sc.source.Pending() {
		return nil
	}
	req := &pendingRequest{
		requestedAt:    step,
		proposedStep:   step + 1,
		wantCheckpoint: sc.source.CheckpointRequested(),
		wantStop:       sc.source.StopRequested(),
	}
	sc.source.Clear()

	red, err := sc.comm.StartMaxReduction(req.proposedStep)
	if err != nil {
		return fmt.Errorf("start signal consensus: %w", err)
	}
	req.reduction = red
	sc.pending = req

	if sc.state.IsCanonical() {
		if req.wantCheckpoint {
			logrus.Infof("[step %07d] signal received, proposing checkpoint consensus for step %d", step, req.proposedStep)
		}
		if req.wantStop {
			logrus.Infof("[step %07d] signal received, proposing shutdown consensus for step %d", step, req.proposedStep)
		}
	}
	return nil
}

func (sc *SignalCoordinator) resolve(step uint64) error {
	req := sc.pending
	if !req.reduction.Poll() {
		if step < req.proposedStep {
			// Not at the settle step yet; keep the loop running and
			// poll again next step.
			return nil
		}
		// Settle step: the counter may not pass the proposal with the
		// agreed step still unknown.
		<-req.reduction.Done()
	}

	agreed, err := req.reduction.Result()
	if err != nil {
		return fmt.Errorf("signal consensus: %w", err)
	}

	if req.wantCheckpoint {
		sc.scheduler.InjectStep(agreed)
		if sc.state.IsCanonical() {
			logrus.Infof("[step %07d] signal consensus reached: checkpoint at step %d", step, agreed)
		}
	}
	if req.wantStop {
		sc.state.RunSteps = agreed
		if sc.state.IsCanonical() {
			logrus.Infof("[step %07d] signal consensus reached: stopping at step %d", step, agreed)
		}
	}
	sc.pending = nil
	return nil
}
