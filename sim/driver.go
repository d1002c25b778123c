package sim

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Driver owns the iteration state machine of one rank: reset and fill,
// the per-step sequence, optional soft restarts of the whole run, and
// orderly termination.
//
// Within one iteration the order is fixed: compute step N, advance the
// counter to N+1, moving-window check, signal-consensus advance,
// observer notification, checkpoint decision, progress report. Observers
// always run strictly before the checkpoint decision for the same step,
// so an observer can rely on its output for step N+1 being captured when
// that step checkpoints.
type Driver struct {
	state        *RunState
	plan         RestartPlan
	simulation   Simulation
	observers    *Registry
	scheduler    *CheckpointScheduler
	signals      *SignalCoordinator
	pool         WorkPool
	progress     *ProgressReporter
	softRestarts uint64
}

// NewDriver wires the control loop for one rank. softRestarts is the
// number of extra full rounds after the first one.
func NewDriver(state *RunState, plan RestartPlan, simulation Simulation, observers *Registry,
	scheduler *CheckpointScheduler, signals *SignalCoordinator, pool WorkPool,
	progress *ProgressReporter, softRestarts uint64) *Driver {
	if state == nil || simulation == nil || observers == nil || scheduler == nil ||
		signals == nil || pool == nil || progress == nil {
		panic("sim: NewDriver requires all collaborators")
	}
	return &Driver{
		state:        state,
		plan:         plan,
		simulation:   simulation,
		observers:    observers,
		scheduler:    scheduler,
		signals:      signals,
		pool:         pool,
		progress:     progress,
		softRestarts: softRestarts,
	}
}

// Run executes the whole run: the initial round plus the configured soft
// restarts, each replaying fill and the full step sequence. The first
// error ends the run.
func (d *Driver) Run() error {
	for round := uint64(0); ; round++ {
		if err := d.runOnce(round); err != nil {
			return err
		}
		if round == d.softRestarts {
			return nil
		}
		if d.state.IsCanonical() {
			logrus.Infof("soft restart %d of %d", round+1, d.softRestarts)
		}
	}
}

func (d *Driver) runOnce(round uint64) error {
	tInit := time.Now()

	if err := d.simulation.ResetTo(0); err != nil {
		return fmt.Errorf("reset for round %d: %w", round, err)
	}
	start, err := d.simulation.Fill(d.plan)
	if err != nil {
		return fmt.Errorf("fill: %w", err)
	}
	d.state.CurrentStep = start
	if d.plan.Resumed {
		if err := d.observers.RestartAll(d.plan.Step, d.plan.Dir); err != nil {
			return err
		}
	}

	d.progress.ReportInit(time.Since(tInit))
	d.progress.StartRound(start)

	// The starting step gets the same window check every later step
	// gets after its advance.
	if err := d.simulation.CheckWindow(start); err != nil {
		return fmt.Errorf("window check at step %d: %w", start, err)
	}
	if !d.plan.Resumed {
		// A fresh start gives step 0 the same signal, notify and
		// checkpoint pass as every step the loop reaches. A resumed
		// round skips it: the reloaded step already had its pass in the
		// run that wrote the checkpoint.
		if err := d.signals.Advance(start); err != nil {
			return err
		}
		if err := d.observers.NotifyAll(start); err != nil {
			return err
		}
		if d.scheduler.ShouldCheckpoint(start) {
			if err := d.scheduler.Perform(start); err != nil {
				return err
			}
		}
	}
	d.progress.MaybeReport(start)

	for d.state.CurrentStep < d.state.RunSteps {
		step := d.state.CurrentStep
		if err := d.simulation.AdvanceOneStep(step); err != nil {
			return fmt.Errorf("advance step %d: %w", step, err)
		}
		d.state.CurrentStep = step + 1

		if err := d.simulation.CheckWindow(d.state.CurrentStep); err != nil {
			return fmt.Errorf("window check at step %d: %w", d.state.CurrentStep, err)
		}
		if err := d.signals.Advance(d.state.CurrentStep); err != nil {
			return err
		}
		if err := d.observers.NotifyAll(d.state.CurrentStep); err != nil {
			return err
		}
		if d.scheduler.ShouldCheckpoint(d.state.CurrentStep) {
			if err := d.scheduler.Perform(d.state.CurrentStep); err != nil {
				return err
			}
		}
		d.progress.MaybeReport(d.state.CurrentStep)
	}

	// Nothing may still be running when the round ends or the next one
	// resets state under it.
	if err := d.pool.Drain(); err != nil {
		return fmt.Errorf("end-of-round drain: %w", err)
	}
	d.progress.RoundDone()
	return nil
}
