package sim

import (
	"fmt"
	"io"
	"time"
)

// ProgressReporter prints the human-readable progress of a run at a
// percentage cadence. It is observational only: nothing in the control
// flow depends on it, and non-canonical ranks are wired with io.Discard.
type ProgressReporter struct {
	out     io.Writer
	state   *RunState
	cadence uint64

	now        func() time.Time
	roundStart time.Time
	lastReport time.Time
	lastStep   uint64
}

// NewProgressReporter builds a reporter printing every percent of the
// run. A percent of 0 or above 100 reports only at the end. The cadence
// is fixed from the run bound at construction time; a stop consensus
// shrinking the bound later does not change it.
func NewProgressReporter(out io.Writer, percent uint64, state *RunState) *ProgressReporter {
	if state == nil {
		panic("sim: NewProgressReporter requires a run state")
	}
	if percent == 0 || percent > 100 {
		percent = 100
	}
	cadence := state.RunSteps * percent / 100
	if cadence == 0 {
		cadence = 1
	}
	return &ProgressReporter{
		out:     out,
		state:   state,
		cadence: cadence,
		now:     time.Now,
	}
}

// Cadence returns the report interval in steps.
func (p *ProgressReporter) Cadence() uint64 {
	return p.cadence
}

// ReportInit prints the time one round spent in reset and fill.
func (p *ProgressReporter) ReportInit(d time.Duration) {
	fmt.Fprintf(p.out, "initialization time: %s\n", d.Round(time.Millisecond))
}

// StartRound marks the beginning of a round's timed section.
func (p *ProgressReporter) StartRound(startStep uint64) {
	t := p.now()
	p.roundStart = t
	p.lastReport = t
	p.lastStep = startStep
}

// MaybeReport prints a progress line when step falls on the cadence.
func (p *ProgressReporter) MaybeReport(step uint64) {
	if step%p.cadence != 0 {
		return
	}
	t := p.now()
	elapsed := t.Sub(p.roundStart)
	var avg time.Duration
	if steps := step - p.lastStep; steps > 0 {
		avg = t.Sub(p.lastReport) / time.Duration(steps)
	}
	var pct uint64
	if p.state.RunSteps > 0 {
		pct = step * 100 / p.state.RunSteps
	}
	fmt.Fprintf(p.out, "%3d %% = %8d | time elapsed: %12s | avg time per step: %s\n",
		pct, step, elapsed.Round(time.Millisecond), avg.Round(time.Microsecond))
	p.lastReport = t
	p.lastStep = step
}

// RoundDone prints the computation time of one finished round.
func (p *ProgressReporter) RoundDone() {
	fmt.Fprintf(p.out, "calculation simulation time: %s\n", p.now().Sub(p.roundStart).Round(time.Millisecond))
}
