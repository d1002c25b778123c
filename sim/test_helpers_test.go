package sim

import (
	"errors"
	"fmt"
)

// journal records what happened in which order, so tests can assert the
// driver's per-iteration sequence instead of just call counts.
type journal struct {
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

// fakeSimulation implements Simulation and records every hook call.
// onAdvance, when set, runs during the step-compute hook; tests use it to
// latch signal flags at a chosen step.
type fakeSimulation struct {
	journal  *journal
	resets   []uint64
	fills    []RestartPlan
	advanced []uint64
	windows  []uint64

	onAdvance     func(step uint64)
	failAdvanceAt int64 // step at which AdvanceOneStep fails, -1 = never
}

func newFakeSimulation(j *journal) *fakeSimulation {
	return &fakeSimulation{journal: j, failAdvanceAt: -1}
}

func (f *fakeSimulation) Fill(plan RestartPlan) (uint64, error) {
	f.fills = append(f.fills, plan)
	if plan.Resumed {
		return plan.Step, nil
	}
	return 0, nil
}

func (f *fakeSimulation) AdvanceOneStep(step uint64) error {
	f.advanced = append(f.advanced, step)
	f.journal.add("advance %d", step)
	if f.onAdvance != nil {
		f.onAdvance(step)
	}
	if f.failAdvanceAt >= 0 && uint64(f.failAdvanceAt) == step {
		return errors.New("injected device fault")
	}
	return nil
}

func (f *fakeSimulation) ResetTo(step uint64) error {
	f.resets = append(f.resets, step)
	f.journal.add("reset %d", step)
	return nil
}

func (f *fakeSimulation) CheckWindow(step uint64) error {
	f.windows = append(f.windows, step)
	f.journal.add("window %d", step)
	return nil
}

// stubSource is a SignalSource whose flags tests set directly.
type stubSource struct {
	checkpoint bool
	stop       bool
	clears     int
}

func (s *stubSource) Pending() bool             { return s.checkpoint || s.stop }
func (s *stubSource) CheckpointRequested() bool { return s.checkpoint }
func (s *stubSource) StopRequested() bool       { return s.stop }

func (s *stubSource) Clear() {
	s.checkpoint = false
	s.stop = false
	s.clears++
}

// recordingObserver journals notifications, checkpoints and restarts.
type recordingObserver struct {
	name     string
	journal  *journal
	notified []uint64
	checked  []uint64
	restored []uint64

	failCheckpointAt int64 // step at which Checkpoint fails, -1 = never
}

func newRecordingObserver(name string, j *journal) *recordingObserver {
	return &recordingObserver{name: name, journal: j, failCheckpointAt: -1}
}

func (o *recordingObserver) Name() string { return o.name }

func (o *recordingObserver) Notify(step uint64) error {
	o.notified = append(o.notified, step)
	o.journal.add("notify %d", step)
	return nil
}

func (o *recordingObserver) Checkpoint(step uint64, dir string) error {
	if o.failCheckpointAt >= 0 && uint64(o.failCheckpointAt) == step {
		return errors.New("injected write fault")
	}
	o.checked = append(o.checked, step)
	o.journal.add("checkpoint %d", step)
	return nil
}

func (o *recordingObserver) Restart(step uint64, dir string) error {
	o.restored = append(o.restored, step)
	o.journal.add("restart %d", step)
	return nil
}
