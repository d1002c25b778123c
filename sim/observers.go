package sim

import (
	"fmt"

	"github.com/lockstep-sim/lockstep/sim/period"
)

// Observer is the unit everything observable about a run hangs off:
// diagnostics, output writers, checkpoint serializers. The Driver calls
// Notify on the observer's own cadence; the checkpoint machinery calls
// Checkpoint and Restart on every registered observer regardless of
// cadence.
type Observer interface {
	Name() string
	// Notify runs the observer's periodic work for step.
	Notify(step uint64) error
	// Checkpoint serializes the observer's state for step into dir.
	Checkpoint(step uint64, dir string) error
	// Restart reloads the state checkpointed at step from dir.
	Restart(step uint64, dir string) error
}

// Registry holds a run's observers together with their notify cadences.
// All passes tolerate an empty registry.
type Registry struct {
	entries []registryEntry
}

type registryEntry struct {
	obs      Observer
	notifyAt period.Set
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds obs with its notify cadence. An empty set means obs is
// notified at every step.
func (r *Registry) Register(obs Observer, notifyAt period.Set) {
	r.entries = append(r.entries, registryEntry{obs: obs, notifyAt: notifyAt})
}

// NotifyAll notifies every observer whose cadence matches step, in
// registration order. The first error aborts the pass.
func (r *Registry) NotifyAll(step uint64) error {
	for _, e := range r.entries {
		if !e.notifyAt.Empty() && !e.notifyAt.Contains(step) {
			continue
		}
		if err := e.obs.Notify(step); err != nil {
			return fmt.Errorf("observer %s: notify step %d: %w", e.obs.Name(), step, err)
		}
	}
	return nil
}

// CheckpointAll asks every observer to serialize its state for step into
// dir.
func (r *Registry) CheckpointAll(step uint64, dir string) error {
	for _, e := range r.entries {
		if err := e.obs.Checkpoint(step, dir); err != nil {
			return fmt.Errorf("observer %s: checkpoint step %d: %w", e.obs.Name(), step, err)
		}
	}
	return nil
}

// RestartAll asks every observer to reload the state it checkpointed at
// step from dir.
func (r *Registry) RestartAll(step uint64, dir string) error {
	for _, e := range r.entries {
		if err := e.obs.Restart(step, dir); err != nil {
			return fmt.Errorf("observer %s: restart step %d: %w", e.obs.Name(), step, err)
		}
	}
	return nil
}
