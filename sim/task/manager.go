// Package task runs a rank's background work (accelerator kernels, deferred
// I/O) off the control goroutine and tracks its completion. The control loop
// only ever blocks on this work at designated drain points; everywhere else
// it checks completion without waiting.
package task

import (
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Manager owns one rank's pool of asynchronous work.
//
// The first error returned by any submitted function is sticky: once a task
// has failed, Drain reports that error on every subsequent call. A failed
// accelerator never recovers within a run, so callers treat the first Drain
// error as fatal.
type Manager struct {
	group   errgroup.Group
	pending atomic.Int64
}

// NewManager creates a Manager. A limit > 0 bounds how many submitted
// functions run concurrently; Go blocks while the limit is saturated.
// A limit of 0 means unbounded.
func NewManager(limit int) *Manager {
	m := &Manager{}
	if limit > 0 {
		m.group.SetLimit(limit)
	}
	return m
}

// Go submits fn to run in the background. With a concurrency limit set,
// Go blocks until a slot frees up, so a single submitting goroutine sees
// its functions start in submission order.
func (m *Manager) Go(fn func() error) {
	m.pending.Add(1)
	m.group.Go(func() error {
		defer m.pending.Add(-1)
		return fn()
	})
}

// Drain blocks until all outstanding work has completed and returns the
// first error any task has ever produced. It is safe to submit more work
// after Drain returns.
func (m *Manager) Drain() error {
	return m.group.Wait()
}

// Idle reports, without blocking, whether no submitted work is outstanding.
// A true result does not imply all work succeeded; only Drain reports errors.
func (m *Manager) Idle() bool {
	return m.pending.Load() == 0
}
