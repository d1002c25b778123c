// Package sim is the control loop of a distributed lockstep simulation:
// every rank computes the same step sequence, synchronized through
// collective operations, with durable periodic checkpoints and
// signal-driven graceful shutdown.
//
// # Reading Guide
//
// Start with these three files to understand the loop:
//   - driver.go: the per-rank iteration state machine and its ordering
//     guarantees (compute, advance, signals, observers, checkpoint)
//   - checkpoint.go: when a checkpoint is due and the drain/fence
//     protocol that makes the checkpoint log trustworthy
//   - signal_coordinator.go: the consensus protocol that turns an
//     asynchronous per-rank request into one agreed action step
//
// # Architecture
//
// The sim package defines the interfaces the loop consumes (hooks.go);
// implementations live in sub-packages:
//   - sim/collective/: in-process barrier and reduction transport
//   - sim/task/: the background work pool the drain points wait on
//   - sim/interrupt/: POSIX signal capture behind SignalSource
//   - sim/period/: the trigger-step expression grammar
//   - sim/heat/: a complete demo simulation wired through all of it
//
// The Driver is assembled by composition: the concrete simulation, the
// communicators, the signal source and the observers are constructed
// once at startup and injected, never looked up through globals.
package sim
