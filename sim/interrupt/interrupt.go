// Package interrupt captures POSIX control signals and latches them as
// checkpoint and stop requests a run can pick up between steps.
//
// Requests stay latched until Clear is called, so a signal delivered while
// an earlier request is still being negotiated across ranks is folded into
// that negotiation instead of being lost.
package interrupt

import (
	"os"
	"os/signal"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Source latches control signals delivered to the process.
//
//	SIGUSR1          checkpoint at the next agreed step
//	SIGUSR2          checkpoint, then stop
//	SIGINT/TERM/HUP  stop without a checkpoint
type Source struct {
	checkpoint atomic.Bool
	stop       atomic.Bool

	ch   chan os.Signal
	done chan struct{}
}

// NewSource returns an inert Source. Nothing is captured until Notify.
func NewSource() *Source {
	return &Source{}
}

// Notify registers the control signals and starts capturing them. Calling
// Notify on an already listening Source is a no-op.
func (s *Source) Notify() {
	if s.ch != nil {
		return
	}
	s.ch = make(chan os.Signal, 8)
	s.done = make(chan struct{})
	signal.Notify(s.ch, unix.SIGUSR1, unix.SIGUSR2, unix.SIGINT, unix.SIGTERM, unix.SIGHUP)
	go s.capture()
}

func (s *Source) capture() {
	for {
		select {
		case sig := <-s.ch:
			s.apply(sig)
		case <-s.done:
			return
		}
	}
}

// apply latches the request encoded by sig. Unrecognized signals are
// dropped.
func (s *Source) apply(sig os.Signal) {
	switch sig {
	case unix.SIGUSR1:
		s.checkpoint.Store(true)
	case unix.SIGUSR2:
		s.checkpoint.Store(true)
		s.stop.Store(true)
	case unix.SIGINT, unix.SIGTERM, unix.SIGHUP:
		s.stop.Store(true)
	default:
		return
	}
	logrus.Infof("captured %v: checkpoint=%t stop=%t", sig, s.checkpoint.Load(), s.stop.Load())
}

// Close stops signal capture. Requests latched before Close stay readable.
func (s *Source) Close() {
	if s.ch == nil {
		return
	}
	signal.Stop(s.ch)
	close(s.done)
	s.ch = nil
}

// CheckpointRequested reports whether a checkpoint request is latched.
func (s *Source) CheckpointRequested() bool { return s.checkpoint.Load() }

// StopRequested reports whether a stop request is latched.
func (s *Source) StopRequested() bool { return s.stop.Load() }

// Pending reports whether any request is latched.
func (s *Source) Pending() bool { return s.checkpoint.Load() || s.stop.Load() }

// Clear drops latched requests so later signals register as new ones.
func (s *Source) Clear() {
	s.checkpoint.Store(false)
	s.stop.Store(false)
}
