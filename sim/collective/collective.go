// Package collective provides the cross-rank communication primitives the
// control loop synchronizes through: strict barriers and reductions over a
// fixed cohort of in-process ranks.
//
// Operations are keyed by a named channel. Collectives on different channels
// are completely independent, which lets callers reserve a dedicated channel
// for rare control-plane traffic (signal consensus) so it can never pair up
// with ordinary data collectives issued at unrelated times.
//
// There are no timeouts: a rank that never enters a barrier or reduction
// blocks the rest of the cohort indefinitely. The execution model assumes
// all ranks stay alive and make progress together.
package collective

import (
	"fmt"
	"sync"
)

// World connects a fixed set of ranks known at startup. One World is shared
// by all ranks of a run; each rank interacts with it through Comm handles.
type World struct {
	size int

	mu       sync.Mutex
	channels map[string]*commChannel
}

// NewWorld creates a World for the given cohort size.
// Panics if size < 1.
func NewWorld(size int) *World {
	if size < 1 {
		panic("collective: World size must be >= 1")
	}
	return &World{
		size:     size,
		channels: make(map[string]*commChannel),
	}
}

// Size returns the number of ranks in the cohort.
func (w *World) Size() int {
	return w.size
}

// Comm returns rank's handle on the named channel, creating the channel on
// first use. Panics if rank is outside [0, size).
func (w *World) Comm(rank int, channel string) *Comm {
	if rank < 0 || rank >= w.size {
		panic(fmt.Sprintf("collective: rank %d outside world of size %d", rank, w.size))
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	ch, ok := w.channels[channel]
	if !ok {
		ch = newCommChannel(channel, w.size)
		w.channels[channel] = ch
	}
	return &Comm{world: w, ch: ch, rank: rank}
}

// Comm is one rank's handle on one channel of a World.
type Comm struct {
	world *World
	ch    *commChannel
	rank  int
}

// Rank returns the rank this handle belongs to.
func (c *Comm) Rank() int { return c.rank }

// Size returns the cohort size.
func (c *Comm) Size() int { return c.world.size }

// Channel returns the channel name this handle operates on.
func (c *Comm) Channel() string { return c.ch.name }

// Barrier blocks until every rank of the cohort has called Barrier on this
// channel, then releases all of them. No rank proceeds until all have
// arrived.
func (c *Comm) Barrier() error {
	c.ch.barrier()
	return nil
}

// StartMaxReduction begins a non-blocking maximum reduction over one uint64
// per rank. The returned handle completes once every rank has contributed
// its value on this channel. Successive reductions on one channel pair up
// by per-rank issue order, so all ranks must issue the same operations in
// the same order per channel.
func (c *Comm) StartMaxReduction(value uint64) (*MaxReduction, error) {
	op, err := c.ch.join(c.rank, opMax, value, 0)
	if err != nil {
		return nil, err
	}
	return &MaxReduction{op: op}, nil
}

// StartSumReduction begins a non-blocking sum reduction over one float64
// per rank. Like StartMaxReduction, the handle completes once every rank
// has contributed on this channel, and reductions pair up by per-rank
// issue order.
func (c *Comm) StartSumReduction(value float64) (*SumReduction, error) {
	op, err := c.ch.join(c.rank, opSum, 0, value)
	if err != nil {
		return nil, err
	}
	return &SumReduction{op: op}, nil
}

// SumFloat64 performs a blocking sum reduction over one float64 per rank
// and returns the cohort-wide total to every rank. Only safe at points
// where every rank is known to reach the same call.
func (c *Comm) SumFloat64(value float64) (float64, error) {
	red, err := c.StartSumReduction(value)
	if err != nil {
		return 0, err
	}
	<-red.Done()
	return red.op.sum, nil
}

// MaxReduction is the completion handle of a non-blocking max reduction.
type MaxReduction struct {
	op *reduceOp
}

// Poll reports, without blocking, whether the reduction has completed.
func (r *MaxReduction) Poll() bool {
	select {
	case <-r.op.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once the reduction completes.
func (r *MaxReduction) Done() <-chan struct{} {
	return r.op.done
}

// Result returns the cohort-wide maximum. It is an error to call Result
// before the reduction has completed.
func (r *MaxReduction) Result() (uint64, error) {
	select {
	case <-r.op.done:
		return r.op.max, nil
	default:
		return 0, fmt.Errorf("collective: reduction on channel %q not yet complete", r.op.channel)
	}
}

// SumReduction is the completion handle of a non-blocking sum reduction.
type SumReduction struct {
	op *reduceOp
}

// Poll reports, without blocking, whether the reduction has completed.
func (r *SumReduction) Poll() bool {
	select {
	case <-r.op.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once the reduction completes.
func (r *SumReduction) Done() <-chan struct{} {
	return r.op.done
}

// Result returns the cohort-wide sum. It is an error to call Result
// before the reduction has completed.
func (r *SumReduction) Result() (float64, error) {
	select {
	case <-r.op.done:
		return r.op.sum, nil
	default:
		return 0, fmt.Errorf("collective: reduction on channel %q not yet complete", r.op.channel)
	}
}

type opKind int

const (
	opMax opKind = iota + 1
	opSum
)

func (k opKind) String() string {
	switch k {
	case opMax:
		return "max"
	case opSum:
		return "sum"
	default:
		return "unknown"
	}
}

// reduceOp accumulates one reduction across the cohort. done is closed by
// the final contributor; the result fields are immutable afterwards.
type reduceOp struct {
	channel string
	kind    opKind
	joined  int
	max     uint64
	sum     float64
	done    chan struct{}
}

// commChannel holds the per-channel synchronization state: a generation
// counted barrier and the pending reductions keyed by issue sequence.
type commChannel struct {
	name string
	size int

	mu   sync.Mutex
	cond *sync.Cond

	barrierGen   uint64
	barrierCount int

	ops     map[uint64]*reduceOp
	nextSeq []uint64
}

func newCommChannel(name string, size int) *commChannel {
	ch := &commChannel{
		name:    name,
		size:    size,
		ops:     make(map[uint64]*reduceOp),
		nextSeq: make([]uint64, size),
	}
	ch.cond = sync.NewCond(&ch.mu)
	return ch
}

func (ch *commChannel) barrier() {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	gen := ch.barrierGen
	ch.barrierCount++
	if ch.barrierCount == ch.size {
		// Last arrival releases the cohort and opens the next generation.
		ch.barrierCount = 0
		ch.barrierGen++
		ch.cond.Broadcast()
		return
	}
	for ch.barrierGen == gen {
		ch.cond.Wait()
	}
}

// join adds rank's contribution to its next reduction on this channel,
// creating the operation if this rank is first to reach it. A kind mismatch
// against an already-open operation is a transport error: it means two
// different collectives raced onto the same channel.
func (ch *commChannel) join(rank int, kind opKind, maxVal uint64, sumVal float64) (*reduceOp, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	seq := ch.nextSeq[rank]
	op, ok := ch.ops[seq]
	if !ok {
		op = &reduceOp{channel: ch.name, kind: kind, done: make(chan struct{})}
		ch.ops[seq] = op
	}
	if op.kind != kind {
		return nil, fmt.Errorf(
			"collective: %s reduction from rank %d collides with pending %s reduction on channel %q",
			kind, rank, op.kind, ch.name)
	}
	ch.nextSeq[rank] = seq + 1

	if maxVal > op.max {
		op.max = maxVal
	}
	op.sum += sumVal
	op.joined++
	if op.joined == ch.size {
		delete(ch.ops, seq)
		close(op.done)
	}
	return op, nil
}
