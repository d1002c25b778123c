// Package heat is the bundled demo simulation: each rank owns a one
// dimensional heat rod advanced by an explicit Euler update. The rod is
// deliberately tiny; its job is to exercise the full control loop
// (asynchronous kernels, checkpoint round trips, cross-rank energy
// reports) with physics simple enough to verify by hand.
package heat

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"

	"gopkg.in/yaml.v3"

	"github.com/lockstep-sim/lockstep/sim"
	"github.com/lockstep-sim/lockstep/sim/period"
)

// Config is the simulation section of the run configuration.
type Config struct {
	Cells           int     `yaml:"cells"`                   // rod length in cells
	DiffusionNumber float64 `yaml:"diffusion_number"`        // r = alpha*dt/dx^2, stable for r <= 0.5
	Seed            int64   `yaml:"seed"`                    // shared initial-profile seed
	EnergyPeriod    string  `yaml:"energy_period,omitempty"` // period expression for energy reports
}

// DefaultConfig returns the demo defaults: a 64-cell rod at the stability
// limit and no energy reports.
func DefaultConfig() Config {
	return Config{Cells: 64, DiffusionNumber: 0.25}
}

// ConfigFromNode decodes the pass-through simulation section over the
// defaults. An absent section yields the defaults.
func ConfigFromNode(node *yaml.Node) (Config, error) {
	cfg := DefaultConfig()
	if node == nil || node.IsZero() {
		return cfg, nil
	}
	if err := node.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing simulation config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration against the scheme's stability bounds.
func (c Config) Validate() error {
	if c.Cells < 3 {
		return fmt.Errorf("cells must be >= 3, got %d", c.Cells)
	}
	if c.DiffusionNumber <= 0 || c.DiffusionNumber > 0.5 {
		return fmt.Errorf("diffusion_number must be in (0, 0.5], got %g", c.DiffusionNumber)
	}
	if _, err := period.Resolve(c.EnergyPeriod); err != nil {
		return fmt.Errorf("energy_period: %w", err)
	}
	return nil
}

// Rod is one rank's segment of the simulated medium. Kernels run on the
// rank's device stream, a concurrency-1 pool shared with the control
// loop's drain points; the field arrays must only be read after Sync.
type Rod struct {
	rank   int
	cells  int
	r      float64
	seed   int64
	stream sim.WorkPool

	temps   []float64
	scratch []float64

	lastWindow uint64
	faultStep  int64 // step whose kernel fails, -1 when disabled
}

// NewRod builds rank's rod on the given device stream. The stream must be
// the same pool the rank's control loop drains, or checkpoint fences will
// not cover in-flight kernels.
func NewRod(cfg Config, rank int, stream sim.WorkPool) *Rod {
	if stream == nil {
		panic("heat: NewRod requires a device stream")
	}
	return &Rod{
		rank:      rank,
		cells:     cfg.Cells,
		r:         cfg.DiffusionNumber,
		seed:      cfg.Seed,
		stream:    stream,
		temps:     make([]float64, cfg.Cells),
		scratch:   make([]float64, cfg.Cells),
		faultStep: -1,
	}
}

// Fill prepares the field for a round. Fresh runs seed the initial
// profile and start at step 0; resumed runs leave the field for the
// checkpoint observer to reload and report the reloaded step.
func (r *Rod) Fill(plan sim.RestartPlan) (uint64, error) {
	if plan.Resumed {
		return plan.Step, nil
	}
	rng := rankRand(r.seed, r.rank)
	center := float64(r.cells)/2 + (rng.Float64()-0.5)*float64(r.cells)/8
	width := float64(r.cells) / 8
	amp := 3 + rng.Float64()
	for i := range r.temps {
		d := (float64(i) - center) / width
		r.temps[i] = 1 + amp*math.Exp(-d*d)
	}
	return 0, nil
}

// rankRand derives rank's deterministic generator from the shared seed,
// so equal seeds reproduce bit-identical initial fields rank by rank.
func rankRand(seed int64, rank int) *rand.Rand {
	h := fnv.New64a()
	fmt.Fprintf(h, "rank_%d", rank)
	return rand.New(rand.NewSource(seed ^ int64(h.Sum64())))
}

// AdvanceOneStep queues the stencil kernel for step on the device stream
// and returns without waiting for it. A queued fault surfaces at the next
// drain point, the way a dead accelerator would.
func (r *Rod) AdvanceOneStep(step uint64) error {
	fail := r.faultStep >= 0 && uint64(r.faultStep) == step
	r.stream.Go(func() error {
		if fail {
			return fmt.Errorf("device fault computing step %d", step)
		}
		r.kernel()
		return nil
	})
	return nil
}

// kernel applies one explicit Euler update in flux form. The boundary
// fluxes are zero (insulated ends), so the fluxes telescope and the total
// heat stays constant up to rounding.
func (r *Rod) kernel() {
	t, next := r.temps, r.scratch
	n := len(t)
	for i := range t {
		var left, right float64
		if i > 0 {
			left = t[i] - t[i-1]
		}
		if i < n-1 {
			right = t[i+1] - t[i]
		}
		next[i] = t[i] + r.r*(right-left)
	}
	r.temps, r.scratch = next, t
}

// ResetTo clears the field back to its pre-fill state. The rod only
// supports full resets.
func (r *Rod) ResetTo(step uint64) error {
	if step != 0 {
		return fmt.Errorf("heat: can only reset to step 0, got %d", step)
	}
	for i := range r.temps {
		r.temps[i] = 0
		r.scratch[i] = 0
	}
	r.lastWindow = 0
	return nil
}

// CheckWindow records the poll. The rod's frame never moves, so this is
// bookkeeping only.
func (r *Rod) CheckWindow(step uint64) error {
	r.lastWindow = step
	return nil
}

// Sync blocks until every queued kernel has retired and returns the first
// kernel error, if any. Readers of the field must sync first.
func (r *Rod) Sync() error {
	return r.stream.Drain()
}

// TotalHeat returns the field sum of this rank's rod. Sync first.
func (r *Rod) TotalHeat() float64 {
	var sum float64
	for _, v := range r.temps {
		sum += v
	}
	return sum
}

// Temperatures returns a copy of the field. Sync first.
func (r *Rod) Temperatures() []float64 {
	out := make([]float64, len(r.temps))
	copy(out, r.temps)
	return out
}

// restore replaces the field with a reloaded snapshot.
func (r *Rod) restore(temps []float64) error {
	if len(temps) != r.cells {
		return fmt.Errorf("snapshot has %d cells, rod has %d", len(temps), r.cells)
	}
	copy(r.temps, temps)
	return nil
}
