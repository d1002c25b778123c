package heat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/lockstep-sim/lockstep/sim/collective"
)

// snapshot is the JSON payload of one rank's checkpoint file.
type snapshot struct {
	Step  uint64    `json:"step"`
	Rank  int       `json:"rank"`
	Cells int       `json:"cells"`
	Temps []float64 `json:"temps"`
}

func snapshotName(step uint64, rank int) string {
	return fmt.Sprintf("heat_%07d_rank%d.json", step, rank)
}

// CheckpointObserver persists one rank's rod as a JSON snapshot per
// checkpoint and reloads it on restart. Field values round-trip exactly:
// the JSON encoder emits the shortest representation that parses back to
// the same float64.
type CheckpointObserver struct {
	rod *Rod
}

// NewCheckpointObserver builds the serializer for rod.
func NewCheckpointObserver(rod *Rod) *CheckpointObserver {
	if rod == nil {
		panic("heat: NewCheckpointObserver requires a rod")
	}
	return &CheckpointObserver{rod: rod}
}

func (o *CheckpointObserver) Name() string { return "heat-checkpoint" }

func (o *CheckpointObserver) Notify(step uint64) error { return nil }

// Checkpoint writes the rod's field for step into dir.
func (o *CheckpointObserver) Checkpoint(step uint64, dir string) error {
	if err := o.rod.Sync(); err != nil {
		return fmt.Errorf("sync before snapshot: %w", err)
	}
	data, err := json.Marshal(snapshot{
		Step:  step,
		Rank:  o.rod.rank,
		Cells: o.rod.cells,
		Temps: o.rod.temps,
	})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	path := filepath.Join(dir, snapshotName(step, o.rod.rank))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Restart reloads the field checkpointed at step from dir.
func (o *CheckpointObserver) Restart(step uint64, dir string) error {
	path := filepath.Join(dir, snapshotName(step, o.rod.rank))
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	if err := o.rod.restore(snap.Temps); err != nil {
		return fmt.Errorf("snapshot %s: %w", path, err)
	}
	return nil
}

// EnergyObserver reports the cohort-wide total heat at its notify cadence.
//
// The reduction is non-blocking: a blocking all-reduce inside the step
// loop could wait on a rank parked at its signal settle step, and the two
// waits would never resolve each other. Every rank opens a reduction at
// every cadence step, completed ones are folded in first, so reports
// trail their step by up to one cadence interval.
type EnergyObserver struct {
	rod  *Rod
	comm *collective.Comm

	pending []pendingSum
}

type pendingSum struct {
	step uint64
	red  *collective.SumReduction
}

// NewEnergyObserver builds the reporter for rod. comm must be the data
// channel shared by the rank's other data-plane collectives.
func NewEnergyObserver(rod *Rod, comm *collective.Comm) *EnergyObserver {
	if rod == nil || comm == nil {
		panic("heat: NewEnergyObserver requires a rod and a comm")
	}
	return &EnergyObserver{rod: rod, comm: comm}
}

func (o *EnergyObserver) Name() string { return "heat-energy" }

// Notify folds in completed reductions, then opens one for step.
func (o *EnergyObserver) Notify(step uint64) error {
	if err := o.flush(); err != nil {
		return err
	}
	if err := o.rod.Sync(); err != nil {
		return fmt.Errorf("sync before energy read: %w", err)
	}
	red, err := o.comm.StartSumReduction(o.rod.TotalHeat())
	if err != nil {
		return fmt.Errorf("start energy reduction: %w", err)
	}
	o.pending = append(o.pending, pendingSum{step: step, red: red})
	return nil
}

// flush reports every completed reduction at the head of the queue.
// Reductions complete in issue order, so stopping at the first open one
// never strands a completed report behind it.
func (o *EnergyObserver) flush() error {
	for len(o.pending) > 0 {
		head := o.pending[0]
		if !head.red.Poll() {
			return nil
		}
		total, err := head.red.Result()
		if err != nil {
			return err
		}
		if o.comm.Rank() == 0 {
			logrus.Infof("[step %07d] total heat %.6f", head.step, total)
		}
		o.pending = o.pending[1:]
	}
	return nil
}

// Checkpoint flushes reports whose reductions completed behind the
// cohort fence. The snapshot itself is the CheckpointObserver's job.
func (o *EnergyObserver) Checkpoint(step uint64, dir string) error {
	return o.flush()
}

func (o *EnergyObserver) Restart(step uint64, dir string) error { return nil }
