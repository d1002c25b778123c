package heat

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/lockstep-sim/lockstep/sim"
	"github.com/lockstep-sim/lockstep/sim/collective"
	"github.com/lockstep-sim/lockstep/sim/interrupt"
	"github.com/lockstep-sim/lockstep/sim/period"
	"github.com/lockstep-sim/lockstep/sim/task"
)

// rankHarness is one rank's fully wired control loop around a real rod.
type rankHarness struct {
	rod    *Rod
	state  *sim.RunState
	driver *sim.Driver
}

func newRankHarness(t *testing.T, world *collective.World, rank int, runID uuid.UUID,
	cfg Config, steps uint64, ckptExpr, dir string, plan sim.RestartPlan) *rankHarness {
	t.Helper()

	state := sim.NewRunState(runID, rank, steps)
	stream := task.NewManager(1)
	rod := NewRod(cfg, rank, stream)
	dataComm := world.Comm(rank, "data")

	registry := sim.NewRegistry()
	energyAt, err := period.Resolve(cfg.EnergyPeriod)
	require.NoError(t, err)
	if !energyAt.Empty() {
		registry.Register(NewEnergyObserver(rod, dataComm), energyAt)
	}
	registry.Register(NewCheckpointObserver(rod), period.Set{})

	periods, err := period.Resolve(ckptExpr)
	require.NoError(t, err)
	sched := sim.NewCheckpointScheduler(state, sim.CollectiveComm{C: dataComm}, stream, registry, periods, dir)
	coord := sim.NewSignalCoordinator(state, sim.CollectiveComm{C: world.Comm(rank, "signal")},
		interrupt.NewSource(), sched)
	progress := sim.NewProgressReporter(io.Discard, 100, state)

	return &rankHarness{
		rod:    rod,
		state:  state,
		driver: sim.NewDriver(state, plan, rod, registry, sched, coord, stream, progress, 0),
	}
}

func runCohort(ranks []*rankHarness) error {
	var g errgroup.Group
	for _, r := range ranks {
		g.Go(r.driver.Run)
	}
	return g.Wait()
}

func TestRunConservesTotalHeatAcrossRanks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 11
	cfg.EnergyPeriod = "20"
	world := collective.NewWorld(2)
	runID := uuid.New()
	dir := filepath.Join(t.TempDir(), "ckpt")

	ranks := []*rankHarness{
		newRankHarness(t, world, 0, runID, cfg, 60, "", dir, sim.RestartPlan{}),
		newRankHarness(t, world, 1, runID, cfg, 60, "", dir, sim.RestartPlan{}),
	}
	require.NoError(t, runCohort(ranks))

	var want float64
	for r := 0; r < 2; r++ {
		want += newFilledRod(t, cfg, r).TotalHeat()
	}
	var got float64
	for _, rk := range ranks {
		require.NoError(t, rk.rod.Sync())
		got += rk.rod.TotalHeat()
		assert.Equal(t, uint64(60), rk.state.CurrentStep)
	}
	assert.InDelta(t, want, got, 1e-9)
}

func TestRestartRoundTripMatchesUninterruptedRun(t *testing.T) {
	// GIVEN a two-rank run that checkpointed at step 20 and ran through 40
	cfg := DefaultConfig()
	cfg.Seed = 5
	dir := filepath.Join(t.TempDir(), "ckpt")

	worldA := collective.NewWorld(2)
	runA := uuid.New()
	first := []*rankHarness{
		newRankHarness(t, worldA, 0, runA, cfg, 40, "20:20", dir, sim.RestartPlan{}),
		newRankHarness(t, worldA, 1, runA, cfg, 40, "20:20", dir, sim.RestartPlan{}),
	}
	require.NoError(t, runCohort(first))

	logged, err := sim.ReadCheckpointSteps(dir)
	require.NoError(t, err)
	require.Equal(t, []uint64{20}, logged)

	// WHEN a fresh cohort resumes from the recorded checkpoint
	plan, err := sim.ResolveRestart(sim.RestartConfig{TryRestart: true, Dir: dir, Step: -1})
	require.NoError(t, err)
	require.Equal(t, sim.RestartPlan{Step: 20, Resumed: true, Dir: dir}, plan)

	worldB := collective.NewWorld(2)
	runB := uuid.New()
	second := []*rankHarness{
		newRankHarness(t, worldB, 0, runB, cfg, 40, "20:20", dir, plan),
		newRankHarness(t, worldB, 1, runB, cfg, 40, "20:20", dir, plan),
	}
	require.NoError(t, runCohort(second))

	// THEN the resumed run lands on exactly the uninterrupted fields
	for r := 0; r < 2; r++ {
		require.NoError(t, first[r].rod.Sync())
		require.NoError(t, second[r].rod.Sync())
		assert.Equal(t, first[r].rod.Temperatures(), second[r].rod.Temperatures(), "rank %d", r)
	}
}

func TestDeviceFaultAbortsAtCheckpointFence(t *testing.T) {
	cfg := DefaultConfig()
	world := collective.NewWorld(1)
	dir := filepath.Join(t.TempDir(), "ckpt")

	rk := newRankHarness(t, world, 0, uuid.New(), cfg, 20, "10:10", dir, sim.RestartPlan{})
	rk.rod.faultStep = 7

	err := rk.driver.Run()
	require.ErrorContains(t, err, "device fault computing step 7")

	logged, readErr := sim.ReadCheckpointSteps(dir)
	require.NoError(t, readErr)
	assert.Empty(t, logged, "a failed cohort must not record a checkpoint")
}
