package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lockstep-sim/lockstep/sim"
	"github.com/lockstep-sim/lockstep/sim/collective"
	"github.com/lockstep-sim/lockstep/sim/heat"
	"github.com/lockstep-sim/lockstep/sim/interrupt"
	"github.com/lockstep-sim/lockstep/sim/period"
	"github.com/lockstep-sim/lockstep/sim/task"
)

var (
	// CLI flags for the control loop
	configPath       string // Path to a YAML run configuration
	steps            uint64 // Number of steps to compute
	softRestarts     uint64 // Extra full rounds after the first
	ranks            int    // Number of in-process ranks
	progressPercent  uint64 // Progress report cadence in percent of the run
	checkpointPeriod string // Period expression for periodic checkpoints
	checkpointDir    string // Checkpoint storage directory
	doRestart        bool   // Require a resumable checkpoint
	tryRestart       bool   // Resume if a checkpoint exists, else start fresh
	restartDir       string // Directory holding the checkpoint log to resume from
	restartStep      int64  // Exact step to resume, -1 = most recent

	// CLI flags for the bundled heat simulation
	cells        int    // Rod length in cells per rank
	energyPeriod string // Period expression for total-heat reports
)

// runCmd executes a simulation run. The configuration file provides the
// baseline; flags changed on the command line win over it.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the lockstep simulation",
	Run: func(cmd *cobra.Command, args []string) {
		configureLogging()

		cfg := sim.DefaultRunConfig()
		if configPath != "" {
			loaded, err := sim.LoadRunConfig(configPath)
			if err != nil {
				logrus.Fatalf("Unable to read run config: %v", err)
			}
			cfg = *loaded
		}
		if cmd.Flags().Changed("steps") {
			cfg.Steps = steps
		}
		if cmd.Flags().Changed("soft-restarts") {
			cfg.SoftRestarts = softRestarts
		}
		if cmd.Flags().Changed("ranks") {
			cfg.Ranks = ranks
		}
		if cmd.Flags().Changed("progress-percent") {
			cfg.Progress.Percent = progressPercent
		}
		if cmd.Flags().Changed("checkpoint-period") {
			cfg.Checkpoint.Period = checkpointPeriod
		}
		if cmd.Flags().Changed("checkpoint-dir") {
			cfg.Checkpoint.Dir = checkpointDir
		}
		if cmd.Flags().Changed("restart") {
			cfg.Restart.Restart = doRestart
		}
		if cmd.Flags().Changed("try-restart") {
			cfg.Restart.TryRestart = tryRestart
		}
		if cmd.Flags().Changed("restart-dir") {
			cfg.Restart.Dir = restartDir
		}
		if cmd.Flags().Changed("restart-step") {
			cfg.Restart.Step = restartStep
		}
		if err := cfg.Validate(); err != nil {
			logrus.Fatalf("Invalid run config: %v", err)
		}

		heatCfg, err := heat.ConfigFromNode(&cfg.Simulation)
		if err != nil {
			logrus.Fatalf("Invalid simulation config: %v", err)
		}
		if cmd.Flags().Changed("cells") {
			heatCfg.Cells = cells
		}
		if cmd.Flags().Changed("energy-period") {
			heatCfg.EnergyPeriod = energyPeriod
		}
		if err := heatCfg.Validate(); err != nil {
			logrus.Fatalf("Invalid simulation config: %v", err)
		}

		if err := runSimulation(cfg, heatCfg); err != nil {
			logrus.Fatalf("Run failed: %v", err)
		}
	},
}

// runSimulation drives one full run. Every rank lives in its own
// goroutine with its own device stream, observers and signal source;
// only the collective world is shared.
func runSimulation(cfg sim.RunConfig, heatCfg heat.Config) error {
	periods, err := period.Resolve(cfg.Checkpoint.Period)
	if err != nil {
		return fmt.Errorf("checkpoint period: %w", err)
	}
	energyAt, err := period.Resolve(heatCfg.EnergyPeriod)
	if err != nil {
		return fmt.Errorf("energy_period: %w", err)
	}
	plan, err := sim.ResolveRestart(cfg.Restart)
	if err != nil {
		return err
	}

	runID := uuid.New()
	logrus.Infof("run %s: %d ranks, %d steps", runID, cfg.Ranks, cfg.Steps)
	if cfg.Author != "" {
		logrus.Infof("simulation author: %s", cfg.Author)
	}
	if plan.Resumed {
		logrus.Infof("resuming from checkpoint at step %d in %s", plan.Step, plan.Dir)
	}

	start := time.Now()
	world := collective.NewWorld(cfg.Ranks)
	sources := make([]*interrupt.Source, cfg.Ranks)

	var g errgroup.Group
	for rank := 0; rank < cfg.Ranks; rank++ {
		state := sim.NewRunState(runID, rank, cfg.Steps)
		stream := task.NewManager(1)
		rod := heat.NewRod(heatCfg, rank, stream)
		dataComm := world.Comm(rank, "data")

		registry := sim.NewRegistry()
		if !energyAt.Empty() {
			registry.Register(heat.NewEnergyObserver(rod, dataComm), energyAt)
		}
		registry.Register(heat.NewCheckpointObserver(rod), period.Set{})

		sched := sim.NewCheckpointScheduler(state, sim.CollectiveComm{C: dataComm},
			stream, registry, periods, cfg.Checkpoint.Dir)

		// One source per rank: the runtime delivers each control signal
		// to every registered channel, so all ranks observe the request.
		source := interrupt.NewSource()
		source.Notify()
		sources[rank] = source
		coord := sim.NewSignalCoordinator(state, sim.CollectiveComm{C: world.Comm(rank, "signal")},
			source, sched)

		out := io.Discard
		if state.IsCanonical() {
			out = os.Stdout
		}
		progress := sim.NewProgressReporter(out, cfg.Progress.Percent, state)

		driver := sim.NewDriver(state, plan, rod, registry, sched, coord, stream, progress, cfg.SoftRestarts)
		g.Go(driver.Run)
	}

	err = g.Wait()
	for _, s := range sources {
		s.Close()
	}
	if err != nil {
		return err
	}
	logrus.Infof("total simulation time: %s", time.Since(start).Round(time.Millisecond))
	return nil
}

// init sets up CLI flags for the run subcommand
func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML run configuration")
	runCmd.Flags().Uint64Var(&steps, "steps", 0, "Number of steps to compute")
	runCmd.Flags().Uint64Var(&softRestarts, "soft-restarts", 0, "Extra full rounds after the first")
	runCmd.Flags().IntVar(&ranks, "ranks", 1, "Number of in-process ranks")
	runCmd.Flags().Uint64Var(&progressPercent, "progress-percent", 5, "Progress report cadence in percent of the run")

	// Checkpoint and restart configs
	runCmd.Flags().StringVar(&checkpointPeriod, "checkpoint-period", "", "Checkpoint period expression, e.g. 100 or 1000:9000:500")
	runCmd.Flags().StringVar(&checkpointDir, "checkpoint-dir", "checkpoints", "Checkpoint storage directory")
	runCmd.Flags().BoolVar(&doRestart, "restart", false, "Resume from a recorded checkpoint, fail if none exists")
	runCmd.Flags().BoolVar(&tryRestart, "try-restart", false, "Resume from a recorded checkpoint if one exists")
	runCmd.Flags().StringVar(&restartDir, "restart-dir", "checkpoints", "Directory holding the checkpoint log to resume from")
	runCmd.Flags().Int64Var(&restartStep, "restart-step", -1, "Exact step to resume, -1 selects the most recent checkpoint")

	// Bundled heat simulation configs
	runCmd.Flags().IntVar(&cells, "cells", 64, "Rod length in cells per rank")
	runCmd.Flags().StringVar(&energyPeriod, "energy-period", "", "Period expression for total-heat reports")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
