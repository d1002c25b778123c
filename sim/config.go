package sim

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lockstep-sim/lockstep/sim/period"
)

// ProgressConfig groups progress reporting parameters.
type ProgressConfig struct {
	Percent uint64 `yaml:"percent"` // report every this-many percent of the run (default 5)
}

// CheckpointConfig groups checkpoint creation parameters.
type CheckpointConfig struct {
	Period string `yaml:"period,omitempty"` // period expression; empty = no periodic checkpoints
	Dir    string `yaml:"dir"`              // checkpoint storage directory
}

// RestartConfig groups restart discovery parameters.
type RestartConfig struct {
	Restart    bool   `yaml:"restart"`     // require a resumable checkpoint
	TryRestart bool   `yaml:"try_restart"` // resume if a checkpoint exists, else start fresh
	Dir        string `yaml:"dir"`         // directory holding the checkpoint log to resume from
	Step       int64  `yaml:"step"`        // exact step to resume, -1 = most recent
}

// RunConfig is the full configuration of a run: the control-loop
// parameters plus a pass-through section owned by the concrete
// simulation, which decodes it itself.
type RunConfig struct {
	Steps        uint64 `yaml:"steps"`         // number of steps to compute
	SoftRestarts uint64 `yaml:"soft_restarts"` // extra full rounds after the first
	Ranks        int    `yaml:"ranks"`         // cohort size (must be >= 1)
	Author       string `yaml:"author,omitempty"`

	Progress   ProgressConfig   `yaml:"progress,omitempty"`
	Checkpoint CheckpointConfig `yaml:"checkpoint,omitempty"`
	Restart    RestartConfig    `yaml:"restart,omitempty"`

	Simulation yaml.Node `yaml:"simulation,omitempty"`
}

// DefaultRunConfig returns the configuration a run starts from before
// file and flag overrides.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Ranks:      1,
		Progress:   ProgressConfig{Percent: 5},
		Checkpoint: CheckpointConfig{Dir: "checkpoints"},
		Restart:    RestartConfig{Dir: "checkpoints", Step: -1},
	}
}

// LoadRunConfig reads a YAML run configuration over the defaults.
// Unknown fields outside the simulation section are errors.
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run config: %w", err)
	}
	cfg := DefaultRunConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing run config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the configuration can drive a run. It resolves
// the checkpoint period once so a malformed expression fails here, never
// inside the step loop.
func (c *RunConfig) Validate() error {
	if c.Steps < 1 {
		return fmt.Errorf("steps must be >= 1, got %d", c.Steps)
	}
	if c.Ranks < 1 {
		return fmt.Errorf("ranks must be >= 1, got %d", c.Ranks)
	}
	if c.Checkpoint.Dir == "" {
		return fmt.Errorf("checkpoint dir must not be empty")
	}
	if _, err := period.Resolve(c.Checkpoint.Period); err != nil {
		return fmt.Errorf("checkpoint period: %w", err)
	}
	if c.Restart.Step < -1 {
		return fmt.Errorf("restart step must be -1 or a step number, got %d", c.Restart.Step)
	}
	if (c.Restart.Restart || c.Restart.TryRestart) && c.Restart.Dir == "" {
		return fmt.Errorf("restart dir must not be empty when restarting")
	}
	return nil
}
