package sim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRunConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadRunConfigKeepsDefaultsForAbsentFields(t *testing.T) {
	cfg, err := LoadRunConfig(writeRunConfig(t, "steps: 100\n"))
	require.NoError(t, err)

	assert.Equal(t, uint64(100), cfg.Steps)
	assert.Equal(t, 1, cfg.Ranks)
	assert.Equal(t, uint64(5), cfg.Progress.Percent)
	assert.Equal(t, "checkpoints", cfg.Checkpoint.Dir)
	assert.Equal(t, "checkpoints", cfg.Restart.Dir)
	assert.Equal(t, int64(-1), cfg.Restart.Step)
}

func TestLoadRunConfigOverridesDefaults(t *testing.T) {
	cfg, err := LoadRunConfig(writeRunConfig(t, `
steps: 2500
soft_restarts: 1
ranks: 4
author: ada
progress:
  percent: 10
checkpoint:
  period: "500"
  dir: out/ckpt
restart:
  try_restart: true
  dir: out/ckpt
  step: 2000
`))
	require.NoError(t, err)

	assert.Equal(t, uint64(2500), cfg.Steps)
	assert.Equal(t, uint64(1), cfg.SoftRestarts)
	assert.Equal(t, 4, cfg.Ranks)
	assert.Equal(t, "ada", cfg.Author)
	assert.Equal(t, uint64(10), cfg.Progress.Percent)
	assert.Equal(t, "500", cfg.Checkpoint.Period)
	assert.Equal(t, "out/ckpt", cfg.Checkpoint.Dir)
	assert.True(t, cfg.Restart.TryRestart)
	assert.Equal(t, int64(2000), cfg.Restart.Step)
}

func TestLoadRunConfigRejectsUnknownFields(t *testing.T) {
	_, err := LoadRunConfig(writeRunConfig(t, "stepz: 100\n"))
	assert.ErrorContains(t, err, "field stepz not found")
}

func TestLoadRunConfigMissingFile(t *testing.T) {
	_, err := LoadRunConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "reading run config")
}

func TestSimulationSectionPassesThroughUndecoded(t *testing.T) {
	// The control loop does not know the simulation's schema; its section
	// must survive strict decoding and stay decodable by the owner.
	cfg, err := LoadRunConfig(writeRunConfig(t, `
steps: 10
simulation:
  cells: 64
  diffusion_number: 0.25
`))
	require.NoError(t, err)

	var section struct {
		Cells           int     `yaml:"cells"`
		DiffusionNumber float64 `yaml:"diffusion_number"`
	}
	require.NoError(t, cfg.Simulation.Decode(&section))
	assert.Equal(t, 64, section.Cells)
	assert.Equal(t, 0.25, section.DiffusionNumber)
}

func TestRunConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RunConfig)
		wantErr string
	}{
		{
			name:   "minimal config",
			mutate: func(c *RunConfig) {},
		},
		{
			name:   "periodic checkpoints",
			mutate: func(c *RunConfig) { c.Checkpoint.Period = "10:100:10" },
		},
		{
			name:    "zero steps",
			mutate:  func(c *RunConfig) { c.Steps = 0 },
			wantErr: "steps must be >= 1",
		},
		{
			name:    "zero ranks",
			mutate:  func(c *RunConfig) { c.Ranks = 0 },
			wantErr: "ranks must be >= 1",
		},
		{
			name:    "empty checkpoint dir",
			mutate:  func(c *RunConfig) { c.Checkpoint.Dir = "" },
			wantErr: "checkpoint dir must not be empty",
		},
		{
			name:    "malformed checkpoint period",
			mutate:  func(c *RunConfig) { c.Checkpoint.Period = "10:5" },
			wantErr: "checkpoint period",
		},
		{
			name:    "zero period slice",
			mutate:  func(c *RunConfig) { c.Checkpoint.Period = "0" },
			wantErr: "zero period",
		},
		{
			name:    "restart step below -1",
			mutate:  func(c *RunConfig) { c.Restart.Step = -2 },
			wantErr: "restart step must be -1",
		},
		{
			name: "restart without a dir",
			mutate: func(c *RunConfig) {
				c.Restart.Restart = true
				c.Restart.Dir = ""
			},
			wantErr: "restart dir must not be empty",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRunConfig()
			cfg.Steps = 100
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
