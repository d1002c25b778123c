package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededCheckpointDir(t *testing.T, steps ...uint64) string {
	t.Helper()
	dir := t.TempDir()
	for _, s := range steps {
		require.NoError(t, AppendCheckpointStep(dir, s))
	}
	return dir
}

func TestNoRestartFlagsMeansFreshStart(t *testing.T) {
	plan, err := ResolveRestart(RestartConfig{Dir: "does-not-exist", Step: -1})
	require.NoError(t, err)
	assert.Equal(t, RestartPlan{}, plan)
}

func TestRestartPicksMostRecentCheckpoint(t *testing.T) {
	dir := seededCheckpointDir(t, 100, 250, 400)

	plan, err := ResolveRestart(RestartConfig{Restart: true, Dir: dir, Step: -1})
	require.NoError(t, err)
	assert.Equal(t, RestartPlan{Step: 400, Resumed: true, Dir: dir}, plan)
}

func TestRestartSelectsExactRecordedStep(t *testing.T) {
	dir := seededCheckpointDir(t, 100, 250, 400)

	plan, err := ResolveRestart(RestartConfig{Restart: true, Dir: dir, Step: 250})
	require.NoError(t, err)
	assert.Equal(t, RestartPlan{Step: 250, Resumed: true, Dir: dir}, plan)
}

func TestRestartRejectsUnrecordedStep(t *testing.T) {
	// Step 137 was never checkpointed; silently resuming from a neighbor
	// would hand back different physics than asked for.
	dir := seededCheckpointDir(t, 100, 250)

	_, err := ResolveRestart(RestartConfig{Restart: true, Dir: dir, Step: 137})
	assert.ErrorContains(t, err, "no checkpoint recorded for step 137")
}

func TestRestartFailsWithoutCheckpoints(t *testing.T) {
	_, err := ResolveRestart(RestartConfig{Restart: true, Dir: t.TempDir(), Step: -1})
	assert.ErrorContains(t, err, "no resumable checkpoint")
}

func TestTryRestartFallsBackToFreshStart(t *testing.T) {
	plan, err := ResolveRestart(RestartConfig{TryRestart: true, Dir: t.TempDir(), Step: -1})
	require.NoError(t, err)
	assert.Equal(t, RestartPlan{}, plan)
}

func TestTryRestartResumesWhenLogExists(t *testing.T) {
	dir := seededCheckpointDir(t, 42)

	plan, err := ResolveRestart(RestartConfig{TryRestart: true, Dir: dir, Step: -1})
	require.NoError(t, err)
	assert.Equal(t, RestartPlan{Step: 42, Resumed: true, Dir: dir}, plan)
}
