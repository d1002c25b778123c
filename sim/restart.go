package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// RestartPlan says where a run starts. The zero value is a fresh start
// at step 0.
type RestartPlan struct {
	Step    uint64 // first step to compute
	Resumed bool   // state must be reloaded from a checkpoint
	Dir     string // directory holding the checkpoint data when Resumed
}

// ResolveRestart decides the starting point of a run from the restart
// configuration and the checkpoint log. With Restart set, a missing or
// empty log is an error; with TryRestart set, it falls back to a fresh
// start. A non-negative Step selects that exact recorded checkpoint,
// otherwise the most recent one wins.
//
// Called once at startup; every rank runs the same plan.
func ResolveRestart(cfg RestartConfig) (RestartPlan, error) {
	if !cfg.Restart && !cfg.TryRestart {
		return RestartPlan{}, nil
	}

	steps, err := ReadCheckpointSteps(cfg.Dir)
	if err != nil {
		return RestartPlan{}, err
	}
	if len(steps) == 0 {
		if cfg.TryRestart {
			logrus.Infof("no resumable checkpoint in %s, starting from scratch", cfg.Dir)
			return RestartPlan{}, nil
		}
		return RestartPlan{}, fmt.Errorf("restart requested but %s holds no resumable checkpoint", cfg.Dir)
	}

	if cfg.Step >= 0 {
		want := uint64(cfg.Step)
		for _, s := range steps {
			if s == want {
				return RestartPlan{Step: want, Resumed: true, Dir: cfg.Dir}, nil
			}
		}
		return RestartPlan{}, fmt.Errorf("no checkpoint recorded for step %d in %s", want, cfg.Dir)
	}

	// Entries are appended in execution order; the last one is the most
	// recent.
	latest := steps[len(steps)-1]
	return RestartPlan{Step: latest, Resumed: true, Dir: cfg.Dir}, nil
}
