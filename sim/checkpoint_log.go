package sim

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// CheckpointLogName is the master file listing every confirmed checkpoint
// step, one decimal number per line. It lives inside the checkpoint
// directory and is only ever appended to.
const CheckpointLogName = "checkpoints.txt"

// AppendCheckpointStep records step in dir's checkpoint log. Only the
// canonical rank calls this, and only after every rank confirmed its
// write, so an entry is a guarantee the checkpoint exists in full.
func AppendCheckpointStep(dir string, step uint64) error {
	path := filepath.Join(dir, CheckpointLogName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open checkpoint log: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", step); err != nil {
		f.Close()
		return fmt.Errorf("append step %d to checkpoint log: %w", step, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close checkpoint log: %w", err)
	}
	return nil
}

// ReadCheckpointSteps returns the steps recorded in dir's checkpoint log,
// in file order. A missing log reads as empty. Malformed lines are
// skipped with a warning; they do not abort the read.
func ReadCheckpointSteps(dir string) ([]uint64, error) {
	path := filepath.Join(dir, CheckpointLogName)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open checkpoint log: %w", err)
	}
	defer f.Close()

	var steps []uint64
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		step, err := strconv.ParseUint(line, 10, 64)
		if err != nil {
			logrus.Warnf("checkpoint log %s:%d: skipping invalid entry %q", path, lineNo, line)
			continue
		}
		steps = append(steps, step)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read checkpoint log: %w", err)
	}
	return steps, nil
}
