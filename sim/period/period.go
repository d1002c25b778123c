// Package period resolves textual period expressions into queryable sets of
// trigger steps.
//
// An expression is a comma-separated list of slices, each of the form
// [start][:[end][:[period]]]:
//
//	"100"        every 100th step, starting at 0
//	"10:100"     every step from 10 through 100
//	"10:100:5"   steps 10, 15, ..., 100
//	"42:42"      exactly step 42
//	"5,10:100:10" the union of both slices
//
// Omitted fields default to start=0, end=MaxUint64, period=1. The empty
// expression resolves to the empty set. Resolution is a pure function of the
// expression string, so resolving the same expression twice yields equal sets.
package period

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Slice is one contiguous trigger range with a stride: it matches every
// step s with Start <= s <= End and (s-Start) % Period == 0.
type Slice struct {
	Start  uint64
	End    uint64
	Period uint64
}

// Contains reports whether step is matched by this slice.
func (sl Slice) Contains(step uint64) bool {
	if step < sl.Start || step > sl.End {
		return false
	}
	return (step-sl.Start)%sl.Period == 0
}

// Set is an immutable collection of slices, ordered by start step.
type Set struct {
	slices []Slice
}

// Resolve parses a period expression into a Set. A malformed field, an
// end before its start, or a zero period is an error; callers are expected
// to resolve expressions before the run loop starts so bad input never
// surfaces mid-run.
func Resolve(expr string) (Set, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Set{}, nil
	}

	var slices []Slice
	for _, token := range strings.Split(expr, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			return Set{}, fmt.Errorf("period expression %q contains an empty slice", expr)
		}
		sl, err := parseSlice(token)
		if err != nil {
			return Set{}, fmt.Errorf("period expression %q: %w", expr, err)
		}
		slices = append(slices, sl)
	}

	sort.Slice(slices, func(i, j int) bool { return slices[i].Start < slices[j].Start })
	return Set{slices: slices}, nil
}

// parseSlice parses a single [start][:[end][:[period]]] token.
func parseSlice(token string) (Slice, error) {
	fields := strings.Split(token, ":")
	if len(fields) > 3 {
		return Slice{}, fmt.Errorf("slice %q has more than three fields", token)
	}

	sl := Slice{Start: 0, End: math.MaxUint64, Period: 1}

	// A single value is a period, not a start: "100" means every 100th step.
	if len(fields) == 1 {
		p, err := parseField(fields[0], "period")
		if err != nil {
			return Slice{}, err
		}
		if p == 0 {
			return Slice{}, fmt.Errorf("slice %q has zero period", token)
		}
		sl.Period = p
		return sl, nil
	}

	if fields[0] != "" {
		v, err := parseField(fields[0], "start")
		if err != nil {
			return Slice{}, err
		}
		sl.Start = v
	}
	if fields[1] != "" {
		v, err := parseField(fields[1], "end")
		if err != nil {
			return Slice{}, err
		}
		sl.End = v
	}
	if len(fields) == 3 && fields[2] != "" {
		v, err := parseField(fields[2], "period")
		if err != nil {
			return Slice{}, err
		}
		sl.Period = v
	}

	if sl.Period == 0 {
		return Slice{}, fmt.Errorf("slice %q has zero period", token)
	}
	if sl.End < sl.Start {
		return Slice{}, fmt.Errorf("slice %q ends before it starts", token)
	}
	return sl, nil
}

func parseField(field, name string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(field), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, field, err)
	}
	return v, nil
}

// Contains reports whether step is a trigger step of the set. Slices are
// sorted by start, so slices opening after step are skipped wholesale;
// this runs once per simulation step and must stay cheap.
func (s Set) Contains(step uint64) bool {
	n := sort.Search(len(s.slices), func(i int) bool { return s.slices[i].Start > step })
	for i := 0; i < n; i++ {
		if s.slices[i].Contains(step) {
			return true
		}
	}
	return false
}

// Empty reports whether the set matches no step at all.
func (s Set) Empty() bool {
	return len(s.slices) == 0
}

// Slices returns the resolved slices in start order.
func (s Set) Slices() []Slice {
	out := make([]Slice, len(s.slices))
	copy(out, s.slices)
	return out
}

// String renders the set in the expression syntax it was resolved from.
func (s Set) String() string {
	if len(s.slices) == 0 {
		return ""
	}
	parts := make([]string, 0, len(s.slices))
	for _, sl := range s.slices {
		switch {
		case sl.Start == 0 && sl.End == math.MaxUint64:
			parts = append(parts, strconv.FormatUint(sl.Period, 10))
		case sl.End == math.MaxUint64:
			parts = append(parts, fmt.Sprintf("%d::%d", sl.Start, sl.Period))
		default:
			parts = append(parts, fmt.Sprintf("%d:%d:%d", sl.Start, sl.End, sl.Period))
		}
	}
	return strings.Join(parts, ",")
}
