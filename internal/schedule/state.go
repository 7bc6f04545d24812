package schedule

import (
	"fmt"

	"promypy/internal/core"
)

// JobState is the runtime state of one submitted job.
type JobState string

const (
	JobPending   JobState = "PENDING"
	JobRunning   JobState = "RUNNING"
	JobDone      JobState = "DONE"
	JobTimedOut  JobState = "TIMED_OUT"
	JobLost      JobState = "LOST"
	JobAbandoned JobState = "ABANDONED"
)

// ExecutionState maps a submitted file to the state of its job.
type ExecutionState map[core.FileID]JobState

// IsTerminal reports whether the state is terminal (finished).
func IsTerminal(s JobState) bool {
	switch s {
	case JobDone, JobTimedOut, JobLost, JobAbandoned:
		return true
	default:
		return false
	}
}

// Transition performs a validated transition for a single job.
//
// The caller supplies the expected prior state (from) to make races observable.
// The state map is mutated if and only if the transition is valid.
func Transition(state ExecutionState, file core.FileID, from, to JobState) error {
	cur, ok := state[file]
	if !ok {
		return fmt.Errorf("unknown job in state: %q", file)
	}
	if cur != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", file, from, cur)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", file, from, to)
	}
	state[file] = to
	return nil
}

func isAllowedTransition(from, to JobState) bool {
	switch from {
	case JobPending:
		return to == JobRunning || to == JobAbandoned
	case JobRunning:
		return to == JobDone || to == JobTimedOut || to == JobLost || to == JobAbandoned
	default:
		return false
	}
}

// Counts tallies jobs per state.
func (s ExecutionState) Counts() map[JobState]int {
	out := make(map[JobState]int, 6)
	for _, st := range s {
		out[st]++
	}
	return out
}
