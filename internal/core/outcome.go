package core

import (
	"context"
	"time"
)

// Status is the classification of a single analyzer call.
type Status int

const (
	// StatusSuccess: the analyzer exited 0.
	StatusSuccess Status = iota
	// StatusRuleFailure: the analyzer exited non-zero (other than 2);
	// diagnostics are present in the raw output.
	StatusRuleFailure
	// StatusCrash: the analyzer exited 2, an internal failure of the
	// analyzer rather than a type error.
	StatusCrash
	// StatusTimeout: the call did not complete within the job timeout.
	StatusTimeout
)

// CrashExitCode is the analyzer status reserved for internal failures.
const CrashExitCode = 2

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusRuleFailure:
		return "rule-failure"
	case StatusCrash:
		return "crash"
	case StatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ClassifyExit maps an analyzer exit code to a Status.
func ClassifyExit(code int) Status {
	switch code {
	case 0:
		return StatusSuccess
	case CrashExitCode:
		return StatusCrash
	default:
		return StatusRuleFailure
	}
}

// Outcome is the structured result of one analyzer call.
//
// It is produced once per submitted job and never mutated afterwards.
type Outcome struct {
	// File is the target the analyzer was invoked on.
	File FileID

	Status Status

	// RawOutput is the analyzer's standard output, normalized.
	RawOutput string

	// Stderr is kept for crash reports only; it never contributes diagnostics.
	Stderr string

	// StatusCode is the analyzer's exit code. It is -1 for timeouts.
	StatusCode int

	Duration time.Duration
}

// Invoker runs the external analyzer against exactly one file.
//
// extraArgs are passed through verbatim. Implementations must honor ctx:
// when it is done the call has to return promptly and must not leave the
// analyzer running.
//
// A non-nil error means the job produced no result at all (for example the
// analyzer could not be started). It is never used to report type errors;
// those are carried by the Outcome.
type Invoker interface {
	Invoke(ctx context.Context, file FileID, extraArgs []string) (Outcome, error)
}
