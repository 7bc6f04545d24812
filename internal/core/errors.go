package core

import (
	"errors"
	"fmt"
)

var (
	// ErrJobTimeout marks a job that exceeded its timeout. Recoverable:
	// the file is treated as failing and the run continues.
	ErrJobTimeout = errors.New("analysis timed out")

	// ErrJobLost marks a job that produced no outcome at all.
	ErrJobLost = errors.New("analysis produced no result")

	// ErrAnalyzerCrash marks an analyzer-internal failure (status 2).
	// Not recoverable: the run aborts loudly.
	ErrAnalyzerCrash = errors.New("analyzer crashed")

	// ErrDiagnosticParseMiss marks a failing job whose output could not be
	// attributed to any file.
	ErrDiagnosticParseMiss = errors.New("no attributable diagnostics")
)

// JobError wraps a per-job failure with the file it belongs to.
type JobError struct {
	File FileID
	Kind error
	Msg  string
}

func (e *JobError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return fmt.Sprintf("%s: %s", e.File, e.Kind.Error())
	}
	return fmt.Sprintf("%s: %s: %s", e.File, e.Kind.Error(), e.Msg)
}

func (e *JobError) Unwrap() error { return e.Kind }

func jobErrorf(file FileID, kind error, format string, args ...any) error {
	return &JobError{File: file, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// LostJob reports that the job for file produced no result.
func LostJob(file FileID, format string, args ...any) error {
	return jobErrorf(file, ErrJobLost, format, args...)
}

// TimedOutJob reports that the job for file exceeded its timeout.
func TimedOutJob(file FileID, format string, args ...any) error {
	return jobErrorf(file, ErrJobTimeout, format, args...)
}

// CrashedJob reports that the analyzer crashed on file.
func CrashedJob(file FileID, format string, args ...any) error {
	return jobErrorf(file, ErrAnalyzerCrash, format, args...)
}

// ParseMissJob reports that a failing job for file produced no output line
// attributable to it.
func ParseMissJob(file FileID, format string, args ...any) error {
	return jobErrorf(file, ErrDiagnosticParseMiss, format, args...)
}
