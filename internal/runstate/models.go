package runstate

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Mode string

const (
	ModeDump  Mode = "dump"
	ModeCheck Mode = "check"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run is the persistent record of one invocation.
//
// Schema: run_id, run_hash, start_time, mode, files, status and
// previous_run_id (nullable) are always present. end_time, decision and
// exit_code are set when the run finishes.
type Run struct {
	RunID         string     `json:"run_id"`
	RunHash       string     `json:"run_hash"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	Mode          Mode       `json:"mode"`
	Files         int        `json:"files"`
	Status        RunStatus  `json:"status"`
	Decision      string     `json:"decision,omitempty"`
	ExitCode      *int       `json:"exit_code,omitempty"`
	PreviousRunID *string    `json:"previous_run_id"`
}

func (r Run) Validate() error {
	var errs []error
	if strings.TrimSpace(r.RunID) == "" {
		errs = append(errs, errors.New("run_id is required"))
	}
	if strings.TrimSpace(r.RunHash) == "" {
		errs = append(errs, errors.New("run_hash is required"))
	}
	if r.StartTime.IsZero() {
		errs = append(errs, errors.New("start_time is required"))
	}
	if r.EndTime != nil && r.EndTime.Before(r.StartTime) {
		errs = append(errs, errors.New("end_time must not precede start_time"))
	}
	switch r.Mode {
	case ModeDump, ModeCheck:
	default:
		errs = append(errs, fmt.Errorf("invalid mode %q", r.Mode))
	}
	if r.Files < 0 {
		errs = append(errs, errors.New("files must be >= 0"))
	}
	switch r.Status {
	case RunStatusRunning, RunStatusSucceeded, RunStatusFailed:
	default:
		errs = append(errs, fmt.Errorf("invalid status %q", r.Status))
	}
	if r.PreviousRunID != nil && strings.TrimSpace(*r.PreviousRunID) == "" {
		errs = append(errs, errors.New("previous_run_id must not be empty when provided"))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

type FailureClass string

const (
	// FailureClassInvocation: the command line or configuration was unusable.
	FailureClassInvocation FailureClass = "invocation"
	// FailureClassAnalyzer: the analyzer crashed (status 2).
	FailureClassAnalyzer FailureClass = "analyzer"
	// FailureClassRegression: files outside the baseline fail analysis.
	FailureClassRegression FailureClass = "regression"
	// FailureClassSystem: I/O errors, cancellations and anything unclassified.
	FailureClassSystem FailureClass = "system"
)

// Failure is a recorded run termination reason.
type Failure struct {
	FailureClass FailureClass `json:"failure_class"`
	Files        []string     `json:"files,omitempty"`
	ErrorCode    string       `json:"error_code"`
	ErrorMessage string       `json:"error_message"`

	// Retryable is set when running again without changes may succeed.
	Retryable bool `json:"retryable"`
}

func (f Failure) Validate() error {
	var errs []error
	switch f.FailureClass {
	case FailureClassInvocation, FailureClassAnalyzer, FailureClassRegression, FailureClassSystem:
	default:
		errs = append(errs, fmt.Errorf("invalid failure_class %q", f.FailureClass))
	}
	for i, file := range f.Files {
		if strings.TrimSpace(file) == "" {
			errs = append(errs, fmt.Errorf("files[%d] must not be empty", i))
		}
	}
	if strings.TrimSpace(f.ErrorCode) == "" {
		errs = append(errs, errors.New("error_code is required"))
	}
	if strings.TrimSpace(f.ErrorMessage) == "" {
		errs = append(errs, errors.New("error_message is required"))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
