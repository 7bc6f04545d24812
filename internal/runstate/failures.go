package runstate

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"promypy/internal/core"
)

// InvocationFailureError reports an unusable command line or configuration.
type InvocationFailureError struct {
	Code    string
	Message string
	Cause   error
}

func (e *InvocationFailureError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("invocation failure (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("invocation failure: %s", e.Message)
}

func (e *InvocationFailureError) Unwrap() error { return e.Cause }

// AnalyzerFailureError reports analyzer crashes.
type AnalyzerFailureError struct {
	Files   []string
	Message string
}

func (e *AnalyzerFailureError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("analyzer failure on %d file(s): %s", len(e.Files), e.Message)
}

func (e *AnalyzerFailureError) Unwrap() error { return core.ErrAnalyzerCrash }

// RegressionError reports files that fail analysis but are not tolerated.
type RegressionError struct {
	Files []string
}

func (e *RegressionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%d file(s) regressed", len(e.Files))
}

// SystemFailureError represents I/O and other environment failures.
type SystemFailureError struct {
	Code    string
	Message string
	Cause   error
}

func (e *SystemFailureError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("system failure (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("system failure: %s", e.Message)
}

func (e *SystemFailureError) Unwrap() error { return e.Cause }

// ClassifyError maps err onto the failure taxonomy.
func ClassifyError(err error) (Failure, error) {
	if err == nil {
		return Failure{}, errors.New("nil error")
	}

	var inv *InvocationFailureError
	if errors.As(err, &inv) && inv != nil {
		return Failure{
			FailureClass: FailureClassInvocation,
			ErrorCode:    nonEmptyOr(inv.Code, "InvalidInvocation"),
			ErrorMessage: nonEmptyOr(inv.Message, inv.Error()),
		}, nil
	}

	var af *AnalyzerFailureError
	if errors.As(err, &af) && af != nil {
		return Failure{
			FailureClass: FailureClassAnalyzer,
			Files:        sortedCopy(af.Files),
			ErrorCode:    "AnalyzerCrash",
			ErrorMessage: nonEmptyOr(af.Message, af.Error()),
		}, nil
	}

	var jobErr *core.JobError
	if errors.As(err, &jobErr) && jobErr != nil && errors.Is(jobErr, core.ErrAnalyzerCrash) {
		return Failure{
			FailureClass: FailureClassAnalyzer,
			Files:        []string{string(jobErr.File)},
			ErrorCode:    "AnalyzerCrash",
			ErrorMessage: jobErr.Error(),
		}, nil
	}

	var reg *RegressionError
	if errors.As(err, &reg) && reg != nil {
		return Failure{
			FailureClass: FailureClassRegression,
			Files:        sortedCopy(reg.Files),
			ErrorCode:    "Regression",
			ErrorMessage: reg.Error(),
		}, nil
	}

	var sf *SystemFailureError
	if errors.As(err, &sf) && sf != nil {
		return Failure{
			FailureClass: FailureClassSystem,
			ErrorCode:    nonEmptyOr(sf.Code, "SystemFailure"),
			ErrorMessage: nonEmptyOr(sf.Message, sf.Error()),
			Retryable:    true,
		}, nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Failure{
			FailureClass: FailureClassSystem,
			ErrorCode:    "Interrupted",
			ErrorMessage: err.Error(),
			Retryable:    true,
		}, nil
	}

	// Unknown errors are system failures, the most conservative class.
	return Failure{
		FailureClass: FailureClassSystem,
		ErrorCode:    "UnknownError",
		ErrorMessage: err.Error(),
		Retryable:    true,
	}, nil
}

func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func nonEmptyOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
