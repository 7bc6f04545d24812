package runstate

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Recorder writes run records. Callers provide Run metadata and, for failed
// runs, the triggering error; the recorder classifies it and persists the
// Failure.
type Recorder struct {
	Store *Store

	// Now defaults to time.Now.
	Now func() time.Time
}

func NewRecorder(stateDir string) (*Recorder, error) {
	store, err := NewStore(stateDir)
	if err != nil {
		return nil, err
	}
	return &Recorder{Store: store}, nil
}

func (r *Recorder) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// NewRunID returns a time-ordered UUID.
func (r *Recorder) NewRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// StartRun persists run with status running, linking it to the latest
// recorded run.
func (r *Recorder) StartRun(run Run) (Run, error) {
	if r == nil || r.Store == nil {
		return Run{}, errors.New("Store is required")
	}
	if run.RunID == "" {
		id, err := r.NewRunID()
		if err != nil {
			return Run{}, fmt.Errorf("run id: %w", err)
		}
		run.RunID = id
	}
	if run.StartTime.IsZero() {
		run.StartTime = r.now()
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	if run.PreviousRunID == nil {
		prev, err := r.Store.LatestRunID()
		if err != nil {
			return Run{}, err
		}
		if prev != "" && prev != run.RunID {
			run.PreviousRunID = &prev
		}
	}
	if err := run.Validate(); err != nil {
		return Run{}, fmt.Errorf("invalid run: %w", err)
	}
	if err := r.Store.SaveRun(run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// FinishRun records the final status, decision and exit code of run.
func (r *Recorder) FinishRun(run Run, status RunStatus, decision string, exitCode int) (Run, error) {
	if r == nil || r.Store == nil {
		return Run{}, errors.New("Store is required")
	}
	end := r.now()
	if end.Before(run.StartTime) {
		end = run.StartTime
	}
	run.EndTime = &end
	run.Decision = decision
	run.ExitCode = &exitCode
	run.Status = status
	if err := r.Store.SaveRun(run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// RecordFailure classifies err and persists it for runID.
func (r *Recorder) RecordFailure(runID string, err error) error {
	if r == nil || r.Store == nil {
		return errors.New("Store is required")
	}
	f, ferr := ClassifyError(err)
	if ferr != nil {
		return ferr
	}
	return r.Store.SaveFailure(runID, f)
}
