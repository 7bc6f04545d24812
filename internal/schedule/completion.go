package schedule

import "promypy/internal/core"

// Completion is what the scheduler yields for one finished job.
//
// Exactly one of the two shapes is used:
//   - Err == nil: Outcome is valid (including StatusTimeout outcomes).
//   - Err != nil: the job produced no result; Err wraps core.ErrJobLost and
//     Outcome carries only the File.
type Completion struct {
	Outcome core.Outcome
	Err     error
}

// File returns the file the completion belongs to.
func (c Completion) File() core.FileID { return c.Outcome.File }

// Lost reports whether the job produced no result.
func (c Completion) Lost() bool {
	return c.Err != nil
}
