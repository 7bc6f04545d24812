package baseline

import (
	"promypy/internal/core"
	"promypy/internal/verdict"
)

// Decision is the terminal state of a check run.
//
// Decisions are evaluated in a fixed priority order (FatalCrash first) and
// exactly one is reached per run. Translating a Decision into a process
// exit code is the caller's job.
type Decision int

const (
	Clean Decision = iota
	BaselineShrunk
	FullyMigrated
	Regressed
	FatalCrash
)

func (d Decision) String() string {
	switch d {
	case Clean:
		return "CLEAN"
	case BaselineShrunk:
		return "BASELINE_SHRUNK"
	case FullyMigrated:
		return "FULLY_MIGRATED"
	case Regressed:
		return "REGRESSED"
	case FatalCrash:
		return "FATAL_CRASH"
	default:
		return "UNKNOWN"
	}
}

// Action is what must happen to the persisted baseline after a run.
type Action int

const (
	Keep Action = iota
	Rewrite
	Delete
)

func (a Action) String() string {
	switch a {
	case Keep:
		return "keep"
	case Rewrite:
		return "rewrite"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Reconciliation is the outcome of the check policy.
type Reconciliation struct {
	Decision Decision

	// NewBaseline is always a subset of the baseline that was passed in.
	NewBaseline Set

	// Cleared lists baseline files that were submitted and came back clean.
	Cleared []core.FileID

	// Tolerated lists baseline files that were submitted and still fail.
	Tolerated []core.FileID

	// Regressed lists failing files that are not on the baseline. This
	// includes files reached only through another job's diagnostics.
	Regressed []core.FileID

	// Diagnostics holds the lines to print: those attributed to regressed
	// files, in canonical order.
	Diagnostics []verdict.Diagnostic

	// Unattributed lists regressed files without a single diagnostic line
	// (timeouts, lost jobs, parse misses).
	Unattributed []core.FileID
}

// Changed reports whether the baseline shrank.
func (r Reconciliation) Changed(previous Set) bool {
	return !r.NewBaseline.Equal(previous)
}

// Action returns what must happen to the persisted baseline.
//
// A crash never touches it. A shrunk baseline is written even when the run
// regressed so that cleared files are not re-tolerated later, but retiring
// the baseline entirely only happens on a run without regressions.
func (r Reconciliation) Action(previous Set) Action {
	switch r.Decision {
	case FatalCrash, Clean:
		return Keep
	case FullyMigrated:
		return Delete
	case BaselineShrunk:
		return Rewrite
	case Regressed:
		if r.Changed(previous) && len(r.NewBaseline) > 0 {
			return Rewrite
		}
	}
	return Keep
}

// Check applies the check policy.
//
// For each submitted file on the baseline: a clean verdict clears it,
// anything else keeps it tolerated and its diagnostics suppressed. A failing
// file off the baseline is a regression. Files not submitted but named by a
// diagnostic are suppressed when on the baseline and regress otherwise.
func Check(previous Set, submitted []core.FileID, res *verdict.Result) Reconciliation {
	if previous == nil {
		previous = Set{}
	}
	verdicts := res.Verdicts
	submittedSet := NewSet(submitted...)

	next := previous.Clone()
	regressed := Set{}
	var cleared, tolerated []core.FileID

	for _, f := range submittedSet.Sorted() {
		k, ok := verdicts[f]
		if !ok {
			k = verdict.TimedOut
		}
		switch {
		case previous.Contains(f) && !k.Failing():
			cleared = append(cleared, f)
			delete(next, f)
		case previous.Contains(f):
			tolerated = append(tolerated, f)
		case k.Failing():
			regressed.Add(f)
		}
	}
	for f, k := range verdicts {
		if submittedSet.Contains(f) || previous.Contains(f) || !k.Failing() {
			continue
		}
		regressed.Add(f)
	}

	r := Reconciliation{
		NewBaseline: next,
		Cleared:     cleared,
		Tolerated:   tolerated,
		Regressed:   regressed.Sorted(),
	}
	attributed := Set{}
	for _, d := range res.Diagnostics {
		if regressed.Contains(d.File) {
			r.Diagnostics = append(r.Diagnostics, d)
			attributed.Add(d.File)
		}
	}
	for _, f := range r.Regressed {
		if !attributed.Contains(f) {
			r.Unattributed = append(r.Unattributed, f)
		}
	}

	switch {
	case res.Crashed():
		r.Decision = FatalCrash
	case len(r.Regressed) > 0:
		r.Decision = Regressed
	case len(next) == 0 && len(previous) > 0:
		r.Decision = FullyMigrated
	case !next.Equal(previous):
		r.Decision = BaselineShrunk
	default:
		r.Decision = Clean
	}
	return r
}

// Dump applies the dump policy: the submitted files whose verdict is not a
// clean pass. Files reached only through other jobs' diagnostics are not
// included.
func Dump(submitted []core.FileID, res *verdict.Result) Set {
	out := Set{}
	for _, f := range submitted {
		k, ok := res.Verdicts[f]
		if !ok || k.Failing() {
			out.Add(f)
		}
	}
	return out
}
