package verdict

import (
	"sort"
	"strings"

	"promypy/internal/core"
	"promypy/internal/schedule"
)

// Result is the read-only product of one aggregation.
type Result struct {
	// Verdicts holds every submitted file plus every file named by a
	// diagnostic from another job.
	Verdicts Set

	// Diagnostics are deduplicated by (File, Line) and ordered by
	// (File, Origin, Index).
	Diagnostics []Diagnostic

	// Lost lists submitted files whose job produced no result. They are
	// recorded as TimedOut in Verdicts.
	Lost []core.FileID

	// TimedOut lists files whose job exceeded the timeout.
	TimedOut []core.FileID

	// Crashes holds the outcomes of analyzer crashes, ordered by file.
	Crashes []core.Outcome

	// ParseMisses lists files whose job failed without a single output line
	// attributed to the file itself.
	ParseMisses []core.FileID
}

// Crashed reports whether any job crashed the analyzer.
func (r *Result) Crashed() bool { return len(r.Crashes) > 0 }

type diagKey struct {
	file core.FileID
	line string
}

// Aggregator folds completions into a Result.
//
// An Aggregator is owned by a single goroutine: Add is not safe for
// concurrent use.
type Aggregator struct {
	extractor Extractor
	submitted []core.FileID

	verdicts    Set
	diags       map[diagKey]Diagnostic
	reported    map[core.FileID]struct{}
	lost        map[core.FileID]struct{}
	timedOut    map[core.FileID]struct{}
	crashes     map[core.FileID]core.Outcome
	parseMisses map[core.FileID]struct{}
}

// NewAggregator creates an Aggregator for the submitted files. A nil
// extractor means DefaultExtractor.
func NewAggregator(submitted []core.FileID, extractor Extractor) *Aggregator {
	if extractor == nil {
		extractor = DefaultExtractor()
	}
	return &Aggregator{
		extractor:   extractor,
		submitted:   append([]core.FileID(nil), submitted...),
		verdicts:    make(Set, len(submitted)),
		diags:       make(map[diagKey]Diagnostic),
		reported:    make(map[core.FileID]struct{}, len(submitted)),
		lost:        make(map[core.FileID]struct{}),
		timedOut:    make(map[core.FileID]struct{}),
		crashes:     make(map[core.FileID]core.Outcome),
		parseMisses: make(map[core.FileID]struct{}),
	}
}

// Add folds one completion into the aggregate.
func (a *Aggregator) Add(c schedule.Completion) {
	file := c.File()
	a.reported[file] = struct{}{}

	if c.Lost() {
		a.lost[file] = struct{}{}
		a.verdicts.Record(file, TimedOut)
		return
	}

	o := c.Outcome
	switch o.Status {
	case core.StatusSuccess:
		a.verdicts.Record(file, CleanPass)
	case core.StatusCrash:
		a.verdicts.Record(file, Crashed)
		if _, ok := a.crashes[file]; !ok {
			a.crashes[file] = o
		}
	case core.StatusTimeout:
		a.verdicts.Record(file, TimedOut)
		a.timedOut[file] = struct{}{}
	default:
		a.verdicts.Record(file, HasDiagnostics)
		if !a.attribute(file, o.RawOutput) {
			a.parseMisses[file] = struct{}{}
		}
	}
}

// attribute extracts diagnostics from a failing job's output. It reports
// whether any line was attributed to origin itself.
func (a *Aggregator) attribute(origin core.FileID, output string) bool {
	self := false
	for i, line := range strings.Split(output, "\n") {
		target, ok := a.extractor.Extract(line)
		if !ok {
			continue
		}
		if target == origin {
			self = true
		}
		a.verdicts.Record(target, HasDiagnostics)

		d := Diagnostic{File: target, Line: line, Origin: origin, Index: i}
		key := diagKey{file: target, line: line}
		if prev, ok := a.diags[key]; ok && !diagnosticLess(d, prev) {
			continue
		}
		a.diags[key] = d
	}
	return self
}

func diagnosticLess(a, b Diagnostic) bool {
	if a.Origin != b.Origin {
		return a.Origin < b.Origin
	}
	return a.Index < b.Index
}

// Result returns the aggregate so far. Submitted files that have not been
// reported are treated as lost. Result does not modify the Aggregator.
func (a *Aggregator) Result() *Result {
	verdicts := a.verdicts.Clone()
	lost := make(map[core.FileID]struct{}, len(a.lost))
	for f := range a.lost {
		lost[f] = struct{}{}
	}
	for _, f := range a.submitted {
		if _, ok := a.reported[f]; !ok {
			lost[f] = struct{}{}
			verdicts.Record(f, TimedOut)
		}
	}

	diags := make([]Diagnostic, 0, len(a.diags))
	for _, d := range a.diags {
		diags = append(diags, d)
	}
	sortDiagnostics(diags)

	crashes := make([]core.Outcome, 0, len(a.crashes))
	for _, o := range a.crashes {
		crashes = append(crashes, o)
	}
	sort.Slice(crashes, func(i, j int) bool { return crashes[i].File < crashes[j].File })

	return &Result{
		Verdicts:    verdicts,
		Diagnostics: diags,
		Lost:        sortedKeys(lost),
		TimedOut:    sortedKeys(a.timedOut),
		Crashes:     crashes,
		ParseMisses: sortedKeys(a.parseMisses),
	}
}

func sortedKeys(m map[core.FileID]struct{}) []core.FileID {
	out := make([]core.FileID, 0, len(m))
	for f := range m {
		out = append(out, f)
	}
	core.SortFileIDs(out)
	return out
}
