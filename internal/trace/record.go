package trace

import (
	"fmt"
	"path/filepath"
	"strings"

	"promypy/internal/atomicfile"
	"promypy/internal/baseline"
	"promypy/internal/core"
	"promypy/internal/schedule"
	"promypy/internal/verdict"
)

// RecordCompletion records the job-level fact carried by c.
func RecordCompletion(s Sink, c schedule.Completion) {
	file := string(c.File())
	switch {
	case c.Lost():
		SafeRecord(s, Event{Kind: EventJobLost, File: file})
	case c.Outcome.Status == core.StatusTimeout:
		SafeRecord(s, Event{Kind: EventJobTimedOut, File: file})
	default:
		SafeRecord(s, Event{Kind: EventJobCompleted, File: file, Reason: c.Outcome.Status.String()})
	}
}

// RecordVerdicts records one Verdict event per file in res.
func RecordVerdicts(s Sink, res *verdict.Result) {
	type attribution struct {
		count   int
		origins map[string]struct{}
	}
	byFile := make(map[string]*attribution)
	for _, d := range res.Diagnostics {
		a := byFile[string(d.File)]
		if a == nil {
			a = &attribution{origins: map[string]struct{}{}}
			byFile[string(d.File)] = a
		}
		a.count++
		a.origins[string(d.Origin)] = struct{}{}
	}

	for _, f := range res.Verdicts.Files() {
		e := Event{Kind: EventVerdict, File: string(f), Reason: res.Verdicts[f].String()}
		if a := byFile[string(f)]; a != nil {
			e.Diagnostics = a.count
			for o := range a.origins {
				e.Origins = append(e.Origins, o)
			}
		}
		SafeRecord(s, e)
	}
}

// RecordReconciliation records the per-file reconciliation outcome and the
// decision.
func RecordReconciliation(s Sink, r baseline.Reconciliation) {
	for _, f := range r.Cleared {
		SafeRecord(s, Event{Kind: EventCleared, File: string(f)})
	}
	for _, f := range r.Tolerated {
		SafeRecord(s, Event{Kind: EventTolerated, File: string(f)})
	}
	for _, f := range r.Regressed {
		SafeRecord(s, Event{Kind: EventRegressed, File: string(f)})
	}
	RecordDecision(s, r.Decision.String())
}

// RecordDecision records the run-level decision.
func RecordDecision(s Sink, decision string) {
	SafeRecord(s, Event{Kind: EventDecision, Reason: decision})
}

// WriteFile writes the canonical encoding of t to path: YAML for .yaml and
// .yml paths, JSON otherwise.
func WriteFile(path string, t RunTrace) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = t.CanonicalYAML()
	default:
		data, err = t.CanonicalJSON()
		if err == nil {
			data = append(data, '\n')
		}
	}
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}
	if err := atomicfile.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write trace %s: %w", path, err)
	}
	return nil
}
