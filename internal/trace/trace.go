package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// RunTrace is the canonical, deterministic record of one run.
//
// Invariants:
//   - It records logical facts (verdicts, reconciliation, the decision),
//     never timings, error strings or anything else that varies between
//     identical runs.
//   - Its canonical encoding does not depend on job completion order.
//
// Canonicalize sorts events into a total order; the JSON encoding uses a
// custom marshaler to fix field order and omit absent optional fields.
type RunTrace struct {
	Mode    string
	RunHash string
	Events  []Event
}

// EventKind is the stable discriminator for Event. The string values are
// part of the canonical bytes; do not rename.
type EventKind string

const (
	EventJobCompleted EventKind = "JobCompleted"
	EventJobTimedOut  EventKind = "JobTimedOut"
	EventJobLost      EventKind = "JobLost"
	EventVerdict      EventKind = "Verdict"
	EventCleared      EventKind = "Cleared"
	EventTolerated    EventKind = "Tolerated"
	EventRegressed    EventKind = "Regressed"
	EventDecision     EventKind = "Decision"
)

// Event is a single logical fact about a file, or about the run when File
// is empty.
//
// Optional fields must be set deterministically: Origins is sorted during
// canonicalization and an empty Origins is omitted.
type Event struct {
	Kind EventKind
	File string

	// Reason is a stable code: a status for job events, a verdict kind for
	// Verdict events, the decision name for Decision events.
	Reason string

	// Diagnostics counts the lines attributed to File.
	Diagnostics int

	// Origins lists the jobs whose output named File.
	Origins []string
}

// Validate checks basic invariants and returns a descriptive error.
func (t *RunTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.Mode == "" {
		return errors.New("mode is required")
	}
	if t.RunHash == "" {
		return errors.New("runHash is required")
	}
	for i, e := range t.Events {
		if e.Kind == "" {
			return fmt.Errorf("events[%d].kind is required", i)
		}
		if e.Kind != EventDecision && e.File == "" {
			return fmt.Errorf("events[%d].file is required for kind %q", i, e.Kind)
		}
		if e.Diagnostics < 0 {
			return fmt.Errorf("events[%d].diagnostics must be >= 0", i)
		}
		for j, o := range e.Origins {
			if o == "" {
				return fmt.Errorf("events[%d].origins[%d] is empty", i, j)
			}
		}
	}
	return nil
}

// Canonicalize normalizes and sorts the trace into its canonical form:
// events are ordered by (file, kind, reason, diagnostics, origins), with the
// run-level Decision event last.
func (t *RunTrace) Canonicalize() {
	if t == nil {
		return
	}
	for i := range t.Events {
		if len(t.Events[i].Origins) == 0 {
			t.Events[i].Origins = nil
			continue
		}
		origins := make([]string, len(t.Events[i].Origins))
		copy(origins, t.Events[i].Origins)
		sort.Strings(origins)
		t.Events[i].Origins = origins
	}

	sort.SliceStable(t.Events, func(i, j int) bool {
		a := t.Events[i]
		b := t.Events[j]

		if (a.File == "") != (b.File == "") {
			return b.File == ""
		}
		if a.File != b.File {
			return a.File < b.File
		}
		if kindOrder(a.Kind) != kindOrder(b.Kind) {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		if a.Reason != b.Reason {
			return a.Reason < b.Reason
		}
		if a.Diagnostics != b.Diagnostics {
			return a.Diagnostics < b.Diagnostics
		}
		return compareStringSlices(a.Origins, b.Origins)
	})
}

func kindOrder(k EventKind) int {
	switch k {
	case EventJobCompleted:
		return 10
	case EventJobTimedOut:
		return 20
	case EventJobLost:
		return 30
	case EventVerdict:
		return 40
	case EventCleared:
		return 50
	case EventTolerated:
		return 60
	case EventRegressed:
		return 70
	case EventDecision:
		return 80
	default:
		return 1000
	}
}

func compareStringSlices(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func (t RunTrace) canonicalCopy() (RunTrace, error) {
	cp := RunTrace{Mode: t.Mode, RunHash: t.RunHash}
	cp.Events = make([]Event, len(t.Events))
	copy(cp.Events, t.Events)
	cp.Canonicalize()
	if err := cp.Validate(); err != nil {
		return RunTrace{}, err
	}
	return cp, nil
}

// CanonicalJSON returns the canonical JSON encoding of the trace.
// It canonicalizes a copy, so the caller's slices are not mutated.
func (t RunTrace) CanonicalJSON() ([]byte, error) {
	cp, err := t.canonicalCopy()
	if err != nil {
		return nil, err
	}
	return json.Marshal(&cp)
}

type yamlEvent struct {
	Kind        string   `yaml:"kind"`
	File        string   `yaml:"file,omitempty"`
	Reason      string   `yaml:"reason,omitempty"`
	Diagnostics int      `yaml:"diagnostics,omitempty"`
	Origins     []string `yaml:"origins,omitempty"`
}

type yamlTrace struct {
	Mode    string      `yaml:"mode"`
	RunHash string      `yaml:"runHash"`
	Events  []yamlEvent `yaml:"events"`
}

// CanonicalYAML returns the canonical YAML encoding of the trace. Field
// order and omission rules match CanonicalJSON.
func (t RunTrace) CanonicalYAML() ([]byte, error) {
	cp, err := t.canonicalCopy()
	if err != nil {
		return nil, err
	}
	doc := yamlTrace{Mode: cp.Mode, RunHash: cp.RunHash, Events: make([]yamlEvent, 0, len(cp.Events))}
	for _, e := range cp.Events {
		doc.Events = append(doc.Events, yamlEvent{
			Kind:        string(e.Kind),
			File:        e.File,
			Reason:      e.Reason,
			Diagnostics: e.Diagnostics,
			Origins:     e.Origins,
		})
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hash returns the sha256 hex of the canonical JSON bytes.
func (t RunTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return ComputeTraceHash(b), nil
}

// MarshalJSON fixes field order. It does not sort; use CanonicalJSON for
// the canonical form.
func (t RunTrace) MarshalJSON() ([]byte, error) {
	if t.RunHash == "" {
		return nil, errors.New("runHash is required")
	}
	var buf bytes.Buffer
	buf.WriteByte('{')

	buf.WriteString("\"mode\":")
	mb, _ := json.Marshal(t.Mode)
	buf.Write(mb)
	buf.WriteByte(',')

	buf.WriteString("\"runHash\":")
	hb, _ := json.Marshal(t.RunHash)
	buf.Write(hb)
	buf.WriteByte(',')

	buf.WriteString("\"events\":[")
	for i := range t.Events {
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := json.Marshal(t.Events[i])
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}
	buf.WriteByte(']')

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON fixes field order and omits empty optional fields.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Kind == "" {
		return nil, errors.New("kind is required")
	}
	var origins []string
	if len(e.Origins) > 0 {
		origins = make([]string, len(e.Origins))
		copy(origins, e.Origins)
		sort.Strings(origins)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')

	buf.WriteString("\"kind\":")
	kb, _ := json.Marshal(string(e.Kind))
	buf.Write(kb)

	if e.File != "" {
		buf.WriteString(",\"file\":")
		fb, _ := json.Marshal(e.File)
		buf.Write(fb)
	}
	if e.Reason != "" {
		buf.WriteString(",\"reason\":")
		rb, _ := json.Marshal(e.Reason)
		buf.Write(rb)
	}
	if e.Diagnostics > 0 {
		fmt.Fprintf(&buf, ",\"diagnostics\":%d", e.Diagnostics)
	}
	if len(origins) > 0 {
		buf.WriteString(",\"origins\":")
		ob, _ := json.Marshal(origins)
		buf.Write(ob)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
