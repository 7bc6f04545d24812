package verdict

import (
	"sort"

	"promypy/internal/core"
)

// Kind is the canonical classification of one file after a run.
//
// Kinds are ordered by severity. When a file is reached more than once (its
// own job plus diagnostics from other jobs) the most severe Kind wins.
type Kind int

const (
	CleanPass Kind = iota
	HasDiagnostics
	TimedOut
	Crashed
)

func (k Kind) String() string {
	switch k {
	case CleanPass:
		return "clean"
	case HasDiagnostics:
		return "diagnostics"
	case TimedOut:
		return "timed-out"
	case Crashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// Failing reports whether the verdict keeps a file out of a clean run.
func (k Kind) Failing() bool { return k != CleanPass }

// Merge returns the more severe of a and b.
func Merge(a, b Kind) Kind {
	if b > a {
		return b
	}
	return a
}

// Set maps each file reached during a run to its verdict.
type Set map[core.FileID]Kind

// Record merges k into the verdict for file.
func (s Set) Record(file core.FileID, k Kind) {
	if cur, ok := s[file]; ok {
		s[file] = Merge(cur, k)
		return
	}
	s[file] = k
}

// Failing returns the files with a failing verdict, sorted.
func (s Set) Failing() []core.FileID {
	out := make([]core.FileID, 0, len(s))
	for f, k := range s {
		if k.Failing() {
			out = append(out, f)
		}
	}
	core.SortFileIDs(out)
	return out
}

// Files returns every file in the set, sorted.
func (s Set) Files() []core.FileID {
	out := make([]core.FileID, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	core.SortFileIDs(out)
	return out
}

// Clone returns an independent copy of s.
func (s Set) Clone() Set {
	cp := make(Set, len(s))
	for f, k := range s {
		cp[f] = k
	}
	return cp
}

// Diagnostic is one line of analyzer output attributed to a file.
type Diagnostic struct {
	// File is the file the line names.
	File core.FileID
	Line string

	// Origin is the file whose job produced the line and Index its position
	// in that job's output. Together they give diagnostics a stable order.
	Origin core.FileID
	Index  int
}

func sortDiagnostics(ds []Diagnostic) {
	sort.Slice(ds, func(i, j int) bool {
		a, b := ds[i], ds[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Origin != b.Origin {
			return a.Origin < b.Origin
		}
		return a.Index < b.Index
	})
}
