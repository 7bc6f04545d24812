package baseline

import "promypy/internal/core"

// Set is a set of files.
type Set map[core.FileID]struct{}

// NewSet returns a Set holding files.
func NewSet(files ...core.FileID) Set {
	s := make(Set, len(files))
	for _, f := range files {
		s.Add(f)
	}
	return s
}

func (s Set) Add(f core.FileID) { s[f] = struct{}{} }

func (s Set) Contains(f core.FileID) bool {
	_, ok := s[f]
	return ok
}

// Sorted returns the members in lexicographic order.
func (s Set) Sorted() []core.FileID {
	out := make([]core.FileID, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	core.SortFileIDs(out)
	return out
}

// Equal reports whether s and o have the same members.
func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for f := range s {
		if !o.Contains(f) {
			return false
		}
	}
	return true
}

func (s Set) Clone() Set {
	cp := make(Set, len(s))
	for f := range s {
		cp[f] = struct{}{}
	}
	return cp
}
