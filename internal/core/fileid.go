package core

import (
	"path/filepath"
	"sort"
	"strings"
)

// FileID is a normalized relative path.
//
// Two FileIDs are equal iff their normalized strings are equal, so every
// path entering the system (CLI arguments, baseline lines, diagnostic
// attributions, discovered files) must pass through NormalizeFileID.
type FileID string

func (f FileID) String() string { return string(f) }

// NormalizeFileID canonicalizes a path into a FileID.
//
// Normalization:
//   - surrounding whitespace is trimmed
//   - the path is cleaned (duplicate separators, "." and ".." segments)
//   - separators become forward slashes
//   - a leading "./" is removed
//
// An empty or whitespace-only input yields the empty FileID.
func NormalizeFileID(p string) FileID {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(p)))
	clean = strings.TrimPrefix(clean, "./")
	if clean == "." {
		return ""
	}
	return FileID(clean)
}

// NormalizeFileIDs normalizes, de-duplicates and sorts paths.
// Empty entries are dropped.
func NormalizeFileIDs(paths []string) []FileID {
	seen := make(map[FileID]struct{}, len(paths))
	out := make([]FileID, 0, len(paths))
	for _, p := range paths {
		id := NormalizeFileID(p)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	SortFileIDs(out)
	return out
}

// SortFileIDs sorts ids lexicographically in place.
func SortFileIDs(ids []FileID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
