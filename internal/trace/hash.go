package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// ComputeTraceHash returns the sha256 hex of a canonical trace encoding.
// The input is assumed to come from RunTrace.CanonicalJSON.
func ComputeTraceHash(canonicalEncoding []byte) string {
	if len(canonicalEncoding) == 0 {
		return ""
	}
	sum := sha256.Sum256(canonicalEncoding)
	return hex.EncodeToString(sum[:])
}

// ComputeRunHash identifies the input of a run: the mode, the submitted
// files (order-insensitive) and the analyzer arguments (order-sensitive).
func ComputeRunHash(mode string, files []string, args []string) string {
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(mode))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(sorted, "\n")))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(args, "\x1f")))
	return hex.EncodeToString(h.Sum(nil))
}
