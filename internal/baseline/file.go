package baseline

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"promypy/internal/atomicfile"
	"promypy/internal/core"
)

// Load reads the baseline at path. A missing file yields an empty Set.
func Load(path string) (Set, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Set{}, nil
		}
		return nil, fmt.Errorf("open baseline: %w", err)
	}
	defer f.Close()

	s, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("read baseline %s: %w", path, err)
	}
	return s, nil
}

// Decode parses baseline content. Lines are normalized; blank lines are
// skipped.
func Decode(r io.Reader) (Set, error) {
	s := Set{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if id := core.NormalizeFileID(sc.Text()); id != "" {
			s.Add(id)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

// Encode renders s in the baseline format. An empty set encodes to no bytes.
func Encode(s Set) []byte {
	var buf bytes.Buffer
	for _, f := range s.Sorted() {
		buf.WriteString(string(f))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Write atomically replaces the baseline at path with s.
func Write(path string, s Set) error {
	if err := atomicfile.WriteFile(path, Encode(s), 0o644); err != nil {
		return fmt.Errorf("write baseline %s: %w", path, err)
	}
	return nil
}

// Remove deletes the baseline at path. A missing file is not an error.
func Remove(path string) error {
	if err := atomicfile.Remove(path); err != nil {
		return fmt.Errorf("remove baseline %s: %w", path, err)
	}
	return nil
}
