// Package discovery finds the candidate files of a dump run.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"promypy/internal/core"
)

// DefaultExtensions are the file extensions analyzed when none are
// configured.
var DefaultExtensions = []string{".py"}

// Options controls a discovery walk.
type Options struct {
	// Extensions selects files by suffix. Empty means DefaultExtensions.
	Extensions []string

	// Exclude lists path prefixes, matched against the root-relative slash
	// path. A directory matching a prefix is not descended into.
	Exclude []string

	// Fs is the filesystem to walk. Nil means the OS filesystem.
	Fs afero.Fs
}

// Discover walks root recursively and returns the matching files relative
// to root, normalized and sorted.
//
// Entries whose name starts with "." are skipped, as a shell glob would.
func Discover(root string, opts Options) ([]core.FileID, error) {
	fsys := opts.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	exclude := make([]string, 0, len(opts.Exclude))
	for _, e := range opts.Exclude {
		if id := core.NormalizeFileID(e); id != "" {
			exclude = append(exclude, string(id))
		}
	}

	info, err := fsys.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("discover %s: not a directory", root)
	}

	var files []string
	err = afero.Walk(fsys, root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if strings.HasPrefix(info.Name(), ".") || excluded(rel, exclude) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() || !hasExtension(rel, exts) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", root, err)
	}
	return core.NormalizeFileIDs(files), nil
}

func excluded(rel string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(rel, p) {
			return true
		}
	}
	return false
}

func hasExtension(name string, exts []string) bool {
	for _, ext := range exts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
