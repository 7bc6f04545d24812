package verdict

import (
	"fmt"
	"regexp"
	"strings"

	"promypy/internal/core"
)

// DefaultPattern attributes "path/to/file.py:LINE: message" lines (and .pyi
// stubs) to the leading path.
const DefaultPattern = `^([^:]+\.pyi?):`

// Extractor attributes one line of analyzer output to the file it names.
//
// Attribution is the only analyzer-specific knowledge in the pipeline.
// Alternate analyzers plug in their own Extractor; scheduling and
// reconciliation never look at output lines.
type Extractor interface {
	Extract(line string) (core.FileID, bool)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(line string) (core.FileID, bool)

func (f ExtractorFunc) Extract(line string) (core.FileID, bool) { return f(line) }

// RegexExtractor attributes a line to the first capture group of Pattern.
type RegexExtractor struct {
	Pattern *regexp.Regexp
}

// NewRegexExtractor compiles pattern, which must have at least one capture
// group.
func NewRegexExtractor(pattern string) (*RegexExtractor, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("diagnostic pattern: %w", err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("diagnostic pattern %q: needs a capture group for the file path", pattern)
	}
	return &RegexExtractor{Pattern: re}, nil
}

// Extract returns the normalized file named by line. Lines without a colon
// never match.
func (e *RegexExtractor) Extract(line string) (core.FileID, bool) {
	if !strings.Contains(line, ":") {
		return "", false
	}
	m := e.Pattern.FindStringSubmatch(line)
	if len(m) < 2 {
		return "", false
	}
	id := core.NormalizeFileID(m[1])
	if id == "" {
		return "", false
	}
	return id, true
}

// DefaultExtractor returns an Extractor for DefaultPattern.
func DefaultExtractor() Extractor {
	return &RegexExtractor{Pattern: defaultPattern}
}

var defaultPattern = regexp.MustCompile(DefaultPattern)
