package core

import (
	"bytes"
	"regexp"
)

// OutputNormalizer rewrites raw analyzer output before it is attributed.
type OutputNormalizer interface {
	Normalize(content []byte) []byte
}

// ANSINormalizer strips terminal escape sequences.
//
// Analyzers that detect a terminal (or are forced with a color flag) wrap
// file names in color codes, which would otherwise defeat attribution of
// "path:line: message" lines.
type ANSINormalizer struct {
	pattern *regexp.Regexp
}

// NewANSINormalizer creates a normalizer for CSI and OSC escape sequences.
func NewANSINormalizer() *ANSINormalizer {
	return &ANSINormalizer{
		pattern: regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07\x1b]*(\x07|\x1b\\)`),
	}
}

// Normalize removes all escape sequences from content.
func (n *ANSINormalizer) Normalize(content []byte) []byte {
	if bytes.IndexByte(content, 0x1b) < 0 {
		return content
	}
	return n.pattern.ReplaceAll(content, nil)
}

// StreamNormalizer normalizes line endings for cross-platform consistency.
// Converts all line endings to Unix-style (LF).
type StreamNormalizer struct {
	// Inner normalizer to apply after line ending normalization
	Inner OutputNormalizer
}

// NewStreamNormalizer creates a normalizer that standardizes line endings.
func NewStreamNormalizer(inner OutputNormalizer) *StreamNormalizer {
	return &StreamNormalizer{Inner: inner}
}

// Normalize converts CRLF (and lone CR) to LF and optionally applies the
// inner normalizer.
func (n *StreamNormalizer) Normalize(content []byte) []byte {
	result := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	result = bytes.ReplaceAll(result, []byte("\r"), []byte("\n"))

	if n.Inner != nil {
		result = n.Inner.Normalize(result)
	}

	return result
}
