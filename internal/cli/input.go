package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"promypy/internal/baseline"
	"promypy/internal/config"
	"promypy/internal/core"
	"promypy/internal/runstate"
)

const (
	ExitSuccess           = 0
	ExitFullyMigrated     = 1
	ExitAnalyzerCrash     = 2
	ExitBaselineUpdated   = 3
	ExitRegressed         = 4
	ExitInvalidInvocation = 64
	ExitInternalError     = 70
	ExitInterrupted       = 130
)

// Per-mode timeouts used when none is configured.
const (
	DefaultDumpTimeout  = 30 * time.Second
	DefaultCheckTimeout = 40 * time.Second
)

// Invocation is the fully canonicalized description of a run.
//
// All paths are absolute and clean. Relative paths given on the command
// line or in configuration are resolved against WorkDir, never against
// whatever directory the process happens to be in later.
type Invocation struct {
	Mode    runstate.Mode
	WorkDir string

	// Root is the dump directory. Discovered files are relative to it and
	// the analyzer runs in it.
	Root string

	// Files are the check targets, relative to WorkDir.
	Files []core.FileID

	// IgnoreFile is the baseline read and maintained by check.
	IgnoreFile string

	// Output is the dump artifact path; empty writes to stdout.
	Output string

	TracePath string
	StateDir  string

	Timeout  time.Duration
	Settings config.Settings
}

// InvocationError reports an unusable command line or configuration.
type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// DumpInvocation canonicalizes a dump run. directory may be empty, meaning
// the working directory.
func DumpInvocation(workDir, directory string, s config.Settings) (Invocation, error) {
	inv, err := baseInvocation(runstate.ModeDump, workDir, s)
	if err != nil {
		return Invocation{}, err
	}
	inv.Timeout = s.TimeoutOr(DefaultDumpTimeout)

	if strings.TrimSpace(directory) == "" {
		directory = "."
	}
	root := filepath.Clean(directory)
	if !filepath.IsAbs(root) {
		root = filepath.Join(inv.WorkDir, root)
	}
	fi, err := os.Stat(root)
	if err != nil {
		return Invocation{}, invalidInvocationf("directory %q: %v", directory, err)
	}
	if !fi.IsDir() {
		return Invocation{}, invalidInvocationf("%q is not a directory", directory)
	}
	inv.Root = root

	if s.Output != "" {
		if inv.Output, err = resolveUnderWorkDir(inv.WorkDir, s.Output); err != nil {
			return Invocation{}, err
		}
	}
	return inv, nil
}

// CheckInvocation canonicalizes a check run.
//
// Every file must lie under workDir: baseline entries are paths relative to
// it, so a target outside it could never be matched.
func CheckInvocation(workDir string, files []string, s config.Settings) (Invocation, error) {
	inv, err := baseInvocation(runstate.ModeCheck, workDir, s)
	if err != nil {
		return Invocation{}, err
	}
	inv.Timeout = s.TimeoutOr(DefaultCheckTimeout)

	if len(files) == 0 {
		return Invocation{}, invalidInvocationf("at least one file is required")
	}
	if strings.TrimSpace(s.IgnoreFile) == "" {
		return Invocation{}, invalidInvocationf("--ignore-file is required")
	}
	if inv.IgnoreFile, err = resolveUnderWorkDir(inv.WorkDir, s.IgnoreFile); err != nil {
		return Invocation{}, err
	}

	rel := make([]string, 0, len(files))
	for _, f := range files {
		p, err := relativeToWorkDir(inv.WorkDir, f)
		if err != nil {
			return Invocation{}, err
		}
		rel = append(rel, p)
	}
	inv.Files = core.NormalizeFileIDs(rel)
	return inv, nil
}

func baseInvocation(mode runstate.Mode, workDir string, s config.Settings) (Invocation, error) {
	workDir = filepath.Clean(workDir)
	if !filepath.IsAbs(workDir) {
		return Invocation{}, invalidInvocationf("working directory must be absolute (got %q)", workDir)
	}
	inv := Invocation{Mode: mode, WorkDir: workDir, Settings: s}

	var err error
	if strings.TrimSpace(s.Trace) != "" {
		if inv.TracePath, err = resolveUnderWorkDir(workDir, s.Trace); err != nil {
			return Invocation{}, err
		}
	}
	if strings.TrimSpace(s.StateDir) != "" {
		if inv.StateDir, err = resolveUnderWorkDir(workDir, s.StateDir); err != nil {
			return Invocation{}, err
		}
	}
	return inv, nil
}

func resolveUnderWorkDir(workDir, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", invalidInvocationf("path must not be empty")
	}
	clean := filepath.Clean(p)
	if clean == "." {
		return "", invalidInvocationf("path must not be '.'")
	}
	if filepath.IsAbs(clean) {
		return clean, nil
	}
	return filepath.Join(workDir, clean), nil
}

func relativeToWorkDir(workDir, p string) (string, error) {
	abs, err := resolveUnderWorkDir(workDir, p)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(workDir, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", invalidInvocationf("file %q is outside the working directory %s", p, workDir)
	}
	return rel, nil
}

// DecisionExitCode translates a check decision into the process exit code.
func DecisionExitCode(d baseline.Decision) int {
	switch d {
	case baseline.Clean:
		return ExitSuccess
	case baseline.FullyMigrated:
		return ExitFullyMigrated
	case baseline.BaselineShrunk:
		return ExitBaselineUpdated
	case baseline.Regressed:
		return ExitRegressed
	case baseline.FatalCrash:
		return ExitAnalyzerCrash
	default:
		return ExitInternalError
	}
}

// ExitCode extracts a semantic exit code from a run error.
// Unknown errors map to ExitInternalError.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	if errors.Is(err, context.Canceled) {
		return ExitInterrupted
	}
	return ExitInternalError
}
