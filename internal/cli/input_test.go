package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promypy/internal/baseline"
	"promypy/internal/config"
	"promypy/internal/core"
	"promypy/internal/runstate"
)

func TestDumpInvocation_ResolvesPathsAgainstWorkDir(t *testing.T) {
	workDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(workDir, "src"), 0o755))

	s := config.Settings{
		Output:   "out/../baseline.txt",
		Trace:    "traces/./trace.json",
		StateDir: ".promypy",
	}
	inv1, err := DumpInvocation(workDir, "src/", s)
	require.NoError(t, err)
	inv2, err := DumpInvocation(workDir, "src/", s)
	require.NoError(t, err)
	if diff := cmp.Diff(inv1, inv2); diff != "" {
		t.Fatalf("invocation not deterministic (-first +second):\n%s", diff)
	}

	assert.Equal(t, runstate.ModeDump, inv1.Mode)
	assert.Equal(t, filepath.Join(workDir, "src"), inv1.Root)
	assert.Equal(t, filepath.Join(workDir, "baseline.txt"), inv1.Output)
	assert.Equal(t, filepath.Join(workDir, "traces", "trace.json"), inv1.TracePath)
	assert.Equal(t, filepath.Join(workDir, ".promypy"), inv1.StateDir)
	assert.Equal(t, DefaultDumpTimeout, inv1.Timeout)
}

func TestDumpInvocation_DefaultsToWorkDir(t *testing.T) {
	workDir := t.TempDir()

	inv, err := DumpInvocation(workDir, "", config.Settings{Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, workDir, inv.Root)
	assert.Empty(t, inv.Output)
	assert.Equal(t, 5*time.Second, inv.Timeout)
}

func TestDumpInvocation_RejectsMissingOrNonDirectoryRoot(t *testing.T) {
	workDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "file.py"), nil, 0o644))

	for _, dir := range []string{"missing", "file.py"} {
		_, err := DumpInvocation(workDir, dir, config.Settings{})
		require.Error(t, err, dir)
		assert.Equal(t, ExitInvalidInvocation, ExitCode(err), dir)
	}
}

func TestCheckInvocation_NormalizesFiles(t *testing.T) {
	workDir := t.TempDir()
	s := config.Settings{IgnoreFile: "baseline.txt"}

	inv, err := CheckInvocation(workDir, []string{
		"./b.py",
		"a.py",
		"pkg/../a.py",
		filepath.Join(workDir, "pkg", "c.py"),
	}, s)
	require.NoError(t, err)

	assert.Equal(t, runstate.ModeCheck, inv.Mode)
	assert.Equal(t, []core.FileID{"a.py", "b.py", "pkg/c.py"}, inv.Files)
	assert.Equal(t, filepath.Join(workDir, "baseline.txt"), inv.IgnoreFile)
	assert.Equal(t, DefaultCheckTimeout, inv.Timeout)
}

func TestCheckInvocation_Rejects(t *testing.T) {
	workDir := t.TempDir()

	tests := []struct {
		name  string
		files []string
		s     config.Settings
	}{
		{name: "no files", files: nil, s: config.Settings{IgnoreFile: "b.txt"}},
		{name: "no ignore file", files: []string{"a.py"}, s: config.Settings{}},
		{name: "outside work dir", files: []string{"../a.py"}, s: config.Settings{IgnoreFile: "b.txt"}},
		{name: "absolute outside work dir", files: []string{filepath.Join(filepath.Dir(workDir), "a.py")}, s: config.Settings{IgnoreFile: "b.txt"}},
		{name: "work dir itself", files: []string{"."}, s: config.Settings{IgnoreFile: "b.txt"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CheckInvocation(workDir, tc.files, tc.s)
			require.Error(t, err)
			var invErr *InvocationError
			require.True(t, errors.As(err, &invErr), "got %T", err)
			assert.Equal(t, ExitInvalidInvocation, invErr.ExitCode)
		})
	}
}

func TestInvocation_RequiresAbsoluteWorkDir(t *testing.T) {
	_, err := CheckInvocation("relative/dir", []string{"a.py"}, config.Settings{IgnoreFile: "b.txt"})
	require.Error(t, err)
	assert.Equal(t, ExitInvalidInvocation, ExitCode(err))
}

func TestDecisionExitCode(t *testing.T) {
	want := map[baseline.Decision]int{
		baseline.Clean:          ExitSuccess,
		baseline.FullyMigrated:  ExitFullyMigrated,
		baseline.FatalCrash:     ExitAnalyzerCrash,
		baseline.BaselineShrunk: ExitBaselineUpdated,
		baseline.Regressed:      ExitRegressed,
	}
	seen := map[int]baseline.Decision{}
	for d, code := range want {
		assert.Equal(t, code, DecisionExitCode(d), d.String())
		if prev, dup := seen[code]; dup {
			t.Fatalf("%s and %s share exit code %d", prev, d, code)
		}
		seen[code] = d
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitSuccess},
		{invalidInvocationf("bad"), ExitInvalidInvocation},
		{&InvocationError{Message: "no code"}, ExitInvalidInvocation},
		{fmt.Errorf("wrapped: %w", &InvocationError{ExitCode: 99}), 99},
		{fmt.Errorf("run: %w", context.Canceled), ExitInterrupted},
		{errors.New("disk full"), ExitInternalError},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ExitCode(tc.err), "%v", tc.err)
	}
}
