package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"promypy/internal/core"
	"promypy/internal/runstate"
)

// fakeAnalyzer answers from a table keyed by file. Unknown files pass.
type fakeAnalyzer struct {
	outcomes map[core.FileID]core.Outcome
	hang     map[core.FileID]bool

	// stuck files ignore cancellation and block until release is closed.
	stuck   map[core.FileID]bool
	release chan struct{}

	mu      sync.Mutex
	workDir string
	args    map[core.FileID][]string
}

func (f *fakeAnalyzer) Invoke(ctx context.Context, file core.FileID, extraArgs []string) (core.Outcome, error) {
	f.mu.Lock()
	if f.args == nil {
		f.args = map[core.FileID][]string{}
	}
	f.args[file] = extraArgs
	f.mu.Unlock()

	if f.stuck[file] {
		<-f.release
		return core.Outcome{File: file, Status: core.StatusSuccess}, nil
	}
	if f.hang[file] {
		<-ctx.Done()
		return core.Outcome{File: file, Status: core.StatusTimeout, StatusCode: -1}, core.TimedOutJob(file, "%v", ctx.Err())
	}
	o, ok := f.outcomes[file]
	if !ok {
		return core.Outcome{File: file, Status: core.StatusSuccess}, nil
	}
	o.File = file
	return o, nil
}

func failing(lines ...string) core.Outcome {
	return core.Outcome{
		Status:     core.StatusRuleFailure,
		StatusCode: 1,
		RawOutput:  strings.Join(lines, "\n") + "\nFound errors\n",
	}
}

func crashing(stderr string) core.Outcome {
	return core.Outcome{Status: core.StatusCrash, StatusCode: core.CrashExitCode, Stderr: stderr}
}

type harness struct {
	t       *testing.T
	workDir string
	stdout  bytes.Buffer
	stderr  bytes.Buffer
	fake    *fakeAnalyzer
}

func newHarness(t *testing.T, fake *fakeAnalyzer) *harness {
	t.Helper()
	if fake == nil {
		fake = &fakeAnalyzer{}
	}
	return &harness{t: t, workDir: t.TempDir(), fake: fake}
}

func (h *harness) env() *environment {
	return &environment{
		Stdout:  &h.stdout,
		Stderr:  &h.stderr,
		WorkDir: h.workDir,
		NewInvoker: func(_ []string, workDir string) core.Invoker {
			h.fake.mu.Lock()
			h.fake.workDir = workDir
			h.fake.mu.Unlock()
			return h.fake
		},
		Logger: zaptest.NewLogger(h.t),
	}
}

func (h *harness) run(args ...string) int {
	h.t.Helper()
	return h.runContext(context.Background(), args...)
}

func (h *harness) runContext(ctx context.Context, args ...string) int {
	h.t.Helper()
	h.stdout.Reset()
	h.stderr.Reset()
	return run(ctx, args, h.env())
}

func (h *harness) write(rel, content string) {
	h.t.Helper()
	path := filepath.Join(h.workDir, rel)
	require.NoError(h.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(h.t, os.WriteFile(path, []byte(content), 0o644))
}

func (h *harness) read(rel string) string {
	h.t.Helper()
	b, err := os.ReadFile(filepath.Join(h.workDir, rel))
	require.NoError(h.t, err)
	return string(b)
}

func (h *harness) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(h.workDir, rel))
	return err == nil
}

func TestCheck_BaselineShrinks(t *testing.T) {
	h := newHarness(t, &fakeAnalyzer{outcomes: map[core.FileID]core.Outcome{
		"b.py": failing("b.py:1: error: Function is missing a return type annotation"),
	}})
	h.write("baseline.txt", "a.py\nb.py\n")

	code := h.run("check", "a.py", "b.py", "c.py", "-f", "baseline.txt")

	require.Equal(t, ExitBaselineUpdated, code, "stderr: %s", h.stderr.String())
	assert.Equal(t, "b.py\n", h.read("baseline.txt"))
	out := h.stdout.String()
	assert.True(t, strings.HasPrefix(out, "baseline.txt has been updated.\n"), out)
	assert.Contains(t, out, "Success! 🚀")
	assert.Contains(t, out, "Number of files missing: 1.")
	assert.NotContains(t, out, "b.py:1:", "tolerated diagnostics must be suppressed")
}

func TestCheck_FullyMigrated(t *testing.T) {
	h := newHarness(t, nil)
	h.write("baseline.txt", "a.py\n")

	code := h.run("check", "a.py", "--ignore-file", "baseline.txt")

	require.Equal(t, ExitFullyMigrated, code, "stderr: %s", h.stderr.String())
	assert.False(t, h.exists("baseline.txt"), "baseline must be retired")
	assert.Contains(t, h.stdout.String(), "This project is now fully type annotated! 🎉")
}

func TestCheck_Regression(t *testing.T) {
	line := "x.py:3: error: Function is missing a type annotation"
	h := newHarness(t, &fakeAnalyzer{outcomes: map[core.FileID]core.Outcome{
		"x.py": failing(line),
	}})

	code := h.run("check", "x.py", "-f", "baseline.txt")

	require.Equal(t, ExitRegressed, code)
	assert.Equal(t, line+"\n", h.stdout.String())
	assert.False(t, h.exists("baseline.txt"), "a regression must not create a baseline")
}

func TestCheck_CleanLeavesBaselineUntouched(t *testing.T) {
	h := newHarness(t, nil)
	h.write("baseline.txt", "a.py\n")

	code := h.run("check", "b.py", "-f", "baseline.txt")

	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "a.py\n", h.read("baseline.txt"))
	assert.NotContains(t, h.stdout.String(), "has been updated")
	assert.Contains(t, h.stdout.String(), "Number of files missing: 1.")
}

func TestCheck_DiagnosticsInNonSubmittedFiles(t *testing.T) {
	h := newHarness(t, &fakeAnalyzer{outcomes: map[core.FileID]core.Outcome{
		"b.py": failing(
			"b.py:1: error: Missing return statement",
			"lib/dep.py:2: error: Incompatible return value type",
			"legacy.py:9: error: Name \"x\" is not defined",
		),
	}})
	h.write("baseline.txt", "b.py\nlegacy.py\n")

	code := h.run("check", "b.py", "-f", "baseline.txt")

	require.Equal(t, ExitRegressed, code)
	out := h.stdout.String()
	assert.Contains(t, out, "lib/dep.py:2: error")
	assert.NotContains(t, out, "b.py:1:")
	assert.NotContains(t, out, "legacy.py:9:")
	assert.Equal(t, "b.py\nlegacy.py\n", h.read("baseline.txt"))
}

func TestCheck_RegressionStillPersistsShrunkBaseline(t *testing.T) {
	h := newHarness(t, &fakeAnalyzer{outcomes: map[core.FileID]core.Outcome{
		"b.py": failing("b.py:1: error: Missing return statement"),
		"x.py": failing("x.py:1: error: Missing return statement"),
	}})
	h.write("baseline.txt", "a.py\nb.py\n")

	code := h.run("check", "a.py", "b.py", "x.py", "-f", "baseline.txt")

	require.Equal(t, ExitRegressed, code)
	assert.Equal(t, "b.py\n", h.read("baseline.txt"))
	lines := strings.Split(strings.TrimSuffix(h.stdout.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"baseline.txt has been updated.",
		"x.py:1: error: Missing return statement",
	}, lines)
}

func TestCheck_CrashIsFatalAndWritesNothing(t *testing.T) {
	h := newHarness(t, &fakeAnalyzer{outcomes: map[core.FileID]core.Outcome{
		"b.py": crashing("INTERNAL ERROR: maximum semantic analysis iteration count reached"),
	}})
	h.write("baseline.txt", "a.py\nb.py\n")

	code := h.run("check", "a.py", "b.py", "-f", "baseline.txt")

	require.Equal(t, ExitAnalyzerCrash, code)
	assert.Equal(t, "a.py\nb.py\n", h.read("baseline.txt"), "a crash must not touch the baseline")
	errOut := h.stderr.String()
	assert.Contains(t, errOut, "promypy failed with exit status code 2")
	assert.Contains(t, errOut, "Error in file: b.py")
	assert.Contains(t, errOut, "INTERNAL ERROR")
	assert.NotContains(t, h.stdout.String(), "Success")
}

func TestCheck_TimeoutCountsAsFailing(t *testing.T) {
	h := newHarness(t, &fakeAnalyzer{hang: map[core.FileID]bool{"slow.py": true}})

	code := h.run("check", "slow.py", "ok.py", "-f", "baseline.txt", "--timeout", "0.1")

	require.Equal(t, ExitRegressed, code)
	assert.Contains(t, h.stdout.String(), "Failing without diagnostics:\n  slow.py\n")
	assert.Contains(t, h.stderr.String(), "Timed out (1):")
}

func TestCheck_TimeoutOfBaselineFileIsTolerated(t *testing.T) {
	h := newHarness(t, &fakeAnalyzer{hang: map[core.FileID]bool{"slow.py": true}})
	h.write("baseline.txt", "slow.py\n")

	code := h.run("check", "slow.py", "-f", "baseline.txt", "--timeout", "100ms")

	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "slow.py\n", h.read("baseline.txt"))
}

func TestCheck_CrashStopsRemainingJobs(t *testing.T) {
	h := newHarness(t, &fakeAnalyzer{
		outcomes: map[core.FileID]core.Outcome{"a.py": crashing("INTERNAL ERROR")},
		hang:     map[core.FileID]bool{"b.py": true},
	})
	h.write("baseline.txt", "b.py\n")

	start := time.Now()
	code := h.run("check", "a.py", "b.py", "-f", "baseline.txt", "--timeout", "30", "--workers", "2")

	require.Equal(t, ExitAnalyzerCrash, code, "stderr: %s", h.stderr.String())
	assert.Less(t, time.Since(start), 10*time.Second, "a crash must not wait for the other jobs")
	assert.Contains(t, h.stderr.String(), "Error in file: a.py")
	assert.NotContains(t, h.stderr.String(), "interrupted")
	assert.Equal(t, "b.py\n", h.read("baseline.txt"))
}

func TestDump_CrashStopsRemainingJobs(t *testing.T) {
	h := newHarness(t, &fakeAnalyzer{
		outcomes: map[core.FileID]core.Outcome{"a.py": crashing("INTERNAL ERROR")},
		hang:     map[core.FileID]bool{"b.py": true},
	})
	h.write("a.py", "")
	h.write("b.py", "")

	start := time.Now()
	code := h.run("dump", "--timeout", "30", "--workers", "2")

	require.Equal(t, ExitAnalyzerCrash, code, "stderr: %s", h.stderr.String())
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Empty(t, h.stdout.String())
}

func TestCheck_StuckAnalyzerDoesNotHoldTheRun(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	h := newHarness(t, &fakeAnalyzer{stuck: map[core.FileID]bool{"a.py": true}, release: release})

	start := time.Now()
	code := h.run("check", "a.py", "-f", "baseline.txt", "--timeout", "100ms")

	require.Equal(t, ExitRegressed, code, "stderr: %s", h.stderr.String())
	assert.Less(t, time.Since(start), 5*time.Second, "abandoned invocations must not be joined")
	assert.Contains(t, h.stderr.String(), "a.py")
}

func TestCheck_PassesAnalyzerArguments(t *testing.T) {
	h := newHarness(t, nil)

	code := h.run("check", "a.py", "-f", "baseline.txt", "--mypy-args", `--strict --config-file "my setup.cfg"`)

	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, []string{"--strict", "--config-file", "my setup.cfg"}, h.fake.args["a.py"])
	assert.Equal(t, h.workDir, h.fake.workDir)
}

func TestCheck_ReadsConfigurationFile(t *testing.T) {
	h := newHarness(t, nil)
	h.write(".promypy.yaml", "ignore_file: baseline.txt\nmypy_args: --strict\n")
	h.write("baseline.txt", "a.py\nb.py\n")

	code := h.run("check", "a.py")

	require.Equal(t, ExitBaselineUpdated, code, "stderr: %s", h.stderr.String())
	assert.Equal(t, "b.py\n", h.read("baseline.txt"))
	assert.Equal(t, []string{"--strict"}, h.fake.args["a.py"])
}

func TestCheck_ReadsPyproject(t *testing.T) {
	h := newHarness(t, nil)
	h.write("pyproject.toml", "[tool.promypy]\nignore-file = \"baseline.txt\"\nmypy-args = \"--strict\"\n")

	code := h.run("check", "a.py", "--mypy-args", "--no-strict-optional")

	require.Equal(t, ExitSuccess, code, "stderr: %s", h.stderr.String())
	assert.Equal(t, []string{"--no-strict-optional"}, h.fake.args["a.py"], "flags override configuration")
}

func TestCheck_InterruptWritesNothing(t *testing.T) {
	h := newHarness(t, nil)
	h.write("baseline.txt", "a.py\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	code := h.runContext(ctx, "check", "a.py", "-f", "baseline.txt")

	require.Equal(t, ExitInterrupted, code)
	assert.Equal(t, "a.py\n", h.read("baseline.txt"))
	assert.Contains(t, h.stderr.String(), "interrupted")
}

func TestInvalidInvocations(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing ignore file", []string{"check", "a.py"}, "--ignore-file is required"},
		{"no files", []string{"check", "-f", "baseline.txt"}, "requires at least 1 arg"},
		{"outside work dir", []string{"check", "../a.py", "-f", "baseline.txt"}, "outside the working directory"},
		{"unknown flag", []string{"check", "a.py", "--nope"}, "unknown flag"},
		{"unknown command", []string{"lint"}, `unknown command "lint"`},
		{"bad timeout", []string{"check", "a.py", "-f", "b.txt", "--timeout", "soon"}, "timeout"},
		{"too many dump dirs", []string{"dump", "a", "b"}, "accepts at most 1 arg"},
		{"bad progress", []string{"check", "a.py", "-f", "b.txt", "--progress", "sometimes"}, "invalid progress mode"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, nil)
			code := h.run(tc.args...)
			assert.Equal(t, ExitInvalidInvocation, code)
			assert.Contains(t, h.stderr.String(), tc.want)
		})
	}
}

func TestNoArgumentsPrintsHelp(t *testing.T) {
	h := newHarness(t, nil)

	code := h.run()

	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, h.stdout.String(), "dump")
	assert.Contains(t, h.stdout.String(), "check")
}

func TestDump_WritesFailingFilesToStdout(t *testing.T) {
	h := newHarness(t, &fakeAnalyzer{outcomes: map[core.FileID]core.Outcome{
		"pkg/b.py": failing("pkg/b.py:1: error: Missing return statement"),
		"skip/e.py": failing("skip/e.py:1: error: Missing return statement"),
		"a.py":     failing("pkg/b.py:7: error: reported through an import"),
	}})
	h.write("a.py", "")
	h.write("pkg/b.py", "")
	h.write("pkg/c.py", "")
	h.write("skip/e.py", "")
	h.write(".venv/lib.py", "")
	h.write("notes.txt", "")

	code := h.run("dump", "--exclude", "skip")

	require.Equal(t, ExitSuccess, code, "stderr: %s", h.stderr.String())
	assert.Equal(t, "a.py\npkg/b.py\n", h.stdout.String())
	assert.Equal(t, h.workDir, h.fake.workDir)
	assert.NotContains(t, h.fake.args, core.FileID("skip/e.py"))
	assert.NotContains(t, h.fake.args, core.FileID(".venv/lib.py"))
}

func TestDump_DirectoryAndOutputFile(t *testing.T) {
	h := newHarness(t, &fakeAnalyzer{outcomes: map[core.FileID]core.Outcome{
		"mod.py": failing("mod.py:1: error: Missing return statement"),
	}})
	h.write("src/mod.py", "")
	h.write("src/ok.py", "")

	code := h.run("dump", "src", "-o", "baseline.txt", "--timeout", "5")

	require.Equal(t, ExitSuccess, code, "stderr: %s", h.stderr.String())
	assert.Empty(t, h.stdout.String())
	assert.Equal(t, "mod.py\n", h.read("baseline.txt"))
	assert.Equal(t, filepath.Join(h.workDir, "src"), h.fake.workDir)
}

func TestDump_CrashWritesNoArtifact(t *testing.T) {
	h := newHarness(t, &fakeAnalyzer{outcomes: map[core.FileID]core.Outcome{
		"a.py": crashing("INTERNAL ERROR"),
	}})
	h.write("a.py", "")
	h.write("b.py", "")

	code := h.run("dump", "--output", "baseline.txt")

	require.Equal(t, ExitAnalyzerCrash, code)
	assert.False(t, h.exists("baseline.txt"))
	assert.Contains(t, h.stderr.String(), "Error in file: a.py")
}

func TestDumpThenCheck_RoundTrip(t *testing.T) {
	fake := &fakeAnalyzer{outcomes: map[core.FileID]core.Outcome{
		"a.py": failing("a.py:1: error: Missing return statement"),
	}}
	h := newHarness(t, fake)
	h.write("a.py", "")
	h.write("b.py", "")

	require.Equal(t, ExitSuccess, h.run("dump", "-o", "baseline.txt"))
	require.Equal(t, ExitSuccess, h.run("check", "a.py", "b.py", "-f", "baseline.txt"))

	delete(fake.outcomes, "a.py")
	require.Equal(t, ExitFullyMigrated, h.run("check", "a.py", "b.py", "-f", "baseline.txt"))
	assert.False(t, h.exists("baseline.txt"))

	// Once retired, a clean run stays clean.
	require.Equal(t, ExitSuccess, h.run("check", "a.py", "b.py", "-f", "baseline.txt"))
}

func TestTraceIsIdenticalAcrossRuns(t *testing.T) {
	h := newHarness(t, &fakeAnalyzer{outcomes: map[core.FileID]core.Outcome{
		"b.py": failing("b.py:1: error: Missing return statement", "c.py:2: error: Incompatible types"),
	}})

	var traces []string
	for i := 0; i < 3; i++ {
		h.write("baseline.txt", "a.py\nb.py\nc.py\n")
		code := h.run("check", "a.py", "b.py", "c.py", "-f", "baseline.txt", "--trace", "trace.json", "--workers", "3")
		require.Equal(t, ExitBaselineUpdated, code)
		traces = append(traces, h.read("trace.json"))
	}
	assert.Equal(t, traces[0], traces[1])
	assert.Equal(t, traces[0], traces[2])
	assert.Contains(t, traces[0], `"Cleared"`)
	assert.Contains(t, traces[0], "BASELINE_SHRUNK")
}

func TestRunRecords(t *testing.T) {
	h := newHarness(t, &fakeAnalyzer{outcomes: map[core.FileID]core.Outcome{
		"x.py": failing("x.py:1: error: Missing return statement"),
	}})

	require.Equal(t, ExitSuccess, h.run("check", "a.py", "-f", "baseline.txt", "--state-dir", ".promypy"))
	require.Equal(t, ExitRegressed, h.run("check", "x.py", "-f", "baseline.txt", "--state-dir", ".promypy"))

	store, err := runstate.NewStore(filepath.Join(h.workDir, ".promypy"))
	require.NoError(t, err)
	ids, err := store.ListRunIDs()
	require.NoError(t, err)
	require.Len(t, ids, 2)

	first, err := store.LoadRun(ids[0])
	require.NoError(t, err)
	second, err := store.LoadRun(ids[1])
	require.NoError(t, err)

	assert.Equal(t, runstate.RunStatusSucceeded, first.Status)
	assert.Equal(t, "CLEAN", first.Decision)
	require.NotNil(t, second.PreviousRunID)
	assert.Equal(t, first.RunID, *second.PreviousRunID)
	assert.Equal(t, runstate.RunStatusFailed, second.Status)
	require.NotNil(t, second.ExitCode)
	assert.Equal(t, ExitRegressed, *second.ExitCode)

	failure, err := store.LoadFailure(second.RunID)
	require.NoError(t, err)
	assert.Equal(t, runstate.FailureClassRegression, failure.FailureClass)
	assert.Equal(t, []string{"x.py"}, failure.Files)
}

func TestRunRecords_RejectedInvocation(t *testing.T) {
	h := newHarness(t, nil)

	require.Equal(t, ExitInvalidInvocation, h.run("check", "../a.py", "-f", "baseline.txt", "--state-dir", ".promypy"))

	store, err := runstate.NewStore(filepath.Join(h.workDir, ".promypy"))
	require.NoError(t, err)
	id, err := store.LatestRunID()
	require.NoError(t, err)
	require.NotEmpty(t, id)
	failure, err := store.LoadFailure(id)
	require.NoError(t, err)
	assert.Equal(t, runstate.FailureClassInvocation, failure.FailureClass)
}
