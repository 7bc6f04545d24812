package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"promypy/internal/config"
	"promypy/internal/core"
	"promypy/internal/logging"
	"promypy/internal/runstate"
	"promypy/internal/trace"
)

// environment is everything a run takes from the process. Tests replace
// the invoker and the logger; main uses the defaults.
type environment struct {
	Stdout  io.Writer
	Stderr  io.Writer
	WorkDir string

	// NewInvoker builds the analyzer invoker. Nil means a ProcessInvoker.
	NewInvoker func(command []string, workDir string) core.Invoker

	// Logger, when set, replaces the logger built from configuration.
	Logger *zap.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

func (e *environment) newInvoker(command []string, workDir string) core.Invoker {
	if e.NewInvoker != nil {
		return e.NewInvoker(command, workDir)
	}
	return core.NewProcessInvoker(command, workDir)
}

func (e *environment) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *environment) logger(s config.Settings) (*zap.Logger, error) {
	if e.Logger != nil {
		return e.Logger, nil
	}
	lvl, err := logging.ParseLevel(s.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Config{Level: lvl, Format: s.LogFormat, Output: e.Stderr})
}

// recordRejected persists a failed run for an invocation that was rejected
// before any analysis started. It is best effort.
func (e *environment) recordRejected(s config.Settings, mode runstate.Mode, cause error) {
	if s.StateDir == "" {
		return
	}
	dir := s.StateDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(e.WorkDir, dir)
	}
	rec, err := runstate.NewRecorder(dir)
	if err != nil {
		return
	}
	rec.Now = e.now
	run, err := rec.StartRun(runstate.Run{
		RunHash: trace.ComputeRunHash(string(mode), nil, s.MypyArgs),
		Mode:    mode,
	})
	if err != nil {
		return
	}
	_ = rec.RecordFailure(run.RunID, &runstate.InvocationFailureError{
		Code:    "InvalidInvocation",
		Message: cause.Error(),
		Cause:   cause,
	})
	_, _ = rec.FinishRun(run, runstate.RunStatusFailed, "", ExitCode(cause))
}

// Run is the CLI entrypoint suitable for black-box tests. It accepts the
// argument slice (excluding argv[0]) and returns the process exit code.
//
// ctx cancellation (an interrupt) stops the run: no baseline or dump
// artifact is written and ExitInterrupted is returned.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "promypy: %v\n", err)
		return ExitInternalError
	}
	return run(ctx, args, &environment{Stdout: stdout, Stderr: stderr, WorkDir: wd})
}

func run(ctx context.Context, args []string, env *environment) int {
	exit := ExitSuccess
	root := newRootCommand(env, &exit)
	root.SetArgs(args)
	root.SetOut(env.Stdout)
	root.SetErr(env.Stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exit
	}

	p := newPrinter(env.Stdout, env.Stderr)
	switch {
	case errors.Is(err, context.Canceled):
		p.failure("promypy: interrupted")
	default:
		p.failure("promypy: %v", err)
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) {
		fmt.Fprintf(env.Stderr, "Run '%s --help' for usage.\n", root.Name())
	}
	return ExitCode(err)
}

// execute runs inv and stores the exit code in exit. A returned error is
// reported by the caller; expected failures (crashes, regressions) have
// already been printed and return nil.
func execute(cmd *cobra.Command, inv Invocation, env *environment, exit *int) error {
	log, err := env.logger(inv.Settings)
	if err != nil {
		return invalidInvocationf("%v", err)
	}
	defer func() { _ = log.Sync() }()

	d, err := newDriver(inv, env, log)
	if err != nil {
		return err
	}

	var code int
	switch inv.Mode {
	case runstate.ModeDump:
		code, err = d.dump(cmd.Context())
	case runstate.ModeCheck:
		code, err = d.check(cmd.Context())
	default:
		return fmt.Errorf("unknown mode %q", inv.Mode)
	}
	*exit = code
	return err
}
