package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

const pipeWaitDelay = 2 * time.Second

// DefaultCommand is the analyzer command used when none is configured.
var DefaultCommand = []string{"mypy"}

// ProcessInvoker runs the analyzer as a child process, one process per job.
//
// The command line is Command followed by the target file and then the
// extra arguments, mirroring how the analyzer's own API is driven.
//
// Isolation:
//   - each call runs in its own process group
//   - when ctx is done the whole group is killed, so an analyzer that forks
//     helpers cannot outlive the job
type ProcessInvoker struct {
	// Command is the analyzer executable and its leading arguments.
	Command []string

	// WorkDir is the directory the analyzer runs in. Empty means the
	// current process directory.
	WorkDir string

	// Env, when non-nil, replaces the inherited environment.
	Env []string

	// Normalizer is applied to stdout before it is stored in the Outcome.
	Normalizer OutputNormalizer
}

// NewProcessInvoker creates a ProcessInvoker for command in workDir with
// the default output normalization (line endings and color codes).
func NewProcessInvoker(command []string, workDir string) *ProcessInvoker {
	if len(command) == 0 {
		command = DefaultCommand
	}
	return &ProcessInvoker{
		Command:    append([]string(nil), command...),
		WorkDir:    workDir,
		Normalizer: NewStreamNormalizer(NewANSINormalizer()),
	}
}

// Invoke runs the analyzer on file.
//
// Exit codes are classified with ClassifyExit. If ctx expires before the
// analyzer exits, the process group is killed and a StatusTimeout outcome
// is returned together with an error wrapping ErrJobTimeout. Failing to
// start the analyzer is reported as a lost job.
func (p *ProcessInvoker) Invoke(ctx context.Context, file FileID, extraArgs []string) (Outcome, error) {
	if p == nil || len(p.Command) == 0 {
		return Outcome{}, LostJob(file, "no analyzer command configured")
	}
	if file == "" {
		return Outcome{}, LostJob(file, "empty file id")
	}

	args := make([]string, 0, len(p.Command)-1+1+len(extraArgs))
	args = append(args, p.Command[1:]...)
	args = append(args, string(file))
	args = append(args, extraArgs...)

	cmd := exec.Command(p.Command[0], args...)
	cmd.Dir = p.WorkDir
	if p.Env != nil {
		cmd.Env = p.Env
	}
	setProcessGroup(cmd)
	// Bounds Wait when a killed analyzer left a helper holding its pipes.
	cmd.WaitDelay = pipeWaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Outcome{}, LostJob(file, "starting analyzer: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var err error
	select {
	case <-ctx.Done():
		killProcessGroup(cmd)
		<-done
		out := Outcome{
			File:       file,
			Status:     StatusTimeout,
			RawOutput:  p.normalize(stdout.Bytes()),
			Stderr:     string(stderr.Bytes()),
			StatusCode: -1,
			Duration:   time.Since(start),
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return out, TimedOutJob(file, "killed after %s", out.Duration.Round(time.Millisecond))
		}
		return out, LostJob(file, "cancelled: %v", ctx.Err())
	case err = <-done:
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return Outcome{}, LostJob(file, "waiting for analyzer: %v", err)
		}
		exitCode = exitErr.ExitCode()
		if exitCode < 0 {
			// Terminated by a signal we did not send.
			return Outcome{}, LostJob(file, "analyzer terminated: %v", err)
		}
	}

	return Outcome{
		File:       file,
		Status:     ClassifyExit(exitCode),
		RawOutput:  p.normalize(stdout.Bytes()),
		Stderr:     string(stderr.Bytes()),
		StatusCode: exitCode,
		Duration:   time.Since(start),
	}, nil
}

func (p *ProcessInvoker) normalize(b []byte) string {
	if p.Normalizer == nil {
		return string(b)
	}
	return string(p.Normalizer.Normalize(b))
}

// String renders the configured command for logs.
func (p *ProcessInvoker) String() string {
	return fmt.Sprintf("%q", p.Command)
}
