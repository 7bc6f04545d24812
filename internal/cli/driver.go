package cli

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"promypy/internal/baseline"
	"promypy/internal/core"
	"promypy/internal/discovery"
	"promypy/internal/progress"
	"promypy/internal/runstate"
	"promypy/internal/schedule"
	"promypy/internal/trace"
	"promypy/internal/verdict"
)

const (
	dumpTitle  = "Running mypy..."
	checkTitle = "Checking mypy on files..."

	// decisionDumped is the trace and run-record decision of a dump run that
	// produced its artifact.
	decisionDumped = "DUMPED"
)

// driver runs one canonical invocation end to end.
//
// It owns the side effects of a run: the baseline or dump artifact, the
// trace file and the run records. The analysis itself is delegated to the
// scheduler, aggregator and reconciler, none of which touch the filesystem.
type driver struct {
	inv     Invocation
	env     *environment
	log     *zap.Logger
	print   *printer
	invoker core.Invoker

	extractor verdict.Extractor
	events    *trace.Recorder
	runs      *runstate.Recorder
	run       runstate.Run
	runHash   string
}

func newDriver(inv Invocation, env *environment, log *zap.Logger) (*driver, error) {
	d := &driver{
		inv:   inv,
		env:   env,
		log:   log,
		print: newPrinter(env.Stdout, env.Stderr),
	}

	d.extractor = verdict.DefaultExtractor()
	if p := inv.Settings.DiagnosticPattern; p != "" {
		ex, err := verdict.NewRegexExtractor(p)
		if err != nil {
			return nil, invalidInvocationf("diagnostic_pattern: %v", err)
		}
		d.extractor = ex
	}

	dir := inv.WorkDir
	if inv.Mode == runstate.ModeDump {
		dir = inv.Root
	}
	d.invoker = env.newInvoker(inv.Settings.AnalyzerCommand, dir)

	if inv.TracePath != "" {
		d.events = trace.NewRecorder()
	}
	if inv.StateDir != "" {
		runs, err := runstate.NewRecorder(inv.StateDir)
		if err != nil {
			return nil, fmt.Errorf("run records: %w", err)
		}
		runs.Now = env.now
		d.runs = runs
	}
	return d, nil
}

func (d *driver) sink() trace.Sink {
	if d.events == nil {
		return trace.NopSink{}
	}
	return d.events
}

// start fixes the run identity once the submitted files are known.
func (d *driver) start(files []core.FileID) {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = string(f)
	}
	d.runHash = trace.ComputeRunHash(string(d.inv.Mode), names, d.inv.Settings.MypyArgs)
	d.log.Debug("run started",
		zap.String("mode", string(d.inv.Mode)),
		zap.Int("files", len(files)),
		zap.String("run_hash", d.runHash),
		zap.Duration("timeout", d.inv.Timeout),
		zap.Strings("analyzer", d.inv.Settings.AnalyzerCommand))

	if d.runs == nil {
		return
	}
	run, err := d.runs.StartRun(runstate.Run{
		RunHash: d.runHash,
		Mode:    d.inv.Mode,
		Files:   len(files),
	})
	if err != nil {
		d.log.Warn("cannot record run start", zap.Error(err))
		d.runs = nil
		return
	}
	d.run = run
}

// analyze runs the analyzer over files and aggregates the completions.
//
// The completion stream is consumed on this goroutine only, so the
// aggregator and the trace recorder see a single writer. The first analyzer
// crash stops the remaining jobs; the Result then carries the crash. A
// cancelled ctx returns its error instead.
func (d *driver) analyze(ctx context.Context, files []core.FileID, title string) (*verdict.Result, error) {
	sched := schedule.New(d.invoker, d.inv.Settings.Workers, d.inv.Timeout, d.log.Named("scheduler"))
	agg := verdict.NewAggregator(files, d.extractor)
	bar := progress.New(d.env.Stderr, d.inv.Settings.Progress, title, len(files))

	runCtx, stop := context.WithCancelCause(ctx)
	defer stop(nil)

	for c := range sched.RunAll(runCtx, files, d.inv.Settings.MypyArgs) {
		agg.Add(c)
		trace.RecordCompletion(d.sink(), c)
		bar.Advance()
		if !c.Lost() && c.Outcome.Status == core.StatusCrash && runCtx.Err() == nil {
			stop(core.CrashedJob(c.File(), "exit status %d", c.Outcome.StatusCode))
		}
	}
	bar.Done()
	sched.Wait()

	if err := ctx.Err(); err != nil {
		d.log.Debug("run interrupted", zap.Any("jobs", sched.StateSnapshot().Counts()))
		return nil, err
	}
	if cause := context.Cause(runCtx); cause != nil {
		d.log.Warn("analyzer crashed; remaining jobs stopped",
			zap.Error(cause),
			zap.Any("jobs", sched.StateSnapshot().Counts()))
	}
	res := agg.Result()
	trace.RecordVerdicts(d.sink(), res)
	return res, nil
}

// reportIncomplete lists the files whose analysis did not finish.
func (d *driver) reportIncomplete(res *verdict.Result) {
	d.print.fileList("Timed out", res.TimedOut)
	d.print.fileList("Exception files", res.Lost)
	for _, f := range res.ParseMisses {
		d.log.Warn("analyzer failed without attributable diagnostics",
			zap.Error(core.ParseMissJob(f, "verdict kept from the exit status")))
	}
}

func (d *driver) dump(ctx context.Context) (int, error) {
	s := d.inv.Settings
	files, err := discovery.Discover(d.inv.Root, discovery.Options{
		Extensions: s.Extensions,
		Exclude:    s.Exclude,
	})
	if err != nil {
		return d.finish("", ExitInternalError, &runstate.SystemFailureError{Code: "Discovery", Message: err.Error(), Cause: err})
	}
	d.start(files)

	res, err := d.analyze(ctx, files, dumpTitle)
	if err != nil {
		return d.finish("", ExitInterrupted, err)
	}
	if res.Crashed() {
		return d.crashed(res)
	}
	d.reportIncomplete(res)

	failing := baseline.Dump(files, res)
	if d.inv.Output == "" {
		if _, err := d.env.Stdout.Write(baseline.Encode(failing)); err != nil {
			return d.finish("", ExitInternalError, &runstate.SystemFailureError{Code: "OutputWrite", Message: err.Error(), Cause: err})
		}
	} else if err := baseline.Write(d.inv.Output, failing); err != nil {
		return d.finish("", ExitInternalError, &runstate.SystemFailureError{Code: "OutputWrite", Message: err.Error(), Cause: err})
	}
	d.log.Info("dump finished", zap.Int("files", len(files)), zap.Int("failing", len(failing)))

	trace.RecordDecision(d.sink(), decisionDumped)
	return d.finish(decisionDumped, ExitSuccess, nil)
}

func (d *driver) check(ctx context.Context) (int, error) {
	previous, err := baseline.Load(d.inv.IgnoreFile)
	if err != nil {
		return d.finish("", ExitInternalError, &runstate.SystemFailureError{Code: "BaselineRead", Message: err.Error(), Cause: err})
	}
	if len(previous) == 0 {
		d.log.Debug("baseline is empty or missing", zap.String("path", d.inv.IgnoreFile))
	}
	files := d.inv.Files
	d.start(files)

	res, err := d.analyze(ctx, files, checkTitle)
	if err != nil {
		return d.finish("", ExitInterrupted, err)
	}

	r := baseline.Check(previous, files, res)
	trace.RecordReconciliation(d.sink(), r)
	if r.Decision == baseline.FatalCrash {
		return d.crashed(res)
	}
	d.reportIncomplete(res)

	switch r.Action(previous) {
	case baseline.Rewrite:
		if err := baseline.Write(d.inv.IgnoreFile, r.NewBaseline); err != nil {
			return d.finish(r.Decision.String(), ExitInternalError, &runstate.SystemFailureError{Code: "BaselineWrite", Message: err.Error(), Cause: err})
		}
		d.print.line(fmt.Sprintf("%s has been updated.", d.inv.Settings.IgnoreFile))
	case baseline.Delete:
		if err := baseline.Remove(d.inv.IgnoreFile); err != nil {
			return d.finish(r.Decision.String(), ExitInternalError, &runstate.SystemFailureError{Code: "BaselineRemove", Message: err.Error(), Cause: err})
		}
	}

	for _, diag := range r.Diagnostics {
		d.print.line(diag.Line)
	}
	if len(r.Unattributed) > 0 {
		d.print.line("Failing without diagnostics:")
		for _, f := range r.Unattributed {
			d.print.line("  " + string(f))
		}
	}

	code := DecisionExitCode(r.Decision)
	switch r.Decision {
	case baseline.FullyMigrated:
		d.print.success("This project is now fully type annotated! 🎉")
	case baseline.Clean, baseline.BaselineShrunk:
		d.print.success("Success! 🚀")
		d.print.line(fmt.Sprintf("Number of files missing: %d.", len(r.NewBaseline)))
	case baseline.Regressed:
		regressed := make([]string, len(r.Regressed))
		for i, f := range r.Regressed {
			regressed[i] = string(f)
		}
		return d.finish(r.Decision.String(), code, &runstate.RegressionError{Files: regressed})
	}
	return d.finish(r.Decision.String(), code, nil)
}

// crashed reports analyzer crashes. Nothing is written: neither the
// baseline nor a dump artifact.
func (d *driver) crashed(res *verdict.Result) (int, error) {
	d.print.crashReport(res.Crashes)
	files := make([]string, len(res.Crashes))
	for i, o := range res.Crashes {
		files[i] = string(o.File)
	}
	if d.inv.Mode == runstate.ModeDump {
		trace.RecordDecision(d.sink(), baseline.FatalCrash.String())
	}
	return d.finish(baseline.FatalCrash.String(), ExitAnalyzerCrash, &runstate.AnalyzerFailureError{
		Files:   files,
		Message: fmt.Sprintf("analyzer exited with status %d", core.CrashExitCode),
	})
}

// finish writes the trace and the run records and returns the exit code.
//
// cause is the reason a run failed. Regressions and crashes are expected
// outcomes and are only recorded; everything else is also returned so that
// the caller reports it.
func (d *driver) finish(decision string, code int, cause error) (int, error) {
	if d.events != nil && code != ExitInterrupted && d.runHash != "" {
		tr := d.events.Trace(string(d.inv.Mode), d.runHash)
		if err := trace.WriteFile(d.inv.TracePath, tr); err != nil {
			d.log.Warn("cannot write trace", zap.Error(err))
		} else if h, err := tr.Hash(); err == nil {
			d.log.Debug("trace written", zap.String("path", d.inv.TracePath), zap.String("trace_hash", h))
		}
	}

	if d.runs != nil && d.run.RunID != "" {
		status := runstate.RunStatusSucceeded
		if cause != nil {
			status = runstate.RunStatusFailed
			if err := d.runs.RecordFailure(d.run.RunID, cause); err != nil {
				d.log.Warn("cannot record failure", zap.Error(err))
			}
		}
		if _, err := d.runs.FinishRun(d.run, status, decision, code); err != nil {
			d.log.Warn("cannot record run end", zap.Error(err))
		}
	}

	var (
		crash      *runstate.AnalyzerFailureError
		regression *runstate.RegressionError
	)
	if cause == nil || errors.As(cause, &crash) || errors.As(cause, &regression) {
		return code, nil
	}
	return code, cause
}
