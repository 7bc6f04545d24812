package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"promypy/internal/config"
	"promypy/internal/progress"
	"promypy/internal/runstate"
)

type rootOptions struct {
	configFile string
	verbose    bool
}

// Flag names bound to configuration keys. Unchanged flags never override
// values from configuration files or the environment.
var (
	globalBindings = map[string]string{
		config.KeyWorkers:         "workers",
		config.KeyProgress:        "progress",
		config.KeyStateDir:        "state-dir",
		config.KeyTrace:           "trace",
		config.KeyAnalyzerCommand: "analyzer-command",
		config.KeyLogLevel:        "log-level",
		config.KeyLogFormat:       "log-format",
	}
	dumpBindings = map[string]string{
		config.KeyMypyArgs: "mypy-args",
		config.KeyTimeout:  "timeout",
		config.KeyExclude:  "exclude",
		config.KeyOutput:   "output",
	}
	checkBindings = map[string]string{
		config.KeyMypyArgs:   "mypy-args",
		config.KeyTimeout:    "timeout",
		config.KeyIgnoreFile: "ignore-file",
	}
)

func newRootCommand(env *environment, exit *int) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "promypy",
		Short:         "Progressive type annotation without regression! 🚀",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return invalidInvocationf("unknown command %q for %q", args[0], cmd.CommandPath())
			}
			return cmd.Help()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return invalidInvocationf("%v", err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "configuration file (default "+config.DefaultFile+")")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")
	pf.Int("workers", 0, "concurrent analyzer processes (0 means one per CPU)")
	pf.String("progress", progress.ModeAuto, "progress bar: auto, always or never")
	pf.String("state-dir", "", "directory for run records (disabled when empty)")
	pf.String("trace", "", "write a canonical run trace to this path (.json, .yaml or .yml)")
	pf.String("analyzer-command", "", `analyzer command line (default "mypy")`)
	pf.String("log-level", "", "log level: debug, info, warn or error (default warn)")
	pf.String("log-format", "", "log format: console or json (default console)")

	root.AddCommand(
		newDumpCommand(env, opts, exit),
		newCheckCommand(env, opts, exit),
	)
	return root
}

func newDumpCommand(env *environment, opts *rootOptions, exit *int) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump [directory]",
		Short: "Generate a list of files that are not fully type annotated.",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd, env, opts, dumpBindings)
			if err != nil {
				return err
			}
			var dir string
			if len(args) == 1 {
				dir = args[0]
			}
			inv, err := DumpInvocation(env.WorkDir, dir, s)
			if err != nil {
				env.recordRejected(s, runstate.ModeDump, err)
				return err
			}
			return execute(cmd, inv, env, exit)
		},
	}
	f := cmd.Flags()
	f.String("mypy-args", "", "extra analyzer arguments, split like a shell command line")
	f.String("timeout", "", "per-file timeout in seconds or as a duration (default 30)")
	f.StringArray("exclude", nil, "skip files under this path prefix (repeatable)")
	f.StringP("output", "o", "", "write the list to this file instead of stdout")
	return cmd
}

func newCheckCommand(env *environment, opts *rootOptions, exit *int) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check FILE...",
		Short: "Check the given files with mypy, applying a set of custom rules.",
		Long: `Check the given files with mypy, applying a set of custom rules.

Given the input files and the list of files in the ignore file:
  - a listed file that is fully type annotated is removed from the list
  - a listed file that is not fully annotated is ignored
  - an unlisted file that is fully annotated is ignored
  - an unlisted file that is not fully annotated fails the check`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd, env, opts, checkBindings)
			if err != nil {
				return err
			}
			inv, err := CheckInvocation(env.WorkDir, args, s)
			if err != nil {
				env.recordRejected(s, runstate.ModeCheck, err)
				return err
			}
			return execute(cmd, inv, env, exit)
		},
	}
	f := cmd.Flags()
	f.StringP("ignore-file", "f", "", "baseline of files allowed to fail (required)")
	f.String("mypy-args", "", "extra analyzer arguments, split like a shell command line")
	f.String("timeout", "", "per-file timeout in seconds or as a duration (default 40)")
	return cmd
}

// loadSettings layers configuration files, the environment and the flags of
// cmd, in that order.
func loadSettings(cmd *cobra.Command, env *environment, opts *rootOptions, bindings map[string]string) (config.Settings, error) {
	v := config.New()

	explicit := opts.configFile
	if explicit != "" && !filepath.IsAbs(explicit) {
		explicit = filepath.Join(env.WorkDir, explicit)
	}
	if err := config.LoadFiles(v, env.WorkDir, explicit); err != nil {
		return config.Settings{}, invalidInvocationf("%v", err)
	}

	for _, m := range []map[string]string{globalBindings, bindings} {
		for key, name := range m {
			if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
				return config.Settings{}, invalidInvocationf("bind --%s: %v", name, err)
			}
		}
	}

	s, err := config.Read(v)
	if err != nil {
		return config.Settings{}, invalidInvocationf("invalid configuration: %v", err)
	}
	if opts.verbose {
		s.LogLevel = "debug"
	}
	return s, nil
}

func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return invalidInvocationf("%v", err)
		}
		return nil
	}
}
