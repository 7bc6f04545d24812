// Package config resolves promypy settings from layered sources.
//
// Precedence, lowest first:
//
//	built-in defaults
//	[tool.promypy] in pyproject.toml
//	.promypy.yaml (or the file named by --config)
//	PROMYPY_* environment variables
//	command-line flags
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/shlex"
	"github.com/spf13/viper"

	"promypy/internal/progress"
)

const (
	KeyMypyArgs          = "mypy_args"
	KeyTimeout           = "timeout"
	KeyWorkers           = "workers"
	KeyAnalyzerCommand   = "analyzer_command"
	KeyDiagnosticPattern = "diagnostic_pattern"
	KeyExtensions        = "extensions"
	KeyExclude           = "exclude"
	KeyIgnoreFile        = "ignore_file"
	KeyOutput            = "output"
	KeyLogLevel          = "log_level"
	KeyLogFormat         = "log_format"
	KeyProgress          = "progress"
	KeyStateDir          = "state_dir"
	KeyTrace             = "trace"
)

const (
	EnvPrefix     = "PROMYPY"
	PyprojectFile = "pyproject.toml"
	DefaultFile   = ".promypy.yaml"
)

// Settings is the resolved configuration of one invocation.
type Settings struct {
	MypyArgs []string

	// Timeout is the per-file timeout. Zero selects the mode default.
	Timeout time.Duration

	// Workers bounds concurrent analyzer processes. Zero means one per CPU.
	Workers int

	AnalyzerCommand   []string
	DiagnosticPattern string
	Extensions        []string
	Exclude           []string
	IgnoreFile        string
	Output            string
	LogLevel          string
	LogFormat         string
	Progress          string
	StateDir          string
	Trace             string
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyMypyArgs, "")
	v.SetDefault(KeyTimeout, 0)
	v.SetDefault(KeyWorkers, 0)
	v.SetDefault(KeyAnalyzerCommand, []string{"mypy"})
	v.SetDefault(KeyDiagnosticPattern, "")
	v.SetDefault(KeyExtensions, []string{".py"})
	v.SetDefault(KeyExclude, []string{})
	v.SetDefault(KeyIgnoreFile, "")
	v.SetDefault(KeyOutput, "")
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyLogFormat, "console")
	v.SetDefault(KeyProgress, progress.ModeAuto)
	v.SetDefault(KeyStateDir, "")
	v.SetDefault(KeyTrace, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadFiles merges the configuration files found in dir into v.
//
// pyproject.toml is merged first so that .promypy.yaml overrides it. When
// explicit is non-empty it replaces the .promypy.yaml lookup and must exist.
func LoadFiles(v *viper.Viper, dir, explicit string) error {
	if err := mergePyproject(v, filepath.Join(dir, PyprojectFile)); err != nil {
		return err
	}

	path := explicit
	if path == "" {
		path = filepath.Join(dir, DefaultFile)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil
		}
	}
	v.SetConfigFile(path)
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext == "" || ext == "yml" {
		v.SetConfigType("yaml")
	}
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

type pyproject struct {
	Tool struct {
		Promypy map[string]any `toml:"promypy"`
	} `toml:"tool"`
}

func mergePyproject(v *viper.Viper, path string) error {
	var doc pyproject
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(doc.Tool.Promypy) == 0 {
		return nil
	}
	// pyproject tables conventionally use dashed keys.
	section := make(map[string]any, len(doc.Tool.Promypy))
	for k, val := range doc.Tool.Promypy {
		section[strings.ReplaceAll(k, "-", "_")] = val
	}
	if err := v.MergeConfigMap(section); err != nil {
		return fmt.Errorf("merge [tool.promypy] from %s: %w", path, err)
	}
	return nil
}

// Read resolves Settings from v and validates them.
func Read(v *viper.Viper) (Settings, error) {
	var errs []error

	mypyArgs, err := shlex.Split(v.GetString(KeyMypyArgs))
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyMypyArgs, err))
	}
	timeout, err := parseTimeout(v.GetString(KeyTimeout))
	if err != nil {
		errs = append(errs, err)
	}
	command, err := stringList(v, KeyAnalyzerCommand)
	if err != nil {
		errs = append(errs, err)
	}
	extensions, err := stringList(v, KeyExtensions)
	if err != nil {
		errs = append(errs, err)
	}
	exclude, err := stringList(v, KeyExclude)
	if err != nil {
		errs = append(errs, err)
	}

	s := Settings{
		MypyArgs:          mypyArgs,
		Timeout:           timeout,
		Workers:           v.GetInt(KeyWorkers),
		AnalyzerCommand:   command,
		DiagnosticPattern: v.GetString(KeyDiagnosticPattern),
		Extensions:        extensions,
		Exclude:           exclude,
		IgnoreFile:        v.GetString(KeyIgnoreFile),
		Output:            v.GetString(KeyOutput),
		LogLevel:          v.GetString(KeyLogLevel),
		LogFormat:         v.GetString(KeyLogFormat),
		Progress:          strings.ToLower(v.GetString(KeyProgress)),
		StateDir:          v.GetString(KeyStateDir),
		Trace:             v.GetString(KeyTrace),
	}
	if err := s.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return Settings{}, errors.Join(errs...)
	}
	return s, nil
}

func (s Settings) Validate() error {
	var errs []error
	if s.Timeout < 0 {
		errs = append(errs, errors.New("timeout must be >= 0"))
	}
	if s.Workers < 0 {
		errs = append(errs, errors.New("workers must be >= 0"))
	}
	if len(s.AnalyzerCommand) == 0 {
		errs = append(errs, errors.New("analyzer_command is required"))
	}
	for _, ext := range s.Extensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Errorf("extension %q must start with a dot", ext))
		}
	}
	switch s.Progress {
	case progress.ModeAuto, progress.ModeAlways, progress.ModeNever:
	default:
		errs = append(errs, fmt.Errorf("invalid progress mode %q (want auto, always or never)", s.Progress))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// TimeoutOr returns the configured timeout, or def when none is set.
func (s Settings) TimeoutOr(def time.Duration) time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return def
}

// parseTimeout accepts whole or fractional seconds ("40", "2.5") or a Go
// duration ("1m30s").
func parseTimeout(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is neither seconds nor a duration", KeyTimeout, raw)
	}
	return d, nil
}

// stringList reads a list key. A plain string (from a flag or the
// environment) is split like a shell command line.
func stringList(v *viper.Viper, key string) ([]string, error) {
	switch raw := v.Get(key).(type) {
	case nil:
		return nil, nil
	case string:
		parts, err := shlex.Split(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return parts, nil
	default:
		return v.GetStringSlice(key), nil
	}
}
