// Package logging builds the zap loggers used across promypy.
//
// Diagnostics about the run itself (scheduling, timeouts, lost jobs) are
// logged; results meant for the user are printed by the cli package and
// never go through the logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/term"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// DefaultLevel keeps a normal run quiet: only timeouts, lost jobs and
// errors are logged.
const DefaultLevel = zapcore.WarnLevel

type Config struct {
	Level  zapcore.Level
	Format string

	// Output receives log entries. Nil means stderr.
	Output io.Writer
}

// New returns a logger for c.
func New(c Config) (*zap.Logger, error) {
	switch c.Format {
	case "", FormatJSON:
		return NewWith(c.Output, func(cfg *zap.Config) {
			cfg.Level.SetLevel(c.Level)
		})
	case FormatConsole:
		return NewWith(c.Output, func(cfg *zap.Config) {
			*cfg = zap.NewDevelopmentConfig()
			cfg.Level.SetLevel(c.Level)
			cfg.DisableStacktrace = true
			if isTerminal(c.Output) {
				cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
			} else {
				cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
			}
		})
	default:
		return nil, fmt.Errorf("unknown log format %q (want %s or %s)", c.Format, FormatJSON, FormatConsole)
	}
}

// NewWith returns a logger writing to w, built from a modified production
// [zap.Config].
func NewWith(w io.Writer, cfgFn func(*zap.Config)) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfgFn(&cfg)
	if w == nil {
		w = os.Stderr
	}

	var enc zapcore.Encoder
	switch cfg.Encoding {
	case FormatConsole:
		enc = zapcore.NewConsoleEncoder(cfg.EncoderConfig)
	case FormatJSON:
		enc = zapcore.NewJSONEncoder(cfg.EncoderConfig)
	default:
		return nil, fmt.Errorf("unsupported log encoding %q", cfg.Encoding)
	}

	sink := zapcore.Lock(zapcore.AddSync(w))
	opts := []zap.Option{zap.ErrorOutput(sink)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}
	if !cfg.DisableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if !cfg.DisableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	return zap.New(zapcore.NewCore(enc, sink, cfg.Level), opts...), nil
}

// ParseLevel parses a level name such as "debug" or "WARN".
func ParseLevel(s string) (zapcore.Level, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultLevel, nil
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(s))
	if err != nil {
		return DefaultLevel, fmt.Errorf("log level: %w", err)
	}
	return lvl, nil
}

// TestObserved returns a test logger for tb together with the entries it
// records at lvl and above.
func TestObserved(tb testing.TB, lvl zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	tb.Helper()
	oCore, logs := observer.New(lvl)
	observe := zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, oCore)
	})
	return zaptest.NewLogger(tb, zaptest.WrapOptions(observe, zap.AddCaller())), logs
}

func isTerminal(w io.Writer) bool {
	if w == nil {
		w = os.Stderr
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
