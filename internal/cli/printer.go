package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"promypy/internal/core"
)

var (
	colorPass = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	colorWarn = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	colorFail = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	colorMute = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
)

// printer writes user-facing results. Results go to stdout and problems to
// stderr. Diagnostic lines are printed verbatim so that editors and CI
// annotations can still parse them.
type printer struct {
	out io.Writer
	err io.Writer

	pass lipgloss.Style
	warn lipgloss.Style
	fail lipgloss.Style
	mute lipgloss.Style
}

func newPrinter(stdout, stderr io.Writer) *printer {
	ro := lipgloss.NewRenderer(stdout)
	re := lipgloss.NewRenderer(stderr)
	return &printer{
		out:  stdout,
		err:  stderr,
		pass: ro.NewStyle().Foreground(colorPass),
		warn: re.NewStyle().Foreground(colorWarn),
		fail: re.NewStyle().Foreground(colorFail).Bold(true),
		mute: re.NewStyle().Foreground(colorMute),
	}
}

func (p *printer) line(s string) {
	fmt.Fprintln(p.out, s)
}

func (p *printer) success(format string, args ...any) {
	fmt.Fprintln(p.out, p.pass.Render(fmt.Sprintf(format, args...)))
}

func (p *printer) warning(format string, args ...any) {
	fmt.Fprintln(p.err, p.warn.Render(fmt.Sprintf(format, args...)))
}

func (p *printer) failure(format string, args ...any) {
	fmt.Fprintln(p.err, p.fail.Render(fmt.Sprintf(format, args...)))
}

// fileList prints title followed by one indented file per line on stderr.
func (p *printer) fileList(title string, files []core.FileID) {
	if len(files) == 0 {
		return
	}
	p.warning("%s (%d):", title, len(files))
	for _, f := range files {
		fmt.Fprintln(p.err, "  "+p.mute.Render(string(f)))
	}
}

// crashReport prints every crashed outcome with the analyzer's own output.
func (p *printer) crashReport(crashes []core.Outcome) {
	p.failure("promypy failed with exit status code %d. Please raise this issue with the developer.", core.CrashExitCode)
	for _, o := range crashes {
		p.failure("Error in file: %s", o.File)
		for _, s := range []string{o.RawOutput, o.Stderr} {
			if s == "" {
				continue
			}
			fmt.Fprintln(p.err, p.mute.Render(trimNewline(s)))
		}
	}
}

func trimNewline(s string) string {
	for len(s) > 0 && s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	return s
}
