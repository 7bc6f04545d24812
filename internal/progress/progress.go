// Package progress reports how many analyzer jobs have completed.
package progress

import (
	"io"
	"os"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

const (
	ModeAuto   = "auto"
	ModeAlways = "always"
	ModeNever  = "never"
)

// Reporter observes the completion stream. Advance is called once per
// completed job; Done is called exactly once, also when the run is cut short.
type Reporter interface {
	Advance()
	Done()
}

// Nop discards progress.
type Nop struct{}

func (Nop) Advance() {}
func (Nop) Done()    {}

// Enabled decides whether a bar is drawn on w for mode. In auto mode a bar
// is drawn only when w is a terminal.
func Enabled(mode string, w io.Writer) bool {
	switch mode {
	case ModeAlways:
		return true
	case ModeNever:
		return false
	default:
		f, ok := w.(*os.File)
		return ok && term.IsTerminal(int(f.Fd()))
	}
}

// Bar draws a single progress bar with a completed/total counter.
type Bar struct {
	p   *mpb.Progress
	bar *mpb.Bar
}

// NewBar starts a bar titled title for total jobs, rendering to w.
func NewBar(w io.Writer, title string, total int) *Bar {
	p := mpb.New(
		mpb.WithOutput(w),
		mpb.WithWidth(40),
		mpb.WithAutoRefresh(),
	)
	bar := p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(title, decor.WCSyncSpaceR),
			decor.CountersNoUnit("%d/%d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WC{W: 5}),
			decor.Name(" "),
			decor.Elapsed(decor.ET_STYLE_GO),
		),
	)
	return &Bar{p: p, bar: bar}
}

func (b *Bar) Advance() { b.bar.Increment() }

// Done completes the bar at its current count and waits for the final frame.
func (b *Bar) Done() {
	if !b.bar.Completed() {
		b.bar.SetTotal(-1, true)
	}
	b.p.Wait()
}

// New returns a Bar when progress is enabled for mode and w, and Nop
// otherwise.
func New(w io.Writer, mode, title string, total int) Reporter {
	if total == 0 || !Enabled(mode, w) {
		return Nop{}
	}
	return NewBar(w, title, total)
}
