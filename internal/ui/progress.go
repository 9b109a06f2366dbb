// Package ui provides terminal output helpers for the pagesnap CLI.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/spherical/pagesnap/internal/domain"
)

// ProgressBar wraps a progressbar instance for deterministic progress display.
type ProgressBar struct {
	bar *progressbar.ProgressBar
}

// NewProgressBar creates a new progress bar writing to w.
func NewProgressBar(w io.Writer, total int, description string) *ProgressBar {
	bar := progressbar.NewOptions64(
		int64(total),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("pages"),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)

	return &ProgressBar{bar: bar}
}

// Update moves the bar to p.Done and names the page just finished. A nil
// bar ignores updates.
func (p *ProgressBar) Update(pr domain.Progress) {
	if p == nil {
		return
	}
	if pr.Total > 0 && int64(pr.Total) != p.bar.GetMax64() {
		p.bar.ChangeMax64(int64(pr.Total))
	}
	if pr.Name != "" {
		p.bar.Describe(fmt.Sprintf("%s p%d", pr.Name, pr.Page))
	}
	_ = p.bar.Set64(int64(pr.Done))
}

// Finish completes the progress bar.
func (p *ProgressBar) Finish() {
	if p == nil {
		return
	}
	_ = p.bar.Finish()
}

// Spinner wraps a spinner instance for indeterminate progress display.
type Spinner struct {
	spinner *spinner.Spinner
}

// NewSpinner creates a new spinner writing to w.
func NewSpinner(w io.Writer, message string) *Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + message
	return &Spinner{spinner: s}
}

// Start starts the spinner animation.
func (s *Spinner) Start() {
	if s == nil {
		return
	}
	s.spinner.Start()
}

// Stop stops the spinner animation and clears the line.
func (s *Spinner) Stop() {
	if s == nil {
		return
	}
	s.spinner.Stop()
}

// UpdateMessage updates the spinner's message.
func (s *Spinner) UpdateMessage(message string) {
	if s == nil {
		return
	}
	s.spinner.Lock()
	s.spinner.Suffix = " " + message
	s.spinner.Unlock()
}

// Console prints status lines. Results go to Out, diagnostics and progress
// to Err.
type Console struct {
	Out io.Writer
	Err io.Writer

	// Quiet suppresses progress bars and spinners.
	Quiet bool

	green  *color.Color
	red    *color.Color
	yellow *color.Color
	cyan   *color.Color
	bold   *color.Color
}

// NewConsole creates a console over the given writers.
func NewConsole(out, errOut io.Writer) *Console {
	return &Console{
		Out:    out,
		Err:    errOut,
		green:  color.New(color.FgGreen),
		red:    color.New(color.FgRed),
		yellow: color.New(color.FgYellow),
		cyan:   color.New(color.FgCyan),
		bold:   color.New(color.Bold),
	}
}

// StdConsole writes to os.Stdout and os.Stderr.
func StdConsole() *Console {
	return NewConsole(os.Stdout, os.Stderr)
}

// Progress returns a bar for total steps, or nil when quiet.
func (c *Console) Progress(total int, description string) *ProgressBar {
	if c.Quiet {
		return nil
	}
	return NewProgressBar(c.Err, total, description)
}

// Spinner returns a spinner, or nil when quiet.
func (c *Console) Spinner(message string) *Spinner {
	if c.Quiet {
		return nil
	}
	return NewSpinner(c.Err, message)
}

// Message displays a plain line.
func (c *Console) Message(format string, args ...interface{}) {
	fmt.Fprintf(c.Out, format, args...)
	fmt.Fprintln(c.Out)
}

// Error displays an error message.
func (c *Console) Error(format string, args ...interface{}) {
	c.red.Fprintf(c.Err, "✗ %s\n", fmt.Sprintf(format, args...))
}

// Success displays a success message.
func (c *Console) Success(format string, args ...interface{}) {
	c.green.Fprintf(c.Out, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Warning displays a warning message.
func (c *Console) Warning(format string, args ...interface{}) {
	c.yellow.Fprintf(c.Err, "⚠ %s\n", fmt.Sprintf(format, args...))
}

// Info displays an informational message.
func (c *Console) Info(format string, args ...interface{}) {
	c.cyan.Fprintf(c.Out, "ℹ %s\n", fmt.Sprintf(format, args...))
}

// Section displays a section header.
func (c *Console) Section(title string) {
	c.bold.Fprintf(c.Out, "\n%s\n", title)
	fmt.Fprintf(c.Out, "%s\n\n", strings.Repeat("=", len([]rune(title))))
}
