package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	// fatih/color disables these automatically when output is not a TTY
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
	labelColor   = color.New(color.FgWhite, color.Bold)
	valueColor   = color.New(color.FgHiBlack)
)

// printer writes human-facing output. Progress and reports go to out,
// problems to err.
type printer struct {
	out io.Writer
	err io.Writer
}

// Section prints a section header
func (p *printer) Section(title string) {
	section(p.out, title)
}

// ErrorSection prints a section header on the error stream, for reports
// whose body goes there too.
func (p *printer) ErrorSection(title string) {
	section(p.err, title)
}

func section(w io.Writer, title string) {
	_, _ = fmt.Fprintln(w)
	_, _ = headerColor.Fprintf(w, "▸ %s\n", title)
	_, _ = fmt.Fprintln(w)
}

// Warning prints a warning message with a warning symbol
func (p *printer) Warning(msg string) {
	_, _ = warningColor.Fprintf(p.err, "⚠ %s\n", msg)
}

// Error prints an error message
func (p *printer) Error(msg string) {
	_, _ = errorColor.Fprintf(p.err, "✗ %s\n", msg)
}

// Info prints an informational message
func (p *printer) Info(msg string) {
	_, _ = fmt.Fprintln(p.out, msg)
}

// LabelValue prints a label-value pair with proper formatting
func (p *printer) LabelValue(label, value string) {
	_, _ = labelColor.Fprintf(p.out, "  %s: ", label)
	_, _ = valueColor.Fprintln(p.out, value)
}

// List prints a list of items with bullet points
func (p *printer) List(items []string, indent int) {
	indentStr := strings.Repeat("  ", indent)
	for _, item := range items {
		_, _ = infoColor.Fprintf(p.out, "%s• %s\n", indentStr, item)
	}
}

// Count formats a count with the right noun
func Count(count int, singular, plural string) string {
	if count == 1 {
		return fmt.Sprintf("%d %s", count, singular)
	}
	return fmt.Sprintf("%d %s", count, plural)
}
