package diag

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"candy/internal/source"
)

// Reporter renders diagnostics to a writer, colorized when the destination
// is a terminal (color mode is the caller's decision; see candy/internal/config).
type Reporter struct {
	Files *source.FileSet
	Out   io.Writer
	Color bool
}

// NewReporter builds a Reporter over files, writing to out.
func NewReporter(files *source.FileSet, out io.Writer, useColor bool) *Reporter {
	return &Reporter{Files: files, Out: out, Color: useColor}
}

// Report writes one diagnostic in "path:line:col: severity[code]: message" form,
// followed by the offending source line and a caret span, and any notes.
func (r *Reporter) Report(d *Diagnostic) {
	f := r.Files.Get(d.Primary.File)
	start, _ := r.Files.Resolve(d.Primary)

	sevColor := color.New(color.FgWhite)
	switch d.Severity {
	case SevError:
		sevColor = color.New(color.FgRed, color.Bold)
	case SevWarning:
		sevColor = color.New(color.FgYellow, color.Bold)
	case SevInfo:
		sevColor = color.New(color.FgCyan)
	}
	sevColor.EnableColor()
	if !r.Color {
		sevColor.DisableColor()
	}

	header := sevColor.Sprintf("%s[%s]", d.Severity, d.Code)
	fmt.Fprintf(r.Out, "%s:%d:%d: %s: %s\n", f.Path, start.Line, start.Column, header, d.Message)

	line := f.GetLine(start.Line)
	if line != "" {
		fmt.Fprintf(r.Out, "  %s\n", line)
		caretLen := int(d.Primary.Len())
		if caretLen < 1 {
			caretLen = 1
		}
		fmt.Fprintf(r.Out, "  %*s%s\n", start.Column-1, "", repeat('^', caretLen))
	}
	for _, label := range d.Labels {
		ls, _ := r.Files.Resolve(label.Span)
		fmt.Fprintf(r.Out, "    note at %d:%d: %s\n", ls.Line, ls.Column, label.Message)
	}
	for _, note := range d.Notes {
		fmt.Fprintf(r.Out, "  = note: %s\n", note)
	}
}

// ReportAll renders every diagnostic in the bag after a deterministic sort.
func (r *Reporter) ReportAll(bag *Bag) {
	bag.Sort()
	for _, d := range bag.Items() {
		r.Report(d)
	}
}

func repeat(c byte, n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = c
	}
	return string(out)
}
