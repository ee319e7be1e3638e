// Package output provides formatted console output for the test pipeline.
package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/zhusy54/PTOTestingFramework/internal/testcase"
)

// Writer handles CLI output formatting.
type Writer struct {
	out   io.Writer
	err   io.Writer
	color bool
	quiet bool
}

// New creates a new Writer with default settings.
func New() *Writer {
	return &Writer{
		out:   os.Stdout,
		err:   os.Stderr,
		color: isTerminal(),
	}
}

// NewWithWriters creates a Writer with custom io.Writers (for testing).
func NewWithWriters(out, err io.Writer, color bool) *Writer {
	return &Writer{
		out:   out,
		err:   err,
		color: color,
	}
}

// SetQuiet enables or disables quiet mode.
func (w *Writer) SetQuiet(quiet bool) {
	w.quiet = quiet
}

// Println writes a line to stdout.
func (w *Writer) Println(format string, args ...interface{}) {
	fmt.Fprintf(w.out, format+"\n", args...)
}

// Errorln writes a line to stderr.
func (w *Writer) Errorln(format string, args ...interface{}) {
	fmt.Fprintf(w.err, format+"\n", args...)
}

// Warning prints a warning message.
func (w *Writer) Warning(format string, args ...interface{}) {
	if w.color {
		w.Errorln(yellow+"warning: "+format+reset, args...)
	} else {
		w.Errorln("warning: "+format, args...)
	}
}

// Section prints a section header.
func (w *Writer) Section(title string) {
	if w.quiet {
		return
	}
	w.Println("")
	if w.color {
		w.Println(bold+"=== %s ==="+reset, title)
	} else {
		w.Println("=== %s ===", title)
	}
}

// TestStart prints the start of a test run.
func (w *Writer) TestStart(test string) {
	if w.quiet {
		return
	}
	w.Println("")
	label := fmt.Sprintf("─── %s ───", test)
	if w.color {
		w.Println("%s%s%s", bold+cyan, label, reset)
	} else {
		w.Println("%s", label)
	}
}

// TestPassed prints a test pass line with its wall-clock duration.
func (w *Writer) TestPassed(r testcase.Result) {
	if w.quiet {
		return
	}
	dur := humanizeDuration(r)
	if w.color {
		w.Println(green+"PASSED"+reset+"  %s (%s)", r.TestName, dur)
	} else {
		w.Println("PASSED  %s (%s)", r.TestName, dur)
	}
}

// TestFailed prints a test failure line with the aborting error and any
// per-tensor deviation metrics.
func (w *Writer) TestFailed(r testcase.Result) {
	if w.color {
		w.Errorln(red+"FAILED"+reset+"  %s (%s)", r.TestName, humanizeDuration(r))
	} else {
		w.Errorln("FAILED  %s (%s)", r.TestName, humanizeDuration(r))
	}
	if r.Err != nil {
		w.Errorln("        %v", r.Err)
	}
	names := make([]string, 0, len(r.Metrics))
	for name := range r.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := r.Metrics[name]
		if v.Passed {
			continue
		}
		w.Errorln("        %s: max_abs=%.3e max_rel=%.3e (first failure at element %d)",
			name, v.MaxAbsDiff, v.MaxRelDiff, v.FailedAt)
	}
}

// SuiteSummary prints the end-of-run report.
func (w *Writer) SuiteSummary(total, passed, failed int, results []testcase.Result) {
	w.Section("Summary")
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "passed"
		if !r.Passed {
			status = "failed"
		}
		rows = append(rows, []string{r.TestName, status, humanizeDuration(r)})
	}
	w.Table([]string{"test", "status", "duration"}, rows)
	w.Println("")
	if failed == 0 {
		if w.color {
			w.Println(green+"%d/%d tests passed"+reset, passed, total)
		} else {
			w.Println("%d/%d tests passed", passed, total)
		}
		return
	}
	if w.color {
		w.Errorln(red+"%d/%d tests failed"+reset, failed, total)
	} else {
		w.Errorln("%d/%d tests failed", failed, total)
	}
}

// List prints a list of items.
func (w *Writer) List(items []string) {
	for _, item := range items {
		w.Println("  - %s", item)
	}
}

// Table prints a simple table.
func (w *Writer) Table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var headerParts []string
	for i, h := range headers {
		headerParts = append(headerParts, fmt.Sprintf("%-*s", widths[i], h))
	}
	w.Println(strings.Join(headerParts, "  "))

	var sepParts []string
	for _, width := range widths {
		sepParts = append(sepParts, strings.Repeat("-", width))
	}
	w.Println(strings.Join(sepParts, "  "))

	for _, row := range rows {
		var rowParts []string
		for i, cell := range row {
			if i < len(widths) {
				rowParts = append(rowParts, fmt.Sprintf("%-*s", widths[i], cell))
			}
		}
		w.Println(strings.Join(rowParts, "  "))
	}
}

var epoch = time.Unix(0, 0)

// humanizeDuration renders short runs with millisecond precision and
// longer runs in relative words.
func humanizeDuration(r testcase.Result) string {
	if r.Duration < 10*time.Second {
		return fmt.Sprintf("%.3fs", r.Duration.Seconds())
	}
	return strings.TrimSpace(humanize.RelTime(epoch, epoch.Add(r.Duration), "", ""))
}

// isTerminal returns true if stdout is a terminal.
func isTerminal() bool {
	if fi, _ := os.Stdout.Stat(); fi != nil {
		return (fi.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// ANSI color codes.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	cyan   = "\033[36m"
)
