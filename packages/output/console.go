package output

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"modemprobe/packages/journal"
	"modemprobe/packages/modemhttp"
	"modemprobe/packages/probe"
)

// ConsoleFormatter renders probe results for a terminal.
type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) { f.writer = w }
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) { f.verbose = v }
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) { f.noColor = nc }
}

var (
	passMark = color.New(color.FgGreen, color.Bold).SprintFunc()
	failMark = color.New(color.FgRed, color.Bold).SprintFunc()
	dim      = color.New(color.Faint).SprintFunc()
)

// PrintResult renders one probe verdict with the matching diagnostic hint.
func (f *ConsoleFormatter) PrintResult(res *probe.Result) {
	if res.Passed() {
		fmt.Fprintf(f.writer, "%s %s  %d in %v\n", passMark("PASS"), res.Name, res.StatusCode, res.Duration)
	} else {
		fmt.Fprintf(f.writer, "%s %s  %s", failMark("FAIL"), res.Name, res.Outcome)
		if res.StatusCode > 0 {
			fmt.Fprintf(f.writer, " (%d)", res.StatusCode)
		}
		fmt.Fprintln(f.writer)
		if hint := outcomeHint(res.Outcome); hint != "" {
			fmt.Fprintf(f.writer, "       %s\n", dim(hint))
		}
		if res.Err != nil {
			fmt.Fprintf(f.writer, "       %s\n", dim(res.Err.Error()))
		}
	}
	if f.verbose {
		if res.RequestID != "" {
			fmt.Fprintf(f.writer, "       %s\n", dim("X-Request-ID: "+res.RequestID))
		}
		if res.Body != "" {
			fmt.Fprintf(f.writer, "       %s\n", dim(res.Body))
		}
	}
}

// PrintStats renders a repeat run's latency distribution.
func (f *ConsoleFormatter) PrintStats(stats *probe.Stats) {
	fmt.Fprintf(f.writer, "%s: %d runs, %d failed\n", stats.Name, stats.Total, stats.Failed())
	if stats.Passed > 0 {
		fmt.Fprintf(f.writer, "  p50 %v  p95 %v  p99 %v  max %v\n",
			stats.P50(), stats.P95(), stats.P99(), stats.Max())
	}
}

// PrintJournal renders journal entries for eyeballing against the backend's
// request log.
func (f *ConsoleFormatter) PrintJournal(entries []journal.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(f.writer, "journal is empty")
		return
	}
	for _, e := range entries {
		mark := passMark("ok ")
		if e.Outcome != modemhttp.OutcomeSuccess.String() {
			mark = failMark("err")
		}
		fmt.Fprintf(f.writer, "%s %s  %-4s %-50s %3d %-18s %5dms  %s\n",
			mark, e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Method, e.URL, e.StatusCode, e.Outcome, e.DurationMs, e.RequestID)
	}
}

// outcomeHint is the runbook, condensed: what each failure layer means and
// where to look next.
func outcomeHint(o modemhttp.Outcome) string {
	switch o {
	case modemhttp.OutcomeConnectionFailure:
		return "status 0: the connection failed before the backend (TLS handshake, DNS, or socket); expect NO entry in the backend's request log"
	case modemhttp.OutcomeTransportTimeout:
		return "no completion notification from the module; a serverless cold start can exceed 60s, try a 90s response timeout"
	case modemhttp.OutcomeSSLConfigFailure:
		return "the SSL setup sequence did not complete; https requests cannot proceed until it does"
	case modemhttp.OutcomeHTTPError:
		return "the backend answered, so the connection is fine; check the backend's request log for this X-Request-ID"
	}
	return ""
}
