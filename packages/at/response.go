package at

import (
	"strings"
)

// Outcome tags the result of a transport exchange. A command either ran to a
// terminator line or it did not; a timeout is never reported as complete
// with whatever bytes happened to arrive.
type Outcome int

const (
	// OutcomeComplete means a terminator line (OK, ERROR, +CME ERROR)
	// arrived within the timeout.
	OutcomeComplete Outcome = iota
	// OutcomeTimeout means no terminator arrived within the timeout.
	OutcomeTimeout
)

func (o Outcome) String() string {
	if o == OutcomeComplete {
		return "COMPLETE"
	}
	return "TIMEOUT"
}

// Result is the raw outcome of one command exchange.
type Result struct {
	// Lines holds the response lines between the echo and the terminator.
	Lines []string
	// Data holds raw payload bytes announced by a data header line. They
	// arrive unframed, so a body containing "OK" or CRLF stays intact.
	Data []byte
	// Final is the terminator line, empty on timeout.
	Final string
	// Outcome tags whether the exchange completed.
	Outcome Outcome
}

// Completed reports whether a terminator arrived in time.
func (r *Result) Completed() bool { return r.Outcome == OutcomeComplete }

// Succeeded reports whether the module answered OK.
func (r *Result) Succeeded() bool { return r.Completed() && r.Final == "OK" }

// Failed reports whether the module answered ERROR or +CME ERROR.
func (r *Result) Failed() bool {
	return r.Completed() && r.Final != "OK"
}

// Text joins the response lines. Useful for single-value replies.
func (r *Result) Text() string { return strings.Join(r.Lines, "\n") }

// isTerminator recognizes the lines that end a command exchange.
func isTerminator(line string) bool {
	if line == "OK" || line == "ERROR" {
		return true
	}
	return strings.HasPrefix(line, "+CME ERROR:") || strings.HasPrefix(line, "+CMS ERROR:")
}
