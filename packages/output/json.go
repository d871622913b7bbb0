package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"modemprobe/packages/probe"
)

// JSONOutput is the complete machine-readable report.
type JSONOutput struct {
	Summary JSONSummary `json:"summary"`
	Probes  []JSONProbe `json:"probes"`
	Time    string      `json:"time"`
}

// JSONSummary totals the probe verdicts.
type JSONSummary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// JSONProbe is one probe result.
type JSONProbe struct {
	Name       string  `json:"name"`
	Passed     bool    `json:"passed"`
	Outcome    string  `json:"outcome"`
	StatusCode int     `json:"statusCode,omitempty"`
	Duration   float64 `json:"duration"`
	RequestID  string  `json:"requestId,omitempty"`
	Error      string  `json:"error,omitempty"`
	Body       string  `json:"body,omitempty"`
}

// JSONFormatter accumulates probe results and emits one JSON document.
type JSONFormatter struct {
	writer  io.Writer
	results []JSONProbe
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer:  os.Stdout,
		results: make([]JSONProbe, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

// Add records one probe result for the final document.
func (f *JSONFormatter) Add(res *probe.Result) {
	p := JSONProbe{
		Name:       res.Name,
		Passed:     res.Passed(),
		Outcome:    res.Outcome.String(),
		StatusCode: res.StatusCode,
		Duration:   float64(res.Duration.Milliseconds()),
		RequestID:  res.RequestID,
		Body:       res.Body,
	}
	if res.Err != nil {
		p.Error = res.Err.Error()
	}
	f.results = append(f.results, p)
}

// Flush writes the accumulated JSON document.
func (f *JSONFormatter) Flush() error {
	var passed, failed int
	for _, p := range f.results {
		if p.Passed {
			passed++
		} else {
			failed++
		}
	}

	output := JSONOutput{
		Summary: JSONSummary{
			Total:  len(f.results),
			Passed: passed,
			Failed: failed,
		},
		Probes: f.results,
		Time:   time.Now().Format(time.RFC3339),
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
