package probe

import (
	"errors"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

var errEchoMismatch = errors.New("probe: backend echoed a different payload")

// Stats aggregates repeated runs of one probe.
type Stats struct {
	Name   string
	Total  int
	Passed int

	// latency histogram in microseconds, 1us..10min
	hist *hdrhistogram.Histogram
}

// NewStats returns an empty aggregate for the named probe.
func NewStats(name string) *Stats {
	return &Stats{
		Name: name,
		hist: hdrhistogram.New(1, 600_000_000, 3),
	}
}

// Observe folds one result in. Failed runs count toward Total but do not
// pollute the latency distribution.
func (s *Stats) Observe(res *Result) {
	s.Total++
	if !res.Passed() {
		return
	}
	s.Passed++
	_ = s.hist.RecordValue(res.Duration.Microseconds())
}

// Failed returns the number of failed runs.
func (s *Stats) Failed() int { return s.Total - s.Passed }

// P50 returns the median latency of passing runs.
func (s *Stats) P50() time.Duration { return s.quantile(50) }

// P95 returns the 95th percentile latency of passing runs.
func (s *Stats) P95() time.Duration { return s.quantile(95) }

// P99 returns the 99th percentile latency of passing runs.
func (s *Stats) P99() time.Duration { return s.quantile(99) }

// Max returns the worst latency seen, the cold-start tail.
func (s *Stats) Max() time.Duration {
	return time.Duration(s.hist.Max()) * time.Microsecond
}

func (s *Stats) quantile(q float64) time.Duration {
	return time.Duration(s.hist.ValueAtQuantile(q)) * time.Microsecond
}
