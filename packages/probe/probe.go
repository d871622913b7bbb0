// Package probe reproduces the connectivity checks a field engineer runs
// when a device cannot reach its backend: health GET, echo POST, and an OTA
// update check, each classified by failure layer.
package probe

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"modemprobe/packages/modemhttp"
	"modemprobe/packages/ota"
)

// EchoPayload is the canonical echo body: 17 bytes including the trailing
// newline, matching the Content-Length the runbook quotes.
const EchoPayload = `{"test":"hello"}` + "\n"

// Doer performs one HTTP request through the modem.
type Doer interface {
	Do(ctx context.Context, req *modemhttp.Request) (*modemhttp.Response, error)
}

// Result is one probe's verdict.
type Result struct {
	Name       string
	Outcome    modemhttp.Outcome
	StatusCode int
	Duration   time.Duration
	RequestID  string
	Body       string
	Err        error
}

// Passed reports whether the probe succeeded end to end.
func (r *Result) Passed() bool {
	return r.Err == nil && r.Outcome == modemhttp.OutcomeSuccess
}

// Prober runs diagnostic requests against one backend.
type Prober struct {
	http Doer
	base string
	log  *zap.Logger
}

type Option func(*Prober)

// WithLogger attaches a logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Prober) { p.log = log }
}

// New returns a Prober against the given backend base URL.
func New(doer Doer, baseURL string, opts ...Option) *Prober {
	p := &Prober{
		http: doer,
		base: strings.TrimRight(baseURL, "/"),
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Health issues GET /health and expects 200.
func (p *Prober) Health(ctx context.Context) *Result {
	resp, err := p.http.Do(ctx, modemhttp.NewRequest("GET", p.base+"/health"))
	return p.verdict("health", resp, err)
}

// Echo posts the canonical payload to /debug/echo and checks that the
// backend sends the same JSON back. A correct echo proves the whole path:
// TLS handshake, request body upload, and response read.
func (p *Prober) Echo(ctx context.Context) *Result {
	req := modemhttp.NewRequest("POST", p.base+"/debug/echo").SetBody([]byte(EchoPayload))
	req.SetHeader("Content-Type", "application/json")

	resp, err := p.http.Do(ctx, req)
	res := p.verdict("echo", resp, err)
	if res.Passed() && !strings.Contains(res.Body, `"test":"hello"`) {
		res.Err = errEchoMismatch
	}
	return res
}

// OTACheck runs the update-check call a production device would make.
func (p *Prober) OTACheck(ctx context.Context, deviceID, firmwareVersion string) *Result {
	client := ota.NewClient(p.http, p.base, deviceID, ota.WithSchemaValidation(true))
	start := time.Now()
	cr, err := client.Check(ctx, firmwareVersion, "")

	res := &Result{
		Name:     "ota-check",
		Duration: time.Since(start),
		Err:      err,
		Outcome:  modemhttp.OutcomeSuccess,
	}
	if err == nil {
		res.StatusCode = cr.StatusCode
		res.RequestID = cr.RequestID
		p.logResult(res)
		return res
	}

	var se *ota.StatusError
	switch {
	case errors.As(err, &se):
		// The backend answered; classify from its response, not from the
		// wrapped error text.
		res.Outcome = modemhttp.Classify(se.Response, nil)
		res.StatusCode = se.Response.StatusCode
		res.RequestID = se.Response.RequestID
		res.Body = se.Response.BodyString()
	case errors.Is(err, ota.ErrContract):
		// HTTP layer fine, payload wrong. Same treatment as an echo
		// mismatch: the outcome stays SUCCESS, the error fails the probe.
	default:
		res.Outcome = modemhttp.Classify(nil, err)
	}
	p.logResult(res)
	return res
}

// Repeat runs fn n times, collecting latency into Stats. Slow tails here
// are almost always backend cold starts, not modem trouble.
func (p *Prober) Repeat(ctx context.Context, n int, fn func(context.Context) *Result) *Stats {
	var stats *Stats
	for i := 0; i < n; i++ {
		res := fn(ctx)
		if stats == nil {
			stats = NewStats(res.Name)
		}
		stats.Observe(res)
		if ctx.Err() != nil {
			break
		}
	}
	return stats
}

func (p *Prober) verdict(name string, resp *modemhttp.Response, err error) *Result {
	res := &Result{
		Name:    name,
		Outcome: modemhttp.Classify(resp, err),
		Err:     err,
	}
	if resp != nil {
		res.StatusCode = resp.StatusCode
		res.Duration = resp.Duration
		res.RequestID = resp.RequestID
		res.Body = resp.BodyString()
	}
	p.logResult(res)
	return res
}

func (p *Prober) logResult(res *Result) {
	p.log.Info("probe finished",
		zap.String("probe", res.Name),
		zap.String("outcome", res.Outcome.String()),
		zap.Int("status", res.StatusCode),
		zap.Duration("duration", res.Duration),
		zap.String("requestId", res.RequestID),
		zap.Error(res.Err))
}
