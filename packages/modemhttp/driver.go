package modemhttp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"modemprobe/packages/at"
	"modemprobe/packages/config"
)

var (
	// ErrSSLNotConfigured means an https request was attempted before the
	// SSL configuration step completed. The driver fails fast instead of
	// issuing HTTP commands against a half-configured context.
	ErrSSLNotConfigured = errors.New("modemhttp: ssl not configured for https request")

	// ErrResponseTimeout means the module's request-finished notification
	// never arrived within the response timeout.
	ErrResponseTimeout = errors.New("modemhttp: timed out waiting for request completion")
)

// State is the driver's position in the per-request command sequence,
// exposed for diagnostics. Every terminal outcome returns to StateIdle.
type State int

const (
	StateIdle State = iota
	StateURLSet
	StateContentSet
	StateRequestSent
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateURLSet:
		return "URL_SET"
	case StateContentSet:
		return "CONTENT_SET"
	case StateRequestSent:
		return "REQUEST_SENT"
	}
	return "UNKNOWN"
}

// Transport is the command channel the driver runs on. Satisfied by
// *at.Transport.
type Transport interface {
	Exec(ctx context.Context, cmd at.Command, timeout time.Duration) (*at.Result, error)
	Upload(ctx context.Context, cmd at.Command, prompt string, payload []byte, timeout time.Duration) (*at.Result, error)
	WaitURC(ctx context.Context, prefix string, timeout time.Duration) (string, error)
}

// Gate answers whether the SSL configuration step has completed since boot.
// Satisfied by *ssl.Configurator.
type Gate interface {
	Configured() bool
}

// Record is one request outcome handed to a Recorder for the device-side
// request log.
type Record struct {
	RequestID  string
	Method     string
	URL        string
	StatusCode int
	Outcome    Outcome
	Duration   time.Duration
}

// Recorder persists request records. Satisfied by *journal.Journal.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// RetryPolicy decides whether to re-attempt a finished request. attempt
// counts from 1. Returning ok=false stops. The driver itself never retries;
// whether and how often to retry past a cold start is the caller's call.
type RetryPolicy func(attempt int, outcome Outcome) (delay time.Duration, ok bool)

// Driver sequences the module's HTTP commands for one request at a time:
// set URL, set content if a body is present, issue the request, then wait
// for the asynchronous completion notification.
type Driver struct {
	tr      Transport
	gate    Gate
	profile *config.Profile

	responseTimeout time.Duration
	commandTimeout  time.Duration
	retry           RetryPolicy
	recorder        Recorder
	log             *zap.Logger

	mu          sync.Mutex
	state       State
	initialized bool
}

type Option func(*Driver)

// WithResponseTimeout sets how long to wait for the request-finished
// notification. The default is 90s so a serverless cold start does not read
// as a dead connection.
func WithResponseTimeout(d time.Duration) Option {
	return func(dr *Driver) { dr.responseTimeout = d }
}

// WithCommandTimeout bounds each plain AT command exchange.
func WithCommandTimeout(d time.Duration) Option {
	return func(dr *Driver) { dr.commandTimeout = d }
}

// WithLogger attaches a logger.
func WithLogger(log *zap.Logger) Option {
	return func(dr *Driver) { dr.log = log }
}

// WithRecorder journals every attempt's outcome.
func WithRecorder(r Recorder) Option {
	return func(dr *Driver) { dr.recorder = r }
}

// WithRetryPolicy installs a caller-supplied retry policy. Without one,
// every request is a single attempt.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(dr *Driver) { dr.retry = p }
}

// NewDriver builds a driver over the given transport. gate may be nil when
// only http:// URLs will ever be used.
func NewDriver(tr Transport, gate Gate, profile *config.Profile, opts ...Option) *Driver {
	d := &Driver{
		tr:              tr,
		gate:            gate,
		profile:         profile,
		responseTimeout: config.DefaultResponseTimeout,
		commandTimeout:  config.DefaultCommandTimeout,
		log:             zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the driver's current position in the request sequence.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Do performs the request and returns the HTTP-layer response. StatusCode 0
// in a nil-error response means the connection itself failed (TLS, DNS or
// socket); ErrResponseTimeout means the module never reported completion.
func (d *Driver) Do(ctx context.Context, req *Request) (*Response, error) {
	if err := ValidateURL(req.URL); err != nil {
		return nil, err
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	attempt := 0
	for {
		attempt++
		resp, err := d.attempt(ctx, req)
		outcome := Classify(resp, err)
		d.record(ctx, req, resp, outcome)

		if d.retry == nil || !outcome.Retryable() {
			return resp, err
		}
		delay, ok := d.retry(attempt, outcome)
		if !ok {
			return resp, err
		}
		d.log.Info("retrying request",
			zap.String("url", req.URL),
			zap.Int("attempt", attempt),
			zap.String("outcome", outcome.String()))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return resp, ctx.Err()
		}
	}
}

// Get performs a GET request.
func (d *Driver) Get(ctx context.Context, url string) (*Response, error) {
	return d.Do(ctx, NewRequest("GET", url))
}

// Post performs a POST request with a JSON body.
func (d *Driver) Post(ctx context.Context, url string, body []byte) (*Response, error) {
	req := NewRequest("POST", url).SetBody(body)
	req.SetHeader("Content-Type", "application/json")
	return d.Do(ctx, req)
}

func (d *Driver) attempt(ctx context.Context, req *Request) (*Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() { d.state = StateIdle }()

	method, err := req.methodCode()
	if err != nil {
		return nil, err
	}

	// An https URL needs a completed SSL step since boot; fail before any
	// HTTP command is issued. Plain http never touches the SSL context.
	if isTLS(req.URL) && (d.gate == nil || !d.gate.Configured()) {
		return nil, ErrSSLNotConfigured
	}

	if err := d.ensureInit(ctx); err != nil {
		return nil, err
	}

	cmds := d.profile.Commands
	start := time.Now()

	if err := d.exec(ctx, at.HTTPParam{Name: cmds.Param, Key: "URL", Value: req.URL}); err != nil {
		return nil, err
	}
	d.state = StateURLSet

	if len(req.Body) > 0 {
		if err := d.setContent(ctx, req); err != nil {
			return nil, err
		}
		d.state = StateContentSet
	} else if ud := userData(req); ud != "" {
		if err := d.exec(ctx, at.HTTPParam{Name: cmds.Param, Key: "USERDATA", Value: ud}); err != nil {
			return nil, err
		}
	}

	if err := d.exec(ctx, at.HTTPAction{Name: cmds.Action, Method: method}); err != nil {
		return nil, err
	}
	d.state = StateRequestSent

	timeout := d.responseTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	urc, err := d.tr.WaitURC(ctx, d.profile.URCPrefix, timeout)
	if err != nil {
		if errors.Is(err, at.ErrTimeout) {
			d.log.Warn("no completion notification from module",
				zap.String("url", req.URL), zap.Duration("timeout", timeout))
			return nil, fmt.Errorf("%w after %v", ErrResponseTimeout, timeout)
		}
		return nil, err
	}

	status, length, err := parseCompletion(urc)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		StatusCode: status,
		Duration:   time.Since(start),
		RequestID:  req.RequestID,
	}
	if status == 0 {
		// Connection-layer failure: nothing to read, and no entry will
		// show up in the backend's request log.
		return resp, nil
	}

	if length > 0 {
		body, err := d.readBody(ctx, length)
		if err != nil {
			return nil, err
		}
		resp.Body = body
	}
	return resp, nil
}

// ensureInit starts the module's HTTP service once per session. Modules
// answer ERROR when the service is already up; recover by terminating and
// starting it again.
func (d *Driver) ensureInit(ctx context.Context) error {
	if d.initialized {
		return nil
	}
	cmds := d.profile.Commands
	res, err := d.tr.Exec(ctx, at.HTTPInit{Name: cmds.Init}, d.commandTimeout)
	if err != nil {
		return err
	}
	if res.Failed() {
		if err := d.exec(ctx, at.HTTPTerm{Name: cmds.Term}); err != nil {
			return err
		}
		if err := d.exec(ctx, at.HTTPInit{Name: cmds.Init}); err != nil {
			return err
		}
	} else if !res.Completed() {
		return fmt.Errorf("%s: %w", at.HTTPInit{Name: cmds.Init}.Wire(), at.ErrTimeout)
	}
	d.initialized = true
	return nil
}

func (d *Driver) setContent(ctx context.Context, req *Request) error {
	cmds := d.profile.Commands
	if err := d.exec(ctx, at.HTTPParam{Name: cmds.Param, Key: "CONTENT", Value: req.ContentType()}); err != nil {
		return err
	}
	if ud := userData(req); ud != "" {
		if err := d.exec(ctx, at.HTTPParam{Name: cmds.Param, Key: "USERDATA", Value: ud}); err != nil {
			return err
		}
	}

	announce := at.HTTPData{
		Name:      cmds.Data,
		Length:    len(req.Body),
		TimeoutMs: 10000,
	}
	res, err := d.tr.Upload(ctx, announce, d.profile.Prompt, req.Body, d.commandTimeout)
	if err != nil {
		return err
	}
	if !res.Succeeded() {
		return fmt.Errorf("body upload failed: %s", finalOf(res))
	}
	return nil
}

func (d *Driver) readBody(ctx context.Context, length int) ([]byte, error) {
	cmds := d.profile.Commands
	res, err := d.tr.Exec(ctx, at.HTTPRead{Name: cmds.Read, Offset: 0, Length: length}, d.commandTimeout)
	if err != nil {
		return nil, err
	}
	if !res.Succeeded() {
		return nil, fmt.Errorf("body read failed: %s", finalOf(res))
	}
	if len(res.Data) != length {
		return nil, fmt.Errorf("body read returned %d bytes, want %d", len(res.Data), length)
	}
	return res.Data, nil
}

// exec runs one command and folds timeouts and module errors into errors.
func (d *Driver) exec(ctx context.Context, cmd at.Command) error {
	res, err := d.tr.Exec(ctx, cmd, d.commandTimeout)
	if err != nil {
		return err
	}
	if !res.Completed() {
		return fmt.Errorf("%s: %w", cmd.Wire(), at.ErrTimeout)
	}
	if !res.Succeeded() {
		return fmt.Errorf("%s answered %s", cmd.Wire(), res.Final)
	}
	return nil
}

func (d *Driver) record(ctx context.Context, req *Request, resp *Response, outcome Outcome) {
	if d.recorder == nil {
		return
	}
	rec := Record{
		RequestID: req.RequestID,
		Method:    strings.ToUpper(req.Method),
		URL:       req.URL,
		Outcome:   outcome,
	}
	if resp != nil {
		rec.StatusCode = resp.StatusCode
		rec.Duration = resp.Duration
	}
	if err := d.recorder.Record(ctx, rec); err != nil {
		d.log.Warn("journal write failed", zap.Error(err))
	}
}

// userData renders extra request headers for the module's USERDATA
// parameter. Content-Type travels separately via CONTENT.
func userData(req *Request) string {
	var parts []string
	for k, v := range req.Headers {
		if strings.EqualFold(k, "Content-Type") {
			continue
		}
		parts = append(parts, k+": "+v)
	}
	if req.RequestID != "" {
		parts = append(parts, "X-Request-ID: "+req.RequestID)
	}
	sort.Strings(parts)
	return strings.Join(parts, "\r\n")
}

// parseCompletion extracts the status code and body length from the
// request-finished notification, e.g. "+HTTPACTION: 0,200,27" or
// `+SHREQ: "GET",200,27`.
func parseCompletion(urc string) (status, length int, err error) {
	i := strings.Index(urc, ":")
	if i < 0 {
		return 0, 0, fmt.Errorf("malformed completion notification %q", urc)
	}
	fields := strings.Split(urc[i+1:], ",")
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("malformed completion notification %q", urc)
	}
	status, err = strconv.Atoi(strings.TrimSpace(fields[len(fields)-2]))
	if err != nil {
		return 0, 0, fmt.Errorf("malformed completion notification %q: %v", urc, err)
	}
	length, err = strconv.Atoi(strings.TrimSpace(fields[len(fields)-1]))
	if err != nil {
		return 0, 0, fmt.Errorf("malformed completion notification %q: %v", urc, err)
	}
	return status, length, nil
}

func finalOf(res *at.Result) string {
	if !res.Completed() {
		return "timeout"
	}
	return res.Final
}
