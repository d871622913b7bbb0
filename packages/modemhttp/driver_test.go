package modemhttp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modemprobe/packages/at"
	"modemprobe/packages/config"
)

type fakeGate bool

func (g fakeGate) Configured() bool { return bool(g) }

// fakeTransport scripts the modem at the command level: responses keyed by
// wire line, one completion notification, captured uploads.
type fakeTransport struct {
	execs   []string
	results map[string]*at.Result

	urcs   []string
	urcErr error

	uploads   [][]byte
	uploadRes *at.Result
}

func okResult() *at.Result {
	return &at.Result{Final: "OK", Outcome: at.OutcomeComplete}
}

func (f *fakeTransport) Exec(_ context.Context, cmd at.Command, _ time.Duration) (*at.Result, error) {
	wire := cmd.Wire()
	f.execs = append(f.execs, wire)
	if res, ok := f.results[wire]; ok {
		return res, nil
	}
	return okResult(), nil
}

func (f *fakeTransport) Upload(_ context.Context, cmd at.Command, _ string, payload []byte, _ time.Duration) (*at.Result, error) {
	f.execs = append(f.execs, cmd.Wire())
	f.uploads = append(f.uploads, append([]byte(nil), payload...))
	if f.uploadRes != nil {
		return f.uploadRes, nil
	}
	return okResult(), nil
}

func (f *fakeTransport) WaitURC(_ context.Context, _ string, _ time.Duration) (string, error) {
	if f.urcErr != nil {
		return "", f.urcErr
	}
	if len(f.urcs) == 0 {
		return "", at.ErrTimeout
	}
	urc := f.urcs[0]
	f.urcs = f.urcs[1:]
	return urc, nil
}

func (f *fakeTransport) sawPrefix(prefix string) bool {
	for _, e := range f.execs {
		if strings.HasPrefix(e, prefix) {
			return true
		}
	}
	return false
}

func newTestDriver(tr *fakeTransport, gate Gate) *Driver {
	return NewDriver(tr, gate, config.SIM7600())
}

func TestDriver_GetSuccess(t *testing.T) {
	tr := &fakeTransport{
		urcs: []string{"+HTTPACTION: 0,200,20"},
		results: map[string]*at.Result{
			"AT+HTTPREAD=0,20": {
				Lines:   []string{"+HTTPREAD: 20"},
				Data:    []byte(`{"status":"healthy"}`),
				Final:   "OK",
				Outcome: at.OutcomeComplete,
			},
		},
	}
	d := newTestDriver(tr, fakeGate(true))

	resp, err := d.Get(context.Background(), "https://flask-ota-server.vercel.app/health")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, `{"status":"healthy"}`, resp.BodyString())
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, StateIdle, d.State())

	// command order: init, url, headers, action
	require.GreaterOrEqual(t, len(tr.execs), 4)
	assert.Equal(t, "AT+HTTPINIT", tr.execs[0])
	assert.Equal(t, `AT+HTTPPARA="URL","https://flask-ota-server.vercel.app/health"`, tr.execs[1])
	assert.Contains(t, tr.execs[2], `"USERDATA","X-Request-ID: `)
	assert.Equal(t, "AT+HTTPACTION=0", tr.execs[3])
}

func TestDriver_HTTPSRequiresSSLStep(t *testing.T) {
	tr := &fakeTransport{}
	d := newTestDriver(tr, fakeGate(false))

	_, err := d.Get(context.Background(), "https://flask-ota-server.vercel.app/health")
	assert.ErrorIs(t, err, ErrSSLNotConfigured)
	// fail fast: no HTTP command may reach the modem
	assert.Empty(t, tr.execs)
	assert.Equal(t, OutcomeSSLConfigFailure, Classify(nil, err))
}

func TestDriver_PlainHTTPNeverNeedsSSL(t *testing.T) {
	tr := &fakeTransport{urcs: []string{"+HTTPACTION: 0,200,0"}}
	d := newTestDriver(tr, nil)

	resp, err := d.Get(context.Background(), "http://192.168.1.10/health")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.False(t, tr.sawPrefix("AT+CSSLCFG"))
	assert.False(t, tr.sawPrefix("AT+SHSSL"))
}

func TestDriver_ConnectionFailureIsStatusZero(t *testing.T) {
	// The module completes the action with status 0: the connection itself
	// failed, which is not an HTTP error and reads nothing.
	tr := &fakeTransport{urcs: []string{"+HTTPACTION: 0,0,0"}}
	d := newTestDriver(tr, fakeGate(true))

	resp, err := d.Get(context.Background(), "https://flask-ota-server.vercel.app/health")
	require.NoError(t, err)
	assert.True(t, resp.ConnectionFailed())
	assert.Equal(t, OutcomeConnectionFailure, Classify(resp, err))
	assert.False(t, tr.sawPrefix("AT+HTTPREAD"))
}

func TestDriver_ResponseTimeout(t *testing.T) {
	tr := &fakeTransport{urcErr: at.ErrTimeout}
	d := newTestDriver(tr, fakeGate(true))

	_, err := d.Get(context.Background(), "https://flask-ota-server.vercel.app/health")
	assert.ErrorIs(t, err, ErrResponseTimeout)
	assert.Equal(t, OutcomeTransportTimeout, Classify(nil, err))
	assert.Equal(t, StateIdle, d.State())
}

func TestDriver_PostEcho(t *testing.T) {
	payload := []byte(`{"test":"hello"}` + "\n")
	tr := &fakeTransport{
		urcs: []string{"+HTTPACTION: 1,200,17"},
		results: map[string]*at.Result{
			"AT+HTTPREAD=0,17": {
				Lines:   []string{"+HTTPREAD: 17"},
				Data:    []byte(`{"test":"hello"}` + "\n"),
				Final:   "OK",
				Outcome: at.OutcomeComplete,
			},
		},
	}
	d := newTestDriver(tr, fakeGate(true))

	resp, err := d.Post(context.Background(), "https://flask-ota-server.vercel.app/debug/echo", payload)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.BodyString(), `"test":"hello"`)

	// body travels via the announce/upload exchange with the exact length
	require.Len(t, tr.uploads, 1)
	assert.Equal(t, payload, tr.uploads[0])
	assert.True(t, tr.sawPrefix("AT+HTTPDATA=17,"))
	assert.True(t, tr.sawPrefix(`AT+HTTPPARA="CONTENT","application/json"`))
}

func TestDriver_BodyLengthMismatch(t *testing.T) {
	// The completion notification promised 64 bytes but the read returned
	// fewer. A truncated body must surface as an error, never as a
	// shortened response.
	tr := &fakeTransport{
		urcs: []string{"+HTTPACTION: 0,200,64"},
		results: map[string]*at.Result{
			"AT+HTTPREAD=0,64": {
				Lines:   []string{"+HTTPREAD: 64"},
				Data:    []byte("short"),
				Final:   "OK",
				Outcome: at.OutcomeComplete,
			},
		},
	}
	d := newTestDriver(tr, fakeGate(true))

	_, err := d.Get(context.Background(), "https://flask-ota-server.vercel.app/health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want 64")
}

func TestDriver_InitRecoversFromStaleSession(t *testing.T) {
	tr := &fakeTransport{
		urcs: []string{"+HTTPACTION: 0,200,0"},
		results: map[string]*at.Result{
			"AT+HTTPINIT": {Final: "ERROR", Outcome: at.OutcomeComplete},
		},
	}
	d := newTestDriver(tr, fakeGate(true))

	// first init errors (service already up), driver terms and re-inits
	_, err := d.Get(context.Background(), "https://flask-ota-server.vercel.app/health")
	// second HTTPINIT also errors under this script, so init fails
	assert.Error(t, err)
	assert.Equal(t, []string{"AT+HTTPINIT", "AT+HTTPTERM", "AT+HTTPINIT"}, tr.execs)
}

func TestDriver_InitOncePerSession(t *testing.T) {
	tr := &fakeTransport{urcs: []string{"+HTTPACTION: 0,200,0", "+HTTPACTION: 0,200,0"}}
	d := newTestDriver(tr, fakeGate(true))

	_, err := d.Get(context.Background(), "https://flask-ota-server.vercel.app/health")
	require.NoError(t, err)
	_, err = d.Get(context.Background(), "https://flask-ota-server.vercel.app/health")
	require.NoError(t, err)

	inits := 0
	for _, e := range tr.execs {
		if e == "AT+HTTPINIT" {
			inits++
		}
	}
	assert.Equal(t, 1, inits)
}

func TestDriver_RetryPolicy(t *testing.T) {
	// Caller-supplied policy: retry connection failures twice, no delay.
	tr := &fakeTransport{urcs: []string{
		"+HTTPACTION: 0,0,0",
		"+HTTPACTION: 0,0,0",
		"+HTTPACTION: 0,200,0",
	}}
	attempts := 0
	policy := func(attempt int, outcome Outcome) (time.Duration, bool) {
		attempts = attempt
		return 0, attempt < 3
	}
	d := NewDriver(tr, fakeGate(true), config.SIM7600(), WithRetryPolicy(policy))

	resp, err := d.Get(context.Background(), "https://flask-ota-server.vercel.app/health")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 2, attempts)
}

func TestDriver_NoRetryByDefault(t *testing.T) {
	tr := &fakeTransport{urcs: []string{"+HTTPACTION: 0,0,0", "+HTTPACTION: 0,200,0"}}
	d := newTestDriver(tr, fakeGate(true))

	resp, err := d.Get(context.Background(), "https://flask-ota-server.vercel.app/health")
	require.NoError(t, err)
	assert.True(t, resp.ConnectionFailed())
}

type captureRecorder struct {
	records []Record
}

func (c *captureRecorder) Record(_ context.Context, rec Record) error {
	c.records = append(c.records, rec)
	return nil
}

func TestDriver_RecordsOutcome(t *testing.T) {
	tr := &fakeTransport{urcs: []string{"+HTTPACTION: 1,404,0"}}
	rec := &captureRecorder{}
	d := NewDriver(tr, fakeGate(true), config.SIM7600(), WithRecorder(rec))

	resp, err := d.Post(context.Background(), "https://flask-ota-server.vercel.app/debug/echo", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)

	require.Len(t, rec.records, 1)
	assert.Equal(t, OutcomeHTTPError, rec.records[0].Outcome)
	assert.Equal(t, "POST", rec.records[0].Method)
	assert.Equal(t, resp.RequestID, rec.records[0].RequestID)
}

func TestDriver_RejectsBadURL(t *testing.T) {
	tr := &fakeTransport{}
	d := newTestDriver(tr, fakeGate(true))

	_, err := d.Get(context.Background(), "ftp://example.com/file")
	assert.Error(t, err)
	_, err = d.Get(context.Background(), "https://")
	assert.Error(t, err)
	assert.Empty(t, tr.execs)
}

func TestParseCompletion(t *testing.T) {
	status, length, err := parseCompletion("+HTTPACTION: 0,200,27")
	require.NoError(t, err)
	assert.Equal(t, 200, status)
	assert.Equal(t, 27, length)

	status, length, err = parseCompletion(`+SHREQ: "GET",200,27`)
	require.NoError(t, err)
	assert.Equal(t, 200, status)
	assert.Equal(t, 27, length)

	status, _, err = parseCompletion("+HTTPACTION: 1,0,0")
	require.NoError(t, err)
	assert.Equal(t, 0, status)

	_, _, err = parseCompletion("+HTTPACTION garbled")
	assert.Error(t, err)
	_, _, err = parseCompletion("+HTTPACTION: nope")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, Classify(&Response{StatusCode: 200}, nil))
	assert.Equal(t, OutcomeHTTPError, Classify(&Response{StatusCode: 500}, nil))
	assert.Equal(t, OutcomeConnectionFailure, Classify(&Response{StatusCode: 0}, nil))
	assert.Equal(t, OutcomeTransportTimeout, Classify(nil, ErrResponseTimeout))
	assert.Equal(t, OutcomeSSLConfigFailure, Classify(nil, ErrSSLNotConfigured))
	assert.Equal(t, OutcomeConnectionFailure, Classify(nil, errors.New("serial gone")))
}

func TestOutcomeRetryable(t *testing.T) {
	assert.True(t, OutcomeConnectionFailure.Retryable())
	assert.True(t, OutcomeTransportTimeout.Retryable())
	assert.False(t, OutcomeSSLConfigFailure.Retryable())
	assert.False(t, OutcomeHTTPError.Retryable())
	assert.False(t, OutcomeSuccess.Retryable())
}
