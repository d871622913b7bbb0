package probe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modemprobe/packages/modemhttp"
	"modemprobe/packages/ota"
)

type fakeDoer struct {
	handler func(req *modemhttp.Request) (*modemhttp.Response, error)
	calls   int
}

func (f *fakeDoer) Do(_ context.Context, req *modemhttp.Request) (*modemhttp.Response, error) {
	f.calls++
	return f.handler(req)
}

func TestHealth_OK(t *testing.T) {
	doer := &fakeDoer{handler: func(req *modemhttp.Request) (*modemhttp.Response, error) {
		assert.Equal(t, "GET", req.Method)
		assert.Equal(t, "https://flask-ota-server.vercel.app/health", req.URL)
		return &modemhttp.Response{
			StatusCode: 200,
			Body:       []byte(`{"status":"healthy","service":"OTA Server"}`),
			Duration:   120 * time.Millisecond,
		}, nil
	}}

	p := New(doer, "https://flask-ota-server.vercel.app")
	res := p.Health(context.Background())
	assert.True(t, res.Passed())
	assert.Equal(t, modemhttp.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 200, res.StatusCode)
}

func TestHealth_ConnectionFailure(t *testing.T) {
	doer := &fakeDoer{handler: func(req *modemhttp.Request) (*modemhttp.Response, error) {
		return &modemhttp.Response{StatusCode: 0}, nil
	}}

	p := New(doer, "https://flask-ota-server.vercel.app")
	res := p.Health(context.Background())
	assert.False(t, res.Passed())
	assert.Equal(t, modemhttp.OutcomeConnectionFailure, res.Outcome)
	assert.Equal(t, 0, res.StatusCode)
}

func TestEcho_RoundTrip(t *testing.T) {
	doer := &fakeDoer{handler: func(req *modemhttp.Request) (*modemhttp.Response, error) {
		assert.Equal(t, "POST", req.Method)
		assert.Len(t, req.Body, 17)
		// backend mirrors the payload
		return &modemhttp.Response{StatusCode: 200, Body: req.Body}, nil
	}}

	p := New(doer, "https://flask-ota-server.vercel.app")
	res := p.Echo(context.Background())
	assert.True(t, res.Passed())
}

func TestEcho_Mismatch(t *testing.T) {
	doer := &fakeDoer{handler: func(req *modemhttp.Request) (*modemhttp.Response, error) {
		return &modemhttp.Response{StatusCode: 200, Body: []byte(`{"unexpected":true}`)}, nil
	}}

	p := New(doer, "https://flask-ota-server.vercel.app")
	res := p.Echo(context.Background())
	assert.False(t, res.Passed())
	assert.ErrorIs(t, res.Err, errEchoMismatch)
}

func TestOTACheck(t *testing.T) {
	doer := &fakeDoer{handler: func(req *modemhttp.Request) (*modemhttp.Response, error) {
		assert.Contains(t, req.URL, "/api/ota/devices/TEST_DEVICE_001/check")
		return &modemhttp.Response{StatusCode: 200, Body: []byte(`{"status":0,"version":"0x00010000"}`), RequestID: "req-9"}, nil
	}}

	p := New(doer, "https://flask-ota-server.vercel.app")
	res := p.OTACheck(context.Background(), "TEST_DEVICE_001", "0x00010000")
	assert.True(t, res.Passed())
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, "req-9", res.RequestID)
}

func TestOTACheck_BackendErrorStatus(t *testing.T) {
	// A 5xx means the backend answered: the connection layer worked and
	// the backend's request log has an entry. Must never read as a
	// connection failure.
	doer := &fakeDoer{handler: func(req *modemhttp.Request) (*modemhttp.Response, error) {
		return &modemhttp.Response{StatusCode: 500, Body: []byte(`{"error":"boom"}`)}, nil
	}}

	p := New(doer, "https://flask-ota-server.vercel.app")
	res := p.OTACheck(context.Background(), "TEST_DEVICE_001", "0x00010000")
	assert.False(t, res.Passed())
	assert.Equal(t, modemhttp.OutcomeHTTPError, res.Outcome)
	assert.Equal(t, 500, res.StatusCode)
}

func TestOTACheck_ConnectionFailure(t *testing.T) {
	doer := &fakeDoer{handler: func(req *modemhttp.Request) (*modemhttp.Response, error) {
		return &modemhttp.Response{StatusCode: 0}, nil
	}}

	p := New(doer, "https://flask-ota-server.vercel.app")
	res := p.OTACheck(context.Background(), "TEST_DEVICE_001", "0x00010000")
	assert.False(t, res.Passed())
	assert.Equal(t, modemhttp.OutcomeConnectionFailure, res.Outcome)
}

func TestOTACheck_ContractViolation(t *testing.T) {
	// status 1 without a firmware URL: the backend answered 200, so the
	// outcome is not a connection failure, but the probe still fails.
	doer := &fakeDoer{handler: func(req *modemhttp.Request) (*modemhttp.Response, error) {
		return &modemhttp.Response{StatusCode: 200, Body: []byte(`{"status":1,"version":"0x00020000"}`)}, nil
	}}

	p := New(doer, "https://flask-ota-server.vercel.app")
	res := p.OTACheck(context.Background(), "TEST_DEVICE_001", "0x00010000")
	assert.False(t, res.Passed())
	assert.Equal(t, modemhttp.OutcomeSuccess, res.Outcome)
	assert.ErrorIs(t, res.Err, ota.ErrContract)
}

func TestRepeat_CollectsStats(t *testing.T) {
	latencies := []time.Duration{
		80 * time.Millisecond,
		90 * time.Millisecond,
		100 * time.Millisecond,
		110 * time.Millisecond,
		3 * time.Second, // cold start outlier
	}
	i := 0
	doer := &fakeDoer{handler: func(req *modemhttp.Request) (*modemhttp.Response, error) {
		d := latencies[i%len(latencies)]
		i++
		return &modemhttp.Response{StatusCode: 200, Duration: d, Body: []byte(`{}`)}, nil
	}}

	p := New(doer, "https://flask-ota-server.vercel.app")
	stats := p.Repeat(context.Background(), 5, p.Health)

	require.NotNil(t, stats)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 5, stats.Passed)
	assert.Zero(t, stats.Failed())
	assert.GreaterOrEqual(t, stats.Max(), 2*time.Second)
	assert.Less(t, stats.P50(), 200*time.Millisecond)
}

func TestRepeat_CountsFailures(t *testing.T) {
	n := 0
	doer := &fakeDoer{handler: func(req *modemhttp.Request) (*modemhttp.Response, error) {
		n++
		if n%2 == 0 {
			return &modemhttp.Response{StatusCode: 0}, nil
		}
		return &modemhttp.Response{StatusCode: 200, Duration: 50 * time.Millisecond}, nil
	}}

	p := New(doer, "https://flask-ota-server.vercel.app")
	stats := p.Repeat(context.Background(), 4, p.Health)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Failed())
}

func TestWaitReady_SucceedsOnceWarm(t *testing.T) {
	n := 0
	doer := &fakeDoer{handler: func(req *modemhttp.Request) (*modemhttp.Response, error) {
		n++
		if n < 3 {
			return &modemhttp.Response{StatusCode: 503}, nil
		}
		return &modemhttp.Response{StatusCode: 200}, nil
	}}

	p := New(doer, "https://flask-ota-server.vercel.app")
	err := p.WaitReady(context.Background(), 2*time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, doer.calls)
}

func TestWaitReady_TimesOut(t *testing.T) {
	doer := &fakeDoer{handler: func(req *modemhttp.Request) (*modemhttp.Response, error) {
		return &modemhttp.Response{StatusCode: 503}, nil
	}}

	p := New(doer, "https://flask-ota-server.vercel.app")
	err := p.WaitReady(context.Background(), 50*time.Millisecond, 10*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
}
