package modemhttp

import (
	"encoding/json"
	"time"
)

// Response is the HTTP-layer result the module reported. StatusCode 0 is
// the module's convention for a connection-layer failure (TLS handshake,
// DNS, or socket) as opposed to an application-layer HTTP error.
type Response struct {
	StatusCode int
	Body       []byte
	Duration   time.Duration
	RequestID  string
}

func (r *Response) BodyString() string { return string(r.Body) }

func (r *Response) BodyJSON() (any, error) {
	var result any
	if err := json.Unmarshal(r.Body, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ConnectionFailed reports the status-0 case: the request never reached the
// backend, so no entry will exist in its request log.
func (r *Response) ConnectionFailed() bool { return r.StatusCode == 0 }

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *Response) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500
}

func (r *Response) DurationMs() int64 {
	return r.Duration.Milliseconds()
}
