package modemhttp

import (
	"fmt"
	neturl "net/url"
	"strings"
	"time"
)

// Request describes one HTTP request to drive through the modem. It is
// owned by the caller for the duration of the request; nothing is shared
// or retained afterwards.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	// Timeout overrides the driver's response timeout for this request.
	Timeout time.Duration
	// RequestID is sent as X-Request-ID for backend log correlation. The
	// driver assigns one when empty.
	RequestID string
}

func NewRequest(method, requestURL string) *Request {
	return &Request{
		Method:  method,
		URL:     requestURL,
		Headers: make(map[string]string),
	}
}

func (r *Request) SetHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

func (r *Request) SetBody(body []byte) *Request {
	r.Body = body
	return r
}

func (r *Request) SetTimeout(d time.Duration) *Request {
	r.Timeout = d
	return r
}

// ContentType returns the Content-Type header, defaulting to JSON when a
// body is present.
func (r *Request) ContentType() string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, "Content-Type") {
			return v
		}
	}
	if len(r.Body) > 0 {
		return "application/json"
	}
	return ""
}

// methodCode maps the method onto the module's HTTPACTION encoding.
func (r *Request) methodCode() (int, error) {
	switch strings.ToUpper(r.Method) {
	case "GET":
		return 0, nil
	case "POST":
		return 1, nil
	default:
		return 0, fmt.Errorf("modemhttp: unsupported method %q", r.Method)
	}
}

// ValidateURL checks that a URL is well-formed and uses an allowed scheme.
func ValidateURL(rawURL string) error {
	u, err := neturl.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %s (only http and https are allowed)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// isTLS reports whether the URL needs the SSL context.
func isTLS(rawURL string) bool {
	return strings.HasPrefix(strings.ToLower(rawURL), "https://")
}
