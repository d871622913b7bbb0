package modemhttp

import (
	"errors"

	"modemprobe/packages/at"
	"modemprobe/packages/ssl"
)

// Outcome classifies a finished request the way the diagnostic workflow
// needs it: a connection-layer failure leaves no backend log entry, an HTTP
// error status does.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeHTTPError
	OutcomeConnectionFailure
	OutcomeTransportTimeout
	OutcomeSSLConfigFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "SUCCESS"
	case OutcomeHTTPError:
		return "HTTP_ERROR_STATUS"
	case OutcomeConnectionFailure:
		return "CONNECTION_FAILURE"
	case OutcomeTransportTimeout:
		return "TRANSPORT_TIMEOUT"
	case OutcomeSSLConfigFailure:
		return "SSL_CONFIG_FAILURE"
	}
	return "UNKNOWN"
}

// Classify maps a driver result onto the outcome taxonomy.
func Classify(resp *Response, err error) Outcome {
	switch {
	case errors.Is(err, ErrSSLNotConfigured), errors.Is(err, ssl.ErrConfigFailed):
		return OutcomeSSLConfigFailure
	case errors.Is(err, ErrResponseTimeout), errors.Is(err, at.ErrTimeout):
		return OutcomeTransportTimeout
	case err != nil:
		return OutcomeConnectionFailure
	case resp.ConnectionFailed():
		return OutcomeConnectionFailure
	case resp.IsClientError() || resp.IsServerError():
		return OutcomeHTTPError
	default:
		return OutcomeSuccess
	}
}

// Retryable reports whether a retry policy could reasonably re-attempt this
// outcome. SSL misconfiguration never is: re-sending the same request
// against a half-configured context cannot succeed.
func (o Outcome) Retryable() bool {
	switch o {
	case OutcomeTransportTimeout, OutcomeConnectionFailure:
		return true
	default:
		return false
	}
}
