// Package modemhttp drives HTTP requests through an LTE module's AT command
// interface.
//
// The module reports request completion asynchronously with an HTTP status
// code; status code 0 is its convention for a connection-layer failure
// (TLS handshake, DNS, or socket) as opposed to an application-layer error
// status. Telling those two apart is most of the diagnostic value: a
// status-0 request leaves no entry in the backend's request log, an HTTP
// error status does.
package modemhttp
