// Package at implements the AT command transport for LTE modules.
//
// The transport is strictly request/response: one command is in flight at a
// time, and each exchange blocks until the modem's terminator line arrives
// or the timeout elapses. Unsolicited result codes are queued separately
// and consumed with WaitURC.
package at
