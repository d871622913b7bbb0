// Package ota implements the device side of the OTA backend: update check,
// chunked firmware download, and install acknowledgment.
package ota

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"modemprobe/packages/modemhttp"
)

// DefaultChunkSize is the Range window for firmware downloads; small enough
// to fit the module's read buffer.
const DefaultChunkSize = 4096

// StatusError reports a non-2xx answer from the backend. The request made
// it through the connection layer, so callers must not treat it as a
// connection failure; the backend's request log will have an entry for it.
type StatusError struct {
	Response *modemhttp.Response
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Response.StatusCode, e.Response.BodyString())
}

// Doer performs one HTTP request. Satisfied by *modemhttp.Driver.
type Doer interface {
	Do(ctx context.Context, req *modemhttp.Request) (*modemhttp.Response, error)
}

// Client talks to the OTA backend through the modem.
type Client struct {
	http     Doer
	baseURL  string
	deviceID string
	validate bool
	log      *zap.Logger
}

type Option func(*Client)

// WithLogger attaches a logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithSchemaValidation checks every update-check response against the
// backend's response schema, catching contract drift early.
func WithSchemaValidation(on bool) Option {
	return func(c *Client) { c.validate = on }
}

// NewClient returns an OTA client for the given backend and device.
func NewClient(doer Doer, baseURL, deviceID string, opts ...Option) *Client {
	c := &Client{
		http:     doer,
		baseURL:  strings.TrimRight(baseURL, "/"),
		deviceID: deviceID,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckResult is the backend's answer to an update check.
type CheckResult struct {
	Available  bool
	Version    string
	URL        string
	Size       int64
	ID         string
	Message    string
	StatusCode int
	RequestID  string
}

type checkRequest struct {
	DeviceID        string `json:"device_id"`
	FirmwareVersion string `json:"firmware_version"`
	ConfigVersion   string `json:"config_version,omitempty"`
}

// Check asks the backend whether a newer firmware exists for this device.
func (c *Client) Check(ctx context.Context, firmwareVersion, configVersion string) (*CheckResult, error) {
	body, err := json.Marshal(checkRequest{
		DeviceID:        c.deviceID,
		FirmwareVersion: firmwareVersion,
		ConfigVersion:   configVersion,
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/ota/devices/%s/check", c.baseURL, c.deviceID)
	req := modemhttp.NewRequest("POST", url).SetBody(body)
	req.SetHeader("Content-Type", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.ConnectionFailed() {
		return nil, fmt.Errorf("ota check: connection failed (status 0), request never reached the backend")
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("ota check: %w", &StatusError{Response: resp})
	}

	if c.validate {
		if err := validateCheckResponse(resp.Body); err != nil {
			return nil, err
		}
	}

	doc := string(resp.Body)
	result := &CheckResult{
		Available:  gjson.Get(doc, "status").Int() == 1,
		Version:    gjson.Get(doc, "version").String(),
		URL:        gjson.Get(doc, "url").String(),
		Size:       gjson.Get(doc, "size").Int(),
		ID:         gjson.Get(doc, "id").String(),
		Message:    gjson.Get(doc, "message").String(),
		StatusCode: resp.StatusCode,
		RequestID:  resp.RequestID,
	}
	c.log.Info("ota check",
		zap.Bool("available", result.Available),
		zap.String("version", result.Version),
		zap.Int64("size", result.Size))
	return result, nil
}

// Download fetches the firmware image chunk by chunk with Range requests
// and writes it to w. Returns the byte count written.
func (c *Client) Download(ctx context.Context, firmwareURL string, size int64, chunkSize int, w io.Writer) (int64, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var written int64
	for written < size {
		end := written + int64(chunkSize) - 1
		if end >= size {
			end = size - 1
		}
		req := modemhttp.NewRequest("GET", firmwareURL)
		req.SetHeader("Range", fmt.Sprintf("bytes=%d-%d", written, end))

		resp, err := c.http.Do(ctx, req)
		if err != nil {
			return written, fmt.Errorf("download at offset %d: %w", written, err)
		}
		if resp.ConnectionFailed() {
			return written, fmt.Errorf("download at offset %d: connection failed (status 0)", written)
		}
		if resp.StatusCode != 206 && resp.StatusCode != 200 {
			return written, fmt.Errorf("download at offset %d: %w", written, &StatusError{Response: resp})
		}
		if len(resp.Body) == 0 {
			return written, fmt.Errorf("download at offset %d: empty chunk", written)
		}
		if want := end - written + 1; int64(len(resp.Body)) > want {
			return written, fmt.Errorf("download at offset %d: %d bytes for a %d-byte range", written, len(resp.Body), want)
		}

		n, err := w.Write(resp.Body)
		if err != nil {
			return written, err
		}
		written += int64(n)
		c.log.Debug("firmware chunk",
			zap.Int64("offset", written), zap.Int64("total", size))
	}
	return written, nil
}

type ackRequest struct {
	DeviceID string `json:"device_id"`
	Status   string `json:"status"`
	Detail   string `json:"detail,omitempty"`
}

// Ack reports the install result back to the backend.
func (c *Client) Ack(ctx context.Context, status, detail string) error {
	body, err := json.Marshal(ackRequest{DeviceID: c.deviceID, Status: status, Detail: detail})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/ota/devices/%s/ack", c.baseURL, c.deviceID)
	req := modemhttp.NewRequest("POST", url).SetBody(body)
	req.SetHeader("Content-Type", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return err
	}
	if resp.ConnectionFailed() {
		return fmt.Errorf("ota ack: connection failed (status 0)")
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("ota ack: %w", &StatusError{Response: resp})
	}
	return nil
}
