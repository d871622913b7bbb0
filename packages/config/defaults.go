package config

import "time"

const (
	// DefaultOTAServerURL is the backend the probes target unless
	// overridden.
	DefaultOTAServerURL = "https://flask-ota-server.vercel.app"

	// DefaultResponseTimeout is how long to wait for the module's
	// request-finished notification. 90s rather than 60s so a serverless
	// backend cold start does not read as a dead connection.
	DefaultResponseTimeout = 90 * time.Second

	// DefaultCommandTimeout bounds an ordinary AT command exchange.
	DefaultCommandTimeout = 5 * time.Second

	// DefaultBaud is the usual rate for SIMCom AT ports.
	DefaultBaud = 115200
)

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Port:            "/dev/ttyUSB2",
		Baud:            DefaultBaud,
		BaseURL:         DefaultOTAServerURL,
		DeviceID:        "TEST_DEVICE_001",
		FirmwareVersion: "0x00010000",
		ResponseTimeout: int(DefaultResponseTimeout / time.Millisecond),
		CommandTimeout:  int(DefaultCommandTimeout / time.Millisecond),
		Profile:         "sim7600",
		Journal:         "",
	}
}

// ResponseTimeoutDuration returns the response timeout as a duration,
// falling back to the default when unset.
func (c *Config) ResponseTimeoutDuration() time.Duration {
	if c.ResponseTimeout <= 0 {
		return DefaultResponseTimeout
	}
	return time.Duration(c.ResponseTimeout) * time.Millisecond
}

// CommandTimeoutDuration returns the per-command timeout as a duration.
func (c *Config) CommandTimeoutDuration() time.Duration {
	if c.CommandTimeout <= 0 {
		return DefaultCommandTimeout
	}
	return time.Duration(c.CommandTimeout) * time.Millisecond
}
