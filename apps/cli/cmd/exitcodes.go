package cmd

// Exit codes for the modemprobe CLI
const (
	// ExitSuccess indicates all probes passed
	ExitSuccess = 0

	// ExitProbeFailure indicates one or more probes failed
	ExitProbeFailure = 1

	// ExitConfigError indicates a configuration or profile error
	ExitConfigError = 3

	// ExitSerialError indicates the serial port could not be opened
	ExitSerialError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)
