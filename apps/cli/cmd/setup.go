package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tarm/serial"
	"go.uber.org/zap"

	"modemprobe/packages/at"
	"modemprobe/packages/config"
	"modemprobe/packages/journal"
	"modemprobe/packages/modemhttp"
	"modemprobe/packages/ssl"
)

// flags shared by the commands that talk to a modem
var (
	configFlag   string
	portFlag     string
	baudFlag     int
	baseURLFlag  string
	deviceIDFlag string
	timeoutFlag  string
	profileFlag  string
	journalFlag  string
	retriesFlag  int
	verboseFlag  bool
	noColorFlag  bool
)

// registerModemFlags wires the shared flags onto a command that talks to a
// modem, with env fallbacks.
func registerModemFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFlag, "config", getEnvString("MODEMPROBE_CONFIG", ""), "Path to config file (env: MODEMPROBE_CONFIG)")
	cmd.Flags().StringVar(&portFlag, "port", getEnvString("MODEMPROBE_PORT", ""), "Serial port of the module's AT interface (env: MODEMPROBE_PORT)")
	cmd.Flags().IntVar(&baudFlag, "baud", getEnvInt("MODEMPROBE_BAUD", 0), "Serial baud rate (env: MODEMPROBE_BAUD)")
	cmd.Flags().StringVar(&baseURLFlag, "base-url", getEnvString("MODEMPROBE_BASE_URL", ""), "Backend base URL (env: MODEMPROBE_BASE_URL)")
	cmd.Flags().StringVar(&deviceIDFlag, "device-id", getEnvString("MODEMPROBE_DEVICE_ID", ""), "Device identity for OTA calls (env: MODEMPROBE_DEVICE_ID)")
	cmd.Flags().StringVar(&timeoutFlag, "timeout", getEnvString("MODEMPROBE_TIMEOUT", ""), "Response timeout, e.g. 90s (env: MODEMPROBE_TIMEOUT)")
	cmd.Flags().StringVar(&profileFlag, "profile", getEnvString("MODEMPROBE_PROFILE", ""), "Modem profile: builtin name or YAML path (env: MODEMPROBE_PROFILE)")
	cmd.Flags().StringVar(&journalFlag, "journal", getEnvString("MODEMPROBE_JOURNAL", ""), "SQLite journal path; empty disables journaling (env: MODEMPROBE_JOURNAL)")
	cmd.Flags().IntVar(&retriesFlag, "retries", 0, "Retry attempts for connection failures and timeouts (default: none)")
	cmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", getEnvBool("MODEMPROBE_VERBOSE", false), "Verbose output including AT traffic (env: MODEMPROBE_VERBOSE)")
	cmd.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("MODEMPROBE_NO_COLOR", false), "Disable colored output (env: MODEMPROBE_NO_COLOR)")
}

// exitError carries the exit code a failure should produce.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// exitCode maps an error onto the CLI's exit codes, defaulting to a probe
// failure.
func exitCode(err error) int {
	var xe *exitError
	if errors.As(err, &xe) {
		return xe.code
	}
	return ExitProbeFailure
}

// stack is everything a command needs to drive requests through the modem.
type stack struct {
	cfg     *config.Config
	profile *config.Profile
	tr      *at.Transport
	sslc    *ssl.Configurator
	driver  *modemhttp.Driver
	jrnl    *journal.Journal
	log     *zap.Logger
}

func (s *stack) Close() {
	if s.jrnl != nil {
		_ = s.jrnl.Close()
	}
	if s.tr != nil {
		_ = s.tr.Close()
	}
	_ = s.log.Sync()
}

// loadRunConfig resolves config file + flags, flags winning.
func loadRunConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFlag)
	if err != nil {
		return nil, err
	}

	overrides := &config.Config{
		Port:     portFlag,
		Baud:     baudFlag,
		BaseURL:  baseURLFlag,
		DeviceID: deviceIDFlag,
		Profile:  profileFlag,
		Journal:  journalFlag,
	}
	if timeoutFlag != "" {
		d, err := time.ParseDuration(timeoutFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid --timeout %q: %w", timeoutFlag, err)
		}
		overrides.ResponseTimeout = int(d / time.Millisecond)
	}
	if verboseFlag {
		v := true
		overrides.Verbose = &v
	}
	if noColorFlag {
		nc := true
		overrides.NoColor = &nc
	}
	return cfg.Merge(overrides), nil
}

func newLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logCfg := zap.NewDevelopmentConfig()
	log, err := logCfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// buildStack opens the serial port, configures SSL when the backend URL is
// https, and wires the driver, journal, and retry policy together.
func buildStack(ctx context.Context) (*stack, error) {
	cfg, err := loadRunConfig()
	if err != nil {
		return nil, &exitError{ExitConfigError, err}
	}

	profile, err := config.LoadProfile(cfg.Profile)
	if err != nil {
		return nil, &exitError{ExitConfigError, err}
	}

	log := newLogger(cfg.GetVerbose())

	tr, err := at.Open(
		&serial.Config{Name: cfg.Port, Baud: cfg.Baud},
		at.WithLogger(log),
		at.WithURCPrefixes(profile.URCPrefix),
		at.WithDataPrefix("+"+profile.Commands.Read+":"),
	)
	if err != nil {
		return nil, &exitError{ExitSerialError, fmt.Errorf("open serial port %s: %w", cfg.Port, err)}
	}

	s := &stack{cfg: cfg, profile: profile, tr: tr, log: log}

	if cfg.Journal != "" {
		jrnl, err := journal.Open(cfg.Journal)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.jrnl = jrnl
	}

	s.sslc = ssl.New(tr, profile,
		ssl.WithLogger(log),
		ssl.WithCommandTimeout(cfg.CommandTimeoutDuration()))

	opts := []modemhttp.Option{
		modemhttp.WithLogger(log),
		modemhttp.WithResponseTimeout(cfg.ResponseTimeoutDuration()),
		modemhttp.WithCommandTimeout(cfg.CommandTimeoutDuration()),
	}
	if s.jrnl != nil {
		opts = append(opts, modemhttp.WithRecorder(s.jrnl))
	}
	if retriesFlag > 0 {
		maxAttempts := retriesFlag
		opts = append(opts, modemhttp.WithRetryPolicy(func(attempt int, _ modemhttp.Outcome) (time.Duration, bool) {
			return time.Second, attempt <= maxAttempts
		}))
	}
	s.driver = modemhttp.NewDriver(tr, s.sslc, profile, opts...)

	if isHTTPS(cfg.BaseURL) {
		if err := s.sslc.Configure(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func isHTTPS(url string) bool {
	return len(url) >= 8 && url[:8] == "https://"
}
