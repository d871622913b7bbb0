// Package ssl implements the one-shot TLS setup the modem needs before any
// HTTPS request: TLS 1.2, certificate time-check leniency for devices with
// an unsynchronized clock, and the default SSL profile.
package ssl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"modemprobe/packages/at"
	"modemprobe/packages/config"
)

// ErrConfigFailed reports that the setup sequence did not complete. HTTP
// initialization must not proceed after it: the SSL context would be half
// configured.
var ErrConfigFailed = errors.New("ssl: configuration failed")

// Execer runs one AT command exchange. Satisfied by *at.Transport.
type Execer interface {
	Exec(ctx context.Context, cmd at.Command, timeout time.Duration) (*at.Result, error)
}

// Configurator applies the SSL setup sequence and remembers whether it has
// completed since boot.
type Configurator struct {
	tr      Execer
	profile *config.Profile
	timeout time.Duration
	log     *zap.Logger

	mu         sync.Mutex
	configured bool
}

type Option func(*Configurator)

// WithLogger attaches a logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Configurator) { c.log = log }
}

// WithCommandTimeout overrides the per-command timeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(c *Configurator) { c.timeout = d }
}

// New returns a Configurator for the given transport and modem profile.
func New(tr Execer, profile *config.Profile, opts ...Option) *Configurator {
	c := &Configurator{
		tr:      tr,
		profile: profile,
		timeout: config.DefaultCommandTimeout,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configure runs the setup sequence. It is all-or-nothing: the first command
// that times out or reports an error aborts the remaining steps and the
// whole step fails. Re-running after a prior success is safe; the commands
// re-apply cleanly.
func (c *Configurator) Configure(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	steps := []at.Command{
		at.SSLVersion{Name: c.profile.Commands.SSLConfig, Context: c.profile.SSLContext, Version: c.profile.TLSVersion},
		at.SSLIgnoreLocalTime{Name: c.profile.Commands.SSLConfig, Context: c.profile.SSLContext, Ignore: true},
		at.SSLProfile{Name: c.profile.Commands.SSLProfile, Context: c.profile.SSLContext, CertName: ""},
	}

	for _, cmd := range steps {
		res, err := c.tr.Exec(ctx, cmd, c.timeout)
		if err != nil {
			c.configured = false
			return fmt.Errorf("%w: %s: %v", ErrConfigFailed, cmd.Wire(), err)
		}
		if !res.Succeeded() {
			c.configured = false
			if !res.Completed() {
				return fmt.Errorf("%w: %s timed out", ErrConfigFailed, cmd.Wire())
			}
			return fmt.Errorf("%w: %s answered %s", ErrConfigFailed, cmd.Wire(), res.Final)
		}
		c.log.Debug("ssl step applied", zap.String("command", cmd.Wire()))
	}

	c.configured = true
	c.log.Info("ssl context configured", zap.String("profile", c.profile.Name))
	return nil
}

// Configured reports whether the sequence has completed since boot.
func (c *Configurator) Configured() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configured
}
