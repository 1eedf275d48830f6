package application

import (
	"context"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-wallet/internal/core/domain"
)

const (
	DefaultRetryMaxAttempts = 5
	DefaultRetryBaseDelay   = 500 * time.Millisecond
	DefaultRetryMaxDelay    = 30 * time.Second
)

// RetryConfig bounds the exponential backoff applied to transient failures
// of the data source.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig ...
var DefaultRetryConfig = RetryConfig{
	MaxAttempts: DefaultRetryMaxAttempts,
	BaseDelay:   DefaultRetryBaseDelay,
	MaxDelay:    DefaultRetryMaxDelay,
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultRetryMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultRetryBaseDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	return c
}

// delay returns the time to wait before the given retry, starting from 1.
func (c RetryConfig) delay(retry int) time.Duration {
	d := c.BaseDelay
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	return d
}

// retry runs fn until it succeeds, fails with a non retryable error, or the
// attempts are exhausted. In the last case the last error is returned.
func retry(
	ctx context.Context, clk clock.Clock, cfg RetryConfig, op string,
	fn func() error,
) error {
	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err = fn(); err == nil || !domain.IsRetryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := cfg.delay(attempt)
		log.WithFields(log.Fields{
			"op":      op,
			"attempt": attempt,
			"delay":   delay,
		}).WithError(err).Debug("transient failure, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.TickAfter(delay):
		}
	}
	return err
}
