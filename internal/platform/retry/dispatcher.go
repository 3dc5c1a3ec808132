// Package retry decorates a dispatch.Dispatcher with bounded retries,
// a consecutive-failure circuit breaker and an optional outbound rate limit.
// Classification stays with the wrapped dispatcher; this package only reads it.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/tinywideclouds/go-pushrelay-service/pkg/dispatch"
)

// ErrCircuitOpen is wrapped in the Transient error returned while the
// breaker is open.
var ErrCircuitOpen = errors.New("provider circuit open")

type Config struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// TripAfter consecutive transient failures open the circuit; <= 0 disables it.
	TripAfter int
	Cooldown  time.Duration
	// RatePerSecond caps outbound sends; <= 0 disables the limiter.
	RatePerSecond float64
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 200 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 5 * time.Second
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	return c
}

type Dispatcher struct {
	next    dispatch.Dispatcher
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	fails     int
	openUntil time.Time
}

func NewDispatcher(next dispatch.Dispatcher, cfg Config, logger *slog.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	d := &Dispatcher{
		next:   next,
		cfg:    cfg,
		logger: logger.With("component", "RetryDispatcher"),
		now:    time.Now,
	}
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return d
}

func (d *Dispatcher) Send(ctx context.Context, token string, data map[string]string) (string, error) {
	if until, open := d.circuitOpen(); open {
		return "", dispatch.NewDispatchError(dispatch.Transient,
			&circuitError{until: until})
	}

	var messageID string
	attempt := 0
	op := func() error {
		attempt++
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(dispatch.NewDispatchError(dispatch.Transient, err))
			}
		}
		id, err := d.next.Send(ctx, token, data)
		if err == nil {
			messageID = id
			return nil
		}
		if dispatch.ClassOf(err) != dispatch.Transient {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.InitialInterval
	b.MaxInterval = d.cfg.MaxInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(d.cfg.MaxAttempts-1)), ctx)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		d.logger.Debug("Transient dispatch failure, retrying", "attempt", attempt, "wait", wait, "err", err)
	})
	if err != nil {
		var de *dispatch.DispatchError
		if !errors.As(err, &de) {
			// Context ended between attempts
			err = dispatch.NewDispatchError(dispatch.Transient, err)
		}
		d.record(err)
		return "", err
	}
	d.record(nil)
	return messageID, nil
}

func (d *Dispatcher) circuitOpen() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.openUntil.IsZero() && d.now().Before(d.openUntil) {
		return d.openUntil, true
	}
	return time.Time{}, false
}

// record updates the breaker. Only transient failures count: an invalid
// token says nothing about provider health.
func (d *Dispatcher) record(err error) {
	if d.cfg.TripAfter <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if err == nil || dispatch.ClassOf(err) != dispatch.Transient {
		d.fails = 0
		d.openUntil = time.Time{}
		return
	}
	d.fails++
	if d.fails >= d.cfg.TripAfter {
		d.openUntil = d.now().Add(d.cfg.Cooldown)
		d.logger.Warn("Provider circuit opened", "consecutive_failures", d.fails, "until", d.openUntil)
	}
}

type circuitError struct {
	until time.Time
}

func (e *circuitError) Error() string {
	return ErrCircuitOpen.Error() + " until " + e.until.Format(time.RFC3339)
}

func (e *circuitError) Unwrap() error { return ErrCircuitOpen }
